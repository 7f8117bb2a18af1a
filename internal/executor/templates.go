package executor

import (
	"fmt"
	"strings"

	"github.com/sidekick-bot/sidekick/internal/job"
	"github.com/sidekick-bot/sidekick/internal/mention"
)

// commandInstructions gives the engine a task framing per canonical command.
var commandInstructions = map[mention.Command]string{
	mention.CommandFix:           "Fix the described problem. Keep the change minimal and focused.",
	mention.CommandAdd:           "Implement the requested feature, following the existing project conventions.",
	mention.CommandOptimize:      "Optimize the code for performance without changing behavior.",
	mention.CommandRefactor:      "Refactor for clarity and maintainability without changing behavior.",
	mention.CommandTest:          "Add tests covering the described behavior. Do not change production code unless required to make it testable.",
	mention.CommandDoc:           "Improve the documentation. Do not change code behavior.",
	mention.CommandSecurity:      "Audit the code for security issues and fix what you find.",
	mention.CommandAccessibility: "Improve accessibility, following WCAG guidance where applicable.",
	mention.CommandAnalyze:       "Analyze the code and report findings. Do not modify any files.",
	mention.CommandReview:        "Review the changes and report findings. Do not modify any files.",
}

// buildPrompt composes the engine prompt from the parsed command and the
// repository context.
func buildPrompt(j *job.Job, rc *RepoContext) string {
	var b strings.Builder

	b.WriteString(commandInstructions[j.Command.Command])
	b.WriteString("\n\n")

	if j.Command.Target != "" {
		fmt.Fprintf(&b, "Target: %s\n", j.Command.Target)
	}
	fmt.Fprintf(&b, "Task: %s\n", j.Command.Description)

	if m := j.Mention; m != nil && m.Context != nil {
		if len(m.Context.Files) > 0 {
			fmt.Fprintf(&b, "Referenced files: %s\n", strings.Join(m.Context.Files, ", "))
		}
		if len(m.Context.CodeBlocks) > 0 {
			b.WriteString("Referenced code:\n")
			for _, block := range m.Context.CodeBlocks {
				b.WriteString("```\n" + block + "\n```\n")
			}
		}
	}

	b.WriteString("\nProject context:\n")
	if len(rc.Languages) > 0 {
		fmt.Fprintf(&b, "- Languages: %s\n", strings.Join(rc.Languages, ", "))
	}
	if rc.PackageManager != "" {
		fmt.Fprintf(&b, "- Package manager: %s\n", rc.PackageManager)
	}
	if rc.Framework != "" {
		fmt.Fprintf(&b, "- Framework: %s\n", rc.Framework)
	}
	fmt.Fprintf(&b, "- Has tests: %v\n", rc.HasTests)

	if j.Command.Options["tests"] {
		b.WriteString("\nAlso add tests for the change.\n")
	}
	if j.Command.Options["docs"] {
		b.WriteString("\nAlso update relevant documentation.\n")
	}
	if j.Command.Options["preserve-format"] {
		b.WriteString("\nPreserve the existing formatting; do not reformat untouched code.\n")
	}

	b.WriteString("\nFor every file you change, print a line in the form \"Modified: <path>\", \"Created: <path>\", or \"Updated: <path>\".\n")

	return b.String()
}

// summarize produces a one-line result summary.
func summarize(cmd *mention.ParsedCommand, fileCount int) string {
	if fileCount == 0 {
		return fmt.Sprintf("Completed %s with no file changes", cmd.Command)
	}
	return fmt.Sprintf("Completed %s, %d file(s) changed", cmd.Command, fileCount)
}

// analysisText returns engine output as analysis for read-only commands,
// where the output itself is the deliverable.
func analysisText(cmd *mention.ParsedCommand, output string) string {
	switch cmd.Command {
	case mention.CommandAnalyze, mention.CommandReview:
		return strings.TrimSpace(output)
	}
	return ""
}

// commitMessage builds the templated commit message embedding the mention
// and file list.
func commitMessage(j *job.Job, files []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n\n", j.Command.Command, j.Command.Description)
	fmt.Fprintf(&b, "Requested by @%s in %s#%d via:\n  %s\n\n", j.Author, j.Repository, j.IssueNumber, j.Mention.FullText)
	b.WriteString("Files changed:\n")
	for _, f := range files {
		b.WriteString("- " + f + "\n")
	}
	return b.String()
}

// prTitle builds the pull request title.
func prTitle(j *job.Job) string {
	title := fmt.Sprintf("%s: %s", j.Command.Command, j.Command.Description)
	if len(title) > 72 {
		title = title[:69] + "..."
	}
	return title
}

// prBody builds the pull request body.
func prBody(j *job.Job, files []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Closes #%d (requested by @%s).\n\n", j.IssueNumber, j.Author)
	fmt.Fprintf(&b, "**Command:** `%s`\n\n", j.Mention.FullText)
	b.WriteString("**Changed files:**\n")
	for _, f := range files {
		b.WriteString("- `" + f + "`\n")
	}
	return b.String()
}
