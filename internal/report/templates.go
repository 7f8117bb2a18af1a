package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/sidekick-bot/sidekick/internal/job"
)

// footer is the fixed attribution appended to every comment.
const footer = "\n\n---\n🤖 _Posted by Sidekick_"

// StatusState is the state rendered in a status comment.
type StatusState string

const (
	StatusStarted   StatusState = "started"
	StatusRunning   StatusState = "running"
	StatusCompleted StatusState = "completed"
)

// StatusComment renders the status comment for a job. remoteID, when set,
// names the background job handling the work.
func StatusComment(state StatusState, j *job.Job, remoteID string) string {
	var b strings.Builder

	switch state {
	case StatusStarted:
		fmt.Fprintf(&b, "⏳ **Working on it** — `%s`\n\n", j.Command.Command)
		fmt.Fprintf(&b, "Task: %s\n", j.Command.Description)
		if j.Command.Target != "" {
			fmt.Fprintf(&b, "Target: `%s`\n", j.Command.Target)
		}
	case StatusRunning:
		fmt.Fprintf(&b, "🔄 **Still running** — `%s`\n", j.Command.Command)
	case StatusCompleted:
		if j.Status == job.StatusCompleted {
			fmt.Fprintf(&b, "✅ **Done** — `%s` finished in %s\n", j.Command.Command, elapsedString(j))
		} else {
			fmt.Fprintf(&b, "❌ **Failed** — `%s` after %s\n", j.Command.Command, elapsedString(j))
		}
	}

	if remoteID != "" {
		fmt.Fprintf(&b, "\nBackground job: `%s`\n", remoteID)
	}

	b.WriteString(footer)
	return b.String()
}

// ResultComment renders the comment for a successful result: PR link,
// analysis text, and the changed-file list.
func ResultComment(res *job.Result) string {
	var b strings.Builder

	b.WriteString("## ✅ " + res.Summary + "\n")

	if res.PullRequestURL != "" {
		fmt.Fprintf(&b, "\n**Pull request:** %s\n", res.PullRequestURL)
	}

	if res.Analysis != "" {
		b.WriteString("\n### Analysis\n\n")
		b.WriteString(res.Analysis)
		b.WriteString("\n")
	}

	if len(res.Files) > 0 {
		b.WriteString("\n### Changed files\n")
		for _, f := range res.Files {
			b.WriteString("- `" + f + "`\n")
		}
	}

	b.WriteString(footer)
	return b.String()
}

// DenialComment renders the comment posted when access control rejects a
// request for a reason other than rate limiting.
func DenialComment(reason string) string {
	switch reason {
	case "repository_not_allowed":
		return "🚫 This repository is not on the allow-list for this bot. " +
			"Ask an administrator to add it if you believe this is a mistake."
	case "not_org_member":
		return "🚫 Only organization members can use this bot."
	}
	return "🚫 Request denied."
}

// RateLimitComment renders the comment posted when a user exceeds the hourly
// request limit.
func RateLimitComment(limit int) string {
	return fmt.Sprintf("⏱️ You've hit the limit of %d requests per hour. Please try again later.", limit)
}

// ErrorComment renders the comment for a failed job: the error message and
// the elapsed time.
func ErrorComment(errMsg string, elapsed time.Duration) string {
	var b strings.Builder
	b.WriteString("## ❌ Something went wrong\n\n")
	b.WriteString("```\n" + errMsg + "\n```\n")
	fmt.Fprintf(&b, "\nElapsed: %s\n", elapsed.Round(time.Second))
	b.WriteString(footer)
	return b.String()
}

func elapsedString(j *job.Job) string {
	return j.Elapsed().Round(time.Second).String()
}
