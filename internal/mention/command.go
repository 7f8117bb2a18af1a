package mention

import "strings"

// Command is a canonical command after alias resolution.
type Command string

const (
	CommandFix           Command = "fix"
	CommandAdd           Command = "add"
	CommandOptimize      Command = "optimize"
	CommandRefactor      Command = "refactor"
	CommandTest          Command = "test"
	CommandDoc           Command = "doc"
	CommandSecurity      Command = "security"
	CommandAccessibility Command = "accessibility"
	CommandAnalyze       Command = "analyze"
	CommandReview        Command = "review"
)

// ParsedCommand is the typed form of a mention, derived deterministically.
type ParsedCommand struct {
	Command     Command
	Target      string
	Description string
	Options     map[string]bool
}

// canonical maps command tokens directly to canonical commands.
var canonical = map[string]Command{
	"fix":           CommandFix,
	"add":           CommandAdd,
	"optimize":      CommandOptimize,
	"refactor":      CommandRefactor,
	"test":          CommandTest,
	"doc":           CommandDoc,
	"security":      CommandSecurity,
	"accessibility": CommandAccessibility,
	"analyze":       CommandAnalyze,
	"review":        CommandReview,
}

// aliases maps alternative spellings to canonical commands.
var aliases = map[string]Command{
	"repair":      CommandFix,
	"bugfix":      CommandFix,
	"resolve":     CommandFix,
	"implement":   CommandAdd,
	"create":      CommandAdd,
	"feature":     CommandAdd,
	"improve":     CommandOptimize,
	"perf":        CommandOptimize,
	"restructure": CommandRefactor,
	"cleanup":     CommandRefactor,
	"tests":       CommandTest,
	"docs":        CommandDoc,
	"document":    CommandDoc,
	"audit":       CommandSecurity,
	"a11y":        CommandAccessibility,
	"analyse":     CommandAnalyze,
	"investigate": CommandAnalyze,
	"check":       CommandReview,
}

// defaultDescriptions provides a fallback description per command when the
// mention carries no free-text words.
var defaultDescriptions = map[Command]string{
	CommandFix:           "fix the reported issue",
	CommandAdd:           "implement the requested feature",
	CommandOptimize:      "optimize for performance",
	CommandRefactor:      "refactor for clarity and maintainability",
	CommandTest:          "add test coverage",
	CommandDoc:           "improve documentation",
	CommandSecurity:      "audit and harden security",
	CommandAccessibility: "improve accessibility",
	CommandAnalyze:       "analyze the code and report findings",
	CommandReview:        "review the changes",
}

// knownOptions are the boolean flags recognized in mention arguments.
var knownOptions = []string{"--tests", "--docs", "--preserve-format"}

// ResolveCommand maps a raw command token to its canonical command. The token
// is trimmed and lowercased before lookup. Returns false when the token is
// neither canonical nor a registered alias.
func ResolveCommand(token string) (Command, bool) {
	token = strings.ToLower(strings.TrimSpace(token))
	if cmd, ok := canonical[token]; ok {
		return cmd, true
	}
	if cmd, ok := aliases[token]; ok {
		return cmd, true
	}
	return "", false
}

// Validate resolves a mention into a ParsedCommand. Returns false when the
// command token is unrecognized; callers should then post usage help rather
// than creating a job.
func Validate(m *Mention) (*ParsedCommand, bool) {
	if m == nil {
		return nil, false
	}

	cmd, ok := ResolveCommand(m.Command)
	if !ok {
		return nil, false
	}

	parsed := &ParsedCommand{
		Command: cmd,
		Options: map[string]bool{},
	}

	var words []string
	for _, arg := range m.Args {
		if strings.HasPrefix(arg, "--") {
			for _, opt := range knownOptions {
				if strings.HasPrefix(arg, opt) {
					parsed.Options[strings.TrimPrefix(opt, "--")] = true
					break
				}
			}
			continue
		}
		if parsed.Target == "" && looksLikePath(arg) {
			parsed.Target = arg
			continue
		}
		words = append(words, arg)
	}

	if parsed.Target == "" && m.Context != nil && len(m.Context.Files) > 0 {
		parsed.Target = m.Context.Files[0]
	}

	parsed.Description = strings.Join(words, " ")
	if parsed.Description == "" {
		parsed.Description = defaultDescriptions[cmd]
	}

	return parsed, true
}

// looksLikePath reports whether an argument names a file or directory.
func looksLikePath(s string) bool {
	return strings.Contains(s, "/") || strings.Contains(s, ".")
}

// UsageHelp returns the help text posted when a mention carries an
// unrecognized command.
func UsageHelp(botName string) string {
	var b strings.Builder
	b.WriteString("I didn't recognize that command. Usage:\n\n")
	b.WriteString("```\n@" + botName + " <command> [target] [description] [--tests] [--docs] [--preserve-format]\n```\n\n")
	b.WriteString("Supported commands: fix, add, optimize, refactor, test, doc, security, accessibility, analyze, review.\n\n")
	b.WriteString("Examples:\n")
	b.WriteString("- `@" + botName + " fix src/app.ts the login form crashes`\n")
	b.WriteString("- `@" + botName + " add user search --tests`\n")
	b.WriteString("- `@" + botName + " analyze`\n")
	return b.String()
}
