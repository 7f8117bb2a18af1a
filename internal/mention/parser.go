// Package mention extracts bot mentions from comment text and resolves them
// into canonical commands.
package mention

import (
	"regexp"
	"strconv"
	"strings"
)

// Mention is a recognized bot invocation inside a comment or issue body.
// It is immutable once created.
type Mention struct {
	// Command is the raw command token following the bot name.
	Command string
	// FullText is the full text after the bot name, up to the end of the line.
	FullText string
	// Args are the tokens after the command, with quoting resolved.
	Args []string
	// Context holds auxiliary references extracted from the whole comment.
	Context *Context
}

// Context holds file, line, and code references found anywhere in the
// comment, independent of where the mention appears.
type Context struct {
	Files       []string
	LineNumbers []int
	CodeBlocks  []string
}

var (
	lineRefPattern   = regexp.MustCompile(`(?i)\bline\s+(\d+)\b|\bL(\d+)\b`)
	codeBlockPattern = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\n?(.*?)```")
	backtickPattern  = regexp.MustCompile("`([^`\n]+)`")
)

// knownExtensions is the set of file extensions recognized when scanning
// backtick-quoted text for filenames.
var knownExtensions = map[string]bool{
	".go": true, ".ts": true, ".tsx": true, ".js": true, ".jsx": true,
	".py": true, ".rb": true, ".rs": true, ".java": true, ".kt": true,
	".c": true, ".h": true, ".cpp": true, ".cs": true, ".php": true,
	".css": true, ".scss": true, ".html": true, ".vue": true, ".svelte": true,
	".md": true, ".yaml": true, ".yml": true, ".json": true, ".toml": true,
	".sql": true, ".sh": true,
}

// Parse scans text for a mention of the given bot name and returns it, or nil
// if no mention is present or the text after the mention is empty. When the
// bot is mentioned more than once, the first occurrence wins.
func Parse(text, botName string) *Mention {
	token := "@" + botName

	idx := strings.Index(text, token)
	if idx < 0 {
		return nil
	}

	rest := text[idx+len(token):]
	if end := strings.IndexAny(rest, "\r\n"); end >= 0 {
		rest = rest[:end]
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return nil
	}

	tokens := tokenize(rest)
	if len(tokens) == 0 {
		return nil
	}

	var args []string
	if len(tokens) > 1 {
		args = tokens[1:]
	}
	return &Mention{
		Command:  tokens[0],
		FullText: rest,
		Args:     args,
		Context:  extractContext(text),
	}
}

// tokenize splits text on whitespace while honoring single- and double-quoted
// substrings. Quote characters are stripped; whitespace inside quotes is kept.
func tokenize(text string) []string {
	var tokens []string
	var current strings.Builder
	var quote rune

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, r := range text {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
		case r == ' ' || r == '\t':
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()

	return tokens
}

// extractContext pulls file, line, and code-block references from the whole
// comment body.
func extractContext(text string) *Context {
	ctx := &Context{}

	// Strip fenced code blocks first so their contents are not mistaken for
	// inline backtick references.
	stripped := text
	for _, match := range codeBlockPattern.FindAllStringSubmatch(text, -1) {
		block := strings.TrimSpace(match[1])
		if block != "" {
			ctx.CodeBlocks = append(ctx.CodeBlocks, block)
		}
		stripped = strings.Replace(stripped, match[0], "", 1)
	}

	for _, match := range backtickPattern.FindAllStringSubmatch(stripped, -1) {
		candidate := strings.TrimSpace(match[1])
		if isKnownFile(candidate) {
			ctx.Files = append(ctx.Files, candidate)
		}
	}

	for _, match := range lineRefPattern.FindAllStringSubmatch(text, -1) {
		digits := match[1]
		if digits == "" {
			digits = match[2]
		}
		if n, err := strconv.Atoi(digits); err == nil {
			ctx.LineNumbers = append(ctx.LineNumbers, n)
		}
	}

	return ctx
}

func isKnownFile(s string) bool {
	if strings.ContainsAny(s, " \t") {
		return false
	}
	dot := strings.LastIndex(s, ".")
	if dot < 0 {
		return false
	}
	return knownExtensions[strings.ToLower(s[dot:])]
}
