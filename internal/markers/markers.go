// Package markers parses the file-change markers both execution backends
// emit in their output: "Modified:", "Created:", and "Updated:" line
// prefixes followed by a path.
package markers

import (
	"bufio"
	"strings"
)

var changePrefixes = []string{"Modified:", "Created:", "Updated:"}

// ParseChangedFiles scans output line by line and collects the paths named
// by change markers, preserving first-seen order and dropping duplicates.
func ParseChangedFiles(output string) []string {
	var files []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		for _, prefix := range changePrefixes {
			if !strings.HasPrefix(line, prefix) {
				continue
			}
			path := strings.TrimSpace(strings.TrimPrefix(line, prefix))
			if path != "" && !seen[path] {
				seen[path] = true
				files = append(files, path)
			}
			break
		}
	}

	return files
}
