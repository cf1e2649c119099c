// Package history reads and writes the worker-compatible input history file.
//
// The format is append-only text: each entry is a header line
// "# <ISO-8601 timestamp>" followed by one or more "+"-prefixed content
// lines, one per line of the original prompt.
package history

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"
)

// Append durably appends one prompt to the history file at path, creating
// the file when missing. Multi-line prompts get each line independently
// prefixed with "+".
func Append(path, text string, now time.Time) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("history: open %s: %w", path, err)
	}
	defer f.Close()

	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(now.UTC().Format(time.RFC3339))
	b.WriteString("\n")
	for _, line := range strings.Split(text, "\n") {
		b.WriteString("+")
		b.WriteString(line)
		b.WriteString("\n")
	}
	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("history: append %s: %w", path, err)
	}
	return nil
}

// Load reads the history file and reconstructs prompts most-recent-first,
// embedded newlines preserved. A missing or unreadable file yields an empty
// history, never an error.
func Load(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var (
		entries []string
		current []string
		open    bool
	)
	flush := func() {
		if open {
			entries = append(entries, strings.Join(current, "\n"))
			current = current[:0]
			open = false
		}
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "# "):
			flush()
			open = true
		case strings.HasPrefix(line, "+"):
			if open {
				current = append(current, line[1:])
			}
		}
	}
	flush()

	// Most recent first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries
}
