// Package suggest produces inline code completions for the relay.
package suggest

import (
	"context"
	"strings"
)

// Completer returns a completion for content at cursor. An empty string
// means there is nothing to suggest.
type Completer interface {
	Complete(ctx context.Context, content string, cursor int) (string, error)
}

// Disabled never suggests anything.
type Disabled struct{}

func (Disabled) Complete(context.Context, string, int) (string, error) { return "", nil }

const (
	linesBefore = 3
	linesAfter  = 2
)

// PromptContext returns the last three lines before cursor and the first two
// after it. cursor is a rune offset.
func PromptContext(content string, cursor int) string {
	runes := []rune(content)
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(runes) {
		cursor = len(runes)
	}

	before := strings.Split(string(runes[:cursor]), "\n")
	if len(before) > linesBefore {
		before = before[len(before)-linesBefore:]
	}
	after := strings.Split(string(runes[cursor:]), "\n")
	if len(after) > linesAfter {
		after = after[:linesAfter]
	}
	return strings.Join(append(before, after...), "\n")
}

// cleanCompletion strips markdown fences models like to add.
func cleanCompletion(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
