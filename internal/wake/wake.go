// Package wake extracts the command portion of a transcription when it is
// prefixed by the spoken wake word.
package wake

import (
	"fmt"
	"regexp"
	"strings"
)

// Gate matches a wake word followed by separator characters and captures the
// remainder as the command. Matching is case-insensitive and anchored to a
// word boundary, so "jobs report" does not trigger a wake word of "obs".
type Gate struct {
	re *regexp.Regexp
}

// NewGate compiles a gate for the given wake word.
func NewGate(word string) (*Gate, error) {
	if word == "" {
		return nil, fmt.Errorf("wake: word must not be empty")
	}
	re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(word) + `[\s,.:!?]+(.+)`)
	if err != nil {
		return nil, fmt.Errorf("wake: compile pattern for %q: %w", word, err)
	}
	return &Gate{re: re}, nil
}

// Extract returns the trimmed command following the wake word and true, or
// ("", false) when the text contains no wake word. Callers must not forward
// non-matching text any further.
func (g *Gate) Extract(text string) (string, bool) {
	m := g.re.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}
