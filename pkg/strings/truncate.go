// Package strings holds small text helpers for terminal output.
package strings

import (
	"strings"
)

// Column widths used by the CLI tables.
const (
	ErrorMaxLen       = 60
	DescriptionMaxLen = 50
)

// minLen leaves room for one rune plus the ellipsis.
const minLen = 4

// SingleLine collapses every run of whitespace, newlines included, into one space.
func SingleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate returns s on a single line, cut to at most maxLen runes with a
// trailing "..." when it was longer. maxLen below 4 is treated as 4.
func Truncate(s string, maxLen int) string {
	if maxLen < minLen {
		maxLen = minLen
	}
	runes := []rune(SingleLine(s))
	if len(runes) <= maxLen {
		return string(runes)
	}
	return string(runes[:maxLen-3]) + "..."
}
