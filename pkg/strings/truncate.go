// Package strings holds display helpers for terminal and log output.
package strings

import (
	"strings"
)

// MinTruncateLen is the smallest maxLen Truncate accepts. Smaller values
// are raised to it so there is room for one character plus "...".
const MinTruncateLen = 4

// Truncate returns s on a single line, shortened to at most maxLen runes.
// Runs of whitespace, including newlines and tabs, become one space.
// A shortened result ends in "...".
func Truncate(s string, maxLen int) string {
	if maxLen < MinTruncateLen {
		maxLen = MinTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}

// Abbreviate keeps the first n runes of an identifier followed by "...".
// Identifiers of at most n runes are returned unchanged.
func Abbreviate(id string, n int) string {
	if n < 0 {
		n = 0
	}
	runes := []rune(id)
	if len(runes) <= n {
		return id
	}
	return string(runes[:n]) + "..."
}
