// Package logutil prepares user-provided strings, such as terminal names,
// working directories and tmux session names, for the process log.
package logutil

import (
	"strings"
	"unicode"

	"github.com/charmbracelet/x/ansi"
)

// MaxValueLen is the longest sanitized value, in bytes, before truncation.
const MaxValueLen = 256

// SanitizeForLog returns s as a single log-safe line. Terminal escape
// sequences are stripped, line breaks and tabs become spaces, other
// control characters are dropped, and values longer than MaxValueLen are
// cut with a "..." marker.
func SanitizeForLog(s string) string {
	if strings.Contains(s, "\x1b") {
		s = ansi.Strip(s)
	}
	var b strings.Builder
	b.Grow(min(len(s), MaxValueLen+3))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			r = ' '
		case unicode.IsControl(r):
			continue
		}
		if b.Len()+len(string(r)) > MaxValueLen {
			b.WriteString("...")
			break
		}
		b.WriteRune(r)
	}
	return b.String()
}
