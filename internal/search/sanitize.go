package search

import (
	"strings"
	"unicode/utf8"
)

// Sanitize rewrites a free-form query so FTS5 reads it as literal text.
// A query holding any character outside FTS5 barewords, or the words AND,
// OR or NOT in any case, is wrapped in double quotes with embedded quotes
// doubled, making it a single phrase. Other queries pass through unchanged.
func Sanitize(q string) string {
	if !needsQuoting(q) {
		return q
	}
	return `"` + strings.ReplaceAll(q, `"`, `""`) + `"`
}

func needsQuoting(q string) bool {
	for _, r := range q {
		if !isBareword(r) && r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return true
		}
	}
	for _, w := range strings.Fields(q) {
		switch strings.ToUpper(w) {
		case "AND", "OR", "NOT":
			return true
		}
	}
	return false
}

// isBareword reports whether FTS5 accepts r inside an unquoted term.
func isBareword(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
		r == '_' || r >= utf8.RuneSelf
}
