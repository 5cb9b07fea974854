package transform

import (
	"regexp"
	"strings"
)

var (
	residualDirective = regexp.MustCompile(`\.\.\s+[\p{L}\p{N}_]+::[^\n]*\n(?:\s+[^\n]+\n)*`)
	residualRole      = regexp.MustCompile(":[\\p{L}\\p{N}_]+:`([^`]+)`")
	residualComment   = regexp.MustCompile(`\.\.\s+[^\n]+\n(?:\s+[^\n]+\n)*`)
)

// CleanContent strips markup that survived tree extraction and collapses
// whitespace. The steps run in a fixed order: directive blocks, roles,
// comment blocks, whitespace.
func CleanContent(s string) string {
	s = residualDirective.ReplaceAllString(s, "")
	s = residualRole.ReplaceAllString(s, "$1")
	s = residualComment.ReplaceAllString(s, "")
	return collapseWhitespace(s)
}

// collapseWhitespace replaces runs of whitespace (including newlines)
// with a single space.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
