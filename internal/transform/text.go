package transform

import (
	"strings"

	"github.com/canonical/docsearch/internal/rst"
)

// ExtractText flattens the prose of doc into one string, in document order.
// Literal blocks and comments are skipped along with everything below them.
func ExtractText(doc *rst.Node) string {
	var parts []string
	rst.Walk(doc, func(n *rst.Node, entering bool) rst.WalkStatus {
		if !entering {
			return rst.WalkContinue
		}
		switch n.Kind {
		case rst.KindLiteralBlock, rst.KindComment:
			return rst.WalkSkipChildren
		case rst.KindText:
			if s := strings.TrimSpace(n.Value); s != "" {
				parts = append(parts, s)
			}
		}
		return rst.WalkContinue
	})
	return strings.Join(parts, " ")
}
