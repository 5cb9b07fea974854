package transform

import "github.com/canonical/docsearch/internal/rst"

// ExtractMetadata walks doc once. The first title becomes Title and the
// first paragraph outside a docinfo block becomes Description.
func ExtractMetadata(doc *rst.Node) Metadata {
	var (
		m                   Metadata
		haveTitle, haveDesc bool
		inDocinfo           int
	)
	rst.Walk(doc, func(n *rst.Node, entering bool) rst.WalkStatus {
		switch n.Kind {
		case rst.KindDocinfo:
			if entering {
				inDocinfo++
			} else {
				inDocinfo--
			}
		case rst.KindTitle:
			if entering && !haveTitle {
				m.Title = collapseWhitespace(n.Text())
				haveTitle = true
			}
		case rst.KindParagraph:
			if entering && !haveDesc && inDocinfo == 0 {
				m.Description = collapseWhitespace(n.Text())
				haveDesc = true
			}
		}
		if haveTitle && haveDesc {
			return rst.WalkStop
		}
		return rst.WalkContinue
	})
	return m
}
