// Package rst parses reStructuredText source into a typed node tree.
//
// The parser covers the subset of the markup that documentation sites use in
// practice: section titles, paragraphs, literal and doctest blocks, lists,
// field lists and docinfo, tables, block quotes, line blocks, explicit markup
// (directives, comments, targets, footnotes, substitutions) and the common
// inline constructs. Diagnostics that docutils would report as warnings are
// swallowed; recoverable constructs degrade to paragraphs or literal blocks.
package rst

import "strings"

// Kind identifies the type of a Node.
type Kind int

const (
	KindDocument Kind = iota
	KindSection
	KindTitle
	KindParagraph
	KindLiteralBlock
	KindComment
	KindDocinfo
	KindFieldList
	KindField
	KindFieldName
	KindFieldBody
	KindTable
	KindRow
	KindEntry
	KindBulletList
	KindEnumeratedList
	KindListItem
	KindDefinitionList
	KindDefinitionListItem
	KindTerm
	KindDefinition
	KindBlockQuote
	KindLineBlock
	KindLine
	KindDirective
	KindFootnote
	KindTarget
	KindSubstitutionDefinition
	KindTransition
	KindEmphasis
	KindStrong
	KindLiteral
	KindRole
	KindReference
	KindText
)

var kindNames = [...]string{
	KindDocument:               "document",
	KindSection:                "section",
	KindTitle:                  "title",
	KindParagraph:              "paragraph",
	KindLiteralBlock:           "literal_block",
	KindComment:                "comment",
	KindDocinfo:                "docinfo",
	KindFieldList:              "field_list",
	KindField:                  "field",
	KindFieldName:              "field_name",
	KindFieldBody:              "field_body",
	KindTable:                  "table",
	KindRow:                    "row",
	KindEntry:                  "entry",
	KindBulletList:             "bullet_list",
	KindEnumeratedList:         "enumerated_list",
	KindListItem:               "list_item",
	KindDefinitionList:         "definition_list",
	KindDefinitionListItem:     "definition_list_item",
	KindTerm:                   "term",
	KindDefinition:             "definition",
	KindBlockQuote:             "block_quote",
	KindLineBlock:              "line_block",
	KindLine:                   "line",
	KindDirective:              "directive",
	KindFootnote:               "footnote",
	KindTarget:                 "target",
	KindSubstitutionDefinition: "substitution_definition",
	KindTransition:             "transition",
	KindEmphasis:               "emphasis",
	KindStrong:                 "strong",
	KindLiteral:                "literal",
	KindRole:                   "role",
	KindReference:              "reference",
	KindText:                   "#text",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Node is one element of a parsed document. Text runs are leaves of kind
// KindText carrying their content in Value; every other kind holds its
// content as children.
type Node struct {
	Kind     Kind
	Value    string // text of a KindText node
	Name     string // directive, role or field name
	Args     string // directive arguments
	Children []*Node

	// adornment style and source line of a section title while sections
	// are being built.
	style string
	line  int
}

func newText(s string) *Node {
	return &Node{Kind: KindText, Value: s}
}

func (n *Node) append(children ...*Node) *Node {
	n.Children = append(n.Children, children...)
	return n
}

// Text returns the concatenated text of all KindText descendants.
func (n *Node) Text() string {
	var b strings.Builder
	Walk(n, func(c *Node, entering bool) WalkStatus {
		if entering && c.Kind == KindText {
			b.WriteString(c.Value)
		}
		return WalkContinue
	})
	return b.String()
}

// WalkStatus controls the traversal performed by Walk.
type WalkStatus int

const (
	// WalkContinue descends into the children of the current node.
	WalkContinue WalkStatus = iota
	// WalkSkipChildren leaves the children of the current node unvisited.
	WalkSkipChildren
	// WalkStop ends the traversal.
	WalkStop
)

// Walker is called once when a node is entered and once when it is left.
type Walker func(n *Node, entering bool) WalkStatus

// Walk traverses the tree rooted at n in document order.
func Walk(n *Node, fn Walker) {
	walk(n, fn)
}

func walk(n *Node, fn Walker) WalkStatus {
	status := fn(n, true)
	if status == WalkStop {
		return WalkStop
	}
	if status != WalkSkipChildren {
		for _, c := range n.Children {
			if walk(c, fn) == WalkStop {
				return WalkStop
			}
		}
	}
	if fn(n, false) == WalkStop {
		return WalkStop
	}
	return WalkContinue
}
