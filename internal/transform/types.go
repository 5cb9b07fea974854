// Package transform turns a parsed reStructuredText tree into the fields
// stored for a document: title, description and flattened search text.
package transform

// Metadata holds the title and description found in a document.
type Metadata struct {
	Title       string
	Description string // empty when no paragraph qualifies
}
