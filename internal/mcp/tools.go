package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/canonical/docsearch/internal/search"
)

// SearchInput is the input schema for the search_docs tool.
type SearchInput struct {
	Query   string `json:"query" jsonschema:"the search query as plain words; punctuation and words like AND, OR or NOT are matched literally"`
	Section string `json:"section,omitempty" jsonschema:"restrict results to one documentation section, e.g. aws"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum number of results to return"`
}

// SearchOutput is the output schema for the search_docs tool.
type SearchOutput struct {
	Results []search.Result `json:"results"`
	Count   int             `json:"count"`
}

// DocumentInput is the input schema for the get_document tool.
type DocumentInput struct {
	Path string `json:"path" jsonschema:"the document path relative to the documentation root, as returned by search_docs"`
}

// DocumentOutput is the output schema for the get_document tool.
// Timestamps are RFC 3339 strings.
type DocumentOutput struct {
	Path        string `json:"path"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Section     string `json:"section"`
	URL         string `json:"url"`
	Content     string `json:"content"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func newDocumentOutput(doc search.Document) DocumentOutput {
	return DocumentOutput{
		Path:        doc.Path,
		Title:       doc.Title,
		Description: doc.Description,
		Section:     doc.Section,
		URL:         doc.URL,
		Content:     doc.Content,
		CreatedAt:   doc.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   doc.UpdatedAt.Format(time.RFC3339),
	}
}

// SectionsInput is the (empty) input schema for the list_sections tool.
type SectionsInput struct{}

// SectionsOutput is the output schema for the list_sections tool.
type SectionsOutput struct {
	Sections []search.SectionCount `json:"sections"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_docs",
		Description: "Full-text search over the indexed documentation, best matches first",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_document",
		Description: "Fetch the full text and metadata of one documentation page",
	}, s.handleGetDocument)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_sections",
		Description: "List documentation sections with their document counts",
	}, s.handleListSections)
}

func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, errors.New("query is required")
	}

	limit := input.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}
	limit = min(limit, s.maxLimit)

	results, err := s.store.Search(ctx, input.Query, search.Options{Section: input.Section, Limit: limit})
	if err != nil {
		s.logger.Error("search failed", "query", input.Query, "error", err)
		return nil, SearchOutput{}, fmt.Errorf("searching: %w", err)
	}
	return nil, SearchOutput{Results: results, Count: len(results)}, nil
}

func (s *Server) handleGetDocument(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input DocumentInput,
) (*mcp.CallToolResult, DocumentOutput, error) {
	if input.Path == "" {
		return nil, DocumentOutput{}, errors.New("path is required")
	}
	doc, ok, err := s.store.Get(ctx, input.Path)
	if err != nil {
		return nil, DocumentOutput{}, fmt.Errorf("getting document: %w", err)
	}
	if !ok {
		return nil, DocumentOutput{}, fmt.Errorf("document %q not found", input.Path)
	}
	return nil, newDocumentOutput(doc), nil
}

func (s *Server) handleListSections(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ SectionsInput,
) (*mcp.CallToolResult, SectionsOutput, error) {
	sections, err := s.store.Sections(ctx)
	if err != nil {
		return nil, SectionsOutput{}, fmt.Errorf("listing sections: %w", err)
	}
	return nil, SectionsOutput{Sections: sections}, nil
}
