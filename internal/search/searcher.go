package search

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// Column weights for bm25: title, description, content.
const (
	titleWeight       = 5.0
	descriptionWeight = 2.0
	contentWeight     = 1.0
)

// snippetTokens bounds the excerpt returned with each result.
const snippetTokens = 64

// Options narrow a search.
type Options struct {
	Section string // exact section match; empty means all sections
	Limit   int    // maximum number of results, at least 1
}

// Result is one ranked match.
type Result struct {
	Path    string  `json:"path"`
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Section string  `json:"section"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// Searcher runs ranked queries over indexed documents.
type Searcher interface {
	Search(ctx context.Context, query string, opts Options) ([]Result, error)
}

var _ Searcher = (*Store)(nil)

// Search returns the documents matching query, best first. Score is the
// magnitude of the weighted bm25 rank, so higher is more relevant. A query
// that matches nothing, or is blank, yields an empty slice.
func (s *Store) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	if opts.Limit < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLimit, opts.Limit)
	}
	results := make([]Result, 0)
	if strings.TrimSpace(query) == "" {
		return results, nil
	}

	stmt := fmt.Sprintf(`SELECT d.path, d.title, d.url, d.section,
		snippet(documents_fts, 2, '<mark>', '</mark>', '...', %d),
		bm25(documents_fts, %g, %g, %g) AS score
		FROM documents_fts
		JOIN documents d ON d.id = documents_fts.rowid
		WHERE documents_fts MATCH ?`,
		snippetTokens, titleWeight, descriptionWeight, contentWeight)
	args := []any{Sanitize(query)}
	if opts.Section != "" {
		stmt += ` AND d.section = ?`
		args = append(args, opts.Section)
	}
	stmt += ` ORDER BY score LIMIT ?`
	args = append(args, opts.Limit)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.Path, &r.Title, &r.URL, &r.Section, &r.Snippet, &r.Score); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Score = math.Abs(r.Score)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return results, nil
}
