package search

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidLimit is returned by Search when the limit is below one.
	ErrInvalidLimit = errors.New("limit must be at least 1")
	// ErrIndexOutOfSync reports that the full-text index no longer mirrors
	// the documents table, or that an index write failed mid-upsert.
	ErrIndexOutOfSync = errors.New("search index out of sync with documents")
)

// Indexer abstracts document writes so the pipeline package does not
// depend on a specific store.
type Indexer interface {
	Upsert(ctx context.Context, doc Document) error
	Delete(ctx context.Context, path string) (bool, error)
	DeleteAll(ctx context.Context) error
	List(ctx context.Context) ([]Entry, error)
	Optimize(ctx context.Context) error
	Verify(ctx context.Context) error
}

// Document is one indexed documentation page, keyed by Path.
type Document struct {
	Path        string    `json:"path"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Section     string    `json:"section"`
	URL         string    `json:"url"`
	Content     string    `json:"content"`
	Checksum    string    `json:"-"` // fingerprint of the source it was extracted from
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SectionCount is the number of documents filed under one section.
type SectionCount struct {
	Section string `json:"section"`
	Count   int    `json:"count"`
}

// Entry is the listing form of a document.
type Entry struct {
	Path      string
	Section   string
	URL       string
	Checksum  string
	UpdatedAt time.Time
}
