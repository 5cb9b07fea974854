package search

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

const batchSize = 500

// Store persists documents in SQLite and keeps the FTS5 index in step with
// them. Writes are serialised; reads run concurrently against committed
// WAL snapshots.
type Store struct {
	mu  sync.Mutex
	db  *sql.DB
	now func() time.Time
}

var _ Indexer = (*Store)(nil)

// Open opens (creating if needed) the store at path.
func Open(path string) (*Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert inserts doc or replaces every field of the document stored under
// the same path, keeping its created_at and row identity. The row and its
// index entry change in one transaction.
func (s *Store) Upsert(ctx context.Context, doc Document) error {
	return s.UpsertBatch(ctx, []Document{doc})
}

// UpsertBatch upserts docs, committing every batchSize documents. Each
// document is applied atomically; a failure aborts the current batch.
func (s *Store) UpsertBatch(ctx context.Context, docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for start := 0; start < len(docs); start += batchSize {
		end := min(start+batchSize, len(docs))
		err := s.inTx(ctx, func(tx *sql.Tx) error {
			for _, doc := range docs[start:end] {
				if err := s.upsert(ctx, tx, doc); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// indexed holds the column values an FTS5 'delete' must be given: exactly
// those that were indexed for the row.
type indexed struct {
	id          int64
	title       string
	description sql.NullString
	content     string
}

func lookup(ctx context.Context, tx *sql.Tx, path string) (indexed, bool, error) {
	var row indexed
	err := tx.QueryRowContext(ctx,
		`SELECT id, title, description, content FROM documents WHERE path = ?`, path,
	).Scan(&row.id, &row.title, &row.description, &row.content)
	if errors.Is(err, sql.ErrNoRows) {
		return indexed{}, false, nil
	}
	if err != nil {
		return indexed{}, false, fmt.Errorf("look up document %s: %w", path, err)
	}
	return row, true, nil
}

func unindex(ctx context.Context, tx *sql.Tx, row indexed) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO documents_fts(documents_fts, rowid, title, description, content) VALUES ('delete', ?, ?, ?, ?)`,
		row.id, row.title, row.description, row.content)
	if err != nil {
		return fmt.Errorf("%w: remove index entry %d: %w", ErrIndexOutOfSync, row.id, err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *Store) upsert(ctx context.Context, tx *sql.Tx, doc Document) error {
	if doc.Path == "" {
		return errors.New("upsert: document path is empty")
	}
	now := s.now().UTC().Format(time.RFC3339Nano)
	desc := nullString(doc.Description)

	old, exists, err := lookup(ctx, tx, doc.Path)
	if err != nil {
		return err
	}

	id := old.id
	if exists {
		if err := unindex(ctx, tx, old); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE documents SET title = ?, description = ?, section = ?, url = ?, content = ?, checksum = ?, updated_at = ? WHERE id = ?`,
			doc.Title, desc, doc.Section, doc.URL, doc.Content, doc.Checksum, now, id)
		if err != nil {
			return fmt.Errorf("update document %s: %w", doc.Path, err)
		}
	} else {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO documents (path, title, description, section, url, content, checksum, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			doc.Path, doc.Title, desc, doc.Section, doc.URL, doc.Content, doc.Checksum, now, now)
		if err != nil {
			return fmt.Errorf("insert document %s: %w", doc.Path, err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("insert document %s: %w", doc.Path, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents_fts(rowid, title, description, content) VALUES (?, ?, ?, ?)`,
		id, doc.Title, desc, doc.Content)
	if err != nil {
		return fmt.Errorf("%w: index document %s: %w", ErrIndexOutOfSync, doc.Path, err)
	}
	return nil
}

// Get returns the document stored under path. ok is false when there is
// none.
func (s *Store) Get(ctx context.Context, path string) (doc Document, ok bool, err error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT path, title, description, section, url, content, checksum, created_at, updated_at FROM documents WHERE path = ?`, path)
	doc, err = scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, fmt.Errorf("get document %s: %w", path, err)
	}
	return doc, true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (Document, error) {
	var (
		doc              Document
		desc             sql.NullString
		created, updated string
	)
	if err := row.Scan(&doc.Path, &doc.Title, &desc, &doc.Section, &doc.URL, &doc.Content, &doc.Checksum, &created, &updated); err != nil {
		return Document{}, err
	}
	doc.Description = desc.String
	var err error
	if doc.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Document{}, fmt.Errorf("parse created_at: %w", err)
	}
	if doc.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return Document{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return doc, nil
}

// Delete removes the document stored under path and its index entry.
// It reports whether a document was removed.
func (s *Store) Delete(ctx context.Context, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		old, exists, err := lookup(ctx, tx, path)
		if err != nil || !exists {
			return err
		}
		if err := unindex(ctx, tx, old); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, old.id); err != nil {
			return fmt.Errorf("delete document %s: %w", path, err)
		}
		removed = true
		return nil
	})
	return removed, err
}

// DeleteAll removes every document and clears the index.
func (s *Store) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents`); err != nil {
			return fmt.Errorf("delete documents: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO documents_fts(documents_fts) VALUES ('delete-all')`); err != nil {
			return fmt.Errorf("%w: clear index: %w", ErrIndexOutOfSync, err)
		}
		return nil
	})
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// Sections returns the document count per section, ordered by name.
func (s *Store) Sections(ctx context.Context) ([]SectionCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT section, COUNT(*) FROM documents GROUP BY section ORDER BY section`)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sections := make([]SectionCount, 0)
	for rows.Next() {
		var sc SectionCount
		if err := rows.Scan(&sc.Section, &sc.Count); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		sections = append(sections, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sections: %w", err)
	}
	return sections, nil
}

// List returns every document's path, section, URL, checksum and last
// update, ordered by path.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path, section, url, checksum, updated_at FROM documents ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			updated string
		)
		if err := rows.Scan(&e.Path, &e.Section, &e.URL, &e.Checksum, &updated); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return entries, nil
}

// Verify checks the index against the documents table.
func (s *Store) Verify(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO documents_fts(documents_fts, rank) VALUES ('integrity-check', 1)`)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIndexOutOfSync, err)
	}
	return nil
}

// Optimize merges the index b-trees. It is worth running after large
// ingests.
func (s *Store) Optimize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `INSERT INTO documents_fts(documents_fts) VALUES ('optimize')`); err != nil {
		return fmt.Errorf("optimize index: %w", err)
	}
	return nil
}
