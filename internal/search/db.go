package search

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// schema is idempotent so a store can be reopened between runs. The FTS5
// table uses external content: every write to it is issued explicitly by
// Store in the same transaction as the row it mirrors.
const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	description TEXT,
	section TEXT NOT NULL,
	url TEXT NOT NULL,
	content TEXT NOT NULL,
	checksum TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_section ON documents(section);

CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
	title, description, content,
	content='documents',
	content_rowid='id',
	tokenize='porter unicode61'
);
`

// dsnParams are applied to every connection in the pool. _txlock=immediate
// makes BEGIN take the write lock so concurrent writers queue on
// busy_timeout instead of failing on lock upgrade.
const dsnParams = "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"

// migrate brings a store created before the checksum column existed up to
// the current schema.
func migrate(db *sql.DB) error {
	rows, err := db.Query(`SELECT name FROM pragma_table_info('documents')`)
	if err != nil {
		return fmt.Errorf("inspect schema: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("inspect schema: %w", err)
		}
		columns[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect schema: %w", err)
	}
	_ = rows.Close()

	if !columns["checksum"] {
		if _, err := db.Exec(`ALTER TABLE documents ADD COLUMN checksum TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("add checksum column: %w", err)
		}
	}
	return nil
}

func openDB(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open search db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open search db: %w", err)
	}
	return db, nil
}
