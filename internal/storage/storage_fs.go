// Package storage writes ingest artefacts (sitemaps and failure logs)
// below a root directory.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type FSStorage struct {
	Root string
}

func NewFSStorage(root string) *FSStorage {
	return &FSStorage{Root: root}
}

// WriteFile replaces destPath (relative to Root) with content.
func (s *FSStorage) WriteFile(ctx context.Context, destPath string, content []byte) error {
	return s.writeFile(destPath, content)
}

// AppendLine appends line and a newline to destPath, creating it if needed.
func (s *FSStorage) AppendLine(ctx context.Context, destPath string, line string) error {
	fullPath := s.fullPath(destPath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.OpenFile(fullPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	if _, err := fmt.Fprintln(f, strings.TrimRight(line, "\n")); err != nil {
		_ = f.Close()
		return fmt.Errorf("append: %w", err)
	}
	return f.Close()
}

func (s *FSStorage) fullPath(destPath string) string {
	return filepath.Join(s.Root, filepath.FromSlash(destPath))
}

func (s *FSStorage) writeFile(destPath string, content []byte) error {
	return s.writeFileAbsolute(s.fullPath(destPath), content)
}

func (s *FSStorage) writeFileAbsolute(fullPath string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	// Remove any existing file or symlink so os.WriteFile does not
	// follow a stale symlink into the source tree.
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing: %w", err)
	}
	if err := os.WriteFile(fullPath, content, 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}
