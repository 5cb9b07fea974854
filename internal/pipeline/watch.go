package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// Watch keeps the index in step with SourceDir until ctx is done. Created
// or written source files are re-extracted, removed ones are deleted.
// Events are batched until Debounce passes without a new one.
func (r *Runner) Watch(ctx context.Context) error {
	if r.SourceDir == "" || r.Extractor == nil || r.Indexer == nil {
		return errors.New("pipeline runner missing dependencies")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := addWatches(watcher, r.SourceDir); err != nil {
		return err
	}

	debounce := r.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	log := r.logger().With("watch", r.SourceDir)
	log.Info("watching sources")

	pending := make(map[string]struct{})
	timer := time.NewTimer(debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			r.queueEvent(watcher, log, ev, pending)
			if len(pending) > 0 {
				timer.Reset(debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", "error", err)
		case <-timer.C:
			if err := r.applyChanges(ctx, log, pending); err != nil {
				return err
			}
			clear(pending)
		}
	}
}

func addWatches(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (r *Runner) queueEvent(watcher *fsnotify.Watcher, log *slog.Logger, ev fsnotify.Event, pending map[string]struct{}) {
	if isHidden(filepath.Base(ev.Name)) {
		return
	}

	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			// Files may land in a new directory before it is watched.
			if err := addWatches(watcher, ev.Name); err != nil {
				log.Warn("watch new directory", "path", ev.Name, "error", err)
			}
			files, err := FindSources(ev.Name, r.Extractor.Paths.SourceExts...)
			if err != nil {
				log.Warn("scan new directory", "path", ev.Name, "error", err)
				return
			}
			for _, f := range files {
				pending[f] = struct{}{}
			}
			return
		}
		if r.Extractor.Paths.IsSource(ev.Name) {
			pending[ev.Name] = struct{}{}
		}
	case ev.Has(fsnotify.Write):
		if r.Extractor.Paths.IsSource(ev.Name) {
			pending[ev.Name] = struct{}{}
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		// A vanished directory takes its documents with it, so
		// non-source names are queued too.
		pending[ev.Name] = struct{}{}
	}
}

func (r *Runner) applyChanges(ctx context.Context, log *slog.Logger, pending map[string]struct{}) error {
	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	for _, p := range paths {
		info, err := os.Stat(p)
		switch {
		case err == nil && info.Mode().IsRegular():
			if err := r.processFile(ctx, log, p, nil); err != nil {
				return err
			}
		case err == nil:
			// Directories are handled when they are created.
		case os.IsNotExist(err):
			if err := r.removePath(ctx, log, p); err != nil {
				return err
			}
		default:
			log.Warn("stat changed path", "path", p, "error", err)
		}
	}

	log.Info("applied changes", "paths", len(paths))
	r.generateSitemap(ctx, log)
	return nil
}

// removePath deletes the document of a removed source file, or every
// document below a removed directory.
func (r *Runner) removePath(ctx context.Context, log *slog.Logger, p string) error {
	rel, err := RelativePath(r.SourceDir, p)
	if err != nil {
		return nil
	}
	if r.Extractor.Paths.IsSource(p) {
		return r.removeDocument(ctx, log, rel)
	}

	entries, err := r.Indexer.List(ctx)
	if err != nil {
		return fmt.Errorf("list indexed documents: %w", err)
	}
	prefix := rel + "/"
	for _, e := range entries {
		if strings.HasPrefix(e.Path, prefix) {
			if err := r.removeDocument(ctx, log, e.Path); err != nil {
				return err
			}
		}
	}
	return nil
}
