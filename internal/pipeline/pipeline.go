package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/canonical/docsearch/internal/logging"
	"github.com/canonical/docsearch/internal/metrics"
	"github.com/canonical/docsearch/internal/search"
	"github.com/canonical/docsearch/internal/sitemap"
	"github.com/canonical/docsearch/internal/storage"
)

const defaultWorkers = 4

// Runner indexes every source file under SourceDir. A file that cannot be
// read or extracted is recorded as a failure and skipped; a store error
// aborts the run.
type Runner struct {
	SourceDir        string
	Extractor        *Extractor
	Indexer          search.Indexer
	Storage          *storage.FSStorage // failure log, optional
	SitemapGenerator *sitemap.SitemapGenerator
	Metrics          *metrics.Registry
	Logger           *slog.Logger
	FailuresPath     string // relative to Storage.Root
	Rebuild          bool
	Workers          int
	Debounce         time.Duration

	mu     sync.Mutex
	status RunStatus
}

// Run performs one ingest. With Rebuild set the index is cleared first and
// every file is re-extracted; otherwise files whose indexed checksum is
// unchanged are skipped and documents whose source is gone are deleted.
// The run fails if the index no longer matches the stored documents.
func (r *Runner) Run(ctx context.Context) (RunStatus, error) {
	if r.SourceDir == "" || r.Extractor == nil || r.Indexer == nil {
		return RunStatus{}, errors.New("pipeline runner missing dependencies")
	}

	runID := uuid.NewString()
	r.update(func(s *RunStatus) { *s = RunStatus{RunID: runID} })
	log := r.logger().With("run", runID)

	if r.Storage != nil && r.FailuresPath != "" {
		// Created up front so it can be tailed during the run.
		if err := r.Storage.WriteFile(ctx, r.FailuresPath, nil); err != nil {
			return r.snapshot(), fmt.Errorf("create failure log: %w", err)
		}
	}

	if r.Rebuild {
		log.Info("clearing index")
		if err := r.Indexer.DeleteAll(ctx); err != nil {
			return r.snapshot(), fmt.Errorf("clear index: %w", err)
		}
	}

	known, err := r.indexedChecksums(ctx)
	if err != nil {
		return r.snapshot(), err
	}

	files, err := FindSources(r.SourceDir, r.Extractor.Paths.SourceExts...)
	if err != nil {
		return r.snapshot(), err
	}
	r.update(func(s *RunStatus) { s.Total = len(files) })
	log.Info("indexing sources", "root", r.SourceDir, "files", len(files), "rebuild", r.Rebuild)

	if err := r.processAll(ctx, log, files, known); err != nil {
		return r.snapshot(), err
	}

	if !r.Rebuild {
		if err := r.prune(ctx, log, files); err != nil {
			return r.snapshot(), err
		}
	}

	if err := r.Indexer.Optimize(ctx); err != nil {
		return r.snapshot(), fmt.Errorf("optimize index: %w", err)
	}
	if err := r.Indexer.Verify(ctx); err != nil {
		return r.snapshot(), fmt.Errorf("verify index: %w", err)
	}

	r.generateSitemap(ctx, log)

	s := r.snapshot()
	if r.Metrics != nil {
		r.Metrics.RecordIngest("indexed", s.Indexed)
		r.Metrics.RecordIngest("skipped", s.Skipped)
		r.Metrics.RecordIngest("failed", s.Failed)
		r.Metrics.RecordIngest("deleted", s.Deleted)
	}
	if s.Failed > 0 {
		log.Warn("ingest completed with failures", "count", s.Failed)
	}
	log.Info("ingest done", "total", s.Total, "indexed", s.Indexed, "skipped", s.Skipped, "failed", s.Failed, "deleted", s.Deleted)
	return s, nil
}

// indexedChecksums maps every indexed path to the checksum it was indexed
// with. It is empty on a rebuild.
func (r *Runner) indexedChecksums(ctx context.Context) (map[string]string, error) {
	known := make(map[string]string)
	if r.Rebuild {
		return known, nil
	}
	entries, err := r.Indexer.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list indexed documents: %w", err)
	}
	for _, e := range entries {
		known[e.Path] = e.Checksum
	}
	return known, nil
}

func (r *Runner) processAll(parent context.Context, log *slog.Logger, files []string, known map[string]string) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	workers := r.Workers
	if workers < 1 {
		workers = defaultWorkers
	}

	jobs := make(chan string)
	var wg sync.WaitGroup
	var firstErr error
	var errOnce sync.Once

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range jobs {
				if err := r.processFile(ctx, log, file, known); err != nil {
					errOnce.Do(func() {
						firstErr = err
						cancel()
					})
				}
			}
		}()
	}

send:
	for _, file := range files {
		select {
		case jobs <- file:
		case <-ctx.Done():
			break send
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return parent.Err()
}

// processFile indexes one source file, skipping it when known holds the
// same checksum for its path. A file that no longer extracts loses its
// previously indexed document. Only store errors are returned; everything
// else is recorded as a failure.
func (r *Runner) processFile(ctx context.Context, log *slog.Logger, file string, known map[string]string) error {
	rel, err := RelativePath(r.SourceDir, file)
	if err != nil {
		r.recordFailure(ctx, log, "resolve", file, err)
		return nil
	}

	raw, err := os.ReadFile(file)
	if err != nil {
		r.recordFailure(ctx, log, "read", rel, err)
		return nil
	}

	sum := r.checksum(raw)
	if prev, ok := known[rel]; ok && prev == sum {
		log.Debug("skipping unchanged source", "path", rel)
		r.update(func(s *RunStatus) { s.Skipped++ })
		return nil
	}

	doc, err := r.Extractor.Extract(raw, r.SourceDir, file)
	if err != nil {
		var ee *ExtractError
		if errors.As(err, &ee) {
			r.recordFailure(ctx, log, "extract", rel, ee.Err)
			return r.removeDocument(ctx, log, rel)
		}
		return err
	}

	doc.Checksum = sum
	if err := r.Indexer.Upsert(ctx, doc); err != nil {
		return fmt.Errorf("index %s: %w", rel, err)
	}

	log.Debug("indexed", "path", rel, "section", doc.Section)
	r.update(func(s *RunStatus) { s.Indexed++ })
	return nil
}

// prune deletes documents whose source file is no longer present.
func (r *Runner) prune(ctx context.Context, log *slog.Logger, files []string) error {
	present := make(map[string]struct{}, len(files))
	for _, file := range files {
		if rel, err := RelativePath(r.SourceDir, file); err == nil {
			present[rel] = struct{}{}
		}
	}

	entries, err := r.Indexer.List(ctx)
	if err != nil {
		return fmt.Errorf("list indexed documents: %w", err)
	}
	for _, e := range entries {
		if _, ok := present[e.Path]; ok {
			continue
		}
		if err := r.removeDocument(ctx, log, e.Path); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) removeDocument(ctx context.Context, log *slog.Logger, rel string) error {
	removed, err := r.Indexer.Delete(ctx, rel)
	if err != nil {
		return fmt.Errorf("delete %s: %w", rel, err)
	}
	if removed {
		log.Info("removed document", "path", rel)
		r.update(func(s *RunStatus) { s.Deleted++ })
	}
	return nil
}

func (r *Runner) generateSitemap(ctx context.Context, log *slog.Logger) {
	if r.SitemapGenerator == nil {
		return
	}
	if err := r.SitemapGenerator.Generate(ctx); err != nil {
		// Non-fatal: the index is already up to date.
		log.Error("sitemap generation failed", "error", err)
	}
}

func (r *Runner) recordFailure(ctx context.Context, log *slog.Logger, stage string, path string, err error) {
	message := strings.TrimSpace(fmt.Sprintf("%s %s: %v", stage, path, err))
	r.update(func(s *RunStatus) {
		s.Failures = append(s.Failures, message)
		s.Failed++
	})

	if r.Storage != nil && r.FailuresPath != "" {
		if ferr := r.Storage.AppendLine(ctx, r.FailuresPath, message); ferr != nil {
			log.Error("write failure log", "error", ferr)
		}
	}
	log.Warn("pipeline failure", "stage", stage, "path", path, "error", err)
}

func (r *Runner) update(fn func(s *RunStatus)) {
	r.mu.Lock()
	fn(&r.status)
	r.mu.Unlock()
}

func (r *Runner) snapshot() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.status
	s.Failures = append([]string(nil), r.status.Failures...)
	return s
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return logging.Discard()
}

// checksum fingerprints a source together with the resolver settings that
// shape its path, section and URL, so changing either re-extracts it.
func (r *Runner) checksum(raw []byte) string {
	p := r.Extractor.Paths
	h := sha256.New()
	for _, field := range []string{p.BaseURL, p.RootAlias, p.PublishExt, strings.Join(p.SourceExts, ",")} {
		h.Write([]byte(field))
		h.Write([]byte{0})
	}
	h.Write(raw)
	return hex.EncodeToString(h.Sum(nil))
}
