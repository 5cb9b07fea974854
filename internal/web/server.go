package web

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/canonical/docsearch/internal/config"
	"github.com/canonical/docsearch/internal/metrics"
	"github.com/canonical/docsearch/internal/search"
)

const shutdownTimeout = 10 * time.Second

// Backend is the read side of the document store.
type Backend interface {
	search.Searcher
	Get(ctx context.Context, path string) (search.Document, bool, error)
	Count(ctx context.Context) (int, error)
	Sections(ctx context.Context) ([]search.SectionCount, error)
}

type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   Backend
	metrics *metrics.Registry
}

type searchResponse struct {
	Query   string          `json:"query"`
	Section string          `json:"section,omitempty"`
	Total   int             `json:"total"`
	Results []search.Result `json:"results"`
}

type statsResponse struct {
	Documents int                   `json:"documents"`
	Sections  []search.SectionCount `json:"sections"`
}

// NewServer serves store over HTTP. reg may be nil, in which case no
// metrics are recorded or exposed.
func NewServer(cfg *config.Config, store Backend, reg *metrics.Registry, logger *slog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		metrics: reg,
	}
}

// Handler returns the full middleware-wrapped route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /robots.txt", s.handleRobotsTxt)
	mux.HandleFunc("GET /llms.txt", s.handleLlmsTxt)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/documents", s.handleDocument)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	if s.cfg.OutputDir != "" {
		sitemapDir := filepath.Join(s.cfg.OutputDir, "sitemaps")
		mux.Handle("GET /sitemaps/", http.StripPrefix("/sitemaps/", http.FileServer(http.Dir(sitemapDir))))
	}
	return s.logRequests(gzipHandler(mux))
}

// ListenAndServe serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	section := r.URL.Query().Get("section")
	limit, err := s.parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	results, err := s.store.Search(r.Context(), query, search.Options{Section: section, Limit: limit})
	if s.metrics != nil {
		s.metrics.RecordSearch(len(results), time.Since(start), err)
	}
	if err != nil {
		if errors.Is(err, search.ErrInvalidLimit) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("search failed", "query", query, "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Query:   query,
		Section: section,
		Total:   len(results),
		Results: results,
	})
}

// parseLimit reads the limit parameter, defaulting to the configured
// limit and capping at the configured maximum.
func (s *Server) parseLimit(r *http.Request) (int, error) {
	value := r.URL.Query().Get("limit")
	if value == "" {
		return s.cfg.SearchLimit, nil
	}
	limit, err := strconv.Atoi(value)
	if err != nil || limit < 1 {
		return 0, fmt.Errorf("invalid limit %q: must be a positive integer", value)
	}
	if s.cfg.MaxLimit > 0 && limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}
	return limit, nil
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "missing path parameter")
		return
	}

	doc, ok, err := s.store.Get(r.Context(), path)
	if err != nil {
		s.logger.Error("get document failed", "path", path, "error", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.Count(r.Context())
	if err != nil {
		s.logger.Error("count failed", "error", err)
		writeError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	sections, err := s.store.Sections(r.Context())
	if err != nil {
		s.logger.Error("sections failed", "error", err)
		writeError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	if s.metrics != nil {
		s.metrics.SetDocuments(count)
	}
	writeJSON(w, http.StatusOK, statsResponse{Documents: count, Sections: sections})
}

func (s *Server) handleRobotsTxt(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, `User-agent: *
Allow: /
Disallow: /api/
Disallow: /healthz
Disallow: /metrics

Sitemap: %s/sitemaps/sitemap-index.xml
`, s.cfg.SiteURL())
}

func (s *Server) handleLlmsTxt(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, `# Documentation Search

> Full-text search over the documentation published at %[1]s.

## API

- GET /api/search?q={query}&section={section}&limit={n}
  Returns JSON with fields: query, section, total, results (array of {path, title, url, section, snippet, score}).
  Results are ordered by relevance; snippets mark matches with <mark></mark>.
  limit defaults to %[2]d and is capped at %[3]d.
- GET /api/documents?path={path}
  Returns one document: path, title, description, section, url, content, created_at, updated_at.
- GET /api/stats
  Returns the document count and the number of documents per section.
`, s.cfg.SiteURL(), s.cfg.SearchLimit, s.cfg.MaxLimit)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.statusCode = http.StatusOK
		rw.written = true
	}
	return rw.ResponseWriter.Write(b)
}

// Flush implements http.Flusher, delegating to the underlying writer.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		duration := time.Since(start)
		s.logger.Info("request",
			"method", r.Method,
			"path", filepath.Clean(r.URL.Path),
			"status", rw.statusCode,
			"duration", duration,
		)
		if s.metrics != nil {
			s.metrics.RecordHTTPRequest(r.Method, routeLabel(r.URL.Path), strconv.Itoa(rw.statusCode), duration)
		}
	})
}

// routeLabel bounds the path label cardinality of request metrics.
func routeLabel(path string) string {
	switch path {
	case "/healthz", "/robots.txt", "/llms.txt", "/api/search", "/api/documents", "/api/stats", "/metrics":
		return path
	}
	if strings.HasPrefix(path, "/sitemaps/") {
		return "/sitemaps/"
	}
	return "other"
}

// gzipResponseWriter conditionally compresses responses for compressible content types.
type gzipResponseWriter struct {
	http.ResponseWriter
	gw      *gzip.Writer
	sniffed bool
}

func (grw *gzipResponseWriter) WriteHeader(code int) {
	if code != http.StatusNotModified {
		grw.sniff()
	}
	grw.ResponseWriter.WriteHeader(code)
}

func (grw *gzipResponseWriter) Write(b []byte) (int, error) {
	grw.sniff()
	if grw.gw != nil {
		return grw.gw.Write(b)
	}
	return grw.ResponseWriter.Write(b)
}

func (grw *gzipResponseWriter) sniff() {
	if grw.sniffed {
		return
	}
	grw.sniffed = true

	if grw.ResponseWriter.Header().Get("Content-Encoding") != "" {
		// Already encoded by the wrapped handler.
		grw.gw = nil
		return
	}
	ct := grw.ResponseWriter.Header().Get("Content-Type")
	if strings.HasPrefix(ct, "text/") ||
		strings.HasPrefix(ct, "application/json") ||
		strings.HasPrefix(ct, "application/xml") {
		grw.ResponseWriter.Header().Set("Content-Encoding", "gzip")
		grw.ResponseWriter.Header().Del("Content-Length")
	} else {
		grw.gw = nil
	}
}

func (grw *gzipResponseWriter) Flush() {
	if grw.gw != nil {
		_ = grw.gw.Flush()
	}
	if f, ok := grw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func gzipHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		gw := gzip.NewWriter(w)
		grw := &gzipResponseWriter{ResponseWriter: w, gw: gw}
		next.ServeHTTP(grw, r)
		if grw.gw != nil {
			_ = grw.gw.Close()
		}
	})
}
