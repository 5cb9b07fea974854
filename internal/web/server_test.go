package web

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/canonical/docsearch/internal/config"
	"github.com/canonical/docsearch/internal/metrics"
	"github.com/canonical/docsearch/internal/search"
)

func testServer(t *testing.T) (*Server, *search.Store) {
	t.Helper()
	dir := t.TempDir()

	sitemapDir := filepath.Join(dir, "sitemaps")
	if err := os.MkdirAll(sitemapDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sitemapDir, "sitemap-index.xml"), []byte(`<?xml version="1.0"?><sitemapindex/>`), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := search.Open(filepath.Join(dir, "search.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	docs := []search.Document{
		{Path: "aws/ec2.rst", Title: "EC2", Section: "aws", URL: "https://docs.example.com/aws/ec2.html", Content: "Filter instances by tag."},
		{Path: "azure/vm.rst", Title: "Virtual Machines", Section: "azure", URL: "https://docs.example.com/azure/vm.html", Content: "Filter machines by tag."},
		{Path: "index.rst", Title: "Welcome", Description: "Start here.", Section: "root", URL: "https://docs.example.com/index.html", Content: "Introduction."},
	}
	for _, d := range docs {
		if err := store.Upsert(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	cfg := &config.Config{
		Site:        "https://docs.example.com/",
		OutputDir:   dir,
		SearchLimit: 2,
		MaxLimit:    5,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(cfg, store, metrics.NewRegistry(), logger), store
}

func get(t *testing.T, srv *Server, target string) *http.Response {
	t.Helper()
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w.Result()
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHandleHealth(t *testing.T) {
	srv, _ := testServer(t)
	resp := get(t, srv, "/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body := decode[map[string]string](t, resp); body["status"] != "ok" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestHandleSearch(t *testing.T) {
	srv, _ := testServer(t)

	resp := get(t, srv, "/api/search?q=tag&section=azure")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decode[searchResponse](t, resp)
	if body.Total != 1 || body.Results[0].Path != "azure/vm.rst" {
		t.Fatalf("unexpected results: %+v", body)
	}
	if !strings.Contains(body.Results[0].Snippet, "<mark>") {
		t.Fatalf("expected highlighted snippet, got %q", body.Results[0].Snippet)
	}
}

func TestHandleSearchLimits(t *testing.T) {
	srv, _ := testServer(t)

	body := decode[searchResponse](t, get(t, srv, "/api/search?q=filter"))
	if body.Total != 2 {
		t.Fatalf("default limit not applied: %+v", body)
	}
	body = decode[searchResponse](t, get(t, srv, "/api/search?q=filter&limit=1"))
	if body.Total != 1 {
		t.Fatalf("limit not applied: %+v", body)
	}
	body = decode[searchResponse](t, get(t, srv, "/api/search?q=filter&limit=500"))
	if body.Total != 2 {
		t.Fatalf("capped limit returned %d results", body.Total)
	}

	for _, bad := range []string{"0", "-3", "ten"} {
		resp := get(t, srv, "/api/search?q=filter&limit="+bad)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("limit=%s: expected 400, got %d", bad, resp.StatusCode)
		}
	}
}

func TestHandleSearchOperatorQuery(t *testing.T) {
	srv, _ := testServer(t)
	resp := get(t, srv, "/api/search?q="+`tag:Owner%20AND%20(x`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decode[searchResponse](t, resp)
	if body.Results == nil {
		t.Fatal("results should be an empty list, not null")
	}
}

func TestHandleDocument(t *testing.T) {
	srv, _ := testServer(t)

	resp := get(t, srv, "/api/documents?path=index.rst")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	doc := decode[search.Document](t, resp)
	if doc.Title != "Welcome" || doc.Description != "Start here." {
		t.Fatalf("unexpected document: %+v", doc)
	}

	if resp := get(t, srv, "/api/documents?path=missing.rst"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if resp := get(t, srv, "/api/documents"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHandleStats(t *testing.T) {
	srv, _ := testServer(t)
	body := decode[statsResponse](t, get(t, srv, "/api/stats"))
	if body.Documents != 3 || len(body.Sections) != 3 {
		t.Fatalf("unexpected stats: %+v", body)
	}

	resp := get(t, srv, "/metrics")
	text, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(text), "docsearch_documents_total 3") {
		t.Fatalf("document gauge not exported:\n%s", text)
	}
	if !strings.Contains(string(text), `docsearch_http_requests_total{method="GET",path="/api/stats",status="200"} 1`) {
		t.Fatalf("request counter not exported:\n%s", text)
	}
}

func TestServesSitemaps(t *testing.T) {
	srv, _ := testServer(t)
	resp := get(t, srv, "/sitemaps/sitemap-index.xml")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestHandleRobotsTxt(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/robots.txt", nil)
	w := httptest.NewRecorder()
	srv.handleRobotsTxt(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	if resp.Header.Get("Content-Type") != "text/plain; charset=utf-8" {
		t.Errorf("unexpected content type: %s", resp.Header.Get("Content-Type"))
	}
	if !strings.Contains(text, "Disallow: /api/") {
		t.Error("missing Disallow /api/")
	}
	if !strings.Contains(text, "Sitemap: https://docs.example.com/sitemaps/sitemap-index.xml") {
		t.Errorf("missing or incorrect Sitemap line, got:\n%s", text)
	}
}

func TestHandleLlmsTxt(t *testing.T) {
	srv, _ := testServer(t)

	w := httptest.NewRecorder()
	srv.handleLlmsTxt(w, httptest.NewRequest(http.MethodGet, "/llms.txt", nil))

	text := w.Body.String()
	for _, want := range []string{"/api/search?q={query}", "defaults to 2", "capped at 5", "https://docs.example.com"} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in llms.txt:\n%s", want, text)
		}
	}
}

func TestLogRequestsStatus200(t *testing.T) {
	srv, _ := testServer(t)

	var buf bytes.Buffer
	srv.logger = slog.New(slog.NewTextHandler(&buf, nil))

	handler := srv.logRequests(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	logOutput := buf.String()
	if !strings.Contains(logOutput, "status=200") {
		t.Errorf("expected status=200 in log, got: %s", logOutput)
	}
	if !strings.Contains(logOutput, "duration=") {
		t.Errorf("expected duration in log, got: %s", logOutput)
	}
}

func TestLogRequestsStatus404(t *testing.T) {
	srv, _ := testServer(t)

	var buf bytes.Buffer
	srv.logger = slog.New(slog.NewTextHandler(&buf, nil))

	handler := srv.logRequests(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if !strings.Contains(buf.String(), "status=404") {
		t.Errorf("expected status=404 in log, got: %s", buf.String())
	}
}

func TestResponseWriterImplementsFlusher(t *testing.T) {
	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, ok := interface{}(rw).(http.Flusher); !ok {
		t.Error("responseWriter should implement http.Flusher")
	}
}

func TestRouteLabel(t *testing.T) {
	tests := map[string]string{
		"/api/search":               "/api/search",
		"/sitemaps/sitemap-aws.xml": "/sitemaps/",
		"/random/path":              "other",
	}
	for in, want := range tests {
		if got := routeLabel(in); got != want {
			t.Errorf("routeLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGzipCompressesJSON(t *testing.T) {
	handler := gzipHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.Header.Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected Content-Encoding: gzip for JSON, got %q", resp.Header.Get("Content-Encoding"))
	}

	gr, err := gzip.NewReader(resp.Body)
	if err != nil {
		t.Fatalf("failed to create gzip reader: %v", err)
	}
	defer func() { _ = gr.Close() }()
	body, _ := io.ReadAll(gr)
	if string(body) != `{"status":"ok"}` {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestGzipSkipsWithoutAcceptEncoding(t *testing.T) {
	handler := gzipHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("hello"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.Header.Get("Content-Encoding") == "gzip" {
		t.Error("should not gzip without Accept-Encoding")
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "hello" {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestGzipSkipsBinary(t *testing.T) {
	handler := gzipHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte{0, 1, 2})
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Result().Header.Get("Content-Encoding") == "gzip" {
		t.Error("binary content should not be compressed")
	}
}

func TestMetricsGzippedOnce(t *testing.T) {
	srv, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Values("Content-Encoding"); len(got) != 1 || got[0] != "gzip" {
		t.Fatalf("unexpected Content-Encoding: %v", got)
	}
	gr, err := gzip.NewReader(resp.Body)
	if err != nil {
		t.Fatalf("failed to create gzip reader: %v", err)
	}
	body, err := io.ReadAll(gr)
	if err != nil {
		t.Fatalf("failed to read gzip body: %v", err)
	}
	if bytes.HasPrefix(body, []byte{0x1f, 0x8b}) {
		t.Fatal("metrics body compressed twice")
	}
	if !strings.Contains(string(body), "docsearch_") {
		t.Fatalf("expected exposition text, got %q", body)
	}
}

func TestGzipSkipsAlreadyEncoded(t *testing.T) {
	handler := gzipHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Content-Encoding", "gzip")
		gw := gzip.NewWriter(w)
		_, _ = gw.Write([]byte("already compressed"))
		_ = gw.Close()
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	gr, err := gzip.NewReader(w.Result().Body)
	if err != nil {
		t.Fatalf("failed to create gzip reader: %v", err)
	}
	body, err := io.ReadAll(gr)
	if err != nil {
		t.Fatalf("failed to read gzip body: %v", err)
	}
	if string(body) != "already compressed" {
		t.Fatalf("unexpected body: %q", body)
	}
}
