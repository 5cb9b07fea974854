// Package mcp exposes the documentation index to MCP clients.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/canonical/docsearch/internal/logging"
	"github.com/canonical/docsearch/internal/search"
)

// Version is the MCP server version.
const Version = "0.1.0"

const (
	defaultLimit = 10
	maxLimit     = 100
)

// Backend is the read side of the document store.
type Backend interface {
	search.Searcher
	Get(ctx context.Context, path string) (search.Document, bool, error)
	Sections(ctx context.Context) ([]search.SectionCount, error)
}

// Options tune the tool defaults. Zero values fall back to package
// defaults.
type Options struct {
	DefaultLimit int
	MaxLimit     int
	Logger       *slog.Logger
}

type Server struct {
	store        Backend
	server       *mcp.Server
	logger       *slog.Logger
	defaultLimit int
	maxLimit     int
}

// NewServer creates an MCP server over store with its tools and
// resources registered.
func NewServer(store Backend, opts Options) (*Server, error) {
	if store == nil {
		return nil, errors.New("mcp: store is required")
	}

	s := &Server{
		store:        store,
		server:       mcp.NewServer(&mcp.Implementation{Name: "docsearch", Version: Version}, nil),
		logger:       opts.Logger,
		defaultLimit: opts.DefaultLimit,
		maxLimit:     opts.MaxLimit,
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.maxLimit <= 0 {
		s.maxLimit = maxLimit
	}
	if s.defaultLimit <= 0 {
		s.defaultLimit = min(defaultLimit, s.maxLimit)
	}

	s.registerTools()
	s.registerResources()
	return s, nil
}

// Run serves over stdio until ctx is cancelled or the client hangs up.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("serving mcp", "transport", "stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the streamable HTTP transport on addr until ctx is
// cancelled.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info("serving mcp", "transport", "http", "addr", addr)
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("mcp http: %w", err)
	}
	return nil
}
