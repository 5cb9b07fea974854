package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/canonical/docsearch/internal/config"
	"github.com/canonical/docsearch/internal/logging"
	"github.com/canonical/docsearch/internal/mcp"
	"github.com/canonical/docsearch/internal/search"
)

func main() {
	var configPath, httpAddr string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the documentation index to MCP clients",
		Long: `Start a Model Context Protocol server exposing the search_docs,
get_document and list_sections tools.

By default the server speaks JSON-RPC over stdio. Use --http to serve
the streamable HTTP transport instead.

Examples:
  # Stdio mode
  mcp --config /etc/docsearch/config.json

  # HTTP mode
  mcp --http :8081`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath, httpAddr)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", config.DefaultPath(), "path to config file (JSON, TOML or YAML)")
	cmd.Flags().StringVar(&httpAddr, "http", "", "serve over HTTP on this address instead of stdio")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, httpAddr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// stdout carries the protocol, so logs always go to stderr.
	logger := logging.BuildLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	store, err := search.Open(cfg.IndexPath())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	server, err := mcp.NewServer(store, mcp.Options{
		DefaultLimit: cfg.SearchLimit,
		MaxLimit:     cfg.MaxLimit,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	if httpAddr != "" {
		return server.RunHTTP(ctx, httpAddr)
	}
	return server.Run(ctx)
}
