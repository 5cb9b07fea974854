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
	"github.com/canonical/docsearch/internal/metrics"
	"github.com/canonical/docsearch/internal/search"
	"github.com/canonical/docsearch/internal/web"
)

func main() {
	var configPath, addr string
	cmd := &cobra.Command{
		Use:           "server",
		Short:         "Serve the documentation search API over HTTP",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath, addr)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", config.DefaultPath(), "path to config file (JSON, TOML or YAML)")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP bind address (defaults to the configured listen address)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func serve(ctx context.Context, configPath, addr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if addr == "" {
		addr = cfg.Listen
	}
	logger := logging.BuildLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	store, err := search.Open(cfg.IndexPath())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	reg := metrics.NewRegistry()
	if n, err := store.Count(ctx); err == nil {
		reg.SetDocuments(n)
	} else {
		logger.Warn("count documents", "error", err)
	}

	return web.NewServer(cfg, store, reg, logger).ListenAndServe(ctx, addr)
}
