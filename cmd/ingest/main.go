package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/canonical/docsearch/internal/config"
	"github.com/canonical/docsearch/internal/logging"
	"github.com/canonical/docsearch/internal/pipeline"
	"github.com/canonical/docsearch/internal/search"
	"github.com/canonical/docsearch/internal/sitemap"
	"github.com/canonical/docsearch/internal/storage"
)

const failuresPath = "failures.log"

type options struct {
	configPath string
	sourceDir  string
	rebuild    bool
	watch      bool
	workers    int
}

func main() {
	opts := options{}
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index reStructuredText documentation into the search database",
		Long: `Walks the configured source directory, extracts every .rst/.rest file
and writes the resulting documents to the SQLite full-text index.

Files that fail to parse are logged to failures.log in the output
directory and skipped. Unchanged files are skipped unless --rebuild is
given. With --watch the command keeps running and re-indexes files as
they change.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ingest(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", config.DefaultPath(), "path to config file (JSON, TOML or YAML)")
	cmd.Flags().StringVar(&opts.sourceDir, "source", "", "override the configured source directory")
	cmd.Flags().BoolVar(&opts.rebuild, "rebuild", false, "clear the index and re-extract every file")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "keep running and re-index files as they change")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "number of files extracted concurrently (0 = default)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func ingest(ctx context.Context, opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.sourceDir != "" {
		cfg.SourceDir = opts.sourceDir
	}
	logger := logging.BuildLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	store, err := search.Open(cfg.IndexPath())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runner := newRunner(cfg, store, logger)
	runner.Rebuild = opts.rebuild
	runner.Workers = opts.workers

	status, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	logger.Info("ingest finished",
		"run", status.RunID,
		"total", status.Total,
		"indexed", status.Indexed,
		"skipped", status.Skipped,
		"failed", status.Failed,
		"deleted", status.Deleted,
	)

	if !opts.watch {
		return nil
	}
	return runner.Watch(ctx)
}

func newRunner(cfg *config.Config, store *search.Store, logger *slog.Logger) *pipeline.Runner {
	out := storage.NewFSStorage(cfg.OutputDir)
	resolver := pipeline.PathResolver{
		BaseURL:    cfg.SiteURL(),
		RootAlias:  cfg.RootAlias,
		SourceExts: cfg.SourceExts,
		PublishExt: cfg.PublishExt,
	}
	return &pipeline.Runner{
		SourceDir: cfg.SourceDir,
		Extractor: pipeline.NewExtractor(resolver),
		Indexer:   store,
		Storage:   out,
		SitemapGenerator: &sitemap.SitemapGenerator{
			Source:  store,
			Storage: out,
			SiteURL: cfg.SiteURL(),
			Logger:  logger,
		},
		Logger:       logger,
		FailuresPath: failuresPath,
	}
}
