package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/canonical/docsearch/internal/config"
	"github.com/canonical/docsearch/internal/search"
)

var snippetMarks = strings.NewReplacer("<mark>", "", "</mark>", "")

func main() {
	var (
		configPath string
		section    string
		limit      int
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:           "search [query]",
		Short:         "Query the documentation index from the terminal",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if limit <= 0 {
				limit = cfg.SearchLimit
			}
			limit = min(limit, cfg.MaxLimit)

			store, err := search.Open(cfg.IndexPath())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			results, err := store.Search(cmd.Context(), strings.Join(args, " "), search.Options{Section: section, Limit: limit})
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			if asJSON {
				return outputJSON(cmd, results)
			}
			outputTable(cmd, results)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", config.DefaultPath(), "path to config file (JSON, TOML or YAML)")
	cmd.Flags().StringVarP(&section, "section", "s", "", "restrict results to one section")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of results (0 = configured default)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output results as JSON")

	cmd.SetOut(os.Stdout)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func outputJSON(cmd *cobra.Command, results []search.Result) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputTable(cmd *cobra.Command, results []search.Result) {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return
	}
	for i, r := range results {
		cmd.Printf("  [%d] %s (%.2f)\n", i+1, r.Title, r.Score)
		cmd.Printf("      %s\n", r.URL)
		if r.Snippet != "" {
			cmd.Printf("      %s\n", snippetMarks.Replace(r.Snippet))
		}
		cmd.Println()
	}
}
