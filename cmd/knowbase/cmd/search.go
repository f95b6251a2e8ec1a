package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/knowbase/internal/engine"
	"github.com/Aman-CERP/knowbase/internal/mcp"
	"github.com/Aman-CERP/knowbase/internal/output"
	"github.com/Aman-CERP/knowbase/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit           int
	category        string
	format          string // "text", "json"
	includeDisabled bool
}

func newSearchCmd(g *globalOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge base",
		Long: `Search the knowledge base using hybrid retrieval.

Keyword and semantic scores are normalized and fused into one ranking.
When embeddings are unavailable the search runs on keywords only and the
result is marked degraded.`,
		Example: `  knowbase search "support hours"
  knowbase search refunds --category billing -n 3
  knowbase search "reset password" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, g, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from search.default_top_k)")
	cmd.Flags().StringVarP(&opts.category, "category", "c", "", "Only search documents in this category")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.includeDisabled, "include-disabled", false, "Also search disabled documents")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, g *globalOptions, query string, opts searchOptions) error {
	if err := checkFormat(opts.format); err != nil {
		return err
	}
	if opts.limit < 0 {
		return fmt.Errorf("--limit must not be negative, got %d", opts.limit)
	}

	e, err := g.openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	resp, err := e.Search(ctx, engine.SearchRequest{
		Query:  query,
		Filter: search.Filter{Category: opts.category, IncludeDisabled: opts.includeDisabled},
		TopK:   opts.limit,
	})
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if opts.format == "json" {
		return out.JSON(mcp.ToSearchOutput(resp))
	}
	out.SearchResults(resp)
	return nil
}

func checkFormat(format string) error {
	switch format {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("invalid --format %q: must be text or json", format)
	}
}
