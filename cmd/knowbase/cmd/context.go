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

type contextOptions struct {
	maxChars int
	limit    int
	category string
	format   string
}

func newContextCmd(g *globalOptions) *cobra.Command {
	var opts contextOptions

	cmd := &cobra.Command{
		Use:   "context <query>",
		Short: "Assemble attributed context for a query",
		Long: `Search the knowledge base and assemble the best results into one
context block, each excerpt labelled with its source document.

Results are added whole in rank order until the character budget is
reached. Every document that makes it into the context has its reference
count incremented.`,
		Example: `  knowbase context "how do refunds work"
  knowbase context "support hours" --max-chars 800`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContext(cmd.Context(), cmd, g, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVar(&opts.maxChars, "max-chars", 0, "Context budget in characters (default from context.max_context_chars)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results considered")
	cmd.Flags().StringVarP(&opts.category, "category", "c", "", "Only use documents in this category")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runContext(ctx context.Context, cmd *cobra.Command, g *globalOptions, query string, opts contextOptions) error {
	if err := checkFormat(opts.format); err != nil {
		return err
	}
	if opts.maxChars < 0 {
		return fmt.Errorf("--max-chars must not be negative, got %d", opts.maxChars)
	}

	e, err := g.openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	resp, err := e.Context(ctx, engine.ContextRequest{
		SearchRequest: engine.SearchRequest{
			Query:  query,
			Filter: search.Filter{Category: opts.category},
			TopK:   opts.limit,
		},
		MaxChars: opts.maxChars,
	})
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if opts.format == "json" {
		return out.JSON(mcp.ToContextOutput(resp))
	}
	if resp.Search != nil && resp.Search.Degraded {
		out.Warning("semantic search unavailable; context built from keyword matches only")
	}
	out.Context(resp.Context)
	return nil
}
