package cmd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/knowbase/internal/mcp"
)

func newServeCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio",
		Long: `Serve the knowledge base to an MCP client over stdin/stdout.

Tools: search, get_context, usage_stats, knowledge_summary.
Resources: knowbase://query_metrics, knowbase://documents/{id}.

stdout carries JSON-RPC only. Diagnostics go to the log file
(~/.knowbase/logs/server.log) and, with --debug, to stderr.`,
		Example: `  # Claude Desktop / any MCP client
  {"command": "knowbase", "args": ["serve"]}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), g)
		},
	}
}

func runServe(ctx context.Context, g *globalOptions) error {
	e, err := g.openEngine(ctx)
	if err != nil {
		slog.Error("serve_open_failed", slog.String("error", err.Error()))
		return err
	}
	defer func() { _ = e.Close() }()

	srv, err := mcp.NewServer(e)
	if err != nil {
		return err
	}
	slog.Info("serve_started",
		slog.String("data_dir", e.Config().DataDir),
		slog.Bool("vector_enabled", e.VectorEnabled()))

	err = srv.Serve(ctx, "stdio")
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	slog.Info("serve_stopped")
	return err
}
