package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/knowbase/internal/engine"
	"github.com/Aman-CERP/knowbase/internal/mcp"
	"github.com/Aman-CERP/knowbase/internal/output"
)

const defaultGapsLimit = 20

type statsOptions struct {
	underutilized bool
	gaps          bool
	gapsLimit     int
	category      string
	format        string
}

func newStatsCmd(g *globalOptions) *cobra.Command {
	var opts statsOptions

	cmd := &cobra.Command{
		Use:   "stats [doc-id]",
		Short: "Show usage analytics",
		Long: `Show how the knowledge base is used.

With a document ID, prints that document's reference count, last use and
effectiveness. Without one, prints the knowledge base summary.`,
		Example: `  knowbase stats
  knowbase stats 3f2a9c1e-...
  knowbase stats --underutilized
  knowbase stats --gaps
  knowbase stats --category billing`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docID := ""
			if len(args) == 1 {
				docID = args[0]
			}
			return runStats(cmd.Context(), cmd, g, docID, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.underutilized, "underutilized", false, "List enabled documents that are rarely referenced")
	cmd.Flags().BoolVar(&opts.gaps, "gaps", false, "List recent queries that found nothing")
	cmd.Flags().IntVar(&opts.gapsLimit, "gaps-limit", defaultGapsLimit, "Maximum number of knowledge gaps listed")
	cmd.Flags().StringVarP(&opts.category, "category", "c", "", "List documents in this category with their usage")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runStats(ctx context.Context, cmd *cobra.Command, g *globalOptions, docID string, opts statsOptions) error {
	if err := checkFormat(opts.format); err != nil {
		return err
	}

	e, err := g.openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	out := output.New(cmd.OutOrStdout())
	asJSON := opts.format == "json"

	switch {
	case docID != "":
		d, err := e.Document(ctx, docID)
		if err != nil {
			return err
		}
		usage, err := e.GetUsageStats(ctx, docID)
		if err != nil {
			return err
		}
		if asJSON {
			return out.JSON(mcp.ToUsageStatsOutput(d, usage))
		}
		out.Usage(d, usage)

	case opts.underutilized:
		stats, err := e.UnderutilizedDocuments(ctx)
		if err != nil {
			return err
		}
		if asJSON {
			return out.JSON(documentRefs(stats))
		}
		out.Header("Underutilized documents")
		out.DocumentStats(stats)

	case opts.gaps:
		gaps, err := e.KnowledgeGaps(ctx, opts.gapsLimit)
		if err != nil {
			return err
		}
		if asJSON {
			return out.JSON(gaps)
		}
		out.Gaps(gaps)

	case opts.category != "":
		stats, err := e.DocumentsByCategory(ctx, opts.category)
		if err != nil {
			return err
		}
		if asJSON {
			return out.JSON(documentRefs(stats))
		}
		out.Header("Category " + opts.category)
		out.DocumentStats(stats)

	default:
		summary, err := e.KnowledgeSummary(ctx)
		if err != nil {
			return err
		}
		if asJSON {
			gaps, err := e.KnowledgeGaps(ctx, opts.gapsLimit)
			if err != nil {
				return err
			}
			return out.JSON(mcp.ToKnowledgeSummaryOutput(summary, gaps))
		}
		out.Summary(summary)
	}
	return nil
}

func documentRefs(stats []*engine.DocumentStats) []mcp.UsageStatsOutput {
	refs := make([]mcp.UsageStatsOutput, 0, len(stats))
	for _, st := range stats {
		refs = append(refs, mcp.ToUsageStatsOutput(st.Document, st.Usage))
	}
	return refs
}
