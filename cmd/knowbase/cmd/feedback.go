package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/knowbase/internal/output"
)

type feedbackOptions struct {
	positive bool
	negative bool
}

func newFeedbackCmd(g *globalOptions) *cobra.Command {
	var opts feedbackOptions

	cmd := &cobra.Command{
		Use:   "feedback <doc-id>",
		Short: "Record whether a document was helpful",
		Long: `Adjust a document's effectiveness score.

Positive feedback raises the score by 0.1 and negative feedback lowers it
by 0.05. The score stays between 0 and 10.`,
		Example: `  knowbase feedback 3f2a9c1e-... --positive
  knowbase feedback 3f2a9c1e-... --negative`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeedback(cmd.Context(), cmd, g, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.positive, "positive", false, "The document was helpful")
	cmd.Flags().BoolVar(&opts.negative, "negative", false, "The document was not helpful")
	cmd.MarkFlagsMutuallyExclusive("positive", "negative")
	cmd.MarkFlagsOneRequired("positive", "negative")

	return cmd
}

func runFeedback(ctx context.Context, cmd *cobra.Command, g *globalOptions, docID string, opts feedbackOptions) error {
	if opts.positive == opts.negative {
		return errors.New("exactly one of --positive or --negative is required")
	}

	e, err := g.openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	score, err := e.RecordFeedback(ctx, docID, opts.positive)
	if err != nil {
		return err
	}
	output.New(cmd.OutOrStdout()).Successf("Effectiveness of %s is now %.2f", docID, score)
	return nil
}
