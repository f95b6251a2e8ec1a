package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/knowbase/internal/output"
)

// newEnableCmd builds "enable" or "disable". Disabled documents are kept
// but excluded from search.
func newEnableCmd(g *globalOptions, enabled bool) *cobra.Command {
	use, short := "enable <doc-id>", "Include a document in search results"
	if !enabled {
		use, short = "disable <doc-id>", "Exclude a document from search results"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetEnabled(cmd.Context(), cmd, g, args[0], enabled)
		},
	}
}

func runSetEnabled(ctx context.Context, cmd *cobra.Command, g *globalOptions, docID string, enabled bool) error {
	e, err := g.openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	if err := e.SetEnabled(ctx, docID, enabled); err != nil {
		return err
	}
	state := "enabled"
	if !enabled {
		state = "disabled"
	}
	output.New(cmd.OutOrStdout()).Successf("%s %s", docID, state)
	return nil
}
