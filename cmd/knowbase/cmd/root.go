// Package cmd provides the CLI commands for knowbase.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/knowbase/internal/config"
	"github.com/Aman-CERP/knowbase/internal/engine"
	kberrors "github.com/Aman-CERP/knowbase/internal/errors"
	"github.com/Aman-CERP/knowbase/internal/logging"
	"github.com/Aman-CERP/knowbase/internal/profiling"
	"github.com/Aman-CERP/knowbase/pkg/version"
)

// globalOptions holds persistent flags and the state the pre-run hook
// prepares for subcommands.
type globalOptions struct {
	debug    bool
	dataDir  string
	profile  profiling.Options
	envFile  string
	cfg      *config.Config
	cfgErr   error
	session  *profiling.Session
	logClose func()
}

// NewRootCmd creates the root command for the knowbase CLI.
func NewRootCmd() *cobra.Command {
	g := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "knowbase",
		Short: "Local knowledge base with hybrid retrieval",
		Long: `knowbase ingests documents into a local knowledge base and answers
queries with hybrid (keyword + semantic) retrieval.

Ranked results can be assembled into a bounded, attributed context block
for an assistant, and every reference is counted so you can see which
documents earn their keep and which queries find nothing.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.start(cmd)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return g.stop()
		},
	}
	cmd.SetVersionTemplate("knowbase version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging to stderr and ~/.knowbase/logs/")
	cmd.PersistentFlags().StringVar(&g.dataDir, "data-dir", "", "Knowledge base directory (default ~/.knowbase)")
	cmd.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "Load environment variables from this file if it exists")
	cmd.PersistentFlags().StringVar(&g.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&g.profile.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&g.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.AddCommand(newIngestCmd(g))
	cmd.AddCommand(newSearchCmd(g))
	cmd.AddCommand(newContextCmd(g))
	cmd.AddCommand(newStatsCmd(g))
	cmd.AddCommand(newFeedbackCmd(g))
	cmd.AddCommand(newEnableCmd(g, true))
	cmd.AddCommand(newEnableCmd(g, false))
	cmd.AddCommand(newServeCmd(g))
	cmd.AddCommand(newConfigCmd(g))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// start loads .env and configuration, then sets up logging and profiling.
// A configuration error is kept for openEngine so that commands which do
// not need the engine (version, config path) still run.
func (g *globalOptions) start(cmd *cobra.Command) error {
	if g.envFile != "" {
		if err := godotenv.Load(g.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", g.envFile, err)
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	g.cfg, g.cfgErr = config.Load(wd)
	if g.cfgErr != nil {
		g.cfg = config.NewConfig()
	}
	if g.dataDir != "" {
		abs, err := filepath.Abs(g.dataDir)
		if err != nil {
			return fmt.Errorf("invalid --data-dir: %w", err)
		}
		g.cfg.DataDir = abs
	}

	logCfg := g.cfg.LogConfig()
	if g.debug {
		logCfg.Level = "debug"
		logCfg.WriteToStderr = true
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	g.logClose = cleanup
	slog.SetDefault(logger)
	slog.Debug("command_started",
		slog.String("command", cmd.CommandPath()),
		slog.String("data_dir", g.cfg.DataDir),
		slog.String("version", version.Version))

	if g.profile.Enabled() {
		if g.session, err = profiling.Start(g.profile); err != nil {
			return fmt.Errorf("failed to start profiling: %w", err)
		}
	}
	return nil
}

func (g *globalOptions) stop() error {
	err := g.session.Stop()
	g.session = nil
	if g.logClose != nil {
		g.logClose()
		g.logClose = nil
	}
	if err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	return nil
}

// openEngine opens the knowledge base in the configured data directory.
func (g *globalOptions) openEngine(ctx context.Context) (*engine.Engine, error) {
	if g.cfgErr != nil {
		return nil, g.cfgErr
	}
	if g.cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return engine.Open(ctx, g.cfg)
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	err := root.ExecuteContext(ctx)
	if err != nil {
		_, _ = fmt.Fprintln(root.ErrOrStderr(), kberrors.FormatForCLI(err))
	}
	return err
}
