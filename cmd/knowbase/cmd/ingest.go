package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/knowbase/internal/chunk"
	"github.com/Aman-CERP/knowbase/internal/engine"
	kberrors "github.com/Aman-CERP/knowbase/internal/errors"
	"github.com/Aman-CERP/knowbase/internal/output"
	"github.com/Aman-CERP/knowbase/internal/watcher"
)

type ingestOptions struct {
	category string
	watch    bool
}

func newIngestCmd(g *globalOptions) *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest <paths...>",
		Short: "Add files and directories to the knowledge base",
		Long: `Ingest files into the knowledge base.

Directories are walked recursively for supported files (.txt, .md, .json,
.csv and friends). Unchanged files are skipped, and content already stored
under another document is reported as a duplicate.

With --watch, ingest keeps running and applies creates, edits and deletes
under the given directories until interrupted.`,
		Example: `  knowbase ingest ./docs
  knowbase ingest faq.md pricing.md --category billing
  knowbase ingest ./docs --watch`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), cmd, g, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.category, "category", "c", "", "Category assigned to ingested documents")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Keep watching directories for changes")

	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, g *globalOptions, paths []string, opts ingestOptions) error {
	out := output.New(cmd.OutOrStdout())

	e, err := g.openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	if !e.VectorEnabled() {
		out.Warning("Embeddings unavailable; documents are indexed for keyword search only")
	}

	// The live display only needs the file count; IngestPaths reports
	// a bad path itself.
	total := 0
	if files, cerr := engine.CollectFiles(paths); cerr == nil {
		total = len(files)
	}
	live := output.NewBatchRenderer(ctx, cmd.OutOrStdout(), total)
	results, err := e.IngestPaths(ctx, paths, opts.category, engine.WithProgress(live.Update))
	live.Stop()
	if err != nil {
		return err
	}
	failed := out.Batch(results)

	if opts.watch {
		return watchPaths(ctx, out, e, paths, opts.category)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed to ingest", failed, len(results))
	}
	return nil
}

// ingestHandler applies watcher events to the engine.
type ingestHandler struct {
	engine   *engine.Engine
	out      *output.Writer
	category string
	mu       sync.Mutex // serializes writes to out
}

func (h *ingestHandler) IngestFile(ctx context.Context, path string) error {
	res, err := h.engine.IngestFile(ctx, path, h.category)
	if res != nil {
		h.mu.Lock()
		h.out.Batch([]engine.BatchResult{{ProcessResult: *res, Err: err}})
		h.mu.Unlock()
	}
	if kberrors.IsDuplicateContent(err) {
		return nil
	}
	return err
}

func (h *ingestHandler) RemoveFile(ctx context.Context, path string) error {
	err := h.engine.RemoveSource(ctx, path)
	if kberrors.IsNotFound(err) {
		return nil
	}
	if err == nil {
		h.mu.Lock()
		h.out.Statusf("🗑️", "%s removed", path)
		h.mu.Unlock()
	}
	return err
}

// watchPaths runs one watcher per directory argument until ctx is done.
func watchPaths(ctx context.Context, out *output.Writer, e *engine.Engine, paths []string, category string) error {
	var dirs []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			out.Warningf("%s is not a directory; not watched", p)
			continue
		}
		dirs = append(dirs, p)
	}
	if len(dirs) == 0 {
		return errors.New("--watch needs at least one directory")
	}

	h := &ingestHandler{engine: e, out: out, category: category}
	var wg sync.WaitGroup
	for _, dir := range dirs {
		w, err := watcher.NewDirWatcher(watcher.Options{
			DebounceWindow: e.Config().Ingest.WatchDebounce,
			Extensions:     chunk.SupportedExtensions(),
		})
		if err != nil {
			return fmt.Errorf("failed to create watcher for %s: %w", dir, err)
		}
		defer func() { _ = w.Stop() }()

		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := w.Start(ctx, dir); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("watcher_failed", slog.String("root", dir), slog.String("error", err.Error()))
			}
		}()
		go func() {
			defer wg.Done()
			watcher.Dispatch(ctx, w.Events(), h)
		}()
		out.Statusf("👀", "Watching %s (%s)", dir, w.Mode())
	}

	<-ctx.Done()
	wg.Wait()
	out.Status("", "Stopped watching")
	return nil
}
