package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/knowbase/internal/chunk"
	"github.com/Aman-CERP/knowbase/internal/contextual"
	kberrors "github.com/Aman-CERP/knowbase/internal/errors"
	"github.com/Aman-CERP/knowbase/internal/store"
)

// Outcome is the result of processing one document.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeUnchanged Outcome = "unchanged" // same content hash, already processed
	OutcomeFailed    Outcome = "failed"
	OutcomeDuplicate Outcome = "duplicate" // content already stored under another document
)

// DocumentInput is a document to ingest. An empty ID is generated, or
// resolved from Source when a document with that source exists.
type DocumentInput struct {
	ID       string
	Title    string
	Source   string
	Content  string
	Category string
	Disabled bool
}

// ProcessResult reports what ProcessDocument did.
type ProcessResult struct {
	DocumentID string  `json:"document_id"`
	Source     string  `json:"source,omitempty"`
	Status     Outcome `json:"status"`
	ChunkCount int     `json:"chunk_count"`
}

// BatchResult is one entry of a batch ingestion.
type BatchResult struct {
	ProcessResult
	Err error `json:"-"`
}

// BatchProgress is reported as each document of a batch finishes.
type BatchProgress struct {
	Done   int
	Total  int
	Result BatchResult
}

// BatchOption customizes a batch ingestion.
type BatchOption func(*batchOptions)

type batchOptions struct {
	progress func(BatchProgress)
}

// WithProgress calls fn after each document of the batch. Calls are
// serialized and Done increases by one each time.
func WithProgress(fn func(BatchProgress)) BatchOption {
	return func(o *batchOptions) { o.progress = fn }
}

// ContentHash is the content identity used for duplicate detection.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// ProcessDocument chunks, embeds and indexes one document, then publishes
// a rebuilt snapshot. Reprocessing unchanged content is a no-op. Content
// identical to a different stored document is rejected with a
// duplicate-content error before chunking. A document that cannot be
// chunked is marked failed and a chunking error is returned.
func (e *Engine) ProcessDocument(ctx context.Context, in DocumentInput) (*ProcessResult, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	res, changed, err := e.process(ctx, in)
	if changed {
		if rerr := e.rebuildLocked(ctx); rerr != nil {
			return res, rerr
		}
	}
	return res, err
}

// ProcessBatch processes documents concurrently on the ingest worker pool
// and publishes a single rebuilt snapshot at the end.
func (e *Engine) ProcessBatch(ctx context.Context, inputs []DocumentInput, opts ...BatchOption) ([]BatchResult, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.runBatch(ctx, len(inputs), func(i int) (*ProcessResult, bool, error) {
		return e.process(ctx, inputs[i])
	}, opts)
}

// IngestPaths extracts and processes files. Directories are walked for
// supported extensions, skipping hidden entries.
func (e *Engine) IngestPaths(ctx context.Context, paths []string, category string, opts ...BatchOption) ([]BatchResult, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	files, err := CollectFiles(paths)
	if err != nil {
		return nil, err
	}
	return e.runBatch(ctx, len(files), func(i int) (*ProcessResult, bool, error) {
		return e.processFile(ctx, files[i], category)
	}, opts)
}

// IngestFile processes a single file and publishes the result.
func (e *Engine) IngestFile(ctx context.Context, path, category string) (*ProcessResult, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	res, changed, err := e.processFile(ctx, path, category)
	if changed {
		if rerr := e.rebuildLocked(ctx); rerr != nil {
			return res, rerr
		}
	}
	return res, err
}

// RemoveSource deletes the document ingested from source, if any.
func (e *Engine) RemoveSource(ctx context.Context, source string) error {
	if abs, err := filepath.Abs(source); err == nil {
		source = abs
	}
	d, err := e.docs.FindBySource(ctx, source)
	if err != nil {
		return err
	}
	return e.DeleteDocument(ctx, d.ID)
}

func (e *Engine) rebuildLocked(ctx context.Context) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if e.closed.Load() {
		return errClosed()
	}
	return e.rebuild(ctx)
}

func (e *Engine) runBatch(ctx context.Context, n int, job func(i int) (*ProcessResult, bool, error), opts []BatchOption) ([]BatchResult, error) {
	var bo batchOptions
	for _, opt := range opts {
		opt(&bo)
	}
	start := time.Now()
	results := make([]BatchResult, n)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		changed bool
		done    int
	)
	finish := func(i int, r BatchResult, ch bool) {
		results[i] = r
		mu.Lock()
		defer mu.Unlock()
		changed = changed || ch
		done++
		if bo.progress != nil {
			bo.progress(BatchProgress{Done: done, Total: n, Result: r})
		}
	}
	for i := 0; i < n; i++ {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				finish(i, BatchResult{ProcessResult: ProcessResult{Status: OutcomeFailed}, Err: err}, false)
				return
			}
			res, ch, err := job(i)
			if res == nil {
				res = &ProcessResult{Status: OutcomeFailed}
			}
			finish(i, BatchResult{ProcessResult: *res, Err: err}, ch)
		}
		if err := e.pool.Submit(task); err != nil {
			wg.Done()
			finish(i, BatchResult{
				ProcessResult: ProcessResult{Status: OutcomeFailed},
				Err:           kberrors.InternalError("failed to schedule ingestion", err),
			}, false)
		}
	}
	wg.Wait()

	if changed {
		if err := e.rebuildLocked(ctx); err != nil {
			return results, err
		}
	}

	slog.Info("batch_processed",
		slog.Int("documents", n),
		slog.Bool("index_changed", changed),
		slog.Duration("duration", time.Since(start)))
	return results, ctx.Err()
}

// process writes one document's chunks to the store. changed reports
// whether the indexed state may differ, so a rebuild is needed.
func (e *Engine) process(ctx context.Context, in DocumentInput) (_ *ProcessResult, changed bool, _ error) {
	hash := ContentHash(in.Content)

	existing, err := e.findExisting(ctx, in)
	if err != nil {
		return nil, false, err
	}

	var id string
	doc := contextual.Document{Title: in.Title, Category: in.Category}
	switch {
	case existing == nil:
		id = in.ID
		if id == "" {
			id = uuid.NewString()
		}
		err = e.docs.CreateDocument(ctx, &store.Document{
			ID:          id,
			Title:       in.Title,
			Source:      in.Source,
			Content:     in.Content,
			ContentHash: hash,
			Category:    in.Category,
			Enabled:     !in.Disabled,
		})
	case existing.ContentHash == hash && existing.Status == store.StatusProcessed:
		slog.Debug("document_unchanged", slog.String("document_id", existing.ID))
		return &ProcessResult{
			DocumentID: existing.ID,
			Source:     existing.Source,
			Status:     OutcomeUnchanged,
			ChunkCount: existing.ChunkCount,
		}, false, nil
	default:
		id = existing.ID
		title, category := in.Title, in.Category
		if title == "" {
			title = existing.Title
		}
		if category == "" {
			category = existing.Category
		}
		doc = contextual.Document{Title: title, Category: category}
		err = e.docs.UpdateContent(ctx, id, title, in.Content, hash, category)
		// The old content may be indexed; it is gone from the store now.
		changed = existing.Status == store.StatusProcessed
	}
	if err != nil {
		if kberrors.IsDuplicateContent(err) {
			slog.Info("duplicate_rejected",
				slog.String("source", in.Source),
				slog.String("content_hash", hash))
			return &ProcessResult{DocumentID: id, Source: in.Source, Status: OutcomeDuplicate}, changed, err
		}
		return nil, changed, err
	}

	chunks, err := e.chunker.Chunk(id, in.Content)
	if err != nil {
		if serr := e.docs.SetStatus(ctx, id, store.StatusFailed, 0, err.Error()); serr != nil {
			return nil, changed, serr
		}
		slog.Warn("document_failed",
			slog.String("document_id", id),
			slog.String("source", in.Source),
			slog.String("error", err.Error()))
		return &ProcessResult{DocumentID: id, Source: in.Source, Status: OutcomeFailed}, changed, err
	}

	contextual.Apply(ctx, e.ctxGen, doc, chunks)

	if e.embedder != nil {
		if err := e.embedChunks(ctx, chunks); err != nil {
			// Indexed lexically now; the next rebuild retries the vectors.
			slog.Warn("embedding_failed",
				slog.String("document_id", id),
				slog.String("error", err.Error()))
		}
	}

	if err := e.docs.SaveChunks(ctx, id, chunks); err != nil {
		return nil, changed, err
	}
	if err := e.docs.SetStatus(ctx, id, store.StatusProcessed, len(chunks), ""); err != nil {
		return nil, changed, err
	}

	slog.Info("document_processed",
		slog.String("document_id", id),
		slog.String("source", in.Source),
		slog.Int("chunks", len(chunks)))
	return &ProcessResult{DocumentID: id, Source: in.Source, Status: OutcomeProcessed, ChunkCount: len(chunks)}, true, nil
}

func (e *Engine) findExisting(ctx context.Context, in DocumentInput) (*store.Document, error) {
	var (
		d   *store.Document
		err error
	)
	switch {
	case in.ID != "":
		d, err = e.docs.GetDocument(ctx, in.ID)
	case in.Source != "":
		d, err = e.docs.FindBySource(ctx, in.Source)
	default:
		return nil, nil
	}
	if kberrors.IsNotFound(err) {
		return nil, nil
	}
	return d, err
}

// processFile extracts text from path and processes it. An extraction
// failure marks an already-known document failed.
func (e *Engine) processFile(ctx context.Context, path, category string) (*ProcessResult, bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return &ProcessResult{Source: abs, Status: OutcomeFailed}, false,
			kberrors.IOError("failed to read file", err).WithDetail("path", abs)
	}
	text, err := chunk.ExtractText(abs, data)
	if err != nil {
		res := &ProcessResult{Source: abs, Status: OutcomeFailed}
		if d, ferr := e.docs.FindBySource(ctx, abs); ferr == nil {
			res.DocumentID = d.ID
			_ = e.docs.SetStatus(ctx, d.ID, store.StatusFailed, 0, err.Error())
			return res, d.Status == store.StatusProcessed, err
		}
		return res, false, err
	}
	return e.process(ctx, DocumentInput{
		Title:    strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs)),
		Source:   abs,
		Content:  text,
		Category: category,
	})
}

// CollectFiles expands paths into a sorted list of files. Explicit files
// are kept regardless of extension.
func CollectFiles(paths []string) ([]string, error) {
	supported := chunk.SupportedExtensions()
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, kberrors.IOError("cannot access path", err).WithDetail("path", p)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path != p && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.IsDir() && slices.Contains(supported, strings.ToLower(filepath.Ext(path))) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, kberrors.IOError("failed to walk directory", err).WithDetail("path", p)
		}
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}
