// Package engine is the retrieval engine: it owns the document store, the
// current index snapshot and the query pipeline (enhance, rank, assemble).
//
// Writers serialize on a mutex and publish a freshly built snapshot with an
// atomic swap. Readers pin the snapshot they loaded, so a search never sees
// a partially rebuilt index.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/panjf2000/ants/v2"

	"github.com/Aman-CERP/knowbase/internal/assemble"
	"github.com/Aman-CERP/knowbase/internal/chunk"
	"github.com/Aman-CERP/knowbase/internal/config"
	"github.com/Aman-CERP/knowbase/internal/contextual"
	"github.com/Aman-CERP/knowbase/internal/embed"
	kberrors "github.com/Aman-CERP/knowbase/internal/errors"
	"github.com/Aman-CERP/knowbase/internal/search"
	"github.com/Aman-CERP/knowbase/internal/store"
	"github.com/Aman-CERP/knowbase/internal/telemetry"
)

// LockFileName guards the data directory against a second writer process.
const LockFileName = ".knowbase.lock"

// lockWait bounds how long Open waits for another process to release the
// data directory.
const lockWait = 2 * time.Second

// Option customizes Open.
type Option func(*openOptions)

type openOptions struct {
	embedder    embed.Embedder
	embedderSet bool
	expander    search.Expander
	expanderSet bool
	ctxGen      contextual.Generator
	ctxGenSet   bool
	inMemory    bool
}

// WithEmbedder replaces the configured embedder. Nil disables vectors.
func WithEmbedder(e embed.Embedder) Option {
	return func(o *openOptions) {
		o.embedder = e
		o.embedderSet = true
	}
}

// WithExpander replaces the configured query expander. Nil means the
// enhancer always uses local fallback tokenization.
func WithExpander(x search.Expander) Option {
	return func(o *openOptions) {
		o.expander = x
		o.expanderSet = true
	}
}

// WithContextGenerator replaces the configured chunk context generator.
// Nil indexes chunks on their own text.
func WithContextGenerator(g contextual.Generator) Option {
	return func(o *openOptions) {
		o.ctxGen = g
		o.ctxGenSet = true
	}
}

// WithInMemoryStore keeps all state in memory and skips the data-dir lock.
func WithInMemoryStore() Option {
	return func(o *openOptions) { o.inMemory = true }
}

// snapshot is one published corpus. mu is held for reading while a search
// uses the corpus and for writing while it is retired.
type snapshot struct {
	corpus  *search.Corpus
	mu      sync.RWMutex
	retired bool
}

// Engine is a retrieval engine bound to one data directory.
type Engine struct {
	cfg       *config.Config
	docs      *store.DocumentStore
	lock      *flock.Flock
	chunker   *chunk.Chunker
	embedder  embed.Embedder // nil when unavailable
	ctxGen    contextual.Generator
	enhancer  *search.Enhancer
	ranker    *search.Ranker
	assembler *assemble.Assembler
	usage     *usageTracker
	metrics   *telemetry.QueryMetrics
	pool      *ants.Pool

	current atomic.Pointer[snapshot]
	writeMu sync.Mutex
	closed  atomic.Bool
}

// Open opens the engine on cfg.DataDir and builds the indexes from the
// document store. An unavailable embedder is not an error: the engine runs
// lexical-only and reports degraded searches.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (_ *Engine, err error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{cfg: cfg, metrics: telemetry.NewQueryMetrics()}
	defer func() {
		if err != nil {
			e.release()
		}
	}()

	if o.inMemory {
		e.docs, err = store.OpenDocumentStore(":memory:")
	} else {
		if err = e.acquireLock(ctx); err != nil {
			return nil, err
		}
		e.docs, err = store.OpenDocumentStoreInDir(cfg.DataDir)
	}
	if err != nil {
		return nil, err
	}

	e.chunker = chunk.New(chunk.Options{
		MaxChunkChars: cfg.Chunking.MaxChunkChars,
		MinChunkChars: cfg.Chunking.MinChunkChars,
		OverlapChars:  cfg.Chunking.OverlapChars,
		FAQMinWords:   cfg.Chunking.FAQMinWords,
	})

	if o.embedderSet {
		e.embedder = o.embedder
	} else {
		e.embedder = openEmbedder(ctx, cfg.Embeddings)
	}

	if o.ctxGenSet {
		e.ctxGen = o.ctxGen
	} else if e.ctxGen, err = openContextGenerator(cfg.Contextual); err != nil {
		return nil, err
	}

	expander := o.expander
	if !o.expanderSet && cfg.Enhancer.Enabled && cfg.Enhancer.Provider == "ollama" {
		expander = search.NewOllamaExpander(cfg.Enhancer.Host, cfg.Enhancer.Model)
	}
	e.enhancer = search.NewEnhancer(expander, search.EnhancerConfig{
		Enabled:          cfg.Enhancer.Enabled,
		Timeout:          cfg.Enhancer.Timeout,
		MaxResponseChars: cfg.Enhancer.MaxResponseChars,
	})

	e.ranker = search.NewRanker(search.RankerConfig{
		VectorWeight:        cfg.Search.VectorWeight,
		LexicalWeight:       cfg.Search.LexicalWeight,
		CandidateMultiplier: cfg.Search.CandidateMultiplier,
		MinScore:            cfg.Search.MinScore,
		MinVectorSimilarity: cfg.Search.MinVectorSimilarity,
		Normalization:       cfg.Search.Normalization,
		UsageTieBreak:       cfg.Search.UsageTieBreak,
	}, e.embedder)

	if e.usage, err = newUsageTracker(ctx, e.docs); err != nil {
		return nil, err
	}
	if cfg.Search.UsageTieBreak {
		e.ranker.SetUsageLookup(e.usage.Count)
	}
	e.assembler = assemble.New(cfg.Context.MaxContextChars, e.usage)

	workers := cfg.Ingest.Workers
	if workers <= 0 {
		workers = 1
	}
	e.pool, err = ants.NewPool(workers, ants.WithPanicHandler(func(p any) {
		slog.Error("ingest_worker_panic", slog.Any("panic", p))
	}))
	if err != nil {
		return nil, kberrors.InternalError("failed to create ingest pool", err)
	}

	e.writeMu.Lock()
	err = e.rebuild(ctx)
	e.writeMu.Unlock()
	if err != nil {
		return nil, err
	}

	slog.Info("engine_opened",
		slog.String("data_dir", cfg.DataDir),
		slog.Bool("in_memory", o.inMemory),
		slog.Bool("vector_enabled", e.embedder != nil),
		slog.Int("chunks", len(e.current.Load().corpus.Chunks)),
		slog.String("lexical_backend", cfg.Search.LexicalBackend))
	return e, nil
}

func openContextGenerator(cfg config.ContextualConfig) (contextual.Generator, error) {
	opts := contextual.Options{
		Enabled:  cfg.Enabled,
		Provider: cfg.Provider,
		Name:     cfg.Model,
		Timeout:  cfg.Timeout,
	}
	if cfg.Provider == contextual.ProviderOllama {
		opts.Model = search.NewOllamaExpander(cfg.Host, cfg.Model)
	}
	g, err := contextual.New(opts)
	if err != nil {
		return nil, kberrors.ConfigError("invalid contextual configuration", err)
	}
	return g, nil
}

func openEmbedder(ctx context.Context, cfg config.EmbeddingsConfig) embed.Embedder {
	emb, err := embed.New(ctx, embed.Options{
		Provider:  cfg.Provider,
		Model:     cfg.Model,
		Host:      cfg.Host,
		CacheSize: cfg.CacheSize,
		Timeout:   cfg.Timeout,
	})
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, embed.ErrUnavailable) {
			level = slog.LevelInfo
		}
		slog.Log(ctx, level, "vector_index_disabled",
			slog.String("provider", cfg.Provider),
			slog.String("reason", err.Error()))
		return nil
	}
	return emb
}

func (e *Engine) acquireLock(ctx context.Context) error {
	if err := os.MkdirAll(e.cfg.DataDir, 0o755); err != nil {
		return kberrors.IOError("failed to create data directory", err).WithDetail("path", e.cfg.DataDir)
	}
	path := filepath.Join(e.cfg.DataDir, LockFileName)
	lock := flock.New(path)

	lockCtx, cancel := context.WithTimeout(ctx, lockWait)
	defer cancel()
	ok, err := lock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return kberrors.IOError("failed to lock data directory", err).WithDetail("path", path)
	}
	if !ok {
		return kberrors.New(kberrors.ErrCodeDataDirLocked, "data directory is in use by another knowbase process", nil).
			WithDetail("path", path).
			WithSuggestion("Stop the other process (for example `knowbase serve`) or use --data-dir")
	}
	e.lock = lock
	return nil
}

// acquire pins the current corpus. The caller must call done.
func (e *Engine) acquire() (_ *search.Corpus, done func(), _ error) {
	for {
		s := e.current.Load()
		if s == nil {
			return nil, nil, errClosed()
		}
		s.mu.RLock()
		if !s.retired {
			return s.corpus, s.mu.RUnlock, nil
		}
		// Retired after Load; a newer snapshot is already published.
		s.mu.RUnlock()
	}
}

// publish swaps in a new snapshot and closes the previous one once no
// search holds it. Callers hold writeMu.
func (e *Engine) publish(c *search.Corpus) {
	old := e.current.Swap(&snapshot{corpus: c})
	if old != nil {
		old.mu.Lock()
		old.retired = true
		closeCorpus(old.corpus)
		old.mu.Unlock()
	}
}

func closeCorpus(c *search.Corpus) {
	if c == nil {
		return
	}
	if c.Lexical != nil {
		_ = c.Lexical.Close()
	}
	if c.Vector != nil {
		_ = c.Vector.Close()
	}
}

// Config returns the engine configuration.
func (e *Engine) Config() *config.Config { return e.cfg }

// Store exposes the document store.
func (e *Engine) Store() *store.DocumentStore { return e.docs }

// VectorEnabled reports whether the current snapshot has a vector index.
func (e *Engine) VectorEnabled() bool {
	c, done, err := e.acquire()
	if err != nil {
		return false
	}
	defer done()
	return c.VectorEnabled()
}

// Metrics returns a snapshot of query telemetry since Open.
func (e *Engine) Metrics() *telemetry.Snapshot { return e.metrics.Snapshot() }

func errClosed() error {
	return kberrors.New(kberrors.ErrCodeStoreUnavailable, "engine is closed", nil)
}

func (e *Engine) checkOpen() error {
	if e.closed.Load() {
		return errClosed()
	}
	return nil
}

// Close releases the indexes, the store and the data-dir lock.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.release()
}

func (e *Engine) release() error {
	var errs []error
	if e.pool != nil {
		e.pool.Release()
	}
	if s := e.current.Swap(nil); s != nil {
		s.mu.Lock()
		s.retired = true
		closeCorpus(s.corpus)
		s.mu.Unlock()
	}
	if e.embedder != nil {
		errs = append(errs, e.embedder.Close())
	}
	if e.docs != nil {
		errs = append(errs, e.docs.Close())
	}
	if e.lock != nil {
		if err := e.lock.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("failed to release data directory lock: %w", err))
		}
	}
	return errors.Join(errs...)
}
