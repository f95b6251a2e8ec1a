package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/knowbase/internal/embed"
	"github.com/Aman-CERP/knowbase/internal/store"
)

// Ranking defaults.
const (
	DefaultVectorWeight        = 0.6
	DefaultLexicalWeight       = 0.4
	DefaultCandidateMultiplier = 3
	DefaultMinScore            = 0.05
	// Vector hits below this cosine similarity are not treated as matches.
	DefaultMinVectorSimilarity = 0.25
	DefaultTopK                = 5
)

// RankerConfig configures fusion.
type RankerConfig struct {
	VectorWeight        float64
	LexicalWeight       float64
	CandidateMultiplier int
	MinScore            float64
	MinVectorSimilarity float64
	// Normalization is NormalizeMinMax (default) or NormalizeMax.
	Normalization string
	// UsageTieBreak breaks equal fused scores by document reference count
	// before recency. Off by default so usage never feeds back into ranking.
	UsageTieBreak bool
}

func DefaultRankerConfig() RankerConfig {
	return RankerConfig{
		VectorWeight:        DefaultVectorWeight,
		LexicalWeight:       DefaultLexicalWeight,
		CandidateMultiplier: DefaultCandidateMultiplier,
		MinScore:            DefaultMinScore,
		MinVectorSimilarity: DefaultMinVectorSimilarity,
		Normalization:       NormalizeMinMax,
	}
}

// UsageLookup returns a document's reference count.
type UsageLookup func(docID string) int

// Ranker runs hybrid retrieval over a Corpus snapshot.
type Ranker struct {
	cfg      RankerConfig
	embedder embed.Embedder
	usage    UsageLookup
}

// NewRanker creates a ranker. A nil embedder leaves only lexical retrieval.
func NewRanker(cfg RankerConfig, embedder embed.Embedder) *Ranker {
	if cfg.CandidateMultiplier <= 0 {
		cfg.CandidateMultiplier = DefaultCandidateMultiplier
	}
	return &Ranker{cfg: cfg, embedder: embedder}
}

// SetUsageLookup sets the reference-count source for UsageTieBreak.
func (r *Ranker) SetUsageLookup(fn UsageLookup) { r.usage = fn }

// Config returns the ranker configuration.
func (r *Ranker) Config() RankerConfig { return r.cfg }

// Rank returns up to topK results for q. The only error is the caller's
// context ending; every other failure is folded into the response status.
func (r *Ranker) Rank(ctx context.Context, corpus *Corpus, q EnhancedQuery, filter Filter, topK int) (resp Response, err error) {
	resp = Response{Results: []*Result{}, Status: StatusNoMatches, Query: q}
	defer func() {
		if p := recover(); p != nil {
			slog.Error("ranking_panic",
				slog.String("query", q.Raw),
				slog.String("panic", fmt.Sprint(p)),
				slog.String("stack", string(debug.Stack())))
			resp = Response{Results: []*Result{}, Status: StatusNoMatches, Query: q, Degraded: resp.Degraded}
			err = nil
		}
	}()

	if topK <= 0 {
		topK = DefaultTopK
	}
	if len(q.Terms) == 0 || corpus == nil {
		return resp, nil
	}

	start := time.Now()
	pool := topK * r.cfg.CandidateMultiplier
	var (
		qv                       queryVector
		matched, eligible, final []*Result
		lexCount, vecCount       int
	)
	// Filters run after fusion, so a pool crowded by ineligible or weak
	// candidates is widened until topK results survive or the indexes run dry.
	for {
		p, err := r.retrieve(ctx, corpus, q, pool, &qv)
		resp.Degraded = qv.degraded
		if err != nil {
			var pe *panicError
			if errors.As(err, &pe) {
				slog.Error("ranking_panic",
					slog.String("query", q.Raw),
					slog.String("where", pe.where),
					slog.String("panic", fmt.Sprint(pe.value)),
					slog.String("stack", string(pe.stack)))
				return resp, nil
			}
			return resp, err
		}
		lexCount, vecCount = len(p.lex), len(p.vec)

		matched = r.collect(corpus, p, qv.degraded)
		eligible = matched[:0:0]
		final = matched[:0:0]
		for _, res := range matched {
			if !filter.allows(res.Document) {
				continue
			}
			eligible = append(eligible, res)
			if res.relevance >= r.cfg.MinScore {
				final = append(final, res)
			}
		}
		if len(final) >= topK || !p.full || pool >= len(corpus.Chunks) {
			break
		}
		pool *= 2
	}

	if len(matched) > 0 && len(eligible) == 0 {
		resp.Status = StatusNoEligibleContent
		return resp, nil
	}
	if len(final) > topK {
		final = final[:topK]
	}
	for i, res := range final {
		res.Rank = i + 1
	}
	resp.Results = final

	switch {
	case len(final) == 0:
		resp.Status = StatusNoMatches
	case resp.Degraded:
		resp.Status = StatusDegradedLexicalOnly
	default:
		resp.Status = StatusOK
	}
	slog.Debug("search_ranked",
		slog.String("query", q.Raw),
		slog.String("status", string(resp.Status)),
		slog.Int("pool", pool),
		slog.Int("lexical_candidates", lexCount),
		slog.Int("vector_candidates", vecCount),
		slog.Int("results", len(final)),
		slog.Duration("elapsed", time.Since(start)))
	return resp, nil
}

// collect fuses one retrieval pass into sorted, deduplicated results.
func (r *Ranker) collect(corpus *Corpus, p pass, degraded bool) []*Result {
	weights := Weights{Vector: r.cfg.VectorWeight, Lexical: r.cfg.LexicalWeight}
	if degraded {
		weights = Weights{Vector: 0, Lexical: 1}
	}
	fused := fuse(p.lex, p.vec, weights, r.cfg.Normalization)

	results := make([]*Result, 0, len(fused))
	for _, c := range fused {
		ch, ok := corpus.Chunks[c.chunkID]
		if !ok {
			continue
		}
		doc, ok := corpus.Documents[ch.DocumentID]
		if !ok {
			continue
		}
		results = append(results, &Result{
			Chunk:        ch,
			Document:     doc,
			Score:        c.fused,
			VectorScore:  c.vecNorm,
			LexicalScore: c.lexNorm,
			ViaVector:    c.viaVector,
			ViaLexical:   c.viaLexical,
			MatchedTerms: c.matchedTerms,
			relevance:    c.relevance,
		})
	}

	var usage func(string) int
	if r.cfg.UsageTieBreak && r.usage != nil {
		usage = r.usage
	}
	sortResults(results, usage)
	return dedupe(results, func(res *Result) span {
		return span{doc: res.Chunk.DocumentID, start: res.Chunk.Start, end: res.Chunk.End}
	})
}

func (f Filter) allows(d *DocumentMeta) bool {
	if !f.IncludeDisabled && !d.Enabled {
		return false
	}
	return f.Category == "" || f.Category == d.Category
}

// pass is the candidate lists of one retrieval at a given pool size.
type pass struct {
	lex []*store.LexicalHit
	vec []*store.VectorHit
	// full is set when a list came back at pool size, so a wider pool may
	// hold more candidates.
	full bool
}

// queryVector carries the query embedding across widening passes.
type queryVector struct {
	vector   []float32
	embedded bool
	degraded bool
}

// retrieve queries both indexes in parallel. A failing vector path marks
// the search degraded; a failing lexical path is logged and contributes
// nothing.
func (r *Ranker) retrieve(ctx context.Context, corpus *Corpus, q EnhancedQuery, pool int, qv *queryVector) (pass, error) {
	var p pass
	var lexFull, vecFull bool
	g, gctx := errgroup.WithContext(ctx)

	goSafe(g, "lexical", func() error {
		hits, searchErr := corpus.Lexical.Search(gctx, q.Terms, pool)
		if searchErr != nil {
			if ctxErr := gctx.Err(); ctxErr != nil {
				return ctxErr
			}
			slog.Error("lexical_search_failed", slog.String("error", searchErr.Error()))
			return nil
		}
		p.lex = hits
		lexFull = len(hits) >= pool
		return nil
	})

	if !corpus.VectorEnabled() {
		qv.degraded = true
	}
	if !qv.degraded {
		goSafe(g, "vector", func() error {
			if !qv.embedded {
				res := embed.Query(gctx, r.embedder, q.Raw)
				if !res.OK() {
					if ctxErr := gctx.Err(); ctxErr != nil {
						return ctxErr
					}
					slog.Warn("vector_search_degraded",
						slog.String("kind", res.Kind.String()),
						slog.String("reason", res.Reason))
					qv.degraded = true
					return nil
				}
				qv.vector, qv.embedded = res.Vector, true
			}
			hits, searchErr := corpus.Vector.Search(gctx, qv.vector, pool)
			if searchErr != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				slog.Warn("vector_search_degraded", slog.String("error", searchErr.Error()))
				qv.degraded = true
				return nil
			}
			p.vec = r.similarEnough(hits)
			vecFull = len(hits) >= pool && len(p.vec) == len(hits)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return pass{}, err
	}
	if qv.degraded {
		p.vec, vecFull = nil, false
	}
	p.full = lexFull || vecFull
	return p, nil
}

// panicError carries a panic out of a retrieval goroutine, where the
// deferred recover in Rank cannot see it.
type panicError struct {
	where string
	value any
	stack []byte
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic in %s retrieval: %v", p.where, p.value)
}

func goSafe(g *errgroup.Group, where string, fn func() error) {
	g.Go(func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = &panicError{where: where, value: p, stack: debug.Stack()}
			}
		}()
		return fn()
	})
}

func (r *Ranker) similarEnough(hits []*store.VectorHit) []*store.VectorHit {
	out := hits[:0:0]
	for _, h := range hits {
		if float64(h.Score) >= r.cfg.MinVectorSimilarity {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
