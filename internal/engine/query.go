package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Aman-CERP/knowbase/internal/assemble"
	kberrors "github.com/Aman-CERP/knowbase/internal/errors"
	"github.com/Aman-CERP/knowbase/internal/search"
	"github.com/Aman-CERP/knowbase/internal/store"
	"github.com/Aman-CERP/knowbase/internal/telemetry"
)

// SearchRequest is a search against the current snapshot.
type SearchRequest struct {
	Query  string
	Filter search.Filter
	TopK   int // <= 0 uses search.default_top_k
}

// Search enhances the query and ranks the current snapshot. Empty results
// are reported through the response status, not as errors; only a
// cancelled context or a closed engine fails.
func (e *Engine) Search(ctx context.Context, req SearchRequest) (*search.Response, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, kberrors.New(kberrors.ErrCodeInvalidQuery, "query is empty", nil)
	}
	topK := req.TopK
	if topK <= 0 {
		topK = e.cfg.Search.DefaultTopK
	}
	start := time.Now()

	q := e.enhancer.Enhance(ctx, req.Query)

	corpus, done, err := e.acquire()
	if err != nil {
		return nil, err
	}
	resp, err := e.ranker.Rank(ctx, corpus, q, req.Filter, topK)
	done()
	if err != nil {
		return nil, err
	}

	latency := time.Since(start)
	e.recordQuery(ctx, &resp, latency)
	slog.Info("search_completed",
		slog.String("query", req.Query),
		slog.String("status", string(resp.Status)),
		slog.String("source", string(q.Source)),
		slog.Int("results", len(resp.Results)),
		slog.Duration("latency", latency))
	return &resp, nil
}

func (e *Engine) recordQuery(ctx context.Context, resp *search.Response, latency time.Duration) {
	e.metrics.Record(telemetry.QueryEvent{
		Query:       resp.Query.Raw,
		Terms:       resp.Query.Terms,
		Status:      string(resp.Status),
		Source:      string(resp.Query.Source),
		Degraded:    resp.Degraded,
		ResultCount: len(resp.Results),
		Latency:     latency,
		Timestamp:   time.Now(),
	})
	err := e.docs.RecordQuery(ctx, store.QueryRecord{
		Query:       resp.Query.Raw,
		Status:      string(resp.Status),
		ResultCount: len(resp.Results),
	})
	if err != nil {
		slog.Warn("query_log_failed", slog.String("error", err.Error()))
	}
}

// Assemble packs ranked results into context and records one reference per
// surfaced document. maxChars <= 0 uses context.max_context_chars.
func (e *Engine) Assemble(ctx context.Context, results []*search.Result, maxChars int) (*assemble.Context, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.assembler.Assemble(ctx, results, maxChars)
}

// ContextRequest is a search followed by context assembly.
type ContextRequest struct {
	SearchRequest
	MaxChars int
}

// ContextResponse carries both the assembled context and the search that
// produced it.
type ContextResponse struct {
	Context *assemble.Context
	Search  *search.Response
}

// Context searches and assembles the results into a bounded context.
func (e *Engine) Context(ctx context.Context, req ContextRequest) (*ContextResponse, error) {
	resp, err := e.Search(ctx, req.SearchRequest)
	if err != nil {
		return nil, err
	}
	c, err := e.Assemble(ctx, resp.Results, req.MaxChars)
	if err != nil {
		return nil, err
	}
	return &ContextResponse{Context: c, Search: resp}, nil
}
