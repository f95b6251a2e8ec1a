package engine

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/Aman-CERP/knowbase/internal/search"
	"github.com/Aman-CERP/knowbase/internal/store"
)

// Feedback deltas applied to a document's effectiveness score.
const (
	PositiveFeedbackDelta = 0.1
	NegativeFeedbackDelta = -0.05
)

// UnderutilizedThreshold is the reference count below which a document
// counts as underutilized.
const UnderutilizedThreshold = 2

const topDocumentsLimit = 5

// DocumentStats pairs a document with its usage counter.
type DocumentStats struct {
	Document *store.Document
	Usage    store.UsageCounter
}

// Summary is an overview of the knowledge base.
type Summary struct {
	TotalDocuments     int              `json:"total_documents"`
	ProcessedDocuments int              `json:"processed_documents"`
	FailedDocuments    int              `json:"failed_documents"`
	DisabledDocuments  int              `json:"disabled_documents"`
	ProcessingRate     float64          `json:"processing_rate"` // percent
	Categories         map[string]int   `json:"categories"`
	TotalReferences    int              `json:"total_references"`
	TopDocuments       []*DocumentStats `json:"top_documents"`
	VectorEnabled      bool             `json:"vector_enabled"`
}

// GetUsageStats returns a document's usage counter.
func (e *Engine) GetUsageStats(ctx context.Context, documentID string) (store.UsageCounter, error) {
	if err := e.checkOpen(); err != nil {
		return store.UsageCounter{}, err
	}
	if _, err := e.docs.GetDocument(ctx, documentID); err != nil {
		return store.UsageCounter{}, err
	}
	return e.docs.GetUsage(ctx, documentID)
}

// RecordFeedback adjusts a document's effectiveness score and returns the
// new, clamped value.
func (e *Engine) RecordFeedback(ctx context.Context, documentID string, positive bool) (float64, error) {
	if err := e.checkOpen(); err != nil {
		return 0, err
	}
	delta := NegativeFeedbackDelta
	if positive {
		delta = PositiveFeedbackDelta
	}
	score, err := e.docs.AdjustEffectiveness(ctx, documentID, delta)
	if err != nil {
		return 0, err
	}
	slog.Info("feedback_recorded",
		slog.String("document_id", documentID),
		slog.Bool("positive", positive),
		slog.Float64("effectiveness", score))
	return score, nil
}

// Document returns one stored document.
func (e *Engine) Document(ctx context.Context, documentID string) (*store.Document, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.docs.GetDocument(ctx, documentID)
}

// Documents lists stored documents.
func (e *Engine) Documents(ctx context.Context, filter store.DocumentFilter) ([]*store.Document, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.docs.ListDocuments(ctx, filter)
}

func (e *Engine) documentStats(ctx context.Context, filter store.DocumentFilter) ([]*DocumentStats, error) {
	docs, err := e.docs.ListDocuments(ctx, filter)
	if err != nil {
		return nil, err
	}
	usage, err := e.docs.ListUsage(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*DocumentStats, len(docs))
	for i, d := range docs {
		u, ok := usage[d.ID]
		if !ok {
			u = store.UsageCounter{DocumentID: d.ID}
		}
		out[i] = &DocumentStats{Document: d, Usage: u}
	}
	return out, nil
}

// KnowledgeSummary reports document counts, categories and the most
// referenced documents.
func (e *Engine) KnowledgeSummary(ctx context.Context) (*Summary, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	stats, err := e.documentStats(ctx, store.DocumentFilter{})
	if err != nil {
		return nil, err
	}

	s := &Summary{
		TotalDocuments: len(stats),
		Categories:     make(map[string]int),
		TopDocuments:   []*DocumentStats{},
		VectorEnabled:  e.VectorEnabled(),
	}
	for _, st := range stats {
		d := st.Document
		switch d.Status {
		case store.StatusProcessed:
			s.ProcessedDocuments++
		case store.StatusFailed:
			s.FailedDocuments++
		}
		if !d.Enabled {
			s.DisabledDocuments++
		}
		category := d.Category
		if category == "" {
			category = "uncategorized"
		}
		s.Categories[category]++
		s.TotalReferences += st.Usage.ReferenceCount
	}
	if s.TotalDocuments > 0 {
		s.ProcessingRate = float64(s.ProcessedDocuments) / float64(s.TotalDocuments) * 100
	}

	ranked := make([]*DocumentStats, 0, len(stats))
	for _, st := range stats {
		if st.Usage.ReferenceCount > 0 {
			ranked = append(ranked, st)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Usage.ReferenceCount > ranked[j].Usage.ReferenceCount
	})
	if len(ranked) > topDocumentsLimit {
		ranked = ranked[:topDocumentsLimit]
	}
	s.TopDocuments = append(s.TopDocuments, ranked...)
	return s, nil
}

// DocumentsByCategory lists a category's documents, most effective first,
// then most referenced.
func (e *Engine) DocumentsByCategory(ctx context.Context, category string) ([]*DocumentStats, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	stats, err := e.documentStats(ctx, store.DocumentFilter{Category: category})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(stats, func(i, j int) bool {
		a, b := stats[i], stats[j]
		if a.Document.Effectiveness != b.Document.Effectiveness {
			return a.Document.Effectiveness > b.Document.Effectiveness
		}
		return a.Usage.ReferenceCount > b.Usage.ReferenceCount
	})
	return stats, nil
}

// UnderutilizedDocuments lists processed, enabled documents referenced
// fewer than UnderutilizedThreshold times, least referenced first, then
// newest first.
func (e *Engine) UnderutilizedDocuments(ctx context.Context) ([]*DocumentStats, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	stats, err := e.documentStats(ctx, store.DocumentFilter{Status: store.StatusProcessed, EnabledOnly: true})
	if err != nil {
		return nil, err
	}
	out := make([]*DocumentStats, 0, len(stats))
	for _, st := range stats {
		if st.Usage.ReferenceCount < UnderutilizedThreshold {
			out = append(out, st)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Usage.ReferenceCount != b.Usage.ReferenceCount {
			return a.Usage.ReferenceCount < b.Usage.ReferenceCount
		}
		return a.Document.CreatedAt.After(b.Document.CreatedAt)
	})
	return out, nil
}

// KnowledgeGaps returns recent distinct queries that found nothing, most
// recent first.
func (e *Engine) KnowledgeGaps(ctx context.Context, limit int) ([]store.QueryRecord, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	records, err := e.docs.RecentQueries(ctx, string(search.StatusNoMatches), limit*5)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(records))
	gaps := make([]store.QueryRecord, 0, limit)
	for _, r := range records {
		key := strings.ToLower(strings.TrimSpace(r.Query))
		if seen[key] {
			continue
		}
		seen[key] = true
		gaps = append(gaps, r)
		if len(gaps) == limit {
			break
		}
	}
	return gaps, nil
}

// SetEnabled toggles a document and publishes the change.
func (e *Engine) SetEnabled(ctx context.Context, documentID string, enabled bool) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	if err := e.docs.SetEnabled(ctx, documentID, enabled); err != nil {
		return err
	}
	slog.Info("document_enabled_changed", slog.String("document_id", documentID), slog.Bool("enabled", enabled))
	return e.rebuildLocked(ctx)
}

// DeleteDocument removes a document and publishes the change.
func (e *Engine) DeleteDocument(ctx context.Context, documentID string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	if err := e.docs.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	e.usage.forget(documentID)
	slog.Info("document_deleted", slog.String("document_id", documentID))
	return e.rebuildLocked(ctx)
}
