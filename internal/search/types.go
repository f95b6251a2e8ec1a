// Package search turns a raw query into ranked chunks: the Enhancer expands
// the query into terms, and the Ranker fuses lexical and vector retrieval
// over an immutable Corpus snapshot.
package search

import (
	"strings"

	"github.com/Aman-CERP/knowbase/internal/chunk"
	"github.com/Aman-CERP/knowbase/internal/store"
)

// Status describes the outcome of a search.
type Status string

const (
	StatusOK                  Status = "ok"
	StatusNoMatches           Status = "no_matches"
	StatusNoEligibleContent   Status = "no_eligible_content"
	StatusDegradedLexicalOnly Status = "degraded_lexical_only"
)

// DocumentMeta is the per-document data ranking needs.
type DocumentMeta struct {
	ID       string
	Title    string
	Category string
	Enabled  bool
	// Recency orders ties: larger is newer.
	Recency int64
}

// DisplayName is the title, falling back to the ID.
func (d *DocumentMeta) DisplayName() string {
	if d.Title != "" {
		return d.Title
	}
	return d.ID
}

// Corpus is one immutable index snapshot. A nil Vector means the vector
// index is disabled.
type Corpus struct {
	Lexical   store.LexicalIndex
	Vector    store.VectorIndex
	Chunks    map[string]*chunk.Chunk
	Documents map[string]*DocumentMeta
}

// VectorEnabled reports whether the snapshot has a usable vector index.
func (c *Corpus) VectorEnabled() bool {
	return c != nil && c.Vector != nil
}

// Filter restricts search results. The zero value returns enabled
// documents of any category.
type Filter struct {
	Category        string
	IncludeDisabled bool
}

// Result is one ranked chunk.
type Result struct {
	Chunk    *chunk.Chunk
	Document *DocumentMeta
	Score    float64 // fused score in [0, 1]
	// Normalized sub-scores; zero when the chunk was absent from that list.
	VectorScore  float64
	LexicalScore float64
	ViaVector    bool
	ViaLexical   bool
	MatchedTerms []string
	Rank         int // 1-based

	// relevance is the min_score signal; see fuse.
	relevance float64
}

// Response is the full outcome of Rank.
type Response struct {
	Results []*Result
	Status  Status
	Query   EnhancedQuery
	// Degraded is set whenever vector retrieval was skipped, even if the
	// status reports an empty result instead.
	Degraded bool
}

// Source records which enhancement path produced the terms.
type Source string

const (
	SourceLLM      Source = "llm"
	SourceFallback Source = "fallback"
)

// EnhancedQuery is a raw query expanded into search terms.
type EnhancedQuery struct {
	Raw    string
	Terms  []string
	Source Source
}

// Text joins the terms with spaces.
func (q EnhancedQuery) Text() string {
	return strings.Join(q.Terms, " ")
}
