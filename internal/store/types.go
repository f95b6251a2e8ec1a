// Package store holds the retrieval indexes and the document store.
//
// Lexical and vector indexes are built once from the authoritative chunk set
// and then only read; a rebuild creates a fresh index object. The SQLite
// document store owns documents, chunks, usage counters and the query log.
package store

import (
	"context"
	"fmt"
	"sort"
)

// LexicalDoc is one chunk as seen by a lexical index.
type LexicalDoc struct {
	ID   string
	Text string
	// Recency orders ties: larger is newer (document creation time in unix nanos).
	Recency int64
}

// LexicalHit is a scored lexical match.
type LexicalHit struct {
	ChunkID      string
	Score        float64
	MatchedTerms []string
}

// LexicalIndex is sparse term-weighted retrieval over chunk text.
type LexicalIndex interface {
	// Index replaces the index contents with docs.
	Index(ctx context.Context, docs []*LexicalDoc) error
	// Search scores docs against query terms, best first. Ties go to the
	// newer document, then to the smaller chunk ID.
	Search(ctx context.Context, terms []string, topK int) ([]*LexicalHit, error)
	Count() int
	Close() error
}

// VectorHit is a nearest-neighbour match with cosine similarity in [-1, 1].
type VectorHit struct {
	ChunkID string
	Score   float32
}

// VectorDoc is one chunk embedding as seen by a vector index.
type VectorDoc struct {
	ID      string
	Vector  []float32
	Recency int64
}

// VectorIndex is dense nearest-neighbour retrieval over chunk embeddings.
type VectorIndex interface {
	// Index replaces the index contents.
	Index(ctx context.Context, docs []*VectorDoc) error
	// Search returns the nearest chunks, best first, with the same tie
	// order as LexicalIndex.Search.
	Search(ctx context.Context, query []float32, topK int) ([]*VectorHit, error)
	Count() int
	Dimensions() int
	Close() error
}

// ErrDimensionMismatch is returned when a vector does not match the index.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// BM25 parameters.
const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// sortLexicalHits orders hits by score desc, recency desc, chunk ID asc.
func sortLexicalHits(hits []*LexicalHit, recency map[string]int64) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if ra, rb := recency[a.ChunkID], recency[b.ChunkID]; ra != rb {
			return ra > rb
		}
		return a.ChunkID < b.ChunkID
	})
}

func truncateHits[T any](hits []T, topK int) []T {
	if topK > 0 && len(hits) > topK {
		return hits[:topK]
	}
	return hits
}
