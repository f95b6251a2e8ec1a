package store

import (
	"context"
	"errors"
	"math"
	"sync"
)

var errIndexClosed = errors.New("index is closed")

type posting struct {
	doc int
	tf  int
}

// MemoryLexicalIndex is an in-process Okapi BM25 index. It is the default
// lexical backend: rebuild is linear in total text length and a query
// touches only the posting lists of its terms.
type MemoryLexicalIndex struct {
	k1, b float64

	mu       sync.RWMutex
	ids      []string
	recency  map[string]int64
	docLen   []int
	avgLen   float64
	postings map[string][]posting
	closed   bool
}

// NewMemoryLexicalIndex creates an empty index with the default k1 and b.
func NewMemoryLexicalIndex() *MemoryLexicalIndex {
	return NewMemoryLexicalIndexWithParams(DefaultK1, DefaultB)
}

// NewMemoryLexicalIndexWithParams sets BM25 term saturation (k1) and
// length normalization (b).
func NewMemoryLexicalIndexWithParams(k1, b float64) *MemoryLexicalIndex {
	return &MemoryLexicalIndex{
		k1:       k1,
		b:        b,
		recency:  map[string]int64{},
		postings: map[string][]posting{},
	}
}

func (m *MemoryLexicalIndex) Index(ctx context.Context, docs []*LexicalDoc) error {
	ids := make([]string, len(docs))
	docLen := make([]int, len(docs))
	recency := make(map[string]int64, len(docs))
	postings := make(map[string][]posting)

	total := 0
	for i, d := range docs {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		ids[i] = d.ID
		recency[d.ID] = d.Recency

		terms := Tokenize(d.Text)
		docLen[i] = len(terms)
		total += len(terms)

		tf := make(map[string]int, len(terms))
		for _, t := range terms {
			tf[t]++
		}
		for t, n := range tf {
			postings[t] = append(postings[t], posting{doc: i, tf: n})
		}
	}

	avg := 0.0
	if len(docs) > 0 {
		avg = float64(total) / float64(len(docs))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errIndexClosed
	}
	m.ids, m.docLen, m.recency, m.postings, m.avgLen = ids, docLen, recency, postings, avg
	return nil
}

func (m *MemoryLexicalIndex) Search(ctx context.Context, terms []string, topK int) ([]*LexicalHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errIndexClosed
	}
	if len(terms) == 0 || len(m.ids) == 0 {
		return []*LexicalHit{}, nil
	}

	n := float64(len(m.ids))
	scores := make(map[int]float64)
	matched := make(map[int][]string)
	seen := make(map[string]bool, len(terms))

	for _, raw := range terms {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, term := range Tokenize(raw) {
			if seen[term] {
				continue
			}
			seen[term] = true

			list := m.postings[term]
			if len(list) == 0 {
				continue
			}
			df := float64(len(list))
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			for _, p := range list {
				tf := float64(p.tf)
				norm := 1 - m.b + m.b*float64(m.docLen[p.doc])/m.avgLen
				scores[p.doc] += idf * tf * (m.k1 + 1) / (tf + m.k1*norm)
				matched[p.doc] = append(matched[p.doc], term)
			}
		}
	}

	hits := make([]*LexicalHit, 0, len(scores))
	for doc, score := range scores {
		hits = append(hits, &LexicalHit{
			ChunkID:      m.ids[doc],
			Score:        score,
			MatchedTerms: matched[doc],
		})
	}
	sortLexicalHits(hits, m.recency)
	return truncateHits(hits, topK), nil
}

func (m *MemoryLexicalIndex) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

func (m *MemoryLexicalIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.postings = nil
	return nil
}

var _ LexicalIndex = (*MemoryLexicalIndex)(nil)
