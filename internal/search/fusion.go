package search

import (
	"sort"

	"github.com/Aman-CERP/knowbase/internal/store"
)

// candidate is one chunk during fusion.
type candidate struct {
	chunkID      string
	lexRaw       float64
	vecRaw       float64
	lexNorm      float64
	vecNorm      float64
	viaLexical   bool
	viaVector    bool
	fused        float64
	relevance    float64
	matchedTerms []string
}

// Weights are the fusion weights for the normalized sub-scores.
type Weights struct {
	Vector  float64
	Lexical float64
}

// Normalization methods for sub-scores.
const (
	NormalizeMinMax = "minmax"
	NormalizeMax    = "max"
)

func normalize(scores []float64, method string) []float64 {
	if method == NormalizeMax {
		return maxNorm(scores)
	}
	return minMax(scores)
}

// maxNorm divides by the list maximum. The weakest candidate keeps a
// non-zero share, unlike minMax. A non-positive maximum maps to zeros.
func maxNorm(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	hi := scores[0]
	for _, s := range scores[1:] {
		hi = max(hi, s)
	}
	if hi <= 0 {
		return out
	}
	for i, s := range scores {
		out[i] = s / hi
	}
	return out
}

// minMax maps scores to [0,1] within their own list. A list whose scores
// are all equal maps to 1.0.
func minMax(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		lo = min(lo, s)
		hi = max(hi, s)
	}
	for i, s := range scores {
		if hi == lo {
			out[i] = 1.0
		} else {
			out[i] = (s - lo) / (hi - lo)
		}
	}
	return out
}

// fuse combines the two candidate lists. A chunk missing from a list
// contributes zero for that term.
//
// fused orders candidates and uses the configured normalization. relevance
// is the same weighted sum over max-normalized raw scores: min-max pins the
// weakest real match of a list to zero, so the min_score floor is applied
// to relevance instead.
func fuse(lex []*store.LexicalHit, vec []*store.VectorHit, w Weights, method string) map[string]*candidate {
	out := make(map[string]*candidate, len(lex)+len(vec))
	get := func(id string) *candidate {
		c, ok := out[id]
		if !ok {
			c = &candidate{chunkID: id}
			out[id] = c
		}
		return c
	}

	lexScores := make([]float64, len(lex))
	for i, h := range lex {
		lexScores[i] = h.Score
	}
	lexShare := maxNorm(lexScores)
	for i, n := range normalize(lexScores, method) {
		c := get(lex[i].ChunkID)
		c.viaLexical = true
		c.lexRaw = lex[i].Score
		c.lexNorm = n
		c.relevance += w.Lexical * lexShare[i]
		c.matchedTerms = lex[i].MatchedTerms
	}

	vecScores := make([]float64, len(vec))
	for i, h := range vec {
		vecScores[i] = float64(h.Score)
	}
	vecShare := maxNorm(vecScores)
	for i, n := range normalize(vecScores, method) {
		c := get(vec[i].ChunkID)
		c.viaVector = true
		c.vecRaw = float64(vec[i].Score)
		c.vecNorm = n
		c.relevance += w.Vector * vecShare[i]
	}

	for _, c := range out {
		c.fused = w.Vector*c.vecNorm + w.Lexical*c.lexNorm
	}
	return out
}

// span is the text range a chunk covers in its document.
type span struct {
	doc        string
	start, end int
}

func (s span) overlaps(o span) bool {
	return s.doc == o.doc && s.start < o.end && o.start < s.end
}

// dedupe drops any candidate whose span intersects a higher-ranked
// candidate of the same document. cands must be sorted best first.
func dedupe[T any](cands []T, spanOf func(T) span) []T {
	kept := make([]T, 0, len(cands))
	byDoc := make(map[string][]span)
	for _, c := range cands {
		s := spanOf(c)
		dup := false
		for _, k := range byDoc[s.doc] {
			if s.overlaps(k) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		byDoc[s.doc] = append(byDoc[s.doc], s)
		kept = append(kept, c)
	}
	return kept
}

// sortResults orders by fused score desc, then (optionally) usage desc,
// recency desc, chunk ID asc.
func sortResults(results []*Result, usage func(docID string) int) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if usage != nil {
			if ua, ub := usage(a.Document.ID), usage(b.Document.ID); ua != ub {
				return ua > ub
			}
		}
		if a.Document.Recency != b.Document.Recency {
			return a.Document.Recency > b.Document.Recency
		}
		return a.Chunk.ID < b.Chunk.ID
	})
}
