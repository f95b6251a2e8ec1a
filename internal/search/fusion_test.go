package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/knowbase/internal/store"
)

func TestMinMax(t *testing.T) {
	assert.Equal(t, []float64{0, 0.5, 1}, minMax([]float64{2, 4, 6}))
	assert.Equal(t, []float64{1}, minMax([]float64{3.2}))
	assert.Equal(t, []float64{1, 1}, minMax([]float64{5, 5}))
	assert.Empty(t, minMax(nil))
}

func TestMaxNorm(t *testing.T) {
	assert.Equal(t, []float64{0.5, 1}, maxNorm([]float64{2, 4}))
	assert.Equal(t, []float64{0, 0}, maxNorm([]float64{0, -1}))
}

func TestFuse_AbsentListContributesZero(t *testing.T) {
	lex := []*store.LexicalHit{{ChunkID: "a", Score: 4}, {ChunkID: "b", Score: 2}}
	vec := []*store.VectorHit{{ChunkID: "b", Score: 0.9}, {ChunkID: "c", Score: 0.5}}

	got := fuse(lex, vec, Weights{Vector: 0.6, Lexical: 0.4}, NormalizeMinMax)

	assert.InDelta(t, 0.4, got["a"].fused, 1e-9)
	assert.InDelta(t, 0.6, got["b"].fused, 1e-9)
	assert.InDelta(t, 0.0, got["c"].fused, 1e-9)
	assert.True(t, got["b"].viaLexical && got["b"].viaVector)
	assert.False(t, got["a"].viaVector)
}

func TestFuse_RelevanceKeepsWeakestMatch(t *testing.T) {
	lex := []*store.LexicalHit{{ChunkID: "a", Score: 4}, {ChunkID: "b", Score: 1}}

	got := fuse(lex, nil, Weights{Vector: 0, Lexical: 1}, NormalizeMinMax)

	// min-max pins the weaker match to zero; relevance does not
	assert.InDelta(t, 0.0, got["b"].fused, 1e-9)
	assert.InDelta(t, 0.25, got["b"].relevance, 1e-9)
	assert.InDelta(t, 1.0, got["a"].relevance, 1e-9)
}

func TestFuse_VectorScoreIsMonotonic(t *testing.T) {
	lex := []*store.LexicalHit{{ChunkID: "a", Score: 3}, {ChunkID: "b", Score: 1}, {ChunkID: "c", Score: 2}}
	w := Weights{Vector: 0.6, Lexical: 0.4}

	rankOf := func(fused map[string]*candidate, id string) int {
		rank := 1
		for other, c := range fused {
			if other != id && c.fused > fused[id].fused {
				rank++
			}
		}
		return rank
	}

	prevScore, prevRank := -1.0, 1<<30
	for _, sim := range []float32{0.1, 0.3, 0.5, 0.7, 0.95} {
		vec := []*store.VectorHit{{ChunkID: "a", Score: 0.6}, {ChunkID: "b", Score: sim}, {ChunkID: "c", Score: 0.4}}
		fused := fuse(lex, vec, w, NormalizeMinMax)
		score, rank := fused["b"].fused, rankOf(fused, "b")
		assert.GreaterOrEqual(t, score, prevScore, "sim %.2f", sim)
		assert.LessOrEqual(t, rank, prevRank, "sim %.2f", sim)
		prevScore, prevRank = score, rank
	}
}

func TestDedupe_KeepsHigherOfOverlappingSpans(t *testing.T) {
	type item struct {
		id  string
		doc string
		s   int
		e   int
	}
	items := []item{
		{"c2", "d", 150, 400},
		{"c1", "d", 0, 200},
		{"c3", "d", 400, 600},
		{"x1", "other", 0, 200},
	}
	kept := dedupe(items, func(it item) span { return span{doc: it.doc, start: it.s, end: it.e} })

	ids := make([]string, len(kept))
	for i, k := range kept {
		ids[i] = k.id
	}
	assert.Equal(t, []string{"c2", "c3", "x1"}, ids)
}
