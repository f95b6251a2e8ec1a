package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float32 {
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot
}

func TestStaticEmbedder_DeterministicAndNormalized(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	a, err := e.Embed(ctx, "Support hours are 9am to 5pm")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "Support hours are 9am to 5pm")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, StaticDimensions)
	assert.InDelta(t, 1.0, cosine(a, a), 1e-5)
}

func TestStaticEmbedder_RelatedTextIsCloser(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	query, _ := e.Embed(ctx, "business hours")
	related, _ := e.Embed(ctx, "Our support hours are 9am to 5pm, Monday through Friday.")
	unrelated, _ := e.Embed(ctx, "Invoices are emailed after each consultation.")

	assert.Greater(t, cosine(query, related), cosine(query, unrelated))
}

func TestStaticEmbedder_EmptyTextIsZeroVector(t *testing.T) {
	v, err := NewStaticEmbedder().Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Len(t, v, StaticDimensions)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestStaticEmbedder_BatchAndClose(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	vecs, err := e.EmbedBatch(ctx, []string{"one", "two"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.True(t, e.Available(ctx))

	require.NoError(t, e.Close())
	assert.False(t, e.Available(ctx))
	_, err = e.Embed(ctx, "x")
	assert.Error(t, err)
}

func TestTrigrams(t *testing.T) {
	assert.Equal(t, []string{"_ab", "ab_"}, trigrams("ab"))
	assert.Equal(t, []string{"_x_"}, trigrams("x"))
}
