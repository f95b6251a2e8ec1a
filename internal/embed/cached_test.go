package embed

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder records how many texts reach it.
type countingEmbedder struct {
	mu    sync.Mutex
	calls int
	texts int
	err   error
	model string
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (c *countingEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	c.calls++
	c.texts += len(texts)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (c *countingEmbedder) Dimensions() int { return 2 }
func (c *countingEmbedder) ModelName() string {
	if c.model == "" {
		return "counting"
	}
	return c.model
}
func (c *countingEmbedder) Available(context.Context) bool { return c.err == nil }
func (c *countingEmbedder) Close() error                   { return nil }

func TestCachedEmbedder_HitsSkipInner(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	first, err := c.Embed(ctx, "hello")
	require.NoError(t, err)
	second, err := c.Embed(ctx, "hello")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 1, c.Len())
}

func TestCachedEmbedder_BatchSendsOnlyMisses(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	_, err := c.Embed(ctx, "cached")
	require.NoError(t, err)

	vecs, err := c.EmbedBatch(ctx, []string{"cached", "new one", "another"})
	require.NoError(t, err)

	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{7, 1}, vecs[1])
	assert.Equal(t, 3, inner.texts)
	assert.Equal(t, 3, c.Len())
}

func TestCachedEmbedder_ErrorsAreNotCached(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("boom")}
	c := NewCachedEmbedder(inner, 10)

	_, err := c.Embed(context.Background(), "x")
	assert.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestCachedEmbedder_Evicts(t *testing.T) {
	c := NewCachedEmbedder(&countingEmbedder{}, 2)
	ctx := context.Background()
	for _, s := range []string{"a", "b", "c"} {
		_, err := c.Embed(ctx, s)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())
}

func TestCachedEmbedder_DuplicatesInBatchEmbeddedOnce(t *testing.T) {
	// Given a batch repeating the same text
	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, 10)

	// When embedding it
	vecs, err := c.EmbedBatch(context.Background(), []string{"same", "other", "same"})

	// Then the provider sees each distinct text once
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, vecs[0], vecs[2])
	assert.Equal(t, 2, inner.texts)
	assert.Equal(t, CacheStats{Hits: 0, Misses: 3, Entries: 2}, c.Stats())
}

func TestCachedEmbedder_ReturnedVectorsAreCopies(t *testing.T) {
	c := NewCachedEmbedder(&countingEmbedder{}, 10)
	ctx := context.Background()

	first, err := c.Embed(ctx, "abc")
	require.NoError(t, err)
	first[0] = 99

	second, err := c.Embed(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 1}, second)
}

func TestCachedEmbedder_ModelChangeMisses(t *testing.T) {
	// Given a cached vector from one model
	inner := &countingEmbedder{model: "v1"}
	c := NewCachedEmbedder(inner, 10)
	ctx := context.Background()
	_, err := c.Embed(ctx, "text")
	require.NoError(t, err)

	// When the provider reports a different model
	inner.model = "v2"
	_, err = c.Embed(ctx, "text")
	require.NoError(t, err)

	// Then the text is embedded again
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, uint64(2), c.Stats().Misses)
}

func TestCachedEmbedder_StatsAndPurge(t *testing.T) {
	c := NewCachedEmbedder(&countingEmbedder{}, 10)
	ctx := context.Background()
	for _, s := range []string{"a", "a", "b"} {
		_, err := c.Embed(ctx, s)
		require.NoError(t, err)
	}
	assert.Equal(t, CacheStats{Hits: 1, Misses: 2, Entries: 2}, c.Stats())

	c.Purge()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, uint64(1), c.Stats().Hits)
}
