package embed

import (
	"context"
	"crypto/sha256"
	"slices"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of embeddings kept by CachedEmbedder.
const DefaultCacheSize = 1000

// vectorKey identifies one embedding. The model is part of the key so a
// provider swap never serves vectors of the old model.
type vectorKey struct {
	model  string
	digest [sha256.Size]byte
}

// CacheStats counts cache lookups since the embedder was created.
type CacheStats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Entries int    `json:"entries"`
}

// CachedEmbedder remembers the vectors of recently embedded texts. Every
// call goes through EmbedBatch; duplicate texts within a batch reach the
// provider once. Returned vectors are copies, so callers may modify them.
type CachedEmbedder struct {
	inner   Embedder
	vectors *lru.Cache[vectorKey, []float32]
	hits    atomic.Uint64
	misses  atomic.Uint64
}

var _ Embedder = (*CachedEmbedder)(nil)

func NewCachedEmbedder(inner Embedder, cacheSize int) *CachedEmbedder {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	vectors, _ := lru.New[vectorKey, []float32](cacheSize)
	return &CachedEmbedder{inner: inner, vectors: vectors}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	model := c.inner.ModelName()
	keys := make([]vectorKey, len(texts))
	out := make([][]float32, len(texts))

	// pending maps a missing key to the positions waiting on it.
	pending := make(map[vectorKey][]int)
	var order []vectorKey
	for i, text := range texts {
		keys[i] = vectorKey{model: model, digest: sha256.Sum256([]byte(text))}
		if vec, ok := c.vectors.Get(keys[i]); ok {
			c.hits.Add(1)
			out[i] = slices.Clone(vec)
			continue
		}
		c.misses.Add(1)
		if _, seen := pending[keys[i]]; !seen {
			order = append(order, keys[i])
		}
		pending[keys[i]] = append(pending[keys[i]], i)
	}
	if len(order) == 0 {
		return out, nil
	}

	request := make([]string, len(order))
	for j, k := range order {
		request[j] = texts[pending[k][0]]
	}
	fresh, err := c.inner.EmbedBatch(ctx, request)
	if err != nil {
		return nil, err
	}
	for j, k := range order {
		c.vectors.Add(k, fresh[j])
		for _, i := range pending[k] {
			out[i] = slices.Clone(fresh[j])
		}
	}
	return out, nil
}

// Stats reports hit and miss counts and the current cache size.
func (c *CachedEmbedder) Stats() CacheStats {
	return CacheStats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.vectors.Len(),
	}
}

// Len returns the number of cached embeddings.
func (c *CachedEmbedder) Len() int { return c.vectors.Len() }

// Purge drops every cached vector. Counters are kept.
func (c *CachedEmbedder) Purge() { c.vectors.Purge() }

func (c *CachedEmbedder) Dimensions() int                    { return c.inner.Dimensions() }
func (c *CachedEmbedder) ModelName() string                  { return c.inner.ModelName() }
func (c *CachedEmbedder) Available(ctx context.Context) bool { return c.inner.Available(ctx) }
func (c *CachedEmbedder) Close() error                       { return c.inner.Close() }
