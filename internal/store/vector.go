package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// Normalize scales v to unit length in place. Zero vectors are left as is.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

func normalizedCopy(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	Normalize(out)
	return out
}

func checkVectors(dims int, docs []*VectorDoc) error {
	for _, d := range docs {
		if d == nil {
			return fmt.Errorf("nil vector doc")
		}
		if len(d.Vector) != dims {
			return ErrDimensionMismatch{Expected: dims, Got: len(d.Vector)}
		}
	}
	return nil
}

func recencyOf(docs []*VectorDoc) map[string]int64 {
	recency := make(map[string]int64, len(docs))
	for _, d := range docs {
		recency[d.ID] = d.Recency
	}
	return recency
}

// sortVectorHits orders hits by similarity desc, recency desc, chunk ID asc.
func sortVectorHits(hits []*VectorHit, recency map[string]int64) {
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

// FlatVectorIndex is an exact cosine index: every query scans all vectors.
// It is the default for departmental corpora, where a scan is cheaper than
// maintaining a graph.
type FlatVectorIndex struct {
	dims int

	mu      sync.RWMutex
	ids     []string
	vectors [][]float32
	recency map[string]int64
	closed  bool
}

func NewFlatVectorIndex(dims int) *FlatVectorIndex {
	return &FlatVectorIndex{dims: dims}
}

func (f *FlatVectorIndex) Index(ctx context.Context, docs []*VectorDoc) error {
	if err := checkVectors(f.dims, docs); err != nil {
		return err
	}
	ids := make([]string, len(docs))
	next := make([][]float32, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
		next[i] = normalizedCopy(d.Vector)
	}
	recency := recencyOf(docs)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errIndexClosed
	}
	f.ids, f.vectors, f.recency = ids, next, recency
	return nil
}

func (f *FlatVectorIndex) Search(ctx context.Context, query []float32, topK int) ([]*VectorHit, error) {
	if len(query) != f.dims {
		return nil, ErrDimensionMismatch{Expected: f.dims, Got: len(query)}
	}
	q := normalizedCopy(query)

	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, errIndexClosed
	}

	hits := make([]*VectorHit, 0, len(f.ids))
	for i, v := range f.vectors {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		var dot float32
		for j := range v {
			dot += v[j] * q[j]
		}
		hits = append(hits, &VectorHit{ChunkID: f.ids[i], Score: dot})
	}
	sortVectorHits(hits, f.recency)
	return truncateHits(hits, topK), nil
}

func (f *FlatVectorIndex) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.ids)
}

func (f *FlatVectorIndex) Dimensions() int { return f.dims }

func (f *FlatVectorIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.vectors = nil
	return nil
}

// HNSWConfig tunes the HNSW graph.
type HNSWConfig struct {
	M        int // max neighbours per node (default 16)
	EfSearch int // search candidate list size (default 20)
}

// HNSWVectorIndex is an approximate cosine index on coder/hnsw.
type HNSWVectorIndex struct {
	dims int
	cfg  HNSWConfig

	mu      sync.RWMutex
	graph   *hnsw.Graph[string]
	recency map[string]int64
	closed  bool
}

func NewHNSWVectorIndex(dims int, cfg HNSWConfig) *HNSWVectorIndex {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}
	return &HNSWVectorIndex{dims: dims, cfg: cfg, graph: newGraph(cfg)}
}

func newGraph(cfg HNSWConfig) *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.Distance = hnsw.CosineDistance
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = 0.25
	return g
}

func (h *HNSWVectorIndex) Index(ctx context.Context, docs []*VectorDoc) error {
	if err := checkVectors(h.dims, docs); err != nil {
		return err
	}
	g := newGraph(h.cfg)
	for i, d := range docs {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		g.Add(hnsw.MakeNode(d.ID, normalizedCopy(d.Vector)))
	}
	recency := recencyOf(docs)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errIndexClosed
	}
	h.graph, h.recency = g, recency
	return nil
}

func (h *HNSWVectorIndex) Search(ctx context.Context, query []float32, topK int) ([]*VectorHit, error) {
	if len(query) != h.dims {
		return nil, ErrDimensionMismatch{Expected: h.dims, Got: len(query)}
	}
	q := normalizedCopy(query)

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil, errIndexClosed
	}
	if h.graph.Len() == 0 || topK <= 0 {
		return []*VectorHit{}, nil
	}

	nodes := h.graph.Search(q, topK)
	hits := make([]*VectorHit, 0, len(nodes))
	for _, n := range nodes {
		hits = append(hits, &VectorHit{
			ChunkID: n.Key,
			Score:   1 - hnsw.CosineDistance(q, n.Value),
		})
	}
	sortVectorHits(hits, h.recency)
	return hits, nil
}

func (h *HNSWVectorIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.graph.Len()
}

func (h *HNSWVectorIndex) Dimensions() int { return h.dims }

func (h *HNSWVectorIndex) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

var (
	_ VectorIndex = (*FlatVectorIndex)(nil)
	_ VectorIndex = (*HNSWVectorIndex)(nil)
)
