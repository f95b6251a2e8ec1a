package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"
)

const (
	proseTokenizerName = "knowbase_prose"
	proseAnalyzerName  = "knowbase_prose_analyzer"
	contentField       = "content"
)

func init() {
	_ = registry.RegisterTokenizer(proseTokenizerName, func(map[string]interface{}, *registry.Cache) (analysis.Tokenizer, error) {
		return proseTokenizer{}, nil
	})
}

// proseTokenizer adapts Tokens to bleve so both lexical backends agree on
// terms, stop words and plural folding.
type proseTokenizer struct{}

func (proseTokenizer) Tokenize(input []byte) analysis.TokenStream {
	toks := Tokens(string(input))
	stream := make(analysis.TokenStream, 0, len(toks))
	for i, t := range toks {
		stream = append(stream, &analysis.Token{
			Term:     []byte(t.Term),
			Start:    t.Start,
			End:      t.End,
			Position: i + 1,
			Type:     analysis.AlphaNumeric,
		})
	}
	return stream
}

type bleveChunk struct {
	Content string `json:"content"`
}

// BleveLexicalIndex is a lexical backend on an in-memory bleve index.
// Scores come from bleve's TF-IDF scorer; ties follow the same recency
// rule as the other backends.
type BleveLexicalIndex struct {
	mu      sync.RWMutex
	index   bleve.Index
	recency map[string]int64
	count   int
	closed  bool
}

func newProseMapping() (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()
	err := m.AddCustomAnalyzer(proseAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": proseTokenizerName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add prose analyzer: %w", err)
	}
	m.DefaultAnalyzer = proseAnalyzerName
	return m, nil
}

// NewBleveLexicalIndex creates an empty bleve-backed index.
func NewBleveLexicalIndex() (*BleveLexicalIndex, error) {
	idx, err := newMemIndex()
	if err != nil {
		return nil, err
	}
	return &BleveLexicalIndex{index: idx, recency: map[string]int64{}}, nil
}

func newMemIndex() (bleve.Index, error) {
	m, err := newProseMapping()
	if err != nil {
		return nil, err
	}
	idx, err := bleve.NewMemOnly(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create bleve index: %w", err)
	}
	return idx, nil
}

func (b *BleveLexicalIndex) Index(ctx context.Context, docs []*LexicalDoc) error {
	next, err := newMemIndex()
	if err != nil {
		return err
	}

	recency := make(map[string]int64, len(docs))
	batch := next.NewBatch()
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			_ = next.Close()
			return err
		}
		recency[d.ID] = d.Recency
		if err := batch.Index(d.ID, bleveChunk{Content: d.Text}); err != nil {
			_ = next.Close()
			return fmt.Errorf("failed to index chunk %s: %w", d.ID, err)
		}
	}
	if err := next.Batch(batch); err != nil {
		_ = next.Close()
		return fmt.Errorf("failed to execute batch: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		_ = next.Close()
		return errIndexClosed
	}
	old := b.index
	b.index, b.recency, b.count = next, recency, len(docs)
	return old.Close()
}

func (b *BleveLexicalIndex) Search(ctx context.Context, terms []string, topK int) ([]*LexicalHit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, errIndexClosed
	}

	q := strings.TrimSpace(strings.Join(terms, " "))
	if q == "" || b.count == 0 {
		return []*LexicalHit{}, nil
	}

	match := bleve.NewMatchQuery(q)
	match.SetField(contentField)
	req := bleve.NewSearchRequest(match)
	// Fetch every match so recency tie-breaks are applied before truncation.
	req.Size = b.count
	req.IncludeLocations = true

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]*LexicalHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, &LexicalHit{
			ChunkID:      h.ID,
			Score:        h.Score,
			MatchedTerms: matchedTerms(h),
		})
	}
	sortLexicalHits(hits, b.recency)
	return truncateHits(hits, topK), nil
}

func matchedTerms(hit *search.DocumentMatch) []string {
	var terms []string
	for term := range hit.Locations[contentField] {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}

func (b *BleveLexicalIndex) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

func (b *BleveLexicalIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

var _ LexicalIndex = (*BleveLexicalIndex)(nil)
