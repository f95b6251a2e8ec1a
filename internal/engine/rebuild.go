package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aman-CERP/knowbase/internal/chunk"
	"github.com/Aman-CERP/knowbase/internal/embed"
	"github.com/Aman-CERP/knowbase/internal/search"
	"github.com/Aman-CERP/knowbase/internal/store"
)

// rebuild builds a new corpus from the document store and publishes it.
// Only processed documents are indexed; disabled ones are indexed too so
// the ranker can tell "nothing matched" from "nothing eligible".
// Callers hold writeMu.
func (e *Engine) rebuild(ctx context.Context) error {
	start := time.Now()

	docs, err := e.docs.ListDocuments(ctx, store.DocumentFilter{Status: store.StatusProcessed})
	if err != nil {
		return err
	}
	all, err := e.docs.AllChunks(ctx)
	if err != nil {
		return err
	}

	corpus := &search.Corpus{
		Chunks:    make(map[string]*chunk.Chunk, len(all)),
		Documents: make(map[string]*search.DocumentMeta, len(docs)),
	}
	for _, d := range docs {
		corpus.Documents[d.ID] = &search.DocumentMeta{
			ID:       d.ID,
			Title:    d.Title,
			Category: d.Category,
			Enabled:  d.Enabled,
			Recency:  d.CreatedAt.UnixNano(),
		}
	}

	chunks := make([]*chunk.Chunk, 0, len(all))
	lexDocs := make([]*store.LexicalDoc, 0, len(all))
	for _, c := range all {
		meta, ok := corpus.Documents[c.DocumentID]
		if !ok {
			continue
		}
		chunks = append(chunks, c)
		corpus.Chunks[c.ID] = c
		lexDocs = append(lexDocs, &store.LexicalDoc{ID: c.ID, Text: c.IndexText(), Recency: meta.Recency})
	}

	lex, err := store.NewLexicalIndex(e.cfg.Search.LexicalBackend)
	if err != nil {
		return err
	}
	if err := lex.Index(ctx, lexDocs); err != nil {
		_ = lex.Close()
		return err
	}
	corpus.Lexical = lex

	if e.embedder != nil {
		vec, err := e.buildVectorIndex(ctx, chunks, corpus.Documents)
		if err != nil {
			slog.Warn("vector_index_degraded",
				slog.Int("chunks", len(chunks)),
				slog.String("error", err.Error()))
		} else {
			corpus.Vector = vec
		}
	}

	e.publish(corpus)

	attrs := []any{
		slog.Int("documents", len(corpus.Documents)),
		slog.Int("chunks", len(corpus.Chunks)),
		slog.Bool("vector", corpus.Vector != nil),
		slog.Duration("duration", time.Since(start)),
	}
	if cached, ok := e.embedder.(*embed.CachedEmbedder); ok {
		st := cached.Stats()
		attrs = append(attrs, slog.Uint64("embed_cache_hits", st.Hits), slog.Uint64("embed_cache_misses", st.Misses))
	}
	slog.Debug("index_rebuilt", attrs...)
	return nil
}

// buildVectorIndex indexes every chunk that has, or can be given, an
// embedding of the embedder's dimensionality. Chunks embedded here (for
// example after a model change) are written back to the store.
func (e *Engine) buildVectorIndex(ctx context.Context, chunks []*chunk.Chunk, docs map[string]*search.DocumentMeta) (store.VectorIndex, error) {
	dims := e.embedder.Dimensions()

	var stale []*chunk.Chunk
	for _, c := range chunks {
		if len(c.Embedding) != dims {
			stale = append(stale, c)
		}
	}
	if len(stale) > 0 {
		if err := e.embedChunks(ctx, stale); err != nil {
			slog.Warn("reembed_failed", slog.Int("chunks", len(stale)), slog.String("error", err.Error()))
		} else {
			e.persistEmbeddings(ctx, stale, chunks)
		}
	}

	vecDocs := make([]*store.VectorDoc, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) != dims {
			continue
		}
		vd := &store.VectorDoc{ID: c.ID, Vector: c.Embedding}
		if meta, ok := docs[c.DocumentID]; ok {
			vd.Recency = meta.Recency
		}
		vecDocs = append(vecDocs, vd)
	}

	idx, err := store.NewVectorIndex(e.cfg.Search.VectorBackend, dims)
	if err != nil {
		return nil, err
	}
	if err := idx.Index(ctx, vecDocs); err != nil {
		_ = idx.Close()
		return nil, err
	}
	if missing := len(chunks) - len(vecDocs); missing > 0 {
		slog.Warn("chunks_without_embeddings", slog.Int("count", missing))
	}
	return idx, nil
}

// embedChunks fills in Embedding for each chunk from its index text. On
// error no chunk is modified.
func (e *Engine) embedChunks(ctx context.Context, chunks []*chunk.Chunk) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.IndexText()
	}
	vectors, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}
	for i, c := range chunks {
		c.Embedding = vectors[i]
	}
	return nil
}

func (e *Engine) persistEmbeddings(ctx context.Context, changed, all []*chunk.Chunk) {
	touched := make(map[string]bool)
	for _, c := range changed {
		touched[c.DocumentID] = true
	}
	byDoc := make(map[string][]*chunk.Chunk, len(touched))
	for _, c := range all {
		if touched[c.DocumentID] {
			byDoc[c.DocumentID] = append(byDoc[c.DocumentID], c)
		}
	}
	for docID, cs := range byDoc {
		if err := e.docs.SaveChunks(ctx, docID, cs); err != nil {
			slog.Warn("embedding_persist_failed", slog.String("document_id", docID), slog.String("error", err.Error()))
		}
	}
}
