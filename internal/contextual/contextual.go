// Package contextual generates a short description for each chunk that
// situates it within its document. The description is prefixed to the
// chunk for indexing and embedding only; readers always see the chunk text.
package contextual

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/knowbase/internal/chunk"
)

// Provider names.
const (
	ProviderPattern = "pattern"
	ProviderOllama  = "ollama"
)

// Document is what a generator knows about the chunks' parent.
type Document struct {
	Title    string
	Category string
}

// Generator produces one context string per chunk, in order. An empty
// string leaves that chunk without context.
type Generator interface {
	Generate(ctx context.Context, doc Document, chunks []*chunk.Chunk) ([]string, error)
	Name() string
}

// Apply sets Context on every chunk. A failing generator leaves the chunks
// without context; chunks are still indexed on their own text.
func Apply(ctx context.Context, g Generator, doc Document, chunks []*chunk.Chunk) {
	if g == nil || len(chunks) == 0 {
		return
	}
	contexts, err := g.Generate(ctx, doc, chunks)
	if err != nil || len(contexts) != len(chunks) {
		if err == nil {
			slog.Warn("context_generation_mismatch",
				slog.String("generator", g.Name()),
				slog.Int("chunks", len(chunks)),
				slog.Int("contexts", len(contexts)))
		} else {
			slog.Warn("context_generation_failed",
				slog.String("generator", g.Name()),
				slog.String("error", err.Error()))
		}
		return
	}
	for i, c := range chunks {
		c.Context = contexts[i]
	}
}

// PatternGenerator names the document and its category. It never fails
// and needs no model.
type PatternGenerator struct{}

func NewPatternGenerator() *PatternGenerator { return &PatternGenerator{} }

func (PatternGenerator) Name() string { return "pattern" }

func (p PatternGenerator) Generate(_ context.Context, doc Document, chunks []*chunk.Chunk) ([]string, error) {
	line := p.describe(doc)
	out := make([]string, len(chunks))
	for i := range chunks {
		out[i] = line
	}
	return out, nil
}

// describe renders "From <title>, <category>." omitting missing parts.
func (PatternGenerator) describe(doc Document) string {
	var parts []string
	if t := strings.TrimSpace(doc.Title); t != "" {
		parts = append(parts, t)
	}
	if c := strings.TrimSpace(doc.Category); c != "" {
		parts = append(parts, c)
	}
	if len(parts) == 0 {
		return ""
	}
	return "From " + strings.Join(parts, ", ") + "."
}
