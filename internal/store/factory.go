package store

import (
	"fmt"
	"strings"
)

// Backend names accepted by the factories.
const (
	LexicalBackendMemory = "memory"
	LexicalBackendBleve  = "bleve"
	LexicalBackendSQLite = "sqlite"

	VectorBackendFlat = "flat"
	VectorBackendHNSW = "hnsw"
)

// NewLexicalIndex creates an empty lexical index for backend.
// An empty backend selects the in-memory BM25 index.
func NewLexicalIndex(backend string) (LexicalIndex, error) {
	switch strings.ToLower(backend) {
	case "", LexicalBackendMemory:
		return NewMemoryLexicalIndex(), nil
	case LexicalBackendBleve:
		return NewBleveLexicalIndex()
	case LexicalBackendSQLite:
		return NewSQLiteLexicalIndex()
	default:
		return nil, fmt.Errorf("unknown lexical backend %q (supported: memory, bleve, sqlite)", backend)
	}
}

// NewVectorIndex creates an empty vector index of dims dimensions.
func NewVectorIndex(backend string, dims int) (VectorIndex, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("vector dimensions must be positive, got %d", dims)
	}
	switch strings.ToLower(backend) {
	case "", VectorBackendFlat:
		return NewFlatVectorIndex(dims), nil
	case VectorBackendHNSW:
		return NewHNSWVectorIndex(dims, HNSWConfig{}), nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q (supported: flat, hnsw)", backend)
	}
}
