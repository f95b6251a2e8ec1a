package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Provider names.
const (
	ProviderStatic = "static"
	ProviderOllama = "ollama"
	ProviderNone   = "none"
)

// Options selects and configures an embedder.
type Options struct {
	Provider  string
	Model     string
	Host      string
	CacheSize int
	Timeout   time.Duration
}

// New creates the configured embedder wrapped in an LRU cache. Provider
// "none" returns ErrUnavailable; an unreachable Ollama returns its network
// error. Either way the caller runs without vectors.
func New(ctx context.Context, opts Options) (Embedder, error) {
	var (
		inner Embedder
		err   error
	)
	switch strings.ToLower(opts.Provider) {
	case "", ProviderStatic:
		inner = NewStaticEmbedder()
	case ProviderOllama:
		inner, err = NewOllamaEmbedder(ctx, OllamaConfig{
			Host:    opts.Host,
			Model:   opts.Model,
			Timeout: opts.Timeout,
		})
		if err != nil {
			return nil, err
		}
	case ProviderNone:
		return nil, ErrUnavailable
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q (supported: static, ollama, none)", opts.Provider)
	}

	slog.Debug("embedder_ready",
		slog.String("provider", opts.Provider),
		slog.String("model", inner.ModelName()),
		slog.Int("dimensions", inner.Dimensions()))
	return NewCachedEmbedder(inner, opts.CacheSize), nil
}
