package contextual

import (
	"fmt"
	"strings"
	"time"
)

// Options selects and configures a generator.
type Options struct {
	Enabled  bool
	Provider string
	Model    Completer // required for ProviderOllama
	Name     string
	Timeout  time.Duration
}

// New returns the configured generator, or nil when disabled.
func New(opts Options) (Generator, error) {
	if !opts.Enabled {
		return nil, nil
	}
	switch strings.ToLower(opts.Provider) {
	case "", ProviderPattern:
		return NewPatternGenerator(), nil
	case ProviderOllama:
		if opts.Model == nil {
			return nil, fmt.Errorf("contextual provider %q needs a model", opts.Provider)
		}
		return NewLLMGenerator(opts.Model, opts.Name, opts.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown contextual provider: %s", opts.Provider)
	}
}
