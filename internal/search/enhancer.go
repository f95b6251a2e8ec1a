package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	kberrors "github.com/Aman-CERP/knowbase/internal/errors"
	"github.com/Aman-CERP/knowbase/internal/store"
)

const (
	DefaultEnhanceTimeout   = 3 * time.Second
	DefaultMaxResponseChars = 200

	// Queries shorter than this skip the expander.
	minExpandQueryChars = 3
)

// responsePrefixes are labels models put before the keyword list.
var responsePrefixes = []string{
	"corrected keywords:",
	"keywords:",
	"corrected:",
	"result:",
	"output:",
}

// EnhancerConfig configures an Enhancer.
type EnhancerConfig struct {
	// Enabled turns the expander path on. The fallback is always available.
	Enabled          bool
	Timeout          time.Duration
	MaxResponseChars int
}

// Enhancer expands raw queries into search terms. The expander path is
// bounded by a timeout and a circuit breaker; any failure falls back to
// local tokenization and is logged, never returned.
type Enhancer struct {
	expander Expander
	cfg      EnhancerConfig
	breaker  *kberrors.CircuitBreaker
}

// NewEnhancer creates an enhancer. A nil expander means fallback only.
func NewEnhancer(expander Expander, cfg EnhancerConfig) *Enhancer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultEnhanceTimeout
	}
	if cfg.MaxResponseChars <= 0 {
		cfg.MaxResponseChars = DefaultMaxResponseChars
	}
	return &Enhancer{
		expander: expander,
		cfg:      cfg,
		breaker:  kberrors.NewCircuitBreaker("query_expander"),
	}
}

// Breaker exposes the expander circuit breaker.
func (e *Enhancer) Breaker() *kberrors.CircuitBreaker { return e.breaker }

// Enhance returns the expanded query. It never blocks longer than the
// configured timeout and never fails.
func (e *Enhancer) Enhance(ctx context.Context, raw string) EnhancedQuery {
	q := EnhancedQuery{Raw: raw}

	if terms, ok := e.primary(ctx, raw); ok {
		q.Terms, q.Source = terms, SourceLLM
	} else {
		q.Terms, q.Source = FallbackTerms(raw), SourceFallback
	}
	q.Terms = expandSynonyms(q.Terms)
	return q
}

func (e *Enhancer) primary(ctx context.Context, raw string) ([]string, bool) {
	if !e.cfg.Enabled || e.expander == nil {
		return nil, false
	}
	if utf8.RuneCountInString(strings.TrimSpace(raw)) < minExpandQueryChars {
		return nil, false
	}
	if !e.breaker.Allow() {
		slog.Debug("enhancer_circuit_open", slog.String("query", raw))
		return nil, false
	}

	start := time.Now()
	response, err := e.expandWithTimeout(ctx, raw)
	if err != nil {
		// A caller walking away says nothing about the expander's health.
		if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
			e.breaker.RecordFailure()
		}
		slog.Warn("enhancer_fallback",
			slog.String("query", raw),
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(start)))
		return nil, false
	}
	e.breaker.RecordSuccess()

	terms := store.Tokenize(cleanResponse(response, e.cfg.MaxResponseChars))
	if len(terms) == 0 {
		slog.Warn("enhancer_fallback",
			slog.String("query", raw),
			slog.String("error", "degenerate expansion"))
		return nil, false
	}
	// Keep the user's own words even if the model dropped them.
	terms = appendUnique(terms, FallbackTerms(raw)...)
	slog.Debug("enhancer_expanded",
		slog.String("query", raw),
		slog.Int("terms", len(terms)),
		slog.Duration("elapsed", time.Since(start)))
	return terms, true
}

// expandWithTimeout runs the expander with a deadline. A result arriving
// after the deadline is dropped.
func (e *Enhancer) expandWithTimeout(ctx context.Context, raw string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		text, err := e.expander.Expand(callCtx, raw)
		ch <- result{text, err}
	}()

	select {
	case r := <-ch:
		return r.text, r.err
	case <-callCtx.Done():
		err := callCtx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			return "", kberrors.EnhancementTimeoutError("query expansion timed out", err).
				WithDetail("timeout", e.cfg.Timeout.String())
		}
		return "", err
	}
}

// cleanResponse strips label prefixes and quotes and caps the length.
func cleanResponse(s string, maxChars int) string {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	for _, p := range responsePrefixes {
		if strings.HasPrefix(lower, p) {
			s = strings.TrimSpace(s[len(p):])
			break
		}
	}
	s = strings.Trim(s, "\"'`")
	if utf8.RuneCountInString(s) > maxChars {
		s = string([]rune(s)[:maxChars])
	}
	return s
}

// FallbackTerms is the deterministic enhancement path: lowercase words,
// known typos corrected, stop words removed.
func FallbackTerms(raw string) []string {
	words := strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, w := range words {
		if fixed, ok := typoCorrections[w]; ok {
			words[i] = fixed
		}
	}
	return appendUnique(nil, store.Tokenize(strings.Join(words, " "))...)
}

func expandSynonyms(terms []string) []string {
	out := append([]string(nil), terms...)
	for _, t := range terms {
		out = appendUnique(out, synonymTable[t]...)
	}
	return out
}

// appendUnique appends terms not already in dst, keeping order.
func appendUnique(dst []string, terms ...string) []string {
	seen := make(map[string]bool, len(dst)+len(terms))
	for _, t := range dst {
		seen[t] = true
	}
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			dst = append(dst, t)
		}
	}
	return dst
}
