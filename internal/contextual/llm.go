package contextual

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Aman-CERP/knowbase/internal/chunk"
	kberrors "github.com/Aman-CERP/knowbase/internal/errors"
)

// Defaults for model-written context.
const (
	DefaultTimeout        = 5 * time.Second
	DefaultMaxPromptChars = 1500
	DefaultMaxReplyChars  = 300
)

// Completer sends a prompt to a language model.
type Completer interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const sectionPrompt = `You are indexing a knowledge base. Write one or two sentences that describe what this section covers and how it relates to the document.

Document: %s

Section:
%s

Reply with the description only.`

// LLMGenerator asks a model to describe each chunk, falling back to the
// pattern description per chunk whenever the model fails. A circuit breaker
// stops calling a model that keeps failing.
type LLMGenerator struct {
	model   Completer
	name    string
	timeout time.Duration
	breaker *kberrors.CircuitBreaker
	pattern PatternGenerator
}

// NewLLMGenerator wraps model. A non-positive timeout uses DefaultTimeout.
func NewLLMGenerator(model Completer, name string, timeout time.Duration) *LLMGenerator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &LLMGenerator{
		model:   model,
		name:    name,
		timeout: timeout,
		breaker: kberrors.NewCircuitBreaker("context_generator"),
	}
}

func (g *LLMGenerator) Name() string { return g.name + "+pattern" }

// Generate always returns one context per chunk. Each starts with the
// pattern description so title and category stay searchable.
func (g *LLMGenerator) Generate(ctx context.Context, doc Document, chunks []*chunk.Chunk) ([]string, error) {
	base := g.pattern.describe(doc)
	label := doc.Title
	if label == "" {
		label = "untitled"
	}

	out := make([]string, len(chunks))
	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = base
		reply, ok := g.describe(ctx, label, c)
		if !ok {
			continue
		}
		out[i] = strings.TrimSpace(base + " " + reply)
	}
	return out, nil
}

func (g *LLMGenerator) describe(ctx context.Context, label string, c *chunk.Chunk) (string, bool) {
	if !g.breaker.Allow() {
		return "", false
	}
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	prompt := fmt.Sprintf(sectionPrompt, label, truncate(c.Text, DefaultMaxPromptChars))
	reply, err := g.model.Generate(callCtx, prompt)
	if err != nil {
		if ctx.Err() == nil {
			g.breaker.RecordFailure()
		}
		slog.Debug("chunk_context_fallback",
			slog.String("chunk_id", c.ID),
			slog.String("error", err.Error()))
		return "", false
	}
	g.breaker.RecordSuccess()

	reply = cleanReply(reply)
	return reply, reply != ""
}

// cleanReply drops a leading label, collapses whitespace and caps length.
func cleanReply(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"description:", "context:"} {
		if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
			s = s[len(prefix):]
			break
		}
	}
	return truncate(strings.Join(strings.Fields(s), " "), DefaultMaxReplyChars)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
