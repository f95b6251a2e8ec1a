// Package assemble packs ranked chunks into a bounded context block for an
// answer generator and records which documents were surfaced.
package assemble

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Aman-CERP/knowbase/internal/search"
)

// DefaultMaxContextChars is the default context budget in characters.
const DefaultMaxContextChars = 2000

// NoContextMessage is rendered in place of an empty context.
const NoContextMessage = "No relevant knowledge base content was found for this query."

const chunkSeparator = "\n\n"

// UsageRecorder persists document references.
type UsageRecorder interface {
	IncrementUsage(ctx context.Context, documentIDs []string, at time.Time) error
}

// Provenance attributes one included chunk to its source.
type Provenance struct {
	DocumentID string `json:"document_id"`
	ChunkID    string `json:"chunk_id"`
	Rank       int    `json:"rank"`
	Title      string `json:"title,omitempty"`
}

// Context is the assembled output. When NoContext is true, Text is empty and
// the caller decides whether to answer from general knowledge or decline.
type Context struct {
	Text       string       `json:"text"`
	Sources    []Provenance `json:"sources"`
	NoContext  bool         `json:"no_context"`
	Truncated  bool         `json:"truncated"` // some results did not fit the budget
	Characters int          `json:"characters"`
}

// Render returns Text, or NoContextMessage when nothing was assembled.
func (c *Context) Render() string {
	if c.NoContext {
		return NoContextMessage
	}
	return c.Text
}

// DocumentIDs returns the distinct source documents in first-seen order.
func (c *Context) DocumentIDs() []string {
	seen := make(map[string]bool, len(c.Sources))
	ids := make([]string, 0, len(c.Sources))
	for _, p := range c.Sources {
		if !seen[p.DocumentID] {
			seen[p.DocumentID] = true
			ids = append(ids, p.DocumentID)
		}
	}
	return ids
}

// Assembler builds Context values from ranked results.
type Assembler struct {
	maxChars int
	usage    UsageRecorder
	now      func() time.Time
}

// New creates an Assembler. A nil recorder skips usage tracking.
func New(maxChars int, usage UsageRecorder) *Assembler {
	if maxChars <= 0 {
		maxChars = DefaultMaxContextChars
	}
	return &Assembler{maxChars: maxChars, usage: usage, now: time.Now}
}

// MaxChars returns the configured budget.
func (a *Assembler) MaxChars() int { return a.maxChars }

// Assemble accepts results in rank order while they fit in maxChars. A
// chunk that does not fit is skipped whole; smaller later chunks may still
// be accepted. maxChars <= 0 uses the assembler's budget.
//
// Each distinct source document has its reference count incremented once.
// A usage write failure is logged and does not fail assembly.
func (a *Assembler) Assemble(ctx context.Context, results []*search.Result, maxChars int) (*Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if maxChars <= 0 {
		maxChars = a.maxChars
	}

	out := &Context{Sources: []Provenance{}}
	var sb strings.Builder
	used := 0
	for _, r := range results {
		if r == nil || r.Chunk == nil || r.Document == nil {
			continue
		}
		block := formatBlock(r)
		cost := len([]rune(block))
		if used > 0 {
			cost += len(chunkSeparator)
		}
		if used+cost > maxChars {
			out.Truncated = true
			continue
		}
		if used > 0 {
			sb.WriteString(chunkSeparator)
		}
		sb.WriteString(block)
		used += cost
		out.Sources = append(out.Sources, Provenance{
			DocumentID: r.Document.ID,
			ChunkID:    r.Chunk.ID,
			Rank:       r.Rank,
			Title:      r.Document.Title,
		})
	}

	if len(out.Sources) == 0 {
		out.NoContext = true
		slog.Debug("context_empty", slog.Int("results", len(results)), slog.Int("max_chars", maxChars))
		return out, nil
	}
	out.Text = sb.String()
	out.Characters = used

	if a.usage != nil {
		ids := out.DocumentIDs()
		if err := a.usage.IncrementUsage(ctx, ids, a.now()); err != nil {
			slog.Warn("usage_increment_failed",
				slog.Int("documents", len(ids)),
				slog.String("error", err.Error()))
		}
	}

	slog.Debug("context_assembled",
		slog.Int("chunks", len(out.Sources)),
		slog.Int("characters", used),
		slog.Bool("truncated", out.Truncated))
	return out, nil
}

func formatBlock(r *search.Result) string {
	return fmt.Sprintf("[Source: %s]\n%s", r.Document.DisplayName(), r.Chunk.Text)
}
