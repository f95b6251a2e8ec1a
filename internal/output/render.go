package output

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/Aman-CERP/knowbase/internal/assemble"
	"github.com/Aman-CERP/knowbase/internal/engine"
	kberrors "github.com/Aman-CERP/knowbase/internal/errors"
	"github.com/Aman-CERP/knowbase/internal/search"
	"github.com/Aman-CERP/knowbase/internal/store"
)

const snippetChars = 240

// SearchResults prints ranked results, or the reason there are none.
func (w *Writer) SearchResults(resp *search.Response) {
	if resp.Degraded {
		w.Warning("semantic search unavailable; showing keyword matches only")
	}
	switch resp.Status {
	case search.StatusNoMatches:
		w.Status("🔍", fmt.Sprintf("No matches for %q", resp.Query.Raw))
		return
	case search.StatusNoEligibleContent:
		w.Status("🔍", fmt.Sprintf("No enabled documents match %q", resp.Query.Raw))
		return
	}

	w.Header(fmt.Sprintf("Results for %q", resp.Query.Raw))
	_, _ = fmt.Fprintln(w.out, w.styles.Dim.Render("terms: "+strings.Join(resp.Query.Terms, " ")+" ("+string(resp.Query.Source)+")"))
	w.Newline()
	for _, r := range resp.Results {
		if r.Chunk == nil || r.Document == nil {
			continue
		}
		title := r.Document.DisplayName()
		if r.Document.Category != "" {
			title += " [" + r.Document.Category + "]"
		}
		_, _ = fmt.Fprintf(w.out, "%d. %s %s\n", r.Rank, title, w.styles.Score.Render(fmt.Sprintf("%.3f", r.Score)))
		_, _ = fmt.Fprintf(w.out, "   %s\n", w.styles.Dim.Render(r.Document.ID+" / "+r.Chunk.ID))
		_, _ = fmt.Fprintf(w.out, "   %s\n\n", snippet(r.Chunk.Text, snippetChars))
	}
}

// Context prints assembled context followed by its sources.
func (w *Writer) Context(c *assemble.Context) {
	if c.NoContext {
		w.Status("📭", c.Render())
		return
	}
	_, _ = fmt.Fprintln(w.out, w.styles.Panel.Render(c.Text))
	w.Newline()
	w.Header("Sources")
	for _, p := range c.Sources {
		_, _ = fmt.Fprintf(w.out, "  #%d %s %s\n", p.Rank, p.Title, w.styles.Dim.Render(p.ChunkID))
	}
	if c.Truncated {
		w.Warningf("%d characters used; some results did not fit", c.Characters)
	}
}

// Usage prints one document's usage statistics.
func (w *Writer) Usage(d *store.Document, u store.UsageCounter) {
	w.Header(d.DisplayName())
	w.KeyValue("ID", d.ID)
	if d.Source != "" {
		w.KeyValue("Source", d.Source)
	}
	if d.Category != "" {
		w.KeyValue("Category", d.Category)
	}
	w.KeyValue("Status", d.Status)
	w.KeyValue("Enabled", d.Enabled)
	w.KeyValue("Chunks", d.ChunkCount)
	w.KeyValue("References", u.ReferenceCount)
	last := "never"
	if !u.LastReferencedAt.IsZero() {
		last = u.LastReferencedAt.Local().Format(time.RFC3339)
	}
	w.KeyValue("Last referenced", last)
	w.KeyValue("Effectiveness", fmt.Sprintf("%.2f", d.Effectiveness))
	if d.Error != "" {
		w.KeyValue("Error", d.Error)
	}
}

// Summary prints the knowledge base overview.
func (w *Writer) Summary(s *engine.Summary) {
	w.Header("Knowledge base")
	w.KeyValue("Documents", s.TotalDocuments)
	w.KeyValue("Processed", fmt.Sprintf("%d (%.1f%%)", s.ProcessedDocuments, s.ProcessingRate))
	if s.FailedDocuments > 0 {
		w.KeyValue("Failed", s.FailedDocuments)
	}
	w.KeyValue("Disabled", s.DisabledDocuments)
	w.KeyValue("References", s.TotalReferences)
	mode := "hybrid"
	if !s.VectorEnabled {
		mode = "lexical only"
	}
	w.KeyValue("Search mode", mode)

	if len(s.Categories) > 0 {
		w.Newline()
		w.Header("Categories")
		for _, name := range sortedKeys(s.Categories) {
			w.KeyValue(name, s.Categories[name])
		}
	}
	if len(s.TopDocuments) > 0 {
		w.Newline()
		w.Header("Most referenced")
		w.DocumentStats(s.TopDocuments)
	}
}

// DocumentStats prints one line per document.
func (w *Writer) DocumentStats(stats []*engine.DocumentStats) {
	if len(stats) == 0 {
		w.Status("", "(none)")
		return
	}
	for _, st := range stats {
		d := st.Document
		state := ""
		if !d.Enabled {
			state = " " + w.styles.Warning.Render("disabled")
		}
		_, _ = fmt.Fprintf(w.out, "  %-36s %-30s refs=%-4d eff=%.2f%s\n",
			d.ID, snippet(d.DisplayName(), 30), st.Usage.ReferenceCount, d.Effectiveness, state)
	}
}

// Gaps prints queries that found nothing.
func (w *Writer) Gaps(records []store.QueryRecord) {
	w.Header("Knowledge gaps")
	if len(records) == 0 {
		w.Status("", "(none)")
		return
	}
	for _, r := range records {
		_, _ = fmt.Fprintf(w.out, "  %s  %s\n", w.styles.Dim.Render(r.CreatedAt.Local().Format(time.DateTime)), r.Query)
	}
}

// Batch prints the per-file outcome of an ingestion run and returns the
// number of failures.
func (w *Writer) Batch(results []engine.BatchResult) int {
	failed := 0
	counts := make(map[engine.Outcome]int)
	for _, r := range results {
		counts[r.Status]++
		switch {
		case r.Err != nil && kberrors.IsDuplicateContent(r.Err):
			w.Warningf("%s: duplicate of an existing document", r.Source)
		case r.Err != nil:
			failed++
			w.Errorf("%s: %s", r.Source, kberrors.FormatForCLI(r.Err))
		case r.Status == engine.OutcomeProcessed:
			w.Successf("%s (%d chunks)", r.Source, r.ChunkCount)
		case r.Status == engine.OutcomeFailed:
			failed++
			w.Errorf("%s: processing failed", r.Source)
		}
	}
	w.Statusf("📚", "%d processed, %d unchanged, %d duplicate, %d failed",
		counts[engine.OutcomeProcessed], counts[engine.OutcomeUnchanged],
		counts[engine.OutcomeDuplicate], failed)
	return failed
}

func snippet(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-1]) + "…"
}

func sortedKeys(m map[string]int) []string {
	return slices.Sorted(maps.Keys(m))
}
