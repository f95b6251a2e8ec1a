package mcp

import (
	"fmt"
	"strings"
	"time"

	"github.com/Aman-CERP/knowbase/internal/assemble"
	"github.com/Aman-CERP/knowbase/internal/chunk"
	"github.com/Aman-CERP/knowbase/internal/engine"
	"github.com/Aman-CERP/knowbase/internal/search"
	"github.com/Aman-CERP/knowbase/internal/store"
)

// FormatSearchResults renders a search response as markdown.
func FormatSearchResults(query string, resp *search.Response) string {
	valid := filterValidResults(resp.Results)

	if len(valid) == 0 {
		return fmt.Sprintf("No results found for \"%s\" (%s)", query, statusReason(resp.Status))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", len(valid))
	if len(valid) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")
	if resp.Degraded {
		sb.WriteString("_Semantic search unavailable; keyword results only._\n\n")
	}

	for _, r := range valid {
		formatResult(&sb, r)
	}
	return sb.String()
}

// FormatContext renders assembled context with its sources.
func FormatContext(c *assemble.Context) string {
	if c.NoContext {
		return c.Render()
	}
	var sb strings.Builder
	sb.WriteString(c.Text)
	sb.WriteString("\n\n---\n")
	for _, p := range c.Sources {
		fmt.Fprintf(&sb, "- #%d %s (`%s`)\n", p.Rank, p.Title, p.ChunkID)
	}
	if c.Truncated {
		sb.WriteString("\n_Some results did not fit the context budget._\n")
	}
	return sb.String()
}

func statusReason(s search.Status) string {
	switch s {
	case search.StatusNoEligibleContent:
		return "no enabled documents match the filter"
	case search.StatusNoMatches:
		return "nothing relevant in the knowledge base"
	default:
		return string(s)
	}
}

func filterValidResults(results []*search.Result) []*search.Result {
	valid := make([]*search.Result, 0, len(results))
	for _, r := range results {
		if r != nil && r.Chunk != nil && r.Document != nil {
			valid = append(valid, r)
		}
	}
	return valid
}

func formatResult(sb *strings.Builder, r *search.Result) {
	fmt.Fprintf(sb, "### %d. %s (score: %.2f)\n", r.Rank, r.Document.DisplayName(), r.Score)
	if r.Document.Category != "" {
		fmt.Fprintf(sb, "**Category:** %s\n", r.Document.Category)
	}
	fmt.Fprintf(sb, "_%s_\n\n", generateMatchReason(r))
	sb.WriteString(r.Chunk.Text)
	sb.WriteString("\n\n---\n\n")
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}

// ToSearchResultOutput converts a ranked result to the tool output format.
func ToSearchResultOutput(r *search.Result) SearchResultOutput {
	if r == nil || r.Chunk == nil || r.Document == nil {
		return SearchResultOutput{}
	}
	return SearchResultOutput{
		Rank:         r.Rank,
		DocumentID:   r.Document.ID,
		ChunkID:      r.Chunk.ID,
		Title:        r.Document.DisplayName(),
		Category:     r.Document.Category,
		Content:      r.Chunk.Text,
		Score:        r.Score,
		MatchReason:  generateMatchReason(r),
		MatchedTerms: r.MatchedTerms,
		InBothLists:  r.ViaLexical && r.ViaVector,
	}
}

// ToSearchOutput converts a full response, never returning nil slices.
func ToSearchOutput(resp *search.Response) SearchOutput {
	out := SearchOutput{
		Status:   string(resp.Status),
		Degraded: resp.Degraded,
		Source:   string(resp.Query.Source),
		Terms:    append([]string{}, resp.Query.Terms...),
		Results:  make([]SearchResultOutput, 0, len(resp.Results)),
	}
	for _, r := range filterValidResults(resp.Results) {
		out.Results = append(out.Results, ToSearchResultOutput(r))
	}
	return out
}

// ToContextOutput converts an assembled context.
func ToContextOutput(resp *engine.ContextResponse) ContextOutput {
	c := resp.Context
	out := ContextOutput{
		Context:   c.Render(),
		NoContext: c.NoContext,
		Truncated: c.Truncated,
		Status:    string(resp.Search.Status),
		Sources:   make([]ProvenanceInfo, 0, len(c.Sources)),
	}
	for _, p := range c.Sources {
		out.Sources = append(out.Sources, ProvenanceInfo{
			DocumentID: p.DocumentID,
			ChunkID:    p.ChunkID,
			Rank:       p.Rank,
			Title:      p.Title,
		})
	}
	return out
}

// ToUsageStatsOutput merges a document with its usage counter.
func ToUsageStatsOutput(d *store.Document, u store.UsageCounter) UsageStatsOutput {
	out := UsageStatsOutput{
		DocumentID:     d.ID,
		Title:          d.DisplayName(),
		Category:       d.Category,
		Status:         string(d.Status),
		Enabled:        d.Enabled,
		ChunkCount:     d.ChunkCount,
		ReferenceCount: u.ReferenceCount,
		Effectiveness:  d.Effectiveness,
	}
	if !u.LastReferencedAt.IsZero() {
		out.LastReferencedAt = u.LastReferencedAt.UTC().Format(time.RFC3339)
	}
	return out
}

// ToKnowledgeSummaryOutput converts a summary and its knowledge gaps.
func ToKnowledgeSummaryOutput(s *engine.Summary, gaps []store.QueryRecord) KnowledgeSummaryOutput {
	out := KnowledgeSummaryOutput{
		TotalDocuments:     s.TotalDocuments,
		ProcessedDocuments: s.ProcessedDocuments,
		FailedDocuments:    s.FailedDocuments,
		DisabledDocuments:  s.DisabledDocuments,
		ProcessingRate:     s.ProcessingRate,
		Categories:         make(map[string]int, len(s.Categories)),
		TotalReferences:    s.TotalReferences,
		TopDocuments:       make([]DocumentRef, 0, len(s.TopDocuments)),
		VectorEnabled:      s.VectorEnabled,
		KnowledgeGaps:      make([]string, 0, len(gaps)),
	}
	for k, v := range s.Categories {
		out.Categories[k] = v
	}
	for _, st := range s.TopDocuments {
		out.TopDocuments = append(out.TopDocuments, DocumentRef{
			DocumentID:     st.Document.ID,
			Title:          st.Document.DisplayName(),
			ReferenceCount: st.Usage.ReferenceCount,
		})
	}
	for _, g := range gaps {
		out.KnowledgeGaps = append(out.KnowledgeGaps, g.Query)
	}
	return out
}

// generateMatchReason creates a human-readable explanation of why a result matched.
func generateMatchReason(r *search.Result) string {
	if r == nil || r.Chunk == nil {
		return ""
	}

	var parts []string

	if r.Chunk.Kind == chunk.KindFAQ && r.Chunk.Question != "" {
		parts = append(parts, fmt.Sprintf("answers '%s'", r.Chunk.Question))
	}

	if len(r.MatchedTerms) > 0 {
		terms := r.MatchedTerms
		if len(terms) > 5 {
			terms = terms[:5]
		}
		parts = append(parts, fmt.Sprintf("matched: %s", strings.Join(terms, ", ")))
	}

	switch {
	case r.ViaLexical && r.ViaVector:
		parts = append(parts, "found by both keyword and semantic search")
	case r.ViaVector:
		parts = append(parts, "semantically similar")
	}

	if len(parts) == 0 {
		return "matched content"
	}
	return strings.Join(parts, "; ")
}
