package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/knowbase/internal/engine"
)

func TestSearchHandler_StructuredOutput(t *testing.T) {
	// Given: two documents in different categories
	s, e := newTestServer(t)
	_, err := e.ProcessDocument(context.Background(), engine.DocumentInput{
		Title: "Support", Source: "support.txt", Category: "support", Content: supportHours,
	})
	require.NoError(t, err)
	_, err = e.ProcessDocument(context.Background(), engine.DocumentInput{
		Title: "Billing", Source: "billing.txt", Category: "billing",
		Content: "Billing support covers invoices. Billing support covers refunds. Billing support covers receipts.",
	})
	require.NoError(t, err)

	// When: searching with a category filter
	_, out, err := s.mcpSearchHandler(context.Background(), nil, SearchInput{Query: "support", Category: "billing"})

	// Then: only the billing document is returned
	require.NoError(t, err)
	require.NotEmpty(t, out.Results)
	for _, r := range out.Results {
		assert.Equal(t, "billing", r.Category)
	}
	assert.Contains(t, out.Terms, "support")
	assert.Equal(t, "fallback", out.Source)
}

func TestSearchHandler_LimitClamped(t *testing.T) {
	s, e := newTestServer(t)
	for i, text := range []string{
		"Refunds are issued within five days of a support request.",
		"Support tickets receive a reply within one business day.",
		"Premium support includes a dedicated account manager.",
	} {
		_, err := e.ProcessDocument(context.Background(), engine.DocumentInput{
			Title: string(rune('A' + i)), Source: string(rune('a'+i)) + ".txt", Content: text,
		})
		require.NoError(t, err)
	}

	_, out, err := s.mcpSearchHandler(context.Background(), nil, SearchInput{Query: "support", Limit: 1})

	require.NoError(t, err)
	assert.Len(t, out.Results, 1)
}

func TestSearchHandler_EmptyQuery(t *testing.T) {
	s, _ := newTestServer(t)

	_, _, err := s.mcpSearchHandler(context.Background(), nil, SearchInput{Query: ""})

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestContextHandler_BudgetAndProvenance(t *testing.T) {
	// Given: one document
	s, e := newTestServer(t)
	id := seed(t, e, "Support", supportHours)

	// When: assembling context with a generous budget
	_, out, err := s.mcpContextHandler(context.Background(), nil, ContextInput{Query: "support hours", MaxChars: 500})

	// Then: provenance names the document
	require.NoError(t, err)
	assert.False(t, out.NoContext)
	assert.Equal(t, "ok", out.Status)
	require.Len(t, out.Sources, 1)
	assert.Equal(t, id, out.Sources[0].DocumentID)
	assert.Equal(t, 1, out.Sources[0].Rank)
	assert.Contains(t, out.Context, "[Source: Support]")
}

func TestContextHandler_BudgetTooSmall(t *testing.T) {
	s, e := newTestServer(t)
	seed(t, e, "Support", supportHours)

	_, out, err := s.mcpContextHandler(context.Background(), nil, ContextInput{Query: "support hours", MaxChars: 10})

	require.NoError(t, err)
	assert.True(t, out.NoContext)
	assert.Empty(t, out.Sources)
	assert.NotNil(t, out.Sources)
}

func TestUsageStatsHandler_Unreferenced(t *testing.T) {
	s, e := newTestServer(t)
	id := seed(t, e, "Support", supportHours)

	_, out, err := s.mcpUsageStatsHandler(context.Background(), nil, UsageStatsInput{DocumentID: id})

	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, 0, out.ReferenceCount)
	assert.Empty(t, out.LastReferencedAt)
	assert.Equal(t, "processed", out.Status)
	assert.Equal(t, 1, out.ChunkCount)
}

func TestKnowledgeSummaryHandler_TopDocuments(t *testing.T) {
	// Given: a document referenced twice through context assembly
	s, e := newTestServer(t)
	id := seed(t, e, "Support", supportHours)
	for range 2 {
		_, _, err := s.mcpContextHandler(context.Background(), nil, ContextInput{Query: "support hours"})
		require.NoError(t, err)
	}

	// When: summarizing
	_, out, err := s.mcpKnowledgeSummaryHandler(context.Background(), nil, KnowledgeSummaryInput{})

	// Then: the document leads the top list
	require.NoError(t, err)
	assert.Equal(t, 2, out.TotalReferences)
	require.Len(t, out.TopDocuments, 1)
	assert.Equal(t, DocumentRef{DocumentID: id, Title: "Support", ReferenceCount: 2}, out.TopDocuments[0])
	assert.True(t, out.VectorEnabled)
}
