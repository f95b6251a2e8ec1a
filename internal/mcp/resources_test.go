package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/knowbase/internal/engine"
)

func TestServer_QueryMetrics_ReflectsSearches(t *testing.T) {
	// Given: one answered and one unanswered search, lexical only
	s, e := newTestServer(t, engine.WithEmbedder(nil))
	seed(t, e, "Support", supportHours)
	_, err := s.CallTool(context.Background(), "search", map[string]any{"query": "support hours"})
	require.NoError(t, err)
	_, err = s.CallTool(context.Background(), "search", map[string]any{"query": "zebra"})
	require.NoError(t, err)

	// When: reading the metrics payload
	out := s.QueryMetrics()

	// Then: totals, zero-result queries and terms are reported
	assert.Equal(t, int64(2), out.Summary.TotalQueries)
	assert.InDelta(t, 50.0, out.Summary.ZeroResultPct, 0.001)
	assert.InDelta(t, 1.0, out.Summary.FallbackRate, 0.001)
	assert.Equal(t, int64(2), out.Summary.DegradedCount)
	assert.Equal(t, []string{"zebra"}, out.ZeroResultQueries)
	assert.Equal(t, int64(1), out.StatusCounts["no_matches"])
	assert.NotEmpty(t, out.TopTerms)
	assert.NotEmpty(t, out.Summary.Since)
}

func TestServer_ReadDocument(t *testing.T) {
	s, e := newTestServer(t)
	id := seed(t, e, "Support", supportHours)

	res, err := s.ReadDocument(context.Background(), "knowbase://documents/"+id)

	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Equal(t, supportHours, res.Contents[0].Text)
	assert.Equal(t, "text/plain", res.Contents[0].MIMEType)
}

func TestServer_ReadDocument_Invalid(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []string{
		"knowbase://documents/",
		"knowbase://documents/a/b",
		"file:///etc/passwd",
		"knowbase://documents/missing",
	}
	for _, uri := range tests {
		t.Run(uri, func(t *testing.T) {
			_, err := s.ReadDocument(context.Background(), uri)

			var mcpErr *MCPError
			require.ErrorAs(t, err, &mcpErr)
			assert.Equal(t, ErrCodeDocumentNotFound, mcpErr.Code)
		})
	}
}

func TestServer_Protocol_ReadsQueryMetrics(t *testing.T) {
	// Given: a connected client after one search
	s, e := newTestServer(t)
	seed(t, e, "Support", supportHours)
	_, err := e.Search(context.Background(), engine.SearchRequest{Query: "support hours"})
	require.NoError(t, err)
	cs := connectClient(t, s)

	// When: reading the metrics resource
	res, err := cs.ReadResource(context.Background(), &mcp.ReadResourceParams{URI: QueryMetricsURI})

	// Then: it decodes as the metrics payload
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	var out QueryMetricsOutput
	require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &out))
	assert.Equal(t, int64(1), out.Summary.TotalQueries)
}
