package integration

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/knowbase/internal/chunk"
	"github.com/Aman-CERP/knowbase/internal/config"
	"github.com/Aman-CERP/knowbase/internal/engine"
	kberrors "github.com/Aman-CERP/knowbase/internal/errors"
	kbmcp "github.com/Aman-CERP/knowbase/internal/mcp"
	"github.com/Aman-CERP/knowbase/internal/search"
	"github.com/Aman-CERP/knowbase/internal/store"
	"github.com/Aman-CERP/knowbase/internal/watcher"
)

// Integration Tests - these run the full flow from files on disk through
// ingestion, retrieval and the MCP surface.

const refundsDoc = `Refunds are issued within five business days of approval.
Contact the billing team to request a refund for an annual plan.`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.DataDir = t.TempDir()
	cfg.Enhancer.Enabled = false
	return cfg
}

// engineHandler applies watcher events to an engine.
type engineHandler struct {
	engine *engine.Engine
}

func (h engineHandler) IngestFile(ctx context.Context, path string) error {
	_, err := h.engine.IngestFile(ctx, path, "")
	return err
}

func (h engineHandler) RemoveFile(ctx context.Context, path string) error {
	err := h.engine.RemoveSource(ctx, path)
	if kberrors.IsNotFound(err) {
		return nil
	}
	return err
}

func searchCount(t *testing.T, e *engine.Engine, query string) int {
	t.Helper()
	resp, err := e.Search(context.Background(), engine.SearchRequest{Query: query})
	require.NoError(t, err)
	return len(resp.Results)
}

func TestKnowledgeFlow_WatchedDirectoryStaysInSync(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Given: an engine fed by a directory watcher
	e, err := engine.Open(context.Background(), testConfig(t), engine.WithInMemoryStore(), engine.WithEmbedder(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	dir := t.TempDir()
	w, err := watcher.NewDirWatcher(watcher.Options{
		DebounceWindow: 100 * time.Millisecond,
		Extensions:     chunk.SupportedExtensions(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Start(ctx, dir) }()
	go watcher.Dispatch(ctx, w.Events(), engineHandler{engine: e})
	defer func() { _ = w.Stop() }()

	// Wait for watcher to initialize
	time.Sleep(200 * time.Millisecond)

	// When: a document is created
	path := filepath.Join(dir, "refunds.md")
	require.NoError(t, os.WriteFile(path, []byte(refundsDoc), 0o644))

	// Then: it becomes searchable
	require.Eventually(t, func() bool { return searchCount(t, e, "refunds") == 1 },
		5*time.Second, 50*time.Millisecond)

	// When: an ignored file is written
	require.NoError(t, os.WriteFile(filepath.Join(dir, "refunds.png"), []byte("refunds"), 0o644))

	// When: the document is deleted
	require.NoError(t, os.Remove(path))

	// Then: it disappears from search and the store
	require.Eventually(t, func() bool { return searchCount(t, e, "refunds") == 0 },
		5*time.Second, 50*time.Millisecond)
	docs, err := e.Documents(context.Background(), store.DocumentFilter{})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestKnowledgeFlow_ServeThenReopen(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()
	cfg := testConfig(t)

	// Given: a document ingested into an on-disk knowledge base
	docs := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(docs, "refunds.md"), []byte(refundsDoc), 0o644))

	e, err := engine.Open(ctx, cfg)
	require.NoError(t, err)
	results, err := e.IngestPaths(ctx, []string{docs}, "billing")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	docID := results[0].DocumentID

	// When: an MCP client asks for context
	srv, err := kbmcp.NewServer(e)
	require.NoError(t, err)
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ss, err := srv.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	client := mcp.NewClient(&mcp.Implementation{Name: "integration", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "get_context",
		Arguments: map[string]any{"query": "how long do refunds take", "category": "billing"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	var out kbmcp.ContextOutput
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))

	// Then: the context is attributed to the document
	assert.False(t, out.NoContext)
	require.Len(t, out.Sources, 1)
	assert.Equal(t, docID, out.Sources[0].DocumentID)
	assert.Contains(t, out.Context, "[Source: refunds]")

	_ = cs.Close()
	_ = ss.Close()
	require.NoError(t, e.Close())

	// When: the knowledge base is reopened
	reopened, err := engine.Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	// Then: the indexes are rebuilt and usage survived
	resp, err := reopened.Search(ctx, engine.SearchRequest{
		Query:  "refunds",
		Filter: search.Filter{Category: "billing"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, docID, resp.Results[0].Document.ID)

	usage, err := reopened.GetUsageStats(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, 1, usage.ReferenceCount)
}
