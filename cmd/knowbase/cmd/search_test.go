package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/knowbase/internal/mcp"
)

func TestSearchCmd_RequiresQuery(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "search")

	require.Error(t, err)
}

func TestSearchCmd_RejectsUnknownFormat(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "search", "support", "--format", "xml")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --format")
}

func TestSearchCmd_TextAndJSON(t *testing.T) {
	// Given: an ingested document
	env := newTestEnv(t)
	env.writeDoc(t, "support.md", supportDoc)
	_, err := env.run(t, "ingest", env.docsDir, "--category", "help")
	require.NoError(t, err)

	// When: searching as text
	out, err := env.run(t, "search", "support", "hours")

	// Then: the document is listed with its category
	require.NoError(t, err)
	assert.Contains(t, out, `Results for "support hours"`)
	assert.Contains(t, out, "1. support [help]")

	// When: searching as JSON
	result := env.searchJSON(t, "support")

	// Then: structured output carries the ranked result
	assert.Equal(t, "ok", result.Status)
	assert.False(t, result.Degraded)
	require.Len(t, result.Results, 1)
	assert.Equal(t, 1, result.Results[0].Rank)
	assert.Equal(t, "help", result.Results[0].Category)
}

func TestSearchCmd_CategoryAndDisabled(t *testing.T) {
	// Given: an ingested document
	env := newTestEnv(t)
	env.writeDoc(t, "support.md", supportDoc)
	_, err := env.run(t, "ingest", env.docsDir, "--category", "help")
	require.NoError(t, err)
	id := env.searchJSON(t, "support").Results[0].DocumentID

	// Then: another category finds nothing
	assert.Empty(t, env.searchJSON(t, "support", "--category", "billing").Results)

	// When: the document is disabled
	out, err := env.run(t, "disable", id)
	require.NoError(t, err)
	assert.Contains(t, out, id+" disabled")

	// Then: it is excluded unless disabled documents are requested
	result := env.searchJSON(t, "support")
	assert.Equal(t, "no_eligible_content", result.Status)
	assert.Empty(t, result.Results)
	assert.Len(t, env.searchJSON(t, "support", "--include-disabled").Results, 1)

	// When: it is enabled again
	_, err = env.run(t, "enable", id)
	require.NoError(t, err)

	// Then: it is searchable
	assert.Len(t, env.searchJSON(t, "support").Results, 1)
}

func TestSearchCmd_NoMatchesIsNotAnError(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("KNOWBASE_EMBEDDINGS_PROVIDER", "none")
	env.writeDoc(t, "support.md", supportDoc)
	_, err := env.run(t, "ingest", env.docsDir)
	require.NoError(t, err)

	out, err := env.run(t, "search", "xylophone")

	require.NoError(t, err)
	assert.Contains(t, out, "keyword matches only")
	assert.Contains(t, out, `No matches for "xylophone"`)
}

func TestContextCmd(t *testing.T) {
	// Given: an ingested document
	env := newTestEnv(t)
	env.writeDoc(t, "support.md", supportDoc)
	_, err := env.run(t, "ingest", env.docsDir)
	require.NoError(t, err)

	// When: assembling context as text
	out, err := env.run(t, "context", "support", "hours")

	// Then: the excerpt is attributed
	require.NoError(t, err)
	assert.Contains(t, out, "[Source: support]")
	assert.Contains(t, out, "Sources")

	// When: assembling context as JSON
	out, err = env.run(t, "context", "support", "--format", "json")
	require.NoError(t, err)
	var ctxOut mcp.ContextOutput
	require.NoError(t, json.Unmarshal([]byte(out), &ctxOut))

	// Then: provenance is returned
	assert.False(t, ctxOut.NoContext)
	require.Len(t, ctxOut.Sources, 1)
	assert.Equal(t, 1, ctxOut.Sources[0].Rank)
}

func TestContextCmd_BudgetTooSmall(t *testing.T) {
	env := newTestEnv(t)
	env.writeDoc(t, "support.md", supportDoc)
	_, err := env.run(t, "ingest", env.docsDir)
	require.NoError(t, err)

	out, err := env.run(t, "context", "support", "--max-chars", "10")

	require.NoError(t, err)
	assert.Contains(t, out, "No relevant knowledge base content was found for this query.")
}

func TestContextCmd_NegativeBudget(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "context", "support", "--max-chars", "-1")

	require.Error(t, err)
}
