package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the user config lookup at an empty directory.
func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	return t.TempDir()
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 0.6, cfg.Search.VectorWeight)
	assert.Equal(t, 0.4, cfg.Search.LexicalWeight)
	assert.Equal(t, 3, cfg.Search.CandidateMultiplier)
	assert.Equal(t, 0.05, cfg.Search.MinScore)
	assert.Equal(t, "memory", cfg.Search.LexicalBackend)
	assert.Equal(t, "flat", cfg.Search.VectorBackend)
	assert.Equal(t, 1500, cfg.Chunking.MaxChunkChars)
	assert.Equal(t, 200, cfg.Chunking.OverlapChars)
	assert.Equal(t, 2000, cfg.Context.MaxContextChars)
	assert.Equal(t, 3*time.Second, cfg.Enhancer.Timeout)
	assert.Equal(t, 200, cfg.Enhancer.MaxResponseChars)
	assert.True(t, cfg.Contextual.Enabled)
	assert.Equal(t, "pattern", cfg.Contextual.Provider)
	require.NoError(t, cfg.Validate())
}

func TestLoad_ProjectConfigOverridesDefaults(t *testing.T) {
	dir := isolate(t)
	yml := `
search:
  vector_weight: 0.7
  lexical_weight: 0.3
  lexical_backend: bleve
enhancer:
  enabled: false
  timeout: 750ms
chunking:
  max_chunk_chars: 800
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".knowbase.yaml"), []byte(yml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 0.7, cfg.Search.VectorWeight)
	assert.Equal(t, "bleve", cfg.Search.LexicalBackend)
	assert.False(t, cfg.Enhancer.Enabled)
	assert.Equal(t, 750*time.Millisecond, cfg.Enhancer.Timeout)
	assert.Equal(t, 800, cfg.Chunking.MaxChunkChars)
	// Untouched keys keep defaults
	assert.Equal(t, 200, cfg.Chunking.OverlapChars)
	assert.Equal(t, 3, cfg.Search.CandidateMultiplier)
}

func TestLoad_UserConfigThenProjectConfig(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	require.NoError(t, os.MkdirAll(filepath.Join(xdg, "knowbase"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(xdg, "knowbase", "config.yaml"),
		[]byte("context:\n  max_context_chars: 4000\nsearch:\n  default_top_k: 9\n"), 0o644))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".knowbase.yml"),
		[]byte("search:\n  default_top_k: 3\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Context.MaxContextChars)
	assert.Equal(t, 3, cfg.Search.DefaultTopK)
}

func TestLoad_EnvOverridesWin(t *testing.T) {
	dir := isolate(t)
	t.Setenv("KNOWBASE_VECTOR_WEIGHT", "0.5")
	t.Setenv("KNOWBASE_LEXICAL_WEIGHT", "0.5")
	t.Setenv("KNOWBASE_ENHANCER_ENABLED", "false")
	t.Setenv("KNOWBASE_OLLAMA_HOST", "http://gpu:11434")
	t.Setenv("KNOWBASE_ENHANCER_TIMEOUT", "not-a-duration")
	t.Setenv("KNOWBASE_CONTEXTUAL_PROVIDER", "OLLAMA")
	t.Setenv("KNOWBASE_CONTEXTUAL_ENABLED", "yes")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.Search.VectorWeight)
	assert.False(t, cfg.Enhancer.Enabled)
	assert.Equal(t, "http://gpu:11434", cfg.Enhancer.Host)
	assert.Equal(t, "http://gpu:11434", cfg.Embeddings.Host)
	assert.Equal(t, 3*time.Second, cfg.Enhancer.Timeout)
	assert.Equal(t, "ollama", cfg.Contextual.Provider)
	assert.Equal(t, "http://gpu:11434", cfg.Contextual.Host)
	assert.True(t, cfg.Contextual.Enabled, "unparseable bool keeps the default")
}

func TestLoad_InvalidYAMLFails(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".knowbase.yaml"), []byte("search: [unclosed"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"weights do not sum to one", func(c *Config) { c.Search.VectorWeight = 0.9 }},
		{"negative weight", func(c *Config) { c.Search.LexicalWeight = -0.1 }},
		{"overlap not below max", func(c *Config) { c.Chunking.OverlapChars = c.Chunking.MaxChunkChars }},
		{"min above max", func(c *Config) { c.Chunking.MinChunkChars = c.Chunking.MaxChunkChars + 1 }},
		{"zero context budget", func(c *Config) { c.Context.MaxContextChars = 0 }},
		{"unknown lexical backend", func(c *Config) { c.Search.LexicalBackend = "lucene" }},
		{"unknown vector backend", func(c *Config) { c.Search.VectorBackend = "faiss" }},
		{"unknown embedder", func(c *Config) { c.Embeddings.Provider = "openai" }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"enabled enhancer without timeout", func(c *Config) { c.Enhancer.Timeout = 0 }},
		{"unknown contextual provider", func(c *Config) { c.Contextual.Provider = "openai" }},
		{"enabled contextual without timeout", func(c *Config) { c.Contextual.Timeout = 0 }},
		{"no workers", func(c *Config) { c.Ingest.Workers = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWriteYAML_RoundTripsThroughLoad(t *testing.T) {
	dir := isolate(t)
	cfg := NewConfig()
	cfg.Search.DefaultTopK = 11
	cfg.Ingest.WatchDebounce = 2 * time.Second

	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ".knowbase.yaml")))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 11, loaded.Search.DefaultTopK)
	assert.Equal(t, 2*time.Second, loaded.Ingest.WatchDebounce)
}

func TestLogConfig(t *testing.T) {
	cfg := NewConfig()
	cfg.Logging.Level = "debug"
	cfg.Logging.File = "/tmp/kb.log"

	lc := cfg.LogConfig()
	assert.Equal(t, "debug", lc.Level)
	assert.Equal(t, "/tmp/kb.log", lc.FilePath)
}
