// Package config loads knowbase configuration.
//
// Precedence, lowest to highest:
//  1. Defaults (NewConfig)
//  2. User config ($XDG_CONFIG_HOME/knowbase/config.yaml)
//  3. Project config (.knowbase.yaml or .knowbase.yml in the working directory)
//  4. KNOWBASE_* environment variables
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/knowbase/internal/logging"
)

// Config is the complete knowbase configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	DataDir    string           `yaml:"data_dir" json:"data_dir"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Enhancer   EnhancerConfig   `yaml:"enhancer" json:"enhancer"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Context    ContextConfig    `yaml:"context" json:"context"`
	Contextual ContextualConfig `yaml:"contextual" json:"contextual"`
	Ingest     IngestConfig     `yaml:"ingest" json:"ingest"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// ChunkingConfig controls chunk boundaries.
type ChunkingConfig struct {
	MaxChunkChars int `yaml:"max_chunk_chars" json:"max_chunk_chars"`
	MinChunkChars int `yaml:"min_chunk_chars" json:"min_chunk_chars"`
	OverlapChars  int `yaml:"overlap_chars" json:"overlap_chars"`
	// FAQ pairs with this many words or fewer are dropped.
	FAQMinWords int `yaml:"faq_min_words" json:"faq_min_words"`
}

// SearchConfig controls retrieval and fusion.
type SearchConfig struct {
	VectorWeight        float64 `yaml:"vector_weight" json:"vector_weight"`
	LexicalWeight       float64 `yaml:"lexical_weight" json:"lexical_weight"`
	CandidateMultiplier int     `yaml:"candidate_multiplier" json:"candidate_multiplier"`
	MinScore            float64 `yaml:"min_score" json:"min_score"`
	DefaultTopK         int     `yaml:"default_top_k" json:"default_top_k"`
	LexicalBackend      string  `yaml:"lexical_backend" json:"lexical_backend"` // memory, bleve, sqlite
	VectorBackend       string  `yaml:"vector_backend" json:"vector_backend"`   // flat, hnsw
	Normalization       string  `yaml:"normalization" json:"normalization"`     // minmax, max
	// Vector hits below this cosine similarity are not matches.
	MinVectorSimilarity float64 `yaml:"min_vector_similarity" json:"min_vector_similarity"`
	// Break rank ties by document reference count before recency.
	UsageTieBreak bool `yaml:"usage_tie_break" json:"usage_tie_break"`
}

// EnhancerConfig controls LLM query expansion.
type EnhancerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	Provider         string        `yaml:"provider" json:"provider"` // ollama, none
	Host             string        `yaml:"host" json:"host"`
	Model            string        `yaml:"model" json:"model"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
	MaxResponseChars int           `yaml:"max_response_chars" json:"max_response_chars"`
}

// EmbeddingsConfig selects the embedding capability.
type EmbeddingsConfig struct {
	Provider  string        `yaml:"provider" json:"provider"` // static, ollama
	Model     string        `yaml:"model" json:"model"`
	Host      string        `yaml:"host" json:"host"`
	CacheSize int           `yaml:"cache_size" json:"cache_size"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
}

// ContextConfig controls context assembly.
type ContextConfig struct {
	MaxContextChars int `yaml:"max_context_chars" json:"max_context_chars"`
}

// ContextualConfig controls the per-chunk description that is indexed
// alongside each chunk.
type ContextualConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	Provider string        `yaml:"provider" json:"provider"` // pattern, ollama
	Host     string        `yaml:"host" json:"host"`
	Model    string        `yaml:"model" json:"model"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
}

// IngestConfig controls batch and continuous ingestion.
type IngestConfig struct {
	Workers       int           `yaml:"workers" json:"workers"`
	WatchDebounce time.Duration `yaml:"watch_debounce" json:"watch_debounce"`
}

// LoggingConfig controls the slog sink.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// NewConfig returns the default configuration.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		DataDir: logging.HomeDir(),
		Chunking: ChunkingConfig{
			MaxChunkChars: 1500,
			MinChunkChars: 40,
			OverlapChars:  200,
			FAQMinWords:   10,
		},
		Search: SearchConfig{
			VectorWeight:        0.6,
			LexicalWeight:       0.4,
			CandidateMultiplier: 3,
			MinScore:            0.05,
			DefaultTopK:         5,
			LexicalBackend:      "memory",
			VectorBackend:       "flat",
			Normalization:       "minmax",
			MinVectorSimilarity: 0.25,
		},
		Enhancer: EnhancerConfig{
			Enabled:          true,
			Provider:         "ollama",
			Host:             "http://localhost:11434",
			Model:            "llama3.2",
			Timeout:          3 * time.Second,
			MaxResponseChars: 200,
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "static",
			Model:     "nomic-embed-text",
			Host:      "http://localhost:11434",
			CacheSize: 1000,
			Timeout:   30 * time.Second,
		},
		Context: ContextConfig{
			MaxContextChars: 2000,
		},
		Contextual: ContextualConfig{
			Enabled:  true,
			Provider: "pattern",
			Host:     "http://localhost:11434",
			Model:    "llama3.2",
			Timeout:  5 * time.Second,
		},
		Ingest: IngestConfig{
			Workers:       runtime.NumCPU(),
			WatchDebounce: 500 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// UserConfigPath follows XDG: $XDG_CONFIG_HOME/knowbase/config.yaml,
// else ~/.config/knowbase/config.yaml.
func UserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "knowbase", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "knowbase", "config.yaml")
	}
	return filepath.Join(home, ".config", "knowbase", "config.yaml")
}

// Load builds the configuration for dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := UserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	for _, name := range []string{".knowbase.yaml", ".knowbase.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			if err := cfg.loadYAML(path); err != nil {
				return nil, err
			}
			break
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML overlays the keys present in path onto c. On a parse error c is
// left untouched.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	next := *c
	if err := yaml.Unmarshal(data, &next); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	*c = next
	return nil
}

// applyEnvOverrides applies KNOWBASE_* environment variables.
// Malformed values are ignored.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("KNOWBASE_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("KNOWBASE_VECTOR_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.VectorWeight = w
		}
	}
	if v := os.Getenv("KNOWBASE_LEXICAL_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.LexicalWeight = w
		}
	}
	if v := os.Getenv("KNOWBASE_LEXICAL_BACKEND"); v != "" {
		c.Search.LexicalBackend = strings.ToLower(v)
	}
	if v := os.Getenv("KNOWBASE_VECTOR_BACKEND"); v != "" {
		c.Search.VectorBackend = strings.ToLower(v)
	}
	if v := os.Getenv("KNOWBASE_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("KNOWBASE_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("KNOWBASE_OLLAMA_HOST"); v != "" {
		c.Embeddings.Host = v
		c.Enhancer.Host = v
		c.Contextual.Host = v
	}
	if v := os.Getenv("KNOWBASE_ENHANCER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Enhancer.Enabled = b
		}
	}
	if v := os.Getenv("KNOWBASE_ENHANCER_MODEL"); v != "" {
		c.Enhancer.Model = v
	}
	if v := os.Getenv("KNOWBASE_ENHANCER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Enhancer.Timeout = d
		}
	}
	if v := os.Getenv("KNOWBASE_CONTEXTUAL_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Contextual.Enabled = b
		}
	}
	if v := os.Getenv("KNOWBASE_CONTEXTUAL_PROVIDER"); v != "" {
		c.Contextual.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("KNOWBASE_MAX_CONTEXT_CHARS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Context.MaxContextChars = n
		}
	}
	if v := os.Getenv("KNOWBASE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func parseFloat64(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	s := c.Search
	if s.VectorWeight < 0 || s.VectorWeight > 1 {
		return fmt.Errorf("search.vector_weight must be between 0 and 1, got %f", s.VectorWeight)
	}
	if s.LexicalWeight < 0 || s.LexicalWeight > 1 {
		return fmt.Errorf("search.lexical_weight must be between 0 and 1, got %f", s.LexicalWeight)
	}
	if sum := s.VectorWeight + s.LexicalWeight; math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("search.vector_weight + search.lexical_weight must equal 1.0, got %.2f", sum)
	}
	if s.CandidateMultiplier < 1 {
		return fmt.Errorf("search.candidate_multiplier must be at least 1, got %d", s.CandidateMultiplier)
	}
	if s.MinScore < 0 || s.MinScore > 1 {
		return fmt.Errorf("search.min_score must be between 0 and 1, got %f", s.MinScore)
	}
	if s.DefaultTopK < 1 {
		return fmt.Errorf("search.default_top_k must be positive, got %d", s.DefaultTopK)
	}
	if !oneOf(s.LexicalBackend, "memory", "bleve", "sqlite") {
		return fmt.Errorf("search.lexical_backend must be 'memory', 'bleve', or 'sqlite', got %s", s.LexicalBackend)
	}
	if !oneOf(s.VectorBackend, "flat", "hnsw") {
		return fmt.Errorf("search.vector_backend must be 'flat' or 'hnsw', got %s", s.VectorBackend)
	}
	if !oneOf(s.Normalization, "minmax", "max") {
		return fmt.Errorf("search.normalization must be 'minmax' or 'max', got %s", s.Normalization)
	}
	if s.MinVectorSimilarity < -1 || s.MinVectorSimilarity > 1 {
		return fmt.Errorf("search.min_vector_similarity must be between -1 and 1, got %f", s.MinVectorSimilarity)
	}

	ch := c.Chunking
	if ch.MaxChunkChars <= 0 {
		return fmt.Errorf("chunking.max_chunk_chars must be positive, got %d", ch.MaxChunkChars)
	}
	if ch.MinChunkChars < 1 || ch.MinChunkChars > ch.MaxChunkChars {
		return fmt.Errorf("chunking.min_chunk_chars must be between 1 and max_chunk_chars, got %d", ch.MinChunkChars)
	}
	if ch.OverlapChars < 0 || ch.OverlapChars >= ch.MaxChunkChars {
		return fmt.Errorf("chunking.overlap_chars must be non-negative and less than max_chunk_chars, got %d", ch.OverlapChars)
	}
	if ch.FAQMinWords < 0 {
		return fmt.Errorf("chunking.faq_min_words must be non-negative, got %d", ch.FAQMinWords)
	}

	if c.Context.MaxContextChars <= 0 {
		return fmt.Errorf("context.max_context_chars must be positive, got %d", c.Context.MaxContextChars)
	}
	if !oneOf(c.Embeddings.Provider, "static", "ollama", "none") {
		return fmt.Errorf("embeddings.provider must be 'static', 'ollama' or 'none', got %s", c.Embeddings.Provider)
	}
	if !oneOf(c.Enhancer.Provider, "ollama", "none") {
		return fmt.Errorf("enhancer.provider must be 'ollama' or 'none', got %s", c.Enhancer.Provider)
	}
	if c.Enhancer.Enabled && c.Enhancer.Timeout <= 0 {
		return fmt.Errorf("enhancer.timeout must be positive when the enhancer is enabled")
	}
	if !oneOf(c.Contextual.Provider, "pattern", "ollama") {
		return fmt.Errorf("contextual.provider must be 'pattern' or 'ollama', got %s", c.Contextual.Provider)
	}
	if c.Contextual.Enabled && c.Contextual.Timeout <= 0 {
		return fmt.Errorf("contextual.timeout must be positive when contextual indexing is enabled")
	}
	if c.Ingest.Workers < 1 {
		return fmt.Errorf("ingest.workers must be at least 1, got %d", c.Ingest.Workers)
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	return nil
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LogConfig converts the logging section into a logging.Config.
func (c *Config) LogConfig() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = c.Logging.Level
	if c.Logging.File != "" {
		lc.FilePath = c.Logging.File
	}
	if c.Logging.MaxSizeMB > 0 {
		lc.MaxSizeMB = c.Logging.MaxSizeMB
	}
	if c.Logging.MaxFiles > 0 {
		lc.MaxFiles = c.Logging.MaxFiles
	}
	return lc
}

func oneOf(v string, options ...string) bool {
	v = strings.ToLower(v)
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
