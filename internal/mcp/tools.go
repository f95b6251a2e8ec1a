package mcp

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query           string `json:"query" jsonschema:"the question or keywords to search for"`
	Limit           int    `json:"limit,omitempty" jsonschema:"maximum number of results, default from config"`
	Category        string `json:"category,omitempty" jsonschema:"only return documents in this category"`
	IncludeDisabled bool   `json:"include_disabled,omitempty" jsonschema:"also search documents that are disabled"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Status   string               `json:"status" jsonschema:"ok, no_matches, no_eligible_content or degraded_lexical_only"`
	Degraded bool                 `json:"degraded" jsonschema:"true when semantic retrieval was unavailable"`
	Source   string               `json:"source" jsonschema:"query enhancement path: llm or fallback"`
	Terms    []string             `json:"terms" jsonschema:"enhanced search terms"`
	Results  []SearchResultOutput `json:"results" jsonschema:"ranked chunks"`
}

// SearchResultOutput is one ranked chunk with its provenance.
type SearchResultOutput struct {
	Rank         int      `json:"rank"`
	DocumentID   string   `json:"document_id"`
	ChunkID      string   `json:"chunk_id"`
	Title        string   `json:"title"`
	Category     string   `json:"category,omitempty"`
	Content      string   `json:"content" jsonschema:"chunk text"`
	Score        float64  `json:"score" jsonschema:"fused relevance score between 0 and 1"`
	MatchReason  string   `json:"match_reason,omitempty" jsonschema:"human-readable explanation of why this result matched"`
	MatchedTerms []string `json:"matched_terms,omitempty"`
	InBothLists  bool     `json:"in_both_lists,omitempty" jsonschema:"true if found by both keyword and semantic retrieval"`
}

// ContextInput defines the input schema for the get_context tool.
type ContextInput struct {
	Query    string `json:"query" jsonschema:"the question to gather context for"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of chunks to consider"`
	Category string `json:"category,omitempty" jsonschema:"only use documents in this category"`
	MaxChars int    `json:"max_chars,omitempty" jsonschema:"context size budget in characters"`
}

// ContextOutput defines the output schema for the get_context tool.
type ContextOutput struct {
	Context   string           `json:"context" jsonschema:"source-labelled context, or a no-context message"`
	NoContext bool             `json:"no_context"`
	Truncated bool             `json:"truncated" jsonschema:"true when some results did not fit the budget"`
	Status    string           `json:"status"`
	Sources   []ProvenanceInfo `json:"sources"`
}

// ProvenanceInfo identifies a chunk included in assembled context.
type ProvenanceInfo struct {
	DocumentID string `json:"document_id"`
	ChunkID    string `json:"chunk_id"`
	Rank       int    `json:"rank"`
	Title      string `json:"title,omitempty"`
}

// UsageStatsInput defines the input schema for the usage_stats tool.
type UsageStatsInput struct {
	DocumentID string `json:"document_id" jsonschema:"the document to report on"`
}

// UsageStatsOutput defines the output schema for the usage_stats tool.
type UsageStatsOutput struct {
	DocumentID       string  `json:"document_id"`
	Title            string  `json:"title"`
	Category         string  `json:"category,omitempty"`
	Status           string  `json:"status"`
	Enabled          bool    `json:"enabled"`
	ChunkCount       int     `json:"chunk_count"`
	ReferenceCount   int     `json:"reference_count" jsonschema:"times the document was included in assembled context"`
	LastReferencedAt string  `json:"last_referenced_at,omitempty" jsonschema:"RFC3339 timestamp, empty if never referenced"`
	Effectiveness    float64 `json:"effectiveness"`
}

// KnowledgeSummaryInput defines the input schema for the knowledge_summary tool (no parameters).
type KnowledgeSummaryInput struct{}

// KnowledgeSummaryOutput defines the output schema for the knowledge_summary tool.
type KnowledgeSummaryOutput struct {
	TotalDocuments     int            `json:"total_documents"`
	ProcessedDocuments int            `json:"processed_documents"`
	FailedDocuments    int            `json:"failed_documents"`
	DisabledDocuments  int            `json:"disabled_documents"`
	ProcessingRate     float64        `json:"processing_rate" jsonschema:"percentage of documents processed"`
	Categories         map[string]int `json:"categories"`
	TotalReferences    int            `json:"total_references"`
	TopDocuments       []DocumentRef  `json:"top_documents"`
	VectorEnabled      bool           `json:"vector_enabled" jsonschema:"false when search runs lexical-only"`
	KnowledgeGaps      []string       `json:"knowledge_gaps" jsonschema:"recent queries that found nothing"`
}

// DocumentRef is a compact document entry with its reference count.
type DocumentRef struct {
	DocumentID     string `json:"document_id"`
	Title          string `json:"title"`
	ReferenceCount int    `json:"reference_count"`
}
