package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// QueryMetricsURI is the resource URI of the query telemetry snapshot.
	QueryMetricsURI = "knowbase://query_metrics"

	documentURIPrefix   = "knowbase://documents/"
	documentURITemplate = documentURIPrefix + "{id}"
)

// QueryMetricsOutput is the JSON structure for the query_metrics resource.
type QueryMetricsOutput struct {
	Summary             QueryMetricsSummary `json:"summary"`
	StatusCounts        map[string]int64    `json:"status_counts"`
	SourceCounts        map[string]int64    `json:"source_counts"`
	TopTerms            []QueryTermCount    `json:"top_terms"`
	ZeroResultQueries   []string            `json:"zero_result_queries"`
	LatencyDistribution map[string]int64    `json:"latency_distribution"`
}

// QueryMetricsSummary provides overview statistics.
type QueryMetricsSummary struct {
	TotalQueries  int64   `json:"total_queries"`
	Since         string  `json:"since"`
	ZeroResultPct float64 `json:"zero_result_pct"`
	FallbackRate  float64 `json:"fallback_rate"`
	DegradedCount int64   `json:"degraded_count"`
}

// QueryTermCount represents a term and its frequency.
type QueryTermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

func (s *Server) registerResources() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "query_metrics",
			URI:         QueryMetricsURI,
			Description: "Query telemetry: top terms, zero-result queries, latency",
			MIMEType:    "application/json",
		},
		s.handleQueryMetrics,
	)
	s.mcp.AddResourceTemplate(
		&mcp.ResourceTemplate{
			Name:        "document",
			URITemplate: documentURITemplate,
			Description: "Full text of a stored document",
			MIMEType:    "text/plain",
		},
		s.handleDocument,
	)
}

// QueryMetrics builds the query_metrics resource payload.
func (s *Server) QueryMetrics() QueryMetricsOutput {
	snap := s.kb.Metrics()

	out := QueryMetricsOutput{
		Summary: QueryMetricsSummary{
			TotalQueries:  snap.TotalQueries,
			Since:         snap.Since.UTC().Format(time.RFC3339),
			ZeroResultPct: snap.ZeroResultPercentage(),
			FallbackRate:  snap.FallbackRate(),
			DegradedCount: snap.DegradedCount,
		},
		StatusCounts:        make(map[string]int64, len(snap.StatusCounts)),
		SourceCounts:        make(map[string]int64, len(snap.SourceCounts)),
		TopTerms:            make([]QueryTermCount, 0, len(snap.TopTerms)),
		ZeroResultQueries:   append([]string{}, snap.ZeroResultQueries...),
		LatencyDistribution: make(map[string]int64, len(snap.LatencyDistribution)),
	}
	for k, v := range snap.StatusCounts {
		out.StatusCounts[k] = v
	}
	for k, v := range snap.SourceCounts {
		out.SourceCounts[k] = v
	}
	for _, tc := range snap.TopTerms {
		out.TopTerms = append(out.TopTerms, QueryTermCount{Term: tc.Term, Count: tc.Count})
	}
	for bucket, count := range snap.LatencyDistribution {
		out.LatencyDistribution[string(bucket)] = count
	}
	return out
}

func (s *Server) handleQueryMetrics(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	content, err := json.MarshalIndent(s.QueryMetrics(), "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      QueryMetricsURI,
				MIMEType: "application/json",
				Text:     string(content),
			},
		},
	}, nil
}

func (s *Server) handleDocument(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return s.ReadDocument(ctx, req.Params.URI)
}

// ReadDocument returns the stored text of the document named by uri.
func (s *Server) ReadDocument(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	id, ok := strings.CutPrefix(uri, documentURIPrefix)
	if !ok || id == "" || strings.Contains(id, "/") {
		return nil, NewResourceNotFoundError(uri)
	}
	doc, err := s.kb.Document(ctx, id)
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "text/plain",
				Text:     doc.Content,
			},
		},
	}, nil
}
