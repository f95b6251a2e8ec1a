package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/knowbase/internal/engine"
	"github.com/Aman-CERP/knowbase/internal/search"
	"github.com/Aman-CERP/knowbase/internal/store"
	"github.com/Aman-CERP/knowbase/internal/telemetry"
	"github.com/Aman-CERP/knowbase/pkg/version"
)

// ServerName is reported to MCP clients.
const ServerName = "knowbase"

const (
	defaultLimit = 5
	maxLimit     = 50
	gapsLimit    = 10
)

// KnowledgeBase is the engine surface the server needs.
type KnowledgeBase interface {
	Search(ctx context.Context, req engine.SearchRequest) (*search.Response, error)
	Context(ctx context.Context, req engine.ContextRequest) (*engine.ContextResponse, error)
	Document(ctx context.Context, documentID string) (*store.Document, error)
	GetUsageStats(ctx context.Context, documentID string) (store.UsageCounter, error)
	KnowledgeSummary(ctx context.Context) (*engine.Summary, error)
	KnowledgeGaps(ctx context.Context, limit int) ([]store.QueryRecord, error)
	Metrics() *telemetry.Snapshot
}

var _ KnowledgeBase = (*engine.Engine)(nil)

// Server is the MCP server. It bridges AI clients with the knowledge base.
type Server struct {
	mcp    *mcp.Server
	kb     KnowledgeBase
	logger *slog.Logger
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        "search",
		Description: "Search the knowledge base. Combines keyword and semantic retrieval and returns ranked passages with the document they came from.",
	},
	{
		Name:        "get_context",
		Description: "Gather source-labelled context for answering a question. Returns passages packed into a character budget, or an explicit message when nothing relevant exists.",
	},
	{
		Name:        "usage_stats",
		Description: "Report how often a document has been used in assembled context, with its effectiveness score.",
	},
	{
		Name:        "knowledge_summary",
		Description: "Summarize the knowledge base: document counts, categories, most referenced documents and recent unanswered queries.",
	},
}

// NewServer creates a new MCP server backed by kb.
func NewServer(kb KnowledgeBase) (*Server, error) {
	if kb == nil {
		return nil, errors.New("knowledge base is required")
	}

	s := &Server{
		kb:     kb,
		logger: slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    ServerName,
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	s.registerResources()

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return ServerName, version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return append([]ToolInfo(nil), tools...)
}

// CallTool invokes a tool by name. search and get_context return markdown;
// the other tools return their structured output.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "search":
		var in SearchInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		resp, err := s.search(ctx, in)
		if err != nil {
			return nil, err
		}
		return FormatSearchResults(in.Query, resp), nil
	case "get_context":
		var in ContextInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		resp, err := s.assembleContext(ctx, in)
		if err != nil {
			return nil, err
		}
		return FormatContext(resp.Context), nil
	case "usage_stats":
		var in UsageStatsInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return s.usageStats(ctx, in)
	case "knowledge_summary":
		return s.knowledgeSummary(ctx)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func decodeArgs(args map[string]any, v any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return NewInvalidParamsError(err.Error())
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
	}
	return nil
}

func (s *Server) search(ctx context.Context, in SearchInput) (*search.Response, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, NewInvalidParamsError("query cannot be empty or whitespace only")
	}

	start := time.Now()
	requestID := generateRequestID()
	s.logger.Info("search_started",
		slog.String("request_id", requestID),
		slog.String("query", in.Query))

	resp, err := s.kb.Search(ctx, engine.SearchRequest{
		Query:  in.Query,
		TopK:   clampLimit(in.Limit, defaultLimit, 1, maxLimit),
		Filter: search.Filter{Category: in.Category, IncludeDisabled: in.IncludeDisabled},
	})
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("search_failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	s.logger.Info("search_completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.String("status", string(resp.Status)),
		slog.Int("result_count", len(resp.Results)))
	return resp, nil
}

func (s *Server) assembleContext(ctx context.Context, in ContextInput) (*engine.ContextResponse, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, NewInvalidParamsError("query cannot be empty or whitespace only")
	}
	if in.MaxChars < 0 {
		return nil, NewInvalidParamsError("max_chars must not be negative")
	}

	start := time.Now()
	requestID := generateRequestID()

	resp, err := s.kb.Context(ctx, engine.ContextRequest{
		SearchRequest: engine.SearchRequest{
			Query:  in.Query,
			TopK:   clampLimit(in.Limit, defaultLimit, 1, maxLimit),
			Filter: search.Filter{Category: in.Category},
		},
		MaxChars: in.MaxChars,
	})
	if err != nil {
		s.logger.Error("get_context_failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	s.logger.Info("get_context_completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Bool("no_context", resp.Context.NoContext),
		slog.Int("sources", len(resp.Context.Sources)))
	return resp, nil
}

func (s *Server) usageStats(ctx context.Context, in UsageStatsInput) (*UsageStatsOutput, error) {
	if strings.TrimSpace(in.DocumentID) == "" {
		return nil, NewInvalidParamsError("document_id is required")
	}
	doc, err := s.kb.Document(ctx, in.DocumentID)
	if err != nil {
		return nil, MapError(err)
	}
	usage, err := s.kb.GetUsageStats(ctx, in.DocumentID)
	if err != nil {
		return nil, MapError(err)
	}
	out := ToUsageStatsOutput(doc, usage)
	return &out, nil
}

func (s *Server) knowledgeSummary(ctx context.Context) (*KnowledgeSummaryOutput, error) {
	summary, err := s.kb.KnowledgeSummary(ctx)
	if err != nil {
		return nil, MapError(err)
	}
	gaps, err := s.kb.KnowledgeGaps(ctx, gapsLimit)
	if err != nil {
		return nil, MapError(err)
	}
	out := ToKnowledgeSummaryOutput(summary, gaps)
	return &out, nil
}

func (s *Server) registerTools() {
	s.logger.Debug("registering_mcp_tools")

	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description}, s.mcpSearchHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description}, s.mcpContextHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[2].Name, Description: tools[2].Description}, s.mcpUsageStatsHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[3].Name, Description: tools[3].Description}, s.mcpKnowledgeSummaryHandler)

	s.logger.Info("mcp_tools_registered", slog.Int("count", len(tools)))
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	resp, err := s.search(ctx, input)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return nil, ToSearchOutput(resp), nil
}

func (s *Server) mcpContextHandler(ctx context.Context, _ *mcp.CallToolRequest, input ContextInput) (
	*mcp.CallToolResult,
	ContextOutput,
	error,
) {
	resp, err := s.assembleContext(ctx, input)
	if err != nil {
		return nil, ContextOutput{}, err
	}
	return nil, ToContextOutput(resp), nil
}

func (s *Server) mcpUsageStatsHandler(ctx context.Context, _ *mcp.CallToolRequest, input UsageStatsInput) (
	*mcp.CallToolResult,
	*UsageStatsOutput,
	error,
) {
	out, err := s.usageStats(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

func (s *Server) mcpKnowledgeSummaryHandler(ctx context.Context, _ *mcp.CallToolRequest, _ KnowledgeSummaryInput) (
	*mcp.CallToolResult,
	*KnowledgeSummaryOutput,
	error,
) {
	out, err := s.knowledgeSummary(ctx)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		} else {
			s.logger.Info("mcp_server_stopped")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
