// Package mcpserver exposes the question pipeline as Model Context Protocol
// tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/haasonsaas/profileqa/internal/classifier"
	"github.com/haasonsaas/profileqa/internal/observability"
	"github.com/haasonsaas/profileqa/internal/orchestrator"
)

const (
	serverName = "profileqa"
	// Version is reported in the MCP initialize handshake.
	Version = "1.0.0"
)

// Processor answers questions.
type Processor interface {
	Process(ctx context.Context, q orchestrator.Query) *orchestrator.Result
}

// Classifier classifies questions without answering them.
type Classifier interface {
	Classify(ctx context.Context, query string, qctx classifier.QueryContext) classifier.Classification
}

// Server wraps an MCP server with the ask and classify tools.
type Server struct {
	mcp    *server.MCPServer
	proc   Processor
	cls    Classifier
	logger *observability.Logger
}

// New registers the tools and returns the server.
func New(proc Processor, cls Classifier, logger *observability.Logger) *Server {
	if logger == nil {
		logger = observability.NopLogger()
	}
	s := &Server{
		mcp: server.NewMCPServer(serverName, Version,
			server.WithToolCapabilities(false),
			server.WithInstructions("Answers questions about a professional profile using an FAQ store and semantic search over CV documents."),
		),
		proc:   proc,
		cls:    cls,
		logger: logger,
	}

	s.mcp.AddTool(mcp.NewTool("ask",
		mcp.WithDescription("Answer a question about the professional profile. Returns the answer, strategy, tools used and quality evaluation."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The question to answer")),
		mcp.WithString("session_id", mcp.Description("Optional conversation identifier")),
		mcp.WithString("detail_level", mcp.Description("Optional preferred level of detail")),
	), s.handleAsk)

	s.mcp.AddTool(mcp.NewTool("classify",
		mcp.WithDescription("Classify a question into a category and answering strategy without answering it."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The question to classify")),
	), s.handleClassify)

	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// ServeStdio serves JSON-RPC over in and out until ctx is cancelled or in
// is closed.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info(ctx, "starting mcp stdio server")
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

type askResult struct {
	Answer      string   `json:"answer"`
	Kind        string   `json:"kind"`
	Strategy    string   `json:"strategy"`
	ToolsUsed   []string `json:"tools_used"`
	Questions   []string `json:"clarification_questions,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	Score       *float64 `json:"score,omitempty"`
	Quality     string   `json:"quality,omitempty"`
	QueryID     string   `json:"query_id"`
}

func (s *Server) handleAsk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	res := s.proc.Process(ctx, orchestrator.Query{
		Text:        query,
		Context:     classifier.QueryContext{SessionID: req.GetString("session_id", "")},
		Preferences: orchestrator.Preferences{DetailLevel: req.GetString("detail_level", "")},
	})

	out := askResult{
		Answer:      res.Answer.Text,
		Kind:        string(res.Kind),
		Strategy:    res.Answer.Strategy,
		ToolsUsed:   res.Answer.ToolsUsed,
		Suggestions: res.Suggestions,
		QueryID:     res.QueryID,
	}
	if res.ClarificationSet != nil {
		out.Questions = res.ClarificationSet.Questions
	}
	if res.Evaluation != nil {
		score := res.Evaluation.Overall()
		out.Score = &score
		out.Quality = res.Evaluation.Grade()
	}
	return jsonResult(out)
}

func (s *Server) handleClassify(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	return jsonResult(s.cls.Classify(ctx, query, classifier.QueryContext{}))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
