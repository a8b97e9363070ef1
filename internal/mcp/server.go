package mcp

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/docrag/internal/rag"
)

// Server wraps the MCP server with dependencies.
type Server struct {
	server  *mcp.Server
	service *rag.Service
}

// Config holds server dependencies.
type Config struct {
	Service *rag.Service
	// Version is reported to clients.
	Version string
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	impl := &mcp.Implementation{
		Name:    "docrag",
		Version: version,
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_index",
		Description: "Semantic search over one or more document indexes. Returns ranked passages with their source files.",
	}, makeSearchHandler(cfg.Service))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question with the language model, grounded in passages from the given indexes. Without indexes it is a plain chat.",
	}, makeAskHandler(cfg.Service))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_indexes",
		Description: "List all document indexes with their chunking strategy, size and build time.",
	}, makeListHandler(cfg.Service))

	return &Server{
		server:  server,
		service: cfg.Service,
	}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}

// HTTPHandler serves the tools over Streamable HTTP. The tools never call
// back into the client, so callers normally pass stateless=true.
func (s *Server) HTTPHandler(stateless bool) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, &mcp.StreamableHTTPOptions{Stateless: stateless})
}
