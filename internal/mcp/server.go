package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	ghclient "github.com/bull/docqa/internal/github"
	"github.com/bull/docqa/internal/qa"
)

// Server wraps the MCP server with dependencies.
type Server struct {
	server  *mcp.Server
	service *qa.Service
}

// Config holds server dependencies. Fetcher may be nil, which disables
// ingestion from GitHub.
type Config struct {
	Service *qa.Service
	Fetcher *ghclient.Fetcher
	Logger  *slog.Logger
	Version string
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	version := cfg.Version
	if version == "" {
		version = "v0.1.0"
	}

	server := mcp.NewServer(&mcp.Implementation{Name: "docqa", Version: version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ingest_document",
		Description: "Index a document (PDF, Markdown or plain text) for question answering. Returns the document_id to use with ask_question.",
	}, makeIngestHandler(cfg.Service, cfg.Fetcher, logger))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_question",
		Description: "Answer a question using only the content of one ingested document. Returns the answer and the passages it was based on.",
	}, makeAskHandler(cfg.Service, logger))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_documents",
		Description: "List ingested documents with their ids, names, chunk counts and ingestion times.",
	}, makeListHandler(cfg.Service, logger))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_document",
		Description: "Delete an ingested document and all of its indexed passages.",
	}, makeDeleteHandler(cfg.Service, logger))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_index_status",
		Description: "Get the index backend, document and chunk counts, and the configured embedding and generation models.",
	}, makeStatusHandler(cfg.Service, logger))

	return &Server{server: server, service: cfg.Service}
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
