package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lorebase/lorebase/internal/knowledge"
)

// Knowledge is the subset of the knowledge layer the MCP tools need.
// *knowledge.Orchestrator satisfies it.
type Knowledge interface {
	AddDocument(ctx context.Context, doc knowledge.Document) error
	RemoveDocument(ctx context.Context, documentID string) error
	SearchKnowledge(ctx context.Context, userID, query string, opts ...knowledge.SearchOption) ([]knowledge.SearchResult, error)
	Stats(ctx context.Context) (knowledge.SystemStats, error)
}

// Config holds MCP server configuration.
type Config struct {
	Name      string
	Version   string
	Knowledge Knowledge
	Logger    *slog.Logger
}

// Server wraps the MCP SDK server and the knowledge layer.
type Server struct {
	mcpServer *mcp.Server
	knowledge Knowledge
	logger    *slog.Logger
}

// NewServer creates a new MCP server and registers the knowledge tools.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		return nil, errors.New("server name is required")
	}
	if cfg.Version == "" {
		return nil, errors.New("server version is required")
	}
	if cfg.Knowledge == nil {
		return nil, errors.New("knowledge layer is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		mcpServer: mcpServer,
		knowledge: cfg.Knowledge,
		logger:    logger,
	}

	if err := s.registerKnowledgeTools(); err != nil {
		return nil, fmt.Errorf("registering knowledge tools: %w", err)
	}

	return s, nil
}

// Run starts the MCP server on the given transport. It blocks until the
// client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}
