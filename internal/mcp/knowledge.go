package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lorebase/lorebase/internal/knowledge"
)

// Tool names exposed by the server.
const (
	ToolKnowledgeSearch = "knowledge_search"
	ToolKnowledgeAdd    = "knowledge_add"
	ToolKnowledgeRemove = "knowledge_remove"
	ToolKnowledgeStats  = "knowledge_stats"
)

// mcpUserID attributes searches from MCP clients in the per-user cache.
const mcpUserID = "mcp"

// SearchInput defines input for the knowledge_search tool.
type SearchInput struct {
	Query         string            `json:"query" jsonschema_description:"The search query string"`
	TopK          int               `json:"topK,omitempty" jsonschema_description:"Maximum results to return (default 5)"`
	MinSimilarity float64           `json:"minSimilarity,omitempty" jsonschema_description:"Minimum cosine similarity in [0,1]; weaker matches are dropped"`
	Filter        map[string]string `json:"filter,omitempty" jsonschema_description:"Metadata key/value pairs results must match exactly"`
}

// AddInput defines input for the knowledge_add tool.
type AddInput struct {
	ID       string            `json:"id,omitempty" jsonschema_description:"Document ID; generated when omitted"`
	Title    string            `json:"title,omitempty" jsonschema_description:"Short title for the document"`
	Content  string            `json:"content" jsonschema_description:"The document content to store"`
	Metadata map[string]string `json:"metadata,omitempty" jsonschema_description:"Metadata key/value pairs stored with every chunk"`
}

// RemoveInput defines input for the knowledge_remove tool.
type RemoveInput struct {
	ID string `json:"id" jsonschema_description:"ID of the document to remove"`
}

// StatsInput defines input for the knowledge_stats tool. It takes no arguments.
type StatsInput struct{}

// registerKnowledgeTools registers all knowledge tools to the MCP server.
// Tools: knowledge_search, knowledge_add, knowledge_remove, knowledge_stats
func (s *Server) registerKnowledgeTools() error {
	searchSchema, err := jsonschema.For[SearchInput](nil)
	if err != nil {
		return fmt.Errorf("schema for %s: %w", ToolKnowledgeSearch, err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: ToolKnowledgeSearch,
		Description: "Search stored documents using semantic similarity. " +
			"Finds chunks whose meaning matches the query, not just keyword overlap.",
		InputSchema: searchSchema,
	}, s.SearchKnowledge)

	addSchema, err := jsonschema.For[AddInput](nil)
	if err != nil {
		return fmt.Errorf("schema for %s: %w", ToolKnowledgeAdd, err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: ToolKnowledgeAdd,
		Description: "Store a document in the knowledge base for later retrieval via knowledge_search. " +
			"The document is chunked, embedded, and indexed.",
		InputSchema: addSchema,
	}, s.AddKnowledge)

	removeSchema, err := jsonschema.For[RemoveInput](nil)
	if err != nil {
		return fmt.Errorf("schema for %s: %w", ToolKnowledgeRemove, err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolKnowledgeRemove,
		Description: "Remove a document and all of its chunks from the knowledge base.",
		InputSchema: removeSchema,
	}, s.RemoveKnowledge)

	statsSchema, err := jsonschema.For[StatsInput](nil)
	if err != nil {
		return fmt.Errorf("schema for %s: %w", ToolKnowledgeStats, err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: ToolKnowledgeStats,
		Description: "Report knowledge base statistics: document count, embedding dimension, " +
			"search counters, and cache state.",
		InputSchema: statsSchema,
	}, s.KnowledgeStats)

	return nil
}

// SearchKnowledge handles the knowledge_search MCP tool call.
func (s *Server) SearchKnowledge(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, any, error) {
	results, err := s.knowledge.SearchKnowledge(ctx, mcpUserID, in.Query, searchOptions(in)...)
	if err != nil {
		return s.knowledgeError(ToolKnowledgeSearch, err)
	}
	if results == nil {
		results = []knowledge.SearchResult{}
	}

	return dataToMCP(map[string]any{
		"results": results,
		"count":   len(results),
	}), nil, nil
}

// AddKnowledge handles the knowledge_add MCP tool call.
func (s *Server) AddKnowledge(ctx context.Context, _ *mcp.CallToolRequest, in AddInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(in.Content) == "" {
		return errorResult("missing_content", "document content is required"), nil, nil
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.New().String()
	}

	doc := knowledge.Document{
		ID:       id,
		Title:    in.Title,
		Content:  in.Content,
		Metadata: in.Metadata,
	}
	if err := s.knowledge.AddDocument(ctx, doc); err != nil {
		return s.knowledgeError(ToolKnowledgeAdd, err)
	}

	s.logger.Debug("document stored via MCP", "document_id", id)
	return dataToMCP(map[string]any{"id": id, "status": "stored"}), nil, nil
}

// RemoveKnowledge handles the knowledge_remove MCP tool call.
func (s *Server) RemoveKnowledge(ctx context.Context, _ *mcp.CallToolRequest, in RemoveInput) (*mcp.CallToolResult, any, error) {
	if err := s.knowledge.RemoveDocument(ctx, in.ID); err != nil {
		return s.knowledgeError(ToolKnowledgeRemove, err)
	}

	s.logger.Debug("document removed via MCP", "document_id", in.ID)
	return dataToMCP(map[string]any{"id": in.ID, "status": "removed"}), nil, nil
}

// KnowledgeStats handles the knowledge_stats MCP tool call.
func (s *Server) KnowledgeStats(ctx context.Context, _ *mcp.CallToolRequest, _ StatsInput) (*mcp.CallToolResult, any, error) {
	stats, err := s.knowledge.Stats(ctx)
	if err != nil {
		return s.knowledgeError(ToolKnowledgeStats, err)
	}

	return dataToMCP(stats), nil, nil
}

// searchOptions translates tool input into search options. Zero values mean
// "use the default" and produce no option.
func searchOptions(in SearchInput) []knowledge.SearchOption {
	var opts []knowledge.SearchOption
	if in.TopK > 0 {
		opts = append(opts, knowledge.WithTopK(in.TopK))
	}
	if in.MinSimilarity > 0 {
		opts = append(opts, knowledge.WithMinSimilarity(float32(in.MinSimilarity)))
	}
	for key, value := range in.Filter {
		opts = append(opts, knowledge.WithFilter(key, value))
	}
	return opts
}
