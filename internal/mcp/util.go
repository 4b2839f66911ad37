package mcp

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lorebase/lorebase/internal/knowledge"
)

// Tool results never expose internal error detail to clients: no stack
// traces, file paths, connection strings, or provider errors. Client
// mistakes get a coded message the model can act on; everything else is
// logged server-side and surfaces as a protocol error.

// knowledgeError splits knowledge-layer failures into client errors (bad
// input the model can correct, returned as an error result) and system
// errors (propagated as protocol failures).
func (s *Server) knowledgeError(tool string, err error) (*mcp.CallToolResult, any, error) {
	switch {
	case errors.Is(err, knowledge.ErrEmptyQuery):
		return errorResult("missing_query", "search query is required"), nil, nil
	case errors.Is(err, knowledge.ErrEmptyDocumentID):
		return errorResult("missing_id", "document id is required"), nil, nil
	default:
		s.logger.Error("MCP tool failed", "tool", tool, "error", err)
		return nil, nil, fmt.Errorf("%s failed: %w", tool, err)
	}
}

// errorResult builds an error tool result in "[code] message" form.
func errorResult(code, message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("[%s] %s", code, message)}},
		IsError: true,
	}
}

// dataToMCP converts arbitrary data to MCP text content via JSON marshaling.
// All data becomes JSON; clients parse it.
func dataToMCP(data any) *mcp.CallToolResult {
	b, err := json.Marshal(data)
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: "marshal error"}},
			IsError: true,
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
	}
}
