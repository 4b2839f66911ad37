// Package mcp implements a Model Context Protocol (MCP) server for the
// knowledge layer.
//
// The MCP server exposes document ingestion and semantic search via the Model
// Context Protocol, enabling integration with Claude Code, Cursor, Genkit CLI,
// and other MCP clients. An agent connected over stdio can store documents,
// search them by meaning, and inspect the state of the knowledge store without
// going through the HTTP API.
//
// # Architecture
//
//	MCP Client (Claude Code, Cursor, etc.)
//	     |
//	     | (MCP protocol over stdio)
//	     v
//	Server (MCP SDK)
//	     |
//	     +-- knowledge_search
//	     +-- knowledge_add
//	     +-- knowledge_remove
//	     +-- knowledge_stats
//	     |
//	     v
//	knowledge.Orchestrator
//
// The server owns no state of its own. Every tool call is translated into a
// call on the Knowledge interface, and results are marshaled back as JSON
// text content.
//
// # Error Handling
//
// Tool handlers distinguish two failure classes:
//
//   - Client errors (empty query, missing content, missing document ID) are
//     returned as tool results with IsError set, so the model can read the
//     message and correct its call.
//   - System errors (store unavailable, embedder failure) are returned as Go
//     errors and surface as protocol-level failures.
//
// # Example Usage
//
//	srv, err := mcp.NewServer(mcp.Config{
//		Name:      "lorebase",
//		Version:   "1.0.0",
//		Knowledge: orchestrator,
//		Logger:    logger,
//	})
//	if err != nil {
//		return err
//	}
//	return srv.Run(ctx, &sdk.StdioTransport{})
//
// Run blocks until the client disconnects or the context is cancelled.
package mcp
