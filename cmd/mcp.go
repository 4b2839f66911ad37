package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	mcpSdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/lorebase/lorebase/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server on stdio",
	Long: `Mcp speaks the Model Context Protocol over stdin/stdout so editors
and agents (Claude Desktop, Cursor, Genkit CLI) can use the knowledge base
as a tool provider. All logs go to stderr; stdout carries only JSON-RPC.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, logger, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a, logger)

	mcpServer, err := mcp.NewServer(mcp.Config{
		Name:      "lorebase",
		Version:   AppVersion,
		Knowledge: a.Knowledge,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	logger.Info("MCP server ready", "name", "lorebase", "version", AppVersion, "transport", "stdio")

	if err := mcpServer.Run(ctx, &mcpSdk.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}

	logger.Info("MCP server shut down gracefully")
	return nil
}
