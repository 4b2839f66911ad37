// Package cmd provides the lorebase CLI commands.
//
// Commands:
//   - ingest: read files and store them as documents
//   - search: semantic search over stored documents
//   - remove: delete a document and its chunks
//   - stats: report store and search statistics
//   - serve: HTTP API server
//   - mcp: Model Context Protocol server for IDE integration
//   - version: version and configuration summary
//
// Long-running commands (serve, mcp) handle SIGINT/SIGTERM via context
// cancellation and shut down gracefully.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lorebase/lorebase/internal/app"
	"github.com/lorebase/lorebase/internal/config"
	"github.com/lorebase/lorebase/internal/log"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "lorebase",
	Short: "Lorebase - semantic knowledge base for agents and humans",
	Long: `Lorebase stores documents as embedded chunks and answers semantic
queries over them. It speaks three dialects: a CLI for direct use, an HTTP
API for services, and MCP for editor and agent integration.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. It is the single entry point called from
// main.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads the configuration and installs the process logger.
// Logs go to stderr so MCP stdio transport keeps stdout for JSON-RPC.
func loadConfig() (*config.Config, log.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("configuring logger: %w", err)
	}
	logger := log.New(log.Config{Level: level, JSON: cfg.LogJSON})
	slog.SetDefault(logger)

	return cfg, logger, nil
}

// setupApp loads configuration and initializes the full application stack.
// Callers must Close the returned app.
func setupApp(ctx context.Context) (*app.App, log.Logger, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	a, err := setupAppWith(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return a, logger, nil
}

// setupAppWith initializes the application stack from an already-loaded
// configuration.
func setupAppWith(ctx context.Context, cfg *config.Config, logger log.Logger) (*app.App, error) {
	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing application: %w", err)
	}
	return a, nil
}

// closeApp closes the app and logs instead of failing the command: by the
// time it runs the command's work is already done.
func closeApp(a *app.App, logger log.Logger) {
	if err := a.Close(); err != nil {
		logger.Warn("shutdown error", "error", err)
	}
}
