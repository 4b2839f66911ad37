// Package app provides application initialization and dependency injection.
//
// App is the container that wires configuration, the embedder, the vector
// store provider, and the knowledge orchestrator into one ready-to-use unit.
// Entry points (CLI commands, the HTTP server, the MCP server) call Setup
// once and share the resulting App.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/lorebase/lorebase/internal/config"
	"github.com/lorebase/lorebase/internal/embedder"
	"github.com/lorebase/lorebase/internal/knowledge"
	"github.com/lorebase/lorebase/internal/log"
)

// App is the core application container.
type App struct {
	// Configuration
	Config *config.Config

	// Core services
	Embedder  embedder.Embedder
	Knowledge *knowledge.Orchestrator
	Logger    log.Logger

	// Lifecycle management
	tracingShutdown func(context.Context) error
}

// Close gracefully shuts down all resources. Safe to call on a partially
// initialized App and safe to call more than once.
func (a *App) Close() error {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("shutting down application")

	var closeErr error
	if a.Knowledge != nil {
		closeErr = a.Knowledge.Close()
	}

	if a.tracingShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.tracingShutdown(ctx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}

	return closeErr
}
