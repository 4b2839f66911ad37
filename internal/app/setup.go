package app

import (
	"context"
	"fmt"

	"github.com/lorebase/lorebase/internal/config"
	"github.com/lorebase/lorebase/internal/embedder"
	"github.com/lorebase/lorebase/internal/knowledge"
	"github.com/lorebase/lorebase/internal/log"
	"github.com/lorebase/lorebase/internal/observability"
	"github.com/lorebase/lorebase/internal/vectorstore"
)

// Setup creates and initializes the application: tracing, embedder, vector
// store, and the knowledge orchestrator, connected and ready for use.
// Returns an App with embedded cleanup; call Close to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	if logger == nil {
		logger = log.NewNop()
	}

	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.tracingShutdown = provideTracing(ctx, cfg, logger)

	emb, err := provideEmbedder(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Embedder = emb

	store := provideVectorStore(cfg, logger)

	manager, err := knowledge.NewManager(store, emb, cfg.Dimension, logger)
	if err != nil {
		return nil, fmt.Errorf("creating knowledge manager: %w", err)
	}

	processor, err := knowledge.NewProcessor(knowledge.ProcessorConfig{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		MinChunkSize: cfg.MinChunkSize,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating document processor: %w", err)
	}

	orch, err := knowledge.NewOrchestrator(processor, manager, cfg.Collection, logger)
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}
	if err := orch.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initializing knowledge layer: %w", err)
	}
	a.Knowledge = orch

	logger.Info("application ready",
		"provider", cfg.Provider,
		"embedder", cfg.Embedder,
		"collection", cfg.Collection,
	)

	return a, nil
}

// provideTracing sets up OTLP trace export. Failures degrade to a no-op
// shutdown so the application never refuses to start over a missing
// collector.
func provideTracing(ctx context.Context, cfg *config.Config, logger log.Logger) func(context.Context) error {
	shutdown, err := observability.SetupTracing(ctx, observability.Config{
		Endpoint:    cfg.OTLP.Endpoint,
		Environment: cfg.OTLP.Environment,
		ServiceName: cfg.OTLP.ServiceName,
	})
	if err != nil {
		logger.Warn("setting up tracing", "error", err)
		return func(context.Context) error { return nil }
	}
	return shutdown
}

// provideEmbedder builds the configured embedder, wrapped with a rate
// limiter when embed_rate_limit is set. Model names default inside the
// constructors.
func provideEmbedder(ctx context.Context, cfg *config.Config, logger log.Logger) (embedder.Embedder, error) {
	var emb embedder.Embedder

	switch cfg.Embedder {
	case config.EmbedderOllama:
		emb = embedder.NewOllama(cfg.OllamaHost, cfg.EmbedderModel, nil, logger)

	case config.EmbedderGoogle:
		g, err := embedder.NewGoogle(ctx, cfg.GoogleAPIKey, cfg.EmbedderModel, cfg.Dimension, logger)
		if err != nil {
			return nil, fmt.Errorf("creating google embedder: %w", err)
		}
		emb = g

	default: // "local"
		emb = embedder.NewLocal(cfg.Dimension)
	}

	if cfg.EmbedRateLimit > 0 {
		emb = embedder.NewRateLimited(emb, cfg.EmbedRateLimit)
	}

	return emb, nil
}

// provideVectorStore builds the configured provider. No connection is made
// here; that happens in Orchestrator.Initialize.
func provideVectorStore(cfg *config.Config, logger log.Logger) vectorstore.Provider {
	vcfg := vectorstore.Config{
		Provider:   cfg.Provider,
		Collection: cfg.Collection,
		Dimension:  cfg.Dimension,
	}

	switch cfg.Provider {
	case config.ProviderPgvector:
		vcfg.URL = cfg.PostgresURL()
		return vectorstore.NewPostgres(vcfg, logger)

	case config.ProviderChroma:
		vcfg.URL = cfg.ChromaURL
		return vectorstore.NewChroma(vcfg, logger)

	default: // "memory"
		return vectorstore.NewMemory(vcfg, logger)
	}
}
