package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"slices"

	"github.com/lorebase/lorebase/internal/log"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
//
// Backend-specific settings are only validated for the selected provider and
// embedder: a memory+local setup must not demand Postgres credentials.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// 1. Provider and embedder selection
	validProviders := []string{ProviderMemory, ProviderPgvector, ProviderChroma}
	if !slices.Contains(validProviders, c.Provider) {
		return fmt.Errorf("%w: %q, must be one of %v", ErrInvalidProvider, c.Provider, validProviders)
	}

	validEmbedders := []string{EmbedderLocal, EmbedderOllama, EmbedderGoogle}
	if !slices.Contains(validEmbedders, c.Embedder) {
		return fmt.Errorf("%w: %q, must be one of %v", ErrInvalidEmbedder, c.Embedder, validEmbedders)
	}

	// 2. Collection and dimension
	if c.Collection == "" {
		return fmt.Errorf("%w: collection cannot be empty", ErrInvalidCollection)
	}
	if c.Dimension < 1 || c.Dimension > MaxDimension {
		return fmt.Errorf("%w: must be between 1 and %d, got %d", ErrInvalidDimension, MaxDimension, c.Dimension)
	}

	// 3. Chunking parameters (the processor re-validates; failing here gives
	// the user a config-file error instead of a startup stack)
	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size), got %d", ErrInvalidChunking, c.ChunkOverlap)
	}
	if c.MinChunkSize < 0 || c.MinChunkSize > c.ChunkSize {
		return fmt.Errorf("%w: min_chunk_size must be in [0, chunk_size], got %d", ErrInvalidChunking, c.MinChunkSize)
	}

	// 4. Search defaults
	if c.TopK < 1 || c.TopK > 100 {
		return fmt.Errorf("%w: must be between 1 and 100, got %d", ErrInvalidTopK, c.TopK)
	}
	if c.MinSimilarity < 0 || c.MinSimilarity > 1 {
		return fmt.Errorf("%w: must be between 0 and 1, got %.2f", ErrInvalidSimilarity, c.MinSimilarity)
	}

	// 5. Backend-specific settings
	if c.Provider == ProviderPgvector {
		if err := c.validatePostgres(); err != nil {
			return err
		}
	}
	if c.Provider == ProviderChroma {
		if err := validateHTTPURL(c.ChromaURL, ErrInvalidChromaURL); err != nil {
			return err
		}
	}
	switch c.Embedder {
	case EmbedderOllama:
		if err := validateHTTPURL(c.OllamaHost, ErrInvalidOllamaHost); err != nil {
			return err
		}
	case EmbedderGoogle:
		if c.GoogleAPIKey == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required for the google embedder\n"+
				"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
				ErrMissingAPIKey)
		}
	}

	// 6. Rate limits
	if c.EmbedRateLimit < 0 {
		return fmt.Errorf("%w: embed_rate_limit must not be negative, got %d", ErrInvalidRateLimit, c.EmbedRateLimit)
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("%w: rate_limit_rps must not be negative, got %.2f", ErrInvalidRateLimit, c.RateLimitRPS)
	}
	if c.RateLimitBurst < 0 {
		return fmt.Errorf("%w: rate_limit_burst must not be negative, got %d", ErrInvalidRateLimit, c.RateLimitBurst)
	}

	// 7. Log level
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLogLevel, err)
	}

	return nil
}

// validatePostgres checks the PostgreSQL settings required by the pgvector
// provider.
func (c *Config) validatePostgres() error {
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set", ErrInvalidPostgresPassword)
	}

	// Warn on the default dev password but don't block: the user might be in dev.
	if c.PostgresPassword == "lorebase_dev_password" {
		slog.Warn("using default development password for PostgreSQL",
			"warning", "change postgres_password for production deployments")
	}

	// Modern SSL modes only; allow/prefer are deprecated (MITM vulnerable).
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	return nil
}

// validateHTTPURL checks that s parses as an absolute http(s) URL.
func validateHTTPURL(s string, sentinel error) error {
	if s == "" {
		return fmt.Errorf("%w: URL cannot be empty", sentinel)
	}
	parsed, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("%w: %v", sentinel, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" || parsed.Host == "" {
		return fmt.Errorf("%w: %q must be an absolute http(s) URL", sentinel, s)
	}
	return nil
}
