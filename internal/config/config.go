// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.lorebase/config.yaml or ./config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - Vector store: provider selection, collection, dimension (see storage.go for Postgres helpers)
//   - Embedder: backend selection, model, rate limiting
//   - Chunking: chunk size, overlap, minimum chunk size
//   - Search: topK and similarity threshold defaults
//   - Server: HTTP listen address and rate limits
//   - Observability: OTLP trace export (see observability.go)
//
// Security: sensitive values (passwords, API keys) are masked in MarshalJSON
// and String; the config directory uses 0750 permissions.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the vector store provider is not supported.
	ErrInvalidProvider = errors.New("invalid vector store provider")

	// ErrInvalidEmbedder indicates the embedder backend is not supported.
	ErrInvalidEmbedder = errors.New("invalid embedder")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidDimension indicates the embedding dimension is out of range.
	ErrInvalidDimension = errors.New("invalid embedding dimension")

	// ErrInvalidCollection indicates the collection name is empty.
	ErrInvalidCollection = errors.New("invalid collection name")

	// ErrInvalidChunking indicates the chunking parameters are inconsistent.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrInvalidTopK indicates the search topK is out of range.
	ErrInvalidTopK = errors.New("invalid top_k")

	// ErrInvalidSimilarity indicates the similarity threshold is out of range.
	ErrInvalidSimilarity = errors.New("invalid min_similarity")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidChromaURL indicates the Chroma server URL is invalid.
	ErrInvalidChromaURL = errors.New("invalid Chroma URL")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidRateLimit indicates a rate limit value is negative.
	ErrInvalidRateLimit = errors.New("invalid rate limit")

	// ErrInvalidLogLevel indicates the log level name is unknown.
	ErrInvalidLogLevel = errors.New("invalid log level")
)

// Vector store provider identifiers used in Config.Provider.
const (
	ProviderMemory   = "memory"
	ProviderPgvector = "pgvector"
	ProviderChroma   = "chroma"
)

// Embedder backend identifiers used in Config.Embedder.
const (
	EmbedderLocal  = "local"
	EmbedderOllama = "ollama"
	EmbedderGoogle = "google"
)

const (
	// DefaultGoogleEmbedderModel truncates its 3072-dimensional output to the
	// configured dimension via OutputDimensionality.
	DefaultGoogleEmbedderModel = "gemini-embedding-001"

	// DefaultOllamaEmbedderModel is the default model for the Ollama backend.
	DefaultOllamaEmbedderModel = "nomic-embed-text"

	// MaxDimension is the largest accepted embedding dimension. pgvector
	// indexes reject vectors wider than 2000.
	MaxDimension = 2000
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys, tokens), update MarshalJSON.
type Config struct {
	// Vector store configuration
	Provider   string `mapstructure:"provider" json:"provider"` // "memory" (default), "pgvector", "chroma"
	Collection string `mapstructure:"collection" json:"collection"`
	Dimension  int    `mapstructure:"dimension" json:"dimension"`

	// Embedder configuration
	Embedder       string `mapstructure:"embedder" json:"embedder"` // "local" (default), "ollama", "google"
	EmbedderModel  string `mapstructure:"embedder_model" json:"embedder_model"`
	GoogleAPIKey   string `mapstructure:"google_api_key" json:"google_api_key"` // SENSITIVE: masked in MarshalJSON
	OllamaHost     string `mapstructure:"ollama_host" json:"ollama_host"`
	EmbedRateLimit int    `mapstructure:"embed_rate_limit" json:"embed_rate_limit"` // requests/minute, 0 = unlimited

	// Chunking configuration
	ChunkSize    int `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	MinChunkSize int `mapstructure:"min_chunk_size" json:"min_chunk_size"`

	// Search defaults
	TopK          int     `mapstructure:"top_k" json:"top_k"`
	MinSimilarity float32 `mapstructure:"min_similarity" json:"min_similarity"`

	// PostgreSQL configuration (pgvector provider; see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Chroma configuration (chroma provider)
	ChromaURL string `mapstructure:"chroma_url" json:"chroma_url"`

	// HTTP server configuration (serve mode)
	ServerAddr     string  `mapstructure:"server_addr" json:"server_addr"`
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps" json:"rate_limit_rps"` // per-client requests/second, 0 = unlimited
	RateLimitBurst int     `mapstructure:"rate_limit_burst" json:"rate_limit_burst"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level" json:"log_level"` // debug, info, warn, error
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`

	// Observability configuration (see observability.go)
	OTLP OTLPConfig `mapstructure:"otlp" json:"otlp"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".lorebase")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings when set
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// Vector store defaults
	viper.SetDefault("provider", ProviderMemory)
	viper.SetDefault("collection", "knowledge")
	viper.SetDefault("dimension", 1536)

	// Embedder defaults
	viper.SetDefault("embedder", EmbedderLocal)
	viper.SetDefault("embedder_model", "")
	viper.SetDefault("ollama_host", "http://localhost:11434")
	viper.SetDefault("embed_rate_limit", 0)

	// Chunking defaults
	viper.SetDefault("chunk_size", 1000)
	viper.SetDefault("chunk_overlap", 200)
	viper.SetDefault("min_chunk_size", 100)

	// Search defaults
	viper.SetDefault("top_k", 5)
	viper.SetDefault("min_similarity", 0.3)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "lorebase")
	viper.SetDefault("postgres_password", "lorebase_dev_password")
	viper.SetDefault("postgres_db_name", "lorebase")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Chroma defaults
	viper.SetDefault("chroma_url", "http://localhost:8000")

	// Server defaults
	viper.SetDefault("server_addr", ":8080")
	viper.SetDefault("rate_limit_rps", 10)
	viper.SetDefault("rate_limit_burst", 20)

	// Logging defaults
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_json", false)

	// OTLP defaults (disabled until an endpoint is configured)
	viper.SetDefault("otlp.endpoint", "")
	viper.SetDefault("otlp.environment", "dev")
	viper.SetDefault("otlp.service_name", "lorebase")
}

// bindEnvVariables binds environment variable overrides explicitly.
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail).
	// If this panics, it's a bug in this file, not a runtime error.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	// Vector store overrides
	mustBind("provider", "LOREBASE_PROVIDER")
	mustBind("collection", "LOREBASE_COLLECTION")
	mustBind("dimension", "LOREBASE_DIMENSION")
	mustBind("chroma_url", "LOREBASE_CHROMA_URL")

	// Embedder overrides
	mustBind("embedder", "LOREBASE_EMBEDDER")
	mustBind("embedder_model", "LOREBASE_EMBEDDER_MODEL")
	mustBind("ollama_host", "LOREBASE_OLLAMA_HOST")
	mustBind("google_api_key", "GEMINI_API_KEY")

	// Server overrides
	mustBind("server_addr", "LOREBASE_SERVER_ADDR")

	// Logging overrides
	mustBind("log_level", "LOREBASE_LOG_LEVEL")
	mustBind("log_json", "LOREBASE_LOG_JSON")

	// OTLP endpoint uses the conventional OpenTelemetry variable
	mustBind("otlp.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")

	// NOTE: postgres_* settings are overridden wholesale via DATABASE_URL,
	// parsed in parseDatabaseURL after unmarshalling.
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks (U+2588) cannot collide with substrings of real secrets.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 characters or fewer are fully masked; longer secrets keep the
// first and last 2 characters for debug utility.
//
// THREAT MODEL: this defends against accidental logging of real secrets. It
// is not cryptographically secure; if logs are compromised, rotate secrets.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - PostgresPassword
//   - GoogleAPIKey
//
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.GoogleAPIKey = maskSecret(a.GoogleAPIKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
