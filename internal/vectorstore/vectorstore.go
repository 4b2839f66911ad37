package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Default configuration values shared by all providers.
const (
	// DefaultDimension is the embedding dimension used when none is configured.
	DefaultDimension = 1536

	// DefaultTopK is the number of matches returned when a search does not
	// request a specific count.
	DefaultTopK = 5

	// MetricCosine is the only distance metric currently supported. The field
	// exists on Config and Stats so backends that grow more metrics stay
	// wire-compatible.
	MetricCosine = "cosine"
)

// Sentinel errors shared by all providers. Callers match with errors.Is.
var (
	// ErrNotConnected is returned by every operation except Connect and Close
	// when the provider has not been connected. Operations fail closed rather
	// than reaching into a dead backend.
	ErrNotConnected = errors.New("vector store not connected")

	// ErrConnection indicates the backend is unreachable. Connect failures
	// wrap this; the caller must not proceed.
	ErrConnection = errors.New("vector store connection failed")

	// ErrMissingEmbedding is returned by Upsert when a record carries no
	// embedding. Records are never silently skipped.
	ErrMissingEmbedding = errors.New("record missing embedding")

	// ErrDimensionMismatch is returned when a vector's length differs from
	// the collection dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidCollection is returned for collection names that are not
	// valid lowercase identifiers.
	ErrInvalidCollection = errors.New("invalid collection name")
)

// Record is one stored entry: an ID, the original text, its embedding, and
// flat string metadata used for equality filtering.
type Record struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  map[string]string
}

// Match is a search hit. Similarity is the raw cosine similarity in [-1, 1],
// higher is better; normalization into [0, 1] happens above this layer.
// Matches carry ID, content, and metadata; the stored embedding is not
// returned.
type Match struct {
	Record
	Similarity float32
}

// SearchParams narrows a similarity search. A zero TopK means DefaultTopK.
// Filter entries are ANDed equality constraints against record metadata.
type SearchParams struct {
	TopK   int
	Filter map[string]string
}

// Stats describes the provider and its active collection.
type Stats struct {
	Provider       string `json:"provider"`
	Collection     string `json:"collection"`
	Documents      int64  `json:"documents"`
	Dimension      int    `json:"dimension"`
	DistanceMetric string `json:"distanceMetric"`
}

// Config is the connection descriptor for a provider instance. Which fields
// are required depends on the backend: memory uses only Collection and
// Dimension, pgvector uses the Postgres fields, chroma uses URL.
type Config struct {
	Provider       string
	Host           string
	Port           int
	User           string
	Password       string
	Database       string
	URL            string
	Collection     string
	Dimension      int
	DistanceMetric string
}

// Provider is the uniform capability interface over a vector store backend.
// One instance is bound to one active collection (Config.Collection); the
// collection management calls exist so callers can provision by name.
//
// Contract, identical for every backend:
//   - Connect is idempotent; an unreachable backend wraps ErrConnection.
//   - Close is idempotent and succeeds even if Connect was never called.
//   - CreateCollection and DropCollection are idempotent get-or-create/drop.
//   - Upsert rejects records without embeddings (ErrMissingEmbedding).
//   - Delete treats unknown IDs as per-ID no-ops.
//   - Search returns matches ordered by descending similarity with a stable,
//     deterministic tie-break. Never randomized.
//   - Everything except Connect and Close fails with ErrNotConnected while
//     disconnected.
type Provider interface {
	Connect(ctx context.Context) error
	Close() error
	CreateCollection(ctx context.Context, name string) error
	DropCollection(ctx context.Context, name string) error
	Upsert(ctx context.Context, records []Record) error
	Delete(ctx context.Context, ids []string) error
	Search(ctx context.Context, embedding []float32, params SearchParams) ([]Match, error)
	Stats(ctx context.Context) (Stats, error)
}

// collectionNameRE matches lowercase identifiers safe to interpolate as SQL
// table names and chroma collection names. Length is capped at 40 so the
// prefixed table and index identifiers stay inside Postgres's 63-byte limit;
// the 3-character minimum matches chroma's constraint.
var collectionNameRE = regexp.MustCompile(`^[a-z][a-z0-9_]{2,39}$`)

// ValidateCollectionName reports whether name is usable as a collection
// identifier across all backends.
func ValidateCollectionName(name string) error {
	if !collectionNameRE.MatchString(name) {
		return fmt.Errorf("%w: %q (want 3-40 lowercase letters, digits, underscores)", ErrInvalidCollection, name)
	}
	return nil
}

// withDefaults fills unset search parameters.
func (p SearchParams) withDefaults() SearchParams {
	if p.TopK <= 0 {
		p.TopK = DefaultTopK
	}
	return p
}

// validateRecords enforces the shared upsert contract: every record needs an
// ID and an embedding of the collection dimension.
func validateRecords(records []Record, dimension int) error {
	for i, rec := range records {
		if rec.ID == "" {
			return fmt.Errorf("record %d has empty id", i)
		}
		if len(rec.Embedding) == 0 {
			return fmt.Errorf("record %q: %w", rec.ID, ErrMissingEmbedding)
		}
		if len(rec.Embedding) != dimension {
			return fmt.Errorf("record %q has dimension %d, want %d: %w",
				rec.ID, len(rec.Embedding), dimension, ErrDimensionMismatch)
		}
	}
	return nil
}
