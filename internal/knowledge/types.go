package knowledge

import (
	"context"
	"errors"
	"time"

	"github.com/lorebase/lorebase/internal/vectorstore"
)

// Default search parameters. SearchKnowledge discards results scoring below
// the minimum similarity after the provider's topK cut.
const (
	DefaultTopK          = 5
	DefaultMinSimilarity = 0.3
)

var (
	// ErrNotInitialized indicates an operation was called before Initialize.
	ErrNotInitialized = errors.New("knowledge system not initialized")

	// ErrEmptyQuery indicates a search with an empty or blank query.
	ErrEmptyQuery = errors.New("query must not be empty")

	// ErrEmptyDocumentID indicates a document operation without an ID.
	ErrEmptyDocumentID = errors.New("document id must not be empty")
)

// Document is the unit of ingestion. Identity is the caller-owned ID; storing
// a document with an existing ID replaces its previous chunks.
type Document struct {
	ID        string            `json:"id"`
	Title     string            `json:"title,omitempty"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at,omitempty"`
	UpdatedAt time.Time         `json:"updated_at,omitempty"`
}

// Chunk is a contiguous span of a document sized for embedding. Chunk IDs are
// deterministic ({documentID}_chunk_{index}), so reprocessing identical input
// upserts in place. A chunk never outlives its document: updates replace the
// full chunk set.
type Chunk struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	Index      int               `json:"index"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Embedding  []float32         `json:"-"`
}

// SearchResult is one ranked hit from the knowledge base. Similarity is
// normalized to [0, 1], higher is better.
type SearchResult struct {
	DocumentID string            `json:"document_id"`
	ChunkID    string            `json:"chunk_id"`
	Content    string            `json:"content"`
	Similarity float32           `json:"similarity"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// SystemStats merges store-level stats with the orchestrator's counters.
type SystemStats struct {
	Store                vectorstore.Stats `json:"store"`
	Searches             int64             `json:"searches"`
	CacheHits            int64             `json:"cache_hits"`
	CacheSize            int               `json:"cache_size"`
	TotalSearchLatencyMS float64           `json:"total_search_latency_ms"`
}

// Embedder converts text into a fixed-dimension vector. Implementations may
// be called concurrently.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store is the vector store surface the manager consumes. Interfaces are
// defined by the consumer, not the provider; vectorstore.Provider satisfies
// this structurally.
type Store interface {
	Connect(ctx context.Context) error
	Close() error
	CreateCollection(ctx context.Context, name string) error
	Upsert(ctx context.Context, records []vectorstore.Record) error
	Delete(ctx context.Context, ids []string) error
	Search(ctx context.Context, embedding []float32, params vectorstore.SearchParams) ([]vectorstore.Match, error)
	Stats(ctx context.Context) (vectorstore.Stats, error)
}

// SearchOption configures search behavior using the functional options
// pattern.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK          int
	minSimilarity float32
	filter        map[string]string
}

// WithTopK sets the maximum number of results to return. Default is 5.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithMinSimilarity sets the similarity threshold below which results are
// discarded. Default is 0.3; zero disables the threshold.
func WithMinSimilarity(threshold float32) SearchOption {
	return func(c *searchConfig) {
		c.minSimilarity = threshold
	}
}

// WithFilter adds a metadata equality filter. Multiple calls combine with
// AND logic.
func WithFilter(key, value string) SearchOption {
	return func(c *searchConfig) {
		if c.filter == nil {
			c.filter = make(map[string]string)
		}
		c.filter[key] = value
	}
}

// buildSearchConfig applies options over the defaults.
func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		topK:          DefaultTopK,
		minSimilarity: DefaultMinSimilarity,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
