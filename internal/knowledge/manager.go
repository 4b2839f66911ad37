package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/lorebase/lorebase/internal/vectorstore"
)

// Embedding batch parameters. Within a batch, chunks are embedded
// concurrently up to embedParallelism in-flight requests.
const (
	DefaultEmbedBatchSize = 32
	embedParallelism      = 4
)

// Manager binds one vector store to one embedder and translates between text
// and vectors. Provider errors are logged with their full cause here and
// wrapped, so no backend-specific error type leaks to callers.
//
// Manager is safe for concurrent use.
type Manager struct {
	store     Store
	embedder  Embedder
	dimension int
	batchSize int
	logger    *slog.Logger
}

// NewManager creates a Manager. The dimension must match the store's
// collection; zero selects the store default.
func NewManager(store Store, embedder Embedder, dimension int, logger *slog.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if dimension <= 0 {
		dimension = vectorstore.DefaultDimension
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:     store,
		embedder:  embedder,
		dimension: dimension,
		batchSize: DefaultEmbedBatchSize,
		logger:    logger,
	}, nil
}

// Connect establishes the store connection.
func (m *Manager) Connect(ctx context.Context) error {
	return m.store.Connect(ctx)
}

// Close releases the store connection.
func (m *Manager) Close() error {
	return m.store.Close()
}

// EnsureCollection provisions the named collection, get-or-create.
func (m *Manager) EnsureCollection(ctx context.Context, name string) error {
	return m.store.CreateCollection(ctx, name)
}

// AddChunks embeds any chunk lacking an embedding and upserts everything in
// batches. Batches already upserted are not rolled back when a later batch
// fails; chunk IDs are deterministic, so retrying the same input converges.
func (m *Manager) AddChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for start := 0; start < len(chunks); start += m.batchSize {
		end := min(start+m.batchSize, len(chunks))
		if err := m.addBatch(ctx, chunks[start:end]); err != nil {
			return err
		}
	}
	m.logger.Debug("chunks stored", "count", len(chunks))
	return nil
}

func (m *Manager) addBatch(ctx context.Context, batch []Chunk) error {
	records := make([]vectorstore.Record, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedParallelism)
	for i, chunk := range batch {
		records[i] = vectorstore.Record{
			ID:       chunk.ID,
			Content:  chunk.Content,
			Metadata: ensureChunkIdentity(chunk),
		}
		if len(chunk.Embedding) > 0 {
			records[i].Embedding = chunk.Embedding
			continue
		}
		g.Go(func() error {
			vec, err := m.embedder.Embed(gctx, chunk.Content)
			if err != nil {
				return fmt.Errorf("embedding chunk %q: %w", chunk.ID, err)
			}
			records[i].Embedding = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		m.logger.Error("batch embedding failed", "batch_size", len(batch), "error", err)
		return err
	}

	if err := m.store.Upsert(ctx, records); err != nil {
		m.logger.Error("chunk upsert failed", "batch_size", len(records), "error", err)
		return fmt.Errorf("upserting chunks: %w", err)
	}
	return nil
}

// Search embeds the query once and delegates to the store. Similarity comes
// back from providers as raw cosine in [-1, 1] and is normalized to [0, 1]
// here, at the one boundary all callers share.
func (m *Manager) Search(ctx context.Context, query string, opts ...SearchOption) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	cfg := buildSearchConfig(opts)

	embedding, err := m.embedder.Embed(ctx, query)
	if err != nil {
		m.logger.Error("query embedding failed", "error", err)
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	matches, err := m.store.Search(ctx, embedding, vectorstore.SearchParams{
		TopK:   cfg.topK,
		Filter: cfg.filter,
	})
	if err != nil {
		m.logger.Error("vector search failed", "error", err)
		return nil, fmt.Errorf("searching vector store: %w", err)
	}
	return matchesToResults(matches), nil
}

// FindByFilter returns the IDs of chunks whose metadata matches the filter,
// up to limit. The probe is a unit basis vector: the filter does the actual
// selection, ordering is irrelevant for this metadata-driven path.
func (m *Manager) FindByFilter(ctx context.Context, filter map[string]string, limit int) ([]string, error) {
	if len(filter) == 0 {
		return nil, errors.New("filter must not be empty")
	}

	probe := make([]float32, m.dimension)
	probe[0] = 1
	matches, err := m.store.Search(ctx, probe, vectorstore.SearchParams{
		TopK:   limit,
		Filter: filter,
	})
	if err != nil {
		m.logger.Error("filter scan failed", "filter", filter, "error", err)
		return nil, fmt.Errorf("scanning by filter: %w", err)
	}

	ids := make([]string, len(matches))
	for i, match := range matches {
		ids[i] = match.ID
	}
	return ids, nil
}

// DeleteChunks removes chunks by ID. Unknown IDs are no-ops per the store
// contract.
func (m *Manager) DeleteChunks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := m.store.Delete(ctx, ids); err != nil {
		m.logger.Error("chunk delete failed", "count", len(ids), "error", err)
		return fmt.Errorf("deleting chunks: %w", err)
	}
	return nil
}

// Stats reads the store-level statistics.
func (m *Manager) Stats(ctx context.Context) (vectorstore.Stats, error) {
	stats, err := m.store.Stats(ctx)
	if err != nil {
		return vectorstore.Stats{}, fmt.Errorf("reading store stats: %w", err)
	}
	return stats, nil
}

// ensureChunkIdentity returns the chunk's metadata with document_id,
// chunk_index and chunk_id present, copying the map before adding anything.
// The caller's map is never mutated.
func ensureChunkIdentity(chunk Chunk) map[string]string {
	meta := chunk.Metadata
	_, hasDoc := meta["document_id"]
	_, hasIndex := meta["chunk_index"]
	_, hasID := meta["chunk_id"]
	if hasDoc && hasIndex && hasID {
		return meta
	}

	out := make(map[string]string, len(meta)+3)
	for k, v := range meta {
		out[k] = v
	}
	if !hasDoc && chunk.DocumentID != "" {
		out["document_id"] = chunk.DocumentID
	}
	if !hasIndex {
		out["chunk_index"] = strconv.Itoa(chunk.Index)
	}
	if !hasID && chunk.ID != "" {
		out["chunk_id"] = chunk.ID
	}
	return out
}

// matchesToResults converts provider matches into search results with
// normalized similarity.
func matchesToResults(matches []vectorstore.Match) []SearchResult {
	results := make([]SearchResult, 0, len(matches))
	for _, match := range matches {
		results = append(results, SearchResult{
			DocumentID: match.Metadata["document_id"],
			ChunkID:    match.ID,
			Content:    match.Content,
			Similarity: clamp01(match.Similarity),
			Metadata:   match.Metadata,
		})
	}
	return results
}

// clamp01 maps raw cosine similarity onto the [0, 1] result scale. Negative
// similarity carries no retrieval value and clamps to zero.
func clamp01(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
