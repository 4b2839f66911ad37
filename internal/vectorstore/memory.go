package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
)

// Memory is an in-memory Provider used for tests and local development.
//
// Search is fully deterministic: matches are ordered by descending cosine
// similarity, and equal similarities fall back to first-insertion order.
// Upserting an existing ID keeps its original insertion position so repeated
// runs against identical data stay reproducible.
type Memory struct {
	cfg    Config
	logger *slog.Logger

	mu          sync.RWMutex
	connected   bool
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	records map[string]memoryRecord
	nextSeq int64
}

type memoryRecord struct {
	Record
	seq int64
}

var _ Provider = (*Memory)(nil)

// NewMemory creates an in-memory provider. Only Collection and Dimension are
// read from cfg; Dimension defaults to DefaultDimension.
func NewMemory(cfg Config, logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	cfg.Provider = "memory"
	cfg.DistanceMetric = MetricCosine
	return &Memory{
		cfg:         cfg,
		logger:      logger,
		collections: make(map[string]*memoryCollection),
	}
}

// Connect marks the store connected. Idempotent; never fails.
func (m *Memory) Connect(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		m.connected = true
		m.logger.Debug("memory store connected", "collection", m.cfg.Collection)
	}
	return nil
}

// Close marks the store disconnected. Stored records survive a reconnect.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

// CreateCollection is get-or-create: an existing collection is left intact.
func (m *Memory) CreateCollection(_ context.Context, name string) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	if _, ok := m.collections[name]; !ok {
		m.collections[name] = &memoryCollection{records: make(map[string]memoryRecord)}
	}
	return nil
}

// DropCollection removes a collection and its records. Dropping a collection
// that does not exist is a no-op.
func (m *Memory) DropCollection(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	delete(m.collections, name)
	return nil
}

// Upsert inserts or replaces records in the active collection. Replacing a
// record keeps its original insertion sequence.
func (m *Memory) Upsert(_ context.Context, records []Record) error {
	if err := validateRecords(records, m.cfg.Dimension); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}

	coll := m.activeLocked()
	for _, rec := range records {
		stored := memoryRecord{Record: copyRecord(rec), seq: coll.nextSeq}
		if prev, ok := coll.records[rec.ID]; ok {
			stored.seq = prev.seq
		} else {
			coll.nextSeq++
		}
		coll.records[rec.ID] = stored
	}
	return nil
}

// Delete removes records by ID from the active collection. Unknown IDs are
// skipped without error.
func (m *Memory) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}

	coll := m.activeLocked()
	for _, id := range ids {
		delete(coll.records, id)
	}
	return nil
}

// Search scans the active collection, scoring every record that passes the
// metadata filter by cosine similarity against the query embedding.
func (m *Memory) Search(_ context.Context, embedding []float32, params SearchParams) ([]Match, error) {
	if len(embedding) != m.cfg.Dimension {
		return nil, fmt.Errorf("query has dimension %d, want %d: %w",
			len(embedding), m.cfg.Dimension, ErrDimensionMismatch)
	}
	params = params.withDefaults()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.connected {
		return nil, ErrNotConnected
	}

	coll, ok := m.collections[m.cfg.Collection]
	if !ok {
		return nil, nil
	}

	type scored struct {
		memoryRecord
		sim float32
	}
	candidates := make([]scored, 0, len(coll.records))
	for _, rec := range coll.records {
		if !matchesFilter(rec.Metadata, params.Filter) {
			continue
		}
		candidates = append(candidates, scored{
			memoryRecord: rec,
			sim:          cosineSimilarity(embedding, rec.Embedding),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].sim != candidates[j].sim {
			return candidates[i].sim > candidates[j].sim
		}
		return candidates[i].seq < candidates[j].seq
	})

	if len(candidates) > params.TopK {
		candidates = candidates[:params.TopK]
	}

	matches := make([]Match, len(candidates))
	for i, c := range candidates {
		matches[i] = Match{
			Record: Record{
				ID:       c.ID,
				Content:  c.Content,
				Metadata: copyMetadata(c.Metadata),
			},
			Similarity: c.sim,
		}
	}
	return matches, nil
}

// Stats reports counts for the active collection.
func (m *Memory) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.connected {
		return Stats{}, ErrNotConnected
	}

	var docs int64
	if coll, ok := m.collections[m.cfg.Collection]; ok {
		docs = int64(len(coll.records))
	}
	return Stats{
		Provider:       "memory",
		Collection:     m.cfg.Collection,
		Documents:      docs,
		Dimension:      m.cfg.Dimension,
		DistanceMetric: MetricCosine,
	}, nil
}

// activeLocked returns the active collection, creating it on first use.
// Caller must hold the write lock.
func (m *Memory) activeLocked() *memoryCollection {
	coll, ok := m.collections[m.cfg.Collection]
	if !ok {
		coll = &memoryCollection{records: make(map[string]memoryRecord)}
		m.collections[m.cfg.Collection] = coll
	}
	return coll
}

// matchesFilter reports whether metadata satisfies every filter entry.
func matchesFilter(metadata, filter map[string]string) bool {
	for k, v := range filter {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

// copyRecord deep-copies a record so stored data is isolated from caller
// mutations and vice versa.
func copyRecord(rec Record) Record {
	out := rec
	out.Embedding = make([]float32, len(rec.Embedding))
	copy(out.Embedding, rec.Embedding)
	out.Metadata = copyMetadata(rec.Metadata)
	return out
}

func copyMetadata(metadata map[string]string) map[string]string {
	if metadata == nil {
		return nil
	}
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}

// cosineSimilarity computes the cosine of the angle between a and b.
// A zero vector on either side yields 0 rather than NaN, which keeps
// zero-vector "match by filter only" searches deterministic.
func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
