package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultCollectionName is used when no collection is configured.
	DefaultCollectionName = "knowledge"

	// removeScanLimit bounds the metadata-filtered scan that locates a
	// document's chunks for deletion. Far above any realistic chunk count
	// for a single document.
	removeScanLimit = 10000
)

// Orchestrator is the document-level entry point of the knowledge base. It
// turns whole documents into chunk sets, delegates storage and search to the
// Manager, caches query results, and applies the similarity threshold.
//
// Every method except Initialize and Close fails with ErrNotInitialized
// until Initialize has succeeded. Document writes are serialized; searches
// run concurrently. Because UpdateDocument is delete-then-reinsert, a search
// racing an update may transiently see none or only part of that document's
// chunks.
type Orchestrator struct {
	processor  *Processor
	manager    *Manager
	collection string
	logger     *slog.Logger

	cache *queryCache

	// stateMu guards initialized; writeMu serializes document mutations.
	stateMu     sync.RWMutex
	initialized bool
	writeMu     sync.Mutex

	searches       atomic.Int64
	searchLatencyU atomic.Int64 // cumulative backend search time, microseconds
}

// NewOrchestrator creates an Orchestrator over a processor and a manager.
// An empty collection selects DefaultCollectionName.
func NewOrchestrator(processor *Processor, manager *Manager, collection string, logger *slog.Logger) (*Orchestrator, error) {
	if processor == nil {
		return nil, errors.New("processor is required")
	}
	if manager == nil {
		return nil, errors.New("manager is required")
	}
	if collection == "" {
		collection = DefaultCollectionName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		processor:  processor,
		manager:    manager,
		collection: collection,
		logger:     logger,
		cache:      newQueryCache(),
	}, nil
}

// Initialize connects the vector store and provisions the collection.
// Idempotent; safe to call again after a failed attempt.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	if o.initialized {
		return nil
	}

	if err := o.manager.Connect(ctx); err != nil {
		return fmt.Errorf("connecting vector store: %w", err)
	}
	if err := o.manager.EnsureCollection(ctx, o.collection); err != nil {
		return fmt.Errorf("provisioning collection %q: %w", o.collection, err)
	}

	o.initialized = true
	o.logger.Info("knowledge base initialized", "collection", o.collection)
	return nil
}

// Close disconnects the vector store and drops cached results. Idempotent.
func (o *Orchestrator) Close() error {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	if !o.initialized {
		return nil
	}
	o.initialized = false
	o.cache.invalidate()
	return o.manager.Close()
}

func (o *Orchestrator) requireInitialized() error {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	if !o.initialized {
		return ErrNotInitialized
	}
	return nil
}

// AddDocument chunks, embeds and stores a document, then invalidates the
// query cache. A document whose content normalizes to nothing is a
// successful no-op. On error nothing new is visible unless some batches were
// already upserted; retrying converges because chunk IDs are deterministic.
func (o *Orchestrator) AddDocument(ctx context.Context, doc Document) error {
	if err := o.requireInitialized(); err != nil {
		return err
	}

	o.writeMu.Lock()
	defer o.writeMu.Unlock()
	return o.addLocked(ctx, doc)
}

// UpdateDocument replaces a document's full chunk set: remove, then add.
// Never a partial patch. If the add phase fails after the delete phase ran,
// the document's chunks are gone and the caller must re-add it.
func (o *Orchestrator) UpdateDocument(ctx context.Context, doc Document) error {
	if err := o.requireInitialized(); err != nil {
		return err
	}
	if doc.ID == "" {
		return ErrEmptyDocumentID
	}

	o.writeMu.Lock()
	defer o.writeMu.Unlock()
	if err := o.removeLocked(ctx, doc.ID); err != nil {
		return err
	}
	return o.addLocked(ctx, doc)
}

// RemoveDocument deletes every chunk whose metadata names the document.
// Removing an unknown document is a successful no-op.
func (o *Orchestrator) RemoveDocument(ctx context.Context, documentID string) error {
	if err := o.requireInitialized(); err != nil {
		return err
	}
	if documentID == "" {
		return ErrEmptyDocumentID
	}

	o.writeMu.Lock()
	defer o.writeMu.Unlock()
	return o.removeLocked(ctx, documentID)
}

func (o *Orchestrator) addLocked(ctx context.Context, doc Document) error {
	chunks, err := o.processor.Process(doc)
	if err != nil {
		return err
	}
	if err := o.manager.AddChunks(ctx, chunks); err != nil {
		return fmt.Errorf("storing document %q: %w", doc.ID, err)
	}

	o.cache.invalidate()
	o.logger.Debug("document added", "document_id", doc.ID, "chunks", len(chunks))
	return nil
}

func (o *Orchestrator) removeLocked(ctx context.Context, documentID string) error {
	ids, err := o.manager.FindByFilter(ctx,
		map[string]string{"document_id": documentID}, removeScanLimit)
	if err != nil {
		return fmt.Errorf("locating chunks of %q: %w", documentID, err)
	}
	if len(ids) == 0 {
		return nil
	}

	if err := o.manager.DeleteChunks(ctx, ids); err != nil {
		return fmt.Errorf("removing document %q: %w", documentID, err)
	}

	o.cache.invalidate()
	o.logger.Debug("document removed", "document_id", documentID, "chunks", len(ids))
	return nil
}

// SearchKnowledge answers a semantic query. Results scoring below the
// configured minimum similarity are discarded after the provider's topK cut,
// so fewer than topK results may come back. Identical queries are served
// from the cache until a document write invalidates it. The userID is
// carried for logging only and never affects ranking.
func (o *Orchestrator) SearchKnowledge(ctx context.Context, userID, query string, opts ...SearchOption) ([]SearchResult, error) {
	if err := o.requireInitialized(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	o.searches.Add(1)
	cfg := buildSearchConfig(opts)
	key := cacheKey(query, *cfg)

	if results, ok := o.cache.get(key); ok {
		o.logger.Debug("search served from cache",
			"user_id", userID,
			"results", len(results))
		return results, nil
	}

	start := time.Now()
	results, err := o.manager.Search(ctx, query, opts...)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	o.searchLatencyU.Add(elapsed.Microseconds())

	results = filterBySimilarity(results, cfg.minSimilarity)
	o.cache.put(key, results)

	o.logger.Debug("search completed",
		"user_id", userID,
		"results", len(results),
		"elapsed", elapsed)
	return results, nil
}

// Stats merges provider statistics with the orchestrator's own counters.
func (o *Orchestrator) Stats(ctx context.Context) (SystemStats, error) {
	if err := o.requireInitialized(); err != nil {
		return SystemStats{}, err
	}

	storeStats, err := o.manager.Stats(ctx)
	if err != nil {
		return SystemStats{}, err
	}
	return SystemStats{
		Store:                storeStats,
		Searches:             o.searches.Load(),
		CacheHits:            o.cache.hitCount(),
		CacheSize:            o.cache.size(),
		TotalSearchLatencyMS: float64(o.searchLatencyU.Load()) / 1000,
	}, nil
}

// filterBySimilarity keeps results at or above the threshold, preserving
// order. A zero threshold keeps everything.
func filterBySimilarity(results []SearchResult, threshold float32) []SearchResult {
	if threshold <= 0 {
		return results
	}
	filtered := make([]SearchResult, 0, len(results))
	for _, r := range results {
		if r.Similarity >= threshold {
			filtered = append(filtered, r)
		}
	}
	return filtered
}
