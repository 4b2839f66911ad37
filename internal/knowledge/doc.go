// Package knowledge implements the document-level knowledge base for
// retrieval-augmented generation.
//
// Documents are split into overlapping chunks, embedded, stored in a
// pluggable vector store, and retrieved by semantic similarity. The package
// owns chunking, orchestration, result caching, and similarity thresholding;
// vector persistence and nearest-neighbor search are delegated to the
// internal/vectorstore providers.
//
// # Overview
//
// Three components stack on top of each other:
//
//   - Processor: splits normalized text into overlapping sentence-aligned chunks
//   - Manager: binds one vector store to one embedder, translating text to vectors
//   - Orchestrator: document CRUD, query cache, similarity threshold, counters
//
// # Architecture
//
// Ingestion and retrieval flow:
//
//	Document (id + title + content + metadata)
//	     |
//	     v
//	Processor.Process          sentence split, greedy accumulation, overlap seeding
//	     |
//	     v
//	Manager.AddChunks          embeds chunks lacking vectors, batched upsert
//	     |
//	     v
//	vectorstore.Provider       memory | pgvector | chroma
//	     |
//	     | (when searching)
//	     v
//	Manager.Search             embeds the query once, normalizes similarity to [0,1]
//	     |
//	     v
//	Orchestrator.SearchKnowledge   cache lookup, minSimilarity post-filter
//
// # Chunking
//
// The Processor normalizes whitespace, splits text into sentences at
// terminal punctuation, and accumulates sentences greedily up to ChunkSize
// bytes. Each subsequent chunk starts with an overlap tail of the previous
// one, at most ChunkOverlap bytes, snapped to sentence boundaries when
// possible. A single sentence longer than ChunkSize becomes its own
// oversized chunk rather than being split mid-sentence.
//
// Chunk IDs are deterministic ({documentID}_chunk_{index}), so reprocessing
// identical input upserts in place instead of duplicating.
//
// # Document Lifecycle
//
// Documents are caller-identified; the chunk set is the unit of storage:
//
//	AddDocument(ctx, doc)        - chunk, embed, upsert; invalidates the cache
//	UpdateDocument(ctx, doc)     - full replace: remove all chunks, re-add
//	RemoveDocument(ctx, id)      - delete chunks found via the document_id filter
//	SearchKnowledge(ctx, u, q)   - cached, thresholded semantic search
//	Stats(ctx)                   - provider stats plus orchestrator counters
//
// UpdateDocument is delete-then-reinsert, not a patch. A search racing an
// update may transiently see none or only part of that document's chunks;
// writers are serialized but searches are not blocked.
//
// # Search Options
//
// Search behavior is configured with functional options:
//
//	results, err := orch.SearchKnowledge(ctx, userID, "pgvector index types",
//	    knowledge.WithTopK(5),
//	    knowledge.WithMinSimilarity(0.5),
//	    knowledge.WithFilter("source", "wiki"))
//
// Results arrive ordered by descending similarity, normalized into [0, 1].
// The minimum similarity is applied after the provider's topK cut, so fewer
// than topK results may come back.
//
// # Caching
//
// The Orchestrator memoizes search results keyed by the canonical
// (query, topK, minSimilarity, sorted filter) tuple. Any document write
// invalidates the whole cache; entries are never selectively evicted. The
// cache is owned by the Orchestrator instance, never package-level state.
//
// # Example Usage
//
//	store := vectorstore.NewMemory(vectorstore.Config{
//	    Collection: "knowledge",
//	    Dimension:  1536,
//	}, logger)
//	manager, err := knowledge.NewManager(store, emb, 1536, logger)
//	if err != nil {
//	    return err
//	}
//	processor, err := knowledge.NewProcessor(knowledge.ProcessorConfig{}, logger)
//	if err != nil {
//	    return err
//	}
//	orch, err := knowledge.NewOrchestrator(processor, manager, "knowledge", logger)
//	if err != nil {
//	    return err
//	}
//	if err := orch.Initialize(ctx); err != nil {
//	    return err
//	}
//	defer orch.Close()
//
//	err = orch.AddDocument(ctx, knowledge.Document{
//	    ID:      "runbook-42",
//	    Title:   "Deploy runbook",
//	    Content: text,
//	    Metadata: map[string]string{"source": "wiki"},
//	})
//
// # Thread Safety
//
// All three components are safe for concurrent use. The Orchestrator
// serializes document writes with a mutex while searches proceed
// concurrently; the Manager and the vector store providers carry their own
// synchronization.
//
// # Error Handling
//
// Callers match sentinel errors with errors.Is: ErrNotInitialized before
// Initialize has run, ErrEmptyQuery for blank queries, ErrEmptyDocumentID
// for document operations without an ID. Provider errors are logged with
// their full cause at the Manager boundary and wrapped, so backend-specific
// types never reach callers. Deleting unknown IDs or removing an unknown
// document succeeds as a no-op.
package knowledge
