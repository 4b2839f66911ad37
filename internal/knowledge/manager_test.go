package knowledge

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/lorebase/lorebase/internal/log"
	"github.com/lorebase/lorebase/internal/vectorstore"
)

// mockStore records calls and returns canned responses. Manager invokes it
// from a single goroutine, so no locking is needed.
type mockStore struct {
	connectCalls int
	closeCalls   int
	collections  []string
	upserts      [][]vectorstore.Record
	deletes      [][]string
	searchVecs   [][]float32
	searchParams []vectorstore.SearchParams

	searchResult []vectorstore.Match
	stats        vectorstore.Stats

	connectErr error
	upsertErr  error
	deleteErr  error
	searchErr  error
	statsErr   error
}

func (s *mockStore) Connect(_ context.Context) error {
	s.connectCalls++
	return s.connectErr
}

func (s *mockStore) Close() error {
	s.closeCalls++
	return nil
}

func (s *mockStore) CreateCollection(_ context.Context, name string) error {
	s.collections = append(s.collections, name)
	return nil
}

func (s *mockStore) Upsert(_ context.Context, records []vectorstore.Record) error {
	s.upserts = append(s.upserts, records)
	return s.upsertErr
}

func (s *mockStore) Delete(_ context.Context, ids []string) error {
	s.deletes = append(s.deletes, ids)
	return s.deleteErr
}

func (s *mockStore) Search(_ context.Context, embedding []float32, params vectorstore.SearchParams) ([]vectorstore.Match, error) {
	s.searchVecs = append(s.searchVecs, embedding)
	s.searchParams = append(s.searchParams, params)
	return s.searchResult, s.searchErr
}

func (s *mockStore) Stats(_ context.Context) (vectorstore.Stats, error) {
	return s.stats, s.statsErr
}

// countingEmbedder is called concurrently by the manager's batch path.
type countingEmbedder struct {
	mu    sync.Mutex
	calls int
	texts []string
	dim   int
	err   error
}

func (e *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.texts = append(e.texts, text)
	if e.err != nil {
		return nil, e.err
	}
	vec := make([]float32, e.dim)
	vec[0] = 1
	return vec, nil
}

func (e *countingEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func newTestManager(t *testing.T, store *mockStore, emb *countingEmbedder) *Manager {
	t.Helper()
	m, err := NewManager(store, emb, 3, log.NewNop())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestNewManagerValidation(t *testing.T) {
	emb := &countingEmbedder{dim: 3}
	store := &mockStore{}

	if _, err := NewManager(nil, emb, 3, log.NewNop()); err == nil {
		t.Error("expected error for nil store")
	}
	if _, err := NewManager(store, nil, 3, log.NewNop()); err == nil {
		t.Error("expected error for nil embedder")
	}

	m, err := NewManager(store, emb, 0, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if m.dimension != vectorstore.DefaultDimension {
		t.Errorf("dimension = %d, want default %d", m.dimension, vectorstore.DefaultDimension)
	}
}

func TestManagerAddChunksEmbedsMissing(t *testing.T) {
	store := &mockStore{}
	emb := &countingEmbedder{dim: 3}
	m := newTestManager(t, store, emb)

	preset := []float32{9, 9, 9}
	chunks := []Chunk{
		{ID: "d1_chunk_0", DocumentID: "d1", Index: 0, Content: "first"},
		{ID: "d1_chunk_1", DocumentID: "d1", Index: 1, Content: "second", Embedding: preset},
		{ID: "d1_chunk_2", DocumentID: "d1", Index: 2, Content: "third"},
	}

	if err := m.AddChunks(context.Background(), chunks); err != nil {
		t.Fatalf("AddChunks: %v", err)
	}

	if got := emb.callCount(); got != 2 {
		t.Errorf("embedder calls = %d, want 2 (preset embedding must be reused)", got)
	}
	if len(store.upserts) != 1 {
		t.Fatalf("upsert calls = %d, want 1", len(store.upserts))
	}
	records := store.upserts[0]
	if len(records) != 3 {
		t.Fatalf("upserted %d records, want 3", len(records))
	}
	for _, rec := range records {
		if len(rec.Embedding) == 0 {
			t.Errorf("record %s upserted without embedding", rec.ID)
		}
	}
	if !reflect.DeepEqual(records[1].Embedding, preset) {
		t.Errorf("preset embedding was replaced: %v", records[1].Embedding)
	}
}

func TestManagerAddChunksBatching(t *testing.T) {
	store := &mockStore{}
	emb := &countingEmbedder{dim: 3}
	m := newTestManager(t, store, emb)

	chunks := make([]Chunk, 70)
	for i := range chunks {
		chunks[i] = Chunk{
			ID:         fmt.Sprintf("d1_chunk_%d", i),
			DocumentID: "d1",
			Index:      i,
			Content:    fmt.Sprintf("chunk number %d", i),
		}
	}

	if err := m.AddChunks(context.Background(), chunks); err != nil {
		t.Fatalf("AddChunks: %v", err)
	}

	wantBatches := []int{32, 32, 6}
	if len(store.upserts) != len(wantBatches) {
		t.Fatalf("upsert calls = %d, want %d", len(store.upserts), len(wantBatches))
	}
	for i, want := range wantBatches {
		if len(store.upserts[i]) != want {
			t.Errorf("batch %d size = %d, want %d", i, len(store.upserts[i]), want)
		}
	}
	if got := emb.callCount(); got != 70 {
		t.Errorf("embedder calls = %d, want 70", got)
	}
}

func TestManagerAddChunksEmbedError(t *testing.T) {
	store := &mockStore{}
	emb := &countingEmbedder{dim: 3, err: errors.New("quota exceeded")}
	m := newTestManager(t, store, emb)

	err := m.AddChunks(context.Background(), []Chunk{{ID: "d1_chunk_0", Content: "text"}})
	if err == nil {
		t.Fatal("expected embedding error")
	}
	if len(store.upserts) != 0 {
		t.Errorf("upsert calls = %d, want 0 when embedding fails", len(store.upserts))
	}
}

func TestManagerAddChunksAddsIdentityMetadata(t *testing.T) {
	store := &mockStore{}
	emb := &countingEmbedder{dim: 3}
	m := newTestManager(t, store, emb)

	callerMeta := map[string]string{"source": "test"}
	chunk := Chunk{ID: "d1_chunk_4", DocumentID: "d1", Index: 4, Content: "text", Metadata: callerMeta}

	if err := m.AddChunks(context.Background(), []Chunk{chunk}); err != nil {
		t.Fatalf("AddChunks: %v", err)
	}

	got := store.upserts[0][0].Metadata
	want := map[string]string{
		"source":      "test",
		"document_id": "d1",
		"chunk_index": "4",
		"chunk_id":    "d1_chunk_4",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("record metadata = %v, want %v", got, want)
	}
	if !reflect.DeepEqual(callerMeta, map[string]string{"source": "test"}) {
		t.Errorf("caller metadata mutated: %v", callerMeta)
	}
}

func TestManagerAddChunksEmpty(t *testing.T) {
	store := &mockStore{}
	m := newTestManager(t, store, &countingEmbedder{dim: 3})

	if err := m.AddChunks(context.Background(), nil); err != nil {
		t.Fatalf("AddChunks(nil): %v", err)
	}
	if len(store.upserts) != 0 {
		t.Errorf("upsert calls = %d, want 0", len(store.upserts))
	}
}

func TestManagerSearchEmptyQuery(t *testing.T) {
	emb := &countingEmbedder{dim: 3}
	m := newTestManager(t, &mockStore{}, emb)

	for _, query := range []string{"", "   ", "\n\t"} {
		if _, err := m.Search(context.Background(), query); !errors.Is(err, ErrEmptyQuery) {
			t.Errorf("Search(%q): error = %v, want ErrEmptyQuery", query, err)
		}
	}
	if got := emb.callCount(); got != 0 {
		t.Errorf("embedder calls = %d, want 0 for rejected queries", got)
	}
}

func TestManagerSearchNormalizesSimilarity(t *testing.T) {
	store := &mockStore{
		searchResult: []vectorstore.Match{
			{Record: vectorstore.Record{ID: "a", Metadata: map[string]string{"document_id": "d1"}}, Similarity: 1.2},
			{Record: vectorstore.Record{ID: "b", Metadata: map[string]string{"document_id": "d1"}}, Similarity: 0.5},
			{Record: vectorstore.Record{ID: "c", Metadata: map[string]string{"document_id": "d2"}}, Similarity: -0.3},
		},
	}
	m := newTestManager(t, store, &countingEmbedder{dim: 3})

	results, err := m.Search(context.Background(), "query")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	wantSims := []float32{1, 0.5, 0}
	if len(results) != len(wantSims) {
		t.Fatalf("got %d results, want %d", len(results), len(wantSims))
	}
	for i, want := range wantSims {
		if results[i].Similarity != want {
			t.Errorf("result %d similarity = %v, want %v", i, results[i].Similarity, want)
		}
	}
	if results[0].ChunkID != "a" || results[0].DocumentID != "d1" {
		t.Errorf("result identity = (%q, %q), want (a, d1)", results[0].ChunkID, results[0].DocumentID)
	}
}

func TestManagerSearchPassesParams(t *testing.T) {
	store := &mockStore{}
	emb := &countingEmbedder{dim: 3}
	m := newTestManager(t, store, emb)

	_, err := m.Search(context.Background(), "find things",
		WithTopK(7), WithFilter("source", "wiki"))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if got := emb.callCount(); got != 1 {
		t.Fatalf("embedder calls = %d, want 1", got)
	}
	if emb.texts[0] != "find things" {
		t.Errorf("embedded text = %q, want the query", emb.texts[0])
	}
	if len(store.searchParams) != 1 {
		t.Fatalf("search calls = %d, want 1", len(store.searchParams))
	}
	params := store.searchParams[0]
	if params.TopK != 7 {
		t.Errorf("TopK = %d, want 7", params.TopK)
	}
	if params.Filter["source"] != "wiki" {
		t.Errorf("filter = %v, want source=wiki", params.Filter)
	}
}

func TestManagerSearchStoreError(t *testing.T) {
	store := &mockStore{searchErr: errors.New("backend exploded")}
	m := newTestManager(t, store, &countingEmbedder{dim: 3})

	_, err := m.Search(context.Background(), "query")
	if err == nil {
		t.Fatal("expected error from store")
	}
	if !strings.Contains(err.Error(), "searching vector store") {
		t.Errorf("error = %v, want wrapped store error", err)
	}
}

func TestManagerFindByFilter(t *testing.T) {
	store := &mockStore{
		searchResult: []vectorstore.Match{
			{Record: vectorstore.Record{ID: "d1_chunk_0"}},
			{Record: vectorstore.Record{ID: "d1_chunk_1"}},
		},
	}
	m := newTestManager(t, store, &countingEmbedder{dim: 3})

	ids, err := m.FindByFilter(context.Background(), map[string]string{"document_id": "d1"}, 10000)
	if err != nil {
		t.Fatalf("FindByFilter: %v", err)
	}

	if !reflect.DeepEqual(ids, []string{"d1_chunk_0", "d1_chunk_1"}) {
		t.Errorf("ids = %v, want the matched chunk ids", ids)
	}
	probe := store.searchVecs[0]
	if len(probe) != 3 || probe[0] != 1 || probe[1] != 0 {
		t.Errorf("probe vector = %v, want unit basis of dimension 3", probe)
	}
	if store.searchParams[0].TopK != 10000 {
		t.Errorf("TopK = %d, want the caller's limit", store.searchParams[0].TopK)
	}

	if _, err := m.FindByFilter(context.Background(), nil, 10); err == nil {
		t.Error("expected error for empty filter")
	}
}

func TestManagerDeleteChunks(t *testing.T) {
	store := &mockStore{}
	m := newTestManager(t, store, &countingEmbedder{dim: 3})

	if err := m.DeleteChunks(context.Background(), []string{"a", "b"}); err != nil {
		t.Fatalf("DeleteChunks: %v", err)
	}
	if len(store.deletes) != 1 || !reflect.DeepEqual(store.deletes[0], []string{"a", "b"}) {
		t.Errorf("deletes = %v, want [[a b]]", store.deletes)
	}

	if err := m.DeleteChunks(context.Background(), nil); err != nil {
		t.Fatalf("DeleteChunks(nil): %v", err)
	}
	if len(store.deletes) != 1 {
		t.Errorf("empty delete reached the store")
	}
}

func TestManagerStats(t *testing.T) {
	store := &mockStore{stats: vectorstore.Stats{Provider: "memory", Documents: 42, Dimension: 3}}
	m := newTestManager(t, store, &countingEmbedder{dim: 3})

	stats, err := m.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Documents != 42 || stats.Provider != "memory" {
		t.Errorf("stats = %+v, want the store's stats", stats)
	}

	store.statsErr = errors.New("unavailable")
	if _, err := m.Stats(context.Background()); err == nil {
		t.Error("expected error when store stats fail")
	}
}
