package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
)

// Chroma is a Provider backed by a ChromaDB server. Collections are created
// with the cosine HNSW space so distances convert to the shared similarity
// scale as 1 - distance.
type Chroma struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	client chromago.Client
	coll   chromago.Collection
}

var _ Provider = (*Chroma)(nil)

// NewChroma creates a chroma-backed provider. cfg.URL is the server base URL
// (default http://localhost:8000 when empty).
func NewChroma(cfg Config, logger *slog.Logger) *Chroma {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	cfg.Provider = "chroma"
	cfg.DistanceMetric = MetricCosine
	return &Chroma{cfg: cfg, logger: logger}
}

// Connect creates the HTTP client and provisions the active collection. The
// get-or-create round trip doubles as the reachability check. Idempotent.
func (c *Chroma) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return nil
	}

	var client chromago.Client
	var err error
	if c.cfg.URL != "" {
		client, err = chromago.NewHTTPClient(chromago.WithBaseURL(c.cfg.URL))
	} else {
		client, err = chromago.NewHTTPClient()
	}
	if err != nil {
		return fmt.Errorf("%w: creating chroma client: %v", ErrConnection, err)
	}

	coll, err := getOrCreateChromaCollection(ctx, client, c.cfg.Collection)
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	c.client = client
	c.coll = coll
	c.logger.Debug("chroma store connected", "url", c.cfg.URL, "collection", c.cfg.Collection)
	return nil
}

// Close releases the client. Safe to call repeatedly or before Connect.
func (c *Chroma) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	c.coll = nil
	if err != nil {
		return fmt.Errorf("closing chroma client: %w", err)
	}
	return nil
}

// CreateCollection is get-or-create by name.
func (c *Chroma) CreateCollection(ctx context.Context, name string) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return ErrNotConnected
	}

	coll, err := getOrCreateChromaCollection(ctx, c.client, name)
	if err != nil {
		return fmt.Errorf("creating collection %q: %w", name, err)
	}
	if name == c.cfg.Collection {
		c.coll = coll
	}
	return nil
}

// DropCollection deletes a collection; a collection that does not exist is a
// no-op.
func (c *Chroma) DropCollection(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return ErrNotConnected
	}

	if err := c.client.DeleteCollection(ctx, name); err != nil {
		if !isChromaNotFound(err) {
			return fmt.Errorf("dropping collection %q: %w", name, err)
		}
	}
	if name == c.cfg.Collection {
		c.coll = nil
	}
	return nil
}

// Upsert writes records to the active collection.
func (c *Chroma) Upsert(ctx context.Context, records []Record) error {
	if err := validateRecords(records, c.cfg.Dimension); err != nil {
		return err
	}
	coll, err := c.activeCollection(ctx)
	if err != nil {
		return err
	}

	ids := make([]chromago.DocumentID, len(records))
	texts := make([]string, len(records))
	embs := make([]embeddings.Embedding, len(records))
	metadatas := make([]chromago.DocumentMetadata, len(records))
	for i, rec := range records {
		ids[i] = chromago.DocumentID(rec.ID)
		texts[i] = rec.Content
		embs[i] = embeddings.NewEmbeddingFromFloat32(rec.Embedding)
		metadatas[i] = chromaMetadata(rec.Metadata)
	}

	err = coll.Upsert(ctx,
		chromago.WithIDs(ids...),
		chromago.WithTexts(texts...),
		chromago.WithEmbeddings(embs...),
		chromago.WithMetadatas(metadatas...),
	)
	if err != nil {
		return fmt.Errorf("upserting records: %w", err)
	}
	return nil
}

// Delete removes records by ID; the server ignores IDs that do not exist.
func (c *Chroma) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	coll, err := c.activeCollection(ctx)
	if err != nil {
		return err
	}

	docIDs := make([]chromago.DocumentID, len(ids))
	for i, id := range ids {
		docIDs[i] = chromago.DocumentID(id)
	}
	if err := coll.Delete(ctx, chromago.WithIDsDelete(docIDs...)); err != nil {
		return fmt.Errorf("deleting records: %w", err)
	}
	return nil
}

// Search queries the active collection. Chroma returns cosine distances in
// ascending order; similarity is 1 - distance.
func (c *Chroma) Search(ctx context.Context, embedding []float32, params SearchParams) ([]Match, error) {
	if len(embedding) != c.cfg.Dimension {
		return nil, fmt.Errorf("query has dimension %d, want %d: %w",
			len(embedding), c.cfg.Dimension, ErrDimensionMismatch)
	}
	params = params.withDefaults()
	coll, err := c.activeCollection(ctx)
	if err != nil {
		return nil, err
	}

	query := embeddings.NewEmbeddingFromFloat32(embedding)
	var results chromago.QueryResult
	if len(params.Filter) > 0 {
		results, err = coll.Query(ctx,
			chromago.WithQueryEmbeddings(query),
			chromago.WithNResults(params.TopK),
			chromago.WithWhereQuery(chromaWhere(params.Filter)),
		)
	} else {
		results, err = coll.Query(ctx,
			chromago.WithQueryEmbeddings(query),
			chromago.WithNResults(params.TopK),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	idGroups := results.GetIDGroups()
	if len(idGroups) == 0 || len(idGroups[0]) == 0 {
		return nil, nil
	}
	docGroups := results.GetDocumentsGroups()
	metaGroups := results.GetMetadatasGroups()
	distGroups := results.GetDistancesGroups()

	matches := make([]Match, 0, len(idGroups[0]))
	for i, id := range idGroups[0] {
		match := Match{Record: Record{ID: string(id)}}
		if len(docGroups) > 0 && i < len(docGroups[0]) {
			match.Content = docGroups[0][i].ContentString()
		}
		if len(metaGroups) > 0 && i < len(metaGroups[0]) {
			match.Metadata = decodeChromaMetadata(metaGroups[0][i])
		}
		if len(distGroups) > 0 && i < len(distGroups[0]) {
			match.Similarity = 1 - float32(distGroups[0][i])
		}
		matches = append(matches, match)
	}
	return matches, nil
}

// Stats counts records in the active collection.
func (c *Chroma) Stats(ctx context.Context) (Stats, error) {
	coll, err := c.activeCollection(ctx)
	if err != nil {
		return Stats{}, err
	}

	count, err := coll.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("counting documents: %w", err)
	}
	return Stats{
		Provider:       "chroma",
		Collection:     c.cfg.Collection,
		Documents:      int64(count),
		Dimension:      c.cfg.Dimension,
		DistanceMetric: MetricCosine,
	}, nil
}

// activeCollection returns the active collection handle, re-provisioning it
// when the collection was dropped since Connect.
func (c *Chroma) activeCollection(ctx context.Context) (chromago.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil, ErrNotConnected
	}
	if c.coll == nil {
		coll, err := getOrCreateChromaCollection(ctx, c.client, c.cfg.Collection)
		if err != nil {
			return nil, fmt.Errorf("provisioning collection %q: %w", c.cfg.Collection, err)
		}
		c.coll = coll
	}
	return c.coll, nil
}

// getOrCreateChromaCollection provisions a collection with the cosine HNSW
// space. The hnsw:space attribute only applies on first creation; existing
// collections keep their original space.
func getOrCreateChromaCollection(ctx context.Context, client chromago.Client, name string) (chromago.Collection, error) {
	return client.GetOrCreateCollection(ctx, name,
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("hnsw:space", MetricCosine),
			),
		),
	)
}

// chromaMetadata converts flat string metadata to chroma document metadata.
func chromaMetadata(metadata map[string]string) chromago.DocumentMetadata {
	attrs := make([]*chromago.MetaAttribute, 0, len(metadata))
	for k, v := range metadata {
		attrs = append(attrs, chromago.NewStringAttribute(k, v))
	}
	return chromago.NewDocumentMetadata(attrs...)
}

// decodeChromaMetadata converts chroma document metadata back to the flat
// string form. DocumentMetadata exposes no value accessor, so the supported
// conversion is a JSON round trip.
func decodeChromaMetadata(metadata chromago.DocumentMetadata) map[string]string {
	if metadata == nil {
		return nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil
	}
	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil
	}

	out := make(map[string]string, len(values))
	for k, v := range values {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			if val == float64(int64(val)) {
				out[k] = strconv.FormatInt(int64(val), 10)
			} else {
				out[k] = strconv.FormatFloat(val, 'f', -1, 64)
			}
		case bool:
			out[k] = strconv.FormatBool(val)
		}
	}
	return out
}

// chromaWhere builds an equality where clause from the filter map. Keys are
// sorted so the clause is deterministic.
func chromaWhere(filter map[string]string) chromago.WhereFilter {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]chromago.WhereFilter, 0, len(keys))
	for _, k := range keys {
		clauses = append(clauses, chromago.EqString(k, filter[k]))
	}
	if len(clauses) == 1 {
		return clauses[0]
	}
	return chromago.And(clauses...)
}

// isChromaNotFound detects the server's missing-collection error so drops
// stay idempotent.
func isChromaNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist")
}
