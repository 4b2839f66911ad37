package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/lorebase/lorebase/db"
)

// tablePrefix namespaces chunk tables so one database can hold unrelated
// schemas. Collection names are validated to keep the combined identifier
// under Postgres's 63-byte limit.
const tablePrefix = "lorebase_"

// Postgres is a Provider backed by PostgreSQL with the pgvector extension.
// Connect runs the embedded schema migrations; chunk tables are created per
// collection because the vector dimension is runtime configuration.
type Postgres struct {
	cfg    Config
	logger *slog.Logger

	mu   sync.Mutex
	pool *pgxpool.Pool
}

var _ Provider = (*Postgres)(nil)

// NewPostgres creates a pgvector-backed provider. No connection is made until
// Connect.
func NewPostgres(cfg Config, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	cfg.Provider = "pgvector"
	cfg.DistanceMetric = MetricCosine
	return &Postgres{cfg: cfg, logger: logger}
}

// Connect opens the connection pool, verifies the server is reachable, and
// applies pending schema migrations. Idempotent.
func (p *Postgres) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pool != nil {
		return nil
	}

	connURL, err := p.connURL()
	if err != nil {
		return err
	}

	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return fmt.Errorf("%w: creating pool: %v", ErrConnection, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	if err := db.Migrate(connURL); err != nil {
		pool.Close()
		return fmt.Errorf("running migrations: %w", err)
	}

	p.pool = pool
	p.logger.Debug("pgvector store connected",
		"collection", p.cfg.Collection,
		"dimension", p.cfg.Dimension,
	)
	return nil
}

// Close releases the connection pool. Safe to call repeatedly or before
// Connect.
func (p *Postgres) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pool != nil {
		p.pool.Close()
		p.pool = nil
	}
	return nil
}

// CreateCollection registers the collection and creates its chunk table with
// the configured dimension, plus ivfflat and GIN indexes. Idempotent.
func (p *Postgres) CreateCollection(ctx context.Context, name string) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	pool, err := p.active()
	if err != nil {
		return err
	}

	const register = `
		INSERT INTO lorebase_collections (name, dimension)
		VALUES ($1, $2)
		ON CONFLICT (name) DO NOTHING`
	if _, err := pool.Exec(ctx, register, name, p.cfg.Dimension); err != nil {
		return fmt.Errorf("registering collection %q: %w", name, err)
	}

	table := tablePrefix + name
	ddl := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id         TEXT PRIMARY KEY,
			content    TEXT NOT NULL,
			embedding  vector(%d) NOT NULL,
			metadata   JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, table, p.cfg.Dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx
			ON %s USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`, table, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_metadata_idx
			ON %s USING gin (metadata)`, table, table),
	}
	for _, stmt := range ddl {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("creating collection %q: %w", name, err)
		}
	}
	return nil
}

// DropCollection drops the chunk table and unregisters the collection.
// Idempotent.
func (p *Postgres) DropCollection(ctx context.Context, name string) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	pool, err := p.active()
	if err != nil {
		return err
	}

	if _, err := pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, tablePrefix+name)); err != nil {
		return fmt.Errorf("dropping collection %q: %w", name, err)
	}
	if _, err := pool.Exec(ctx, `DELETE FROM lorebase_collections WHERE name = $1`, name); err != nil {
		return fmt.Errorf("unregistering collection %q: %w", name, err)
	}
	return nil
}

// Upsert writes records to the active collection in a single batch.
func (p *Postgres) Upsert(ctx context.Context, records []Record) error {
	if err := validateRecords(records, p.cfg.Dimension); err != nil {
		return err
	}
	pool, err := p.active()
	if err != nil {
		return err
	}

	upsert := fmt.Sprintf(`
		INSERT INTO %s (id, content, embedding, metadata)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			content   = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata  = EXCLUDED.metadata`, p.table())

	batch := &pgx.Batch{}
	for _, rec := range records {
		metadata, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata for %q: %w", rec.ID, err)
		}
		batch.Queue(upsert, rec.ID, rec.Content, pgvector.NewVector(rec.Embedding), metadata)
	}

	results := pool.SendBatch(ctx, batch)
	defer func() {
		if err := results.Close(); err != nil {
			p.logger.Warn("closing upsert batch", "error", err)
		}
	}()
	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upserting records: %w", err)
		}
	}
	return nil
}

// Delete removes records by ID. IDs that do not exist are silently skipped.
func (p *Postgres) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pool, err := p.active()
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, p.table())
	if _, err := pool.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("deleting records: %w", err)
	}
	return nil
}

// Search runs a cosine-distance query against the active collection.
// Similarity is 1 - cosine distance; ties are broken by (created_at, id) so
// the order is stable across identical queries.
func (p *Postgres) Search(ctx context.Context, embedding []float32, params SearchParams) ([]Match, error) {
	if len(embedding) != p.cfg.Dimension {
		return nil, fmt.Errorf("query has dimension %d, want %d: %w",
			len(embedding), p.cfg.Dimension, ErrDimensionMismatch)
	}
	params = params.withDefaults()
	pool, err := p.active()
	if err != nil {
		return nil, err
	}

	vec := pgvector.NewVector(embedding)
	var rows pgx.Rows
	if len(params.Filter) > 0 {
		filter, err := json.Marshal(params.Filter)
		if err != nil {
			return nil, fmt.Errorf("marshaling filter: %w", err)
		}
		query := fmt.Sprintf(`
			SELECT id, content, metadata, 1 - (embedding <=> $1) AS similarity
			FROM %s
			WHERE metadata @> $2
			ORDER BY embedding <=> $1, created_at, id
			LIMIT $3`, p.table())
		rows, err = pool.Query(ctx, query, vec, filter, params.TopK)
		if err != nil {
			return nil, fmt.Errorf("searching with filter: %w", err)
		}
	} else {
		query := fmt.Sprintf(`
			SELECT id, content, metadata, 1 - (embedding <=> $1) AS similarity
			FROM %s
			ORDER BY embedding <=> $1, created_at, id
			LIMIT $2`, p.table())
		rows, err = pool.Query(ctx, query, vec, params.TopK)
		if err != nil {
			return nil, fmt.Errorf("searching: %w", err)
		}
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			match        Match
			metadataJSON []byte
			similarity   float64
		)
		if err := rows.Scan(&match.ID, &match.Content, &metadataJSON, &similarity); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &match.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshaling metadata for %q: %w", match.ID, err)
			}
		}
		match.Similarity = float32(similarity)
		matches = append(matches, match)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading matches: %w", err)
	}
	return matches, nil
}

// Stats counts records in the active collection. A collection that was never
// created reports zero documents.
func (p *Postgres) Stats(ctx context.Context) (Stats, error) {
	pool, err := p.active()
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		Provider:       "pgvector",
		Collection:     p.cfg.Collection,
		Dimension:      p.cfg.Dimension,
		DistanceMetric: MetricCosine,
	}

	var exists bool
	const tableCheck = `SELECT EXISTS (SELECT 1 FROM pg_tables WHERE tablename = $1)`
	if err := pool.QueryRow(ctx, tableCheck, p.table()).Scan(&exists); err != nil {
		return Stats{}, fmt.Errorf("checking collection table: %w", err)
	}
	if !exists {
		return stats, nil
	}

	if err := pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, p.table())).Scan(&stats.Documents); err != nil {
		return Stats{}, fmt.Errorf("counting documents: %w", err)
	}
	return stats, nil
}

// active returns the pool or ErrNotConnected.
func (p *Postgres) active() (*pgxpool.Pool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pool == nil {
		return nil, ErrNotConnected
	}
	return p.pool, nil
}

// table is the chunk table for the active collection.
func (p *Postgres) table() string {
	return tablePrefix + p.cfg.Collection
}

// connURL returns the configured URL, or composes one from the component
// fields when no URL is set.
func (p *Postgres) connURL() (string, error) {
	if p.cfg.URL != "" {
		return p.cfg.URL, nil
	}
	if p.cfg.Host == "" || p.cfg.Database == "" {
		return "", fmt.Errorf("%w: postgres host and database are required", ErrConnection)
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   p.cfg.Host + ":" + strconv.Itoa(p.cfg.Port),
		Path:   "/" + p.cfg.Database,
	}
	if p.cfg.User != "" {
		u.User = url.UserPassword(p.cfg.User, p.cfg.Password)
	}
	return u.String(), nil
}
