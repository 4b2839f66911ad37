// Package testutil provides shared testing infrastructure for the lorebase
// project, following the pattern of standard library packages like
// net/http/httptest.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a disposable PostgreSQL instance with the pgvector
// extension available. Schema migrations are not applied here; the store's
// Connect does that, so tests exercise the same startup path as production.
type PostgresContainer struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	URL       string
}

// SetupTestDB starts a pgvector-enabled PostgreSQL container and opens a
// connection pool for direct assertions. The container and pool are
// terminated via t.Cleanup.
//
// Usage:
//
//	db := testutil.SetupTestDB(t)
//	store := vectorstore.NewPostgres(vectorstore.Config{URL: db.URL, ...}, logger)
func SetupTestDB(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("lorebase_test"),
		postgres.WithUsername("lorebase_test"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("starting PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(context.Background()); err != nil {
			t.Logf("terminating PostgreSQL container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("creating connection pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("pinging database: %v", err)
	}

	return &PostgresContainer{
		Container: pgContainer,
		Pool:      pool,
		URL:       connStr,
	}
}
