// Package testutil provides shared test infrastructure.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/docloom/docloom/db"
	"github.com/docloom/docloom/internal/database"
)

// postgresImage bundles the pgvector extension.
const postgresImage = "pgvector/pgvector:pg17"

// StartPostgres launches a disposable PostgreSQL container with pgvector,
// applies migrations, and returns a connected pool. The test is skipped
// when no container runtime is available. Cleanup is registered on t.
func StartPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, postgresImage,
		tcpostgres.WithDatabase("docloom_test"),
		tcpostgres.WithUsername("docloom"),
		tcpostgres.WithPassword("docloom"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("starting postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("terminating postgres container: %v", err)
		}
	})

	connURL, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}

	if err := db.Migrate(connURL); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}

	pool, err := database.Open(ctx, connURL)
	if err != nil {
		t.Fatalf("opening pool: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}
