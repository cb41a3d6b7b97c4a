package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/mealwave/delivery-api/internal/adapters/postgres"
	pgidempotency "github.com/mealwave/delivery-api/internal/adapters/postgres/idempotency"
	pgorderrepo "github.com/mealwave/delivery-api/internal/adapters/postgres/orderrepo"
)

// OpenMigratedPool connects to TEST_DATABASE_URL, applies the schema,
// and returns a pool scoped to the test. Tests are skipped when the env
// var is unset so the suite stays runnable without infrastructure.
func OpenMigratedPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping postgres-backed tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, dsn, postgres.PoolOptions{MaxConns: 4})
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	for _, schema := range []string{pgidempotency.Schema, pgorderrepo.Schema} {
		if _, err := pool.Exec(ctx, schema); err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	if _, err := pool.Exec(ctx, `TRUNCATE idempotency_keys, orders`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return pool
}
