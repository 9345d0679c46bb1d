package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const testSchema = `
	CREATE TABLE orders (
		id         SERIAL PRIMARY KEY,
		status     TEXT NOT NULL,
		amount     NUMERIC(10,2),
		qty        INTEGER,
		paid       BOOLEAN NOT NULL DEFAULT false,
		ref        UUID NOT NULL DEFAULT gen_random_uuid(),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	INSERT INTO orders (status, amount, qty, paid, created_at)
	SELECT
		CASE (i % 3) WHEN 0 THEN 'new' WHEN 1 THEN 'paid' ELSE 'shipped' END,
		(i * 1.25)::numeric(10,2),
		CASE WHEN i % 10 = 0 THEN NULL ELSE i END,
		i % 2 = 0,
		timestamptz '2024-01-01 00:00:00+00' + (i || ' hours')::interval
	FROM generate_series(1, 50) AS i;
`

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	_, err = pool.Exec(ctx, testSchema)
	require.NoError(t, err)

	return pool
}
