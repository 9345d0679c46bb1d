package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/guillermoBallester/colprobe/internal/core/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SourceLoader materializes the result of a SELECT as a table. Queries run
// in a read-only transaction with a row cap and a server-side timeout.
type SourceLoader struct {
	pool         *pgxpool.Pool
	maxRows      int
	queryTimeout time.Duration
}

func NewSourceLoader(pool *pgxpool.Pool, maxRows int, queryTimeout time.Duration) *SourceLoader {
	return &SourceLoader{
		pool:         pool,
		maxRows:      maxRows,
		queryTimeout: queryTimeout,
	}
}

// Load runs sql and converts the rows. sql must already be validated.
func (l *SourceLoader) Load(ctx context.Context, sql string) (*domain.Table, error) {
	ctx, cancel := context.WithTimeout(ctx, l.queryTimeout)
	defer cancel()

	wrappedSQL := fmt.Sprintf(querySourceWrap, sql, l.maxRows)

	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// SET LOCAL scopes the timeout to this transaction so PostgreSQL cancels
	// the query server-side even if the client goes away.
	timeoutMS := l.queryTimeout.Milliseconds()
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%d'", timeoutMS)); err != nil {
		return nil, fmt.Errorf("setting statement timeout: %w", err)
	}

	rows, err := tx.Query(ctx, wrappedSQL)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	table, err := rowsToTable(rows)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return table, nil
}

// LoadTable reads a whole relation, capped at the loader's row limit.
func (l *SourceLoader) LoadTable(ctx context.Context, schema, table string) (*domain.Table, error) {
	if table == "" {
		return nil, fmt.Errorf("%w: table name is required", domain.ErrInvalidInput)
	}
	return l.Load(ctx, TableQuery(schema, table))
}
