package port

import (
	"context"

	"github.com/guillermoBallester/colprobe/internal/core/domain"
)

// TableLoader materializes a table from an adapter-specific location: a
// file path for the CSV source, a SELECT statement for Postgres.
type TableLoader interface {
	Load(ctx context.Context, location string) (*domain.Table, error)
}

// QuerySource loads tables from a database, either from a validated SELECT
// or from a whole relation.
type QuerySource interface {
	TableLoader
	LoadTable(ctx context.Context, schema, table string) (*domain.Table, error)
}
