package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/guillermoBallester/colprobe/internal/core/domain"
	"github.com/guillermoBallester/colprobe/internal/core/port"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SnapshotRepository persists the store document in two tables: one jsonb
// row per (table, version) and one last_version row per table.
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

// NewSnapshotRepository creates the backing tables when they are missing.
func NewSnapshotRepository(ctx context.Context, pool *pgxpool.Pool) (*SnapshotRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("snapshot repository: pool is required")
	}
	if _, err := pool.Exec(ctx, ddlSnapshotTables); err != nil {
		return nil, fmt.Errorf("creating snapshot tables: %w", err)
	}
	return &SnapshotRepository{pool: pool}, nil
}

func (r *SnapshotRepository) Load(ctx context.Context) (port.Document, error) {
	doc := port.Document{}

	rows, err := r.pool.Query(ctx, querySelectSnapshots)
	if err != nil {
		return port.Document{}, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			table, version string
			raw            []byte
		)
		if err := rows.Scan(&table, &version, &raw); err != nil {
			return port.Document{}, fmt.Errorf("scanning snapshot: %w", err)
		}
		var snap port.SchemaSnapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return port.Document{}, fmt.Errorf("%w: snapshot %s/%s: %w", domain.ErrMalformedState, table, version, err)
		}
		entry, ok := doc[table]
		if !ok {
			entry = port.NewStoreEntry()
			doc[table] = entry
		}
		entry.Versions[version] = &snap
	}
	if err := rows.Err(); err != nil {
		return port.Document{}, fmt.Errorf("iterating snapshots: %w", err)
	}

	lastRows, err := r.pool.Query(ctx, querySelectLastVersions)
	if err != nil {
		return port.Document{}, fmt.Errorf("querying last versions: %w", err)
	}
	defer lastRows.Close()

	for lastRows.Next() {
		var table, last string
		if err := lastRows.Scan(&table, &last); err != nil {
			return port.Document{}, fmt.Errorf("scanning last version: %w", err)
		}
		if entry, ok := doc[table]; ok {
			entry.LastVersion = last
		}
	}
	if err := lastRows.Err(); err != nil {
		return port.Document{}, fmt.Errorf("iterating last versions: %w", err)
	}

	return doc, nil
}

// Save upserts every snapshot and last_version pointer in one transaction.
// Rows absent from doc are left in place.
func (r *SnapshotRepository) Save(ctx context.Context, doc port.Document) error {
	batch := &pgx.Batch{}
	for table, entry := range doc {
		if entry == nil {
			continue
		}
		for version, snap := range entry.Versions {
			raw, err := json.Marshal(snap)
			if err != nil {
				return fmt.Errorf("encoding snapshot %s/%s: %w", table, version, err)
			}
			batch.Queue(queryUpsertSnapshot, table, version, raw)
		}
		if entry.LastVersion != "" {
			batch.Queue(queryUpsertLastVersion, table, entry.LastVersion)
		}
	}
	if batch.Len() == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("saving snapshots: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
