package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/guillermoBallester/colprobe/internal/adapter/store"
	"github.com/guillermoBallester/colprobe/internal/core/domain"
	"github.com/guillermoBallester/colprobe/internal/core/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProfiler(settings Settings, persistence port.SnapshotPersistence, auditor port.ScanAuditor) *TableProfiler {
	return NewTableProfiler(settings, ProfilerDeps{
		Store:       store.NewMemoryStore(),
		Persistence: persistence,
		Auditor:     auditor,
		Logger:      testLogger(),
	})
}

func TestTableProfiler_ScanStoresAndFlushes(t *testing.T) {
	t.Parallel()
	persist := &memoryPersistence{}
	p := newTestProfiler(seededSettings(7), persist, nil)

	snap, err := p.Scan(context.Background(), ordersTable(t, amounts(40, 1.5)...), "orders", "v1", false)
	require.NoError(t, err)

	assert.Equal(t, [2]int{40, 5}, snap.Shape)
	assert.Equal(t, []string{"order_id", "amount", "status", "day", "note"}, snap.Columns)
	assert.Equal(t, domain.TypeFloat, snap.Dtypes["amount"])
	assert.Equal(t, domain.TypeObject, snap.Dtypes["status"])
	assert.Equal(t, []string{"str"}, snap.UniqueTypes["status"])
	assert.Equal(t, []string{"int"}, snap.UniqueTypes["order_id"])

	assert.Len(t, snap.NumericStats, 2)
	assert.Contains(t, snap.NumericStats, "amount")
	assert.Contains(t, snap.NumericStats, "order_id")
	assert.Equal(t, 40.0, snap.NumericStats["amount"].Count)
	assert.Len(t, snap.BootstrapStats, 2)
	ci := snap.BootstrapStats["amount"].MeanValueCI
	assert.LessOrEqual(t, ci[0], ci[1])

	require.NotNil(t, snap.Schema)
	assert.Equal(t, []string{"order_id"}, snap.Schema.ID)
	assert.Equal(t, []string{"amount"}, snap.Schema.Numeric)
	assert.Equal(t, []string{"day"}, snap.Schema.Datetime)
	assert.Equal(t, []string{"status"}, snap.Schema.Category)
	assert.Equal(t, []string{"note"}, snap.Schema.Object)
	assert.Empty(t, snap.Warnings)

	version, stored, err := p.Store().Latest("orders")
	require.NoError(t, err)
	assert.Equal(t, "v1", version)
	assert.Equal(t, snap.Shape, stored.Shape)

	assert.Equal(t, 1, persist.saves)
	require.Contains(t, persist.doc, "orders")
	assert.Equal(t, "v1", persist.doc["orders"].LastVersion)
}

func TestTableProfiler_OverflowingColumnIsSkipped(t *testing.T) {
	t.Parallel()
	persist := &memoryPersistence{}
	p := newTestProfiler(seededSettings(3), persist, nil)

	tbl, err := domain.NewTable(
		domain.Column{Name: "x", Type: domain.TypeFloat, Values: []any{1e200, -1e200, 3.0}},
		domain.Column{Name: "y", Type: domain.TypeFloat, Values: []any{1.0, 2.0, 4.0}},
	)
	require.NoError(t, err)

	snap, err := p.Scan(context.Background(), tbl, "wide", "v1", false)
	require.NoError(t, err)
	assert.NotContains(t, snap.NumericStats, "x")
	assert.NotContains(t, snap.BootstrapStats, "x")
	assert.Contains(t, snap.NumericStats, "y")
	require.Len(t, snap.Warnings, 1)
	assert.Contains(t, snap.Warnings[0], `"x"`)

	_, err = json.Marshal(snap)
	require.NoError(t, err)
	assert.Equal(t, 1, persist.saves)
	require.Contains(t, persist.doc, "wide")
}

func TestTableProfiler_SecondVersionMovesPointer(t *testing.T) {
	t.Parallel()
	p := newTestProfiler(seededSettings(7), nil, nil)
	ctx := context.Background()

	_, err := p.Scan(ctx, ordersTable(t, amounts(20, 1)...), "orders", "v1", false)
	require.NoError(t, err)
	_, err = p.Scan(ctx, ordersTable(t, amounts(30, 1)...), "orders", "v2", false)
	require.NoError(t, err)

	version, snap, err := p.Store().Latest("orders")
	require.NoError(t, err)
	assert.Equal(t, "v2", version)
	assert.Equal(t, 30, snap.Shape[0])
	assert.Equal(t, []string{"v1", "v2"}, p.Store().Versions("orders"))
}

func TestTableProfiler_BlankShotDoesNotStore(t *testing.T) {
	t.Parallel()
	persist := &memoryPersistence{}
	p := newTestProfiler(seededSettings(1), persist, nil)

	snap, err := p.Scan(context.Background(), ordersTable(t, amounts(10, 1)...), "", "", true)
	require.NoError(t, err)
	assert.NotNil(t, snap)
	assert.Empty(t, p.Store().Tables())
	assert.Equal(t, 0, persist.saves)
}

func TestTableProfiler_ScanErrors(t *testing.T) {
	t.Parallel()

	empty, err := domain.NewTable(domain.Column{Name: "a", Type: domain.TypeInt, Values: []any{}})
	require.NoError(t, err)
	full := ordersTable(t, 1, 2, 3)

	tests := []struct {
		name    string
		table   *domain.Table
		tblName string
		version string
		blank   bool
	}{
		{name: "nil table", table: nil, tblName: "orders", version: "v1"},
		{name: "zero rows", table: empty, tblName: "orders", version: "v1"},
		{name: "zero rows blank shot", table: empty, blank: true},
		{name: "missing name", table: full, version: "v1"},
		{name: "missing version", table: full, tblName: "orders"},
		{name: "reserved version", table: full, tblName: "orders", version: port.LastVersionKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := newTestProfiler(seededSettings(1), nil, nil)
			_, err := p.Scan(context.Background(), tt.table, tt.tblName, tt.version, tt.blank)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
			assert.Empty(t, p.Store().Tables())
		})
	}
}

func TestTableProfiler_SeededScansAreDeterministic(t *testing.T) {
	t.Parallel()
	tbl := ordersTable(t, amounts(50, 2.5)...)

	a, err := newTestProfiler(seededSettings(99), nil, nil).Scan(context.Background(), tbl, "", "", true)
	require.NoError(t, err)
	b, err := newTestProfiler(seededSettings(99), nil, nil).Scan(context.Background(), tbl, "", "", true)
	require.NoError(t, err)
	assert.Equal(t, a.BootstrapStats, b.BootstrapStats)

	// Columns draw from distinct streams.
	assert.NotEqual(t, columnSeed(99, "amount"), columnSeed(99, "order_id"))
}

func TestTableProfiler_ParallelWorkers(t *testing.T) {
	t.Parallel()
	settings := seededSettings(3)
	settings.Workers = 4
	snap, err := newTestProfiler(settings, nil, nil).Scan(context.Background(), ordersTable(t, amounts(30, 1)...), "", "", true)
	require.NoError(t, err)
	assert.Len(t, snap.BootstrapStats, 2)
}

func TestTableProfiler_TypeWarnings(t *testing.T) {
	t.Parallel()
	tbl, err := domain.NewTable(
		domain.Column{Name: "mixed", Type: domain.TypeObject, Values: []any{int64(1), "a", nil}},
		domain.Column{Name: "gappy", Type: domain.TypeFloat, Values: []any{1.5, nil, 2.5}},
		domain.Column{Name: "void", Type: domain.TypeFloat, Values: []any{nil, math.NaN(), nil}},
	)
	require.NoError(t, err)

	snap, err := newTestProfiler(seededSettings(1), nil, nil).Scan(context.Background(), tbl, "", "", true)
	require.NoError(t, err)

	assert.Equal(t, []string{"int", "str", "null"}, snap.UniqueTypes["mixed"])
	assert.Equal(t, []string{"float"}, snap.UniqueTypes["gappy"])
	assert.Contains(t, snap.NumericStats, "gappy")
	assert.Equal(t, 2.0, snap.NumericStats["gappy"].Count)
	assert.NotContains(t, snap.NumericStats, "void")
	assert.NotContains(t, snap.BootstrapStats, "void")
	assert.Len(t, snap.Warnings, 2)
}

func TestTableProfiler_Audit(t *testing.T) {
	t.Parallel()
	auditor := &recordingAuditor{}
	p := newTestProfiler(seededSettings(1), nil, auditor)
	ctx := WithToolName(context.Background(), "scan_table")

	_, err := p.Scan(ctx, ordersTable(t, 1, 2, 3), "orders", "v1", false)
	require.NoError(t, err)
	_, err = p.Scan(ctx, ordersTable(t, 1, 2, 3), "orders", "", false)
	require.Error(t, err)

	require.Len(t, auditor.entries, 2)
	ok := auditor.entries[0]
	_, parseErr := uuid.Parse(ok.ScanID)
	assert.NoError(t, parseErr)
	assert.Equal(t, "scan_table", ok.Tool)
	assert.Equal(t, "orders", ok.Table)
	assert.Equal(t, "v1", ok.Version)
	assert.Equal(t, 3, ok.Rows)
	assert.Equal(t, 5, ok.Columns)
	assert.NoError(t, ok.Err)

	failed := auditor.entries[1]
	assert.NotEqual(t, ok.ScanID, failed.ScanID)
	assert.ErrorIs(t, failed.Err, domain.ErrInvalidInput)
}

func TestTableProfiler_PersistenceFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	persist := &memoryPersistence{saveErr: fmt.Errorf("disk full")}
	p := newTestProfiler(seededSettings(1), persist, nil)

	_, err := p.Scan(context.Background(), ordersTable(t, 1, 2, 3), "orders", "v1", false)
	require.NoError(t, err)
	assert.Equal(t, 1, persist.saves)
	assert.Equal(t, []string{"orders"}, p.Store().Tables())
}

func TestTableProfiler_PolicyDrop(t *testing.T) {
	t.Parallel()
	p := NewTableProfiler(seededSettings(1), ProfilerDeps{
		Store:   store.NewMemoryStore(),
		Options: staticOptions{"orders": {Drop: []string{"note", "not_a_column"}}},
		Logger:  testLogger(),
	})

	snap, err := p.Scan(context.Background(), ordersTable(t, amounts(20, 1)...), "orders", "v1", false)
	require.NoError(t, err)
	require.NotNil(t, snap.Schema)
	assert.Equal(t, []string{"note"}, snap.Schema.NotUsed)
	assert.Empty(t, snap.Schema.Object)
}

func TestTableProfiler_Restore(t *testing.T) {
	t.Parallel()

	seed := newTestProfiler(seededSettings(1), &memoryPersistence{}, nil)
	_, err := seed.Scan(context.Background(), ordersTable(t, 1, 2, 3), "orders", "v1", false)
	require.NoError(t, err)
	doc := seed.Store().Document()

	tests := []struct {
		name       string
		persist    *memoryPersistence
		wantErr    bool
		wantTables []string
	}{
		{name: "document", persist: &memoryPersistence{doc: doc}, wantTables: []string{"orders"}},
		{name: "missing file", persist: &memoryPersistence{loadErr: fmt.Errorf("open: %w", os.ErrNotExist)}, wantTables: []string{}},
		{name: "corrupt file", persist: &memoryPersistence{loadErr: fmt.Errorf("%w: bad json", domain.ErrMalformedState)}, wantTables: []string{}},
		{name: "backend down", persist: &memoryPersistence{loadErr: errors.New("connection refused")}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := newTestProfiler(seededSettings(1), tt.persist, nil)
			err := p.Restore(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.wantTables, p.Store().Tables())
		})
	}
}
