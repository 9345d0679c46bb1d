package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/guillermoBallester/colprobe/internal/core/domain"
	"github.com/guillermoBallester/colprobe/internal/core/port"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seededSettings(seed uint64) Settings {
	s := DefaultSettings()
	s.Resamples = 200
	s.Seed = &seed
	return s
}

// ordersTable is a small table with one column per classifier category.
func ordersTable(t *testing.T, amounts ...float64) *domain.Table {
	t.Helper()
	n := len(amounts)
	ids := make([]any, n)
	amt := make([]any, n)
	status := make([]any, n)
	days := make([]any, n)
	notes := make([]any, n)
	for i := range n {
		ids[i] = int64(i + 1)
		amt[i] = amounts[i]
		status[i] = []string{"open", "closed"}[i%2]
		days[i] = fmt.Sprintf("2024-01-%02d", i%28+1)
		notes[i] = fmt.Sprintf("note %d", i)
	}
	tbl, err := domain.NewTable(
		domain.Column{Name: "order_id", Type: domain.TypeInt, Values: ids},
		domain.Column{Name: "amount", Type: domain.TypeFloat, Values: amt},
		domain.Column{Name: "status", Type: domain.TypeObject, Values: status},
		domain.Column{Name: "day", Type: domain.TypeObject, Values: days},
		domain.Column{Name: "note", Type: domain.TypeObject, Values: notes},
	)
	require.NoError(t, err)
	return tbl
}

func amounts(n int, scale float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = scale * float64((i*37)%23+1)
	}
	return out
}

// --- mock collaborators ---

type recordingAuditor struct {
	mu      sync.Mutex
	entries []port.AuditEntry
}

func (a *recordingAuditor) Record(_ context.Context, e port.AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *recordingAuditor) Close() error { return nil }

type memoryPersistence struct {
	mu      sync.Mutex
	doc     port.Document
	loadErr error
	saveErr error
	saves   int
}

func (p *memoryPersistence) Load(context.Context) (port.Document, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc == nil {
		return port.Document{}, p.loadErr
	}
	return p.doc, p.loadErr
}

func (p *memoryPersistence) Save(_ context.Context, doc port.Document) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saves++
	if p.saveErr != nil {
		return p.saveErr
	}
	p.doc = doc
	return nil
}

type staticOptions map[string]port.TableOptions

func (o staticOptions) Resolve(table string) port.TableOptions {
	return o[table]
}
