package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/guillermoBallester/colprobe/internal/core/domain"
	"github.com/guillermoBallester/colprobe/internal/core/port"
)

// DataMatcher compares fresh data against the last stored snapshot of a
// table.
type DataMatcher struct {
	profiler *TableProfiler
	options  port.OptionsResolver
	logger   *slog.Logger
}

func NewDataMatcher(profiler *TableProfiler, options port.OptionsResolver, logger *slog.Logger) *DataMatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DataMatcher{profiler: profiler, options: options, logger: logger}
}

// MatchRequest names one table to check, with an optional column projection.
type MatchRequest struct {
	Name    string
	Table   *domain.Table
	Columns []string
}

// Match blank-shot scans t (projected onto columns when given) and compares
// it with the table's last stored snapshot. When categories is empty every
// section present in either snapshot is compared.
func (m *DataMatcher) Match(ctx context.Context, name string, t *domain.Table, columns, categories []string) (*port.DriftReport, error) {
	var opts port.TableOptions
	if m.options != nil {
		opts = m.options.Resolve(name)
	}
	if len(columns) == 0 {
		columns = opts.Columns
	}
	if len(categories) == 0 {
		categories = opts.Compare
	}
	for _, c := range categories {
		if !slices.Contains(port.Sections, c) {
			return nil, fmt.Errorf("%w: unknown comparison category %q", domain.ErrInvalidInput, c)
		}
	}

	version, stored, err := m.profiler.Store().Latest(name)
	if err != nil {
		return nil, fmt.Errorf("loading last version of %q: %w", name, err)
	}

	if t != nil && len(columns) > 0 {
		if t, err = t.Project(columns...); err != nil {
			return nil, err
		}
	}
	fresh, err := m.profiler.Scan(ctx, t, name, "", true)
	if err != nil {
		return nil, err
	}

	mismatched, compared, err := compareSnapshots(stored, fresh, categories)
	if err != nil {
		return nil, err
	}
	report := &port.DriftReport{
		Table:      name,
		Version:    version,
		Match:      len(mismatched) == 0,
		Compared:   compared,
		Mismatched: mismatched,
		Warnings:   fresh.Warnings,
	}
	if !report.Match {
		m.logger.InfoContext(ctx, "drift detected",
			slog.String("table", name),
			slog.String("version", version),
			slog.Any("sections", mismatched),
		)
	}
	return report, nil
}

// MatchAll runs Match for every request in order and stops at the first
// error.
func (m *DataMatcher) MatchAll(ctx context.Context, requests []MatchRequest, categories []string) (map[string]*port.DriftReport, error) {
	out := make(map[string]*port.DriftReport, len(requests))
	for _, req := range requests {
		report, err := m.Match(ctx, req.Name, req.Table, req.Columns, categories)
		if err != nil {
			return nil, fmt.Errorf("matching %q: %w", req.Name, err)
		}
		out[req.Name] = report
	}
	return out, nil
}

// compareSnapshots compares sections as canonical JSON. A section present in
// only one snapshot counts as a mismatch.
func compareSnapshots(stored, fresh *port.SchemaSnapshot, categories []string) (mismatched, compared []string, err error) {
	want, err := stored.Sections()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: stored snapshot: %w", domain.ErrMalformedState, err)
	}
	got, err := fresh.Sections()
	if err != nil {
		return nil, nil, fmt.Errorf("encoding fresh snapshot: %w", err)
	}

	compared = categories
	if len(compared) == 0 {
		for _, section := range port.Sections {
			_, inWant := want[section]
			_, inGot := got[section]
			if inWant || inGot {
				compared = append(compared, section)
			}
		}
	}

	mismatched = []string{}
	for _, section := range compared {
		a, okA := want[section]
		b, okB := got[section]
		if okA != okB || !bytes.Equal(a, b) {
			mismatched = append(mismatched, section)
		}
	}
	return mismatched, slices.Clone(compared), nil
}
