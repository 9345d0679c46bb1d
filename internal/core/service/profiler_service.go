package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/guillermoBallester/colprobe/internal/core/domain"
	"github.com/guillermoBallester/colprobe/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ProfilerDeps groups the collaborators of a TableProfiler. Nil fields fall
// back to no-op implementations.
type ProfilerDeps struct {
	Store       port.SchemaStore
	Persistence port.SnapshotPersistence
	Options     port.OptionsResolver
	Auditor     port.ScanAuditor
	Logger      *slog.Logger
	Tracer      trace.Tracer
	Inst        port.Instrumentation
}

// TableProfiler scans tables into snapshots and keeps them in a schema store.
type TableProfiler struct {
	store       port.SchemaStore
	persistence port.SnapshotPersistence
	options     port.OptionsResolver
	auditor     port.ScanAuditor
	logger      *slog.Logger
	tracer      trace.Tracer
	inst        port.Instrumentation
	settings    Settings
}

func NewTableProfiler(settings Settings, deps ProfilerDeps) *TableProfiler {
	p := &TableProfiler{
		store:       deps.Store,
		persistence: deps.Persistence,
		options:     deps.Options,
		auditor:     deps.Auditor,
		logger:      deps.Logger,
		tracer:      deps.Tracer,
		inst:        deps.Inst,
		settings:    settings,
	}
	if p.auditor == nil {
		p.auditor = port.NoopAuditor{}
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	if p.tracer == nil {
		p.tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if p.inst == nil {
		p.inst = port.NoopInstrumentation{}
	}
	return p
}

// Store exposes the underlying schema store.
func (p *TableProfiler) Store() port.SchemaStore {
	return p.store
}

// Restore replaces the store contents with the persisted document. A missing
// or unreadable document is logged and leaves the store empty.
func (p *TableProfiler) Restore(ctx context.Context) error {
	if p.persistence == nil {
		return nil
	}
	doc, err := p.persistence.Load(ctx)
	switch {
	case errors.Is(err, os.ErrNotExist):
		p.logger.InfoContext(ctx, "no persisted snapshots yet, starting empty")
	case errors.Is(err, domain.ErrMalformedState):
		p.logger.WarnContext(ctx, "persisted snapshots unreadable, starting empty",
			slog.String("error", err.Error()),
		)
	case err != nil:
		return fmt.Errorf("loading snapshots: %w", err)
	}
	p.store.Replace(doc)
	return nil
}

// Scan profiles t. Unless blankShot is set the snapshot is stored under
// name/version, version becomes the table's last version and the store is
// flushed to persistence.
func (p *TableProfiler) Scan(ctx context.Context, t *domain.Table, name, version string, blankShot bool) (*port.SchemaSnapshot, error) {
	scanID := uuid.NewString()
	ctx, span := p.tracer.Start(ctx, "TableProfiler.Scan",
		trace.WithAttributes(
			attribute.String("colprobe.scan_id", scanID),
			attribute.String("colprobe.table", name),
			attribute.String("colprobe.version", version),
			attribute.Bool("colprobe.blank_shot", blankShot),
		),
	)
	defer span.End()

	start := time.Now()
	snap, err := p.scan(ctx, t, name, version, blankShot)
	durationMS := time.Since(start).Milliseconds()

	p.inst.RecordScanDuration(ctx, float64(durationMS))

	entry := port.AuditEntry{
		ScanID:     scanID,
		Tool:       toolNameFromCtx(ctx),
		Table:      name,
		Version:    version,
		BlankShot:  blankShot,
		DurationMS: durationMS,
		Err:        err,
	}
	if t != nil {
		entry.Rows, entry.Columns = t.Rows(), t.Width()
	}
	p.auditor.Record(ctx, entry)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.inst.IncrementScanErrors(ctx)
		return nil, err
	}

	p.inst.IncrementScanCount(ctx)
	span.SetAttributes(
		attribute.Int("colprobe.rows", snap.Shape[0]),
		attribute.Int("colprobe.columns", snap.Shape[1]),
		attribute.Int("colprobe.warnings", len(snap.Warnings)),
	)
	return snap, nil
}

func (p *TableProfiler) scan(ctx context.Context, t *domain.Table, name, version string, blankShot bool) (*port.SchemaSnapshot, error) {
	if t == nil || t.Rows() == 0 {
		return nil, fmt.Errorf("%w: table has no rows", domain.ErrInvalidInput)
	}
	if !blankShot {
		if name == "" || version == "" {
			return nil, fmt.Errorf("%w: name and version are required", domain.ErrInvalidInput)
		}
		if version == port.LastVersionKey {
			return nil, fmt.Errorf("%w: %q is a reserved version label", domain.ErrInvalidInput, version)
		}
	}

	snap := &port.SchemaSnapshot{
		Dtypes:         make(map[string]domain.ElementType, t.Width()),
		Columns:        t.ColumnNames(),
		Shape:          t.Shape(),
		NumericStats:   make(map[string]domain.NumericSummary),
		UniqueTypes:    make(map[string][]string, t.Width()),
		BootstrapStats: make(map[string]domain.BootstrapResult),
	}

	for _, col := range t.Columns() {
		snap.Dtypes[col.Name] = col.Type
		types := uniqueTypes(col)
		snap.UniqueTypes[col.Name] = types
		if len(types) > 1 {
			p.logger.WarnContext(ctx, "not all values are of the same type",
				slog.String("table", name),
				slog.String("column", col.Name),
				slog.Any("types", types),
			)
			snap.Warnings = append(snap.Warnings, fmt.Sprintf("column %q mixes types %v", col.Name, types))
		}
	}

	if err := p.numericSections(ctx, t, name, snap); err != nil {
		return nil, err
	}

	schema, err := p.classify(t, name)
	if err != nil {
		p.logger.WarnContext(ctx, "classification skipped",
			slog.String("table", name),
			slog.String("error", err.Error()),
		)
		snap.Warnings = append(snap.Warnings, fmt.Sprintf("classification skipped: %v", err))
	} else {
		snap.Schema = schema
	}

	if blankShot {
		return snap, nil
	}
	if err := p.store.Put(name, version, snap); err != nil {
		return nil, err
	}
	p.flush(ctx)
	return snap, nil
}

// numericSections fills descriptive and bootstrap statistics for natively
// numeric columns.
func (p *TableProfiler) numericSections(ctx context.Context, t *domain.Table, name string, snap *port.SchemaSnapshot) error {
	var probe domain.NumericProbe
	for _, colName := range t.SelectColumns(domain.ElementType.IsNumeric) {
		col, _ := t.Column(colName)
		raw, err := probe.Coerce(col)
		if err != nil {
			return fmt.Errorf("coercing numeric column %q: %w", colName, err)
		}
		values := domain.FiniteValues(raw)
		if len(values) == 0 {
			p.logger.WarnContext(ctx, "numeric column has no finite values",
				slog.String("table", name),
				slog.String("column", colName),
			)
			snap.Warnings = append(snap.Warnings, fmt.Sprintf("column %q has no finite values", colName))
			continue
		}

		summary, err := domain.Describe(values)
		if errors.Is(err, domain.ErrOverflow) {
			p.skipOverflow(ctx, name, colName, snap, err)
			continue
		}
		if err != nil {
			return fmt.Errorf("describing column %q: %w", colName, err)
		}

		result, err := p.bootstrap(ctx, colName, values)
		if errors.Is(err, domain.ErrOverflow) {
			p.skipOverflow(ctx, name, colName, snap, err)
			continue
		}
		if err != nil {
			return fmt.Errorf("bootstrapping column %q: %w", colName, err)
		}
		snap.NumericStats[colName] = summary
		snap.BootstrapStats[colName] = result
	}
	return nil
}

// skipOverflow leaves a column whose statistics overflow out of the
// snapshot and records why.
func (p *TableProfiler) skipOverflow(ctx context.Context, table, column string, snap *port.SchemaSnapshot, err error) {
	p.logger.WarnContext(ctx, "numeric column statistics overflow",
		slog.String("table", table),
		slog.String("column", column),
		slog.String("error", err.Error()),
	)
	snap.Warnings = append(snap.Warnings, fmt.Sprintf("column %q statistics overflow float64", column))
}

func (p *TableProfiler) bootstrap(ctx context.Context, column string, values []float64) (domain.BootstrapResult, error) {
	engine := p.settings.bootstrapper(column)
	start := time.Now()
	defer func() {
		p.inst.RecordBootstrapDuration(ctx, float64(time.Since(start).Milliseconds()))
	}()
	if p.settings.Workers > 1 {
		return engine.RunParallel(ctx, values)
	}
	return engine.Run(values)
}

func (p *TableProfiler) classify(t *domain.Table, name string) (*domain.Schema, error) {
	var opts port.TableOptions
	if p.options != nil {
		opts = p.options.Resolve(name)
	}
	// Drop lists come from policy written for the full table; ignore names
	// the scanned table does not carry.
	drop := slices.DeleteFunc(slices.Clone(opts.Drop), func(c string) bool { return !t.Has(c) })
	return p.settings.classifier(opts).Classify(t, drop)
}

func (p *TableProfiler) flush(ctx context.Context) {
	if p.persistence == nil {
		return
	}
	if err := p.persistence.Save(ctx, p.store.Document()); err != nil {
		p.logger.WarnContext(ctx, "persisting snapshots failed",
			slog.String("error", err.Error()),
		)
	}
}

// uniqueTypes lists the runtime type names of a column's cells in
// first-seen order. Missing cells of float columns count as floats.
func uniqueTypes(col domain.Column) []string {
	out := []string{}
	for _, v := range col.Values {
		name := domain.RuntimeTypeName(v)
		if v == nil && col.Type == domain.TypeFloat {
			name = "float"
		}
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}
