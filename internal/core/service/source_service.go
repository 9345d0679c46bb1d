package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/guillermoBallester/colprobe/internal/core/domain"
	"github.com/guillermoBallester/colprobe/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type toolNameKey struct{}

// WithToolName returns a context carrying the MCP tool name for audit logging.
func WithToolName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, toolNameKey{}, name)
}

func toolNameFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(toolNameKey{}).(string); ok {
		return v
	}
	return ""
}

// ErrSourceUnavailable is returned when a table is requested from a source
// that was not configured.
var ErrSourceUnavailable = fmt.Errorf("%w: table source not configured", domain.ErrConfiguration)

// SourceService loads tables from files and, when a database is configured,
// from validated SELECT statements.
type SourceService struct {
	validator port.QueryValidator
	files     port.TableLoader
	queries   port.QuerySource // nil = no database
	logger    *slog.Logger
	tracer    trace.Tracer
}

func NewSourceService(validator port.QueryValidator, files port.TableLoader, queries port.QuerySource, logger *slog.Logger, tracer trace.Tracer) *SourceService {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	return &SourceService{
		validator: validator,
		files:     files,
		queries:   queries,
		logger:    logger,
		tracer:    tracer,
	}
}

// HasQuerySource reports whether SQL sources can be loaded.
func (s *SourceService) HasQuerySource() bool {
	return s.queries != nil
}

// LoadFile reads a delimited file into a table.
func (s *SourceService) LoadFile(ctx context.Context, path string) (*domain.Table, error) {
	ctx, span := s.tracer.Start(ctx, "SourceService.LoadFile",
		trace.WithAttributes(
			attribute.String("colprobe.source", "csv"),
			attribute.String("file.path", path),
		),
	)
	defer span.End()

	if s.files == nil {
		span.SetStatus(codes.Error, ErrSourceUnavailable.Error())
		return nil, ErrSourceUnavailable
	}
	t, err := s.files.Load(ctx, path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	span.SetAttributes(attribute.Int("colprobe.rows", t.Rows()), attribute.Int("colprobe.columns", t.Width()))
	return t, nil
}

// LoadQuery validates sql and, if allowed, materializes its result set.
func (s *SourceService) LoadQuery(ctx context.Context, sql string) (*domain.Table, error) {
	ctx, span := s.tracer.Start(ctx, "SourceService.LoadQuery",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.statement", sql),
		),
	)
	defer span.End()

	if s.queries == nil {
		span.SetStatus(codes.Error, ErrSourceUnavailable.Error())
		return nil, ErrSourceUnavailable
	}
	if err := s.validator.Validate(sql); err != nil {
		s.logger.WarnContext(ctx, "source query rejected",
			slog.String("tool", toolNameFromCtx(ctx)),
			slog.String("db.statement", sql),
			slog.String("error.type", "validation_error"),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("validation: %w", err)
	}

	t, err := s.queries.Load(ctx, sql)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("db.response.rows", t.Rows()))
	return t, nil
}

// LoadTable reads a whole relation. schema may be empty.
func (s *SourceService) LoadTable(ctx context.Context, schema, table string) (*domain.Table, error) {
	ctx, span := s.tracer.Start(ctx, "SourceService.LoadTable",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.collection.name", table),
			attribute.String("db.namespace", schema),
		),
	)
	defer span.End()

	if s.queries == nil {
		span.SetStatus(codes.Error, ErrSourceUnavailable.Error())
		return nil, ErrSourceUnavailable
	}
	t, err := s.queries.LoadTable(ctx, schema, table)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("db.response.rows", t.Rows()))
	return t, nil
}
