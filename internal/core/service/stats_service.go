package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/guillermoBallester/colprobe/internal/core/domain"
	"github.com/guillermoBallester/colprobe/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// BootstrapParams override the service defaults for one call. Zero values
// keep the defaults.
type BootstrapParams struct {
	Resamples       int
	ConfidenceLevel float64
	Workers         int
	Seed            *uint64
}

// FitOutcome is the result of fitting one column.
type FitOutcome struct {
	Key     string            `json:"key"`
	Best    domain.FitResult  `json:"best"`
	Summary []domain.FitScore `json:"summary"`
	Samples int               `json:"n_values"`
}

// StatsService runs bootstrap and distribution fits on single columns and
// keeps fitted distributions for sampling.
type StatsService struct {
	settings Settings
	logger   *slog.Logger
	tracer   trace.Tracer
	inst     port.Instrumentation

	mu   sync.RWMutex
	fits map[string]*domain.DistributionFitter
}

func NewStatsService(settings Settings, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *StatsService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	return &StatsService{
		settings: settings,
		logger:   logger,
		tracer:   tracer,
		inst:     inst,
		fits:     make(map[string]*domain.DistributionFitter),
	}
}

// Bootstrap estimates mean and median intervals for one column. More than
// one worker selects the parallel engine.
func (s *StatsService) Bootstrap(ctx context.Context, t *domain.Table, column string, params BootstrapParams) (domain.BootstrapResult, error) {
	ctx, span := s.tracer.Start(ctx, "StatsService.Bootstrap",
		trace.WithAttributes(attribute.String("colprobe.column", column)),
	)
	defer span.End()

	values, err := numericValues(t, column)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.BootstrapResult{}, err
	}

	settings := s.settings
	if params.Resamples != 0 {
		settings.Resamples = params.Resamples
	}
	if params.ConfidenceLevel != 0 {
		settings.ConfidenceLevel = params.ConfidenceLevel
	}
	if params.Workers != 0 {
		settings.Workers = params.Workers
	}
	if params.Seed != nil {
		settings.Seed = params.Seed
	}
	if err := checkLimit("resamples", settings.Resamples, settings.MaxResamples); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.BootstrapResult{}, err
	}
	if err := checkLimit("workers", settings.Workers, settings.MaxResamples); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.BootstrapResult{}, err
	}
	engine := settings.bootstrapper(column)

	start := time.Now()
	var result domain.BootstrapResult
	if settings.Workers > 1 {
		result, err = engine.RunParallel(ctx, values)
	} else {
		result, err = engine.Run(values)
	}
	s.inst.RecordBootstrapDuration(ctx, float64(time.Since(start).Milliseconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.BootstrapResult{}, err
	}
	span.SetAttributes(
		attribute.Int("colprobe.values", len(values)),
		attribute.Int("colprobe.resamples", engine.Resamples()),
	)
	return result, nil
}

// Fit fits the candidate families to a column and keeps the fitter under
// key, replacing any earlier fit with that key.
func (s *StatsService) Fit(ctx context.Context, key string, t *domain.Table, column string, families []string) (*FitOutcome, error) {
	if key == "" {
		key = column
	}
	ctx, span := s.tracer.Start(ctx, "StatsService.Fit",
		trace.WithAttributes(
			attribute.String("colprobe.column", column),
			attribute.String("colprobe.fit_key", key),
		),
	)
	defer span.End()

	for _, f := range families {
		if !isFamily(f) {
			err := fmt.Errorf("%w: unknown distribution family %q", domain.ErrInvalidInput, f)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}
	values, err := numericValues(t, column)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	fitter := domain.NewDistributionFitter()
	best, err := fitter.FitBest(values, families...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.mu.Lock()
	s.fits[key] = fitter
	s.mu.Unlock()

	for family := range best {
		span.SetAttributes(attribute.String("colprobe.best_family", family))
		s.logger.DebugContext(ctx, "distribution fitted",
			slog.String("key", key),
			slog.String("family", family),
		)
	}
	return &FitOutcome{Key: key, Best: best, Summary: fitter.Summary(), Samples: len(values)}, nil
}

// Sample draws n values from the fit kept under key.
func (s *StatsService) Sample(key string, n int, seed *uint64) ([]float64, error) {
	s.mu.RLock()
	fitter, ok := s.fits[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: nothing fitted under %q", domain.ErrNoFit, key)
	}
	if err := checkLimit("n", n, s.settings.MaxSampleSize); err != nil {
		return nil, err
	}

	if seed == nil {
		seed = s.settings.Seed
	}
	var rng *rand.Rand
	if seed != nil {
		rng = rand.New(rand.NewPCG(*seed, columnSeed(*seed, key)))
	}
	return fitter.Sample(n, rng)
}

// checkLimit rejects requests above limit. A non-positive limit disables
// the check.
func checkLimit(what string, got, limit int) error {
	if limit > 0 && got > limit {
		return fmt.Errorf("%w: %s %d exceeds the limit of %d", domain.ErrInvalidInput, what, got, limit)
	}
	return nil
}

func isFamily(name string) bool {
	return slices.Contains(domain.DefaultFamilies, name)
}

// numericValues coerces a column to floats and drops missing and
// non-finite cells.
func numericValues(t *domain.Table, column string) ([]float64, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: no table", domain.ErrInvalidInput)
	}
	col, ok := t.Column(column)
	if !ok {
		return nil, fmt.Errorf("%w: unknown column %q", domain.ErrInvalidInput, column)
	}
	raw, err := domain.NumericProbe{}.Coerce(col)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	values := domain.FiniteValues(raw)
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: column %q has no finite values", domain.ErrInvalidInput, column)
	}
	return values, nil
}
