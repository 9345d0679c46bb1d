package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/guillermoBallester/colprobe/internal/core/domain"
	"github.com/guillermoBallester/colprobe/internal/core/port"
)

// Classification is a table's schema plus per-column cardinality classes.
type Classification struct {
	Table       string                     `json:"table"`
	Schema      *domain.Schema             `json:"schema"`
	Cardinality []domain.ColumnCardinality `json:"cardinality"`
}

// ClassifierService classifies tables and keeps the last schema per table
// so later casts reuse it.
type ClassifierService struct {
	settings Settings
	options  port.OptionsResolver
	logger   *slog.Logger

	mu      sync.RWMutex
	schemas map[string]*domain.Schema
}

func NewClassifierService(settings Settings, options port.OptionsResolver, logger *slog.Logger) *ClassifierService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ClassifierService{
		settings: settings,
		options:  options,
		logger:   logger,
		schemas:  make(map[string]*domain.Schema),
	}
}

// Classify infers column roles for t using the policy resolved for name and
// caches the schema under name.
func (s *ClassifierService) Classify(ctx context.Context, name string, t *domain.Table) (*Classification, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: no table", domain.ErrInvalidInput)
	}
	var opts port.TableOptions
	if s.options != nil {
		opts = s.options.Resolve(name)
	}

	schema, err := s.settings.classifier(opts).Classify(t, opts.Drop)
	if err != nil {
		return nil, err
	}
	cardinality, err := domain.TableCardinality(t)
	if err != nil {
		return nil, err
	}

	if name != "" {
		s.mu.Lock()
		s.schemas[name] = schema
		s.mu.Unlock()
	}
	s.logger.DebugContext(ctx, "table classified",
		slog.String("table", name),
		slog.Int("numeric", len(schema.Numeric)),
		slog.Int("datetime", len(schema.Datetime)),
		slog.Int("id", len(schema.ID)),
		slog.Int("category", len(schema.Category)),
		slog.Int("object", len(schema.Object)),
	)
	return &Classification{Table: name, Schema: schema, Cardinality: cardinality}, nil
}

// Schema returns the cached schema for name.
func (s *ClassifierService) Schema(name string) (*domain.Schema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	schema, ok := s.schemas[name]
	if !ok {
		return nil, fmt.Errorf("%w: table %q has not been classified", domain.ErrConfiguration, name)
	}
	return schema, nil
}

// Apply casts t with the schema cached for name, using the same classifier
// configuration that produced it.
func (s *ClassifierService) Apply(_ context.Context, name string, t *domain.Table) (*domain.Table, error) {
	schema, err := s.Schema(name)
	if err != nil {
		return nil, err
	}
	var opts port.TableOptions
	if s.options != nil {
		opts = s.options.Resolve(name)
	}
	return s.settings.classifier(opts).Apply(t, schema)
}
