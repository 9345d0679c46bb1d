package service

import (
	"hash/fnv"

	"github.com/guillermoBallester/colprobe/internal/core/domain"
	"github.com/guillermoBallester/colprobe/internal/core/port"
)

const (
	DefaultMaxResamples  = 100000
	DefaultMaxSampleSize = 1000000
)

// Settings are the process-wide profiling defaults. Per-table policy
// overrides the classification fields.
type Settings struct {
	CategoryThreshold float64
	ExclusiveDatetime bool

	Resamples       int
	ConfidenceLevel float64
	Workers         int
	// Seed makes bootstrap and sampling reproducible when set.
	Seed *uint64

	// MaxResamples and MaxSampleSize cap what a single caller may request.
	MaxResamples  int
	MaxSampleSize int
}

// DefaultSettings mirrors the domain defaults.
func DefaultSettings() Settings {
	return Settings{
		CategoryThreshold: domain.DefaultCategoryThreshold,
		Resamples:         domain.DefaultResamples,
		ConfidenceLevel:   domain.DefaultConfidenceLevel,
		Workers:           1,
		MaxResamples:      DefaultMaxResamples,
		MaxSampleSize:     DefaultMaxSampleSize,
	}
}

func (s Settings) classifier(opts port.TableOptions) *domain.ColumnClassifier {
	threshold := s.CategoryThreshold
	if opts.CategoryThreshold > 0 {
		threshold = opts.CategoryThreshold
	}
	return domain.NewColumnClassifier(
		domain.WithCategoryThreshold(threshold),
		domain.WithExclusiveDatetime(s.ExclusiveDatetime),
	)
}

// bootstrapper builds an engine for one column. Seeded settings derive a
// per-column seed so every column draws an independent, stable stream.
func (s Settings) bootstrapper(column string) *domain.Bootstrapper {
	workers := s.Workers
	if workers == 0 {
		workers = 1
	}
	opts := []domain.BootstrapOption{
		domain.WithResamples(s.Resamples),
		domain.WithConfidenceLevel(s.ConfidenceLevel),
		domain.WithWorkers(workers),
	}
	if s.Seed != nil {
		opts = append(opts, domain.WithSeed(columnSeed(*s.Seed, column)))
	}
	return domain.NewBootstrapper(opts...)
}

func columnSeed(seed uint64, column string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(column))
	return seed ^ h.Sum64()
}
