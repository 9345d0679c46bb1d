package domain

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

const (
	DefaultResamples       = 1000
	DefaultConfidenceLevel = 95.0
)

// BootstrapResult holds point estimates and percentile intervals for the
// mean and median of a column.
type BootstrapResult struct {
	MeanValue     float64    `json:"mean_value"`
	MeanValueCI   [2]float64 `json:"mean_value_ci"`
	MedianValue   float64    `json:"median_value"`
	MedianValueCI [2]float64 `json:"median_value_ci"`
}

// BootstrapOption configures a Bootstrapper.
type BootstrapOption func(*Bootstrapper)

func WithResamples(n int) BootstrapOption {
	return func(b *Bootstrapper) { b.resamples = n }
}

// WithConfidenceLevel sets the interval level as a percentage.
func WithConfidenceLevel(pct float64) BootstrapOption {
	return func(b *Bootstrapper) { b.level = pct }
}

// WithSeed makes runs reproducible.
func WithSeed(seed uint64) BootstrapOption {
	return func(b *Bootstrapper) {
		b.seed = seed
		b.seeded = true
	}
}

// WithWorkers sets the number of goroutines used by RunParallel.
func WithWorkers(n int) BootstrapOption {
	return func(b *Bootstrapper) { b.workers = n }
}

// Bootstrapper estimates sampling distributions of the mean and median by
// resampling with replacement.
type Bootstrapper struct {
	resamples int
	level     float64
	seed      uint64
	seeded    bool
	workers   int
}

func NewBootstrapper(opts ...BootstrapOption) *Bootstrapper {
	b := &Bootstrapper{
		resamples: DefaultResamples,
		level:     DefaultConfidenceLevel,
		workers:   1,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Resamples returns the configured resample count.
func (b *Bootstrapper) Resamples() int { return b.resamples }

func (b *Bootstrapper) validate(values []float64) error {
	if err := checkFinite(values); err != nil {
		return err
	}
	if b.resamples < 2 {
		return fmt.Errorf("%w: n_resamples must be at least 2, got %d", ErrInvalidInput, b.resamples)
	}
	if b.level <= 0 || b.level >= 100 {
		return fmt.Errorf("%w: confidence level must be in (0, 100), got %g", ErrInvalidInput, b.level)
	}
	if b.workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidInput, b.workers)
	}
	return nil
}

func (b *Bootstrapper) rootRand() *rand.Rand {
	seed := b.seed
	if !b.seeded {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Run resamples sequentially.
func (b *Bootstrapper) Run(values []float64) (BootstrapResult, error) {
	if err := b.validate(values); err != nil {
		return BootstrapResult{}, err
	}
	means, medians := resample(b.rootRand(), values, b.resamples)
	return b.summarize(means, medians)
}

// RunParallel spreads the resamples across the configured workers. Each
// worker owns a PCG stream seeded from the root generator, so seeded runs
// stay deterministic for a fixed worker count.
func (b *Bootstrapper) RunParallel(ctx context.Context, values []float64) (BootstrapResult, error) {
	means, medians, err := b.Distribution(ctx, values)
	if err != nil {
		return BootstrapResult{}, err
	}
	return b.summarize(means, medians)
}

// Distribution returns the merged resampling distributions of the parallel
// run, in worker order.
func (b *Bootstrapper) Distribution(ctx context.Context, values []float64) (means, medians []float64, err error) {
	if err := b.validate(values); err != nil {
		return nil, nil, err
	}

	shares := partition(b.resamples, b.workers)
	root := b.rootRand()
	seeds := make([]uint64, len(shares))
	for i := range seeds {
		seeds[i] = root.Uint64()
	}

	partMeans := make([][]float64, len(shares))
	partMedians := make([][]float64, len(shares))
	g, gctx := errgroup.WithContext(ctx)
	for w, share := range shares {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(seeds[w], uint64(w)))
			partMeans[w], partMedians[w] = resample(rng, values, share)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("parallel bootstrap: %w", err)
	}

	means = make([]float64, 0, b.resamples)
	medians = make([]float64, 0, b.resamples)
	for w := range shares {
		means = append(means, partMeans[w]...)
		medians = append(medians, partMedians[w]...)
	}
	return means, medians, nil
}

// partition splits total into workers shares, giving the first
// total%workers shares one extra item. Workers never exceed total.
func partition(total, workers int) []int {
	if workers > total {
		workers = total
	}
	base, extra := total/workers, total%workers
	shares := make([]int, workers)
	for i := range shares {
		shares[i] = base
		if i < extra {
			shares[i]++
		}
	}
	return shares
}

func resample(rng *rand.Rand, values []float64, count int) (means, medians []float64) {
	n := len(values)
	means = make([]float64, count)
	medians = make([]float64, count)
	buf := make([]float64, n)
	for i := range count {
		for j := range buf {
			buf[j] = values[rng.IntN(n)]
		}
		means[i] = stat.Mean(buf, nil)
		slices.Sort(buf)
		medians[i] = medianSorted(buf)
	}
	return means, medians
}

func (b *Bootstrapper) summarize(means, medians []float64) (BootstrapResult, error) {
	slices.Sort(means)
	slices.Sort(medians)
	r := BootstrapResult{
		MeanValue:     stat.Mean(means, nil),
		MeanValueCI:   percentileInterval(means, b.level),
		MedianValue:   medianSorted(medians),
		MedianValueCI: percentileInterval(medians, b.level),
	}
	if err := checkStatistics("bootstrap",
		r.MeanValue, r.MeanValueCI[0], r.MeanValueCI[1],
		r.MedianValue, r.MedianValueCI[0], r.MedianValueCI[1],
	); err != nil {
		return BootstrapResult{}, err
	}
	return r, nil
}

// percentileInterval reads the interval bounds from an ascending
// distribution. Indices round half to even and are clamped into range, so
// the upper index never reaches len(sorted).
func percentileInterval(sorted []float64, level float64) [2]float64 {
	n := len(sorted)
	l := level / 100
	lo := clampIndex(math.RoundToEven((1-l)/2*float64(n)), n)
	hi := clampIndex(math.RoundToEven((1+l)/2*float64(n)), n)
	return [2]float64{sorted[lo], sorted[hi]}
}

func clampIndex(idx float64, n int) int {
	i := int(idx)
	return max(0, min(i, n-1))
}
