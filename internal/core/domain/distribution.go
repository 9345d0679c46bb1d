package domain

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Family names accepted by FitBest.
const (
	FamilyGamma   = "gamma"
	FamilyLognorm = "lognorm"
	FamilyBeta    = "beta"
	FamilyBurr    = "burr"
	FamilyNorm    = "norm"
)

// DefaultFamilies is the candidate set used when none is given.
var DefaultFamilies = []string{FamilyGamma, FamilyLognorm, FamilyBeta, FamilyBurr, FamilyNorm}

const (
	histogramBins = 100
	nmIterations  = 2000
	nllPenalty    = 1e100
)

// FitResult maps the winning family name to its parameter tuple. Parameter
// order is shape parameters first, then loc and scale.
type FitResult map[string][]float64

// FitScore is one candidate's outcome.
type FitScore struct {
	Family string    `json:"family"`
	Params []float64 `json:"params,omitempty"`
	SSE    float64   `json:"sumsquare_error,omitempty"`
	Err    string    `json:"error,omitempty"`
}

// density is the subset of a fitted distribution the fitter needs.
type density interface {
	Prob(x float64) float64
	Quantile(p float64) float64
}

type fittedFamily struct {
	params []float64
	dist   density
}

type familyFitter func(sorted []float64) (fittedFamily, error)

var familyFitters = map[string]familyFitter{
	FamilyNorm:    fitNorm,
	FamilyLognorm: fitLognorm,
	FamilyGamma:   fitGamma,
	FamilyBeta:    fitBeta,
	FamilyBurr:    fitBurr,
}

// DistributionFitter fits parametric families to a numeric vector and keeps
// the best one for sampling.
type DistributionFitter struct {
	mu      sync.Mutex
	best    string
	fit     fittedFamily
	summary []FitScore
}

func NewDistributionFitter() *DistributionFitter {
	return &DistributionFitter{}
}

// FitBest fits every family, scores each by the squared error between the
// empirical density histogram and the fitted pdf, and keeps the minimum.
// Families that fail are recorded in the summary and skipped.
func (f *DistributionFitter) FitBest(values []float64, families ...string) (FitResult, error) {
	if err := checkFinite(values); err != nil {
		return nil, err
	}
	if len(families) == 0 {
		families = DefaultFamilies
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	centers, empirical, err := empiricalDensity(sorted, histogramBins)
	if err != nil {
		return nil, err
	}

	var (
		scores   []FitScore
		bestName string
		bestFit  fittedFamily
		bestSSE  = math.Inf(1)
	)
	for _, name := range families {
		fitter, ok := familyFitters[name]
		if !ok {
			scores = append(scores, FitScore{Family: name, Err: "unknown family"})
			continue
		}
		fitted, err := fitter(sorted)
		if err != nil {
			scores = append(scores, FitScore{Family: name, Err: err.Error()})
			continue
		}
		sse, err := sumSquaredError(fitted.dist, centers, empirical)
		if err != nil {
			scores = append(scores, FitScore{Family: name, Params: fitted.params, Err: err.Error()})
			continue
		}
		scores = append(scores, FitScore{Family: name, Params: fitted.params, SSE: sse})
		if sse < bestSSE {
			bestName, bestFit, bestSSE = name, fitted, sse
		}
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if (scores[i].Err == "") != (scores[j].Err == "") {
			return scores[i].Err == ""
		}
		return scores[i].SSE < scores[j].SSE
	})

	f.mu.Lock()
	defer f.mu.Unlock()
	f.summary = scores
	if bestName == "" {
		f.best, f.fit = "", fittedFamily{}
		return nil, fmt.Errorf("%w: every candidate family failed", ErrNoFit)
	}
	f.best, f.fit = bestName, bestFit
	return FitResult{bestName: slices.Clone(bestFit.params)}, nil
}

// Summary returns every candidate of the last fit, best first.
func (f *DistributionFitter) Summary() []FitScore {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.summary)
}

// Best returns the stored fit.
func (f *DistributionFitter) Best() (FitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.best == "" {
		return nil, ErrNoFit
	}
	return FitResult{f.best: slices.Clone(f.fit.params)}, nil
}

// Sample draws n values from the stored fit by inverse-transform sampling.
func (f *DistributionFitter) Sample(n int, rng *rand.Rand) ([]float64, error) {
	f.mu.Lock()
	dist := f.fit.dist
	f.mu.Unlock()
	if dist == nil {
		return nil, ErrNoFit
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: sample size %d", ErrInvalidInput, n)
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	out := make([]float64, n)
	for i := range out {
		u := rng.Float64()
		for u == 0 {
			u = rng.Float64()
		}
		out[i] = dist.Quantile(u)
	}
	return out, nil
}

// empiricalDensity bins sorted into equal-width bins and normalizes counts
// so the histogram integrates to one.
func empiricalDensity(sorted []float64, bins int) (centers, dens []float64, err error) {
	lo, hi := sorted[0], sorted[len(sorted)-1]
	if lo == hi {
		return nil, nil, fmt.Errorf("%w: constant vector has no density", ErrInvalidInput)
	}
	dividers := make([]float64, bins+1)
	floats.Span(dividers, lo, hi)
	dividers[bins] = math.Nextafter(hi, math.Inf(1))

	counts := stat.Histogram(make([]float64, bins), dividers, sorted, nil)
	width := (hi - lo) / float64(bins)
	n := float64(len(sorted))
	centers = make([]float64, bins)
	dens = make([]float64, bins)
	for i := range counts {
		centers[i] = (dividers[i] + dividers[i+1]) / 2
		dens[i] = counts[i] / (n * width)
	}
	return centers, dens, nil
}

var errNonFiniteDensity = errors.New("fitted density is not finite on the data range")

func sumSquaredError(d density, centers, empirical []float64) (float64, error) {
	var sse float64
	for i, x := range centers {
		p := d.Prob(x)
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return 0, errNonFiniteDensity
		}
		diff := p - empirical[i]
		sse += diff * diff
	}
	return sse, nil
}

// minimizeNLL refines x0 with Nelder-Mead. nll must return nllPenalty for
// parameters outside the family's support.
func minimizeNLL(nll func([]float64) float64, x0 []float64) ([]float64, error) {
	res, err := optimize.Minimize(optimize.Problem{Func: nll}, x0,
		&optimize.Settings{MajorIterations: nmIterations}, &optimize.NelderMead{})
	if res == nil {
		return nil, fmt.Errorf("nelder-mead: %w", err)
	}
	if math.IsNaN(res.F) || res.F >= nllPenalty {
		return nil, errors.New("nelder-mead: no admissible parameters")
	}
	return res.X, nil
}

func requirePositive(sorted []float64, family string) error {
	if sorted[0] <= 0 {
		return fmt.Errorf("%s requires strictly positive data", family)
	}
	return nil
}

func fitNorm(sorted []float64) (fittedFamily, error) {
	mu, sigma := stat.PopMeanStdDev(sorted, nil)
	if sigma <= 0 {
		return fittedFamily{}, errors.New("zero variance")
	}
	return fittedFamily{
		params: []float64{mu, sigma},
		dist:   distuv.Normal{Mu: mu, Sigma: sigma},
	}, nil
}

// fitLognorm uses the closed-form MLE with loc fixed at zero.
func fitLognorm(sorted []float64) (fittedFamily, error) {
	if err := requirePositive(sorted, FamilyLognorm); err != nil {
		return fittedFamily{}, err
	}
	logs := make([]float64, len(sorted))
	for i, v := range sorted {
		logs[i] = math.Log(v)
	}
	mu, sigma := stat.PopMeanStdDev(logs, nil)
	if sigma <= 0 {
		return fittedFamily{}, errors.New("zero log variance")
	}
	return fittedFamily{
		params: []float64{sigma, 0, math.Exp(mu)},
		dist:   distuv.LogNormal{Mu: mu, Sigma: sigma},
	}, nil
}

// fitGamma starts from the moment estimates and refines shape and scale on
// the log scale.
func fitGamma(sorted []float64) (fittedFamily, error) {
	if err := requirePositive(sorted, FamilyGamma); err != nil {
		return fittedFamily{}, err
	}
	mean, variance := stat.MeanVariance(sorted, nil)
	if variance <= 0 {
		return fittedFamily{}, errors.New("zero variance")
	}
	x0 := []float64{math.Log(mean * mean / variance), math.Log(variance / mean)}
	nll := func(p []float64) float64 {
		d := distuv.Gamma{Alpha: math.Exp(p[0]), Beta: math.Exp(-p[1])}
		return negLogLikelihood(sorted, d.LogProb)
	}
	x, err := minimizeNLL(nll, x0)
	if err != nil {
		return fittedFamily{}, err
	}
	shape, scale := math.Exp(x[0]), math.Exp(x[1])
	return fittedFamily{
		params: []float64{shape, 0, scale},
		dist:   distuv.Gamma{Alpha: shape, Beta: 1 / scale},
	}, nil
}

// fitBeta pins loc and scale just outside the observed range and fits the
// two shape parameters on the rescaled data.
func fitBeta(sorted []float64) (fittedFamily, error) {
	lo, hi := sorted[0], sorted[len(sorted)-1]
	span := hi - lo
	if span <= 0 {
		return fittedFamily{}, errors.New("zero range")
	}
	pad := span * 1e-3
	loc, scale := lo-pad, span+2*pad
	unit := make([]float64, len(sorted))
	for i, v := range sorted {
		unit[i] = (v - loc) / scale
	}

	m, v := stat.MeanVariance(unit, nil)
	common := m*(1-m)/v - 1
	if v <= 0 || common <= 0 {
		common = 1
	}
	x0 := []float64{math.Log(m * common), math.Log((1 - m) * common)}
	nll := func(p []float64) float64 {
		d := distuv.Beta{Alpha: math.Exp(p[0]), Beta: math.Exp(p[1])}
		return negLogLikelihood(unit, d.LogProb)
	}
	x, err := minimizeNLL(nll, x0)
	if err != nil {
		return fittedFamily{}, err
	}
	a, b := math.Exp(x[0]), math.Exp(x[1])
	return fittedFamily{
		params: []float64{a, b, loc, scale},
		dist:   scaled{base: distuv.Beta{Alpha: a, Beta: b}, loc: loc, scale: scale},
	}, nil
}

func fitBurr(sorted []float64) (fittedFamily, error) {
	if err := requirePositive(sorted, FamilyBurr); err != nil {
		return fittedFamily{}, err
	}
	x0 := []float64{math.Log(2), 0, math.Log(medianSorted(sorted))}
	nll := func(p []float64) float64 {
		d := burr{c: math.Exp(p[0]), d: math.Exp(p[1]), scale: math.Exp(p[2])}
		return negLogLikelihood(sorted, d.LogProb)
	}
	x, err := minimizeNLL(nll, x0)
	if err != nil {
		return fittedFamily{}, err
	}
	d := burr{c: math.Exp(x[0]), d: math.Exp(x[1]), scale: math.Exp(x[2])}
	return fittedFamily{
		params: []float64{d.c, d.d, 0, d.scale},
		dist:   d,
	}, nil
}

func negLogLikelihood(data []float64, logProb func(float64) float64) float64 {
	var sum float64
	for _, x := range data {
		lp := logProb(x)
		if math.IsNaN(lp) || math.IsInf(lp, 0) {
			return nllPenalty
		}
		sum -= lp
	}
	return sum
}

// scaled applies a loc/scale transform to a standard distribution.
type scaled struct {
	base  density
	loc   float64
	scale float64
}

func (s scaled) Prob(x float64) float64 {
	return s.base.Prob((x-s.loc)/s.scale) / s.scale
}

func (s scaled) Quantile(p float64) float64 {
	return s.loc + s.scale*s.base.Quantile(p)
}

// burr is the Burr type III distribution with loc fixed at zero:
// F(x) = (1 + (x/scale)^-c)^-d for x > 0.
type burr struct {
	c, d, scale float64
}

func (b burr) LogProb(x float64) float64 {
	if x <= 0 {
		return math.Inf(-1)
	}
	z := x / b.scale
	lz := math.Log(z)
	// log1p(z^-c) computed stably for large c*|log z|.
	t := -b.c * lz
	var log1pTerm float64
	if t > 30 {
		log1pTerm = t + math.Log1p(math.Exp(-t))
	} else {
		log1pTerm = math.Log1p(math.Exp(t))
	}
	return math.Log(b.c) + math.Log(b.d) - (b.c+1)*lz - (b.d+1)*log1pTerm - math.Log(b.scale)
}

func (b burr) Prob(x float64) float64 {
	return math.Exp(b.LogProb(x))
}

func (b burr) Quantile(p float64) float64 {
	if p <= 0 {
		return 0
	}
	if p >= 1 {
		return math.Inf(1)
	}
	return b.scale * math.Pow(math.Pow(p, -1/b.d)-1, -1/b.c)
}
