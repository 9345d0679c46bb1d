package domain

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// NumericSummary is the describe() record kept per numeric column.
type NumericSummary struct {
	Count float64 `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	Q25   float64 `json:"25%"`
	Q50   float64 `json:"50%"`
	Q75   float64 `json:"75%"`
	Max   float64 `json:"max"`
}

// Describe summarizes values. Quartiles interpolate linearly between the
// closest ranks and std uses one delta degree of freedom.
func Describe(values []float64) (NumericSummary, error) {
	if err := checkFinite(values); err != nil {
		return NumericSummary{}, err
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	s := NumericSummary{
		Count: float64(len(sorted)),
		Mean:  stat.Mean(sorted, nil),
		Min:   floats.Min(sorted),
		Max:   floats.Max(sorted),
		Q25:   percentileSorted(sorted, 25),
		Q50:   percentileSorted(sorted, 50),
		Q75:   percentileSorted(sorted, 75),
	}
	if len(sorted) > 1 {
		s.Std = stat.StdDev(sorted, nil)
	}
	if err := checkStatistics("describe", s.Mean, s.Std, s.Q25, s.Q50, s.Q75); err != nil {
		return NumericSummary{}, err
	}
	return s, nil
}

// checkStatistics rejects results that overflowed even though every input
// was finite.
func checkStatistics(what string, stats ...float64) error {
	for _, v := range stats {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %w: %s of finite values is not representable", ErrInvalidInput, ErrOverflow, what)
		}
	}
	return nil
}

// checkFinite rejects empty vectors and vectors holding NaN or Inf.
func checkFinite(values []float64) error {
	if len(values) == 0 {
		return fmt.Errorf("%w: empty vector", ErrInvalidInput)
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value at index %d", ErrInvalidInput, i)
		}
	}
	return nil
}

// percentileSorted returns the p-th percentile (0..100) of an ascending
// slice using rank = p/100*(n-1).
func percentileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	switch {
	case n == 0:
		return math.NaN()
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[n-1]
	}
	rank := p / 100 * float64(n-1)
	lower := int(rank)
	upper := lower + 1
	if upper >= n {
		return sorted[lower]
	}
	weight := rank - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// medianSorted averages the middle pair for even lengths.
func medianSorted(sorted []float64) float64 {
	n := len(sorted)
	mid := n / 2
	if n%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// FiniteValues drops NaN and infinite cells.
func FiniteValues(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}
