package domain

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func gammaDraws(seed uint64, n int, shape float64) []float64 {
	rng := rand.New(rand.NewPCG(seed, seed))
	out := make([]float64, n)
	for i := range out {
		// Sum of exponentials gives an integer-shape gamma.
		var s float64
		for range int(shape) {
			s += rng.ExpFloat64()
		}
		out[i] = s
	}
	return out
}

func TestFitBest_NormalData(t *testing.T) {
	t.Parallel()
	values := normalDraws(5, 5000)
	for i := range values {
		values[i] = 10 + 2*values[i]
	}

	f := NewDistributionFitter()
	res, err := f.FitBest(values, FamilyNorm)
	require.NoError(t, err)
	require.Contains(t, res, FamilyNorm)
	params := res[FamilyNorm]
	require.Len(t, params, 2)
	assert.InDelta(t, 10, params[0], 0.1)
	assert.InDelta(t, 2, params[1], 0.1)
}

func TestFitBest_SelectsSingleFamily(t *testing.T) {
	t.Parallel()
	values := gammaDraws(8, 3000, 3)

	f := NewDistributionFitter()
	res, err := f.FitBest(values)
	require.NoError(t, err)
	assert.Len(t, res, 1)

	summary := f.Summary()
	require.Len(t, summary, len(DefaultFamilies))
	for name := range res {
		assert.Equal(t, name, summary[0].Family)
		assert.Empty(t, summary[0].Err)
	}
	for i := 1; i < len(summary); i++ {
		if summary[i].Err == "" {
			assert.LessOrEqual(t, summary[i-1].SSE, summary[i].SSE)
		}
	}
}

func TestFitBest_GammaRecoversShape(t *testing.T) {
	t.Parallel()
	values := gammaDraws(12, 4000, 4)
	res, err := NewDistributionFitter().FitBest(values, FamilyGamma)
	require.NoError(t, err)
	params := res[FamilyGamma]
	require.Len(t, params, 3)
	assert.InDelta(t, 4, params[0], 0.4)
	assert.Equal(t, 0.0, params[1])
	assert.InDelta(t, 1, params[2], 0.15)
}

func TestFitBest_PositiveFamiliesSkipNegativeData(t *testing.T) {
	t.Parallel()
	values := normalDraws(3, 1000)

	f := NewDistributionFitter()
	res, err := f.FitBest(values, FamilyGamma, FamilyLognorm, FamilyBurr, FamilyNorm)
	require.NoError(t, err)
	assert.Contains(t, res, FamilyNorm)

	failed := 0
	for _, s := range f.Summary() {
		if s.Err != "" {
			failed++
		}
	}
	assert.Equal(t, 3, failed)
}

func TestFitBest_NoFamilyFits(t *testing.T) {
	t.Parallel()
	f := NewDistributionFitter()
	_, err := f.FitBest([]float64{-1, -2, -3}, FamilyGamma, FamilyLognorm)
	assert.ErrorIs(t, err, ErrNoFit)

	_, err = f.Sample(3, nil)
	assert.ErrorIs(t, err, ErrNoFit)
}

func TestFitBest_InvalidInput(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		values []float64
	}{
		{"empty", nil},
		{"nan", []float64{1, math.NaN(), 2}},
		{"constant", []float64{2, 2, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewDistributionFitter().FitBest(tt.values)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestSample_BeforeFit(t *testing.T) {
	t.Parallel()
	_, err := NewDistributionFitter().Sample(10, nil)
	assert.ErrorIs(t, err, ErrNoFit)
}

func TestSample_FollowsFit(t *testing.T) {
	t.Parallel()
	values := normalDraws(21, 3000)
	f := NewDistributionFitter()
	_, err := f.FitBest(values, FamilyNorm)
	require.NoError(t, err)

	draws, err := f.Sample(5000, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	require.Len(t, draws, 5000)
	mean, std := stat.MeanStdDev(draws, nil)
	assert.InDelta(t, 0, mean, 0.1)
	assert.InDelta(t, 1, std, 0.1)

	again, err := f.Sample(5000, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	assert.Equal(t, draws, again)
}

func TestBurr_QuantileInvertsCDF(t *testing.T) {
	t.Parallel()
	b := burr{c: 3, d: 2, scale: 1.5}
	for _, p := range []float64{0.05, 0.5, 0.95} {
		x := b.Quantile(p)
		cdf := math.Pow(1+math.Pow(x/b.scale, -b.c), -b.d)
		assert.InDelta(t, p, cdf, 1e-9)
	}
}
