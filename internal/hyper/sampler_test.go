package hyper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/ihmm/internal/errors"
	"github.com/Iron-Ham/ihmm/internal/hdp"
	"github.com/Iron-Ham/ihmm/internal/rng"
)

func defaultSampler(iterations int) Sampler {
	return Sampler{AlphaPrior: hdp.DefaultAlphaPrior, GammaPrior: hdp.DefaultGammaPrior, Iterations: iterations}
}

func rows(n, each int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = each
	}
	return out
}

func meanOf(t *testing.T, s Sampler, st Stats, seed uint64, draws int) (alpha, gamma float64) {
	t.Helper()
	r := rng.New(seed)
	a, g := 1.0, 1.0
	for i := 0; i < draws; i++ {
		var err error
		a, g, err = s.Resample(a, g, st, r)
		require.NoError(t, err)
		require.Greater(t, a, 0.0)
		require.Greater(t, g, 0.0)
		alpha += a
		gamma += g
	}
	return alpha / float64(draws), gamma / float64(draws)
}

func TestSampler_RejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		sampler Sampler
		alpha   float64
		gamma   float64
	}{
		{"bad alpha prior", Sampler{AlphaPrior: hdp.Prior{Shape: 0, Rate: 1}, GammaPrior: hdp.DefaultGammaPrior}, 1, 1},
		{"bad gamma prior", Sampler{AlphaPrior: hdp.DefaultAlphaPrior, GammaPrior: hdp.Prior{Shape: 1}}, 1, 1},
		{"zero alpha", defaultSampler(1), 0, 1},
		{"negative gamma", defaultSampler(1), 1, -2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, g, err := tt.sampler.Resample(tt.alpha, tt.gamma, Stats{States: 1}, rng.New(1))
			assert.True(t, errors.Is(err, errors.ErrInvalidHyperparameter), "Resample() = %v", err)
			assert.Equal(t, tt.alpha, a)
			assert.Equal(t, tt.gamma, g)
		})
	}
}

func TestSampler_NoDataFollowsPrior(t *testing.T) {
	alpha, gamma := meanOf(t, defaultSampler(1), Stats{}, 3, 20000)
	assert.InDelta(t, hdp.DefaultAlphaPrior.Mean(), alpha, 0.02)
	assert.InDelta(t, hdp.DefaultGammaPrior.Mean(), gamma, 0.1)
}

func TestSampler_AlphaTracksTables(t *testing.T) {
	s := defaultSampler(DefaultIterations)
	few, _ := meanOf(t, s, Stats{States: 50, RowTotals: rows(50, 10), Tables: 60, Starts: 1}, 1, 200)
	many, _ := meanOf(t, s, Stats{States: 50, RowTotals: rows(50, 10), Tables: 400, Starts: 1}, 1, 200)
	assert.Greater(t, many, 3*few, "more tables per row must raise alpha")
}

func TestSampler_GammaTracksStates(t *testing.T) {
	s := defaultSampler(DefaultIterations)
	_, small := meanOf(t, s, Stats{States: 2, RowTotals: rows(2, 50), Tables: 190, Starts: 10}, 2, 200)
	_, large := meanOf(t, s, Stats{States: 120, RowTotals: rows(120, 1), Tables: 190, Starts: 10}, 2, 200)
	assert.Greater(t, large, small, "more states must raise gamma")
}

func TestSampler_Deterministic(t *testing.T) {
	st := Stats{States: 4, RowTotals: []int{3, 0, 7, 1}, Tables: 6, Starts: 2}
	a1, g1, err := defaultSampler(5).Resample(1, 1, st, rng.New(77))
	require.NoError(t, err)
	a2, g2, err := defaultSampler(5).Resample(1, 1, st, rng.New(77))
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
	assert.Equal(t, g1, g2)
}

func TestSampler_ApplyLeavesBetaAlone(t *testing.T) {
	m, err := hdp.New(hdp.Params{
		States: 3, Symbols: 4, Alpha: 1, Gamma: 1,
		AlphaPrior: hdp.DefaultAlphaPrior, GammaPrior: hdp.DefaultGammaPrior,
	}, rng.New(4))
	require.NoError(t, err)
	m.Counts.Trans.Set(0, 1, 4)
	m.Counts.Trans.Set(1, 2, 2)
	m.Counts.Start[0] = 1
	beta := append([]float64(nil), m.Beta...)

	require.NoError(t, FromModel(m, 3).Apply(m, 3))
	assert.Equal(t, beta, m.Beta)
	assert.Equal(t, 3, m.K)
	assert.NotEqual(t, 1.0, m.Alpha)
	assert.NotEqual(t, 1.0, m.Gamma)
}

func TestSampler_FixedConcentrations(t *testing.T) {
	st := Stats{States: 4, RowTotals: []int{3, 5, 7, 1}, Tables: 9, Starts: 2}

	s := defaultSampler(5)
	s.FixAlpha = true
	a, g, err := s.Resample(0.7, 2, st, rng.New(1))
	require.NoError(t, err)
	assert.Equal(t, 0.7, a)
	assert.NotEqual(t, 2.0, g)

	s = defaultSampler(5)
	s.FixGamma = true
	a, g, err = s.Resample(0.7, 2, st, rng.New(1))
	require.NoError(t, err)
	assert.NotEqual(t, 0.7, a)
	assert.Equal(t, 2.0, g)
}
