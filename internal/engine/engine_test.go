package engine

import (
	"context"
	"slices"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/Iron-Ham/ihmm/internal/corpus"
	"github.com/Iron-Ham/ihmm/internal/errors"
	"github.com/Iron-Ham/ihmm/internal/hdp"
	"github.com/Iron-Ham/ihmm/internal/hyper"
	"github.com/Iron-Ham/ihmm/internal/rng"
	"github.com/Iron-Ham/ihmm/internal/testutil"
)

func newModel(t *testing.T, c *corpus.Corpus, states int, alpha, gamma float64, seed uint64) *hdp.Model {
	t.Helper()
	m, err := hdp.New(hdp.Params{
		States:     states,
		Symbols:    c.Size(),
		Alpha:      alpha,
		Gamma:      gamma,
		AlphaPrior: hdp.DefaultAlphaPrior,
		GammaPrior: hdp.DefaultGammaPrior,
	}, rng.New(seed))
	require.NoError(t, err)
	return m
}

func requireConsistent(t *testing.T, m *hdp.Model, c *corpus.Corpus) {
	t.Helper()
	require.NoError(t, m.Validate())
	require.NoError(t, m.CheckPaths(c))
	require.Len(t, m.Beta, m.K+1)
	assert.InDelta(t, 1.0, floats.Sum(m.Beta), 1e-9)

	transitions := 0
	for _, seq := range c.Sequences {
		transitions += seq.Len() - 1
	}
	assert.Equal(t, transitions, m.Counts.Trans.Total())
	assert.Equal(t, c.Len(), m.StartTotal())
	assert.Equal(t, c.TotalLength(), m.Counts.Emit.Total())
	for k, n := range m.Counts.Occupancy() {
		assert.Positive(t, n, "state %d is empty", k)
	}
}

func TestRun_TwoShortSequences(t *testing.T) {
	c := testutil.Corpus(t, corpus.DNA, "ACGTA", "GGCAT")
	m := newModel(t, c, 3, 1, 1, 42)
	opts := Options{Iterations: 1, Workers: 2}
	require.NoError(t, Initialize(m, c, 0, opts))

	require.NoError(t, Run(context.Background(), m, c, c.Background(), nil, opts))

	for _, seq := range c.Sequences {
		require.Len(t, seq.Path, 5)
		for _, s := range seq.Path {
			assert.GreaterOrEqual(t, s, 0)
			assert.Less(t, s, m.K)
		}
	}
	requireConsistent(t, m, c)
}

func TestRun_KeepsInvariants(t *testing.T) {
	tests := []struct {
		name    string
		workers int
		every   int
	}{
		{"single worker", 1, 1},
		{"four workers", 4, 1},
		{"sparse resampling", 3, 4},
		{"no resampling", 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testutil.RandomCorpus(t, testutil.Stream(9), 6, 40, corpus.DNA)
			m := newModel(t, c, 4, 0, 0, 11)
			opts := Options{Iterations: 12, Workers: tt.workers, HyperEvery: tt.every}
			require.NoError(t, Initialize(m, c, 2, opts))

			var reports []IterationReport
			obs := ObserverFunc(func(_ context.Context, r IterationReport) error {
				reports = append(reports, r)
				return nil
			})
			require.NoError(t, Run(context.Background(), m, c, c.Background(), obs, opts))

			requireConsistent(t, m, c)
			require.Len(t, reports, 12)
			for i, r := range reports {
				assert.Equal(t, i, r.Iteration)
				assert.Positive(t, r.States)
				assert.Positive(t, r.Alpha)
				assert.Positive(t, r.Gamma)
				assert.GreaterOrEqual(t, r.Births, 0)
				assert.GreaterOrEqual(t, r.Pruned, 0)
			}
			last := reports[len(reports)-1]
			assert.Equal(t, m.K, last.States)
			assert.Equal(t, m.Residual(), last.Residual)
		})
	}
}

func TestRun_DeterministicWithOneWorker(t *testing.T) {
	run := func() ([][]int, []float64, float64) {
		c := testutil.RandomCorpus(t, testutil.Stream(5), 3, 30, corpus.DNA)
		m := newModel(t, c, 5, 0, 0, 21)
		opts := Options{Iterations: 8, Workers: 1, HyperEvery: 2}
		require.NoError(t, Initialize(m, c, 3, opts))
		require.NoError(t, Run(context.Background(), m, c, c.Background(), nil, opts))

		paths := make([][]int, c.Len())
		for i, seq := range c.Sequences {
			paths[i] = slices.Clone(seq.Path)
		}
		return paths, slices.Clone(m.Beta), m.Alpha
	}

	p1, b1, a1 := run()
	p2, b2, a2 := run()
	assert.Equal(t, p1, p2)
	assert.Equal(t, b1, b2)
	assert.Equal(t, a1, a2)
}

// births runs one iteration at alpha from a common starting point and
// returns how many states it created.
func births(t *testing.T, seed uint64, alpha float64) int {
	t.Helper()
	c := testutil.RandomCorpus(t, testutil.Stream(seed), 1, 400, corpus.DNA)
	m := newModel(t, c, 5, 1, 1, seed)
	require.NoError(t, Initialize(m, c, 0, Options{}))
	m.ResampleBeta()
	m.Alpha = alpha

	var got int
	obs := ObserverFunc(func(_ context.Context, r IterationReport) error {
		got = r.Births
		return nil
	})
	require.NoError(t, Run(context.Background(), m, c, c.Background(), obs, Options{Iterations: 1, Workers: 1}))
	return got
}

func TestRun_BirthsFallWithAlpha(t *testing.T) {
	alphas := []float64{10, 1, 0.01}
	means := make([]float64, len(alphas))
	const seeds = 20
	for seed := uint64(1); seed <= seeds; seed++ {
		for i, a := range alphas {
			means[i] += float64(births(t, seed, a)) / seeds
		}
	}

	assert.Greater(t, means[0], means[1], "mean births %v", means)
	assert.Greater(t, means[1], means[2], "mean births %v", means)
}

func TestRun_UniformCorpusCollapses(t *testing.T) {
	if testing.Short() {
		t.Skip("long chain")
	}
	share, states := 0.0, 0.0
	seeds := []uint64{1, 2, 3}
	for _, seed := range seeds {
		c := testutil.Repeat(t, corpus.DNA, 'A', 4, 25)
		m := newModel(t, c, 10, 0.1, 0.5, seed)
		opts := Options{
			Iterations: 400,
			Workers:    1,
			HyperEvery: 1,
			Hyper:      hyper.Sampler{FixAlpha: true, FixGamma: true},
		}
		require.NoError(t, Initialize(m, c, 0, opts))
		require.NoError(t, Run(context.Background(), m, c, c.Background(), nil, opts))
		requireConsistent(t, m, c)
		assert.Equal(t, 0.1, m.Alpha)
		assert.Equal(t, 0.5, m.Gamma)
		assert.Less(t, m.K, 10, "seed %d kept %d states", seed, m.K)
		states += float64(m.K) / float64(len(seeds))

		occ := m.Counts.Occupancy()
		sort.Sort(sort.Reverse(sort.IntSlice(occ)))
		top := occ[0]
		if len(occ) > 1 {
			top += occ[1]
		}
		share += float64(top) / float64(c.TotalLength()) / float64(len(seeds))
	}
	assert.GreaterOrEqual(t, share, 0.5)
	assert.LessOrEqual(t, states, 6.0)
}

func TestOptions_SamplerPriors(t *testing.T) {
	c := testutil.Corpus(t, corpus.DNA, "ACGT")
	m := newModel(t, c, 2, 1, 1, 1)
	m.AlphaPrior = hdp.Prior{Shape: 50, Rate: 2}
	m.GammaPrior = hdp.Prior{Shape: 3, Rate: 4}

	t.Run("model priors when unset", func(t *testing.T) {
		s := Options{HyperIterations: 7, Hyper: hyper.Sampler{FixGamma: true}}.sampler(m)
		assert.Equal(t, m.AlphaPrior, s.AlphaPrior)
		assert.Equal(t, m.GammaPrior, s.GammaPrior)
		assert.Equal(t, 7, s.Iterations)
		assert.True(t, s.FixGamma)
	})

	t.Run("options override", func(t *testing.T) {
		opts := Options{HyperIterations: 7, Hyper: hyper.Sampler{
			AlphaPrior: hdp.DefaultAlphaPrior,
			Iterations: 2,
		}}
		s := opts.sampler(m)
		assert.Equal(t, hdp.DefaultAlphaPrior, s.AlphaPrior)
		assert.Equal(t, m.GammaPrior, s.GammaPrior)
		assert.Equal(t, 2, s.Iterations)
	})
}

func TestRun_Cancellation(t *testing.T) {
	c := testutil.RandomCorpus(t, testutil.Stream(3), 2, 20, corpus.DNA)
	m := newModel(t, c, 3, 1, 1, 3)
	require.NoError(t, Initialize(m, c, 0, Options{}))

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	obs := ObserverFunc(func(_ context.Context, r IterationReport) error {
		calls++
		if r.Iteration == 1 {
			cancel()
		}
		return nil
	})

	err := Run(ctx, m, c, c.Background(), obs, Options{Iterations: 10, Workers: 2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCanceled), "Run() = %v", err)
	assert.True(t, errors.Is(err, context.Canceled), "Run() = %v", err)
	assert.Equal(t, 2, calls)
	requireConsistent(t, m, c)
}

func TestRun_ObserverErrorAborts(t *testing.T) {
	c := testutil.RandomCorpus(t, testutil.Stream(4), 2, 20, corpus.DNA)
	m := newModel(t, c, 3, 1, 1, 4)
	require.NoError(t, Initialize(m, c, 0, Options{}))

	stop := errors.New("stop")
	calls := 0
	obs := Observers(nil, ObserverFunc(func(context.Context, IterationReport) error {
		calls++
		return stop
	}))

	err := Run(context.Background(), m, c, c.Background(), obs, Options{Iterations: 5, Workers: 1})
	assert.True(t, errors.Is(err, stop), "Run() = %v", err)
	assert.Equal(t, 1, calls)
}

func TestRun_ZeroIterations(t *testing.T) {
	c := testutil.Corpus(t, corpus.DNA, "ACGT")
	m := newModel(t, c, 2, 1, 1, 1)
	require.NoError(t, Initialize(m, c, 0, Options{}))
	before := slices.Clone(c.Sequences[0].Path)

	called := false
	obs := ObserverFunc(func(context.Context, IterationReport) error {
		called = true
		return nil
	})
	require.NoError(t, Run(context.Background(), m, c, c.Background(), obs, Options{}))
	assert.False(t, called)
	assert.Equal(t, before, c.Sequences[0].Path)
}

func TestRun_Preconditions(t *testing.T) {
	ready := func(t *testing.T) (*hdp.Model, *corpus.Corpus) {
		c := testutil.Corpus(t, corpus.DNA, "ACGTAC", "TTAG")
		m := newModel(t, c, 3, 1, 1, 8)
		require.NoError(t, Initialize(m, c, 0, Options{}))
		return m, c
	}

	tests := []struct {
		name   string
		mutate func(m *hdp.Model, c *corpus.Corpus) (*hdp.Model, corpus.Background, Options)
		want   error
	}{
		{
			name: "paths unset",
			mutate: func(m *hdp.Model, c *corpus.Corpus) (*hdp.Model, corpus.Background, Options) {
				for _, seq := range c.Sequences {
					seq.Path = nil
				}
				return m, c.Background(), Options{Iterations: 1}
			},
			want: errors.ErrPathLength,
		},
		{
			name: "no model",
			mutate: func(_ *hdp.Model, c *corpus.Corpus) (*hdp.Model, corpus.Background, Options) {
				return nil, c.Background(), Options{Iterations: 1}
			},
			want: errors.ErrInvalidModel,
		},
		{
			name: "background too short",
			mutate: func(m *hdp.Model, c *corpus.Corpus) (*hdp.Model, corpus.Background, Options) {
				return m, c.Background()[:2], Options{Iterations: 1}
			},
			want: errors.ErrInvalidModel,
		},
		{
			name: "background with zero",
			mutate: func(m *hdp.Model, _ *corpus.Corpus) (*hdp.Model, corpus.Background, Options) {
				return m, corpus.Background{0.5, 0.5, 0, 0}, Options{Iterations: 1}
			},
			want: errors.ErrInvalidModel,
		},
		{
			name: "negative iterations",
			mutate: func(m *hdp.Model, c *corpus.Corpus) (*hdp.Model, corpus.Background, Options) {
				return m, c.Background(), Options{Iterations: -1}
			},
			want: errors.ErrInvalidModel,
		},
		{
			name: "path state out of range",
			mutate: func(m *hdp.Model, c *corpus.Corpus) (*hdp.Model, corpus.Background, Options) {
				c.Sequences[1].Path[2] = m.K
				return m, c.Background(), Options{Iterations: 1}
			},
			want: errors.ErrInvalidModel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, c := ready(t)
			model, bg, opts := tt.mutate(m, c)
			err := Run(context.Background(), model, c, bg, nil, opts)
			assert.True(t, errors.Is(err, tt.want), "Run() = %v", err)
			assert.True(t, errors.IsPrecondition(err), "Run() = %v", err)
		})
	}
}

func TestObservers_StopsAtFirstError(t *testing.T) {
	var order []int
	failing := errors.New("boom")
	obs := Observers(
		ObserverFunc(func(context.Context, IterationReport) error { order = append(order, 1); return nil }),
		nil,
		ObserverFunc(func(context.Context, IterationReport) error { order = append(order, 2); return failing }),
		ObserverFunc(func(context.Context, IterationReport) error { order = append(order, 3); return nil }),
	)

	err := obs.Observe(context.Background(), IterationReport{})
	assert.Equal(t, failing, err)
	assert.Equal(t, []int{1, 2}, order)
}
