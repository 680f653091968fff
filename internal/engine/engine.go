// Package engine runs beam-sampling inference over a corpus.
//
// Every outer iteration builds a transition table from the model, resamples
// the path of every sequence on the worker pool, commits the states born
// during the pass, merges the per-worker counts, prunes empty states and,
// on the configured cadence, resamples beta and the concentrations.
//
// Table construction, merge, pruning and resampling run on the calling
// goroutine. Each sequence gets its own child stream, drawn from the model
// stream in corpus order before the workers start, so a single-worker run
// is reproducible from the seed.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/Iron-Ham/ihmm/internal/beam"
	"github.com/Iron-Ham/ihmm/internal/corpus"
	"github.com/Iron-Ham/ihmm/internal/dispatch"
	"github.com/Iron-Ham/ihmm/internal/errors"
	"github.com/Iron-Ham/ihmm/internal/hdp"
	"github.com/Iron-Ham/ihmm/internal/hyper"
	"github.com/Iron-Ham/ihmm/internal/logging"
	"github.com/Iron-Ham/ihmm/internal/rng"
	"github.com/Iron-Ham/ihmm/internal/table"
)

// Default option values.
const (
	DefaultIterations   = 1000
	DefaultWorkers      = 8
	DefaultHyperEvery   = 1
	DefaultWarmupSweeps = 10
)

// Options controls a run.
type Options struct {
	// Iterations is the number of outer iterations.
	Iterations int
	// Workers is the size of the worker pool.
	Workers int
	// HyperEvery resamples beta and the concentrations every HyperEvery
	// iterations. Zero disables resampling.
	HyperEvery int
	// HyperIterations is the number of inner Gibbs rounds per resample.
	HyperIterations int
	// EmissionStrength is the prior weight of the background emission.
	// Zero selects the alphabet size.
	EmissionStrength float64
	// Hyper configures concentration resampling. Unset priors are taken
	// from the model.
	Hyper hyper.Sampler
	// Logger receives run records. Nil discards them.
	Logger *logging.Logger
}

func (o Options) sampler(m *hdp.Model) hyper.Sampler {
	s := hyper.FromModel(m, o.HyperIterations)
	if o.Hyper.AlphaPrior.Valid() {
		s.AlphaPrior = o.Hyper.AlphaPrior
	}
	if o.Hyper.GammaPrior.Valid() {
		s.GammaPrior = o.Hyper.GammaPrior
	}
	if o.Hyper.Iterations > 0 {
		s.Iterations = o.Hyper.Iterations
	}
	s.FixAlpha, s.FixGamma = o.Hyper.FixAlpha, o.Hyper.FixGamma
	return s
}

// Initialize assigns random paths, draws unset concentrations and runs
// sweeps rounds of beta and hyperparameter resampling.
func Initialize(m *hdp.Model, c *corpus.Corpus, sweeps int, opts Options) error {
	log := logging.OrNop(opts.Logger).WithPhase("init")

	if err := m.Initialize(c); err != nil {
		return err
	}
	log.Debug("paths initialized", "states", m.K, "alpha", m.Alpha, "gamma", m.Gamma)

	hs := opts.sampler(m)
	wlog := logging.OrNop(opts.Logger).WithPhase("warmup")
	for i := 0; i < sweeps; i++ {
		tables := m.ResampleBeta()
		if err := hs.Apply(m, tables); err != nil {
			return err
		}
		wlog.Debug("warm-up sweep", "sweep", i, "tables", tables, "alpha", m.Alpha, "gamma", m.Gamma)
	}
	log.Info("model initialized", "states", m.K, "alpha", m.Alpha, "gamma", m.Gamma, "warmup_sweeps", sweeps)
	return nil
}

// Run performs opts.Iterations iterations, mutating m and every sequence
// path in place. obs may be nil. On success every path has its sequence's
// length and uses states below m.K.
func Run(ctx context.Context, m *hdp.Model, c *corpus.Corpus, bg corpus.Background, obs Observer, opts Options) error {
	if err := checkPreconditions(m, c, bg, opts); err != nil {
		return err
	}
	log := logging.OrNop(opts.Logger).WithPhase("sample")
	hs := opts.sampler(m)

	pool := dispatch.NewPool(dispatch.WithWorkers(opts.Workers))
	lengths := make([]int, c.Len())
	for i, seq := range c.Sequences {
		lengths[i] = seq.Len()
	}
	parts := dispatch.Partition(lengths, pool.Workers())
	log.Debug("run started", "iterations", opts.Iterations, "workers", pool.Workers(), "sequences", c.Len(), "symbols", c.TotalLength())

	for iter := 0; iter < opts.Iterations; iter++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w before iteration %d: %w", errors.ErrCanceled, iter, err)
		}
		started := time.Now()
		ilog := log.WithIteration(iter)

		births, err := sweep(ctx, m, c, bg, pool, parts, opts)
		if err != nil {
			var samplerErr *errors.SamplerError
			if errors.As(err, &samplerErr) && samplerErr.Iteration < 0 {
				samplerErr.WithIteration(iter)
			}
			ilog.Error("iteration failed", "error", err.Error())
			return err
		}

		pruned := m.Prune(c)
		ilog.Debug("pruned", "states", m.K, "pruned", pruned)

		if opts.HyperEvery > 0 && (iter+1)%opts.HyperEvery == 0 {
			tables := m.ResampleBeta()
			if err := hs.Apply(m, tables); err != nil {
				return err
			}
			ilog.Debug("hyperparameters resampled", "tables", tables)
		}

		report := IterationReport{
			Iteration: iter,
			States:    m.K,
			Births:    births,
			Pruned:    pruned,
			Alpha:     m.Alpha,
			Gamma:     m.Gamma,
			Residual:  m.Residual(),
			Duration:  time.Since(started),
		}
		ilog.Info("iteration complete",
			"states", report.States,
			"births", report.Births,
			"pruned", report.Pruned,
			"alpha", report.Alpha,
			"gamma", report.Gamma,
			"duration_ms", report.Duration.Milliseconds(),
		)
		if obs != nil {
			if err := obs.Observe(ctx, report); err != nil {
				return errors.Wrapf(err, "observer at iteration %d", iter)
			}
		}
	}
	return nil
}

// sweep resamples every path once and commits births and counts to m. It
// returns the number of states born.
func sweep(ctx context.Context, m *hdp.Model, c *corpus.Corpus, bg corpus.Background,
	pool *dispatch.Pool, parts [][]int, opts Options) (int, error) {
	tb, err := table.Build(m, bg, opts.EmissionStrength)
	if err != nil {
		return 0, err
	}

	streams := make([]*rng.Stream, c.Len())
	for i := range streams {
		streams[i] = m.Stream.Child()
	}
	samplers := make([]*beam.Sampler, len(parts))
	buffers := make([]*hdp.Counts, len(parts))
	for w := range parts {
		samplers[w] = beam.New(tb)
		buffers[w] = hdp.NewCounts(tb.Base(), m.Symbols)
	}

	err = pool.Run(ctx, parts, func(_ context.Context, w, i int) error {
		return samplers[w].Sample(c.Sequences[i], streams[i], buffers[w])
	})
	if err != nil {
		return 0, err
	}

	ext := tb.Snapshot()
	m.Extend(ext.Beta, ext.Residual)

	counts := hdp.NewCounts(m.K, m.Symbols)
	for _, buf := range buffers {
		if err := counts.Merge(buf); err != nil {
			return 0, err
		}
	}
	if err := m.SetCounts(counts); err != nil {
		return 0, err
	}
	return ext.Births(), nil
}

func checkPreconditions(m *hdp.Model, c *corpus.Corpus, bg corpus.Background, opts Options) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if m == nil {
		return errors.NewModelError("no model", errors.ErrInvalidModel)
	}
	if err := m.Validate(); err != nil {
		return err
	}
	if c.Size() != m.Symbols {
		return errors.NewModelError(
			fmt.Sprintf("model has %d symbols, corpus alphabet has %d", m.Symbols, c.Size()),
			errors.ErrInvalidModel,
		).WithField("symbols")
	}
	if err := m.CheckPaths(c); err != nil {
		return err
	}
	if len(bg) != m.Symbols {
		return errors.NewModelError(
			fmt.Sprintf("background has %d symbols, model has %d", len(bg), m.Symbols),
			errors.ErrInvalidModel,
		).WithField("background")
	}
	for s, p := range bg {
		if !(p > 0) {
			return errors.NewModelError(fmt.Sprintf("background[%d] = %g", s, p), errors.ErrInvalidModel).WithField("background")
		}
	}
	if opts.Iterations < 0 {
		return errors.NewModelError(fmt.Sprintf("iteration count %d", opts.Iterations), errors.ErrInvalidModel).WithField("iterations")
	}
	return nil
}
