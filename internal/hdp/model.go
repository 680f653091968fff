// Package hdp holds the persistent state of a hierarchical Dirichlet process
// hidden Markov model.
//
// A [Model] owns the instantiated state count K, the stick-breaking weights
// beta (K entries plus the residual mass reserved for states not yet
// created), the two concentration parameters with their gamma priors, the
// path counts and the model's pseudo-random stream.
//
// State indices are dense in [0, K). They are stable while a sampling
// iteration runs and births append new states at the end. [Model.Prune]
// renumbers the surviving states, so any index held across a prune is
// invalid afterward.
package hdp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/Iron-Ham/ihmm/internal/corpus"
	"github.com/Iron-Ham/ihmm/internal/errors"
	"github.com/Iron-Ham/ihmm/internal/rng"
)

// simplexTolerance bounds how far sum(beta) may drift from 1.
const simplexTolerance = 1e-6

// Prior is the shape/rate pair of a gamma prior over a concentration.
type Prior struct {
	Shape float64 `json:"shape"`
	Rate  float64 `json:"rate"`
}

// Valid reports whether both parameters are positive and finite.
func (p Prior) Valid() bool {
	return p.Shape > 0 && p.Rate > 0 && !math.IsInf(p.Shape, 0) && !math.IsInf(p.Rate, 0)
}

// Mean returns Shape/Rate.
func (p Prior) Mean() float64 {
	return p.Shape / p.Rate
}

// Default priors.
var (
	DefaultAlphaPrior = Prior{Shape: 6, Rate: 15}
	DefaultGammaPrior = Prior{Shape: 16, Rate: 4}
)

// Params describes a new model. Alpha and Gamma values of zero mean unset;
// Initialize draws them from their priors.
type Params struct {
	States     int
	Symbols    int
	Alpha      float64
	Gamma      float64
	AlphaPrior Prior
	GammaPrior Prior
}

// Model is the stick-breaking state of the sampler.
type Model struct {
	K          int
	Symbols    int
	Beta       []float64
	Alpha      float64
	Gamma      float64
	AlphaPrior Prior
	GammaPrior Prior
	Counts     *Counts
	Stream     *rng.Stream
}

// New creates a model with uniform beta over p.States+1 entries and zero
// counts. It consumes no draws from stream.
func New(p Params, stream *rng.Stream) (*Model, error) {
	if p.States < 1 {
		return nil, errors.NewModelError(fmt.Sprintf("need at least one state, got %d", p.States), errors.ErrInvalidModel).WithField("states")
	}
	if p.Symbols < 1 {
		return nil, errors.NewModelError(fmt.Sprintf("need at least one symbol, got %d", p.Symbols), errors.ErrInvalidModel).WithField("symbols")
	}
	if !p.AlphaPrior.Valid() {
		return nil, errors.NewModelError(fmt.Sprintf("alpha prior %+v", p.AlphaPrior), errors.ErrInvalidHyperparameter).WithField("alpha_prior")
	}
	if !p.GammaPrior.Valid() {
		return nil, errors.NewModelError(fmt.Sprintf("gamma prior %+v", p.GammaPrior), errors.ErrInvalidHyperparameter).WithField("gamma_prior")
	}
	if p.Alpha < 0 || p.Gamma < 0 {
		return nil, errors.NewModelError(fmt.Sprintf("negative concentration alpha=%g gamma=%g", p.Alpha, p.Gamma), errors.ErrInvalidHyperparameter).WithField("alpha")
	}
	if stream == nil {
		return nil, errors.NewModelError("no random stream", errors.ErrInvalidModel).WithField("stream")
	}

	beta := make([]float64, p.States+1)
	for i := range beta {
		beta[i] = 1 / float64(len(beta))
	}
	return &Model{
		K:          p.States,
		Symbols:    p.Symbols,
		Beta:       beta,
		Alpha:      p.Alpha,
		Gamma:      p.Gamma,
		AlphaPrior: p.AlphaPrior,
		GammaPrior: p.GammaPrior,
		Counts:     NewCounts(p.States, p.Symbols),
		Stream:     stream,
	}, nil
}

// Residual returns the beta mass reserved for states not yet created.
func (m *Model) Residual() float64 {
	return m.Beta[m.K]
}

// SplitResidual performs one stick-breaking step on residual: v ~ Beta(1,
// gamma), the new state takes v·residual and the rest stays in reserve.
func SplitResidual(residual, gamma float64, s *rng.Stream) (born, rest float64) {
	v := s.Beta(1, gamma)
	born = v * residual
	return born, residual - born
}

// Extend appends states born elsewhere: born holds their weights in index
// order and residual the reserve mass left after the last of them.
func (m *Model) Extend(born []float64, residual float64) {
	if len(born) == 0 {
		return
	}
	m.Beta = append(m.Beta[:m.K], born...)
	m.Beta = append(m.Beta, residual)
	m.K += len(born)
	m.Counts.Grow(m.K)
}

// Initialize assigns every corpus position a state uniformly in [0, K),
// recounts, draws unset concentrations from their priors and prunes the
// states the random assignment left empty.
func (m *Model) Initialize(c *corpus.Corpus) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Size() != m.Symbols {
		return errors.NewModelError(
			fmt.Sprintf("model has %d symbols, corpus alphabet has %d", m.Symbols, c.Size()),
			errors.ErrInvalidModel,
		).WithField("symbols")
	}

	for _, seq := range c.Sequences {
		seq.Path = make([]int, seq.Len())
		for t := range seq.Path {
			seq.Path[t] = m.Stream.IntN(m.K)
		}
	}
	if m.Alpha <= 0 {
		m.Alpha = m.Stream.Gamma(m.AlphaPrior.Shape, m.AlphaPrior.Rate)
	}
	if m.Gamma <= 0 {
		m.Gamma = m.Stream.Gamma(m.GammaPrior.Shape, m.GammaPrior.Rate)
	}
	m.Recount(c)
	m.Prune(c)
	return nil
}

// Recount rebuilds every count from the corpus paths.
func (m *Model) Recount(c *corpus.Corpus) {
	m.Counts.Grow(m.K)
	m.Counts.Recount(c)
}

// SetCounts replaces the counts, which may cover fewer than K states.
func (m *Model) SetCounts(counts *Counts) error {
	if counts.States() > m.K {
		return errors.NewModelError(
			fmt.Sprintf("counts cover %d states, model has %d", counts.States(), m.K),
			errors.ErrInvalidModel,
		).WithField("counts")
	}
	counts.Grow(m.K)
	m.Counts = counts
	return nil
}

// Prune removes every state with zero occupancy, renumbers the survivors
// contiguously, rewrites the corpus paths and renormalizes beta over the
// survivors and the residual. It returns the number of states removed.
func (m *Model) Prune(c *corpus.Corpus) int {
	m.Counts.Grow(m.K)
	occ := m.Counts.Occupancy()

	keep := make([]int, 0, m.K)
	remap := make([]int, m.K)
	for k, n := range occ[:m.K] {
		remap[k] = -1
		if n > 0 {
			remap[k] = len(keep)
			keep = append(keep, k)
		}
	}
	removed := m.K - len(keep)
	if removed == 0 {
		return 0
	}

	for _, seq := range c.Sequences {
		for t, s := range seq.Path {
			seq.Path[t] = remap[s]
		}
	}

	beta := make([]float64, len(keep)+1)
	for i, k := range keep {
		beta[i] = m.Beta[k]
	}
	beta[len(keep)] = m.Beta[m.K]
	if total := floats.Sum(beta); total > 0 {
		floats.Scale(1/total, beta)
	}

	m.Counts = m.Counts.selectStates(keep)
	m.Beta = beta
	m.K = len(keep)
	return removed
}

// RowTotals returns the outgoing transition count of every state.
func (m *Model) RowTotals() []int {
	totals := make([]int, m.K)
	for k := range totals {
		totals[k] = m.Counts.Trans.RowSum(k)
	}
	return totals
}

// StartTotal returns the number of sequence starts.
func (m *Model) StartTotal() int {
	n := 0
	for _, v := range m.Counts.Start {
		n += v
	}
	return n
}

// ResampleBeta draws the auxiliary table counts of every transition
// restaurant and then beta ~ Dirichlet(tables + starts, gamma). Starts are
// drawn from beta directly, so each start counts as one table. It returns
// the number of transition tables.
func (m *Model) ResampleBeta() int {
	params := make([]float64, m.K+1)
	tables := 0
	for i := 0; i < m.K; i++ {
		for j, n := range m.Counts.Trans.Row(i) {
			if n == 0 {
				continue
			}
			ab := m.Alpha * m.Beta[j]
			t := 1
			for l := 1; l < n; l++ {
				if m.Stream.Bernoulli(ab / (ab + float64(l))) {
					t++
				}
			}
			params[j] += float64(t)
			tables += t
		}
	}
	for j := 0; j < m.K; j++ {
		params[j] += float64(m.Counts.Start[j])
	}
	params[m.K] = m.Gamma

	m.Beta = m.Stream.Dirichlet(params, m.Beta[:m.K+1])
	return tables
}

// Validate checks the structural invariants of the model.
func (m *Model) Validate() error {
	invalid := func(field, format string, args ...any) error {
		return errors.NewModelError(fmt.Sprintf(format, args...), errors.ErrInvalidModel).WithField(field)
	}

	if m.K < 0 {
		return invalid("k", "negative state count %d", m.K)
	}
	if m.Symbols < 1 {
		return invalid("symbols", "symbol count %d", m.Symbols)
	}
	if len(m.Beta) != m.K+1 {
		return invalid("beta", "beta has %d entries for %d states", len(m.Beta), m.K)
	}
	for i, b := range m.Beta {
		if b < 0 || math.IsNaN(b) || math.IsInf(b, 0) {
			return invalid("beta", "beta[%d] = %g", i, b)
		}
	}
	if sum := floats.Sum(m.Beta); math.Abs(sum-1) > simplexTolerance {
		return invalid("beta", "beta sums to %g", sum)
	}
	if !(m.Alpha > 0) || !(m.Gamma > 0) {
		return errors.NewModelError(
			fmt.Sprintf("alpha=%g gamma=%g", m.Alpha, m.Gamma), errors.ErrInvalidHyperparameter,
		).WithField("alpha")
	}
	if !m.AlphaPrior.Valid() || !m.GammaPrior.Valid() {
		return errors.NewModelError("invalid gamma prior", errors.ErrInvalidHyperparameter).WithField("prior")
	}
	if m.Counts == nil {
		return invalid("counts", "missing counts")
	}
	if m.Counts.States() != m.K || m.Counts.Trans.Rows() != m.K || m.Counts.Trans.Cols() != m.K {
		return invalid("counts", "transition counts are %dx%d for %d states", m.Counts.Trans.Rows(), m.Counts.Trans.Cols(), m.K)
	}
	if m.Counts.Emit.Rows() != m.K || m.Counts.Emit.Cols() != m.Symbols {
		return invalid("counts", "emission counts are %dx%d, want %dx%d", m.Counts.Emit.Rows(), m.Counts.Emit.Cols(), m.K, m.Symbols)
	}
	if m.Stream == nil {
		return invalid("stream", "missing random stream")
	}
	return nil
}

// CheckPaths verifies that every corpus path has the right length, uses only
// states below K and agrees with the model counts.
func (m *Model) CheckPaths(c *corpus.Corpus) error {
	for i, seq := range c.Sequences {
		if len(seq.Path) != seq.Len() {
			return errors.NewCorpusError(
				fmt.Sprintf("path length %d for %d symbols", len(seq.Path), seq.Len()), errors.ErrPathLength,
			).WithSequence(i, seq.Name)
		}
		for t, s := range seq.Path {
			if s < 0 || s >= m.K {
				return errors.NewModelError(
					fmt.Sprintf("sequence %d position %d uses state %d of %d", i, t, s, m.K), errors.ErrInvalidModel,
				).WithField("path")
			}
		}
	}

	want := NewCounts(m.K, m.Symbols)
	want.Recount(c)
	for k := 0; k < m.K; k++ {
		if want.Start[k] != m.Counts.Start[k] || want.Emit.RowSum(k) != m.Counts.Emit.RowSum(k) ||
			want.Trans.RowSum(k) != m.Counts.Trans.RowSum(k) {
			return errors.NewModelError(fmt.Sprintf("counts of state %d disagree with the paths", k), errors.ErrInvalidModel).WithField("counts")
		}
	}
	return nil
}
