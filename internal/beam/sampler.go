// Package beam resamples the hidden-state path of one sequence with the
// beam sampler.
//
// For every position t a slice threshold u(t) is drawn uniformly below the
// probability of the transition the current path takes into t. The forward
// filter then only follows transitions whose probability exceeds u(t):
//
//	F(t, j) = emit(j, x_t) · Σ_i F(t-1, i) · 1[prob(i→j) > u(t)]
//
// which bounds the work per position while leaving the sampler exact. When
// the mass a predecessor sends to uncreated states exceeds u(t), states are
// born through the shared [table.Table] before the step is taken. The
// backward pass samples the terminal state from F(T-1, ·) and then
// state(t) ∝ F(t, k) · 1[prob(k→state(t+1)) > u(t+1)].
package beam

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/Iron-Ham/ihmm/internal/corpus"
	"github.com/Iron-Ham/ihmm/internal/errors"
	"github.com/Iron-Ham/ihmm/internal/hdp"
	"github.com/Iron-Ham/ihmm/internal/rng"
	"github.com/Iron-Ham/ihmm/internal/table"
)

// Sampler resamples sequences against one table. It keeps scratch buffers
// between calls and is not safe for concurrent use; run one per worker.
type Sampler struct {
	table *table.Table

	slice []float64

	// Forward weights of position t are states[off[t]:off[t+1]] with the
	// matching weights.
	states  []int
	weights []float64
	off     []int

	acc     []float64
	touched []int
	back    []float64
}

// New creates a sampler reading from t.
func New(t *table.Table) *Sampler {
	return &Sampler{table: t}
}

// Sample draws a new path for seq, stores it in seq.Path and adds the path's
// counts to counts. seq.Path must hold a path valid for the table's base
// states. Stochastic draws, births included, come from s.
func (b *Sampler) Sample(seq *corpus.Sequence, s *rng.Stream, counts *hdp.Counts) error {
	n := seq.Len()
	if n == 0 {
		return errors.NewCorpusError("sequence has no symbols", errors.ErrEmptySequence).WithSequence(-1, seq.Name)
	}
	if len(seq.Path) != n {
		return errors.NewCorpusError(fmt.Sprintf("path length %d for %d symbols", len(seq.Path), n), errors.ErrPathLength).WithSequence(-1, seq.Name)
	}
	for t, k := range seq.Path {
		if k < 0 || k >= b.table.Base() {
			return errors.NewSamplerError(fmt.Sprintf("path state %d outside %d states", k, b.table.Base()), errors.ErrInvalidModel).WithPosition(t)
		}
	}

	b.drawSlice(seq.Path, s)
	if err := b.forward(seq.Symbols, s); err != nil {
		return err
	}
	if err := b.backward(seq.Path, s); err != nil {
		return err
	}
	counts.Observe(seq.Path, seq.Symbols)
	return nil
}

// drawSlice sets u(t) uniformly in (0, prob(path[t-1]→path[t])).
func (b *Sampler) drawSlice(path []int, s *rng.Stream) {
	b.slice = resize(b.slice, len(path))
	ext := b.table.Snapshot()
	prev := table.Start
	for t, k := range path {
		b.slice[t] = s.Slice(b.table.Prob(ext, prev, k))
		prev = k
	}
}

func (b *Sampler) forward(symbols []uint8, s *rng.Stream) error {
	n := len(symbols)
	b.states = b.states[:0]
	b.weights = b.weights[:0]
	b.off = append(b.off[:0], 0)

	for t := 0; t < n; t++ {
		u := b.slice[t]

		// Grow the state space when an uncreated state could pass u.
		maxScale := 1.0
		if t > 0 {
			maxScale = 0
			for _, i := range b.states[b.off[t-1]:b.off[t]] {
				maxScale = max(maxScale, b.table.Scale(i))
			}
		}
		ext := b.table.Grow(maxScale, u, s)
		if len(b.acc) < ext.K {
			b.acc = append(b.acc, make([]float64, ext.K-len(b.acc))...)
		}

		b.touched = b.touched[:0]
		pass := func(w float64) func(j int, p float64) {
			return func(j int, _ float64) {
				if b.acc[j] == 0 {
					b.touched = append(b.touched, j)
				}
				b.acc[j] += w
			}
		}
		if t == 0 {
			b.table.Above(ext, table.Start, u, pass(1))
		} else {
			lo, hi := b.off[t-1], b.off[t]
			for idx := lo; idx < hi; idx++ {
				b.table.Above(ext, b.states[idx], u, pass(b.weights[idx]))
			}
		}

		total := 0.0
		start := len(b.states)
		for _, j := range b.touched {
			w := b.acc[j] * b.table.Emission(j, symbols[t])
			b.acc[j] = 0
			if w > 0 {
				b.states = append(b.states, j)
				b.weights = append(b.weights, w)
				total += w
			}
		}
		if total <= 0 {
			return errors.NewSamplerError("forward pass", errors.ErrEmptyActiveSet).WithPosition(t)
		}
		// Rescale so the weights of every position sum to one.
		floats.Scale(1/total, b.weights[start:])
		b.off = append(b.off, len(b.states))
	}
	return nil
}

func (b *Sampler) backward(path []int, s *rng.Stream) error {
	n := len(path)
	ext := b.table.Snapshot()

	last := b.pick(n-1, s, func(int) bool { return true })
	if last < 0 {
		return errors.NewSamplerError("backward pass", errors.ErrEmptyActiveSet).WithPosition(n - 1)
	}
	path[n-1] = last

	for t := n - 2; t >= 0; t-- {
		next, u := path[t+1], b.slice[t+1]
		k := b.pick(t, s, func(k int) bool { return b.table.Prob(ext, k, next) > u })
		if k < 0 {
			return errors.NewSamplerError("backward pass", errors.ErrEmptyActiveSet).WithPosition(t)
		}
		path[t] = k
	}
	return nil
}

// pick draws a state of position t proportionally to its forward weight,
// restricted to the states admitted by keep.
func (b *Sampler) pick(t int, s *rng.Stream, keep func(k int) bool) int {
	lo, hi := b.off[t], b.off[t+1]
	b.back = resize(b.back, hi-lo)
	for idx := lo; idx < hi; idx++ {
		w := 0.0
		if keep(b.states[idx]) {
			w = b.weights[idx]
		}
		b.back[idx-lo] = w
	}
	i := s.Categorical(b.back)
	if i < 0 {
		return -1
	}
	return b.states[lo+i]
}

func resize(buf []float64, n int) []float64 {
	if cap(buf) < n {
		return make([]float64, n)
	}
	return buf[:n]
}
