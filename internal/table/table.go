// Package table builds the per-iteration transition view the beam sampler
// reads from.
//
// A [Table] is built from an [hdp.Model] at the start of every iteration and
// discarded after the merge. The rows of the states that existed at build
// time are immutable: a dense probability matrix for point lookups plus, per
// row, the destinations sorted by decreasing probability so that the
// states above a slice threshold are a prefix.
//
// States born during the iteration live in an [Extension] snapshot. A birth
// copies the current snapshot, appends the new state and publishes the copy
// atomically, so readers never lock. Births are serialized by a single mutex.
//
// The start of a sequence and every born state transition with pure prior
// weights: prob(i→j) = beta[j].
package table

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/ihmm/internal/corpus"
	"github.com/Iron-Ham/ihmm/internal/errors"
	"github.com/Iron-Ham/ihmm/internal/hdp"
	"github.com/Iron-Ham/ihmm/internal/rng"
)

// Start is the predecessor index of the first position of a sequence.
const Start = -1

// Entry is a destination state with its transition probability.
type Entry struct {
	State int
	Prob  float64
}

// Extension is an immutable snapshot of the state space.
type Extension struct {
	// K is the number of instantiated states, base and born.
	K int
	// Residual is the beta mass not yet assigned to any state.
	Residual float64
	// Beta holds the weights of the born states; Beta[i] belongs to state base+i.
	Beta []float64
	// Born lists the born states by decreasing weight.
	Born []Entry
}

// Births returns the number of states born since the table was built.
func (e *Extension) Births() int {
	return len(e.Beta)
}

// Table is the transition and emission view of one iteration. It is safe
// for concurrent use.
type Table struct {
	base    int
	symbols int
	alpha   float64
	gamma   float64

	beta  []float64 // base weights
	probs []float64 // base×base, row-major
	scale []float64 // alpha/(rowTotal+alpha) per base row
	rows  [][]Entry // base destinations by decreasing probability
	prior []Entry   // base states by decreasing beta

	emit []float64 // base×symbols
	bg   corpus.Background

	mu  sync.Mutex
	ext atomic.Pointer[Extension]
}

// Build derives a table from the model. strength is the prior weight of the
// background emission; values <= 0 select the alphabet size.
func Build(m *hdp.Model, bg corpus.Background, strength float64) (*Table, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if len(bg) != m.Symbols {
		return nil, errors.NewModelError(
			fmt.Sprintf("background has %d symbols, model has %d", len(bg), m.Symbols),
			errors.ErrInvalidModel,
		).WithField("background")
	}
	if strength <= 0 {
		strength = float64(m.Symbols)
	}

	k := m.K
	t := &Table{
		base:    k,
		symbols: m.Symbols,
		alpha:   m.Alpha,
		gamma:   m.Gamma,
		beta:    append([]float64(nil), m.Beta[:k]...),
		probs:   make([]float64, k*k),
		scale:   make([]float64, k),
		rows:    make([][]Entry, k),
		prior:   make([]Entry, k),
		emit:    make([]float64, k*m.Symbols),
		bg:      bg,
	}

	for i := 0; i < k; i++ {
		counts := m.Counts.Trans.Row(i)
		denom := float64(m.Counts.Trans.RowSum(i)) + m.Alpha
		t.scale[i] = m.Alpha / denom

		row := make([]Entry, k)
		for j := 0; j < k; j++ {
			p := (float64(counts[j]) + m.Alpha*m.Beta[j]) / denom
			t.probs[i*k+j] = p
			row[j] = Entry{State: j, Prob: p}
		}
		sortByProb(row)
		t.rows[i] = row

		t.prior[i] = Entry{State: i, Prob: m.Beta[i]}

		emitted := m.Counts.Emit.Row(i)
		etotal := float64(m.Counts.Emit.RowSum(i)) + strength
		for s := 0; s < m.Symbols; s++ {
			t.emit[i*m.Symbols+s] = (float64(emitted[s]) + strength*bg[s]) / etotal
		}
	}
	sortByProb(t.prior)

	t.ext.Store(&Extension{K: k, Residual: m.Residual()})
	return t, nil
}

func sortByProb(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		switch {
		case a.Prob > b.Prob:
			return -1
		case a.Prob < b.Prob:
			return 1
		default:
			return 0
		}
	})
}

// Base returns the number of states the table was built with.
func (t *Table) Base() int { return t.base }

// Symbols returns the alphabet size.
func (t *Table) Symbols() int { return t.symbols }

// Snapshot returns the current state-space snapshot.
func (t *Table) Snapshot() *Extension {
	return t.ext.Load()
}

// Scale returns the factor applied to beta for transitions out of i into
// a state it has never visited. Start and born rows have scale 1.
func (t *Table) Scale(i int) float64 {
	if i < 0 || i >= t.base {
		return 1
	}
	return t.scale[i]
}

// weight returns beta[j] under ext.
func (t *Table) weight(ext *Extension, j int) float64 {
	if j < t.base {
		return t.beta[j]
	}
	return ext.Beta[j-t.base]
}

// Prob returns prob(i→j) under ext. i may be Start.
func (t *Table) Prob(ext *Extension, i, j int) float64 {
	if i >= 0 && i < t.base && j < t.base {
		return t.probs[i*t.base+j]
	}
	return t.Scale(i) * t.weight(ext, j)
}

// Escape returns the probability mass i sends to states not yet created.
func (t *Table) Escape(ext *Extension, i int) float64 {
	return t.Scale(i) * ext.Residual
}

// Emission returns emit(k, s). Born states emit with the background.
func (t *Table) Emission(k int, s uint8) float64 {
	if k < t.base {
		return t.emit[k*t.symbols+int(s)]
	}
	return t.bg[s]
}

// Above calls fn for every destination j with prob(i→j) > u under ext.
func (t *Table) Above(ext *Extension, i int, u float64, fn func(j int, p float64)) {
	scale := t.Scale(i)
	entries := t.prior
	if i >= 0 && i < t.base {
		entries = t.rows[i]
	}
	for _, e := range entries {
		if e.Prob <= u {
			break
		}
		fn(e.State, e.Prob)
	}
	for _, e := range ext.Born {
		p := scale * e.Prob
		if p <= u {
			break
		}
		fn(e.State, p)
	}
}

// Grow instantiates states until scale·residual <= u, the condition under
// which no uncreated state can pass the slice threshold u from a
// predecessor with the given scale. It re-checks against the latest
// snapshot under the lock, so concurrent callers never over-birth. The
// stick-breaking draws come from s.
func (t *Table) Grow(scale, u float64, s *rng.Stream) *Extension {
	if ext := t.ext.Load(); scale*ext.Residual <= u {
		return ext
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	ext := t.ext.Load()
	if scale*ext.Residual <= u {
		return ext
	}
	next := &Extension{
		K:        ext.K,
		Residual: ext.Residual,
		Beta:     slices.Clone(ext.Beta),
		Born:     slices.Clone(ext.Born),
	}
	for scale*next.Residual > u {
		born, rest := hdp.SplitResidual(next.Residual, t.gamma, s)
		if rest >= next.Residual {
			// The split no longer moves mass at this magnitude.
			break
		}
		next.Beta = append(next.Beta, born)
		next.Born = insertByProb(next.Born, Entry{State: next.K, Prob: born})
		next.K++
		next.Residual = rest
	}
	t.ext.Store(next)
	return next
}

func insertByProb(entries []Entry, e Entry) []Entry {
	i, _ := slices.BinarySearchFunc(entries, e, func(a, b Entry) int {
		if a.Prob >= b.Prob {
			return -1
		}
		return 1
	})
	return slices.Insert(entries, i, e)
}
