package hdp

import (
	"fmt"

	"github.com/Iron-Ham/ihmm/internal/corpus"
)

// Counts holds the sufficient statistics of a set of state paths: the K×K
// transition counts, the K×symbols emission counts and the K start counts.
type Counts struct {
	Trans *Matrix
	Emit  *Matrix
	Start []int
}

// NewCounts returns zeroed counts for k states over the given symbol count.
func NewCounts(k, symbols int) *Counts {
	return &Counts{
		Trans: NewMatrix(k, k),
		Emit:  NewMatrix(k, symbols),
		Start: make([]int, k),
	}
}

// States returns the number of states the counts cover.
func (c *Counts) States() int {
	return len(c.Start)
}

// Grow extends the counts to cover at least k states.
func (c *Counts) Grow(k int) {
	if k <= len(c.Start) {
		return
	}
	c.Trans.Resize(k, k)
	c.Emit.Resize(k, c.Emit.Cols())
	c.Start = append(c.Start, make([]int, k-len(c.Start))...)
}

// Reset zeroes every count.
func (c *Counts) Reset() {
	c.Trans.Reset()
	c.Emit.Reset()
	clear(c.Start)
}

// Observe adds the transitions, emissions and start of one path. Counts grow
// to cover the largest state on the path.
func (c *Counts) Observe(path []int, symbols []uint8) {
	if len(path) == 0 {
		return
	}
	top := 0
	for _, s := range path {
		top = max(top, s)
	}
	c.Grow(top + 1)

	c.Start[path[0]]++
	c.Emit.Add(path[0], int(symbols[0]), 1)
	for t := 1; t < len(path); t++ {
		c.Trans.Add(path[t-1], path[t], 1)
		c.Emit.Add(path[t], int(symbols[t]), 1)
	}
}

// Merge adds o into c, growing c when o covers more states.
func (c *Counts) Merge(o *Counts) error {
	c.Grow(o.States())
	if err := c.Trans.AddMatrix(o.Trans); err != nil {
		return fmt.Errorf("merge transition counts: %w", err)
	}
	if err := c.Emit.AddMatrix(o.Emit); err != nil {
		return fmt.Errorf("merge emission counts: %w", err)
	}
	for k, n := range o.Start {
		c.Start[k] += n
	}
	return nil
}

// Occupancy returns, per state, the number of corpus positions assigned to
// it. Every position emits exactly once, so this is the emission row total.
func (c *Counts) Occupancy() []int {
	occ := make([]int, c.States())
	for k := range occ {
		occ[k] = c.Emit.RowSum(k)
	}
	return occ
}

// Recount rebuilds the counts from every path in the corpus.
func (c *Counts) Recount(cp *corpus.Corpus) {
	c.Reset()
	for _, seq := range cp.Sequences {
		c.Observe(seq.Path, seq.Symbols)
	}
}

// selectStates keeps the listed states, renumbered in order.
func (c *Counts) selectStates(keep []int) *Counts {
	start := make([]int, len(keep))
	for i, k := range keep {
		start[i] = c.Start[k]
	}
	return &Counts{
		Trans: c.Trans.Select(keep, keep),
		Emit:  c.Emit.Select(keep, nil),
		Start: start,
	}
}
