// Package dispatch runs the per-sequence phase of an iteration on a fixed
// worker pool.
//
// The corpus is split into disjoint parts, one per worker, balanced by
// sequence length. Every worker processes its part in order, so a worker
// owns whatever private buffer the job writes into. The first failing job
// cancels the others and its error is returned; a panicking job is
// recovered into an error wrapping [errors.ErrWorkerFault].
package dispatch

import (
	"cmp"
	"context"
	"fmt"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/ihmm/internal/errors"
)

// Job processes one item on the given worker.
type Job func(ctx context.Context, worker, item int) error

// Option configures a Pool.
type Option func(*Pool)

// WithWorkers sets the worker count. Values below one select GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(p *Pool) { p.workers = n }
}

// Pool is a fixed-size worker pool.
type Pool struct {
	workers int
}

// NewPool creates a pool.
func NewPool(opts ...Option) *Pool {
	p := &Pool{}
	for _, opt := range opts {
		opt(p)
	}
	if p.workers < 1 {
		p.workers = runtime.GOMAXPROCS(0)
	}
	return p
}

// Workers returns the pool size.
func (p *Pool) Workers() int {
	return p.workers
}

// Partition splits items 0..len(lengths)-1 into at most workers parts with
// balanced total length. Longer items are placed first, each on the least
// loaded part. Items inside a part are in increasing order. The result only
// depends on lengths and workers.
func Partition(lengths []int, workers int) [][]int {
	n := min(workers, len(lengths))
	if n < 1 {
		return nil
	}

	order := make([]int, len(lengths))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(lengths[b], lengths[a])
	})

	parts := make([][]int, n)
	load := make([]int, n)
	for _, item := range order {
		w := 0
		for i := 1; i < n; i++ {
			if load[i] < load[w] {
				w = i
			}
		}
		parts[w] = append(parts[w], item)
		load[w] += lengths[item]
	}
	for _, part := range parts {
		slices.Sort(part)
	}
	return parts
}

// Run executes job for every item of every part, one goroutine per part and
// at most Workers at once. It returns after every worker finished.
func (p *Pool) Run(ctx context.Context, parts [][]int, job Job) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for w, items := range parts {
		g.Go(func() (err error) {
			item := -1
			defer func() {
				if r := recover(); r != nil {
					err = errors.NewSamplerError(fmt.Sprintf("worker panic: %v", r), errors.ErrWorkerFault).
						WithWorker(w).WithSequence(item)
				}
			}()

			for _, item = range items {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := job(gctx, w, item); err != nil {
					var samplerErr *errors.SamplerError
					if errors.As(err, &samplerErr) {
						if samplerErr.Worker < 0 {
							samplerErr.WithWorker(w)
						}
						if samplerErr.Sequence < 0 {
							samplerErr.WithSequence(item)
						}
						return err
					}
					return errors.Wrapf(err, "worker %d, sequence %d", w, item)
				}
			}
			return nil
		})
	}

	err := g.Wait()
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return fmt.Errorf("%w: %w", errors.ErrCanceled, err)
	}
	return err
}
