package engine

import (
	"context"
	"time"
)

// IterationReport summarizes one outer iteration.
type IterationReport struct {
	Iteration int           `json:"iteration"`
	States    int           `json:"states"`
	Births    int           `json:"births"`
	Pruned    int           `json:"pruned"`
	Alpha     float64       `json:"alpha"`
	Gamma     float64       `json:"gamma"`
	Residual  float64       `json:"residual"`
	Duration  time.Duration `json:"duration"`
}

// Observer receives a report after every iteration. A non-nil error aborts
// the run.
type Observer interface {
	Observe(ctx context.Context, report IterationReport) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, report IterationReport) error

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, report IterationReport) error {
	return f(ctx, report)
}

// Observers fans a report out to every non-nil observer in order, stopping
// at the first error.
func Observers(obs ...Observer) Observer {
	return ObserverFunc(func(ctx context.Context, report IterationReport) error {
		for _, o := range obs {
			if o == nil {
				continue
			}
			if err := o.Observe(ctx, report); err != nil {
				return err
			}
		}
		return nil
	})
}
