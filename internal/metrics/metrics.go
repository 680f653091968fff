// Package metrics exports sampler progress as Prometheus metrics.
//
// A [Recorder] is an engine observer: it updates its gauges and counters
// from every iteration report. Metrics live on a registry owned by the
// recorder, so several recorders can exist in one process (tests, repeated
// runs) without colliding on the default registry.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Iron-Ham/ihmm/internal/engine"
)

const (
	namespace = "ihmm"
	subsystem = "sampler"
)

// Recorder holds the sampler metrics.
type Recorder struct {
	registry *prometheus.Registry

	// States is the instantiated state count after the last iteration.
	States prometheus.Gauge
	// Alpha and Gamma are the current concentrations.
	Alpha prometheus.Gauge
	Gamma prometheus.Gauge
	// Residual is the beta mass not yet assigned to a state.
	Residual prometheus.Gauge

	Iterations prometheus.Counter
	Births     prometheus.Counter
	Pruned     prometheus.Counter

	// IterationSeconds measures the wall time of one outer iteration.
	IterationSeconds prometheus.Histogram
}

// NewRecorder creates a recorder on a fresh registry. runID, when set, is
// attached to every metric as a constant label.
func NewRecorder(runID string) *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	var labels prometheus.Labels
	if runID != "" {
		labels = prometheus.Labels{"run_id": runID}
	}
	gauge := func(name, help string) prometheus.Gauge {
		return f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, ConstLabels: labels,
		})
	}
	counter := func(name, help string) prometheus.Counter {
		return f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, ConstLabels: labels,
		})
	}

	return &Recorder{
		registry:   reg,
		States:     gauge("states", "Instantiated hidden states after the last iteration."),
		Alpha:      gauge("alpha", "Current transition concentration."),
		Gamma:      gauge("gamma", "Current top-level concentration."),
		Residual:   gauge("beta_residual", "Beta mass reserved for states not yet created."),
		Iterations: counter("iterations_total", "Completed outer iterations."),
		Births:     counter("births_total", "States created during path resampling."),
		Pruned:     counter("pruned_total", "Empty states removed after merging counts."),
		IterationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "iteration_duration_seconds",
			Help:        "Wall time of one outer iteration.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.001, 2, 16),
		}),
	}
}

// Observe records one iteration report.
func (r *Recorder) Observe(_ context.Context, report engine.IterationReport) error {
	r.States.Set(float64(report.States))
	r.Alpha.Set(report.Alpha)
	r.Gamma.Set(report.Gamma)
	r.Residual.Set(report.Residual)
	r.Iterations.Inc()
	r.Births.Add(float64(report.Births))
	r.Pruned.Add(float64(report.Pruned))
	r.IterationSeconds.Observe(report.Duration.Seconds())
	return nil
}

// Registry returns the registry holding the recorder's metrics.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the recorder's metrics in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
