// Package hyper resamples the two concentration parameters of the HDP-HMM
// with the auxiliary-variable Gibbs updates of Escobar and West and Teh et
// al.
//
// alpha (the per-state transition concentration) is driven by the row
// occupancies n_k and the total transition table count M:
//
//	w_k ~ Beta(alpha+1, n_k)
//	s_k ~ Bernoulli(n_k / (n_k+alpha))
//	alpha ~ Gamma(a + M - Σs_k, b - Σlog w_k)
//
// gamma (the top-level concentration) is driven by the state count K and the
// number T of top-level draws, which are the transition tables plus the
// sequence starts:
//
//	eta ~ Beta(gamma+1, T)
//	gamma ~ π·Gamma(a+K, b-log eta) + (1-π)·Gamma(a+K-1, b-log eta)
//	π/(1-π) = (a+K-1) / (T·(b-log eta))
package hyper

import (
	"fmt"
	"math"

	"github.com/Iron-Ham/ihmm/internal/errors"
	"github.com/Iron-Ham/ihmm/internal/hdp"
	"github.com/Iron-Ham/ihmm/internal/rng"
)

// DefaultIterations is the number of inner Gibbs rounds per resample.
const DefaultIterations = 20

// Sampler holds the priors and the inner iteration count. A fixed
// concentration is returned unchanged.
type Sampler struct {
	AlphaPrior hdp.Prior
	GammaPrior hdp.Prior
	Iterations int
	FixAlpha   bool
	FixGamma   bool
}

// FromModel returns a sampler using the model's priors.
func FromModel(m *hdp.Model, iterations int) Sampler {
	return Sampler{AlphaPrior: m.AlphaPrior, GammaPrior: m.GammaPrior, Iterations: iterations}
}

// Stats are the sufficient statistics of one resample.
type Stats struct {
	// States is the instantiated state count K.
	States int
	// RowTotals holds the outgoing transition count of every state.
	RowTotals []int
	// Tables is the total transition table count.
	Tables int
	// Starts is the number of sequence starts.
	Starts int
}

// StatsOf collects the statistics of m given its transition table count.
func StatsOf(m *hdp.Model, tables int) Stats {
	return Stats{States: m.K, RowTotals: m.RowTotals(), Tables: tables, Starts: m.StartTotal()}
}

// Resample draws new alpha and gamma starting from the given values.
func (s Sampler) Resample(alpha, gamma float64, st Stats, r *rng.Stream) (float64, float64, error) {
	if !s.AlphaPrior.Valid() || !s.GammaPrior.Valid() {
		return alpha, gamma, errors.NewModelError(
			fmt.Sprintf("alpha prior %+v gamma prior %+v", s.AlphaPrior, s.GammaPrior),
			errors.ErrInvalidHyperparameter,
		).WithField("prior")
	}
	if !(alpha > 0) || !(gamma > 0) {
		return alpha, gamma, errors.NewModelError(
			fmt.Sprintf("alpha=%g gamma=%g", alpha, gamma), errors.ErrInvalidHyperparameter,
		).WithField("alpha")
	}
	iterations := s.Iterations
	if iterations <= 0 {
		iterations = DefaultIterations
	}

	if !s.FixAlpha {
		for range iterations {
			alpha = s.resampleAlpha(alpha, st, r)
		}
	}
	if !s.FixGamma {
		for range iterations {
			gamma = s.resampleGamma(gamma, st, r)
		}
	}
	return alpha, gamma, nil
}

// Apply resamples the model's concentrations in place from m.Stream.
func (s Sampler) Apply(m *hdp.Model, tables int) error {
	alpha, gamma, err := s.Resample(m.Alpha, m.Gamma, StatsOf(m, tables), m.Stream)
	if err != nil {
		return err
	}
	m.Alpha, m.Gamma = alpha, gamma
	return nil
}

func (s Sampler) resampleAlpha(alpha float64, st Stats, r *rng.Stream) float64 {
	sumLogW := 0.0
	sumS := 0
	for _, n := range st.RowTotals {
		if n == 0 {
			continue
		}
		nf := float64(n)
		sumLogW += math.Log(r.Beta(alpha+1, nf))
		if r.Bernoulli(nf / (nf + alpha)) {
			sumS++
		}
	}
	shape := s.AlphaPrior.Shape + float64(st.Tables-sumS)
	rate := s.AlphaPrior.Rate - sumLogW
	return draw(r, shape, rate, alpha)
}

func (s Sampler) resampleGamma(gamma float64, st Stats, r *rng.Stream) float64 {
	total := st.Tables + st.Starts
	if total == 0 {
		return draw(r, s.GammaPrior.Shape, s.GammaPrior.Rate, gamma)
	}
	t := float64(total)
	k := float64(st.States)

	eta := r.Beta(gamma+1, t)
	rate := s.GammaPrior.Rate - math.Log(eta)
	hi := s.GammaPrior.Shape + k
	lo := hi - 1
	if lo <= 0 {
		return draw(r, hi, rate, gamma)
	}
	odds := lo / (t * rate)
	if r.Bernoulli(odds / (1 + odds)) {
		return draw(r, hi, rate, gamma)
	}
	return draw(r, lo, rate, gamma)
}

// draw returns a Gamma(shape, rate) variate, keeping prev when the
// parameters degenerate or the variate underflows.
func draw(r *rng.Stream, shape, rate, prev float64) float64 {
	if !(shape > 0) || !(rate > 0) || math.IsInf(rate, 0) {
		return prev
	}
	v := r.Gamma(shape, rate)
	if !(v > 0) || math.IsInf(v, 0) {
		return prev
	}
	return v
}
