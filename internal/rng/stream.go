// Package rng provides the explicit pseudo-random stream threaded through
// every stochastic call of the sampler.
//
// A [Stream] wraps a math/rand/v2 PCG generator. Continuous variates (Gamma,
// Beta) are drawn through gonum's stat/distuv with the stream's PCG as the
// source, so one seed reproduces every draw. The generator state marshals to
// bytes, which lets a saved model resume with the exact same stream.
//
// A Stream is not safe for concurrent use. The parallel phase gives every
// sequence its own child stream derived from the model stream in a fixed
// order before the workers start.
package rng

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// seedSalt decorrelates the two PCG words when a single seed is given.
const seedSalt = 0x9e3779b97f4a7c15

// Stream is a seedable pseudo-random stream.
type Stream struct {
	src *rand.PCG
	r   *rand.Rand
}

// New creates a stream from a single seed.
func New(seed uint64) *Stream {
	return NewPCG(seed, seed^seedSalt)
}

// NewPCG creates a stream from the two PCG state words.
func NewPCG(hi, lo uint64) *Stream {
	src := rand.NewPCG(hi, lo)
	return &Stream{src: src, r: rand.New(src)}
}

// Child derives an independent stream, consuming two words from s.
func (s *Stream) Child() *Stream {
	return NewPCG(s.src.Uint64(), s.src.Uint64())
}

// Uint64 returns a uniformly distributed 64-bit value.
func (s *Stream) Uint64() uint64 {
	return s.src.Uint64()
}

// Float64 returns a uniform draw in [0, 1).
func (s *Stream) Float64() float64 {
	return s.r.Float64()
}

// IntN returns a uniform draw in [0, n). It panics if n <= 0.
func (s *Stream) IntN(n int) int {
	return s.r.IntN(n)
}

// Open01 returns a uniform draw in the open interval (0, 1).
func (s *Stream) Open01() float64 {
	for {
		if v := s.r.Float64(); v > 0 {
			return v
		}
	}
}

// Slice returns a slice threshold u with 0 < u < p. A state whose
// transition probability is p always satisfies p > u.
func (s *Stream) Slice(p float64) float64 {
	u := p * s.Open01()
	if u >= p {
		u = math.Nextafter(p, 0)
	}
	if u <= 0 {
		u = math.SmallestNonzeroFloat64
	}
	return u
}

// Bernoulli returns true with probability p.
func (s *Stream) Bernoulli(p float64) bool {
	return s.r.Float64() < p
}

// Gamma draws from Gamma(shape, rate).
func (s *Stream) Gamma(shape, rate float64) float64 {
	if shape <= 0 || rate <= 0 {
		panic(fmt.Sprintf("rng: invalid gamma parameters shape=%g rate=%g", shape, rate))
	}
	return distuv.Gamma{Alpha: shape, Beta: rate, Src: s.src}.Rand()
}

// Beta draws from Beta(a, b).
func (s *Stream) Beta(a, b float64) float64 {
	if a <= 0 || b <= 0 {
		panic(fmt.Sprintf("rng: invalid beta parameters a=%g b=%g", a, b))
	}
	return distuv.Beta{Alpha: a, Beta: b, Src: s.src}.Rand()
}

// Dirichlet fills dst with a draw from Dirichlet(params) and returns it.
// dst is allocated when nil. A non-positive parameter yields a zero entry.
func (s *Stream) Dirichlet(params, dst []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(params))
	}
	for i, a := range params {
		dst[i] = 0
		if a > 0 {
			dst[i] = s.Gamma(a, 1)
		}
	}
	total := floats.Sum(dst)
	if total <= 0 || math.IsNaN(total) {
		// Every gamma underflowed; fall back to the prior mean.
		for i, a := range params {
			dst[i] = max(a, 0)
		}
		total = floats.Sum(dst)
		if total <= 0 {
			return dst
		}
	}
	floats.Scale(1/total, dst)
	return dst
}

// Categorical draws an index with probability proportional to weights.
// It returns -1 when no weight is positive.
func (s *Stream) Categorical(weights []float64) int {
	total := 0.0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return -1
	}
	target := s.r.Float64() * total
	last := -1
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		last = i
		target -= w
		if target < 0 {
			return i
		}
	}
	// Rounding left a sliver of mass; it belongs to the last positive weight.
	return last
}

// MarshalBinary encodes the generator state.
func (s *Stream) MarshalBinary() ([]byte, error) {
	return s.src.MarshalBinary()
}

// UnmarshalBinary restores a generator state produced by MarshalBinary.
func (s *Stream) UnmarshalBinary(data []byte) error {
	if s.src == nil {
		s.src = new(rand.PCG)
		s.r = rand.New(s.src)
	}
	if err := s.src.UnmarshalBinary(data); err != nil {
		return fmt.Errorf("restore stream state: %w", err)
	}
	return nil
}
