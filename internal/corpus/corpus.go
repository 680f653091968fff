// Package corpus holds the symbol sequences the sampler runs over.
//
// A [Corpus] is an ordered set of [Sequence] values over a fixed [Alphabet].
// Symbols are read-only to the sampler; each sequence also carries its
// hidden-state path, which only the beam sampler overwrites.
package corpus

import (
	"fmt"

	"github.com/Iron-Ham/ihmm/internal/errors"
)

// Sequence is one symbol sequence and its assigned hidden-state path.
type Sequence struct {
	Name    string
	Symbols []uint8
	// Path holds one state index per symbol. Indices are only meaningful
	// against the model state count of the iteration that wrote them.
	Path []int
}

// Len returns the number of symbols.
func (s *Sequence) Len() int {
	return len(s.Symbols)
}

// Corpus is an ordered collection of sequences over one alphabet.
type Corpus struct {
	Alphabet  Alphabet
	Sequences []*Sequence
}

// New creates a corpus over alphabet holding seqs.
func New(alphabet Alphabet, seqs ...*Sequence) *Corpus {
	return &Corpus{Alphabet: alphabet, Sequences: seqs}
}

// Size returns the alphabet size.
func (c *Corpus) Size() int {
	return c.Alphabet.Size()
}

// Len returns the number of sequences.
func (c *Corpus) Len() int {
	return len(c.Sequences)
}

// TotalLength returns the number of symbols across all sequences.
func (c *Corpus) TotalLength() int {
	n := 0
	for _, s := range c.Sequences {
		n += s.Len()
	}
	return n
}

// Validate checks the sampling preconditions: at least one sequence, no
// empty sequence, every symbol inside the alphabet and every non-nil path
// as long as its sequence.
func (c *Corpus) Validate() error {
	if c == nil || len(c.Sequences) == 0 {
		return errors.NewCorpusError("nothing to sample", errors.ErrEmptyCorpus)
	}
	size := c.Alphabet.Size()
	if size == 0 {
		return errors.NewCorpusError(fmt.Sprintf("alphabet %q has no symbols", c.Alphabet.Name), errors.ErrSymbolOutOfRange)
	}
	for i, s := range c.Sequences {
		if s.Len() == 0 {
			return errors.NewCorpusError("sequence has no symbols", errors.ErrEmptySequence).WithSequence(i, s.Name)
		}
		for pos, sym := range s.Symbols {
			if int(sym) >= size {
				return errors.NewCorpusError(
					fmt.Sprintf("symbol %d with alphabet size %d", sym, size),
					errors.ErrSymbolOutOfRange,
				).WithSequence(i, s.Name).WithPosition(pos)
			}
		}
		if s.Path != nil && len(s.Path) != s.Len() {
			return errors.NewCorpusError(
				fmt.Sprintf("path length %d for %d symbols", len(s.Path), s.Len()),
				errors.ErrPathLength,
			).WithSequence(i, s.Name)
		}
	}
	return nil
}

// ResetPaths allocates a zeroed path for every sequence.
func (c *Corpus) ResetPaths() {
	for _, s := range c.Sequences {
		s.Path = make([]int, s.Len())
	}
}

// Background is the alphabet-size vector of Laplace-smoothed symbol
// frequencies over a corpus.
type Background []float64

// Background counts every symbol of the corpus and returns
// (count[s]+1) / (total+size). Every entry is positive.
func (c *Corpus) Background() Background {
	size := c.Alphabet.Size()
	bg := make(Background, size)
	for _, s := range c.Sequences {
		for _, sym := range s.Symbols {
			if int(sym) < size {
				bg[sym]++
			}
		}
	}
	total := float64(c.TotalLength() + size)
	for i := range bg {
		bg[i] = (bg[i] + 1) / total
	}
	return bg
}

// AddReverseComplement appends the reverse complement of every sequence.
// It only applies to nucleotide alphabets.
func (c *Corpus) AddReverseComplement() error {
	if !c.Alphabet.IsNucleotide() {
		return errors.NewCorpusError(
			fmt.Sprintf("reverse complement needs a nucleotide alphabet, got %q", c.Alphabet.Name),
			errors.ErrUnknownResidue,
		)
	}
	n := len(c.Sequences)
	for i := 0; i < n; i++ {
		src := c.Sequences[i]
		rc := &Sequence{
			Name:    src.Name + "_rc",
			Symbols: make([]uint8, src.Len()),
		}
		last := src.Len() - 1
		for pos, sym := range src.Symbols {
			rc.Symbols[last-pos] = Complement(sym)
		}
		c.Sequences = append(c.Sequences, rc)
	}
	return nil
}

// Complement maps A<->T and C<->G in the DNA encoding.
func Complement(sym uint8) uint8 {
	return 3 - sym
}
