// Package testutil provides testing utilities for ihmm tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/Iron-Ham/ihmm/internal/corpus"
	"github.com/Iron-Ham/ihmm/internal/rng"
)

// Corpus encodes each string as one sequence over alphabet. Sequences are
// named s1, s2, ... and the test fails on a letter outside the alphabet.
func Corpus(t *testing.T, alphabet corpus.Alphabet, seqs ...string) *corpus.Corpus {
	t.Helper()

	c := corpus.New(alphabet)
	for i, text := range seqs {
		seq := &corpus.Sequence{Name: fmt.Sprintf("s%d", i+1), Symbols: make([]uint8, len(text))}
		for pos := 0; pos < len(text); pos++ {
			sym, ok := alphabet.Encode(text[pos])
			if !ok {
				t.Fatalf("letter %q of sequence %d is not in the %s alphabet", text[pos], i, alphabet.Name)
			}
			seq.Symbols[pos] = sym
		}
		c.Sequences = append(c.Sequences, seq)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("invalid test corpus: %v", err)
	}
	return c
}

// RandomCorpus builds n sequences of the given length with symbols drawn
// uniformly from alphabet.
func RandomCorpus(t *testing.T, s *rng.Stream, n, length int, alphabet corpus.Alphabet) *corpus.Corpus {
	t.Helper()

	c := corpus.New(alphabet)
	for i := 0; i < n; i++ {
		seq := &corpus.Sequence{Name: fmt.Sprintf("r%d", i+1), Symbols: make([]uint8, length)}
		for pos := range seq.Symbols {
			seq.Symbols[pos] = uint8(s.IntN(alphabet.Size()))
		}
		c.Sequences = append(c.Sequences, seq)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("invalid test corpus: %v", err)
	}
	return c
}

// Repeat builds n sequences that each repeat letter length times.
func Repeat(t *testing.T, alphabet corpus.Alphabet, letter byte, n, length int) *corpus.Corpus {
	t.Helper()

	seqs := make([]string, n)
	for i := range seqs {
		b := make([]byte, length)
		for j := range b {
			b[j] = letter
		}
		seqs[i] = string(b)
	}
	return Corpus(t, alphabet, seqs...)
}

// Stream returns a seeded stream.
func Stream(seed uint64) *rng.Stream {
	return rng.New(seed)
}
