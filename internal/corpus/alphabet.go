package corpus

import "strings"

// Alphabet maps residue letters to dense symbol codes.
type Alphabet struct {
	Name    string
	Letters string
}

// Built-in alphabets.
var (
	DNA     = Alphabet{Name: "dna", Letters: "ACGT"}
	Protein = Alphabet{Name: "protein", Letters: "ACDEFGHIKLMNPQRSTVWY"}
)

const symbolLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Symbols returns an alphabet of n abstract symbols lettered A, B, C...
// It is meant for synthetic corpora; n is capped at 26.
func Symbols(n int) Alphabet {
	if n > len(symbolLetters) {
		n = len(symbolLetters)
	}
	if n < 0 {
		n = 0
	}
	return Alphabet{Name: "symbols", Letters: symbolLetters[:n]}
}

// Size returns the number of symbols.
func (a Alphabet) Size() int {
	return len(a.Letters)
}

// IsNucleotide reports whether a is the 4-symbol DNA alphabet.
func (a Alphabet) IsNucleotide() bool {
	return a.Letters == DNA.Letters
}

// Encode returns the code of letter b, case-insensitively. U encodes as T
// in the nucleotide alphabet.
func (a Alphabet) Encode(b byte) (uint8, bool) {
	if b >= 'a' && b <= 'z' {
		b -= 'a' - 'A'
	}
	if b == 'U' && a.IsNucleotide() {
		b = 'T'
	}
	i := strings.IndexByte(a.Letters, b)
	if i < 0 {
		return 0, false
	}
	return uint8(i), true
}

// Decode returns the letter for code sym, or '?' when out of range.
func (a Alphabet) Decode(sym uint8) byte {
	if int(sym) >= len(a.Letters) {
		return '?'
	}
	return a.Letters[sym]
}

// DecodeString renders a symbol slice as letters.
func (a Alphabet) DecodeString(syms []uint8) string {
	var sb strings.Builder
	sb.Grow(len(syms))
	for _, s := range syms {
		sb.WriteByte(a.Decode(s))
	}
	return sb.String()
}

// nucleotideLetters are the residues accepted by nucleotide detection.
const nucleotideLetters = "ACGTUN"

// Detect picks DNA when every residue is a nucleotide letter and Protein
// otherwise. An N in nucleotide input still fails to encode later.
func Detect(residues [][]byte) Alphabet {
	for _, r := range residues {
		for _, b := range r {
			if b >= 'a' && b <= 'z' {
				b -= 'a' - 'A'
			}
			if strings.IndexByte(nucleotideLetters, b) < 0 {
				return Protein
			}
		}
	}
	return DNA
}
