package corpus

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/ihmm/internal/errors"
)

// maxLineBytes bounds a single FASTA line; chromosome-scale single-line
// records need a large buffer.
const maxLineBytes = 64 << 20

// LoadOptions controls how a sequence file becomes a corpus.
type LoadOptions struct {
	// ReverseComplement appends reverse complements for nucleotide input.
	ReverseComplement bool
}

// Load reads a FASTA file from fs, detects its alphabet and encodes it.
// Files without '>' headers are read as one sequence per non-empty line.
func Load(fs afero.Fs, path string, opts LoadOptions) (*Corpus, error) {
	f, err := fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("sequence file", path).WithCause(err)
		}
		return nil, fmt.Errorf("failed to open sequence file: %w", err)
	}
	defer f.Close()

	c, err := Read(f, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return c, nil
}

type record struct {
	name     string
	residues []byte
}

// Read parses FASTA from r. See Load.
func Read(r io.Reader, opts LoadOptions) (*Corpus, error) {
	records, err := parseFASTA(r)
	if err != nil {
		return nil, err
	}

	raw := make([][]byte, len(records))
	for i, rec := range records {
		raw[i] = rec.residues
	}
	alphabet := Detect(raw)

	c := New(alphabet)
	for i, rec := range records {
		seq := &Sequence{Name: rec.name, Symbols: make([]uint8, len(rec.residues))}
		for pos, b := range rec.residues {
			sym, ok := alphabet.Encode(b)
			if !ok {
				return nil, errors.NewCorpusError(
					fmt.Sprintf("residue %q is not in the %s alphabet", b, alphabet.Name),
					errors.ErrUnknownResidue,
				).WithSequence(i, rec.name).WithPosition(pos)
			}
			seq.Symbols[pos] = sym
		}
		c.Sequences = append(c.Sequences, seq)
	}

	if opts.ReverseComplement && alphabet.IsNucleotide() {
		if err := c.AddReverseComplement(); err != nil {
			return nil, err
		}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func parseFASTA(r io.Reader) ([]record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var records []record
	var cur *record
	headers := false
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == ';' {
			continue
		}
		if line[0] == '>' {
			headers = true
			name := fmt.Sprintf("seq%d", len(records)+1)
			if fields := bytes.Fields(line[1:]); len(fields) > 0 {
				name = string(fields[0])
			}
			records = append(records, record{name: name})
			cur = &records[len(records)-1]
			continue
		}
		if !headers {
			// Headerless input: every line is its own sequence.
			records = append(records, record{name: fmt.Sprintf("seq%d", len(records)+1)})
			cur = &records[len(records)-1]
		}
		if cur == nil {
			return nil, fmt.Errorf("line %d: residues before the first header", lineNo)
		}
		for _, b := range line {
			switch b {
			case ' ', '\t', '-', '.', '*':
				// gaps and stop codons carry no symbol
			default:
				cur.residues = append(cur.residues, b)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read sequences: %w", err)
	}
	return records, nil
}
