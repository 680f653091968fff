// Package store saves and restores sampler state.
//
// A snapshot is a gzip-compressed gob stream holding the model, the random
// stream position, the corpus and its current paths. Restoring a snapshot
// and continuing a run draws the same numbers the original run would have
// drawn next.
package store

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/ihmm/internal/corpus"
	"github.com/Iron-Ham/ihmm/internal/errors"
	"github.com/Iron-Ham/ihmm/internal/hdp"
	"github.com/Iron-Ham/ihmm/internal/rng"
)

// FormatVersion is written into every snapshot. Load rejects other versions.
const FormatVersion = 1

// Meta describes the run that produced a snapshot.
type Meta struct {
	RunID       string    `json:"run_id" yaml:"run_id"`
	Seed        uint64    `json:"seed" yaml:"seed"`
	Iterations  int       `json:"iterations" yaml:"iterations"`
	// CommandLine is the invocation that produced the snapshot.
	CommandLine string    `json:"command_line" yaml:"command_line"`
	SavedAt     time.Time `json:"saved_at" yaml:"saved_at"`
}

type snapshot struct {
	Version int
	Meta    Meta

	K          int
	Symbols    int
	Beta       []float64
	Alpha      float64
	Gamma      float64
	AlphaPrior hdp.Prior
	GammaPrior hdp.Prior
	Trans      []int
	Emit       []int
	Start      []int
	Stream     []byte

	Alphabet  corpus.Alphabet
	Sequences []sequence
}

type sequence struct {
	Name    string
	Symbols []uint8
	Path    []int
}

// State is a restored snapshot.
type State struct {
	Meta   Meta
	Model  *hdp.Model
	Corpus *corpus.Corpus
}

// Save writes m and c to path on fs. The file is replaced atomically.
func Save(fs afero.Fs, path string, meta Meta, m *hdp.Model, c *corpus.Corpus) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := m.CheckPaths(c); err != nil {
		return err
	}
	stream, err := m.Stream.MarshalBinary()
	if err != nil {
		return errors.Wrap(err, "encode random stream")
	}
	if meta.SavedAt.IsZero() {
		meta.SavedAt = time.Now().UTC()
	}

	snap := snapshot{
		Version:    FormatVersion,
		Meta:       meta,
		K:          m.K,
		Symbols:    m.Symbols,
		Beta:       m.Beta,
		Alpha:      m.Alpha,
		Gamma:      m.Gamma,
		AlphaPrior: m.AlphaPrior,
		GammaPrior: m.GammaPrior,
		Trans:      m.Counts.Trans.Data(),
		Emit:       m.Counts.Emit.Data(),
		Start:      m.Counts.Start[:m.K],
		Stream:     stream,
		Alphabet:   c.Alphabet,
		Sequences:  make([]sequence, c.Len()),
	}
	for i, seq := range c.Sequences {
		snap.Sequences[i] = sequence{Name: seq.Name, Symbols: seq.Symbols, Path: seq.Path}
	}

	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}
	tmp, err := afero.TempFile(fs, dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create model file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = fs.Remove(tmpName) }()

	zw := gzip.NewWriter(tmp)
	if err := gob.NewEncoder(zw).Encode(&snap); err != nil {
		tmp.Close()
		return errors.Wrap(err, "encode model")
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "compress model")
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}
	if err := fs.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace model file: %w", err)
	}
	return nil
}

// Load reads a snapshot written by Save and validates it.
func Load(fs afero.Fs, path string) (*State, error) {
	f, err := fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("model", path).WithCause(err)
		}
		return nil, fmt.Errorf("failed to open model file: %w", err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	defer zr.Close()

	var snap snapshot
	if err := gob.NewDecoder(zr).Decode(&snap); err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	if snap.Version != FormatVersion {
		return nil, errors.NewModelError(
			fmt.Sprintf("snapshot version %d, want %d", snap.Version, FormatVersion), errors.ErrInvalidModel,
		).WithField("version")
	}
	return snap.restore()
}

func (s *snapshot) restore() (*State, error) {
	trans, err := hdp.NewMatrixFrom(s.K, s.K, s.Trans)
	if err != nil {
		return nil, errors.NewModelError(err.Error(), errors.ErrInvalidModel).WithField("counts")
	}
	emit, err := hdp.NewMatrixFrom(s.K, s.Symbols, s.Emit)
	if err != nil {
		return nil, errors.NewModelError(err.Error(), errors.ErrInvalidModel).WithField("counts")
	}
	if len(s.Start) != s.K {
		return nil, errors.NewModelError(
			fmt.Sprintf("%d start counts for %d states", len(s.Start), s.K), errors.ErrInvalidModel,
		).WithField("counts")
	}
	stream := rng.New(0)
	if err := stream.UnmarshalBinary(s.Stream); err != nil {
		return nil, errors.Wrap(err, "decode random stream")
	}

	m := &hdp.Model{
		K:          s.K,
		Symbols:    s.Symbols,
		Beta:       s.Beta,
		Alpha:      s.Alpha,
		Gamma:      s.Gamma,
		AlphaPrior: s.AlphaPrior,
		GammaPrior: s.GammaPrior,
		Counts:     &hdp.Counts{Trans: trans, Emit: emit, Start: s.Start},
		Stream:     stream,
	}
	c := corpus.New(s.Alphabet)
	for _, seq := range s.Sequences {
		c.Sequences = append(c.Sequences, &corpus.Sequence{Name: seq.Name, Symbols: seq.Symbols, Path: seq.Path})
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := m.CheckPaths(c); err != nil {
		return nil, err
	}
	return &State{Meta: s.Meta, Model: m, Corpus: c}, nil
}
