package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/ihmm/internal/config"
	"github.com/Iron-Ham/ihmm/internal/errors"
	"github.com/Iron-Ham/ihmm/internal/hdp"
	"github.com/Iron-Ham/ihmm/internal/logging"
	"github.com/Iron-Ham/ihmm/internal/store"
)

const testFASTA = `>chr1 first
ACGTACGTTAGCATGCA
CGTAGCTAGC
>chr2
TTAGGCATCGATCGATCGAAT
`

func testJob(t *testing.T, fs afero.Fs, mutate func(*trainJob)) (*trainJob, *bytes.Buffer) {
	t.Helper()
	cfg := config.Default()
	cfg.Sampler.InitialStates = 3
	cfg.Sampler.Iterations = 3
	cfg.Sampler.Workers = 2
	cfg.Sampler.WarmupSweeps = 1
	cfg.Sampler.Seed = 5

	var out bytes.Buffer
	job := &trainJob{
		fs:          fs,
		cfg:         cfg,
		in:          "/data/seqs.fa",
		out:         "/models/run.ihmm",
		commandLine: "ihmm train --in /data/seqs.fa",
		stdout:      &out,
		logger:      logging.NewWriterLogger(&bytes.Buffer{}, logging.LevelDebug),
	}
	if mutate != nil {
		mutate(job)
	}
	return job, &out
}

func writeFASTA(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/seqs.fa", []byte(testFASTA), 0o644))
	return fs
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "ihmm" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "ihmm")
	}

	cmdMap := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}
	for _, expected := range []string{"train", "inspect", "config"} {
		if !cmdMap[expected] {
			t.Errorf("expected subcommand %q not found", expected)
		}
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, ExitOK},
		{"plain failure", errors.New("boom"), ExitFailure},
		{"empty corpus", errors.NewCorpusError("no sequences", errors.ErrEmptyCorpus), ExitInvalidInput},
		{"wrapped model error", errors.Wrap(errors.NewModelError("bad beta", errors.ErrInvalidModel), "load"), ExitInvalidInput},
		{"worker fault", errors.NewSamplerError("worker panicked", errors.ErrWorkerFault), ExitSamplerFault},
		{"canceled", errors.Wrap(errors.ErrCanceled, "iteration 3"), ExitCanceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestTrainFlagsBindConfigKeys(t *testing.T) {
	for flag, key := range flagBindings {
		if trainCmd.Flags().Lookup(flag) == nil {
			t.Errorf("flag --%s is not defined", flag)
		}
		if !strings.Contains(key, ".") {
			t.Errorf("flag --%s is bound to %q, want a section key", flag, key)
		}
	}
}

func TestTrain_FromSequences(t *testing.T) {
	fs := writeFASTA(t)
	job, out := testJob(t, fs, nil)

	require.NoError(t, job.run(context.Background()))
	assert.Contains(t, out.String(), "Model saved to /models/run.ihmm")

	st, err := store.Load(fs, "/models/run.ihmm")
	require.NoError(t, err)
	assert.Equal(t, 3, st.Meta.Iterations)
	assert.Equal(t, uint64(5), st.Meta.Seed)
	assert.NotEmpty(t, st.Meta.RunID)
	assert.Equal(t, "ihmm train --in /data/seqs.fa", st.Meta.CommandLine)
	require.Equal(t, 2, st.Corpus.Len())
	assert.Equal(t, "chr1", st.Corpus.Sequences[0].Name)
	assert.Equal(t, 27, st.Corpus.Sequences[0].Len())
	assert.Equal(t, "dna", st.Corpus.Alphabet.Name)
}

func TestTrain_ReverseComplement(t *testing.T) {
	fs := writeFASTA(t)
	job, _ := testJob(t, fs, func(j *trainJob) { j.cfg.Input.ReverseComplement = true })

	require.NoError(t, job.run(context.Background()))
	st, err := store.Load(fs, "/models/run.ihmm")
	require.NoError(t, err)
	require.Equal(t, 4, st.Corpus.Len())
	assert.Equal(t, "chr2_rc", st.Corpus.Sequences[3].Name)
}

func TestTrain_ContinuesSavedModel(t *testing.T) {
	fs := writeFASTA(t)
	first, _ := testJob(t, fs, nil)
	require.NoError(t, first.run(context.Background()))
	before, err := store.Load(fs, "/models/run.ihmm")
	require.NoError(t, err)

	second, _ := testJob(t, fs, func(j *trainJob) {
		j.in = ""
		j.model = "/models/run.ihmm"
		j.out = "/models/more.ihmm"
	})
	require.NoError(t, second.run(context.Background()))

	after, err := store.Load(fs, "/models/more.ihmm")
	require.NoError(t, err)
	assert.Equal(t, 6, after.Meta.Iterations)
	assert.Equal(t, before.Meta.Seed, after.Meta.Seed)
	assert.NotEqual(t, before.Meta.RunID, after.Meta.RunID)
	assert.Equal(t, before.Corpus.TotalLength(), after.Corpus.TotalLength())
}

func TestTrain_ContinueKeepsSnapshotPriors(t *testing.T) {
	fs := writeFASTA(t)
	first, _ := testJob(t, fs, func(j *trainJob) {
		j.cfg.Sampler.AlphaPrior = config.PriorConfig{Shape: 5000, Rate: 1}
	})
	require.NoError(t, first.run(context.Background()))
	before, err := store.Load(fs, "/models/run.ihmm")
	require.NoError(t, err)
	require.Greater(t, before.Model.Alpha, 1000.0)

	second, _ := testJob(t, fs, func(j *trainJob) {
		j.in = ""
		j.model = "/models/run.ihmm"
		j.out = "/models/more.ihmm"
	})
	require.NoError(t, second.run(context.Background()))

	after, err := store.Load(fs, "/models/more.ihmm")
	require.NoError(t, err)
	assert.Equal(t, hdp.Prior{Shape: 5000, Rate: 1}, after.Model.AlphaPrior)
	assert.Greater(t, after.Model.Alpha, 1000.0, "alpha left its prior: %g", after.Model.Alpha)
}

func TestTrain_Errors(t *testing.T) {
	t.Run("missing input", func(t *testing.T) {
		job, _ := testJob(t, afero.NewMemMapFs(), nil)
		err := job.run(context.Background())
		var notFound *errors.NotFoundError
		assert.True(t, errors.As(err, &notFound), "run() = %v", err)
	})

	t.Run("missing model", func(t *testing.T) {
		job, _ := testJob(t, afero.NewMemMapFs(), func(j *trainJob) { j.in, j.model = "", "/nope.ihmm" })
		err := job.run(context.Background())
		assert.True(t, errors.Is(err, errors.ErrModelNotFound), "run() = %v", err)
	})

	t.Run("unknown residue", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, "/data/seqs.fa", []byte(">x\nACGT\n>y\nAC1T\n"), 0o644))
		job, _ := testJob(t, fs, nil)
		err := job.run(context.Background())
		assert.True(t, errors.Is(err, errors.ErrUnknownResidue), "run() = %v", err)
	})

	t.Run("cancelled", func(t *testing.T) {
		fs := writeFASTA(t)
		job, _ := testJob(t, fs, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := job.run(ctx)
		assert.True(t, errors.Is(err, errors.ErrCanceled), "run() = %v", err)
		exists, _ := afero.Exists(fs, "/models/run.ihmm")
		assert.False(t, exists, "a cancelled run must not save")
	})
}

func TestSummarize(t *testing.T) {
	fs := writeFASTA(t)
	job, _ := testJob(t, fs, nil)
	require.NoError(t, job.run(context.Background()))
	st, err := store.Load(fs, "/models/run.ihmm")
	require.NoError(t, err)

	s := summarize(st, 2)
	assert.Equal(t, st.Model.K, s.States)
	require.Len(t, s.Detail, st.Model.K)

	total := 0
	for i, d := range s.Detail {
		total += d.Occupancy
		if i > 0 {
			assert.LessOrEqual(t, d.Occupancy, s.Detail[i-1].Occupancy, "states sorted by occupancy")
		}
		assert.LessOrEqual(t, len(d.Top), 2)
		sum := 0.0
		for _, sw := range d.Top {
			assert.Contains(t, "ACGT", sw.Symbol)
			sum += sw.Fraction
		}
		assert.LessOrEqual(t, sum, 1.0+1e-12)
	}
	assert.Equal(t, s.Positions, total)

	for _, d := range summarize(st, -1).Detail {
		assert.Empty(t, d.Top)
	}

	var buf bytes.Buffer
	renderSummary(&buf, s)
	assert.Contains(t, buf.String(), "ihmm model")
	assert.Contains(t, buf.String(), st.Meta.RunID)
	assert.Contains(t, buf.String(), "top symbols")
}

func TestInspect_RejectsNegativeTop(t *testing.T) {
	defer func() { inspectTop = 3 }()
	inspectTop = -1
	err := runInspect(inspectCmd, []string{"/does/not/matter.ihmm"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--top")
}

func TestParseConfigValue(t *testing.T) {
	config.SetDefaults()

	tests := []struct {
		key     string
		value   string
		want    any
		wantErr bool
	}{
		{"sampler.workers", "4", 4, false},
		{"sampler.workers", "four", nil, true},
		{"sampler.alpha", "0.5", 0.5, false},
		{"sampler.alpha", "x", nil, true},
		{"sampler.fix_alpha", "true", true, false},
		{"sampler.fix_alpha", "maybe", nil, true},
		{"sampler.seed", "12", uint64(12), false},
		{"sampler.seed", "-1", nil, true},
		{"logging.level", "debug", "debug", false},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			got, err := parseConfigValue(tt.key, tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfigShow(t *testing.T) {
	config.SetDefaults()
	defer viper.Set("sampler.workers", nil)
	viper.Set("sampler.workers", 3)

	var buf bytes.Buffer
	configShowCmd.SetOut(&buf)
	defer configShowCmd.SetOut(nil)
	require.NoError(t, runConfigShow(configShowCmd, nil))

	out := buf.String()
	assert.Contains(t, out, "sampler:")
	assert.Contains(t, out, "workers: 3")
	assert.Contains(t, out, "alpha_prior:")
	assert.Contains(t, out, "level: info")
}
