package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/ihmm/internal/config"
	"github.com/Iron-Ham/ihmm/internal/corpus"
	"github.com/Iron-Ham/ihmm/internal/engine"
	"github.com/Iron-Ham/ihmm/internal/hdp"
	"github.com/Iron-Ham/ihmm/internal/logging"
	"github.com/Iron-Ham/ihmm/internal/metrics"
	"github.com/Iron-Ham/ihmm/internal/rng"
	"github.com/Iron-Ham/ihmm/internal/store"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a model on a sequence file",
	Long: `Train an infinite HMM on the sequences of a FASTA file and save the
resulting model, random state and state paths to --out.

Use --model instead of --in to continue sampling from a saved model.
Sampler settings come from the config file and IHMM_* environment
variables; the flags below override them.`,
	Args: cobra.NoArgs,
	RunE: runTrain,
}

var (
	trainIn    string
	trainOut   string
	trainModel string
)

// flagBindings maps train flags onto config keys.
var flagBindings = map[string]string{
	"states":       "sampler.initial_states",
	"niter":        "sampler.iterations",
	"nthreads":     "sampler.workers",
	"alpha":        "sampler.alpha",
	"gamma":        "sampler.gamma",
	"seed":         "sampler.seed",
	"rev":          "input.reverse_complement",
	"log-level":    "logging.level",
	"log-dir":      "logging.dir",
	"metrics-addr": "metrics.addr",
}

func init() {
	defaults := config.Default()
	f := trainCmd.Flags()
	f.StringVarP(&trainIn, "in", "i", "", "input sequence file (FASTA)")
	f.StringVarP(&trainOut, "out", "o", "", "output model file")
	f.StringVarP(&trainModel, "model", "m", "", "continue training a saved model")
	f.IntP("states", "s", defaults.Sampler.InitialStates, "number of starting states")
	f.IntP("niter", "n", defaults.Sampler.Iterations, "number of iterations")
	f.IntP("nthreads", "t", defaults.Sampler.Workers, "number of worker threads")
	f.Float64P("alpha", "a", 0, "initial alpha (0 draws it from its prior)")
	f.Float64P("gamma", "g", 0, "initial gamma (0 draws it from its prior)")
	f.Uint64("seed", 0, "random seed (0 derives one from the clock)")
	f.BoolP("rev", "r", false, "add reverse complement sequences")
	f.String("log-level", defaults.Logging.Level, "log level: debug, info, warn, error")
	f.String("log-dir", "", "write ihmm.log to this directory instead of stderr")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address")

	_ = trainCmd.MarkFlagRequired("out")
	trainCmd.MarkFlagsOneRequired("in", "model")
	trainCmd.MarkFlagsMutuallyExclusive("in", "model")

	for flag, key := range flagBindings {
		_ = viper.BindPFlag(key, f.Lookup(flag))
	}

	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	job := trainJob{
		fs:          afero.NewOsFs(),
		cfg:         cfg,
		in:          trainIn,
		out:         trainOut,
		model:       trainModel,
		commandLine: strings.Join(os.Args, " "),
		stdout:      cmd.OutOrStdout(),
	}
	return job.run(cmd.Context())
}

// trainJob is one train invocation.
type trainJob struct {
	fs          afero.Fs
	cfg         *config.Config
	in          string
	out         string
	model       string
	commandLine string
	stdout      io.Writer
	// logger overrides the configured log destination.
	logger *logging.Logger
}

func (j *trainJob) run(ctx context.Context) error {
	runID := uuid.NewString()
	logger := j.logger
	if logger == nil {
		var err error
		logger, err = logging.NewLogger(j.cfg.Logging.Dir, j.cfg.Logging.Level)
		if err != nil {
			return err
		}
		defer logger.Close()
	}
	log := logger.WithRun(runID)

	opts := j.cfg.Sampler.EngineOptions()
	opts.Logger = log

	m, c, meta, err := j.prepare(log, &opts)
	if err != nil {
		log.Error("preparing run failed", "error", err.Error())
		return err
	}
	meta.RunID = runID
	meta.CommandLine = j.commandLine

	if exists, _ := afero.Exists(j.fs, j.out); exists {
		log.Warn("output file will be overwritten", "path", j.out)
	}

	rec := metrics.NewRecorder(runID)
	if addr := j.cfg.Metrics.Addr; addr != "" {
		srv, err := rec.Listen(addr, log)
		if err != nil {
			return err
		}
		defer func() { _ = srv.Shutdown(context.Background()) }()
	}

	if err := engine.Run(ctx, m, c, c.Background(), rec, opts); err != nil {
		return err
	}
	meta.Iterations += opts.Iterations

	log.WithPhase("save").Info("saving model", "path", j.out, "states", m.K)
	if err := store.Save(j.fs, j.out, meta, m, c); err != nil {
		return err
	}

	fmt.Fprintf(j.stdout, "Trained %d states on %d sequences (%d symbols), alpha=%.4g gamma=%.4g\n",
		m.K, c.Len(), c.TotalLength(), m.Alpha, m.Gamma)
	fmt.Fprintf(j.stdout, "Model saved to %s\n", j.out)
	return nil
}

// prepare builds the model and corpus, either from a saved snapshot or
// from a sequence file followed by initialization and warm-up. A snapshot
// keeps its own priors, so the configured ones are cleared from opts.
func (j *trainJob) prepare(log *logging.Logger, opts *engine.Options) (*hdp.Model, *corpus.Corpus, store.Meta, error) {
	if j.model != "" {
		st, err := store.Load(j.fs, j.model)
		if err != nil {
			return nil, nil, store.Meta{}, err
		}
		log.Info("continuing from saved model",
			"path", j.model,
			"states", st.Model.K,
			"iterations", st.Meta.Iterations,
			"previous_run", st.Meta.RunID,
		)
		opts.Hyper.AlphaPrior = hdp.Prior{}
		opts.Hyper.GammaPrior = hdp.Prior{}
		return st.Model, st.Corpus, store.Meta{Seed: st.Meta.Seed, Iterations: st.Meta.Iterations}, nil
	}

	c, err := corpus.Load(j.fs, j.in, corpus.LoadOptions{ReverseComplement: j.cfg.Input.ReverseComplement})
	if err != nil {
		return nil, nil, store.Meta{}, err
	}
	log.Info("read sequences",
		"path", j.in,
		"sequences", c.Len(),
		"symbols", c.TotalLength(),
		"alphabet", c.Alphabet.Name,
	)

	seed := j.cfg.Sampler.SeedOrNow()
	m, err := hdp.New(j.cfg.Sampler.Params(c.Size()), rng.New(seed))
	if err != nil {
		return nil, nil, store.Meta{}, err
	}
	if err := engine.Initialize(m, c, j.cfg.Sampler.WarmupSweeps, *opts); err != nil {
		return nil, nil, store.Meta{}, err
	}
	return m, c, store.Meta{Seed: seed}, nil
}
