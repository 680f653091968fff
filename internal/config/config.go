package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/ihmm/internal/engine"
	"github.com/Iron-Ham/ihmm/internal/hdp"
	"github.com/Iron-Ham/ihmm/internal/hyper"
)

// Config represents the complete ihmm configuration
type Config struct {
	Sampler SamplerConfig `mapstructure:"sampler" yaml:"sampler"`
	Input   InputConfig   `mapstructure:"input" yaml:"input"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// PriorConfig is the shape and rate of a Gamma prior
type PriorConfig struct {
	Shape float64 `mapstructure:"shape" yaml:"shape"`
	Rate  float64 `mapstructure:"rate" yaml:"rate"`
}

// Prior converts the config to a model prior
func (p PriorConfig) Prior() hdp.Prior {
	return hdp.Prior{Shape: p.Shape, Rate: p.Rate}
}

// SamplerConfig controls the beam sampler
type SamplerConfig struct {
	// InitialStates is the number of states paths are initialized over (default: 10)
	InitialStates int `mapstructure:"initial_states" yaml:"initial_states"`
	// Iterations is the number of outer iterations (default: 1000)
	Iterations int `mapstructure:"iterations" yaml:"iterations"`
	// Workers is the worker pool size (default: 8)
	Workers int `mapstructure:"workers" yaml:"workers"`
	// Alpha is the initial transition concentration, 0 draws it from its prior
	Alpha float64 `mapstructure:"alpha" yaml:"alpha"`
	// Gamma is the initial top-level concentration, 0 draws it from its prior
	Gamma float64 `mapstructure:"gamma" yaml:"gamma"`
	// FixAlpha keeps alpha at its initial value
	FixAlpha bool `mapstructure:"fix_alpha" yaml:"fix_alpha"`
	// FixGamma keeps gamma at its initial value
	FixGamma   bool        `mapstructure:"fix_gamma" yaml:"fix_gamma"`
	AlphaPrior PriorConfig `mapstructure:"alpha_prior" yaml:"alpha_prior"`
	GammaPrior PriorConfig `mapstructure:"gamma_prior" yaml:"gamma_prior"`
	// HyperEvery resamples beta and the concentrations every N iterations, 0 disables (default: 1)
	HyperEvery int `mapstructure:"hyper_every" yaml:"hyper_every"`
	// HyperIterations is the number of inner Gibbs rounds per resample (default: 20)
	HyperIterations int `mapstructure:"hyper_iterations" yaml:"hyper_iterations"`
	// WarmupSweeps is the number of beta and hyperparameter sweeps before sampling (default: 10)
	WarmupSweeps int `mapstructure:"warmup_sweeps" yaml:"warmup_sweeps"`
	// EmissionStrength is the prior weight of the background emission, 0 means the alphabet size
	EmissionStrength float64 `mapstructure:"emission_strength" yaml:"emission_strength"`
	// Seed seeds the random stream, 0 derives one from the clock
	Seed uint64 `mapstructure:"seed" yaml:"seed"`
}

// InputConfig controls how sequence files are read
type InputConfig struct {
	// ReverseComplement appends the reverse complement of every nucleotide sequence
	ReverseComplement bool `mapstructure:"reverse_complement" yaml:"reverse_complement"`
}

// LoggingConfig controls run logging
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is the directory of ihmm.log. Empty logs to stderr.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	// Addr is the listen address of /metrics, empty disables the endpoint
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Sampler: SamplerConfig{
			InitialStates:   10,
			Iterations:      engine.DefaultIterations,
			Workers:         engine.DefaultWorkers,
			AlphaPrior:      PriorConfig{Shape: hdp.DefaultAlphaPrior.Shape, Rate: hdp.DefaultAlphaPrior.Rate},
			GammaPrior:      PriorConfig{Shape: hdp.DefaultGammaPrior.Shape, Rate: hdp.DefaultGammaPrior.Rate},
			HyperEvery:      engine.DefaultHyperEvery,
			HyperIterations: hyper.DefaultIterations,
			WarmupSweeps:    engine.DefaultWarmupSweeps,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Sampler defaults
	viper.SetDefault("sampler.initial_states", defaults.Sampler.InitialStates)
	viper.SetDefault("sampler.iterations", defaults.Sampler.Iterations)
	viper.SetDefault("sampler.workers", defaults.Sampler.Workers)
	viper.SetDefault("sampler.alpha", defaults.Sampler.Alpha)
	viper.SetDefault("sampler.gamma", defaults.Sampler.Gamma)
	viper.SetDefault("sampler.fix_alpha", defaults.Sampler.FixAlpha)
	viper.SetDefault("sampler.fix_gamma", defaults.Sampler.FixGamma)
	viper.SetDefault("sampler.alpha_prior.shape", defaults.Sampler.AlphaPrior.Shape)
	viper.SetDefault("sampler.alpha_prior.rate", defaults.Sampler.AlphaPrior.Rate)
	viper.SetDefault("sampler.gamma_prior.shape", defaults.Sampler.GammaPrior.Shape)
	viper.SetDefault("sampler.gamma_prior.rate", defaults.Sampler.GammaPrior.Rate)
	viper.SetDefault("sampler.hyper_every", defaults.Sampler.HyperEvery)
	viper.SetDefault("sampler.hyper_iterations", defaults.Sampler.HyperIterations)
	viper.SetDefault("sampler.warmup_sweeps", defaults.Sampler.WarmupSweeps)
	viper.SetDefault("sampler.emission_strength", defaults.Sampler.EmissionStrength)
	viper.SetDefault("sampler.seed", defaults.Sampler.Seed)

	// Input defaults
	viper.SetDefault("input.reverse_complement", defaults.Input.ReverseComplement)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)

	// Metrics defaults
	viper.SetDefault("metrics.addr", defaults.Metrics.Addr)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ihmm")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ihmm"
	}
	return filepath.Join(home, ".config", "ihmm")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// SeedOrNow returns the configured seed, deriving one from the clock when unset.
func (s *SamplerConfig) SeedOrNow() uint64 {
	if s.Seed != 0 {
		return s.Seed
	}
	return uint64(time.Now().UnixNano())
}

// Params returns the model parameters the config describes for the given
// alphabet size.
func (s *SamplerConfig) Params(symbols int) hdp.Params {
	return hdp.Params{
		States:     s.InitialStates,
		Symbols:    symbols,
		Alpha:      s.Alpha,
		Gamma:      s.Gamma,
		AlphaPrior: s.AlphaPrior.Prior(),
		GammaPrior: s.GammaPrior.Prior(),
	}
}

// EngineOptions returns the run options the config describes.
func (s *SamplerConfig) EngineOptions() engine.Options {
	return engine.Options{
		Iterations:       s.Iterations,
		Workers:          s.Workers,
		HyperEvery:       s.HyperEvery,
		HyperIterations:  s.HyperIterations,
		EmissionStrength: s.EmissionStrength,
		Hyper: hyper.Sampler{
			AlphaPrior: s.AlphaPrior.Prior(),
			GammaPrior: s.GammaPrior.Prior(),
			Iterations: s.HyperIterations,
			FixAlpha:   s.FixAlpha,
			FixGamma:   s.FixGamma,
		},
	}
}
