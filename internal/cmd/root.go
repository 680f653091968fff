package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/ihmm/internal/config"
	"github.com/Iron-Ham/ihmm/internal/errors"
)

var rootCmd = &cobra.Command{
	Use:   "ihmm",
	Short: "Infinite hidden Markov models for biological sequences",
	Long: `ihmm trains hierarchical Dirichlet process hidden Markov models on
DNA or protein sequences with a parallel beam sampler. The number of
hidden states is learned from the data.`,
	SilenceUsage: true,
}

// Execute runs the root command. Cancelling ctx stops a running train
// between iterations.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// Process exit codes.
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitInvalidInput = 2 // corpus or model rejected before sampling
	ExitSamplerFault = 3 // broken sampler invariant or worker fault
	ExitCanceled     = 130
)

// ExitCode maps the error returned by Execute to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, errors.ErrCanceled):
		return ExitCanceled
	case errors.IsPrecondition(err):
		return ExitInvalidInput
	case errors.IsFatal(err):
		return ExitSamplerFault
	default:
		return ExitFailure
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/ihmm/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/ihmm")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("IHMM")
	// Replace dots with underscores for nested keys in env vars
	// e.g., IHMM_SAMPLER_WORKERS for sampler.workers
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
