package config

import (
	"fmt"
	"net"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "sampler.workers")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateSampler()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateMetrics()...)

	return errors
}

// validateSampler validates the SamplerConfig
func (c *Config) validateSampler() []ValidationError {
	var errors []ValidationError
	s := c.Sampler

	positive := []struct {
		field string
		value int
	}{
		{"sampler.initial_states", s.InitialStates},
		{"sampler.workers", s.Workers},
	}
	for _, p := range positive {
		if p.value < 1 {
			errors = append(errors, ValidationError{Field: p.field, Value: p.value, Message: "must be at least 1"})
		}
	}

	nonNegative := []struct {
		field string
		value int
	}{
		{"sampler.iterations", s.Iterations},
		{"sampler.hyper_every", s.HyperEvery},
		{"sampler.hyper_iterations", s.HyperIterations},
		{"sampler.warmup_sweeps", s.WarmupSweeps},
	}
	for _, n := range nonNegative {
		if n.value < 0 {
			errors = append(errors, ValidationError{Field: n.field, Value: n.value, Message: "must be non-negative"})
		}
	}

	// Zero means "draw from the prior"
	if s.Alpha < 0 {
		errors = append(errors, ValidationError{Field: "sampler.alpha", Value: s.Alpha, Message: "must be non-negative"})
	}
	if s.Gamma < 0 {
		errors = append(errors, ValidationError{Field: "sampler.gamma", Value: s.Gamma, Message: "must be non-negative"})
	}
	if s.EmissionStrength < 0 {
		errors = append(errors, ValidationError{
			Field:   "sampler.emission_strength",
			Value:   s.EmissionStrength,
			Message: "must be non-negative",
		})
	}

	errors = append(errors, validatePrior("sampler.alpha_prior", s.AlphaPrior)...)
	errors = append(errors, validatePrior("sampler.gamma_prior", s.GammaPrior)...)

	return errors
}

func validatePrior(field string, p PriorConfig) []ValidationError {
	var errors []ValidationError
	if !(p.Shape > 0) {
		errors = append(errors, ValidationError{Field: field + ".shape", Value: p.Shape, Message: "must be positive"})
	}
	if !(p.Rate > 0) {
		errors = append(errors, ValidationError{Field: field + ".rate", Value: p.Rate, Message: "must be positive"})
	}
	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}

// validateMetrics validates the MetricsConfig
func (c *Config) validateMetrics() []ValidationError {
	var errors []ValidationError

	if c.Metrics.Addr == "" {
		return errors
	}
	if _, port, err := net.SplitHostPort(c.Metrics.Addr); err != nil || port == "" {
		errors = append(errors, ValidationError{
			Field:   "metrics.addr",
			Value:   c.Metrics.Addr,
			Message: "must be host:port",
		})
	}

	return errors
}
