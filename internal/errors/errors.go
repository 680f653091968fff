// Package errors provides centralized error definitions and error handling
// utilities for the ihmm sampler. It defines sentinel errors, typed errors
// carrying the position in the corpus or the sampling run where a failure
// happened, and classification helpers.
//
// # Error Types
//
// Domain-specific errors name the subsystem that failed:
//   - CorpusError: malformed input (empty corpus, residue outside the alphabet)
//   - SamplerError: failures inside an iteration (worker fault, empty active set)
//   - ModelError: structurally invalid model state (length mismatch, bad simplex)
//
// Semantic errors represent common conditions:
//   - NotFoundError: a model or sequence file does not exist
//
// # Usage
//
//	err := errors.NewCorpusError("symbol outside alphabet", errors.ErrSymbolOutOfRange).
//	    WithSequence(3, "chr1").WithPosition(17)
//
//	if errors.Is(err, errors.ErrSymbolOutOfRange) { ... }
//
//	var samplerErr *errors.SamplerError
//	if errors.As(err, &samplerErr) { ... }
//
// # Severity
//
// Precondition violations are SeverityError. Conditions that indicate a
// broken sampler invariant (an empty active set, a worker panic) are
// SeverityCritical and reported by IsFatal.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for broken invariants; the run cannot continue.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Corpus-related sentinel errors
var (
	// ErrEmptyCorpus indicates that the corpus holds no sequences.
	ErrEmptyCorpus = New("corpus has no sequences")
	// ErrEmptySequence indicates a sequence of length zero.
	ErrEmptySequence = New("sequence is empty")
	// ErrSymbolOutOfRange indicates a symbol outside [0, alphabet size).
	ErrSymbolOutOfRange = New("symbol outside alphabet")
	// ErrUnknownResidue indicates a character in an input file that the
	// detected alphabet cannot encode.
	ErrUnknownResidue = New("unknown residue")
	// ErrPathLength indicates a state path whose length differs from its sequence.
	ErrPathLength = New("state path length mismatch")
)

// Sampler-related sentinel errors
var (
	// ErrEmptyActiveSet indicates that no state survived the slice at some
	// position. The slice construction makes this impossible, so observing
	// it means the sampler is broken.
	ErrEmptyActiveSet = New("empty active set")
	// ErrWorkerFault indicates that a worker panicked during the parallel phase.
	ErrWorkerFault = New("worker fault")
	// ErrCanceled indicates that the run was canceled between phases.
	ErrCanceled = New("run canceled")
)

// Model-related sentinel errors
var (
	// ErrInvalidModel indicates structurally invalid model state.
	ErrInvalidModel = New("invalid model")
	// ErrInvalidHyperparameter indicates a non-positive concentration or prior.
	ErrInvalidHyperparameter = New("invalid hyperparameter")
	// ErrModelNotFound indicates that a saved model could not be found.
	ErrModelNotFound = New("model not found")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// SamplerFailure is the base interface for all ihmm errors.
type SamplerFailure interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity
}

// baseError provides common functionality for all error types.
type baseError struct {
	message  string
	cause    error
	severity Severity
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// format renders "<kind> [k=v, ...]: message: cause".
func (e *baseError) format(kind string, parts []string) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// CorpusError represents a precondition violation in the input corpus.
//
// Example:
//
//	err := errors.NewCorpusError("bad residue", errors.ErrUnknownResidue).WithSequence(0, "seq1")
//	fmt.Println(err) // "corpus error [seq=0, name=seq1]: bad residue: unknown residue"
type CorpusError struct {
	baseError
	Sequence int
	Name     string
	Position int
}

// NewCorpusError creates a new CorpusError.
func NewCorpusError(message string, cause error) *CorpusError {
	return &CorpusError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
		Sequence: -1,
		Position: -1,
	}
}

// WithSequence adds the sequence index and name to the error context.
func (e *CorpusError) WithSequence(index int, name string) *CorpusError {
	e.Sequence = index
	e.Name = name
	return e
}

// WithPosition adds the offending position to the error context.
func (e *CorpusError) WithPosition(pos int) *CorpusError {
	e.Position = pos
	return e
}

// Error returns the formatted error message.
func (e *CorpusError) Error() string {
	var parts []string
	if e.Sequence >= 0 {
		parts = append(parts, fmt.Sprintf("seq=%d", e.Sequence))
	}
	if e.Name != "" {
		parts = append(parts, fmt.Sprintf("name=%s", e.Name))
	}
	if e.Position >= 0 {
		parts = append(parts, fmt.Sprintf("pos=%d", e.Position))
	}
	return e.format("corpus error", parts)
}

// Is checks if this error matches the target.
func (e *CorpusError) Is(target error) bool {
	if _, ok := target.(*CorpusError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// SamplerError represents a failure during a sampling iteration.
//
// Example:
//
//	err := errors.NewSamplerError("forward pass", errors.ErrEmptyActiveSet).
//	    WithIteration(12).WithSequence(4).WithPosition(90)
type SamplerError struct {
	baseError
	Iteration int
	Sequence  int
	Position  int
	Worker    int
}

// NewSamplerError creates a new SamplerError. Errors wrapping
// ErrEmptyActiveSet or ErrWorkerFault are critical.
func NewSamplerError(message string, cause error) *SamplerError {
	severity := SeverityError
	if errors.Is(cause, ErrEmptyActiveSet) || errors.Is(cause, ErrWorkerFault) {
		severity = SeverityCritical
	}
	return &SamplerError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: severity,
		},
		Iteration: -1,
		Sequence:  -1,
		Position:  -1,
		Worker:    -1,
	}
}

// WithIteration adds the outer iteration index to the error context.
func (e *SamplerError) WithIteration(i int) *SamplerError {
	e.Iteration = i
	return e
}

// WithSequence adds the sequence index to the error context.
func (e *SamplerError) WithSequence(i int) *SamplerError {
	e.Sequence = i
	return e
}

// WithPosition adds the sequence position to the error context.
func (e *SamplerError) WithPosition(pos int) *SamplerError {
	e.Position = pos
	return e
}

// WithWorker adds the worker index to the error context.
func (e *SamplerError) WithWorker(w int) *SamplerError {
	e.Worker = w
	return e
}

// Error returns the formatted error message.
func (e *SamplerError) Error() string {
	var parts []string
	if e.Iteration >= 0 {
		parts = append(parts, fmt.Sprintf("iter=%d", e.Iteration))
	}
	if e.Worker >= 0 {
		parts = append(parts, fmt.Sprintf("worker=%d", e.Worker))
	}
	if e.Sequence >= 0 {
		parts = append(parts, fmt.Sprintf("seq=%d", e.Sequence))
	}
	if e.Position >= 0 {
		parts = append(parts, fmt.Sprintf("pos=%d", e.Position))
	}
	return e.format("sampler error", parts)
}

// Is checks if this error matches the target.
func (e *SamplerError) Is(target error) bool {
	if _, ok := target.(*SamplerError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ModelError represents structurally invalid model state.
type ModelError struct {
	baseError
	Field string
}

// NewModelError creates a new ModelError.
func NewModelError(message string, cause error) *ModelError {
	return &ModelError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
	}
}

// WithField names the offending model field.
func (e *ModelError) WithField(field string) *ModelError {
	e.Field = field
	return e
}

// Error returns the formatted error message.
func (e *ModelError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	return e.format("model error", parts)
}

// Is checks if this error matches the target.
func (e *ModelError) Is(target error) bool {
	if _, ok := target.(*ModelError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidModel) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("model", "run.ihmm")
//	fmt.Println(err) // "model 'run.ihmm' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:  fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity: SeverityWarning,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	if e.ResourceType == "model" && errors.Is(target, ErrModelNotFound) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement SamplerFailure.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var failure SamplerFailure
	if As(err, &failure) {
		return failure.Severity()
	}

	return SeverityError
}

// IsFatal reports whether err signals a broken sampler invariant.
func IsFatal(err error) bool {
	return GetSeverity(err) == SeverityCritical
}

// IsPrecondition reports whether err is a corpus or model precondition
// violation detected before sampling began.
func IsPrecondition(err error) bool {
	if err == nil {
		return false
	}

	var corpusErr *CorpusError
	var modelErr *ModelError
	return As(err, &corpusErr) || As(err, &modelErr)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
