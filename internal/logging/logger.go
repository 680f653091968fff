package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LogFile is the name of the log file written inside a log directory.
const LogFile = "ihmm.log"

// Log levels supported by the logger
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// closer is shared by a logger and all of its children so that closing any
// of them closes the file exactly once.
type closer struct {
	mu   sync.Mutex
	file *os.File
}

func (c *closer) close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.file == nil {
		return nil
	}
	if err := c.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	if err := c.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	c.file = nil
	return nil
}

// Logger writes JSON records through log/slog and carries persistent
// attributes (run, phase, iteration). It is safe for concurrent use.
type Logger struct {
	logger *slog.Logger
	closer *closer
}

// NewLogger creates a Logger writing to {dir}/ihmm.log, or to stderr when
// dir is empty. Unknown level strings select INFO.
func NewLogger(dir string, level string) (*Logger, error) {
	if dir == "" {
		return NewWriterLogger(os.Stderr, level), nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(filepath.Join(dir, LogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := NewWriterLogger(file, level)
	l.closer = &closer{file: file}
	return l, nil
}

// NewWriterLogger creates a Logger writing JSON records to w.
func NewWriterLogger(w io.Writer, level string) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return &Logger{logger: slog.New(handler)}
}

// Nop returns a Logger that discards all output.
func Nop() *Logger {
	return NewWriterLogger(io.Discard, LevelError)
}

// OrNop returns l, or a discarding logger when l is nil.
func OrNop(l *Logger) *Logger {
	if l == nil {
		return Nop()
	}
	return l
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch ParseLevel(level) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithRun returns a child logger tagging every record with the run ID.
func (l *Logger) WithRun(runID string) *Logger {
	return l.With("run_id", runID)
}

// WithPhase returns a child logger tagging every record with the phase,
// for example "init", "warmup", "sample" or "save".
func (l *Logger) WithPhase(phase string) *Logger {
	return l.With("phase", phase)
}

// WithIteration returns a child logger tagging every record with the outer
// iteration index.
func (l *Logger) WithIteration(i int) *Logger {
	return l.With("iteration", i)
}

// With returns a child logger with alternating key-value attributes.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}
	return &Logger{logger: l.logger.With(args...), closer: l.closer}
}

// Enabled reports whether records at level would be written.
func (l *Logger) Enabled(level slog.Level) bool {
	return l.logger.Enabled(context.Background(), level)
}

// Debug logs at DEBUG level.
func (l *Logger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

// Info logs at INFO level.
func (l *Logger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
}

// Warn logs at WARN level.
func (l *Logger) Warn(msg string, args ...any) {
	l.logger.Warn(msg, args...)
}

// Error logs at ERROR level.
func (l *Logger) Error(msg string, args ...any) {
	l.logger.Error(msg, args...)
}

// Slog exposes the underlying slog.Logger.
func (l *Logger) Slog() *slog.Logger {
	return l.logger
}

// Close syncs and closes the log file. It is a no-op for loggers without a
// file and safe to call more than once.
func (l *Logger) Close() error {
	return l.closer.close()
}

// ParseLevel normalizes a level string, returning LevelInfo when it is not
// recognized.
func ParseLevel(level string) string {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn, "WARNING":
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

// ValidLevels returns the list of valid log level strings.
func ValidLevels() []string {
	return []string{LevelDebug, LevelInfo, LevelWarn, LevelError}
}
