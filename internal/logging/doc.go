// Package logging provides structured logging for ihmm runs.
//
// It wraps log/slog with a JSON handler. A run writes to {dir}/ihmm.log
// when a log directory is configured and to stderr otherwise.
//
// # Context Propagation
//
// Child loggers carry persistent attributes:
//
//	logger, err := logging.NewLogger(dir, "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	runLog := logger.WithRun(runID).WithPhase("sample")
//	runLog.WithIteration(12).Info("iteration complete", "states", 31)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"iteration complete","run_id":"...","phase":"sample","iteration":12,"states":31}
//
// # Testing
//
// Use [Nop] to discard output, or [NewWriterLogger] with a bytes.Buffer to
// assert on records.
//
// # Thread Safety
//
// A [Logger] and its children are safe for concurrent use and share one
// underlying writer.
package logging
