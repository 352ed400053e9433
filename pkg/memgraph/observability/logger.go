// Package observability provides structured logging helpers, OpenTelemetry
// metrics and OpenTelemetry tracing for graph runs.
//
// Metrics and tracing are opt-in and have no-op implementations when
// disabled. All logging helpers accept a nil logger.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds run context to a logger.
// Returns a new logger with thread_id, run_id, node_id and step fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "thread-1", "run-123", "chatbot", 4)
//	enriched.Info("calling model") // includes thread_id, run_id, node_id, step
func EnrichLogger(logger *slog.Logger, threadID, runID, nodeID string, step int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("thread_id", threadID),
		slog.String("run_id", runID),
		slog.String("node_id", nodeID),
		slog.Int("step", step),
	)
}

// LogRunStart logs the start of a graph run. startNode is the entry node for
// a fresh run or the pending node of a resumed one.
func LogRunStart(logger *slog.Logger, threadID, runID, startNode string, fromStep int) {
	if logger == nil {
		return
	}
	logger.Info("graph run starting",
		slog.String("thread_id", threadID),
		slog.String("run_id", runID),
		slog.String("start_node", startNode),
		slog.Int("from_step", fromStep),
	)
}

// LogRunComplete logs successful graph run completion.
func LogRunComplete(logger *slog.Logger, runID string, durationMs float64, steps int) {
	if logger == nil {
		return
	}
	logger.Info("graph run completed",
		slog.String("run_id", runID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("steps", steps),
	)
}

// LogRunError logs graph run failure.
func LogRunError(logger *slog.Logger, runID string, err error, durationMs float64, lastNode string) {
	if logger == nil {
		return
	}
	logger.Error("graph run failed",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
		slog.String("last_node", lastNode),
	)
}

// LogRunInterrupted logs a run suspended by a node waiting for input.
func LogRunInterrupted(logger *slog.Logger, runID, nodeID string, step int) {
	if logger == nil {
		return
	}
	logger.Info("graph run interrupted",
		slog.String("run_id", runID),
		slog.String("node_id", nodeID),
		slog.Int("step", step),
	)
}

// LogNodeStart logs node execution start.
func LogNodeStart(logger *slog.Logger, nodeID string, step int) {
	if logger == nil {
		return
	}
	logger.Debug("node starting",
		slog.String("node_id", nodeID),
		slog.Int("step", step),
	)
}

// LogNodeComplete logs successful node completion with the fields it wrote.
func LogNodeComplete(logger *slog.Logger, nodeID string, durationMs float64, writes []string) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node_id", nodeID),
		slog.Float64("duration_ms", durationMs),
		slog.Any("writes", writes),
	)
}

// LogNodeError logs node execution error.
func LogNodeError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("node failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogCheckpoint logs checkpoint creation.
func LogCheckpoint(logger *slog.Logger, threadID string, step int, next string, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint saved",
		slog.String("thread_id", threadID),
		slog.Int("step", step),
		slog.String("next", next),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogCheckpointError logs a failed checkpoint operation.
func LogCheckpointError(logger *slog.Logger, threadID, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("checkpoint failed",
		slog.String("thread_id", threadID),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// LogStoreError logs a failed long-term store operation.
func LogStoreError(logger *slog.Logger, op string, namespace []string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("store operation failed",
		slog.String("operation", op),
		slog.Any("namespace", namespace),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
