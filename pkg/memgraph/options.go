package memgraph

import (
	"log/slog"

	"github.com/randalmurphal/memgraph/pkg/memgraph/observability"
)

// defaultMaxSteps bounds the steps of one invocation.
const defaultMaxSteps = 1000

// runOptions holds configuration for one invocation.
type runOptions struct {
	maxSteps  int
	runID     string
	logger    *slog.Logger
	metrics   observability.MetricsRecorder
	spans     observability.SpanManager
	resume    any
	hasResume bool
}

// defaultRunOptions returns the default execution configuration.
func defaultRunOptions() runOptions {
	return runOptions{
		maxSteps: defaultMaxSteps,
		logger:   slog.Default(),
		metrics:  observability.NoopMetrics{},
		spans:    observability.NoopSpanManager{},
	}
}

// RunOption configures execution behavior.
type RunOption func(*runOptions)

// WithMaxSteps sets the maximum number of steps one invocation may run.
// Default: 1000
//
// This prevents a cycle in the graph from running forever. If an
// invocation exceeds this limit, it returns a *MaxStepsError.
func WithMaxSteps(n int) RunOption {
	return func(o *runOptions) {
		if n > 0 {
			o.maxSteps = n
		}
	}
}

// WithRunID sets the identifier of this invocation. If not set, a UUID is
// generated. It is recorded in every checkpoint the run writes.
func WithRunID(id string) RunOption {
	return func(o *runOptions) {
		o.runID = id
	}
}

// WithLogger sets the logger for run, node and checkpoint events.
// Default: slog.Default().
func WithLogger(logger *slog.Logger) RunOption {
	return func(o *runOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics enables OpenTelemetry metrics through the global meter
// provider.
func WithMetrics(enabled bool) RunOption {
	return func(o *runOptions) {
		if enabled {
			o.metrics = observability.NewMetricsRecorder()
		} else {
			o.metrics = observability.NoopMetrics{}
		}
	}
}

// WithMetricsRecorder records metrics through r.
func WithMetricsRecorder(r observability.MetricsRecorder) RunOption {
	return func(o *runOptions) {
		if r != nil {
			o.metrics = r
		}
	}
}

// WithTracing enables OpenTelemetry tracing through the global tracer
// provider.
func WithTracing(enabled bool) RunOption {
	return func(o *runOptions) {
		if enabled {
			o.spans = observability.NewSpanManager()
		} else {
			o.spans = observability.NoopSpanManager{}
		}
	}
}

// WithSpanManager traces through sm.
func WithSpanManager(sm observability.SpanManager) RunOption {
	return func(o *runOptions) {
		if sm != nil {
			o.spans = sm
		}
	}
}

// WithResume resumes an interrupted thread. The interrupted node runs again
// and receives value through Context.Resume. Run input, if any, is merged
// into the state before the node runs.
//
// An interrupt at the entry node leaves no checkpoint behind, whether the
// thread is new or its previous run completed. WithResume then starts at
// the entry node; send the input of the interrupted run again with it.
func WithResume(value any) RunOption {
	return func(o *runOptions) {
		o.resume = value
		o.hasResume = true
	}
}
