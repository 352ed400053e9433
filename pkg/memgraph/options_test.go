package memgraph

import (
	"log/slog"
	"testing"

	"github.com/randalmurphal/memgraph/pkg/memgraph/observability"
	"github.com/stretchr/testify/assert"
)

func TestRunOptions_Defaults(t *testing.T) {
	o := defaultRunOptions()

	assert.Equal(t, 1000, o.maxSteps)
	assert.NotNil(t, o.logger)
	assert.IsType(t, observability.NoopMetrics{}, o.metrics)
	assert.IsType(t, observability.NoopSpanManager{}, o.spans)
	assert.False(t, o.hasResume)
}

func TestRunOptions_Apply(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	o := defaultRunOptions()

	for _, opt := range []RunOption{
		WithMaxSteps(7),
		WithRunID("run-9"),
		WithLogger(logger),
		WithResume(nil),
	} {
		opt(&o)
	}

	assert.Equal(t, 7, o.maxSteps)
	assert.Equal(t, "run-9", o.runID)
	assert.Same(t, logger, o.logger)
	assert.True(t, o.hasResume, "a nil resume value still resumes")
}

func TestRunOptions_IgnoresInvalid(t *testing.T) {
	o := defaultRunOptions()

	WithMaxSteps(0)(&o)
	WithMaxSteps(-3)(&o)
	WithLogger(nil)(&o)
	WithMetricsRecorder(nil)(&o)
	WithSpanManager(nil)(&o)

	assert.Equal(t, 1000, o.maxSteps)
	assert.NotNil(t, o.logger)
	assert.NotNil(t, o.metrics)
	assert.NotNil(t, o.spans)
}

func TestRunOptions_Toggles(t *testing.T) {
	o := defaultRunOptions()

	WithMetrics(true)(&o)
	WithTracing(true)(&o)
	assert.NotEqual(t, observability.NoopMetrics{}, o.metrics)

	WithMetrics(false)(&o)
	WithTracing(false)(&o)
	assert.IsType(t, observability.NoopMetrics{}, o.metrics)
	assert.IsType(t, observability.NoopSpanManager{}, o.spans)
}

func TestCompileOptions(t *testing.T) {
	cfg := compileConfig{name: "memgraph"}

	WithName("")(&cfg)
	assert.Equal(t, "memgraph", cfg.name)

	WithName("support")(&cfg)
	assert.Equal(t, "support", cfg.name)
}
