package config

import (
	"errors"
	"fmt"
)

// Well-known run configuration keys.
const (
	// KeyThreadID selects the checkpoint lineage a run reads and extends.
	KeyThreadID = "thread_id"
	// KeyUserID identifies the end user; nodes use it to address long-term
	// memory. The engine never interprets it.
	KeyUserID = "user_id"
)

// ErrMissingThreadID indicates a run configuration without a thread_id.
var ErrMissingThreadID = errors.New("run config: thread_id is required")

// RunConfig is the configuration passed to a single graph invocation.
// Besides thread_id and user_id it may carry any caller-defined keys
// (session_type, device_id, ...) for nodes to read.
type RunConfig struct {
	Config
}

// NewRunConfig creates a RunConfig for threadID with optional extra keys.
// An explicit threadID takes precedence over a thread_id in extra.
func NewRunConfig(threadID string, extra map[string]any) RunConfig {
	c := New(extra)
	if threadID != "" {
		c = c.With(KeyThreadID, threadID)
	}
	return RunConfig{Config: c}
}

// LoadRunConfig reads a RunConfig from a YAML or JSON file.
func LoadRunConfig(path string) (RunConfig, error) {
	c, err := FromFile(path)
	if err != nil {
		return RunConfig{}, err
	}
	rc := RunConfig{Config: c}
	if err := rc.Validate(); err != nil {
		return RunConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return rc, nil
}

// ThreadID returns the configured thread, or "" if none.
func (r RunConfig) ThreadID() string {
	return r.String(KeyThreadID, "")
}

// UserID returns the configured user, or "" if none.
func (r RunConfig) UserID() string {
	return r.String(KeyUserID, "")
}

// With returns a copy of r with key set to value.
func (r RunConfig) With(key string, value any) RunConfig {
	return RunConfig{Config: r.Config.With(key, value)}
}

// WithThread returns a copy of r addressing threadID.
func (r RunConfig) WithThread(threadID string) RunConfig {
	return r.With(KeyThreadID, threadID)
}

// Validate checks that a thread_id is present.
func (r RunConfig) Validate() error {
	if r.ThreadID() == "" {
		return ErrMissingThreadID
	}
	return nil
}
