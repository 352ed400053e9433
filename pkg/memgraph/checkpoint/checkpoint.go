package checkpoint

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Version is the current checkpoint format version.
// Increment when making breaking changes to checkpoint structure.
const Version = 1

// Source records what produced a checkpoint.
type Source string

// Checkpoint sources.
const (
	// SourceLoop marks a checkpoint written after a node ran.
	SourceLoop Source = "loop"
	// SourceUpdate marks a checkpoint written by an external state update.
	SourceUpdate Source = "update"
	// SourceFork marks a checkpoint copied into a new thread by Fork.
	SourceFork Source = "fork"
)

// Metadata describes how a checkpoint came to be.
type Metadata struct {
	Source Source `json:"source"`

	// Node is the node whose output this checkpoint captures.
	Node string `json:"node"`

	// Next is the node that runs after this checkpoint, or the terminal
	// sentinel when the run completed.
	Next string `json:"next"`

	// Writes lists the state fields the node wrote, in write order.
	Writes []string `json:"writes,omitempty"`

	RunID      string `json:"run_id,omitempty"`
	ParentID   string `json:"parent_id,omitempty"`
	ForkedFrom string `json:"forked_from,omitempty"`
}

// Checkpoint is an immutable snapshot of graph state at one step of a thread.
type Checkpoint struct {
	Version   int       `json:"version"`
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Step      int       `json:"step"`
	Timestamp time.Time `json:"timestamp"`

	// State is the JSON-encoded state after the step.
	State json.RawMessage `json:"state"`

	Metadata Metadata `json:"metadata"`
}

// New creates a checkpoint for threadID at step.
// State must already be JSON-serialized.
func New(threadID string, step int, state []byte, md Metadata) *Checkpoint {
	return &Checkpoint{
		Version:   Version,
		ID:        uuid.New().String(),
		ThreadID:  threadID,
		Step:      step,
		Timestamp: time.Now().UTC(),
		State:     slices.Clone(state),
		Metadata:  md,
	}
}

// Marshal serializes a checkpoint to JSON.
func (c *Checkpoint) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Unmarshal deserializes a checkpoint from JSON.
func Unmarshal(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Clone returns a deep copy that shares no memory with c.
func (c *Checkpoint) Clone() *Checkpoint {
	cp := *c
	cp.State = slices.Clone(c.State)
	cp.Metadata.Writes = slices.Clone(c.Metadata.Writes)
	return &cp
}

// validate checks the fields every Saver requires.
func (c *Checkpoint) validate() error {
	if c == nil {
		return ErrInvalidCheckpoint
	}
	if c.ThreadID == "" || c.Step < 1 || c.ID == "" {
		return ErrInvalidCheckpoint
	}
	return nil
}
