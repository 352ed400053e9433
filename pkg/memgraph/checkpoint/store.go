// Package checkpoint provides append-only checkpoint storage: the
// short-term, per-thread memory of a graph.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"iter"
)

// Saver persists checkpoints keyed by thread.
// Checkpoints are never overwritten or deleted.
// Implementations must be safe for concurrent use.
type Saver interface {
	// Put appends a checkpoint to its thread.
	// Returns ErrStepExists if the thread already has a checkpoint at or
	// after cp.Step; the existing log is left untouched.
	Put(ctx context.Context, cp *Checkpoint) error

	// Latest returns the most recent checkpoint of a thread.
	// Returns ErrNotFound if the thread has none.
	Latest(ctx context.Context, threadID string) (*Checkpoint, error)

	// Get returns the checkpoint of a thread at a specific step.
	// Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, threadID string, step int) (*Checkpoint, error)

	// History yields the checkpoints of a thread, newest first.
	// The sequence is lazy and may be iterated more than once.
	History(ctx context.Context, threadID string) iter.Seq2[*Checkpoint, error]

	// Threads returns the IDs of all threads with checkpoints.
	Threads(ctx context.Context) ([]string, error)

	// Close releases any resources (connections, files).
	Close() error
}

// ThreadWriter is implemented by savers that can store a whole new thread
// at once. Fork uses it when available so a failed copy leaves nothing
// behind.
type ThreadWriter interface {
	// PutThread stores cps, in increasing step order, as the log of a
	// thread with no checkpoints. Either every checkpoint is stored or none.
	// Returns ErrThreadExists if the thread already has checkpoints.
	PutThread(ctx context.Context, threadID string, cps []*Checkpoint) error
}

// validateThread checks that cps form a valid log for threadID.
func validateThread(threadID string, cps []*Checkpoint) error {
	if threadID == "" || len(cps) == 0 {
		return ErrInvalidCheckpoint
	}
	for i, cp := range cps {
		if err := cp.validate(); err != nil {
			return err
		}
		if cp.ThreadID != threadID {
			return fmt.Errorf("%w: checkpoint %s belongs to thread %s", ErrInvalidCheckpoint, cp.ID, cp.ThreadID)
		}
		if i > 0 && cps[i-1].Step >= cp.Step {
			return ErrStepExists
		}
	}
	return nil
}

// Sentinel errors for checkpoint operations.
var (
	// ErrNotFound indicates a checkpoint doesn't exist.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("checkpoint store closed")

	// ErrStepExists indicates a checkpoint at or after the step is already recorded.
	ErrStepExists = errors.New("checkpoint step already recorded")

	// ErrInvalidCheckpoint indicates a checkpoint is missing its ID, thread or step.
	ErrInvalidCheckpoint = errors.New("invalid checkpoint")

	// ErrThreadExists indicates a fork target thread already has checkpoints.
	ErrThreadExists = errors.New("thread already has checkpoints")
)
