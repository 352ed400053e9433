package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// Fork copies the lineage of thread src up to and including step into a new
// thread dst. The source thread is not modified. Returns the copy of the
// checkpoint at step.
//
// Returns ErrNotFound if src has no checkpoint at step, and ErrThreadExists
// if dst already has checkpoints.
//
// Savers implementing ThreadWriter store the copy all at once. Other savers
// receive one Put per step, and a failed Put leaves the steps already
// copied in dst.
func Fork(ctx context.Context, saver Saver, src, dst string, step int) (*Checkpoint, error) {
	if src == dst {
		return nil, fmt.Errorf("%w: fork target equals source %q", ErrThreadExists, dst)
	}

	if _, err := saver.Latest(ctx, dst); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrThreadExists, dst)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	var lineage []*Checkpoint
	for cp, err := range saver.History(ctx, src) {
		if err != nil {
			return nil, err
		}
		if cp.Step > step {
			continue
		}
		lineage = append(lineage, cp)
	}
	if len(lineage) == 0 || lineage[0].Step != step {
		return nil, fmt.Errorf("%w: thread %s step %d", ErrNotFound, src, step)
	}

	// History is newest first; replay oldest first so steps stay increasing.
	slices.Reverse(lineage)

	copies := make([]*Checkpoint, len(lineage))
	var parentID string
	for i, orig := range lineage {
		cp := orig.Clone()
		cp.ID = uuid.New().String()
		cp.ThreadID = dst
		cp.Metadata.Source = SourceFork
		cp.Metadata.ParentID = parentID
		cp.Metadata.ForkedFrom = orig.ID
		copies[i] = cp
		parentID = cp.ID
	}

	if tw, ok := saver.(ThreadWriter); ok {
		if err := tw.PutThread(ctx, dst, copies); err != nil {
			return nil, fmt.Errorf("copy lineage: %w", err)
		}
		return copies[len(copies)-1], nil
	}

	for _, cp := range copies {
		if err := saver.Put(ctx, cp); err != nil {
			return nil, fmt.Errorf("copy step %d: %w", cp.Step, err)
		}
	}
	return copies[len(copies)-1], nil
}
