package memgraph

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/randalmurphal/memgraph/pkg/memgraph/checkpoint"
	"github.com/randalmurphal/memgraph/pkg/memgraph/config"
)

// Snapshot is the state of a thread at one checkpoint.
type Snapshot[S any] struct {
	State    S
	ThreadID string
	Step     int

	// Node is the node whose output the checkpoint holds. START for state
	// written by UpdateState without a node.
	Node string
	// Next is the node that runs when the thread is invoked next, or END.
	Next string

	Source       checkpoint.Source
	Writes       []string
	CheckpointID string
	ParentID     string
	RunID        string
	CreatedAt    time.Time
}

// Pending reports whether the thread has a node left to run.
func (s *Snapshot[S]) Pending() bool {
	return s.Next != "" && s.Next != END
}

// GetState returns the thread's latest snapshot.
// Returns ErrNoCheckpoints if the thread has none.
func (cg *CompiledGraph[S]) GetState(ctx context.Context, rc config.RunConfig) (*Snapshot[S], error) {
	threadID, err := cg.requireThread(rc)
	if err != nil {
		return nil, err
	}

	cp, err := cg.saver.Latest(ctx, threadID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNoCheckpoints, threadID)
	}
	if err != nil {
		return nil, &CheckpointError{Op: "load", Err: err}
	}
	return cg.snapshot(cp)
}

// GetStateAt returns the thread's snapshot at step.
// Returns ErrNoCheckpoints if the thread has no checkpoint at step.
func (cg *CompiledGraph[S]) GetStateAt(ctx context.Context, rc config.RunConfig, step int) (*Snapshot[S], error) {
	threadID, err := cg.requireThread(rc)
	if err != nil {
		return nil, err
	}

	cp, err := cg.saver.Get(ctx, threadID, step)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s step %d", ErrNoCheckpoints, threadID, step)
	}
	if err != nil {
		return nil, &CheckpointError{Op: "load", Err: err}
	}
	return cg.snapshot(cp)
}

// GetStateHistory yields the thread's snapshots, newest first. Checkpoints
// are loaded as the sequence is consumed.
//
// Example:
//
//	for snap, err := range graph.GetStateHistory(ctx, cfg) {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(snap.Step, snap.Node, snap.Next)
//	}
func (cg *CompiledGraph[S]) GetStateHistory(ctx context.Context, rc config.RunConfig) iter.Seq2[*Snapshot[S], error] {
	return func(yield func(*Snapshot[S], error) bool) {
		threadID, err := cg.requireThread(rc)
		if err != nil {
			yield(nil, err)
			return
		}

		for cp, err := range cg.saver.History(ctx, threadID) {
			if err != nil {
				yield(nil, &CheckpointError{Op: "load", Err: err})
				return
			}
			snap, err := cg.snapshot(cp)
			if !yield(snap, err) || err != nil {
				return
			}
		}
	}
}

// Fork copies the thread's checkpoints up to and including step into a new
// thread and returns the new thread's latest snapshot. Invoking the new
// thread continues from that point; the original thread is unchanged.
//
// If newThreadID is empty, a UUID is generated.
func (cg *CompiledGraph[S]) Fork(ctx context.Context, rc config.RunConfig, step int, newThreadID string) (*Snapshot[S], error) {
	threadID, err := cg.requireThread(rc)
	if err != nil {
		return nil, err
	}
	if newThreadID == "" {
		newThreadID = uuid.New().String()
	}

	cp, err := checkpoint.Fork(ctx, cg.saver, threadID, newThreadID, step)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s step %d", ErrNoCheckpoints, threadID, step)
	}
	if err != nil {
		return nil, &CheckpointError{Op: "fork", Err: err}
	}
	return cg.snapshot(cp)
}

// UpdateState merges update into the thread's latest state and records the
// result as a new checkpoint, as if node asNode had returned it.
//
// With asNode set, the next node is resolved from asNode's outgoing edge.
// With asNode empty, the thread keeps its pending node, or starts at the
// entry node if it has no checkpoint yet.
//
// Returns ErrNodeNotFound if asNode is not a node of the graph.
func (cg *CompiledGraph[S]) UpdateState(ctx context.Context, rc config.RunConfig, update Update[S], asNode string, opts ...RunOption) (*Snapshot[S], error) {
	threadID, err := cg.requireThread(rc)
	if err != nil {
		return nil, err
	}
	if asNode != "" && !cg.HasNode(asNode) {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, asNode)
	}

	o := defaultRunOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.runID == "" {
		o.runID = uuid.New().String()
	}

	var state S
	step, parentID, next := 0, "", cg.entryPoint
	latest, err := cg.saver.Latest(ctx, threadID)
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
	case err != nil:
		return nil, &CheckpointError{Op: "load", Err: err}
	default:
		if state, err = cg.decodeState(latest); err != nil {
			return nil, err
		}
		step, parentID, next = latest.Step, latest.ID, latest.Metadata.Next
	}

	merged, writes, err := cg.schema.Apply(state, update)
	if err != nil {
		return nil, fmt.Errorf("apply update: %w", err)
	}

	node := START
	if asNode != "" {
		node = asNode
		ec := &executionContext{
			logger:    o.logger,
			store:     cg.storeFor(&o),
			runConfig: rc,
			runID:     o.runID,
		}
		if next, err = cg.nextNode(ec.forNode(ctx, asNode, step+1), asNode, merged); err != nil {
			return nil, err
		}
	}

	cp, err := cg.persist(ctx, &o, threadID, step+1, checkpoint.Metadata{
		Source:   checkpoint.SourceUpdate,
		Node:     node,
		Next:     next,
		Writes:   writes,
		RunID:    o.runID,
		ParentID: parentID,
	}, merged)
	if err != nil {
		return nil, err
	}
	return cg.snapshot(cp)
}

// requireThread checks that history operations can run for rc.
func (cg *CompiledGraph[S]) requireThread(rc config.RunConfig) (string, error) {
	if cg.saver == nil {
		return "", ErrNoCheckpointer
	}
	threadID := rc.ThreadID()
	if threadID == "" {
		return "", ErrThreadIDRequired
	}
	return threadID, nil
}

func (cg *CompiledGraph[S]) snapshot(cp *checkpoint.Checkpoint) (*Snapshot[S], error) {
	state, err := cg.decodeState(cp)
	if err != nil {
		return nil, err
	}
	return &Snapshot[S]{
		State:        state,
		ThreadID:     cp.ThreadID,
		Step:         cp.Step,
		Node:         cp.Metadata.Node,
		Next:         cp.Metadata.Next,
		Source:       cp.Metadata.Source,
		Writes:       cp.Metadata.Writes,
		CheckpointID: cp.ID,
		ParentID:     cp.Metadata.ParentID,
		RunID:        cp.Metadata.RunID,
		CreatedAt:    cp.Timestamp,
	}, nil
}
