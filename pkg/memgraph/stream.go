package memgraph

import (
	"context"
	"iter"

	"github.com/randalmurphal/memgraph/pkg/memgraph/config"
)

// StreamMode selects what Stream yields after each step.
type StreamMode int

const (
	// StreamValues yields the full state after each step.
	StreamValues StreamMode = iota
	// StreamUpdates yields only what the step's node wrote, applied to a
	// zero state.
	StreamUpdates
)

// String returns the mode name.
func (m StreamMode) String() string {
	switch m {
	case StreamValues:
		return "values"
	case StreamUpdates:
		return "updates"
	default:
		return "unknown"
	}
}

// StreamEvent is one step of a streamed run.
type StreamEvent[S any] struct {
	Mode StreamMode
	// Step is the step number; with a checkpointer it equals the step of
	// the checkpoint the step wrote.
	Step int
	// Node is the node that ran.
	Node string
	// Next is the node that runs after it, or END.
	Next string
	// State is the full state (StreamValues) or the node's update applied
	// to a zero state (StreamUpdates).
	State S
	// Writes lists the fields the node wrote, in write order.
	Writes []string
}

// Stream runs the graph like Invoke and yields an event after every step.
//
// The sequence is synchronous and pull-based: the next node runs only when
// the consumer asks for the next event, and breaking out of the loop stops
// the run after the last yielded step, whose checkpoint is already saved.
// A run error is yielded once as the final element.
//
// Example:
//
//	for ev, err := range graph.Stream(ctx, input, cfg, memgraph.StreamValues) {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(ev.Node, ev.State.Messages)
//	}
func (cg *CompiledGraph[S]) Stream(ctx context.Context, input Update[S], rc config.RunConfig, mode StreamMode, opts ...RunOption) iter.Seq2[StreamEvent[S], error] {
	return func(yield func(StreamEvent[S], error) bool) {
		stopped := false
		_, err := cg.run(ctx, input, rc, opts, func(ev stepEvent[S]) bool {
			out := StreamEvent[S]{
				Mode:   mode,
				Step:   ev.step,
				Node:   ev.node,
				Next:   ev.next,
				Writes: ev.writes,
			}
			if mode == StreamUpdates {
				var zero S
				// Writes were validated when the step merged them.
				out.State, _, _ = cg.schema.Apply(zero, ev.update)
			} else {
				out.State = ev.state
			}

			if !yield(out, nil) {
				stopped = true
				return false
			}
			return true
		})
		if err != nil && !stopped {
			yield(StreamEvent[S]{Mode: mode}, err)
		}
	}
}
