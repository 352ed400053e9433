package memgraph

import (
	"errors"
	"fmt"
)

// InterruptError reports a run suspended by a node waiting for external
// input. Nothing is persisted for the interrupted node: the thread's latest
// checkpoint still names it as the next node, and
//
//	graph.Invoke(ctx, nil, cfg, memgraph.WithResume(answer))
//
// runs it again with answer available through Context.Resume.
type InterruptError struct {
	// NodeID is the node that interrupted.
	NodeID string
	// Step is the step the node was executing.
	Step int
	// Payload is the value the node passed to Interrupt, typically a
	// question or a description of the action awaiting approval.
	Payload any
}

// Error implements the error interface.
func (e *InterruptError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("interrupted: %v", e.Payload)
	}
	return fmt.Sprintf("interrupted at node %s (step %d): %v", e.NodeID, e.Step, e.Payload)
}

// Unwrap returns ErrInterrupted for errors.Is support.
func (e *InterruptError) Unwrap() error {
	return ErrInterrupted
}

// Interrupt suspends the run at the calling node. Return its result from
// the node:
//
//	func approve(ctx memgraph.Context, s State) (memgraph.Update[State], error) {
//	    answer, ok := ctx.Resume()
//	    if !ok {
//	        return nil, memgraph.Interrupt("approve refund?")
//	    }
//	    ...
//	}
func Interrupt(payload any) error {
	return &InterruptError{Payload: payload}
}

// asInterrupt extracts an interrupt from a node error.
func asInterrupt(err error) (*InterruptError, bool) {
	var ie *InterruptError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}
