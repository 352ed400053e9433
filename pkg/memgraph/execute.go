package memgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/randalmurphal/memgraph/pkg/memgraph/checkpoint"
	"github.com/randalmurphal/memgraph/pkg/memgraph/config"
	"github.com/randalmurphal/memgraph/pkg/memgraph/observability"
)

// stepEvent is what the loop reports after each completed step.
type stepEvent[S any] struct {
	step   int
	node   string
	next   string
	state  S
	update Update[S]
	writes []string
}

// startPoint is where an invocation begins.
type startPoint[S any] struct {
	state    S
	step     int    // step of the thread's latest checkpoint, 0 if none
	parentID string // ID of the thread's latest checkpoint
	node     string
	resuming bool
}

// Invoke runs the graph on the thread named by rc and returns the final
// state.
//
// With a checkpointer, the thread's latest checkpoint is loaded first. If
// it names a pending node (an earlier run failed or was interrupted) and
// input is empty, execution continues at that node. Otherwise input is
// merged into the loaded state and execution starts at the entry node.
// Every completed step appends one checkpoint; a failing node appends
// nothing, so re-invoking the thread retries it.
//
// On error, the returned state is the state before the failing step.
//
// Example:
//
//	cfg := config.NewRunConfig("thread-1", nil)
//	final, err := graph.Invoke(ctx, memgraph.Update[Chat]{
//	    messages.Append(message.User("hi")),
//	}, cfg)
func (cg *CompiledGraph[S]) Invoke(ctx context.Context, input Update[S], rc config.RunConfig, opts ...RunOption) (S, error) {
	return cg.run(ctx, input, rc, opts, nil)
}

// run executes one invocation. emit, if set, is called after every step and
// stops the run when it returns false.
func (cg *CompiledGraph[S]) run(ctx context.Context, input Update[S], rc config.RunConfig, opts []RunOption, emit func(stepEvent[S]) bool) (result S, runErr error) {
	if ctx == nil {
		return result, ErrNilContext
	}

	o := defaultRunOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.runID == "" {
		o.runID = uuid.New().String()
	}

	threadID := rc.ThreadID()
	if cg.saver != nil && threadID == "" {
		return result, ErrThreadIDRequired
	}

	sp, err := cg.prepare(ctx, input, threadID, &o)
	if err != nil {
		return sp.state, err
	}

	startTime := time.Now()
	observability.LogRunStart(o.logger, threadID, o.runID, sp.node, sp.step)
	spanCtx, runSpan := o.spans.StartRunSpan(ctx, cg.name, threadID, o.runID)

	steps := 0
	lastNode := sp.node
	defer func() {
		duration := time.Since(startTime)
		durationMs := float64(duration.Microseconds()) / 1000

		outcome := observability.OutcomeCompleted
		spanErr := runErr
		switch {
		case runErr == nil:
			observability.LogRunComplete(o.logger, o.runID, durationMs, steps)
		case errors.Is(runErr, ErrInterrupted):
			outcome = observability.OutcomeInterrupted
			spanErr = nil
			observability.LogRunInterrupted(o.logger, o.runID, lastNode, sp.step+steps+1)
		default:
			outcome = observability.OutcomeFailed
			observability.LogRunError(o.logger, o.runID, runErr, durationMs, lastNode)
		}
		o.metrics.RecordGraphRun(ctx, cg.name, outcome, duration, steps)
		o.spans.EndSpanWithError(runSpan, spanErr)
	}()

	ec := &executionContext{
		logger:    o.logger,
		store:     cg.storeFor(&o),
		runConfig: rc,
		runID:     o.runID,
	}

	state := sp.state
	current := sp.node
	stepNo := sp.step
	parentID := sp.parentID
	resuming := sp.resuming && o.hasResume

	for current != END {
		if steps >= o.maxSteps {
			return state, &MaxStepsError{Max: o.maxSteps, NextNodeID: current, State: state}
		}

		// Check for cancellation before executing node
		if err := ctx.Err(); err != nil {
			return state, &CancellationError{NodeID: current, State: state, Cause: err}
		}

		stepNo++
		lastNode = current

		observability.LogNodeStart(o.logger, current, stepNo)
		nodeSpanCtx, nodeSpan := o.spans.StartNodeSpan(spanCtx, current, stepNo)
		nodeCtx := ec.forNode(nodeSpanCtx, current, stepNo)
		if resuming {
			nodeCtx.resume, nodeCtx.hasResume = o.resume, true
			resuming = false
		}

		nodeStart := time.Now()
		res, err := cg.step(nodeCtx, current, state)
		nodeDuration := time.Since(nodeStart)

		ie, interrupted := asInterrupt(err)
		nodeErr := err
		if interrupted {
			nodeErr = nil
		}
		o.metrics.RecordNodeExecution(nodeSpanCtx, current, nodeDuration, nodeErr)
		o.spans.EndSpanWithError(nodeSpan, nodeErr)

		if interrupted {
			return state, &InterruptError{NodeID: current, Step: stepNo, Payload: ie.Payload}
		}
		if err != nil {
			observability.LogNodeError(o.logger, current, err)
			return state, err
		}
		observability.LogNodeComplete(o.logger, current, float64(nodeDuration.Microseconds())/1000, res.writes)

		if cg.saver != nil {
			cp, err := cg.persist(ctx, &o, threadID, stepNo, checkpoint.Metadata{
				Source:   checkpoint.SourceLoop,
				Node:     current,
				Next:     res.next,
				Writes:   res.writes,
				RunID:    o.runID,
				ParentID: parentID,
			}, res.state)
			if err != nil {
				return state, err
			}
			parentID = cp.ID
			o.spans.AddSpanEvent(spanCtx, "checkpoint.saved")
		}

		steps++
		state = res.state

		if emit != nil && !emit(stepEvent[S]{
			step:   stepNo,
			node:   current,
			next:   res.next,
			state:  state,
			update: res.update,
			writes: res.writes,
		}) {
			return state, nil
		}

		current = res.next
	}

	return state, nil
}

// prepare loads the thread's latest checkpoint and picks the start node.
func (cg *CompiledGraph[S]) prepare(ctx context.Context, input Update[S], threadID string, o *runOptions) (startPoint[S], error) {
	sp := startPoint[S]{node: cg.entryPoint}

	pending := ""
	if cg.saver != nil {
		cp, err := cg.saver.Latest(ctx, threadID)
		switch {
		case errors.Is(err, checkpoint.ErrNotFound):
		case err != nil:
			observability.LogCheckpointError(o.logger, threadID, "load", err)
			return sp, &CheckpointError{Op: "load", Err: err}
		default:
			state, err := cg.decodeState(cp)
			if err != nil {
				return sp, err
			}
			sp.state, sp.step, sp.parentID = state, cp.Step, cp.ID
			if cp.Metadata.Next != END {
				pending = cp.Metadata.Next
			}
		}
	}

	// An interrupt at the entry node leaves no checkpoint, so the thread
	// looks empty or finished; the entry node runs again on the re-sent input.
	if o.hasResume && pending == "" {
		sp.resuming = true
	}

	if pending != "" && (len(input) == 0 || o.hasResume) {
		if !cg.HasNode(pending) {
			return sp, fmt.Errorf("%w: %s", ErrInvalidResumeNode, pending)
		}
		sp.node = pending
		sp.resuming = true
	}

	state, _, err := cg.schema.Apply(sp.state, input)
	if err != nil {
		return sp, fmt.Errorf("apply input: %w", err)
	}
	sp.state = state
	return sp, nil
}

// decodeState restores the state held by a checkpoint.
func (cg *CompiledGraph[S]) decodeState(cp *checkpoint.Checkpoint) (S, error) {
	var state S
	if cp.Version != checkpoint.Version {
		return state, &CheckpointError{
			NodeID: cp.Metadata.Node,
			Op:     "load",
			Err: fmt.Errorf("%w: got %d, expected %d",
				ErrCheckpointVersionMismatch, cp.Version, checkpoint.Version),
		}
	}
	if err := json.Unmarshal(cp.State, &state); err != nil {
		return state, &CheckpointError{
			NodeID: cp.Metadata.Node,
			Op:     "deserialize",
			Err:    fmt.Errorf("%w: %v", ErrDeserializeState, err),
		}
	}
	return state, nil
}

// persist appends a checkpoint holding state to the thread.
// A step that completed is saved even if ctx was cancelled meanwhile.
func (cg *CompiledGraph[S]) persist(ctx context.Context, o *runOptions, threadID string, step int, md checkpoint.Metadata, state S) (*checkpoint.Checkpoint, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, &CheckpointError{
			NodeID: md.Node,
			Op:     "serialize",
			Err:    fmt.Errorf("%w: %v", ErrSerializeState, err),
		}
	}

	cp := checkpoint.New(threadID, step, data, md)
	if err := cg.saver.Put(context.WithoutCancel(ctx), cp); err != nil {
		observability.LogCheckpointError(o.logger, threadID, "save", err)
		return nil, &CheckpointError{NodeID: md.Node, Op: "save", Err: err}
	}

	observability.LogCheckpoint(o.logger, threadID, step, md.Next, len(data))
	o.metrics.RecordCheckpoint(ctx, md.Node, int64(len(data)))
	return cp, nil
}

// stepResult is the outcome of running one node.
type stepResult[S any] struct {
	state  S
	update Update[S]
	writes []string
	next   string
}

// step runs a node, merges its update and resolves the next node.
// An interrupt is returned unwrapped.
func (cg *CompiledGraph[S]) step(ctx *executionContext, nodeID string, state S) (stepResult[S], error) {
	var res stepResult[S]

	update, err := cg.executeNode(ctx, nodeID, state)
	if err != nil {
		return res, err
	}

	merged, writes, err := cg.schema.Apply(state, update)
	if err != nil {
		return res, &NodeError{NodeID: nodeID, Step: ctx.step, Op: "merge", Err: err}
	}

	next, err := cg.nextNode(ctx, nodeID, merged)
	if err != nil {
		return res, err
	}

	return stepResult[S]{state: merged, update: update, writes: writes, next: next}, nil
}

// executeNode executes a single node with panic recovery.
func (cg *CompiledGraph[S]) executeNode(ctx *executionContext, nodeID string, state S) (update Update[S], err error) {
	fn, exists := cg.nodes[nodeID]
	if !exists {
		// Compile guarantees every reachable node exists
		return nil, &NodeError{NodeID: nodeID, Step: ctx.step, Op: "lookup", Err: ErrNodeNotFound}
	}

	defer func() {
		if r := recover(); r != nil {
			update = nil
			err = &PanicError{NodeID: nodeID, Value: r, Stack: string(debug.Stack())}
		}
	}()

	update, err = fn(ctx, state)
	if err != nil {
		if _, ok := asInterrupt(err); ok {
			return nil, err
		}
		return nil, &NodeError{NodeID: nodeID, Step: ctx.step, Op: "execute", Err: err}
	}
	return update, nil
}

// nextNode resolves the transition out of current.
func (cg *CompiledGraph[S]) nextNode(ctx Context, current string, state S) (next string, err error) {
	if to, ok := cg.next[current]; ok {
		return to, nil
	}

	b, ok := cg.branches[current]
	if !ok {
		// Compile guarantees every reachable node has an outgoing edge
		return "", fmt.Errorf("%w: %s", ErrDeadEnd, current)
	}

	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{NodeID: current, Value: r, Stack: string(debug.Stack())}
		}
	}()

	d := b.predicate(ctx, state)
	to, ok := b.mapping[d]
	if !ok {
		return "", newUnmappedBranchError(current, d, b.mapping)
	}
	return to, nil
}
