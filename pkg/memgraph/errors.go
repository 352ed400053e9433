package memgraph

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Sentinel errors for graph building and compilation.
var (
	// ErrNoEntryPoint indicates no entry was set before Compile().
	ErrNoEntryPoint = errors.New("entry point not set")

	// ErrEntryNotFound indicates the entry point references a non-existent node.
	ErrEntryNotFound = errors.New("entry point node not found")

	// ErrNodeNotFound indicates an edge references a non-existent node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNoPathToEnd indicates no path exists from the entry point to END.
	ErrNoPathToEnd = errors.New("no path to END from entry")

	// ErrDuplicateNode indicates a node name was registered twice.
	ErrDuplicateNode = errors.New("duplicate node")

	// ErrUnreachableNode indicates a node cannot be reached from the entry.
	ErrUnreachableNode = errors.New("node unreachable from entry")

	// ErrDeadEnd indicates a reachable node has no outgoing edge.
	ErrDeadEnd = errors.New("node has no outgoing edge")

	// ErrAmbiguousEdges indicates a node has more than one way out.
	ErrAmbiguousEdges = errors.New("node has more than one outgoing transition")

	// ErrEmptyBranchMapping indicates a conditional edge with no decisions.
	ErrEmptyBranchMapping = errors.New("conditional edge has no decisions")

	// ErrInvalidSchema indicates an empty schema or a duplicate field.
	ErrInvalidSchema = errors.New("invalid state schema")
)

// Sentinel errors for execution.
var (
	// ErrNodeExecution matches every *NodeError and *PanicError.
	ErrNodeExecution = errors.New("node execution failed")

	// ErrUnknownField indicates an update writes a field outside the schema.
	ErrUnknownField = errors.New("unknown state field")

	// ErrUnmappedBranch indicates a branch returned a decision with no
	// transition.
	ErrUnmappedBranch = errors.New("branch decision has no mapping")

	// ErrMaxSteps indicates the execution loop exceeded the configured limit.
	ErrMaxSteps = errors.New("exceeded maximum steps")

	// ErrNilContext indicates Invoke() was called with a nil context.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrInterrupted matches every *InterruptError.
	ErrInterrupted = errors.New("run interrupted")
)

// Sentinel errors for checkpointing and history.
var (
	// ErrThreadIDRequired indicates a checkpointed graph was run without a
	// thread_id in its run configuration.
	ErrThreadIDRequired = errors.New("thread_id required for checkpointing")

	// ErrNoCheckpointer indicates a history operation on a graph compiled
	// without a checkpointer.
	ErrNoCheckpointer = errors.New("graph has no checkpointer")

	// ErrNoCheckpoints indicates no checkpoints exist for the thread.
	ErrNoCheckpoints = errors.New("no checkpoints found for thread")

	// ErrSerializeState indicates state serialization failed.
	ErrSerializeState = errors.New("failed to serialize state")

	// ErrDeserializeState indicates state deserialization failed.
	ErrDeserializeState = errors.New("failed to deserialize state")

	// ErrInvalidResumeNode indicates a checkpoint names a node the graph
	// does not have.
	ErrInvalidResumeNode = errors.New("invalid resume node")

	// ErrCheckpointVersionMismatch indicates the checkpoint version is incompatible.
	ErrCheckpointVersionMismatch = errors.New("checkpoint version mismatch")
)

// DuplicateNodeError reports a node name registered more than once.
type DuplicateNodeError struct {
	NodeID string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("duplicate node %q", e.NodeID)
}

// Unwrap returns ErrDuplicateNode for errors.Is support.
func (e *DuplicateNodeError) Unwrap() error {
	return ErrDuplicateNode
}

// UnreachableNodeError reports a node no path from the entry leads to.
type UnreachableNodeError struct {
	NodeID string
}

func (e *UnreachableNodeError) Error() string {
	return fmt.Sprintf("node %q is unreachable from entry", e.NodeID)
}

// Unwrap returns ErrUnreachableNode for errors.Is support.
func (e *UnreachableNodeError) Unwrap() error {
	return ErrUnreachableNode
}

// DeadEndError reports a reachable node with no outgoing edge.
type DeadEndError struct {
	NodeID string
}

func (e *DeadEndError) Error() string {
	return fmt.Sprintf("node %q has no outgoing edge", e.NodeID)
}

// Unwrap returns ErrDeadEnd for errors.Is support.
func (e *DeadEndError) Unwrap() error {
	return ErrDeadEnd
}

// CheckpointError wraps errors from checkpoint operations.
type CheckpointError struct {
	// NodeID is the node whose checkpoint failed, if any.
	NodeID string
	// Op is the operation that failed ("save", "load", "serialize", "deserialize").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *CheckpointError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("checkpoint %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("checkpoint %s at node %s: %v", e.Op, e.NodeID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CheckpointError) Unwrap() error {
	return e.Err
}

// NodeError wraps an error with node context.
type NodeError struct {
	// NodeID is the identifier of the node that failed.
	NodeID string
	// Step is the step the node was executing.
	Step int
	// Op is the operation that failed ("execute", "merge").
	Op string
	// Err is the underlying error from the node.
	Err error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s (step %d): %s: %v", e.NodeID, e.Step, e.Op, e.Err)
}

// Unwrap returns the underlying error and ErrNodeExecution.
func (e *NodeError) Unwrap() []error {
	return []error{e.Err, ErrNodeExecution}
}

// PanicError captures panic information from node or branch execution.
type PanicError struct {
	// NodeID is the identifier of the node that panicked.
	NodeID string
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.Value)
}

// Unwrap returns ErrNodeExecution for errors.Is support.
func (e *PanicError) Unwrap() error {
	return ErrNodeExecution
}

// CancellationError reports a run stopped because its context ended.
type CancellationError struct {
	// NodeID is the node that was about to execute.
	NodeID string
	// State is the state at cancellation (can type-assert to the actual type).
	State any
	// Cause is context.Canceled or context.DeadlineExceeded.
	Cause error
}

// Error implements the error interface.
func (e *CancellationError) Error() string {
	return fmt.Sprintf("cancelled before node %s: %v", e.NodeID, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CancellationError) Unwrap() error {
	return e.Cause
}

// UnmappedBranchError reports a decision missing from a conditional
// edge's decision table.
type UnmappedBranchError struct {
	// FromNode is the node with the conditional edge.
	FromNode string
	// Decision is the value the branch returned.
	Decision Decision
	// Known lists the decisions the table maps, sorted.
	Known []Decision
}

// Error implements the error interface.
func (e *UnmappedBranchError) Error() string {
	known := make([]string, len(e.Known))
	for i, d := range e.Known {
		known[i] = string(d)
	}
	return fmt.Sprintf("branch from %s returned %q; mapped decisions: [%s]",
		e.FromNode, e.Decision, strings.Join(known, ", "))
}

// Unwrap returns ErrUnmappedBranch for errors.Is support.
func (e *UnmappedBranchError) Unwrap() error {
	return ErrUnmappedBranch
}

func newUnmappedBranchError(from string, d Decision, mapping map[Decision]string) *UnmappedBranchError {
	known := make([]Decision, 0, len(mapping))
	for k := range mapping {
		known = append(known, k)
	}
	slices.Sort(known)
	return &UnmappedBranchError{FromNode: from, Decision: d, Known: known}
}

// MaxStepsError provides context when the step limit is exceeded.
type MaxStepsError struct {
	// Max is the configured step limit.
	Max int
	// NextNodeID is the node that would have executed next.
	NextNodeID string
	// State is the state at termination (can type-assert to the actual type).
	State any
}

// Error implements the error interface.
func (e *MaxStepsError) Error() string {
	return fmt.Sprintf("exceeded maximum steps (%d) before node %s", e.Max, e.NextNodeID)
}

// Unwrap returns ErrMaxSteps for errors.Is support.
func (e *MaxStepsError) Unwrap() error {
	return ErrMaxSteps
}
