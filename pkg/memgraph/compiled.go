package memgraph

import (
	"maps"
	"slices"

	"github.com/randalmurphal/memgraph/pkg/memgraph/checkpoint"
	"github.com/randalmurphal/memgraph/pkg/memgraph/store"
)

// CompiledGraph is an immutable, executable graph.
// It is created by calling Compile() on a Graph builder.
//
// CompiledGraph is safe for concurrent use; concurrent invocations on
// different threads never interfere. Concurrent invocations on the same
// thread race for the next step and the loser fails with
// checkpoint.ErrStepExists.
type CompiledGraph[S any] struct {
	name       string
	schema     *Schema[S]
	nodes      map[string]NodeFunc[S]
	order      []string
	next       map[string]string
	branches   map[string]branch[S]
	entryPoint string

	saver checkpoint.Saver
	store store.Store
}

// Name returns the graph name given with WithName.
func (cg *CompiledGraph[S]) Name() string {
	return cg.name
}

// EntryPoint returns the entry node ID.
func (cg *CompiledGraph[S]) EntryPoint() string {
	return cg.entryPoint
}

// NodeIDs returns all node identifiers in registration order.
func (cg *CompiledGraph[S]) NodeIDs() []string {
	return slices.Clone(cg.order)
}

// HasNode checks if a node exists in the graph.
func (cg *CompiledGraph[S]) HasNode(id string) bool {
	_, exists := cg.nodes[id]
	return exists
}

// Successors returns the nodes (or END) that may run after id: the static
// edge target, or every target of its decision table in decision order.
// Returns nil for END or unknown nodes.
func (cg *CompiledGraph[S]) Successors(id string) []string {
	if to, ok := cg.next[id]; ok {
		return []string{to}
	}
	b, ok := cg.branches[id]
	if !ok {
		return nil
	}
	var out []string
	for _, d := range slices.Sorted(maps.Keys(b.mapping)) {
		if to := b.mapping[d]; !slices.Contains(out, to) {
			out = append(out, to)
		}
	}
	return out
}

// IsConditional returns true if the node routes through a decision table.
func (cg *CompiledGraph[S]) IsConditional(id string) bool {
	_, ok := cg.branches[id]
	return ok
}

// Schema returns the state schema.
func (cg *CompiledGraph[S]) Schema() *Schema[S] {
	return cg.schema
}

// Checkpointer returns the checkpoint saver, or nil if not configured.
func (cg *CompiledGraph[S]) Checkpointer() checkpoint.Saver {
	return cg.saver
}

// Store returns the long-term store, or nil if not configured.
func (cg *CompiledGraph[S]) Store() store.Store {
	return cg.store
}
