package memgraph

import (
	"maps"
	"strings"
	"sync"
)

// branch is a conditional edge: a predicate and its decision table.
type branch[S any] struct {
	predicate BranchFunc[S]
	mapping   map[Decision]string
}

// Graph is a mutable builder for creating execution graphs.
// Use NewGraph to create a new graph, then chain AddNode, AddEdge
// and AddConditionalEdges calls to define the workflow.
//
// Graph is NOT thread-safe during building. Use a single goroutine
// to construct the graph, then call Compile() to create an immutable
// CompiledGraph that can be safely shared.
//
// Example:
//
//	graph := memgraph.NewGraph(memgraph.MessagesSchema()).
//	    AddNode("chatbot", chatbot).
//	    AddNode("tools", tools).
//	    AddEdge(memgraph.START, "chatbot").
//	    AddConditionalEdges("chatbot", route, map[memgraph.Decision]string{
//	        "tools": "tools",
//	        "done":  memgraph.END,
//	    }).
//	    AddEdge("tools", "chatbot")
//
//	compiled, err := graph.Compile(memgraph.WithCheckpointer(saver))
type Graph[S any] struct {
	mu         sync.RWMutex
	schema     *Schema[S]
	nodes      map[string]NodeFunc[S]
	order      []string
	edges      map[string][]string
	branches   map[string][]branch[S]
	entryPoint string
	duplicates []string
}

// NewGraph creates a new graph builder whose state merges through schema.
func NewGraph[S any](schema *Schema[S]) *Graph[S] {
	return &Graph[S]{
		schema:   schema,
		nodes:    make(map[string]NodeFunc[S]),
		edges:    make(map[string][]string),
		branches: make(map[string][]branch[S]),
	}
}

// AddNode adds a named node to the graph.
// Returns the graph for method chaining.
//
// Registering a name twice is reported by Compile as a *DuplicateNodeError;
// the first registration is kept.
//
// Panics if:
//   - id is empty
//   - id is a reserved name (START, END, "start" or "end" in any case)
//   - id contains whitespace (space, tab, newline)
//   - fn is nil
func (g *Graph[S]) AddNode(id string, fn NodeFunc[S]) *Graph[S] {
	if id == "" {
		panic("memgraph: node ID cannot be empty")
	}

	switch strings.ToLower(id) {
	case "start", "end", START, END:
		panic("memgraph: node ID cannot be reserved word '" + id + "'")
	}

	if strings.ContainsAny(id, " \t\n\r") {
		panic("memgraph: node ID cannot contain whitespace")
	}

	if fn == nil {
		panic("memgraph: node function cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[id]; exists {
		g.duplicates = append(g.duplicates, id)
		return g
	}

	g.nodes[id] = fn
	g.order = append(g.order, id)
	return g
}

// AddEdge adds an unconditional edge from one node to another.
// The target can be a node ID or END. AddEdge(START, id) sets the entry.
// Returns the graph for method chaining.
//
// Edge validation happens at Compile() time, not here.
// This allows edges to be added in any order.
func (g *Graph[S]) AddEdge(from, to string) *Graph[S] {
	if from == START {
		return g.SetEntry(to)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.edges[from] = append(g.edges[from], to)
	return g
}

// AddConditionalEdges routes out of from by decision: after from runs,
// predicate sees the merged state and its Decision selects the target in
// mapping. Targets may be node IDs or END.
// Returns the graph for method chaining.
//
// A decision missing from mapping fails the run with *UnmappedBranchError.
// There is no default branch.
//
// Panics if predicate is nil.
func (g *Graph[S]) AddConditionalEdges(from string, predicate BranchFunc[S], mapping map[Decision]string) *Graph[S] {
	if predicate == nil {
		panic("memgraph: branch function cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.branches[from] = append(g.branches[from], branch[S]{
		predicate: predicate,
		mapping:   maps.Clone(mapping),
	})
	return g
}

// SetEntry designates the entry point node.
// Equivalent to AddEdge(START, id).
// Returns the graph for method chaining.
//
// Entry point validation happens at Compile() time.
func (g *Graph[S]) SetEntry(id string) *Graph[S] {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.entryPoint = id
	return g
}
