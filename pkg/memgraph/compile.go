package memgraph

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/randalmurphal/memgraph/pkg/memgraph/checkpoint"
	"github.com/randalmurphal/memgraph/pkg/memgraph/store"
)

// compileConfig holds the services a compiled graph is bound to.
type compileConfig struct {
	name  string
	saver checkpoint.Saver
	store store.Store
}

// CompileOption configures Compile.
type CompileOption func(*compileConfig)

// WithCheckpointer persists a checkpoint after every step, keyed by the
// run's thread_id. Runs on a checkpointed graph require a thread_id.
func WithCheckpointer(saver checkpoint.Saver) CompileOption {
	return func(c *compileConfig) {
		c.saver = saver
	}
}

// WithStore makes a long-term store available to nodes through
// Context.Store().
func WithStore(s store.Store) CompileOption {
	return func(c *compileConfig) {
		c.store = s
	}
}

// WithName names the graph in logs, metrics and traces.
// Default: "memgraph".
func WithName(name string) CompileOption {
	return func(c *compileConfig) {
		if name != "" {
			c.name = name
		}
	}
}

// Compile validates the graph and creates an executable CompiledGraph.
// Returns an error if validation fails. Multiple errors are joined together.
//
// Validation checks:
//  1. No node was registered twice (*DuplicateNodeError)
//  2. Entry point is set and references an existing node
//  3. Every edge source and target, and every decision target, exists or is
//     END; decision tables are non-empty; each node has one way out
//  4. Every node is reachable from the entry (*UnreachableNodeError)
//  5. Every reachable node has an outgoing edge (*DeadEndError)
//  6. END is reachable from the entry
//  7. The schema is valid
func (g *Graph[S]) Compile(opts ...CompileOption) (*CompiledGraph[S], error) {
	cfg := compileConfig{name: "memgraph"}
	for _, opt := range opts {
		opt(&cfg)
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []error

	// 1. Duplicate registrations
	for _, id := range g.duplicates {
		errs = append(errs, &DuplicateNodeError{NodeID: id})
	}

	// 2. Entry point
	entryOK := false
	switch {
	case g.entryPoint == "":
		errs = append(errs, ErrNoEntryPoint)
	case !g.hasNode(g.entryPoint):
		errs = append(errs, fmt.Errorf("%w: %s", ErrEntryNotFound, g.entryPoint))
	default:
		entryOK = true
	}

	// 3. Edge references
	errs = append(errs, g.validateEdges()...)

	// 4-6. Reachability
	if entryOK {
		errs = append(errs, g.validateReachability()...)
	}

	// 7. Schema
	if err := g.schema.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return g.buildCompiledGraph(cfg), nil
}

func (g *Graph[S]) hasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// validTarget reports whether an edge may point at id.
func (g *Graph[S]) validTarget(id string) bool {
	return id == END || g.hasNode(id)
}

func (g *Graph[S]) validateEdges() []error {
	var errs []error

	for _, from := range slices.Sorted(maps.Keys(g.edges)) {
		targets := g.edges[from]
		if !g.hasNode(from) {
			errs = append(errs, fmt.Errorf("%w: edge source '%s' does not exist", ErrNodeNotFound, from))
		}
		for _, to := range targets {
			if !g.validTarget(to) {
				errs = append(errs, fmt.Errorf("%w: edge target '%s' does not exist", ErrNodeNotFound, to))
			}
		}
		if len(targets) > 1 {
			errs = append(errs, fmt.Errorf("%w: '%s' has %d static edges", ErrAmbiguousEdges, from, len(targets)))
		}
	}

	for _, from := range slices.Sorted(maps.Keys(g.branches)) {
		branches := g.branches[from]
		if !g.hasNode(from) {
			errs = append(errs, fmt.Errorf("%w: conditional edge source '%s' does not exist", ErrNodeNotFound, from))
		}
		if len(branches) > 1 || len(g.edges[from]) > 0 {
			errs = append(errs, fmt.Errorf("%w: '%s' has conditional edges and other edges", ErrAmbiguousEdges, from))
		}
		for _, b := range branches {
			if len(b.mapping) == 0 {
				errs = append(errs, fmt.Errorf("%w: '%s'", ErrEmptyBranchMapping, from))
			}
			for _, d := range slices.Sorted(maps.Keys(b.mapping)) {
				if to := b.mapping[d]; !g.validTarget(to) {
					errs = append(errs, fmt.Errorf("%w: decision %q from '%s' targets '%s'", ErrNodeNotFound, d, from, to))
				}
			}
		}
	}

	return errs
}

// targets returns every node or END an edge out of id may lead to.
func (g *Graph[S]) targets(id string) []string {
	out := slices.Clone(g.edges[id])
	for _, b := range g.branches[id] {
		for _, d := range slices.Sorted(maps.Keys(b.mapping)) {
			out = append(out, b.mapping[d])
		}
	}
	return out
}

func (g *Graph[S]) validateReachability() []error {
	var errs []error

	reachable := map[string]bool{g.entryPoint: true}
	queue := []string{g.entryPoint}
	reachesEnd := false

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, to := range g.targets(current) {
			if to == END {
				reachesEnd = true
				continue
			}
			if g.hasNode(to) && !reachable[to] {
				reachable[to] = true
				queue = append(queue, to)
			}
		}
	}

	for _, id := range g.order {
		if !reachable[id] {
			errs = append(errs, &UnreachableNodeError{NodeID: id})
			continue
		}
		if len(g.edges[id]) == 0 && len(g.branches[id]) == 0 {
			errs = append(errs, &DeadEndError{NodeID: id})
		}
	}

	if !reachesEnd {
		errs = append(errs, ErrNoPathToEnd)
	}
	return errs
}

// buildCompiledGraph creates the immutable CompiledGraph from the builder state.
func (g *Graph[S]) buildCompiledGraph(cfg compileConfig) *CompiledGraph[S] {
	next := make(map[string]string, len(g.edges))
	for from, targets := range g.edges {
		next[from] = targets[0]
	}

	branches := make(map[string]branch[S], len(g.branches))
	for from, bs := range g.branches {
		branches[from] = bs[0]
	}

	return &CompiledGraph[S]{
		name:       cfg.name,
		schema:     g.schema,
		nodes:      maps.Clone(g.nodes),
		order:      slices.Clone(g.order),
		next:       next,
		branches:   branches,
		entryPoint: g.entryPoint,
		saver:      cfg.saver,
		store:      cfg.store,
	}
}
