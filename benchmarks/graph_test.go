package benchmarks

import (
	"testing"

	"github.com/randalmurphal/memgraph/pkg/memgraph"
)

// State for benchmarks.
type State struct {
	Value int      `json:"value"`
	Path  []string `json:"path"`
}

var (
	valueField = memgraph.ReplaceField("value", func(s *State) *int { return &s.Value })
	pathField  = memgraph.AppendField("path", func(s *State) *[]string { return &s.Path })
)

func schema() *memgraph.Schema[State] {
	return memgraph.NewSchema[State](valueField, pathField)
}

// noopNode does minimal work to measure framework overhead.
func noopNode(ctx memgraph.Context, s State) (memgraph.Update[State], error) {
	return nil, nil
}

// incNode writes one field so every step pays for a merge.
func incNode(ctx memgraph.Context, s State) (memgraph.Update[State], error) {
	return memgraph.Update[State]{valueField.Set(s.Value + 1)}, nil
}

// BenchmarkNewGraph measures graph creation overhead.
func BenchmarkNewGraph(b *testing.B) {
	s := schema()
	for i := 0; i < b.N; i++ {
		memgraph.NewGraph(s)
	}
}

// BenchmarkAddNode_10 measures adding 10 nodes.
func BenchmarkAddNode_10(b *testing.B) {
	s := schema()
	for i := 0; i < b.N; i++ {
		graph := memgraph.NewGraph(s)
		for j := 0; j < 10; j++ {
			graph.AddNode(nodeID(j), noopNode)
		}
	}
}

// BenchmarkAddNode_100 measures adding 100 nodes.
func BenchmarkAddNode_100(b *testing.B) {
	s := schema()
	for i := 0; i < b.N; i++ {
		graph := memgraph.NewGraph(s)
		for j := 0; j < 100; j++ {
			graph.AddNode(nodeID(j), noopNode)
		}
	}
}

// BenchmarkCompile_Linear_10 compiles a 10-node linear graph.
func BenchmarkCompile_Linear_10(b *testing.B) {
	graph := buildLinearGraph(10, noopNode)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = graph.Compile()
	}
}

// BenchmarkCompile_Linear_100 compiles a 100-node linear graph.
func BenchmarkCompile_Linear_100(b *testing.B) {
	graph := buildLinearGraph(100, noopNode)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = graph.Compile()
	}
}

// BenchmarkCompile_Branching compiles a graph with conditional edges.
func BenchmarkCompile_Branching(b *testing.B) {
	graph := buildBranchingGraph()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = graph.Compile()
	}
}

// BenchmarkSchemaApply measures merging a two-field update.
func BenchmarkSchemaApply(b *testing.B) {
	s := schema()
	state := State{Path: make([]string, 50)}
	update := memgraph.Update[State]{valueField.Set(1), pathField.Append("x")}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = s.Apply(state, update)
	}
}

// Helper functions

func nodeID(n int) string {
	return string(rune('a'+n%26)) + string(rune('0'+n/26%10))
}

func buildLinearGraph(n int, fn memgraph.NodeFunc[State]) *memgraph.Graph[State] {
	graph := memgraph.NewGraph(schema())
	for i := 0; i < n; i++ {
		graph.AddNode(nodeID(i), fn)
	}
	graph.AddEdge(memgraph.START, nodeID(0))
	for i := 0; i < n-1; i++ {
		graph.AddEdge(nodeID(i), nodeID(i+1))
	}
	graph.AddEdge(nodeID(n-1), memgraph.END)
	return graph
}

func buildBranchingGraph() *memgraph.Graph[State] {
	router := func(ctx memgraph.Context, s State) memgraph.Decision {
		if s.Value%2 == 0 {
			return "even"
		}
		return "odd"
	}

	return memgraph.NewGraph(schema()).
		AddNode("start", noopNode).
		AddNode("even", noopNode).
		AddNode("odd", noopNode).
		AddNode("merge", noopNode).
		AddEdge(memgraph.START, "start").
		AddConditionalEdges("start", router, map[memgraph.Decision]string{"even": "even", "odd": "odd"}).
		AddEdge("even", "merge").
		AddEdge("odd", "merge").
		AddEdge("merge", memgraph.END)
}

func mustCompile(g *memgraph.Graph[State], opts ...memgraph.CompileOption) *memgraph.CompiledGraph[State] {
	compiled, err := g.Compile(opts...)
	if err != nil {
		panic(err)
	}
	return compiled
}
