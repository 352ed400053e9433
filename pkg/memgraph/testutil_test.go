package memgraph

import (
	"context"
	"errors"
	"testing"

	"github.com/randalmurphal/memgraph/pkg/memgraph/checkpoint"
	"github.com/randalmurphal/memgraph/pkg/memgraph/config"
	"github.com/randalmurphal/memgraph/pkg/memgraph/message"
	"github.com/stretchr/testify/require"
)

// testState exercises every reducer.
type testState struct {
	Messages []message.Message `json:"messages"`
	Count    int               `json:"count"`
	Path     []string          `json:"path"`
	Tags     map[string]string `json:"tags"`
	Route    string            `json:"route"`
}

var (
	tMessages = MessagesField(func(s *testState) *[]message.Message { return &s.Messages })
	tCount    = ReplaceField("count", func(s *testState) *int { return &s.Count })
	tPath     = AppendField("path", func(s *testState) *[]string { return &s.Path })
	tTags     = MergeField("tags", func(s *testState) *map[string]string { return &s.Tags })
	tRoute    = ReplaceField("route", func(s *testState) *string { return &s.Route })
)

var errBoom = errors.New("boom")

func testSchema() *Schema[testState] {
	return NewSchema[testState](tMessages, tCount, tPath, tTags, tRoute)
}

// visit records name in the path and bumps the counter.
func visit(name string) NodeFunc[testState] {
	return func(ctx Context, s testState) (Update[testState], error) {
		return Update[testState]{tPath.Append(name), tCount.Set(s.Count + 1)}, nil
	}
}

// noop returns an empty update.
func noop(ctx Context, s testState) (Update[testState], error) {
	return nil, nil
}

func failing(err error) NodeFunc[testState] {
	return func(ctx Context, s testState) (Update[testState], error) {
		return nil, err
	}
}

func panicking(value any) NodeFunc[testState] {
	return func(ctx Context, s testState) (Update[testState], error) {
		panic(value)
	}
}

// byRoute branches on the route field.
func byRoute(ctx Context, s testState) Decision {
	return Decision(s.Route)
}

func threadCfg(id string) config.RunConfig {
	return config.NewRunConfig(id, nil)
}

// linearGraph compiles a -> b -> c -> END.
func linearGraph(t *testing.T, opts ...CompileOption) *CompiledGraph[testState] {
	t.Helper()
	compiled, err := NewGraph(testSchema()).
		AddNode("a", visit("a")).
		AddNode("b", visit("b")).
		AddNode("c", visit("c")).
		AddEdge(START, "a").
		AddEdge("a", "b").
		AddEdge("b", "c").
		AddEdge("c", END).
		Compile(opts...)
	require.NoError(t, err)
	return compiled
}

// history collects a thread's snapshots, newest first.
func history(t *testing.T, cg *CompiledGraph[testState], rc config.RunConfig) []*Snapshot[testState] {
	t.Helper()
	var out []*Snapshot[testState]
	for snap, err := range cg.GetStateHistory(context.Background(), rc) {
		require.NoError(t, err)
		out = append(out, snap)
	}
	return out
}

func testCtx() Context {
	return NewContext(context.Background())
}

// savedSteps returns the steps of a thread's checkpoints, newest first.
func savedSteps(t *testing.T, saver checkpoint.Saver, thread string) []int {
	t.Helper()
	var steps []int
	for cp, err := range saver.History(context.Background(), thread) {
		require.NoError(t, err)
		steps = append(steps, cp.Step)
	}
	return steps
}
