package memgraph

import (
	"context"
	"testing"

	"github.com/randalmurphal/memgraph/pkg/memgraph/checkpoint"
	"github.com/randalmurphal/memgraph/pkg/memgraph/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetState(t *testing.T) {
	compiled := linearGraph(t, WithCheckpointer(checkpoint.NewMemoryStore()))
	ctx := context.Background()

	_, err := compiled.GetState(ctx, threadCfg("t1"))
	assert.ErrorIs(t, err, ErrNoCheckpoints)

	_, err = compiled.Invoke(ctx, nil, threadCfg("t1"))
	require.NoError(t, err)

	snap, err := compiled.GetState(ctx, threadCfg("t1"))
	require.NoError(t, err)
	assert.Equal(t, "t1", snap.ThreadID)
	assert.Equal(t, 3, snap.Step)
	assert.Equal(t, "c", snap.Node)
	assert.False(t, snap.Pending())
	assert.Equal(t, []string{"a", "b", "c"}, snap.State.Path)
	assert.False(t, snap.CreatedAt.IsZero())
}

func TestGetStateAt(t *testing.T) {
	compiled := linearGraph(t, WithCheckpointer(checkpoint.NewMemoryStore()))
	ctx := context.Background()
	_, err := compiled.Invoke(ctx, nil, threadCfg("t1"))
	require.NoError(t, err)

	snap, err := compiled.GetStateAt(ctx, threadCfg("t1"), 2)
	require.NoError(t, err)
	assert.Equal(t, "b", snap.Node)
	assert.Equal(t, "c", snap.Next)
	assert.Equal(t, []string{"a", "b"}, snap.State.Path)

	_, err = compiled.GetStateAt(ctx, threadCfg("t1"), 9)
	assert.ErrorIs(t, err, ErrNoCheckpoints)
}

func TestHistory_RequiresCheckpointerAndThread(t *testing.T) {
	ctx := context.Background()

	_, err := linearGraph(t).GetState(ctx, threadCfg("t1"))
	assert.ErrorIs(t, err, ErrNoCheckpointer)

	withSaver := linearGraph(t, WithCheckpointer(checkpoint.NewMemoryStore()))
	_, err = withSaver.GetState(ctx, config.RunConfig{})
	assert.ErrorIs(t, err, ErrThreadIDRequired)

	for _, err := range withSaver.GetStateHistory(ctx, config.RunConfig{}) {
		assert.ErrorIs(t, err, ErrThreadIDRequired)
	}

	_, err = withSaver.UpdateState(ctx, config.RunConfig{}, nil, "")
	assert.ErrorIs(t, err, ErrThreadIDRequired)
}

func TestGetStateHistory_NewestFirstAndRestartable(t *testing.T) {
	compiled := linearGraph(t, WithCheckpointer(checkpoint.NewMemoryStore()))
	ctx := context.Background()
	_, err := compiled.Invoke(ctx, nil, threadCfg("t1"))
	require.NoError(t, err)

	seq := compiled.GetStateHistory(ctx, threadCfg("t1"))
	var first, second []string
	for snap, err := range seq {
		require.NoError(t, err)
		first = append(first, snap.Node)
	}
	for snap, err := range seq {
		require.NoError(t, err)
		second = append(second, snap.Node)
	}

	assert.Equal(t, []string{"c", "b", "a"}, first)
	assert.Equal(t, first, second)
	assert.Empty(t, history(t, compiled, threadCfg("missing")))
}

func TestFork(t *testing.T) {
	compiled := linearGraph(t, WithCheckpointer(checkpoint.NewMemoryStore()))
	ctx := context.Background()
	_, err := compiled.Invoke(ctx, nil, threadCfg("main"))
	require.NoError(t, err)

	snap, err := compiled.Fork(ctx, threadCfg("main"), 1, "branch")
	require.NoError(t, err)
	assert.Equal(t, "branch", snap.ThreadID)
	assert.Equal(t, 1, snap.Step)
	assert.Equal(t, "b", snap.Next)
	assert.Equal(t, checkpoint.SourceFork, snap.Source)

	// The fork continues from b; the original thread is untouched.
	result, err := compiled.Invoke(ctx, nil, threadCfg("branch"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, result.Path)
	assert.Len(t, history(t, compiled, threadCfg("branch")), 3)
	assert.Len(t, history(t, compiled, threadCfg("main")), 3)
}

func TestFork_GeneratesThreadID(t *testing.T) {
	compiled := linearGraph(t, WithCheckpointer(checkpoint.NewMemoryStore()))
	ctx := context.Background()
	_, err := compiled.Invoke(ctx, nil, threadCfg("main"))
	require.NoError(t, err)

	snap, err := compiled.Fork(ctx, threadCfg("main"), 3, "")

	require.NoError(t, err)
	assert.NotEmpty(t, snap.ThreadID)
	assert.NotEqual(t, "main", snap.ThreadID)
}

func TestFork_Errors(t *testing.T) {
	compiled := linearGraph(t, WithCheckpointer(checkpoint.NewMemoryStore()))
	ctx := context.Background()
	_, err := compiled.Invoke(ctx, nil, threadCfg("main"))
	require.NoError(t, err)

	_, err = compiled.Fork(ctx, threadCfg("main"), 7, "x")
	assert.ErrorIs(t, err, ErrNoCheckpoints)

	_, err = compiled.Fork(ctx, threadCfg("main"), 1, "main")
	assert.ErrorIs(t, err, checkpoint.ErrThreadExists)
}

func TestUpdateState_KeepsPendingNode(t *testing.T) {
	compiled := linearGraph(t, WithCheckpointer(checkpoint.NewMemoryStore()))
	ctx := context.Background()
	_, err := compiled.Invoke(ctx, nil, threadCfg("t1"))
	require.NoError(t, err)

	snap, err := compiled.UpdateState(ctx, threadCfg("t1"), Update[testState]{tRoute.Set("edited")}, "")

	require.NoError(t, err)
	assert.Equal(t, 4, snap.Step)
	assert.Equal(t, START, snap.Node)
	assert.Equal(t, END, snap.Next)
	assert.Equal(t, checkpoint.SourceUpdate, snap.Source)
	assert.Equal(t, []string{"route"}, snap.Writes)
	assert.Equal(t, "edited", snap.State.Route)
	assert.Equal(t, []string{"a", "b", "c"}, snap.State.Path)
}

func TestUpdateState_EmptyThreadStartsAtEntry(t *testing.T) {
	compiled := linearGraph(t, WithCheckpointer(checkpoint.NewMemoryStore()))
	ctx := context.Background()

	snap, err := compiled.UpdateState(ctx, threadCfg("t1"), Update[testState]{tCount.Set(100)}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Step)
	assert.Equal(t, "a", snap.Next)

	result, err := compiled.Invoke(ctx, nil, threadCfg("t1"))
	require.NoError(t, err)
	assert.Equal(t, 103, result.Count)
}

func TestUpdateState_AsNodeRoutesFromNode(t *testing.T) {
	compiled := linearGraph(t, WithCheckpointer(checkpoint.NewMemoryStore()))
	ctx := context.Background()

	snap, err := compiled.UpdateState(ctx, threadCfg("t1"), Update[testState]{tPath.Append("a")}, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", snap.Node)
	assert.Equal(t, "b", snap.Next)

	result, err := compiled.Invoke(ctx, nil, threadCfg("t1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, result.Path, "a is skipped")
}

func TestUpdateState_Errors(t *testing.T) {
	compiled := linearGraph(t, WithCheckpointer(checkpoint.NewMemoryStore()))
	ctx := context.Background()
	stray := ReplaceField("stray", func(s *testState) *string { return &s.Route })

	_, err := compiled.UpdateState(ctx, threadCfg("t1"), nil, "ghost")
	assert.ErrorIs(t, err, ErrNodeNotFound)

	_, err = compiled.UpdateState(ctx, threadCfg("t1"), Update[testState]{stray.Set("x")}, "")
	assert.ErrorIs(t, err, ErrUnknownField)

	_, err = compiled.GetState(ctx, threadCfg("t1"))
	assert.ErrorIs(t, err, ErrNoCheckpoints, "failed updates write nothing")
}
