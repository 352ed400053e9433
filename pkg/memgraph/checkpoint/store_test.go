package checkpoint_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/randalmurphal/memgraph/pkg/memgraph/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// saverFactory creates a saver instance for testing.
type saverFactory func(t *testing.T) checkpoint.Saver

func newCheckpoint(thread string, step int, state string) *checkpoint.Checkpoint {
	return checkpoint.New(thread, step, []byte(state), checkpoint.Metadata{
		Source: checkpoint.SourceLoop,
		Node:   fmt.Sprintf("node-%d", step),
		Next:   "__end__",
	})
}

// collect drains a history sequence.
func collect(t *testing.T, s checkpoint.Saver, thread string) []*checkpoint.Checkpoint {
	t.Helper()
	var out []*checkpoint.Checkpoint
	for cp, err := range s.History(context.Background(), thread) {
		require.NoError(t, err)
		out = append(out, cp)
	}
	return out
}

// saverContractTest runs contract tests against any Saver implementation.
func saverContractTest(t *testing.T, name string, factory saverFactory) {
	ctx := context.Background()

	t.Run(name+"/Put_and_Latest", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		require.NoError(t, s.Put(ctx, newCheckpoint("t1", 1, `{"v":1}`)))
		require.NoError(t, s.Put(ctx, newCheckpoint("t1", 2, `{"v":2}`)))

		latest, err := s.Latest(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, 2, latest.Step)
		assert.JSONEq(t, `{"v":2}`, string(latest.State))
		assert.Equal(t, "node-2", latest.Metadata.Node)
	})

	t.Run(name+"/Latest_NotFound", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		_, err := s.Latest(ctx, "missing")
		assert.ErrorIs(t, err, checkpoint.ErrNotFound)
	})

	t.Run(name+"/Get", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		require.NoError(t, s.Put(ctx, newCheckpoint("t1", 1, `{"v":1}`)))
		require.NoError(t, s.Put(ctx, newCheckpoint("t1", 2, `{"v":2}`)))

		cp, err := s.Get(ctx, "t1", 1)
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":1}`, string(cp.State))

		_, err = s.Get(ctx, "t1", 3)
		assert.ErrorIs(t, err, checkpoint.ErrNotFound)
	})

	t.Run(name+"/Put_NeverOverwrites", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		require.NoError(t, s.Put(ctx, newCheckpoint("t1", 1, `{"v":"first"}`)))
		err := s.Put(ctx, newCheckpoint("t1", 1, `{"v":"second"}`))
		assert.ErrorIs(t, err, checkpoint.ErrStepExists)

		cp, err := s.Get(ctx, "t1", 1)
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":"first"}`, string(cp.State))
	})

	t.Run(name+"/Put_RejectsOlderStep", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		require.NoError(t, s.Put(ctx, newCheckpoint("t1", 3, `{}`)))
		assert.ErrorIs(t, s.Put(ctx, newCheckpoint("t1", 2, `{}`)), checkpoint.ErrStepExists)
	})

	t.Run(name+"/Put_Invalid", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		assert.ErrorIs(t, s.Put(ctx, newCheckpoint("", 1, `{}`)), checkpoint.ErrInvalidCheckpoint)
		assert.ErrorIs(t, s.Put(ctx, newCheckpoint("t1", 0, `{}`)), checkpoint.ErrInvalidCheckpoint)
		assert.ErrorIs(t, s.Put(ctx, nil), checkpoint.ErrInvalidCheckpoint)
	})

	t.Run(name+"/History_NewestFirst", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		for i := 1; i <= 5; i++ {
			require.NoError(t, s.Put(ctx, newCheckpoint("t1", i, `{}`)))
		}

		history := collect(t, s, "t1")
		require.Len(t, history, 5)
		for i, cp := range history {
			assert.Equal(t, 5-i, cp.Step)
		}
	})

	t.Run(name+"/History_Restartable", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		require.NoError(t, s.Put(ctx, newCheckpoint("t1", 1, `{}`)))
		require.NoError(t, s.Put(ctx, newCheckpoint("t1", 2, `{}`)))

		first := collect(t, s, "t1")
		second := collect(t, s, "t1")
		assert.Equal(t, len(first), len(second))
		assert.Equal(t, first[0].ID, second[0].ID)
	})

	t.Run(name+"/History_EarlyStop", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		for i := 1; i <= 3; i++ {
			require.NoError(t, s.Put(ctx, newCheckpoint("t1", i, `{}`)))
		}

		var seen []int
		for cp, err := range s.History(ctx, "t1") {
			require.NoError(t, err)
			seen = append(seen, cp.Step)
			if len(seen) == 2 {
				break
			}
		}
		assert.Equal(t, []int{3, 2}, seen)
	})

	t.Run(name+"/History_Empty", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		assert.Empty(t, collect(t, s, "missing"))
	})

	t.Run(name+"/Threads_Isolated", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		require.NoError(t, s.Put(ctx, newCheckpoint("b", 1, `{"t":"b"}`)))
		require.NoError(t, s.Put(ctx, newCheckpoint("a", 1, `{"t":"a"}`)))
		require.NoError(t, s.Put(ctx, newCheckpoint("a", 2, `{"t":"a"}`)))

		threads, err := s.Threads(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, threads)

		assert.Len(t, collect(t, s, "a"), 2)
		assert.Len(t, collect(t, s, "b"), 1)
	})

	t.Run(name+"/DataCopy", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		cp := newCheckpoint("t1", 1, `{"v":"original"}`)
		require.NoError(t, s.Put(ctx, cp))

		// Modify caller's checkpoint after put
		cp.State[6] = 'X'

		loaded, err := s.Latest(ctx, "t1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":"original"}`, string(loaded.State))
	})

	t.Run(name+"/Fork", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		for i := 1; i <= 4; i++ {
			require.NoError(t, s.Put(ctx, newCheckpoint("src", i, fmt.Sprintf(`{"v":%d}`, i))))
		}

		forked, err := checkpoint.Fork(ctx, s, "src", "dst", 2)
		require.NoError(t, err)
		assert.Equal(t, "dst", forked.ThreadID)
		assert.Equal(t, 2, forked.Step)

		dst := collect(t, s, "dst")
		require.Len(t, dst, 2)
		assert.Equal(t, 2, dst[0].Step)
		assert.Equal(t, 1, dst[1].Step)
		assert.Equal(t, dst[1].ID, dst[0].Metadata.ParentID)
		assert.NotEmpty(t, dst[0].Metadata.ForkedFrom)
		assert.Equal(t, checkpoint.SourceFork, dst[0].Metadata.Source)
		assert.Equal(t, "node-2", dst[0].Metadata.Node)

		// Source lineage is untouched
		assert.Len(t, collect(t, s, "src"), 4)
	})

	t.Run(name+"/Fork_Errors", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		require.NoError(t, s.Put(ctx, newCheckpoint("src", 1, `{}`)))
		require.NoError(t, s.Put(ctx, newCheckpoint("taken", 1, `{}`)))

		_, err := checkpoint.Fork(ctx, s, "src", "dst", 7)
		assert.ErrorIs(t, err, checkpoint.ErrNotFound)

		_, err = checkpoint.Fork(ctx, s, "src", "taken", 1)
		assert.ErrorIs(t, err, checkpoint.ErrThreadExists)

		_, err = checkpoint.Fork(ctx, s, "src", "src", 1)
		assert.ErrorIs(t, err, checkpoint.ErrThreadExists)
	})

	t.Run(name+"/PutThread_AllOrNothing", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		tw, ok := s.(checkpoint.ThreadWriter)
		require.True(t, ok)

		err := tw.PutThread(ctx, "dst", []*checkpoint.Checkpoint{
			newCheckpoint("dst", 1, `{}`),
			newCheckpoint("dst", 3, `{}`),
			newCheckpoint("dst", 2, `{}`),
		})
		assert.ErrorIs(t, err, checkpoint.ErrStepExists)

		err = tw.PutThread(ctx, "dst", []*checkpoint.Checkpoint{
			newCheckpoint("dst", 1, `{}`),
			newCheckpoint("other", 2, `{}`),
		})
		assert.ErrorIs(t, err, checkpoint.ErrInvalidCheckpoint)

		_, err = s.Latest(ctx, "dst")
		assert.ErrorIs(t, err, checkpoint.ErrNotFound, "a rejected log stores nothing")

		require.NoError(t, tw.PutThread(ctx, "dst", []*checkpoint.Checkpoint{
			newCheckpoint("dst", 1, `{"v":1}`),
			newCheckpoint("dst", 2, `{"v":2}`),
		}))
		assert.Len(t, collect(t, s, "dst"), 2)

		err = tw.PutThread(ctx, "dst", []*checkpoint.Checkpoint{newCheckpoint("dst", 5, `{}`)})
		assert.ErrorIs(t, err, checkpoint.ErrThreadExists)
		assert.Len(t, collect(t, s, "dst"), 2)
	})

	t.Run(name+"/Fork_ConcurrentSameTarget", func(t *testing.T) {
		s := factory(t)
		defer s.Close()

		for i := 1; i <= 3; i++ {
			require.NoError(t, s.Put(ctx, newCheckpoint("src", i, `{}`)))
		}

		const workers = 8
		errs := make([]error, workers)
		var wg sync.WaitGroup
		for i := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = checkpoint.Fork(ctx, s, "src", "dst", 3)
			}()
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, checkpoint.ErrThreadExists)
		}
		assert.Equal(t, 1, succeeded)

		dst := collect(t, s, "dst")
		require.Len(t, dst, 3, "exactly one lineage is copied")
		assert.Equal(t, dst[1].ID, dst[0].Metadata.ParentID)
		assert.Equal(t, dst[2].ID, dst[1].Metadata.ParentID)
	})

	t.Run(name+"/Close_ThenError", func(t *testing.T) {
		s := factory(t)
		require.NoError(t, s.Close())

		// Operations after close should error
		err := s.Put(ctx, newCheckpoint("t1", 1, `{}`))
		assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)

		_, err = s.Latest(ctx, "t1")
		assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)

		_, err = s.Threads(ctx)
		assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)

		for _, err := range s.History(ctx, "t1") {
			assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)
		}
	})
}

// TestMemoryStore runs contract tests against MemoryStore.
func TestMemoryStore(t *testing.T) {
	factory := func(t *testing.T) checkpoint.Saver {
		return checkpoint.NewMemoryStore()
	}
	saverContractTest(t, "MemoryStore", factory)
}

// TestSQLiteStore runs contract tests against SQLiteStore.
func TestSQLiteStore(t *testing.T) {
	factory := func(t *testing.T) checkpoint.Saver {
		store, err := checkpoint.NewSQLiteStore(":memory:")
		require.NoError(t, err)
		return store
	}
	saverContractTest(t, "SQLiteStore", factory)
}
