package checkpoint_test

import (
	"context"
	"errors"
	"testing"

	"github.com/randalmurphal/memgraph/pkg/memgraph/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepSaver hides ThreadWriter and fails Puts to one thread at one step.
type stepSaver struct {
	checkpoint.Saver
	thread string
	failAt int
}

var errDiskFull = errors.New("disk full")

func (s *stepSaver) Put(ctx context.Context, cp *checkpoint.Checkpoint) error {
	if cp.ThreadID == s.thread && cp.Step == s.failAt {
		return errDiskFull
	}
	return s.Saver.Put(ctx, cp)
}

func TestFork_PlainSaverCopiesStepByStep(t *testing.T) {
	ctx := context.Background()
	mem := checkpoint.NewMemoryStore()
	for i := 1; i <= 3; i++ {
		require.NoError(t, mem.Put(ctx, newCheckpoint("src", i, `{}`)))
	}
	saver := &stepSaver{Saver: mem, thread: "dst", failAt: 2}

	_, err := checkpoint.Fork(ctx, saver, "src", "dst", 3)
	require.ErrorIs(t, err, errDiskFull)
	assert.Contains(t, err.Error(), "copy step 2")

	dst := collect(t, mem, "dst")
	require.Len(t, dst, 1, "steps before the failure stay in dst")
	assert.Equal(t, 1, dst[0].Step)

	_, err = checkpoint.Fork(ctx, saver, "src", "dst", 3)
	assert.ErrorIs(t, err, checkpoint.ErrThreadExists)
}
