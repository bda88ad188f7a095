package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hotlist-radar/internal/radar"
)

type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func popIDs(t *testing.T, q *Queue) []string {
	t.Helper()
	var ids []string
	for {
		e, ok, err := q.Pop(context.Background())
		require.NoError(t, err)
		if !ok {
			return ids
		}
		ids = append(ids, e.Task.TaskID)
	}
}

func TestQueueUserTierFirstThenFIFO(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := &steppingClock{now: time.Unix(1_700_000_000, 0)}
	q := NewQueue(clk.Now)
	require.NoError(t, q.PushSystem(ctx, radar.Task{TaskID: "s1"}))
	require.NoError(t, q.PushSystem(ctx, radar.Task{TaskID: "s2"}))
	require.NoError(t, q.PushUser(ctx, radar.Task{TaskID: "u1"}))
	require.NoError(t, q.PushUser(ctx, radar.Task{TaskID: "u2"}))

	size, err := q.Size(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, size)

	peek, err := q.Peek(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, "u1", peek[0].Task.TaskID)
	require.Equal(t, radar.TierUser, peek[0].Tier)

	require.Equal(t, []string{"u1", "u2", "s1", "s2"}, popIDs(t, q))
}

func TestQueueSameTimestampKeepsInsertionOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fixed := time.Unix(1_700_000_000, 0)
	q := NewQueue(func() time.Time { return fixed })
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.PushSystem(ctx, radar.Task{TaskID: id}))
	}
	require.Equal(t, []string{"a", "b", "c"}, popIDs(t, q))
}

func TestQueuePushIsIdempotentPerTask(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := &steppingClock{now: time.Unix(1_700_000_000, 0)}
	q := NewQueue(clk.Now)
	require.NoError(t, q.PushSystem(ctx, radar.Task{TaskID: "t"}))
	require.NoError(t, q.PushSystem(ctx, radar.Task{TaskID: "other"}))
	require.NoError(t, q.PushUser(ctx, radar.Task{TaskID: "t"}))

	peek, err := q.Peek(ctx, 0)
	require.NoError(t, err)
	require.Len(t, peek, 2)
	require.Equal(t, "t", peek[0].Task.TaskID)
	require.Equal(t, radar.TierUser, peek[0].Tier)
}

func TestQueuePushBackRestoresPosition(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := &steppingClock{now: time.Unix(1_700_000_000, 0)}
	q := NewQueue(clk.Now)
	require.NoError(t, q.PushSystem(ctx, radar.Task{TaskID: "first"}))
	require.NoError(t, q.PushSystem(ctx, radar.Task{TaskID: "second"}))

	head, ok, err := q.Pop(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, q.PushSystem(ctx, radar.Task{TaskID: "third"}))
	require.NoError(t, q.PushBack(ctx, head))

	require.Equal(t, []string{"first", "second", "third"}, popIDs(t, q))
}

func TestQueueRemoveAndClear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := NewQueue(nil)
	require.NoError(t, q.PushUser(ctx, radar.Task{TaskID: "a"}))
	require.NoError(t, q.PushSystem(ctx, radar.Task{TaskID: "b"}))
	require.NoError(t, q.Remove(ctx, "a"))
	require.NoError(t, q.Remove(ctx, "missing"))
	require.Equal(t, []string{"b"}, popIDs(t, q))

	require.NoError(t, q.PushSystem(ctx, radar.Task{TaskID: "c"}))
	require.NoError(t, q.Clear(ctx))
	size, err := q.Size(ctx)
	require.NoError(t, err)
	require.Zero(t, size)
	_, ok, err := q.Pop(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}
