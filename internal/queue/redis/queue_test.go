package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
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
	c.now = c.now.Add(time.Second)
	return c.now
}

func newQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	clk := &steppingClock{now: time.Unix(1_700_000_000, 0)}
	return New(client, "test:queue", clk.Now), mr
}

func drain(t *testing.T, q *Queue) []radar.QueueEntry {
	t.Helper()
	var out []radar.QueueEntry
	for {
		e, ok, err := q.Pop(context.Background())
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, e)
	}
}

func TestQueueOrdersByTierThenTime(t *testing.T) {
	t.Parallel()

	q, mr := newQueue(t)
	ctx := context.Background()
	require.NoError(t, q.PushSystem(ctx, radar.Task{TaskID: "s1", Platform: "wb"}))
	require.NoError(t, q.PushUser(ctx, radar.Task{TaskID: "u1", Platform: "xhs", MaxNotes: 7}))
	require.NoError(t, q.PushSystem(ctx, radar.Task{TaskID: "s2", Platform: "dy"}))

	members, err := mr.ZMembers("test:queue:zset")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"0:u1", "1:s1", "1:s2"}, members)
	require.True(t, mr.Exists("test:queue:tasks"))

	size, err := q.Size(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, size)

	entries := drain(t, q)
	require.Len(t, entries, 3)
	require.Equal(t, "u1", entries[0].Task.TaskID)
	require.Equal(t, radar.TierUser, entries[0].Tier)
	require.Equal(t, 7, entries[0].Task.MaxNotes)
	require.Equal(t, "s1", entries[1].Task.TaskID)
	require.Equal(t, "s2", entries[2].Task.TaskID)
	require.Equal(t, radar.TierSystem, entries[2].Tier)
	require.Greater(t, entries[2].Score, entries[1].Score)

	require.False(t, mr.Exists("test:queue:tasks"))
}

func TestQueueRepushMovesTier(t *testing.T) {
	t.Parallel()

	q, mr := newQueue(t)
	ctx := context.Background()
	require.NoError(t, q.PushSystem(ctx, radar.Task{TaskID: "t"}))
	require.NoError(t, q.PushUser(ctx, radar.Task{TaskID: "t"}))

	members, err := mr.ZMembers("test:queue:zset")
	require.NoError(t, err)
	require.Equal(t, []string{"0:t"}, members)
	fields, err := mr.HKeys("test:queue:tasks")
	require.NoError(t, err)
	require.Equal(t, []string{"0:t"}, fields)
}

func TestQueuePushBackKeepsScore(t *testing.T) {
	t.Parallel()

	q, _ := newQueue(t)
	ctx := context.Background()
	require.NoError(t, q.PushSystem(ctx, radar.Task{TaskID: "a"}))
	require.NoError(t, q.PushSystem(ctx, radar.Task{TaskID: "b"}))

	head, ok, err := q.Pop(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, q.PushSystem(ctx, radar.Task{TaskID: "c"}))
	require.NoError(t, q.PushBack(ctx, head))

	peek, err := q.Peek(ctx, 2)
	require.NoError(t, err)
	require.Len(t, peek, 2)
	require.Equal(t, "a", peek[0].Task.TaskID)
	require.InDelta(t, head.Score, peek[0].Score, 0.001)
	require.Equal(t, "b", peek[1].Task.TaskID)

	all, err := q.Peek(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestQueueRemoveAndClear(t *testing.T) {
	t.Parallel()

	q, mr := newQueue(t)
	ctx := context.Background()
	require.NoError(t, q.PushUser(ctx, radar.Task{TaskID: "a"}))
	require.NoError(t, q.PushSystem(ctx, radar.Task{TaskID: "b"}))
	require.NoError(t, q.Remove(ctx, "a"))

	entries := drain(t, q)
	require.Len(t, entries, 1)
	require.Equal(t, "b", entries[0].Task.TaskID)

	require.NoError(t, q.PushSystem(ctx, radar.Task{TaskID: "c"}))
	require.NoError(t, q.Clear(ctx))
	require.False(t, mr.Exists("test:queue:zset"))
	size, err := q.Size(ctx)
	require.NoError(t, err)
	require.Zero(t, size)
}

func TestQueuePopEmpty(t *testing.T) {
	t.Parallel()

	q, _ := newQueue(t)
	_, ok, err := q.Pop(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	peek, err := q.Peek(context.Background(), 5)
	require.NoError(t, err)
	require.Empty(t, peek)
}

func TestQueueReportsConnectionErrors(t *testing.T) {
	t.Parallel()

	q, mr := newQueue(t)
	mr.Close()
	_, _, err := q.Pop(context.Background())
	require.Error(t, err)
	require.Error(t, q.PushUser(context.Background(), radar.Task{TaskID: "x"}))
}
