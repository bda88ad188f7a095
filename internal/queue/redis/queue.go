// Package redis implements the two-tier task queue on a Redis sorted set
// paired with a hash of serialized tasks.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/hotlist-radar/internal/queue"
	"github.com/JakeFAU/hotlist-radar/internal/radar"
)

// DefaultPrefix namespaces the queue keys.
const DefaultPrefix = "radar:queue"

// popScript removes the lowest-scored member and its payload in one step.
var popScript = goredis.NewScript(`
local popped = redis.call('ZPOPMIN', KEYS[1])
if #popped == 0 then
	return false
end
local payload = redis.call('HGET', KEYS[2], popped[1])
redis.call('HDEL', KEYS[2], popped[1])
if not payload then
	payload = ''
end
return {popped[1], popped[2], payload}
`)

// Queue is a radar.TaskQueue backed by Redis.
type Queue struct {
	client goredis.UniversalClient
	zset   string
	hash   string
	now    func() time.Time
}

// New builds a queue over client. An empty prefix uses DefaultPrefix.
func New(client goredis.UniversalClient, prefix string, now func() time.Time) *Queue {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if now == nil {
		now = time.Now
	}
	return &Queue{client: client, zset: prefix + ":zset", hash: prefix + ":tasks", now: now}
}

// PushUser enqueues a task at the user tier.
func (q *Queue) PushUser(ctx context.Context, task radar.Task) error {
	return q.push(ctx, radar.TierUser, task, radar.QueueScore(radar.TierUser, q.now().UnixMilli()))
}

// PushSystem enqueues a task at the system tier.
func (q *Queue) PushSystem(ctx context.Context, task radar.Task) error {
	return q.push(ctx, radar.TierSystem, task, radar.QueueScore(radar.TierSystem, q.now().UnixMilli()))
}

// PushBack reinserts an entry with its original tier and score.
func (q *Queue) PushBack(ctx context.Context, entry radar.QueueEntry) error {
	return q.push(ctx, entry.Tier, entry.Task, entry.Score)
}

func (q *Queue) push(ctx context.Context, tier radar.Tier, task radar.Task, score float64) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", task.TaskID, err)
	}
	member := queue.Member(tier, task.TaskID)
	_, err = q.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, other := range queue.Tiers {
			if other == tier {
				continue
			}
			stale := queue.Member(other, task.TaskID)
			pipe.ZRem(ctx, q.zset, stale)
			pipe.HDel(ctx, q.hash, stale)
		}
		pipe.ZAdd(ctx, q.zset, goredis.Z{Score: score, Member: member})
		pipe.HSet(ctx, q.hash, member, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("push task %s: %w", task.TaskID, err)
	}
	return nil
}

// Pop atomically removes the lowest-scored entry.
func (q *Queue) Pop(ctx context.Context) (radar.QueueEntry, bool, error) {
	res, err := popScript.Run(ctx, q.client, []string{q.zset, q.hash}).StringSlice()
	if errors.Is(err, goredis.Nil) {
		return radar.QueueEntry{}, false, nil
	}
	if err != nil {
		return radar.QueueEntry{}, false, fmt.Errorf("pop task: %w", err)
	}
	if len(res) != 3 {
		return radar.QueueEntry{}, false, fmt.Errorf("pop task: unexpected reply of %d elements", len(res))
	}
	score, err := strconv.ParseFloat(res[1], 64)
	if err != nil {
		return radar.QueueEntry{}, false, fmt.Errorf("pop task: parse score: %w", err)
	}
	entry, err := decode(res[0], score, res[2])
	if err != nil {
		return radar.QueueEntry{}, false, err
	}
	return entry, true, nil
}

// Peek returns up to n entries in pop order. n <= 0 returns every entry.
func (q *Queue) Peek(ctx context.Context, n int) ([]radar.QueueEntry, error) {
	stop := int64(n - 1)
	if n <= 0 {
		stop = -1
	}
	zs, err := q.client.ZRangeWithScores(ctx, q.zset, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("peek queue: %w", err)
	}
	if len(zs) == 0 {
		return nil, nil
	}
	members := make([]string, len(zs))
	for i, z := range zs {
		members[i], _ = z.Member.(string)
	}
	payloads, err := q.client.HMGet(ctx, q.hash, members...).Result()
	if err != nil {
		return nil, fmt.Errorf("peek queue payloads: %w", err)
	}
	out := make([]radar.QueueEntry, 0, len(zs))
	for i, z := range zs {
		raw, _ := payloads[i].(string)
		entry, err := decode(members[i], z.Score, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// Size returns the number of queued entries.
func (q *Queue) Size(ctx context.Context) (int, error) {
	n, err := q.client.ZCard(ctx, q.zset).Result()
	if err != nil {
		return 0, fmt.Errorf("queue size: %w", err)
	}
	return int(n), nil
}

// Remove drops a task from either tier.
func (q *Queue) Remove(ctx context.Context, taskID string) error {
	members := make([]any, 0, len(queue.Tiers))
	fields := make([]string, 0, len(queue.Tiers))
	for _, tier := range queue.Tiers {
		m := queue.Member(tier, taskID)
		members = append(members, m)
		fields = append(fields, m)
	}
	_, err := q.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZRem(ctx, q.zset, members...)
		pipe.HDel(ctx, q.hash, fields...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove task %s: %w", taskID, err)
	}
	return nil
}

// Clear deletes both queue keys.
func (q *Queue) Clear(ctx context.Context) error {
	if err := q.client.Del(ctx, q.zset, q.hash).Err(); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	return nil
}

func decode(member string, score float64, payload string) (radar.QueueEntry, error) {
	tier, id, err := queue.ParseMember(member)
	if err != nil {
		return radar.QueueEntry{}, err
	}
	task := radar.Task{TaskID: id}
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &task); err != nil {
			return radar.QueueEntry{}, fmt.Errorf("decode task %s: %w", id, err)
		}
	}
	return radar.QueueEntry{Task: task, Tier: tier, Score: score}, nil
}
