// Package memory provides an in-process two-tier task queue.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/hotlist-radar/internal/radar"
)

type item struct {
	entry radar.QueueEntry
	seq   uint64
}

// Queue keeps entries sorted by score. It is safe for concurrent use.
type Queue struct {
	mu    sync.Mutex
	items []item
	seq   uint64
	now   func() time.Time
}

// NewQueue constructs an empty queue stamping entries with now.
func NewQueue(now func() time.Time) *Queue {
	if now == nil {
		now = time.Now
	}
	return &Queue{now: now}
}

// PushUser enqueues a task at the user tier, replacing any prior entry for it.
func (q *Queue) PushUser(_ context.Context, task radar.Task) error {
	q.push(radar.TierUser, task)
	return nil
}

// PushSystem enqueues a task at the system tier, replacing any prior entry for it.
func (q *Queue) PushSystem(_ context.Context, task radar.Task) error {
	q.push(radar.TierSystem, task)
	return nil
}

func (q *Queue) push(tier radar.Tier, task radar.Task) {
	score := radar.QueueScore(tier, q.now().UnixMilli())
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeLocked(task.TaskID)
	q.insertLocked(radar.QueueEntry{Task: task.Clone(), Tier: tier, Score: score})
}

// Pop removes and returns the lowest-scored entry.
func (q *Queue) Pop(_ context.Context) (radar.QueueEntry, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return radar.QueueEntry{}, false, nil
	}
	head := q.items[0]
	q.items = q.items[1:]
	return head.entry, true, nil
}

// PushBack reinserts an entry with its original tier and score.
func (q *Queue) PushBack(_ context.Context, entry radar.QueueEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeLocked(entry.Task.TaskID)
	entry.Task = entry.Task.Clone()
	q.insertLocked(entry)
	return nil
}

// Peek returns up to n entries in pop order without removing them.
func (q *Queue) Peek(_ context.Context, n int) ([]radar.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n <= 0 || n > len(q.items) {
		n = len(q.items)
	}
	out := make([]radar.QueueEntry, n)
	for i := 0; i < n; i++ {
		out[i] = q.items[i].entry
		out[i].Task = out[i].Task.Clone()
	}
	return out, nil
}

// Size returns the number of queued entries.
func (q *Queue) Size(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items), nil
}

// Remove drops a task from either tier.
func (q *Queue) Remove(_ context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeLocked(taskID)
	return nil
}

// Clear empties the queue.
func (q *Queue) Clear(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	return nil
}

func (q *Queue) insertLocked(entry radar.QueueEntry) {
	q.seq++
	it := item{entry: entry, seq: q.seq}
	idx := sort.Search(len(q.items), func(i int) bool {
		cur := q.items[i]
		if cur.entry.Score != it.entry.Score {
			return cur.entry.Score > it.entry.Score
		}
		return cur.seq > it.seq
	})
	q.items = append(q.items, item{})
	copy(q.items[idx+1:], q.items[idx:])
	q.items[idx] = it
}

func (q *Queue) removeLocked(taskID string) {
	for i, it := range q.items {
		if it.entry.Task.TaskID == taskID {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return
		}
	}
}
