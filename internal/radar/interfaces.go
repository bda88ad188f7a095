package radar

import (
	"context"
	"time"
)

// WriteKind distinguishes the two raw-item write operations.
type WriteKind int

// Write kinds.
const (
	WriteInsert WriteKind = iota
	WriteAppend
)

// WriteOp is one row operation of a bulk raw-item write.
//
// For WriteInsert, Item is the full new row. For WriteAppend, Item is the new
// observation, Set holds the time-varying values to overwrite and Push the
// history points to append.
type WriteOp struct {
	Kind       WriteKind
	Item       Item
	LastSeenAt int64
	Set        map[string]any
	Push       map[string][]HistoryPoint
}

// ItemQuery filters raw items.
type ItemQuery struct {
	Source string
	Since  int64
	Limit  int
}

// RawStore persists raw observations partitioned by collection.
type RawStore interface {
	GetMany(ctx context.Context, collection Collection, ids []string) (map[string]Item, error)
	BulkWrite(ctx context.Context, collection Collection, ops []WriteOp) error
	// Find returns matching items ordered by last_seen_at, newest first.
	Find(ctx context.Context, collection Collection, q ItemQuery) ([]Item, error)
}

// SignalStore holds unconsumed detector output.
type SignalStore interface {
	// Upsert keeps detected_at of existing rows and refreshes the rest.
	Upsert(ctx context.Context, signals []Signal) error
	List(ctx context.Context) ([]Signal, error)
	Delete(ctx context.Context, ids []string) error
}

// CandidateStore persists candidate topics.
type CandidateStore interface {
	Get(ctx context.Context, id string) (Candidate, error)
	ListByStatus(ctx context.Context, statuses []CandidateStatus) ([]Candidate, error)
	BulkUpsert(ctx context.Context, candidates []Candidate) error
}

// TaskStore persists deep-crawl tasks and their status history.
type TaskStore interface {
	Create(ctx context.Context, task Task) error
	Get(ctx context.Context, id string) (Task, error)
	Save(ctx context.Context, task Task) error
	// ListPending returns pending tasks due at now, priority descending then oldest first.
	ListPending(ctx context.Context, now int64) ([]Task, error)
	HasActive(ctx context.Context, candidateID, platform string) (bool, error)
	AppendStatus(ctx context.Context, entry TaskStatusEntry) error
	StatusHistory(ctx context.Context, taskID string) ([]TaskStatusEntry, error)
}

// CookieStore persists per-platform login state.
type CookieStore interface {
	Get(ctx context.Context, platform string) (PlatformCookie, error)
	Save(ctx context.Context, cookie PlatformCookie) error
	List(ctx context.Context) ([]PlatformCookie, error)
	MarkExpired(ctx context.Context, platform string) error
}

// PostStore persists deep-crawl output.
type PostStore interface {
	SavePosts(ctx context.Context, posts []Post) error
	PostsByTask(ctx context.Context, taskID string) ([]Post, error)
}

// TaskQueue is the two-tier dispatch queue. User entries always pop before system entries.
type TaskQueue interface {
	PushUser(ctx context.Context, task Task) error
	PushSystem(ctx context.Context, task Task) error
	// Pop returns false when the queue is empty.
	Pop(ctx context.Context) (QueueEntry, bool, error)
	// PushBack reinserts an entry with its original tier and score.
	PushBack(ctx context.Context, entry QueueEntry) error
	Peek(ctx context.Context, n int) ([]QueueEntry, error)
	Size(ctx context.Context) (int, error)
	Remove(ctx context.Context, taskID string) error
	Clear(ctx context.Context) error
}

// Alerter delivers operator notifications.
type Alerter interface {
	Alert(ctx context.Context, alert Alert) error
}

// Tokenizer splits a title into significant keywords.
type Tokenizer interface {
	Tokens(text string) []string
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces task IDs.
type IDGenerator interface {
	NewID() (string, error)
}
