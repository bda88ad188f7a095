package radar

// TaskStatus is the lifecycle state of a deep-crawl task.
type TaskStatus string

// Task statuses.
const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// MaxSearchKeywords caps the keywords a task searches for.
const MaxSearchKeywords = 3

// TaskOrigin records who asked for a task.
type TaskOrigin string

// Task origins.
const (
	OriginUser   TaskOrigin = "user"
	OriginSystem TaskOrigin = "system"
)

// Task is one deep crawl of a platform for a topic.
type Task struct {
	TaskID         string     `json:"task_id"`
	CandidateID    string     `json:"candidate_id,omitempty"`
	TopicTitle     string     `json:"topic_title"`
	SearchKeywords []string   `json:"search_keywords"`
	Platform       string     `json:"platform"`
	MaxNotes       int        `json:"max_notes"`
	Priority       int        `json:"priority"`
	Origin         TaskOrigin `json:"origin"`
	Status         TaskStatus `json:"status"`
	Attempts       int        `json:"attempts"`
	CreatedAt      int64      `json:"created_at"`
	UpdatedAt      int64      `json:"updated_at"`
	NextRetryAt    *int64     `json:"next_retry_at,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
}

// Active reports whether the task still blocks duplicate emission.
func (t Task) Active() bool {
	return t.Status == TaskPending || t.Status == TaskRunning
}

// Clone returns a deep copy of the task.
func (t Task) Clone() Task {
	out := t
	out.SearchKeywords = append([]string(nil), t.SearchKeywords...)
	if t.NextRetryAt != nil {
		v := *t.NextRetryAt
		out.NextRetryAt = &v
	}
	return out
}

// TaskStatusEntry is one row of the task status history.
type TaskStatusEntry struct {
	TaskID    string     `json:"task_id"`
	Status    TaskStatus `json:"status"`
	Attempts  int        `json:"attempts"`
	Error     string     `json:"error,omitempty"`
	UpdatedAt int64      `json:"updated_at"`
}

// Tier orders queue entries. Lower tiers pop first.
type Tier int

// Queue tiers.
const (
	TierUser   Tier = 0
	TierSystem Tier = 1
)

func (t Tier) String() string {
	if t == TierUser {
		return "user"
	}
	return "system"
}

// QueueEntry is a task sitting in the dispatch queue.
type QueueEntry struct {
	Task  Task    `json:"task"`
	Tier  Tier    `json:"tier"`
	Score float64 `json:"score"`
}

// QueueScore computes the ordering score for an entry pushed at unixMilli.
func QueueScore(tier Tier, unixMilli int64) float64 {
	return float64(tier)*1e10 + float64(unixMilli)/1000
}
