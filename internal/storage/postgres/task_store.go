package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/hotlist-radar/internal/radar"
)

// TaskStore persists crawl tasks and their status history.
type TaskStore struct {
	pool Pool
}

// NewTaskStore wraps pool.
func NewTaskStore(pool Pool) *TaskStore {
	return &TaskStore{pool: pool}
}

// Create inserts a new task. An existing id yields radar.ErrTaskExists.
func (s *TaskStore) Create(ctx context.Context, task radar.Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", task.TaskID, err)
	}
	tag, err := s.pool.Exec(ctx, `
INSERT INTO crawl_tasks (task_id, candidate_id, platform, status, priority, created_at, next_retry_at, payload)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (task_id) DO NOTHING`,
		task.TaskID, task.CandidateID, task.Platform, string(task.Status), task.Priority,
		task.CreatedAt, task.NextRetryAt, payload)
	if err != nil {
		return fmt.Errorf("create task %s: %w", task.TaskID, err)
	}
	if tag.RowsAffected() == 0 {
		return radar.ErrTaskExists
	}
	return nil
}

// Get loads one task.
func (s *TaskStore) Get(ctx context.Context, id string) (radar.Task, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM crawl_tasks WHERE task_id = $1`, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return radar.Task{}, radar.ErrNotFound
	}
	if err != nil {
		return radar.Task{}, fmt.Errorf("get task %s: %w", id, err)
	}
	var t radar.Task
	if err := json.Unmarshal(payload, &t); err != nil {
		return radar.Task{}, fmt.Errorf("decode task %s: %w", id, err)
	}
	return t, nil
}

// Save overwrites a task's mutable state.
func (s *TaskStore) Save(ctx context.Context, task radar.Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", task.TaskID, err)
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE crawl_tasks SET status = $2, priority = $3, next_retry_at = $4, payload = $5
WHERE task_id = $1`,
		task.TaskID, string(task.Status), task.Priority, task.NextRetryAt, payload)
	if err != nil {
		return fmt.Errorf("save task %s: %w", task.TaskID, err)
	}
	if tag.RowsAffected() == 0 {
		return radar.ErrNotFound
	}
	return nil
}

// ListPending returns pending tasks due at now, priority descending then oldest first.
func (s *TaskStore) ListPending(ctx context.Context, now int64) ([]radar.Task, error) {
	rows, err := s.pool.Query(ctx, `
SELECT payload FROM crawl_tasks
WHERE status = 'pending' AND (next_retry_at IS NULL OR next_retry_at <= $1)
ORDER BY priority DESC, created_at ASC, task_id`, now)
	if err != nil {
		return nil, fmt.Errorf("list pending tasks: %w", err)
	}
	defer rows.Close()
	var out []radar.Task
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		var t radar.Task
		if err := json.Unmarshal(payload, &t); err != nil {
			return nil, fmt.Errorf("decode task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// HasActive reports whether a pending or running task exists for the pair.
func (s *TaskStore) HasActive(ctx context.Context, candidateID, platform string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
SELECT EXISTS (
	SELECT 1 FROM crawl_tasks
	WHERE candidate_id = $1 AND platform = $2 AND status IN ('pending', 'running')
)`, candidateID, platform).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active task: %w", err)
	}
	return exists, nil
}

// AppendStatus records one status change.
func (s *TaskStore) AppendStatus(ctx context.Context, entry radar.TaskStatusEntry) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO crawl_task_status (task_id, status, attempts, error, updated_at)
VALUES ($1,$2,$3,$4,$5)`,
		entry.TaskID, string(entry.Status), entry.Attempts, entry.Error, entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("append task status: %w", err)
	}
	return nil
}

// StatusHistory returns a task's status changes in write order.
func (s *TaskStore) StatusHistory(ctx context.Context, taskID string) ([]radar.TaskStatusEntry, error) {
	rows, err := s.pool.Query(ctx, `
SELECT task_id, status, attempts, error, updated_at FROM crawl_task_status
WHERE task_id = $1 ORDER BY id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("task status history: %w", err)
	}
	defer rows.Close()
	var out []radar.TaskStatusEntry
	for rows.Next() {
		var (
			e      radar.TaskStatusEntry
			status string
		)
		if err := rows.Scan(&e.TaskID, &status, &e.Attempts, &e.Error, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan task status: %w", err)
		}
		e.Status = radar.TaskStatus(status)
		out = append(out, e)
	}
	return out, rows.Err()
}
