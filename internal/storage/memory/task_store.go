package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/hotlist-radar/internal/radar"
)

// TaskStore provides an in-memory task table plus status history.
type TaskStore struct {
	mu      sync.RWMutex
	tasks   map[string]radar.Task
	history map[string][]radar.TaskStatusEntry
}

// NewTaskStore constructs a TaskStore.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks:   make(map[string]radar.Task),
		history: make(map[string][]radar.TaskStatusEntry),
	}
}

// Create stores a new task.
func (s *TaskStore) Create(_ context.Context, task radar.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.TaskID]; exists {
		return radar.ErrTaskExists
	}
	s.tasks[task.TaskID] = task.Clone()
	return nil
}

// Get fetches a task by ID.
func (s *TaskStore) Get(_ context.Context, id string) (radar.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return radar.Task{}, radar.ErrNotFound
	}
	return task.Clone(), nil
}

// Save overwrites an existing task row.
func (s *TaskStore) Save(_ context.Context, task radar.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.TaskID]; !ok {
		return radar.ErrNotFound
	}
	s.tasks[task.TaskID] = task.Clone()
	return nil
}

// ListPending returns due pending tasks, highest priority first then oldest.
func (s *TaskStore) ListPending(_ context.Context, now int64) ([]radar.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []radar.Task
	for _, t := range s.tasks {
		if t.Status != radar.TaskPending {
			continue
		}
		if t.NextRetryAt != nil && *t.NextRetryAt > now {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].TaskID < out[j].TaskID
	})
	return out, nil
}

// HasActive reports whether a pending or running task exists for the pair.
func (s *TaskStore) HasActive(_ context.Context, candidateID, platform string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tasks {
		if t.CandidateID == candidateID && t.Platform == platform && t.Active() {
			return true, nil
		}
	}
	return false, nil
}

// AppendStatus records a status-history row.
func (s *TaskStore) AppendStatus(_ context.Context, entry radar.TaskStatusEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[entry.TaskID] = append(s.history[entry.TaskID], entry)
	return nil
}

// StatusHistory returns the history rows of a task in append order.
func (s *TaskStore) StatusHistory(_ context.Context, taskID string) ([]radar.TaskStatusEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]radar.TaskStatusEntry(nil), s.history[taskID]...), nil
}
