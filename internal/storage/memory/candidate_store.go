package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/hotlist-radar/internal/radar"
)

// CandidateStore keeps candidates keyed by candidate_id.
type CandidateStore struct {
	mu         sync.RWMutex
	candidates map[string]radar.Candidate
}

// NewCandidateStore constructs an empty CandidateStore.
func NewCandidateStore() *CandidateStore {
	return &CandidateStore{candidates: make(map[string]radar.Candidate)}
}

// Get fetches a candidate by id.
func (s *CandidateStore) Get(_ context.Context, id string) (radar.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.candidates[id]
	if !ok {
		return radar.Candidate{}, radar.ErrNotFound
	}
	return c.Clone(), nil
}

// ListByStatus returns candidates in any of the given statuses, oldest first.
func (s *CandidateStore) ListByStatus(_ context.Context, statuses []radar.CandidateStatus) ([]radar.Candidate, error) {
	want := make(map[radar.CandidateStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []radar.Candidate
	for _, c := range s.candidates {
		if len(want) == 0 || want[c.Status] {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstSeenAt != out[j].FirstSeenAt {
			return out[i].FirstSeenAt < out[j].FirstSeenAt
		}
		return out[i].CandidateID < out[j].CandidateID
	})
	return out, nil
}

// BulkUpsert writes every candidate under one lock.
func (s *CandidateStore) BulkUpsert(_ context.Context, candidates []radar.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range candidates {
		s.candidates[c.CandidateID] = c.Clone()
	}
	return nil
}
