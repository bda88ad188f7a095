package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/hotlist-radar/internal/radar"
)

// SignalStore keeps unconsumed signals keyed by signal_id.
type SignalStore struct {
	mu      sync.RWMutex
	signals map[string]radar.Signal
}

// NewSignalStore constructs an empty SignalStore.
func NewSignalStore() *SignalStore {
	return &SignalStore{signals: make(map[string]radar.Signal)}
}

// Upsert inserts or overwrites signals, preserving detected_at of existing rows.
func (s *SignalStore) Upsert(_ context.Context, signals []radar.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sig := range signals {
		cp, err := cloneSignal(sig)
		if err != nil {
			return err
		}
		if prev, ok := s.signals[sig.SignalID]; ok {
			cp.DetectedAt = prev.DetectedAt
		}
		s.signals[sig.SignalID] = cp
	}
	return nil
}

// List returns every stored signal ordered by detected_at then id.
func (s *SignalStore) List(_ context.Context) ([]radar.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]radar.Signal, 0, len(s.signals))
	for _, sig := range s.signals {
		cp, err := cloneSignal(sig)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DetectedAt != out[j].DetectedAt {
			return out[i].DetectedAt < out[j].DetectedAt
		}
		return out[i].SignalID < out[j].SignalID
	})
	return out, nil
}

// Delete removes the given ids. Missing ids are ignored.
func (s *SignalStore) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.signals, id)
	}
	return nil
}

func cloneSignal(sig radar.Signal) (radar.Signal, error) {
	raw, err := json.Marshal(sig)
	if err != nil {
		return radar.Signal{}, fmt.Errorf("copy signal %s: %w", sig.SignalID, err)
	}
	var out radar.Signal
	if err := json.Unmarshal(raw, &out); err != nil {
		return radar.Signal{}, fmt.Errorf("copy signal %s: %w", sig.SignalID, err)
	}
	return out, nil
}
