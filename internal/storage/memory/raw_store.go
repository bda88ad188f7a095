package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/hotlist-radar/internal/radar"
)

// RawStore keeps raw items per collection.
type RawStore struct {
	mu    sync.RWMutex
	items map[radar.Collection]map[string]radar.Item
}

// NewRawStore constructs an empty RawStore.
func NewRawStore() *RawStore {
	return &RawStore{items: make(map[radar.Collection]map[string]radar.Item)}
}

// GetMany returns the rows that exist among ids.
func (s *RawStore) GetMany(_ context.Context, collection radar.Collection, ids []string) (map[string]radar.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]radar.Item, len(ids))
	rows := s.items[collection]
	for _, id := range ids {
		if it, ok := rows[id]; ok {
			out[id] = it.Clone()
		}
	}
	return out, nil
}

// BulkWrite applies every op under one lock, so readers observe the batch atomically.
func (s *RawStore) BulkWrite(_ context.Context, collection radar.Collection, ops []radar.WriteOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.items[collection]
	if rows == nil {
		rows = make(map[string]radar.Item)
		s.items[collection] = rows
	}
	for _, op := range ops {
		existing, exists := rows[op.Item.ItemID]
		switch {
		case op.Kind == radar.WriteInsert && !exists:
			rows[op.Item.ItemID] = op.Item.Clone()
		case op.Kind == radar.WriteInsert:
			// Concurrent first observation: fold the insert into the existing row.
			for field, points := range op.Item.History {
				existing.History = appendHistory(existing.History, field, points...)
				if len(points) > 0 {
					existing.SetField(field, points[len(points)-1].Val)
				}
			}
			existing.LastSeenAt = maxInt64(existing.LastSeenAt, op.Item.LastSeenAt)
			rows[op.Item.ItemID] = existing
		case exists:
			for field, val := range op.Set {
				existing.SetField(field, val)
			}
			for field, points := range op.Push {
				existing.History = appendHistory(existing.History, field, points...)
			}
			existing.LastSeenAt = maxInt64(existing.LastSeenAt, op.LastSeenAt)
			rows[op.Item.ItemID] = existing
		}
	}
	return nil
}

// Find returns items matching q, newest first.
func (s *RawStore) Find(_ context.Context, collection radar.Collection, q radar.ItemQuery) ([]radar.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []radar.Item
	for _, it := range s.items[collection] {
		if q.Source != "" && it.Source != q.Source {
			continue
		}
		if it.LastSeenAt < q.Since {
			continue
		}
		out = append(out, it.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastSeenAt != out[j].LastSeenAt {
			return out[i].LastSeenAt > out[j].LastSeenAt
		}
		return out[i].ItemID < out[j].ItemID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func appendHistory(h map[string][]radar.HistoryPoint, field string, points ...radar.HistoryPoint) map[string][]radar.HistoryPoint {
	if h == nil {
		h = make(map[string][]radar.HistoryPoint)
	}
	h[field] = append(h[field], points...)
	return h
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
