package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/hotlist-radar/internal/radar"
)

// SignalStore keeps unconsumed signals as JSONB payloads.
type SignalStore struct {
	pool Pool
}

// NewSignalStore wraps pool.
func NewSignalStore(pool Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

// Upsert writes signals in one statement. detected_at of existing rows is kept.
func (s *SignalStore) Upsert(ctx context.Context, signals []radar.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	args := make([]any, 0, len(signals)*8)
	for _, sig := range signals {
		payload, err := json.Marshal(sig)
		if err != nil {
			return fmt.Errorf("marshal signal %s: %w", sig.SignalID, err)
		}
		args = append(args, sig.SignalID, string(sig.Type), sig.Layer, sig.SourceCollection,
			sig.Title, sig.DetectedAt, sig.UpdatedAt, payload)
	}
	query := `
INSERT INTO signals (signal_id, signal_type, layer, source_collection, title, detected_at, updated_at, payload)
VALUES ` + placeholders(len(signals), 8) + `
ON CONFLICT (signal_id) DO UPDATE SET
	title = EXCLUDED.title,
	updated_at = EXCLUDED.updated_at,
	payload = EXCLUDED.payload,
	detected_at = signals.detected_at`
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert signals: %w", err)
	}
	return nil
}

// List returns every signal ordered by detected_at then id.
func (s *SignalStore) List(ctx context.Context) ([]radar.Signal, error) {
	rows, err := s.pool.Query(ctx, `SELECT payload, detected_at FROM signals ORDER BY detected_at, signal_id`)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	defer rows.Close()
	var out []radar.Signal
	for rows.Next() {
		var (
			payload    []byte
			detectedAt int64
		)
		if err := rows.Scan(&payload, &detectedAt); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		var sig radar.Signal
		if err := json.Unmarshal(payload, &sig); err != nil {
			return nil, fmt.Errorf("decode signal: %w", err)
		}
		sig.DetectedAt = detectedAt
		out = append(out, sig)
	}
	return out, rows.Err()
}

// Delete removes signals by id.
func (s *SignalStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM signals WHERE signal_id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("delete signals: %w", err)
	}
	return nil
}
