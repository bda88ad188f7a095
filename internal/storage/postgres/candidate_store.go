package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/hotlist-radar/internal/radar"
)

// CandidateStore persists candidates as JSONB payloads indexed by status.
type CandidateStore struct {
	pool Pool
}

// NewCandidateStore wraps pool.
func NewCandidateStore(pool Pool) *CandidateStore {
	return &CandidateStore{pool: pool}
}

// Get loads one candidate.
func (s *CandidateStore) Get(ctx context.Context, id string) (radar.Candidate, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM candidates WHERE candidate_id = $1`, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return radar.Candidate{}, radar.ErrNotFound
	}
	if err != nil {
		return radar.Candidate{}, fmt.Errorf("get candidate %s: %w", id, err)
	}
	var c radar.Candidate
	if err := json.Unmarshal(payload, &c); err != nil {
		return radar.Candidate{}, fmt.Errorf("decode candidate %s: %w", id, err)
	}
	return c, nil
}

// ListByStatus returns candidates in any of statuses, most recently updated first.
func (s *CandidateStore) ListByStatus(ctx context.Context, statuses []radar.CandidateStatus) ([]radar.Candidate, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM candidates WHERE status = ANY($1) ORDER BY updated_at DESC, candidate_id`, names)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()
	var out []radar.Candidate
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		var c radar.Candidate
		if err := json.Unmarshal(payload, &c); err != nil {
			return nil, fmt.Errorf("decode candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// BulkUpsert writes every candidate in one statement. The last writer wins per row.
func (s *CandidateStore) BulkUpsert(ctx context.Context, candidates []radar.Candidate) error {
	if len(candidates) == 0 {
		return nil
	}
	args := make([]any, 0, len(candidates)*5)
	for _, c := range candidates {
		payload, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal candidate %s: %w", c.CandidateID, err)
		}
		args = append(args, c.CandidateID, string(c.Status), c.CanonicalTitle, c.UpdatedAt, payload)
	}
	query := `
INSERT INTO candidates (candidate_id, status, canonical_title, updated_at, payload)
VALUES ` + placeholders(len(candidates), 5) + `
ON CONFLICT (candidate_id) DO UPDATE SET
	status = EXCLUDED.status,
	canonical_title = EXCLUDED.canonical_title,
	updated_at = EXCLUDED.updated_at,
	payload = EXCLUDED.payload`
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert candidates: %w", err)
	}
	return nil
}
