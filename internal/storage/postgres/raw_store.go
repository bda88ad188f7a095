package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/hotlist-radar/internal/radar"
)

const rawColumns = "item_id, source, category, title, url, platform, position, hot_value, extra, first_seen_at, last_seen_at, history"

// RawStore keeps raw items in one raw_<collection> table per collection.
type RawStore struct {
	pool Pool
}

// NewRawStore wraps pool.
func NewRawStore(pool Pool) *RawStore {
	return &RawStore{pool: pool}
}

// GetMany loads the rows with the given ids.
func (s *RawStore) GetMany(ctx context.Context, collection radar.Collection, ids []string) (map[string]radar.Item, error) {
	out := make(map[string]radar.Item, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	table, err := rawTable(collection)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE item_id = ANY($1)", rawColumns, table)
	rows, err := s.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	items, err := scanItems(rows)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", table, err)
	}
	for _, it := range items {
		out[it.ItemID] = it
	}
	return out, nil
}

// BulkWrite applies every op in one multi-row upsert, so the batch commits atomically.
func (s *RawStore) BulkWrite(ctx context.Context, collection radar.Collection, ops []radar.WriteOp) error {
	if len(ops) == 0 {
		return nil
	}
	table, err := rawTable(collection)
	if err != nil {
		return err
	}
	args := make([]any, 0, len(ops)*12)
	for _, op := range ops {
		row, err := rawRow(op)
		if err != nil {
			return err
		}
		args = append(args, row...)
	}
	query := fmt.Sprintf(`
INSERT INTO %[1]s AS t (%[2]s)
VALUES %[3]s
ON CONFLICT (item_id) DO UPDATE SET
	last_seen_at = GREATEST(t.last_seen_at, EXCLUDED.last_seen_at),
	position = COALESCE(EXCLUDED.position, t.position),
	hot_value = COALESCE(EXCLUDED.hot_value, t.hot_value),
	extra = t.extra || EXCLUDED.extra,
	history = append_history(t.history, EXCLUDED.history)`, table, rawColumns, placeholders(len(ops), 12))
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("bulk write %s: %w", table, err)
	}
	return nil
}

// rawRow renders one op. Append ops carry only the overwritten values and the
// pushed points, so unchanged columns fall through COALESCE on conflict.
func rawRow(op radar.WriteOp) ([]any, error) {
	it := op.Item
	var (
		position *int
		hotValue *int64
		extra    map[string]any
		history  map[string][]radar.HistoryPoint
	)
	switch op.Kind {
	case radar.WriteInsert:
		position, hotValue, extra, history = it.Position, it.HotValue, it.Extra, it.History
	default:
		var scratch radar.Item
		extra = map[string]any{}
		for field, val := range op.Set {
			switch field {
			case radar.FieldPosition, radar.FieldHotValue:
				scratch.SetField(field, val)
			case radar.FieldTitle, radar.FieldURL, radar.FieldPlatform:
			default:
				extra[field] = val
			}
		}
		position, hotValue = scratch.Position, scratch.HotValue
		history = make(map[string][]radar.HistoryPoint, len(op.Push))
		for field, points := range op.Push {
			history[field] = append([]radar.HistoryPoint(nil), points...)
		}
		if it.FirstSeenAt == 0 {
			it.FirstSeenAt = op.LastSeenAt
		}
	}
	if extra == nil {
		extra = map[string]any{}
	}
	if history == nil {
		history = map[string][]radar.HistoryPoint{}
	}
	extraJSON, err := json.Marshal(extra)
	if err != nil {
		return nil, fmt.Errorf("marshal extra for %s: %w", it.ItemID, err)
	}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("marshal history for %s: %w", it.ItemID, err)
	}
	lastSeen := op.LastSeenAt
	if lastSeen == 0 {
		lastSeen = it.LastSeenAt
	}
	return []any{
		it.ItemID,
		it.Source,
		string(it.Category),
		it.Title,
		it.URL,
		it.Platform,
		position,
		hotValue,
		extraJSON,
		it.FirstSeenAt,
		lastSeen,
		historyJSON,
	}, nil
}

// Find returns matching items, newest first.
func (s *RawStore) Find(ctx context.Context, collection radar.Collection, q radar.ItemQuery) ([]radar.Item, error) {
	table, err := rawTable(collection)
	if err != nil {
		return nil, err
	}
	var limit any
	if q.Limit > 0 {
		limit = q.Limit
	}
	query := fmt.Sprintf(`SELECT %s FROM %s
WHERE ($1 = '' OR source = $1) AND last_seen_at >= $2
ORDER BY last_seen_at DESC, item_id
LIMIT $3`, rawColumns, table)
	rows, err := s.pool.Query(ctx, query, q.Source, q.Since, limit)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	items, err := scanItems(rows)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", table, err)
	}
	return items, nil
}

func scanItems(rows pgx.Rows) ([]radar.Item, error) {
	defer rows.Close()
	var out []radar.Item
	for rows.Next() {
		var (
			it          radar.Item
			category    string
			position    *int32
			hotValue    *int64
			extraJSON   []byte
			historyJSON []byte
		)
		if err := rows.Scan(&it.ItemID, &it.Source, &category, &it.Title, &it.URL, &it.Platform,
			&position, &hotValue, &extraJSON, &it.FirstSeenAt, &it.LastSeenAt, &historyJSON); err != nil {
			return nil, err
		}
		it.Category = radar.Category(category)
		if position != nil {
			it.Position = radar.IntPtr(int(*position))
		}
		it.HotValue = hotValue
		if len(extraJSON) > 0 {
			if err := json.Unmarshal(extraJSON, &it.Extra); err != nil {
				return nil, fmt.Errorf("decode extra of %s: %w", it.ItemID, err)
			}
			if len(it.Extra) == 0 {
				it.Extra = nil
			}
		}
		if len(historyJSON) > 0 {
			if err := json.Unmarshal(historyJSON, &it.History); err != nil {
				return nil, fmt.Errorf("decode history of %s: %w", it.ItemID, err)
			}
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
