package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/hotlist-radar/internal/radar"
)

// PostStore persists deep-crawled posts.
type PostStore struct {
	pool Pool
}

// NewPostStore wraps pool.
func NewPostStore(pool Pool) *PostStore {
	return &PostStore{pool: pool}
}

// SavePosts upserts posts by id.
func (s *PostStore) SavePosts(ctx context.Context, posts []radar.Post) error {
	if len(posts) == 0 {
		return nil
	}
	args := make([]any, 0, len(posts)*6)
	for _, p := range posts {
		payload, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal post %s: %w", p.PostID, err)
		}
		args = append(args, p.PostID, p.Platform, p.TopicID, p.CrawlingTaskID, p.CrawledAt, payload)
	}
	query := `
INSERT INTO deep_posts (post_id, platform, topic_id, crawling_task_id, crawled_at, payload)
VALUES ` + placeholders(len(posts), 6) + `
ON CONFLICT (post_id) DO UPDATE SET
	topic_id = EXCLUDED.topic_id,
	crawling_task_id = EXCLUDED.crawling_task_id,
	crawled_at = EXCLUDED.crawled_at,
	payload = EXCLUDED.payload`
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("save posts: %w", err)
	}
	return nil
}

// PostsByTask returns posts written by one crawling task in insertion order.
func (s *PostStore) PostsByTask(ctx context.Context, taskID string) ([]radar.Post, error) {
	rows, err := s.pool.Query(ctx, `SELECT payload FROM deep_posts WHERE crawling_task_id = $1 ORDER BY seq`, taskID)
	if err != nil {
		return nil, fmt.Errorf("posts by task: %w", err)
	}
	defer rows.Close()
	var out []radar.Post
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		var p radar.Post
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode post: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
