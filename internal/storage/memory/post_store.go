package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/hotlist-radar/internal/radar"
)

// PostStore keeps deep-crawl posts keyed by post_id.
type PostStore struct {
	mu    sync.RWMutex
	order []string
	posts map[string]radar.Post
}

// NewPostStore constructs an empty PostStore.
func NewPostStore() *PostStore {
	return &PostStore{posts: make(map[string]radar.Post)}
}

// SavePosts upserts posts by id.
func (s *PostStore) SavePosts(_ context.Context, posts []radar.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range posts {
		if _, ok := s.posts[p.PostID]; !ok {
			s.order = append(s.order, p.PostID)
		}
		p.Comments = append([]radar.Comment(nil), p.Comments...)
		s.posts[p.PostID] = p
	}
	return nil
}

// PostsByTask returns posts written by one crawling task in insertion order.
func (s *PostStore) PostsByTask(_ context.Context, taskID string) ([]radar.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []radar.Post
	for _, id := range s.order {
		if p := s.posts[id]; p.CrawlingTaskID == taskID {
			p.Comments = append([]radar.Comment(nil), p.Comments...)
			out = append(out, p)
		}
	}
	return out, nil
}
