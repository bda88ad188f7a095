package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/hotlist-radar/internal/radar"
)

// CookieStore keeps one cookie record per platform.
type CookieStore struct {
	mu      sync.RWMutex
	cookies map[string]radar.PlatformCookie
}

// NewCookieStore constructs an empty CookieStore.
func NewCookieStore() *CookieStore {
	return &CookieStore{cookies: make(map[string]radar.PlatformCookie)}
}

// Get returns the record for a platform.
func (s *CookieStore) Get(_ context.Context, platform string) (radar.PlatformCookie, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cookies[platform]
	if !ok {
		return radar.PlatformCookie{}, radar.ErrNotFound
	}
	return cloneCookie(c), nil
}

// Save replaces the record for a platform.
func (s *CookieStore) Save(_ context.Context, cookie radar.PlatformCookie) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cookies[cookie.Platform] = cloneCookie(cookie)
	return nil
}

// List returns every record sorted by platform.
func (s *CookieStore) List(_ context.Context) ([]radar.PlatformCookie, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]radar.PlatformCookie, 0, len(s.cookies))
	for _, c := range s.cookies {
		out = append(out, cloneCookie(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out, nil
}

// MarkExpired flags the platform's cookies as expired.
func (s *CookieStore) MarkExpired(_ context.Context, platform string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cookies[platform]
	if !ok {
		return radar.ErrNotFound
	}
	c.Status = radar.CookieExpired
	s.cookies[platform] = c
	return nil
}

func cloneCookie(c radar.PlatformCookie) radar.PlatformCookie {
	out := c
	out.Cookies = make(map[string]string, len(c.Cookies))
	for k, v := range c.Cookies {
		out.Cookies[k] = v
	}
	return out
}
