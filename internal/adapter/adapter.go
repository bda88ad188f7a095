// Package adapter defines the contract between the platform worker and the
// deep-crawl adapters, together with the configuration bag each adapter reads
// and the per-task context its storage layer stamps onto persisted rows.
package adapter

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Configuration keys the worker overrides before every task.
const (
	KeyPlatform    = "PLATFORM"
	KeyKeywords    = "KEYWORDS"
	KeyMaxNotes    = "CRAWLER_MAX_NOTES_COUNT"
	KeySaveOption  = "SAVE_DATA_OPTION"
	KeyLoginType   = "LOGIN_TYPE"
	KeyCookies     = "COOKIES"
	KeyHeadless    = "HEADLESS"
	KeyCDPHeadless = "CDP_HEADLESS"
	KeyCrawlerType = "CRAWLER_TYPE"
)

// Adapter crawls one platform using the values currently held in its Config.
type Adapter interface {
	Platform() string
	Config() *ConfigBag
	Start(ctx context.Context) error
}

// Set indexes adapters by platform code.
type Set struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewSet builds a Set. Later adapters replace earlier ones for the same platform.
func NewSet(adapters ...Adapter) *Set {
	s := &Set{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		s.adapters[a.Platform()] = a
	}
	return s
}

// Add registers an adapter.
func (s *Set) Add(a Adapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adapters[a.Platform()] = a
}

// Get returns the adapter for a platform.
func (s *Set) Get(platform string) (Adapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.adapters[platform]
	if !ok {
		return nil, fmt.Errorf("no adapter for platform %q", platform)
	}
	return a, nil
}

// Platforms lists the registered platform codes in sorted order.
func (s *Set) Platforms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.adapters))
	for p := range s.adapters {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

type taskContextKey struct{}

// TaskContext links rows an adapter persists back to the topic and task.
type TaskContext struct {
	TopicID        string
	CrawlingTaskID string
}

// WithTask returns a copy of ctx carrying tc.
func WithTask(ctx context.Context, tc TaskContext) context.Context {
	return context.WithValue(ctx, taskContextKey{}, tc)
}

// TaskFrom extracts the task context, if any.
func TaskFrom(ctx context.Context) (TaskContext, bool) {
	tc, ok := ctx.Value(taskContextKey{}).(TaskContext)
	return tc, ok
}
