package sources

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Registry holds every known source by name. It is safe for concurrent reads.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry builds a registry from already-parsed sources.
func NewRegistry(srcs ...Source) (*Registry, error) {
	r := &Registry{sources: make(map[string]Source, len(srcs))}
	for _, s := range srcs {
		if err := r.Add(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// LoadDir parses every *.yaml / *.yml file in dir as one source.
func LoadDir(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read sources dir: %w", err)
	}
	r := &Registry{sources: map[string]Source{}}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		src, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if err := r.Add(src); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// LoadFile parses a single source file.
func LoadFile(path string) (Source, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		return Source{}, fmt.Errorf("read source file: %w", err)
	}
	src := Source{Enabled: true}
	if err := yaml.Unmarshal(data, &src); err != nil {
		return Source{}, fmt.Errorf("parse source file %s: %w", path, err)
	}
	if src.Name == "" {
		src.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return src, nil
}

// Add validates and registers a source, replacing any previous one with the same name.
func (r *Registry) Add(s Source) error {
	if err := s.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[s.Name] = s
	return nil
}

// Get returns the named source.
func (r *Registry) Get(name string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[name]
	return s, ok
}

// Enabled returns enabled sources sorted by name.
func (r *Registry) Enabled() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Source, 0, len(r.sources))
	for _, s := range r.sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
