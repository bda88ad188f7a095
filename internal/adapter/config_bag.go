package adapter

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"unicode"
)

// ConfigBag is the mutable, adapter-wide configuration. Values are shared by
// every task the adapter runs, so callers snapshot and restore around a task.
type ConfigBag struct {
	mu     sync.RWMutex
	values map[string]any
}

// Snapshot is a detached copy of the uppercase keys of a ConfigBag.
type Snapshot map[string]any

// NewConfigBag builds a bag seeded with defaults.
func NewConfigBag(defaults map[string]any) *ConfigBag {
	b := &ConfigBag{values: make(map[string]any, len(defaults))}
	for k, v := range defaults {
		b.values[k] = copyValue(v)
	}
	return b
}

// Get returns a value.
func (b *ConfigBag) Get(key string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[key]
	return copyValue(v), ok
}

// Set stores a value.
func (b *ConfigBag) Set(key string, val any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.values == nil {
		b.values = map[string]any{}
	}
	b.values[key] = copyValue(val)
}

// String returns a value rendered as text.
func (b *ConfigBag) String(key string) string {
	v, ok := b.Get(key)
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case []string:
		return strings.Join(t, ",")
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	}
	raw, _ := json.Marshal(v)
	return string(raw)
}

// Strings returns a list value. A plain string is treated as a single entry.
func (b *ConfigBag) Strings(key string) []string {
	v, ok := b.Get(key)
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	}
	return nil
}

// Int returns a numeric value, or fallback when unset or malformed.
func (b *ConfigBag) Int(key string, fallback int) int {
	v, ok := b.Get(key)
	if !ok {
		return fallback
	}
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
	}
	return fallback
}

// Bool returns a flag, or fallback when unset or malformed.
func (b *ConfigBag) Bool(key string, fallback bool) bool {
	v, ok := b.Get(key)
	if !ok {
		return fallback
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
			return parsed
		}
	}
	return fallback
}

// Snapshot copies every uppercase key.
func (b *ConfigBag) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	snap := make(Snapshot, len(b.values))
	for k, v := range b.values {
		if isUpper(k) {
			snap[k] = copyValue(v)
		}
	}
	return snap
}

// Restore puts back every uppercase key exactly as captured, dropping keys
// added since the snapshot.
func (b *ConfigBag) Restore(snap Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k := range b.values {
		if _, kept := snap[k]; !kept && isUpper(k) {
			delete(b.values, k)
		}
	}
	for k, v := range snap {
		b.values[k] = copyValue(v)
	}
}

// Fingerprint serialises the bag deterministically for equality checks.
func (b *ConfigBag) Fingerprint() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	// encoding/json sorts map keys.
	raw, err := json.Marshal(b.values)
	if err != nil {
		return ""
	}
	return string(raw)
}

func isUpper(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		if unicode.IsLetter(r) && !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

func copyValue(v any) any {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, val := range t {
			out[k] = val
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = copyValue(val)
		}
		return out
	}
	return v
}
