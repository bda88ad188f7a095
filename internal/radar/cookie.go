package radar

import (
	"sort"
	"strings"
)

// CookieStatus reports whether a stored cookie bag is believed usable.
type CookieStatus string

// Cookie statuses.
const (
	CookieActive  CookieStatus = "active"
	CookieExpired CookieStatus = "expired"
)

// PlatformCookie is the login state a deep crawler replays for one platform.
type PlatformCookie struct {
	Platform    string            `json:"platform"`
	Cookies     map[string]string `json:"cookies"`
	SavedAt     int64             `json:"saved_at"`
	ExpiresHint int64             `json:"expires_hint,omitempty"`
	Status      CookieStatus      `json:"status"`
}

// Usable reports whether the bag can be handed to a crawler.
func (c PlatformCookie) Usable() bool {
	return c.Status == CookieActive && len(c.Cookies) > 0
}

// Header renders the cookies as a Cookie header value with names sorted.
func (c PlatformCookie) Header() string {
	names := make([]string, 0, len(c.Cookies))
	for k := range c.Cookies {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, k := range names {
		parts = append(parts, k+"="+c.Cookies[k])
	}
	return strings.Join(parts, "; ")
}

// ParseCookieHeader splits a "k=v; k2=v2" header into a map.
func ParseCookieHeader(header string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok || strings.TrimSpace(name) == "" {
			continue
		}
		out[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return out
}
