// Package cookie probes whether stored platform cookies still carry a login session.
package cookie

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
)

// ErrNoEndpoint reports a platform without a configured probe URL.
var ErrNoEndpoint = errors.New("no health endpoint configured")

// Config controls the probe.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// Endpoints maps platform codes to a lightweight page that needs a session.
	Endpoints map[string]string
	// LoginMarkers are lowercase body fragments that indicate a login wall.
	LoginMarkers []string
}

// DefaultEndpoints returns probe pages for the stock platform codes.
func DefaultEndpoints() map[string]string {
	return map[string]string{
		"wb":    "https://weibo.com/",
		"xhs":   "https://www.xiaohongshu.com/explore",
		"dy":    "https://www.douyin.com/",
		"ks":    "https://www.kuaishou.com/",
		"bili":  "https://www.bilibili.com/",
		"zhihu": "https://www.zhihu.com/",
		"tieba": "https://tieba.baidu.com/",
	}
}

// DefaultLoginMarkers are the stock login-wall fragments.
func DefaultLoginMarkers() []string {
	return []string{`"login":false`, "请登录", "扫码登录", `type="password"`, "passport.weibo.com/visitor"}
}

// HealthChecker issues one authenticated GET per check using colly.
type HealthChecker struct {
	cfg       Config
	transport http.RoundTripper
}

// NewHealthChecker builds a checker. Zero values fall back to defaults.
func NewHealthChecker(cfg Config) *HealthChecker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Endpoints == nil {
		cfg.Endpoints = DefaultEndpoints()
	}
	if cfg.LoginMarkers == nil {
		cfg.LoginMarkers = DefaultLoginMarkers()
	}
	return &HealthChecker{cfg: cfg, transport: newHTTPTransport()}
}

// Check returns nil when the cookies reach the platform's probe page without
// hitting a login wall.
func (h *HealthChecker) Check(ctx context.Context, platform string, cookies map[string]string) error {
	endpoint, ok := h.cfg.Endpoints[platform]
	if !ok || endpoint == "" {
		return fmt.Errorf("%s: %w", platform, ErrNoEndpoint)
	}
	target, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("parse endpoint for %s: %w", platform, err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	collector := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(h.cfg.Timeout)
	collector.WithTransport(h.transport)
	if h.cfg.UserAgent != "" {
		collector.UserAgent = h.cfg.UserAgent
	}
	if err := collector.SetCookies(endpoint, httpCookies(cookies)); err != nil {
		return fmt.Errorf("set cookies for %s: %w", platform, err)
	}

	var (
		mu       sync.Mutex
		probeErr error
		finalURL = target
	)
	setErr := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if probeErr == nil {
			probeErr = err
		}
	}
	collector.SetRedirectHandler(func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return errors.New("too many redirects")
		}
		mu.Lock()
		finalURL = req.URL
		mu.Unlock()
		return nil
	})
	collector.OnResponse(func(r *colly.Response) {
		mu.Lock()
		landed := finalURL
		mu.Unlock()
		if loginPath(landed) {
			setErr(fmt.Errorf("redirected to login page %s", landed))
			return
		}
		if marker, found := h.loginMarker(r.Body); found {
			setErr(fmt.Errorf("login marker %q in probe response", marker))
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			setErr(fmt.Errorf("probe status %d: %w", r.StatusCode, err))
			return
		}
		setErr(err)
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(endpoint)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("cookie probe for %s canceled: %w", platform, ctx.Err())
	case err := <-done:
		mu.Lock()
		defer mu.Unlock()
		if probeErr != nil {
			return fmt.Errorf("cookie probe for %s: %w", platform, probeErr)
		}
		if err != nil {
			return fmt.Errorf("cookie probe for %s: %w", platform, err)
		}
		return nil
	}
}

func (h *HealthChecker) loginMarker(body []byte) (string, bool) {
	lower := strings.ToLower(string(body))
	for _, m := range h.cfg.LoginMarkers {
		if m != "" && strings.Contains(lower, strings.ToLower(m)) {
			return m, true
		}
	}
	return "", false
}

func loginPath(u *url.URL) bool {
	if u == nil {
		return false
	}
	p := strings.ToLower(u.Path)
	return strings.Contains(p, "login") || strings.Contains(p, "signin") || strings.HasPrefix(strings.ToLower(u.Host), "passport.")
}

func httpCookies(cookies map[string]string) []*http.Cookie {
	names := make([]string, 0, len(cookies))
	for name := range cookies {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*http.Cookie, 0, len(names))
	for _, name := range names {
		out = append(out, &http.Cookie{Name: name, Value: cookies[name], Path: "/"})
	}
	return out
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 5 * time.Second,
		MaxIdleConns:        20,
		IdleConnTimeout:     90 * time.Second,
	}
}
