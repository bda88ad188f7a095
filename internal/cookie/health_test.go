package cookie

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err != nil || c.Value != "good" {
			http.Redirect(w, r, "/login?next=/me", http.StatusFound)
			return
		}
		_, _ = w.Write([]byte(`{"login":true,"user":"x"}`))
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<form><input type="password"></form>`))
	})
	mux.HandleFunc("/forbidden", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/wall", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<p>请登录后查看</p>`))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func checker(srv *httptest.Server, timeout time.Duration) *HealthChecker {
	return NewHealthChecker(Config{
		Timeout: timeout,
		Endpoints: map[string]string{
			"xhs":   srv.URL + "/me",
			"dy":    srv.URL + "/forbidden",
			"zhihu": srv.URL + "/wall",
			"ks":    srv.URL + "/slow",
		},
	})
}

func TestCheckAcceptsLiveSession(t *testing.T) {
	t.Parallel()

	h := checker(newServer(t), 5*time.Second)
	require.NoError(t, h.Check(context.Background(), "xhs", map[string]string{"session": "good"}))
}

func TestCheckDetectsLoginRedirect(t *testing.T) {
	t.Parallel()

	h := checker(newServer(t), 5*time.Second)
	err := h.Check(context.Background(), "xhs", map[string]string{"session": "stale"})
	require.ErrorContains(t, err, "login")
}

func TestCheckRejectsErrorStatus(t *testing.T) {
	t.Parallel()

	h := checker(newServer(t), 5*time.Second)
	err := h.Check(context.Background(), "dy", map[string]string{"a": "b"})
	require.ErrorContains(t, err, "403")
}

func TestCheckDetectsLoginMarker(t *testing.T) {
	t.Parallel()

	h := checker(newServer(t), 5*time.Second)
	err := h.Check(context.Background(), "zhihu", map[string]string{"z_c0": "x"})
	require.ErrorContains(t, err, "login marker")
}

func TestCheckTimesOut(t *testing.T) {
	t.Parallel()

	h := checker(newServer(t), 100*time.Millisecond)
	require.Error(t, h.Check(context.Background(), "ks", map[string]string{"a": "b"}))
}

func TestCheckUnknownPlatform(t *testing.T) {
	t.Parallel()

	h := checker(newServer(t), time.Second)
	require.ErrorIs(t, h.Check(context.Background(), "wb", nil), ErrNoEndpoint)
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	h := NewHealthChecker(Config{})
	require.Equal(t, 10*time.Second, h.cfg.Timeout)
	require.Contains(t, h.cfg.Endpoints, "xhs")
	require.NotEmpty(t, h.cfg.LoginMarkers)
}
