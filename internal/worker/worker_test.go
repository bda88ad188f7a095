package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/hotlist-radar/internal/adapter"
	"github.com/JakeFAU/hotlist-radar/internal/radar"
	"github.com/JakeFAU/hotlist-radar/internal/storage/memory"
)

type fakeAdapter struct {
	platform string
	bag      *adapter.ConfigBag
	err      error
	panicMsg string

	mu       sync.Mutex
	seen     map[string]string
	keywords []string
	taskCtx  adapter.TaskContext
	calls    int
}

func newFakeAdapter(platform string) *fakeAdapter {
	return &fakeAdapter{
		platform: platform,
		bag: adapter.NewConfigBag(map[string]any{
			adapter.KeyPlatform:   "xhs",
			adapter.KeyLoginType:  "qrcode",
			adapter.KeyHeadless:   false,
			adapter.KeyMaxNotes:   200,
			"ENABLE_GET_COMMENTS": true,
			"lowercase_key":       "kept",
		}),
	}
}

func (a *fakeAdapter) Platform() string           { return a.platform }
func (a *fakeAdapter) Config() *adapter.ConfigBag { return a.bag }

func (a *fakeAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	a.calls++
	a.seen = map[string]string{}
	for _, k := range []string{
		adapter.KeyPlatform, adapter.KeyKeywords, adapter.KeyMaxNotes, adapter.KeySaveOption,
		adapter.KeyLoginType, adapter.KeyCookies, adapter.KeyHeadless, adapter.KeyCDPHeadless,
		adapter.KeyCrawlerType,
	} {
		a.seen[k] = a.bag.String(k)
	}
	a.keywords = a.bag.Strings(adapter.KeyKeywords)
	a.taskCtx, _ = adapter.TaskFrom(ctx)
	a.mu.Unlock()

	// Adapters sometimes leave extra keys behind.
	a.bag.Set("START_PAGE", 3)
	if a.panicMsg != "" {
		panic(a.panicMsg)
	}
	return a.err
}

type fakeAlerter struct {
	mu     sync.Mutex
	alerts []radar.Alert
}

func (f *fakeAlerter) Alert(_ context.Context, a radar.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
	return nil
}

func (f *fakeAlerter) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.alerts))
	for _, a := range f.alerts {
		out = append(out, a.Kind)
	}
	return out
}

type harness struct {
	adapter *fakeAdapter
	cookies *memory.CookieStore
	alerter *fakeAlerter
	worker  *Worker
}

func newHarness(t *testing.T, withCookie bool) *harness {
	t.Helper()
	h := &harness{
		adapter: newFakeAdapter("xhs"),
		cookies: memory.NewCookieStore(),
		alerter: &fakeAlerter{},
	}
	if withCookie {
		require.NoError(t, h.cookies.Save(context.Background(), radar.PlatformCookie{
			Platform: "xhs",
			Cookies:  map[string]string{"web_session": "abc", "a1": "xyz"},
			SavedAt:  1_700_000_000,
			Status:   radar.CookieActive,
		}))
	}
	h.worker = New(adapter.NewSet(h.adapter), h.cookies, h.alerter, Config{Headless: true}, zap.NewNop())
	return h
}

func testTask() radar.Task {
	return radar.Task{
		TaskID:         "task-1",
		CandidateID:    "cand-1",
		TopicTitle:     "台风登陆",
		SearchKeywords: []string{"台风", "登陆"},
		Platform:       "xhs",
		MaxNotes:       20,
		Status:         radar.TaskRunning,
	}
}

func TestExecute_SuccessOverridesAndRestores(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	before := h.adapter.bag.Fingerprint()

	res := h.worker.Execute(context.Background(), testTask())
	require.Equal(t, Success, res.Kind)
	require.NoError(t, res.Err)

	require.Equal(t, map[string]string{
		adapter.KeyPlatform:    "xhs",
		adapter.KeyKeywords:    "台风,登陆",
		adapter.KeyMaxNotes:    "20",
		adapter.KeySaveOption:  "db",
		adapter.KeyLoginType:   "cookie",
		adapter.KeyCookies:     "a1=xyz; web_session=abc",
		adapter.KeyHeadless:    "true",
		adapter.KeyCDPHeadless: "true",
		adapter.KeyCrawlerType: "search",
	}, h.adapter.seen)
	require.Equal(t, []string{"台风", "登陆"}, h.adapter.keywords)
	require.Equal(t, adapter.TaskContext{TopicID: "cand-1", CrawlingTaskID: "task-1"}, h.adapter.taskCtx)

	require.Equal(t, before, h.adapter.bag.Fingerprint())
	_, ok := h.adapter.bag.Get("START_PAGE")
	require.False(t, ok)
	require.Empty(t, h.alerter.kinds())
}

func TestExecute_RestoresOnFailureAndPanic(t *testing.T) {
	t.Parallel()

	cases := map[string]func(a *fakeAdapter){
		"error": func(a *fakeAdapter) { a.err = errors.New("network unreachable") },
		"panic": func(a *fakeAdapter) { a.panicMsg = "nil map" },
	}
	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, true)
			setup(h.adapter)
			before := h.adapter.bag.Fingerprint()

			res := h.worker.Execute(context.Background(), testTask())
			require.Equal(t, Failed, res.Kind)
			require.False(t, res.CookieExpired)
			require.Error(t, res.Err)
			require.Equal(t, before, h.adapter.bag.Fingerprint())

			stored, err := h.cookies.Get(context.Background(), "xhs")
			require.NoError(t, err)
			require.Equal(t, radar.CookieActive, stored.Status)
		})
	}
}

func TestExecute_AuthErrorExpiresCookie(t *testing.T) {
	t.Parallel()

	for _, msg := range []string{
		"Login required",
		"invalid COOKIE value",
		"unauthorized: auth token missing",
		"HTTP 403 from edge",
		"账号未登录",
	} {
		t.Run(msg, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, true)
			h.adapter.err = errors.New(msg)

			res := h.worker.Execute(context.Background(), testTask())
			require.Equal(t, Failed, res.Kind)
			require.True(t, res.CookieExpired)

			stored, err := h.cookies.Get(context.Background(), "xhs")
			require.NoError(t, err)
			require.Equal(t, radar.CookieExpired, stored.Status)
			require.Equal(t, []string{radar.AlertCookieExpired}, h.alerter.kinds())
		})
	}
}

func TestExecute_AuthMarkerBeyondScanWindowIgnored(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	h.adapter.err = errors.New(strings.Repeat("x", 200) + " login")

	res := h.worker.Execute(context.Background(), testTask())
	require.Equal(t, Failed, res.Kind)
	require.False(t, res.CookieExpired)
}

func TestExecute_BlockedWithoutUsableCookie(t *testing.T) {
	t.Parallel()

	h := newHarness(t, false)
	res := h.worker.Execute(context.Background(), testTask())
	require.Equal(t, Blocked, res.Kind)
	require.ErrorIs(t, res.Err, radar.ErrCookieMissing)
	require.Zero(t, h.adapter.calls)
	require.Equal(t, []string{radar.AlertCookieMissing}, h.alerter.kinds())

	h = newHarness(t, true)
	require.NoError(t, h.cookies.MarkExpired(context.Background(), "xhs"))
	res = h.worker.Execute(context.Background(), testTask())
	require.Equal(t, Blocked, res.Kind)
	require.Zero(t, h.adapter.calls)
}

func TestExecute_UnknownPlatformFails(t *testing.T) {
	t.Parallel()

	h := newHarness(t, true)
	require.NoError(t, h.cookies.Save(context.Background(), radar.PlatformCookie{
		Platform: "dy",
		Cookies:  map[string]string{"sid": "1"},
		Status:   radar.CookieActive,
	}))
	task := testTask()
	task.Platform = "dy"

	res := h.worker.Execute(context.Background(), task)
	require.Equal(t, Failed, res.Kind)
	require.ErrorContains(t, res.Err, "no adapter")
}

func TestLooksLikeAuthFailure(t *testing.T) {
	t.Parallel()

	require.True(t, looksLikeAuthFailure(errors.New("please LOGIN")))
	require.False(t, looksLikeAuthFailure(errors.New("timeout waiting for selector")))
	require.Equal(t, "ab", truncate("abc", 2))
	require.Equal(t, "未登", truncate("未登录", 2))
}
