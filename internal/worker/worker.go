// Package worker executes one deep-crawl task against a platform adapter.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/hotlist-radar/internal/adapter"
	"github.com/JakeFAU/hotlist-radar/internal/radar"
	"github.com/JakeFAU/hotlist-radar/internal/telemetry"
)

// Kind is the outcome class of a task execution.
type Kind int

// Result kinds.
const (
	Success Kind = iota
	Blocked
	Failed
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Blocked:
		return "blocked"
	default:
		return "failed"
	}
}

// Result reports how a task execution ended.
type Result struct {
	Kind          Kind
	CookieExpired bool
	Err           error
}

// authMarkers flag an adapter error as a login failure.
var authMarkers = []string{"login", "cookie", "auth", "403", "未登录"}

// authScanLimit bounds how much of an error message is inspected.
const authScanLimit = 200

// Config controls Worker behavior.
type Config struct {
	Headless bool
}

// Worker runs tasks through the adapter registered for their platform.
type Worker struct {
	adapters *adapter.Set
	cookies  radar.CookieStore
	alerter  radar.Alerter
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Worker.
func New(adapters *adapter.Set, cookies radar.CookieStore, alerter radar.Alerter, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		adapters: adapters,
		cookies:  cookies,
		alerter:  alerter,
		cfg:      cfg,
		logger:   logger.Named("worker"),
	}
}

// Execute runs one task. The caller must hold the platform lock; the
// adapter's configuration bag is restored before Execute returns.
func (w *Worker) Execute(ctx context.Context, task radar.Task) Result {
	ctx, span := telemetry.Tracer().Start(ctx, "worker.execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("task_id", task.TaskID),
		attribute.String("platform", task.Platform),
	)

	res := w.execute(ctx, task)
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Kind.String())
	}
	return res
}

func (w *Worker) execute(ctx context.Context, task radar.Task) Result {
	log := w.logger.With(zap.String("task_id", task.TaskID), zap.String("platform", task.Platform))

	cookie, err := w.cookies.Get(ctx, task.Platform)
	switch {
	case errors.Is(err, radar.ErrNotFound):
		return w.blocked(ctx, task, "no cookie stored")
	case err != nil:
		return Result{Kind: Failed, Err: fmt.Errorf("load cookie: %w", err)}
	case !cookie.Usable():
		return w.blocked(ctx, task, "cookie is "+string(cookie.Status))
	}

	ad, err := w.adapters.Get(task.Platform)
	if err != nil {
		return Result{Kind: Failed, Err: err}
	}

	bag := ad.Config()
	snap := bag.Snapshot()
	defer bag.Restore(snap)
	w.override(bag, task, cookie)

	taskCtx := adapter.WithTask(ctx, adapter.TaskContext{
		TopicID:        task.CandidateID,
		CrawlingTaskID: task.TaskID,
	})

	log.Info("starting adapter", zap.Strings("keywords", task.SearchKeywords), zap.Int("max_notes", task.MaxNotes))
	if err := start(taskCtx, ad); err != nil {
		if looksLikeAuthFailure(err) {
			log.Warn("adapter rejected cookie", zap.Error(err))
			w.expire(ctx, task.Platform, err)
			return Result{Kind: Failed, CookieExpired: true, Err: err}
		}
		log.Warn("adapter failed", zap.Error(err))
		return Result{Kind: Failed, Err: err}
	}
	log.Info("adapter finished")
	return Result{Kind: Success}
}

func (w *Worker) override(bag *adapter.ConfigBag, task radar.Task, cookie radar.PlatformCookie) {
	bag.Set(adapter.KeyPlatform, task.Platform)
	bag.Set(adapter.KeyKeywords, task.SearchKeywords)
	bag.Set(adapter.KeyMaxNotes, task.MaxNotes)
	bag.Set(adapter.KeySaveOption, "db")
	bag.Set(adapter.KeyLoginType, "cookie")
	bag.Set(adapter.KeyCookies, cookie.Header())
	bag.Set(adapter.KeyHeadless, w.cfg.Headless)
	bag.Set(adapter.KeyCDPHeadless, w.cfg.Headless)
	bag.Set(adapter.KeyCrawlerType, "search")
}

// start converts adapter panics into errors so the snapshot is still restored
// through the normal return path.
func start(ctx context.Context, ad adapter.Adapter) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("adapter panic: %v", r)
		}
	}()
	return ad.Start(ctx)
}

func (w *Worker) blocked(ctx context.Context, task radar.Task, reason string) Result {
	w.logger.Warn("task blocked", zap.String("task_id", task.TaskID), zap.String("platform", task.Platform), zap.String("reason", reason))
	w.alert(ctx, radar.Alert{
		Kind:     radar.AlertCookieMissing,
		Platform: task.Platform,
		Title:    "Deep crawl blocked: " + task.Platform,
		Content:  fmt.Sprintf("Task `%s` for **%s** cannot start: %s. Log in again from the console.", task.TaskID, task.TopicTitle, reason),
	})
	return Result{Kind: Blocked, Err: fmt.Errorf("%w: %s", radar.ErrCookieMissing, reason)}
}

func (w *Worker) expire(ctx context.Context, platform string, cause error) {
	if err := w.cookies.MarkExpired(ctx, platform); err != nil && !errors.Is(err, radar.ErrNotFound) {
		w.logger.Error("mark cookie expired failed", zap.String("platform", platform), zap.Error(err))
	}
	w.alert(ctx, radar.Alert{
		Kind:     radar.AlertCookieExpired,
		Platform: platform,
		Title:    "Cookie expired: " + platform,
		Content:  "The adapter reported `" + truncate(cause.Error(), authScanLimit) + "`.",
	})
}

func (w *Worker) alert(ctx context.Context, a radar.Alert) {
	if w.alerter == nil {
		return
	}
	if err := w.alerter.Alert(ctx, a); err != nil {
		w.logger.Warn("send alert failed", zap.String("kind", a.Kind), zap.Error(err))
	}
}

func looksLikeAuthFailure(err error) bool {
	msg := strings.ToLower(truncate(err.Error(), authScanLimit))
	for _, m := range authMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// String renders a Result for logs.
func (r Result) String() string {
	s := r.Kind.String()
	if r.CookieExpired {
		s += " (cookie expired)"
	}
	if r.Err != nil {
		s += ": " + r.Err.Error()
	}
	return s
}
