// Package dispatcher polls for pending deep-crawl tasks and runs them,
// at most one per platform at a time, behind a per-platform circuit breaker.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hotlist-radar/internal/cookie"
	"github.com/JakeFAU/hotlist-radar/internal/metrics"
	"github.com/JakeFAU/hotlist-radar/internal/radar"
	"github.com/JakeFAU/hotlist-radar/internal/worker"
)

// Executor runs one task. *worker.Worker satisfies it.
type Executor interface {
	Execute(ctx context.Context, task radar.Task) worker.Result
}

// HealthChecker probes whether a cookie bag is still logged in.
type HealthChecker interface {
	Check(ctx context.Context, platform string, cookies map[string]string) error
}

// Config tunes the poll loop, retries and circuit breaker.
type Config struct {
	PollInterval     time.Duration   `mapstructure:"poll_interval"`
	HealthEvery      int             `mapstructure:"health_every"`
	MaxAttempts      int             `mapstructure:"max_attempts"`
	Backoff          []time.Duration `mapstructure:"backoff"`
	CircuitThreshold int             `mapstructure:"circuit_threshold"`
	CircuitReset     time.Duration   `mapstructure:"circuit_reset"`
	TaskTimeout      time.Duration   `mapstructure:"task_timeout"`
	Platforms        []string        `mapstructure:"platforms"`
}

// DefaultConfig returns the stock dispatcher settings.
func DefaultConfig() Config {
	return Config{
		PollInterval:     10 * time.Second,
		HealthEvery:      30,
		MaxAttempts:      3,
		Backoff:          []time.Duration{120 * time.Second, 240 * time.Second, 480 * time.Second},
		CircuitThreshold: 3,
		CircuitReset:     1800 * time.Second,
		TaskTimeout:      5 * time.Minute,
		Platforms:        []string{"xhs", "dy", "ks", "bili", "wb", "tieba", "zhihu"},
	}
}

// Validate checks the settings.
func (c Config) Validate() error {
	switch {
	case c.PollInterval <= 0:
		return fmt.Errorf("dispatcher.poll_interval must be > 0")
	case c.MaxAttempts <= 0:
		return fmt.Errorf("dispatcher.max_attempts must be > 0")
	case len(c.Backoff) == 0:
		return fmt.Errorf("dispatcher.backoff must not be empty")
	case c.CircuitThreshold <= 0:
		return fmt.Errorf("dispatcher.circuit_threshold must be > 0")
	case c.CircuitReset <= 0:
		return fmt.Errorf("dispatcher.circuit_reset must be > 0")
	case c.TaskTimeout <= 0:
		return fmt.Errorf("dispatcher.task_timeout must be > 0")
	}
	return nil
}

// Deps bundles the collaborators of a Dispatcher. Queue, Health and Alerter
// may be nil.
type Deps struct {
	Tasks   radar.TaskStore
	Queue   radar.TaskQueue
	Cookies radar.CookieStore
	Worker  Executor
	Health  HealthChecker
	Alerter radar.Alerter
	Clock   radar.Clock
}

type platformState struct {
	// lock is held for the whole execution of a task on the platform.
	lock sync.Mutex

	// guarded by Dispatcher.mu
	failures  int
	openUntil int64
}

// candidate is a task picked for this round, with its queue entry when it
// came from the queue.
type candidate struct {
	task  radar.Task
	entry *radar.QueueEntry
}

// Dispatcher is the deep-crawl poll loop.
type Dispatcher struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger

	mu        sync.Mutex
	platforms map[string]*platformState
	inflight  map[string]struct{}
	iteration int

	wg       sync.WaitGroup
	stopped  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a Dispatcher.
func New(deps Deps, cfg Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		deps:      deps,
		cfg:       cfg,
		logger:    logger.Named("dispatcher"),
		platforms: make(map[string]*platformState),
		inflight:  make(map[string]struct{}),
		stopCh:    make(chan struct{}),
	}
	for _, p := range cfg.Platforms {
		d.platforms[p] = &platformState{}
	}
	return d
}

// Run polls until ctx is done or Stop is called, then waits for in-flight
// tasks to finish.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	d.logger.Info("dispatcher started", zap.Duration("poll_interval", d.cfg.PollInterval))
	for !d.stopped.Load() {
		if err := d.RunOnce(ctx); err != nil {
			d.logger.Error("dispatch round failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			d.Stop()
		case <-d.stopCh:
		case <-ticker.C:
		}
	}
	d.wg.Wait()
	d.logger.Info("dispatcher stopped")
}

// Stop asks Run to exit after the current round.
func (d *Dispatcher) Stop() {
	d.stopped.Store(true)
	d.stopOnce.Do(func() { close(d.stopCh) })
}

// Wait blocks until every spawned task has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// RunOnce performs a single poll round. Spawned tasks keep running after it
// returns.
func (d *Dispatcher) RunOnce(ctx context.Context) error {
	d.mu.Lock()
	d.iteration++
	iteration := d.iteration
	d.mu.Unlock()

	if d.cfg.HealthEvery > 0 && iteration%d.cfg.HealthEvery == 0 {
		d.checkCookies(ctx)
	}

	picked, err := d.fetch(ctx)
	if err != nil {
		return err
	}
	for _, c := range picked {
		d.dispatch(ctx, c)
	}
	return nil
}

// CircuitOpenUntil reports the epoch second a platform's circuit reopens, or
// zero when it is closed.
func (d *Dispatcher) CircuitOpenUntil(platform string) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state(platform).openUntil
}

func (d *Dispatcher) now() int64 {
	return d.deps.Clock.Now().Unix()
}

// state must be called with d.mu held.
func (d *Dispatcher) state(platform string) *platformState {
	st, ok := d.platforms[platform]
	if !ok {
		st = &platformState{}
		d.platforms[platform] = st
	}
	return st
}

func (d *Dispatcher) fetch(ctx context.Context) ([]candidate, error) {
	now := d.now()
	seen := map[string]struct{}{}
	var out []candidate

	if d.deps.Queue != nil {
		limit := 2 * len(d.cfg.Platforms)
		if limit == 0 {
			limit = 2
		}
		for i := 0; i < limit; i++ {
			entry, ok, err := d.deps.Queue.Pop(ctx)
			if err != nil {
				d.logger.Warn("queue pop failed", zap.Error(err))
				break
			}
			if !ok {
				break
			}
			task, keep := d.reconcile(ctx, entry, now)
			if !keep {
				continue
			}
			if _, dup := seen[task.TaskID]; dup {
				continue
			}
			seen[task.TaskID] = struct{}{}
			e := entry
			out = append(out, candidate{task: task, entry: &e})
		}
	}

	pending, err := d.deps.Tasks.ListPending(ctx, now)
	if err != nil {
		// Queue entries already popped go back before the round is abandoned.
		for _, c := range out {
			d.pushBack(ctx, c)
		}
		return nil, fmt.Errorf("list pending tasks: %w", err)
	}
	for _, task := range pending {
		if _, dup := seen[task.TaskID]; dup {
			continue
		}
		seen[task.TaskID] = struct{}{}
		out = append(out, candidate{task: task})
	}
	return out, nil
}

// reconcile checks a queue entry against the task store, which is
// authoritative.
func (d *Dispatcher) reconcile(ctx context.Context, entry radar.QueueEntry, now int64) (radar.Task, bool) {
	task, err := d.deps.Tasks.Get(ctx, entry.Task.TaskID)
	switch {
	case errors.Is(err, radar.ErrNotFound):
		d.logger.Warn("dropping queue entry without task", zap.String("task_id", entry.Task.TaskID))
		return radar.Task{}, false
	case err != nil:
		d.logger.Warn("load queued task failed", zap.String("task_id", entry.Task.TaskID), zap.Error(err))
		d.pushBack(ctx, candidate{task: entry.Task, entry: &entry})
		return radar.Task{}, false
	case task.Status != radar.TaskPending:
		d.logger.Debug("dropping stale queue entry",
			zap.String("task_id", task.TaskID),
			zap.String("status", string(task.Status)),
		)
		return radar.Task{}, false
	case task.NextRetryAt != nil && *task.NextRetryAt > now:
		return radar.Task{}, false
	}
	return task, true
}

func (d *Dispatcher) dispatch(ctx context.Context, c candidate) {
	task := c.task
	log := d.logger.With(zap.String("task_id", task.TaskID), zap.String("platform", task.Platform))

	d.mu.Lock()
	if _, busy := d.inflight[task.TaskID]; busy {
		d.mu.Unlock()
		return
	}
	if d.circuitOpenLocked(task.Platform, d.now()) {
		d.mu.Unlock()
		log.Debug("circuit open, deferring task")
		d.pushBack(ctx, c)
		return
	}
	st := d.state(task.Platform)
	d.mu.Unlock()

	locked, open := d.tryLockPlatform(task.Platform, st)
	if open {
		log.Debug("circuit opened before lock, deferring task")
		d.pushBack(ctx, c)
		return
	}
	if locked {
		d.spawn(ctx, c, st, true)
		return
	}
	if task.Origin == radar.OriginUser {
		log.Debug("platform busy, user task waiting for lock")
		d.spawn(ctx, c, st, false)
		return
	}
	log.Debug("platform busy, deferring system task")
	d.pushBack(ctx, c)
}

// tryLockPlatform takes the platform lock without blocking. A task finishing
// on the platform may open the circuit just before releasing the lock, so the
// circuit is checked again once the lock is held; when it is open the lock is
// released and open is reported.
func (d *Dispatcher) tryLockPlatform(platform string, st *platformState) (locked, open bool) {
	if !st.lock.TryLock() {
		return false, false
	}
	d.mu.Lock()
	open = d.circuitOpenLocked(platform, d.now())
	d.mu.Unlock()
	if open {
		st.lock.Unlock()
		return false, true
	}
	return true, false
}

func (d *Dispatcher) spawn(ctx context.Context, c candidate, st *platformState, locked bool) {
	d.mu.Lock()
	d.inflight[c.task.TaskID] = struct{}{}
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			d.mu.Lock()
			delete(d.inflight, c.task.TaskID)
			d.mu.Unlock()
		}()

		if !locked {
			st.lock.Lock()
		}
		defer st.lock.Unlock()

		task := c.task
		if !locked {
			// The world may have moved on while waiting for the lock.
			fresh, ok := d.recheck(ctx, c)
			if !ok {
				return
			}
			task = fresh
		}
		d.execute(ctx, task)
	}()
}

func (d *Dispatcher) recheck(ctx context.Context, c candidate) (radar.Task, bool) {
	d.mu.Lock()
	open := d.circuitOpenLocked(c.task.Platform, d.now())
	d.mu.Unlock()
	if open {
		d.pushBack(ctx, c)
		return radar.Task{}, false
	}
	task, err := d.deps.Tasks.Get(ctx, c.task.TaskID)
	if err != nil {
		d.logger.Warn("reload waiting task failed", zap.String("task_id", c.task.TaskID), zap.Error(err))
		return radar.Task{}, false
	}
	if task.Status != radar.TaskPending {
		return radar.Task{}, false
	}
	return task, true
}

// circuitOpenLocked must be called with d.mu held. An expired circuit is
// closed on the spot.
func (d *Dispatcher) circuitOpenLocked(platform string, now int64) bool {
	st := d.state(platform)
	if st.openUntil == 0 {
		return false
	}
	if now < st.openUntil {
		return true
	}
	st.openUntil = 0
	st.failures = 0
	metrics.SetCircuitOpen(platform, false)
	d.logger.Info("circuit closed", zap.String("platform", platform))
	return false
}

func (d *Dispatcher) execute(ctx context.Context, task radar.Task) {
	// In-flight tasks outlive shutdown of the poll loop.
	base := context.WithoutCancel(ctx)
	log := d.logger.With(zap.String("task_id", task.TaskID), zap.String("platform", task.Platform))

	task.Status = radar.TaskRunning
	task.UpdatedAt = d.now()
	if err := d.persist(base, task, ""); err != nil {
		log.Error("mark task running failed", zap.Error(err))
		return
	}

	metrics.IncInflight()
	runCtx, cancel := context.WithTimeout(base, d.cfg.TaskTimeout)
	start := time.Now()
	res := d.deps.Worker.Execute(runCtx, task)
	timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded)
	cancel()
	metrics.DecInflight()

	if timedOut && res.Kind == worker.Success {
		res = worker.Result{Kind: worker.Failed, Err: context.DeadlineExceeded}
	}
	if timedOut && res.Kind == worker.Failed {
		res.Err = fmt.Errorf("timeout after %s: %w", d.cfg.TaskTimeout, res.Err)
	}

	log.Info("task finished", zap.Stringer("result", res), zap.Duration("elapsed", time.Since(start)))
	d.finish(base, task, res)
}

func (d *Dispatcher) finish(ctx context.Context, task radar.Task, res worker.Result) {
	now := d.now()
	task.UpdatedAt = now
	task.NextRetryAt = nil
	errText := ""
	if res.Err != nil {
		errText = res.Err.Error()
	}

	switch res.Kind {
	case worker.Success:
		task.Status = radar.TaskCompleted
		task.LastError = ""
		d.mu.Lock()
		d.state(task.Platform).failures = 0
		d.mu.Unlock()
	case worker.Blocked:
		task.Status = radar.TaskPending
		task.LastError = errText
	default:
		task.Attempts++
		task.LastError = errText
		if task.Attempts >= d.cfg.MaxAttempts {
			task.Status = radar.TaskFailed
		} else {
			task.Status = radar.TaskPending
			retryAt := now + int64(d.backoff(task.Attempts).Seconds())
			task.NextRetryAt = &retryAt
		}
		d.recordFailure(ctx, task.Platform, now)
	}

	metrics.ObserveTask(task.Platform, res.Kind.String())
	if err := d.persist(ctx, task, errText); err != nil {
		d.logger.Error("record task result failed", zap.String("task_id", task.TaskID), zap.Error(err))
	}
}

func (d *Dispatcher) backoff(attempts int) time.Duration {
	i := attempts - 1
	if i < 0 {
		i = 0
	}
	if i >= len(d.cfg.Backoff) {
		i = len(d.cfg.Backoff) - 1
	}
	return d.cfg.Backoff[i]
}

func (d *Dispatcher) recordFailure(ctx context.Context, platform string, now int64) {
	d.mu.Lock()
	st := d.state(platform)
	st.failures++
	opened := false
	if st.failures >= d.cfg.CircuitThreshold && st.openUntil == 0 {
		st.openUntil = now + int64(d.cfg.CircuitReset.Seconds())
		opened = true
	}
	failures, until := st.failures, st.openUntil
	d.mu.Unlock()

	if !opened {
		return
	}
	metrics.SetCircuitOpen(platform, true)
	d.logger.Warn("circuit opened",
		zap.String("platform", platform),
		zap.Int("failures", failures),
		zap.Int64("open_until", until),
	)
	d.alert(ctx, radar.Alert{
		Kind:     radar.AlertCircuitOpen,
		Platform: platform,
		Title:    "Deep crawl paused: " + platform,
		Content: fmt.Sprintf("**%s** failed %d times in a row. Dispatch resumes after %s.",
			platform, failures, time.Unix(until, 0).UTC().Format(time.RFC3339)),
	})
}

func (d *Dispatcher) persist(ctx context.Context, task radar.Task, errText string) error {
	if err := d.deps.Tasks.Save(ctx, task); err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	entry := radar.TaskStatusEntry{
		TaskID:    task.TaskID,
		Status:    task.Status,
		Attempts:  task.Attempts,
		Error:     errText,
		UpdatedAt: task.UpdatedAt,
	}
	if err := d.deps.Tasks.AppendStatus(ctx, entry); err != nil {
		return fmt.Errorf("append task status: %w", err)
	}
	return nil
}

func (d *Dispatcher) pushBack(ctx context.Context, c candidate) {
	if c.entry == nil || d.deps.Queue == nil {
		return
	}
	if err := d.deps.Queue.PushBack(ctx, *c.entry); err != nil {
		d.logger.Warn("queue push back failed", zap.String("task_id", c.task.TaskID), zap.Error(err))
	}
}

func (d *Dispatcher) checkCookies(ctx context.Context) {
	if d.deps.Health == nil || d.deps.Cookies == nil {
		return
	}
	cookies, err := d.deps.Cookies.List(ctx)
	if err != nil {
		d.logger.Warn("list cookies failed", zap.Error(err))
		return
	}
	for _, c := range cookies {
		if !c.Usable() {
			continue
		}
		err := d.deps.Health.Check(ctx, c.Platform, c.Cookies)
		if err == nil || errors.Is(err, cookie.ErrNoEndpoint) {
			continue
		}
		d.logger.Warn("cookie health check failed", zap.String("platform", c.Platform), zap.Error(err))
		if err := d.deps.Cookies.MarkExpired(ctx, c.Platform); err != nil {
			d.logger.Error("mark cookie expired failed", zap.String("platform", c.Platform), zap.Error(err))
		}
		d.alert(ctx, radar.Alert{
			Kind:     radar.AlertCookieExpired,
			Platform: c.Platform,
			Title:    "Cookie expired: " + c.Platform,
			Content:  "Health probe failed: `" + err.Error() + "`. Log in again from the console.",
		})
	}
}

func (d *Dispatcher) alert(ctx context.Context, a radar.Alert) {
	if d.deps.Alerter == nil {
		return
	}
	if err := d.deps.Alerter.Alert(ctx, a); err != nil {
		d.logger.Warn("send alert failed", zap.String("kind", a.Kind), zap.Error(err))
	}
}
