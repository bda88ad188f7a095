// Package candidate folds signals into candidate topics and drives their
// lifecycle: clustering, scoring, decay, state transitions and crawl-task
// emission.
package candidate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/JakeFAU/hotlist-radar/internal/hash/md5"
	"github.com/JakeFAU/hotlist-radar/internal/metrics"
	"github.com/JakeFAU/hotlist-radar/internal/radar"
	"github.com/JakeFAU/hotlist-radar/internal/sources"
	"github.com/JakeFAU/hotlist-radar/internal/telemetry"
	"github.com/JakeFAU/hotlist-radar/internal/tokenize"
)

// Transition is one lifecycle change observed in a cycle.
type Transition struct {
	CandidateID string                `json:"candidate_id"`
	From        radar.CandidateStatus `json:"from"`
	To          radar.CandidateStatus `json:"to"`
	Reason      string                `json:"reason"`
}

// CycleReport summarises one cycle.
type CycleReport struct {
	SignalsConsumed int          `json:"signals_consumed"`
	Created         int          `json:"created"`
	Updated         int          `json:"updated"`
	Decayed         int          `json:"decayed"`
	Transitions     []Transition `json:"transitions"`
	TasksEmitted    []radar.Task `json:"tasks_emitted"`
}

// Manager runs candidate cycles.
type Manager struct {
	signals    radar.SignalStore
	candidates radar.CandidateStore
	tasks      radar.TaskStore
	queue      radar.TaskQueue
	tokenizer  radar.Tokenizer
	weights    sources.Weights
	ids        radar.IDGenerator
	clock      radar.Clock
	cfg        Config
	logger     *zap.Logger
	before     []func(ctx context.Context) error
}

// Deps groups the collaborators of a Manager.
type Deps struct {
	Signals    radar.SignalStore
	Candidates radar.CandidateStore
	Tasks      radar.TaskStore
	Queue      radar.TaskQueue
	Tokenizer  radar.Tokenizer
	Weights    sources.Weights
	IDs        radar.IDGenerator
	Clock      radar.Clock
}

// NewManager builds a Manager.
func NewManager(deps Deps, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Weights == nil {
		deps.Weights = sources.Weights{}
	}
	return &Manager{
		signals:    deps.Signals,
		candidates: deps.Candidates,
		tasks:      deps.Tasks,
		queue:      deps.Queue,
		tokenizer:  deps.Tokenizer,
		weights:    deps.Weights,
		ids:        deps.IDs,
		clock:      deps.Clock,
		cfg:        cfg,
		logger:     logger.Named("candidate"),
	}
}

// BeforeCycle registers a step Run executes ahead of every cycle. A failing
// step is logged and the cycle still runs.
func (m *Manager) BeforeCycle(fn func(ctx context.Context) error) {
	m.before = append(m.before, fn)
}

// Run executes a cycle every interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		for _, fn := range m.before {
			if err := fn(ctx); err != nil {
				m.logger.Warn("pre-cycle step failed", zap.Error(err))
			}
		}
		if _, err := m.RunCycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Error("candidate cycle failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type entry struct {
	cand     radar.Candidate
	keywords map[string]struct{}
	touched  bool
	created  bool
}

type cycle struct {
	m       *Manager
	now     int64
	entries []*entry
	byID    map[string]*entry
	report  CycleReport
}

// RunCycle loads every signal and active candidate, folds the signals in,
// decays idle candidates, applies transitions, emits crawl tasks, persists the
// candidates and finally deletes the consumed signals.
func (m *Manager) RunCycle(ctx context.Context) (CycleReport, error) {
	start := time.Now()
	ctx, span := telemetry.Tracer().Start(ctx, "candidate.cycle")
	defer span.End()

	c := &cycle{m: m, now: m.clock.Now().Unix(), byID: map[string]*entry{}}

	signals, err := m.signals.List(ctx)
	if err != nil {
		return c.report, fmt.Errorf("load signals: %w", err)
	}
	active, err := m.candidates.ListByStatus(ctx, radar.ActiveStatuses)
	if err != nil {
		return c.report, fmt.Errorf("load active candidates: %w", err)
	}
	for _, cand := range active {
		c.add(&entry{cand: cand, keywords: m.keywordsOf(cand)})
	}

	var cross, layer1 []radar.Signal
	for _, s := range signals {
		if s.Layer == radar.LayerCross {
			cross = append(cross, s)
		} else {
			layer1 = append(layer1, s)
		}
	}

	for _, s := range cross {
		kw := tokenize.Set(m.tokenizer.Tokens(s.Title))
		target := c.match(kw)
		if target == nil {
			if target, err = c.create(ctx, s.Title); err != nil {
				return c.report, err
			}
		}
		c.merge(target, s)
	}

	var unmatched []radar.Signal
	for _, s := range layer1 {
		kw := tokenize.Set(m.tokenizer.Tokens(s.Title))
		if target := c.match(kw); target != nil {
			c.merge(target, s)
			continue
		}
		unmatched = append(unmatched, s)
	}
	for _, group := range m.cluster(unmatched) {
		if len(group) == 1 && !m.admit(group[0]) {
			continue
		}
		target, err := c.create(ctx, group[0].Title)
		if err != nil {
			return c.report, err
		}
		for _, s := range group {
			c.merge(target, s)
		}
	}

	c.decay()
	transitions := c.transition()
	c.emit(ctx, transitions)

	batch := make([]radar.Candidate, 0, len(c.entries))
	for _, e := range c.entries {
		e.cand.PlatformCount = len(e.cand.Platforms)
		batch = append(batch, e.cand)
		if e.touched && !e.created {
			c.report.Updated++
		}
	}
	if len(batch) > 0 {
		if err := m.candidates.BulkUpsert(ctx, batch); err != nil {
			return c.report, fmt.Errorf("persist candidates: %w", err)
		}
	}

	if len(signals) > 0 {
		ids := make([]string, len(signals))
		for i, s := range signals {
			ids[i] = s.SignalID
		}
		if err := m.signals.Delete(ctx, ids); err != nil {
			return c.report, fmt.Errorf("delete consumed signals: %w", err)
		}
	}
	c.report.SignalsConsumed = len(signals)

	span.SetAttributes(
		attribute.Int("signals", len(signals)),
		attribute.Int("candidates", len(c.entries)),
		attribute.Int("transitions", len(c.report.Transitions)),
	)
	metrics.ObserveCycle(time.Since(start))
	m.logger.Info("candidate cycle complete",
		zap.Int("signals", c.report.SignalsConsumed),
		zap.Int("created", c.report.Created),
		zap.Int("updated", c.report.Updated),
		zap.Int("decayed", c.report.Decayed),
		zap.Int("transitions", len(c.report.Transitions)),
		zap.Int("tasks", len(c.report.TasksEmitted)),
	)
	return c.report, nil
}

// ID derives the candidate id from a canonical title.
func ID(canonical string) string {
	return md5.Short(canonical, 16)
}

func (m *Manager) keywordsOf(cand radar.Candidate) map[string]struct{} {
	kw := tokenize.Set(m.tokenizer.Tokens(cand.CanonicalTitle))
	for _, t := range cand.SourceTitles {
		for _, tok := range m.tokenizer.Tokens(t) {
			kw[tok] = struct{}{}
		}
	}
	return kw
}

func (c *cycle) add(e *entry) {
	c.entries = append(c.entries, e)
	c.byID[e.cand.CandidateID] = e
}

// match returns the working candidate with the highest overlap at or above the threshold.
func (c *cycle) match(kw map[string]struct{}) *entry {
	var best *entry
	bestScore := 0.0
	for _, e := range c.entries {
		score := tokenize.Overlap(kw, e.keywords)
		if score >= c.m.cfg.OverlapMin && score > bestScore {
			best, bestScore = e, score
		}
	}
	return best
}

func (c *cycle) create(ctx context.Context, title string) (*entry, error) {
	id := ID(title)
	if e, ok := c.byID[id]; ok {
		return e, nil
	}
	existing, err := c.m.candidates.Get(ctx, id)
	switch {
	case err == nil && !existing.Status.Terminal():
		e := &entry{cand: existing, keywords: c.m.keywordsOf(existing)}
		c.add(e)
		return e, nil
	case err == nil:
		// Terminal candidates never reopen; the revived topic gets a fresh id.
		id = md5.Short(title+"|"+strconv.FormatInt(c.now, 10), 16)
		if e, ok := c.byID[id]; ok {
			return e, nil
		}
	case !errors.Is(err, radar.ErrNotFound):
		return nil, fmt.Errorf("load candidate %s: %w", id, err)
	}
	e := &entry{
		cand: radar.Candidate{
			CandidateID:    id,
			CanonicalTitle: title,
			Status:         radar.StatusEmerging,
			FirstSeenAt:    c.now,
			UpdatedAt:      c.now,
			StatusHistory:  []radar.StatusChange{{TS: c.now, Status: radar.StatusEmerging, Reason: "created"}},
		},
		keywords: map[string]struct{}{},
		created:  true,
	}
	c.add(e)
	c.report.Created++
	return e, nil
}

func (c *cycle) merge(e *entry, s radar.Signal) {
	cand := &e.cand
	titles := []string{s.Title}
	platforms := []string{s.Platform}
	if s.Layer == radar.LayerCross {
		platforms = s.Platforms
		if s.CrossPlatform != nil {
			for _, plat := range sortedKeys(s.CrossPlatform.PlatformItems) {
				titles = append(titles, s.CrossPlatform.PlatformItems[plat].Title)
			}
		}
	}
	for _, t := range titles {
		if t != "" && !contains(cand.SourceTitles, t) {
			cand.SourceTitles = append(cand.SourceTitles, t)
		}
		for _, tok := range c.m.tokenizer.Tokens(t) {
			e.keywords[tok] = struct{}{}
		}
	}
	for _, p := range platforms {
		if p != "" && !contains(cand.Platforms, p) {
			cand.Platforms = append(cand.Platforms, p)
		}
	}

	pos, hot := c.m.contribution(s)
	if last, ok := cand.LatestSnapshot(); ok && last.TS == c.now {
		cand.Snapshots[len(cand.Snapshots)-1].ScorePos += pos
		cand.Snapshots[len(cand.Snapshots)-1].SumHot += hot
	} else {
		cand.Snapshots = append(cand.Snapshots, radar.Snapshot{TS: c.now, ScorePos: pos, SumHot: hot})
	}
	cand.UpdatedAt = c.now
	e.touched = true
}

// contribution returns the signal's (score_pos, sum_hot) contribution.
func (m *Manager) contribution(s radar.Signal) (float64, float64) {
	if s.Layer == radar.LayerCross {
		if s.CrossPlatform == nil {
			return 0, 0
		}
		var pos, hot float64
		for plat, it := range s.CrossPlatform.PlatformItems {
			p, ok := currentPosition(it.Position, it.PositionHistory)
			if ok {
				pos += positionScore(p, m.weights.Weight(plat))
			}
			if h, ok := currentHot(it.HotValue, it.HotValueHistory); ok {
				hot += h
			}
		}
		return pos, hot
	}

	var posHint *int
	var hotHint *int64
	switch {
	case s.NewEntry != nil:
		posHint, hotHint = s.NewEntry.Position, s.NewEntry.HotValue
	case s.PositionJump != nil:
		posHint = radar.IntPtr(s.PositionJump.CurrentPosition)
	case s.Velocity != nil:
		hotHint = radar.Int64Ptr(s.Velocity.CurrentValue)
	}
	var pos, hot float64
	if p, ok := latestFirst(s.PositionHistory, posHint); ok {
		pos = positionScore(p, m.weights.Weight(s.Platform))
	}
	if h, ok := latestHotFirst(s.HotValueHistory, hotHint); ok {
		hot = h
	}
	return pos, hot
}

func positionScore(position int, weight float64) float64 {
	if position <= 0 {
		return 0
	}
	return float64(int(10000 / float64(position) * weight))
}

func currentPosition(p *int, history []radar.HistoryPoint) (int, bool) {
	if p != nil {
		return *p, true
	}
	return latestFirst(history, nil)
}

func currentHot(h *int64, history []radar.HistoryPoint) (float64, bool) {
	if h != nil {
		return float64(*h), true
	}
	return latestHotFirst(history, nil)
}

func latestFirst(history []radar.HistoryPoint, hint *int) (int, bool) {
	if n := len(history); n > 0 {
		if f, ok := history[n-1].Float(); ok {
			return int(f), true
		}
	}
	if hint != nil {
		return *hint, true
	}
	return 0, false
}

func latestHotFirst(history []radar.HistoryPoint, hint *int64) (float64, bool) {
	if n := len(history); n > 0 {
		if f, ok := history[n-1].Float(); ok {
			return f, true
		}
	}
	if hint != nil {
		return float64(*hint), true
	}
	return 0, false
}

// cluster groups unmatched layer-1 signals greedily by keyword overlap.
func (m *Manager) cluster(signals []radar.Signal) [][]radar.Signal {
	type group struct {
		signals  []radar.Signal
		keywords map[string]struct{}
	}
	var groups []*group
	for _, s := range signals {
		kw := tokenize.Set(m.tokenizer.Tokens(s.Title))
		var best *group
		bestScore := 0.0
		for _, g := range groups {
			score := tokenize.Overlap(kw, g.keywords)
			if score >= m.cfg.OverlapMin && score > bestScore {
				best, bestScore = g, score
			}
		}
		if best == nil {
			groups = append(groups, &group{signals: []radar.Signal{s}, keywords: kw})
			continue
		}
		best.signals = append(best.signals, s)
		for k := range kw {
			best.keywords[k] = struct{}{}
		}
	}
	out := make([][]radar.Signal, len(groups))
	for i, g := range groups {
		out[i] = g.signals
	}
	return out
}

// admit decides whether a lone layer-1 signal may found a candidate.
func (m *Manager) admit(s radar.Signal) bool {
	switch s.Type {
	case radar.SignalVelocity, radar.SignalPositionJump:
		return true
	case radar.SignalNewEntry:
		var hint *int
		if s.NewEntry != nil {
			hint = s.NewEntry.Position
		}
		pos, ok := latestFirst(s.PositionHistory, hint)
		return ok && pos > 0 && pos <= m.cfg.AdmitMaxPos
	}
	return false
}

func (c *cycle) decay() {
	for _, e := range c.entries {
		if e.touched || e.created {
			continue
		}
		last, ok := e.cand.LatestSnapshot()
		if !ok || last.TS == c.now {
			continue
		}
		e.cand.Snapshots = append(e.cand.Snapshots, radar.Snapshot{
			TS:       c.now,
			ScorePos: last.ScorePos * c.m.cfg.Decay,
			SumHot:   last.SumHot * c.m.cfg.Decay,
		})
		e.cand.UpdatedAt = c.now
		c.report.Decayed++
	}
}

func (c *cycle) transition() []Transition {
	var out []Transition
	for _, e := range c.entries {
		to, reason, ok := c.m.next(e.cand)
		if !ok {
			continue
		}
		t := Transition{CandidateID: e.cand.CandidateID, From: e.cand.Status, To: to, Reason: reason}
		e.cand.Status = to
		e.cand.UpdatedAt = c.now
		e.cand.StatusHistory = append(e.cand.StatusHistory, radar.StatusChange{TS: c.now, Status: to, Reason: reason})
		out = append(out, t)
		metrics.ObserveTransition(string(to))
		c.m.logger.Info("candidate transition",
			zap.String("candidate_id", t.CandidateID),
			zap.String("from", string(t.From)),
			zap.String("to", string(t.To)),
			zap.String("reason", reason),
		)
	}
	c.report.Transitions = append(c.report.Transitions, out...)
	return out
}

// next evaluates the ordered transition rules; the first matching guard wins.
func (m *Manager) next(cand radar.Candidate) (radar.CandidateStatus, string, bool) {
	if cand.Status.Terminal() {
		return "", "", false
	}
	last, ok := cand.LatestSnapshot()
	if !ok {
		return "", "", false
	}
	score := last.ScorePos
	switch {
	case score < m.cfg.FadedBelow:
		return radar.StatusFaded, fmt.Sprintf("score_pos %.0f below %.0f", score, m.cfg.FadedBelow), true
	case cand.Status == radar.StatusTracking && score < m.cfg.ClosedBelow:
		return radar.StatusClosed, fmt.Sprintf("score_pos %.0f below %.0f", score, m.cfg.ClosedBelow), true
	case cand.Status != radar.StatusTracking && declining(cand.Snapshots, m.cfg.DeclineWindow):
		return radar.StatusTracking, fmt.Sprintf("score_pos declined over %d snapshots", m.cfg.DeclineWindow), true
	case cand.Status == radar.StatusConfirmed && score >= m.cfg.ExplodedAt:
		return radar.StatusExploded, fmt.Sprintf("score_pos %.0f reached %.0f", score, m.cfg.ExplodedAt), true
	case cand.Status == radar.StatusRising && score >= m.cfg.ConfirmedAt:
		return radar.StatusConfirmed, fmt.Sprintf("score_pos %.0f reached %.0f", score, m.cfg.ConfirmedAt), true
	case cand.Status == radar.StatusEmerging && score >= m.cfg.RisingAt:
		return radar.StatusRising, fmt.Sprintf("score_pos %.0f reached %.0f", score, m.cfg.RisingAt), true
	}
	return "", "", false
}

func declining(snaps []radar.Snapshot, window int) bool {
	if len(snaps) < window {
		return false
	}
	tail := snaps[len(snaps)-window:]
	for i := 1; i < len(tail); i++ {
		if tail[i].ScorePos >= tail[i-1].ScorePos {
			return false
		}
	}
	return true
}

func (c *cycle) emit(ctx context.Context, transitions []Transition) {
	for _, t := range transitions {
		scale, ok := c.m.cfg.CrawlScale[string(t.To)]
		if !ok {
			continue
		}
		e := c.byID[t.CandidateID]
		tasks, err := c.m.emitTasks(ctx, e.cand, scale, c.now)
		c.report.TasksEmitted = append(c.report.TasksEmitted, tasks...)
		if err != nil {
			c.m.logger.Error("crawl task emission failed",
				zap.String("candidate_id", t.CandidateID),
				zap.Error(err),
			)
		}
	}
}

// DeepPlatforms maps a candidate's surface platforms to distinct deep codes, capped at limit.
func (m *Manager) DeepPlatforms(platforms []string, limit int) []string {
	var out []string
	for _, p := range platforms {
		code, ok := m.cfg.DeepPlatforms[sources.NormalizePlatform(p)]
		if !ok {
			code, ok = m.cfg.DeepPlatforms[p]
		}
		if !ok || contains(out, code) {
			continue
		}
		out = append(out, code)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func (m *Manager) emitTasks(ctx context.Context, cand radar.Candidate, scale Scale, now int64) ([]radar.Task, error) {
	var emitted []radar.Task
	keywords := searchKeywords(cand)
	for _, code := range m.DeepPlatforms(cand.Platforms, scale.MaxPlatforms) {
		busy, err := m.tasks.HasActive(ctx, cand.CandidateID, code)
		if err != nil {
			return emitted, fmt.Errorf("check active task: %w", err)
		}
		if busy {
			continue
		}
		id, err := m.ids.NewID()
		if err != nil {
			return emitted, err
		}
		task := radar.Task{
			TaskID:         id,
			CandidateID:    cand.CandidateID,
			TopicTitle:     cand.CanonicalTitle,
			SearchKeywords: keywords,
			Platform:       code,
			MaxNotes:       scale.MaxNotes,
			Priority:       scale.Priority,
			Origin:         radar.OriginSystem,
			Status:         radar.TaskPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := m.tasks.Create(ctx, task); err != nil {
			return emitted, fmt.Errorf("create task: %w", err)
		}
		if err := m.tasks.AppendStatus(ctx, radar.TaskStatusEntry{
			TaskID:    task.TaskID,
			Status:    radar.TaskPending,
			UpdatedAt: now,
		}); err != nil {
			m.logger.Warn("append task status failed", zap.String("task_id", task.TaskID), zap.Error(err))
		}
		if err := m.queue.PushSystem(ctx, task); err != nil {
			m.logger.Warn("queue push failed; task stays discoverable through the store",
				zap.String("task_id", task.TaskID),
				zap.Error(err),
			)
		}
		emitted = append(emitted, task)
		m.logger.Info("crawl task emitted",
			zap.String("task_id", task.TaskID),
			zap.String("candidate_id", cand.CandidateID),
			zap.String("platform", code),
		)
	}
	return emitted, nil
}

func searchKeywords(cand radar.Candidate) []string {
	out := []string{cand.CanonicalTitle}
	for _, t := range cand.SourceTitles {
		if len(out) == radar.MaxSearchKeywords {
			break
		}
		if !contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]radar.PlatformItem) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
