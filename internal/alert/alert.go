// Package alert delivers operator notifications with a per-platform,
// per-kind minimum interval.
package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/hotlist-radar/internal/metrics"
	"github.com/JakeFAU/hotlist-radar/internal/radar"
)

// DefaultMinInterval separates two alerts of one kind for one platform.
const DefaultMinInterval = 300 * time.Second

// Notifier delivers alerts to a specific destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, a radar.Alert) error
}

// Manager rate-limits alerts and broadcasts the survivors to every notifier.
type Manager struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	interval  time.Duration
	notifiers []Notifier
	clock     radar.Clock
	logger    *zap.Logger
}

// NewManager builds a Manager. A non-positive interval uses DefaultMinInterval.
func NewManager(interval time.Duration, clock radar.Clock, logger *zap.Logger, notifiers ...Notifier) *Manager {
	if interval <= 0 {
		interval = DefaultMinInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		limiters:  make(map[string]*rate.Limiter),
		interval:  interval,
		notifiers: notifiers,
		clock:     clock,
		logger:    logger.Named("alert"),
	}
}

// Alert implements radar.Alerter. Alerts inside the minimum interval are
// dropped silently.
func (m *Manager) Alert(ctx context.Context, a radar.Alert) error {
	if !m.allow(a) {
		metrics.ObserveAlert(a.Kind, "suppressed")
		m.logger.Debug("alert suppressed",
			zap.String("kind", a.Kind),
			zap.String("platform", a.Platform),
		)
		return nil
	}
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Send(ctx, a); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		metrics.ObserveAlert(a.Kind, "failed")
		return err
	}
	metrics.ObserveAlert(a.Kind, "sent")
	return nil
}

func (m *Manager) allow(a radar.Alert) bool {
	key := a.Platform + "|" + a.Kind
	m.mu.Lock()
	defer m.mu.Unlock()
	lim, ok := m.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(m.interval), 1)
		m.limiters[key] = lim
	}
	return lim.AllowN(m.clock.Now(), 1)
}

// Log writes alerts to a zap logger.
type Log struct {
	logger *zap.Logger
}

// NewLog builds a log notifier.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger.Named("alert")}
}

// Name implements Notifier.
func (l *Log) Name() string { return "log" }

// Send implements Notifier.
func (l *Log) Send(_ context.Context, a radar.Alert) error {
	l.logger.Warn(a.Title,
		zap.String("kind", a.Kind),
		zap.String("platform", a.Platform),
		zap.String("content", a.Content),
	)
	return nil
}
