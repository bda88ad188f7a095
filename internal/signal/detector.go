// Package signal derives trending signals from raw hot-list observations.
//
// Layer-1 detectors (velocity, new entry, position jump) look at one source's
// rows; the layer-2 detector clusters titles across every hot collection.
// All detectors are pure over their inputs; the Detector wires them to the
// reader and the signal store.
package signal

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/hotlist-radar/internal/metrics"
	"github.com/JakeFAU/hotlist-radar/internal/radar"
	"github.com/JakeFAU/hotlist-radar/internal/reader"
)

// Detector runs the detectors and upserts their output.
type Detector struct {
	reader     *reader.Reader
	store      radar.SignalStore
	tokenizer  radar.Tokenizer
	thresholds Thresholds
	clock      radar.Clock
	logger     *zap.Logger
}

// NewDetector builds a Detector.
func NewDetector(
	r *reader.Reader,
	store radar.SignalStore,
	tok radar.Tokenizer,
	th Thresholds,
	clock radar.Clock,
	logger *zap.Logger,
) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		reader:     r,
		store:      store,
		tokenizer:  tok,
		thresholds: th,
		clock:      clock,
		logger:     logger.Named("signal"),
	}
}

// DetectSource runs the layer-1 detectors over one source and upserts the results.
func (d *Detector) DetectSource(ctx context.Context, collection radar.Collection, source string, sinceTS int64) ([]radar.Signal, error) {
	items, err := d.reader.ItemsBySource(ctx, collection, source, sinceTS)
	if err != nil {
		return nil, err
	}
	now := d.clock.Now().Unix()
	var signals []radar.Signal
	signals = append(signals, Velocity(items, collection, d.thresholds, now)...)
	signals = append(signals, NewEntry(items, collection, d.thresholds, now)...)
	signals = append(signals, PositionJump(items, collection, d.thresholds, now)...)
	if err := d.write(ctx, signals); err != nil {
		return nil, err
	}
	d.logger.Debug("source sweep complete",
		zap.String("source", source),
		zap.Int("items", len(items)),
		zap.Int("signals", len(signals)),
	)
	return signals, nil
}

// DetectCrossPlatform runs the resonance detector over the unified hot view.
func (d *Detector) DetectCrossPlatform(ctx context.Context, sinceTS int64) ([]radar.Signal, error) {
	items, err := d.reader.AllHot(ctx, sinceTS)
	if err != nil {
		return nil, err
	}
	signals := CrossPlatform(items, d.tokenizer, d.thresholds, d.clock.Now().Unix())
	if err := d.write(ctx, signals); err != nil {
		return nil, err
	}
	d.logger.Info("cross-platform sweep complete",
		zap.Int("items", len(items)),
		zap.Int("signals", len(signals)),
	)
	return signals, nil
}

func (d *Detector) write(ctx context.Context, signals []radar.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	if err := d.store.Upsert(ctx, signals); err != nil {
		return fmt.Errorf("upsert signals: %w", err)
	}
	counts := map[radar.SignalType]int{}
	for _, s := range signals {
		counts[s.Type]++
	}
	for t, n := range counts {
		metrics.ObserveSignals(string(t), n)
	}
	return nil
}
