// Package ingest deduplicates hot-list observations into the raw store and
// tracks the history of time-varying fields.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/hotlist-radar/internal/hash/md5"
	"github.com/JakeFAU/hotlist-radar/internal/metrics"
	"github.com/JakeFAU/hotlist-radar/internal/radar"
	"github.com/JakeFAU/hotlist-radar/internal/sources"
)

// Outcome is the classification of a single observation.
type Outcome string

// Outcomes.
const (
	Inserted Outcome = "inserted"
	Updated  Outcome = "updated"
	Skipped  Outcome = "skipped"
	Dropped  Outcome = "dropped"
)

// BatchResult counts the outcomes of a batch.
type BatchResult struct {
	Source     string           `json:"source"`
	Collection radar.Collection `json:"collection"`
	Inserted   int              `json:"inserted"`
	Updated    int              `json:"updated"`
	Skipped    int              `json:"skipped"`
	Dropped    int              `json:"dropped"`
}

// Hook runs after a batch has been written.
type Hook func(ctx context.Context, src sources.Source, result BatchResult) error

// Pipeline writes batches of observations for registered sources.
type Pipeline struct {
	registry *sources.Registry
	store    radar.RawStore
	clock    radar.Clock
	logger   *zap.Logger
	hooks    []Hook
}

// New builds a Pipeline.
func New(registry *sources.Registry, store radar.RawStore, clock radar.Clock, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		registry: registry,
		store:    store,
		clock:    clock,
		logger:   logger.Named("ingest"),
	}
}

// AfterIngest registers a hook run after every successful batch.
func (p *Pipeline) AfterIngest(h Hook) {
	p.hooks = append(p.hooks, h)
}

// ItemID computes the identity of an observation: md5 of "source|f1|f2|…".
func ItemID(sourceName string, dedupFields []string, item radar.Item) string {
	parts := make([]string, 0, len(dedupFields)+1)
	parts = append(parts, sourceName)
	for _, f := range dedupFields {
		parts = append(parts, item.FieldString(f))
	}
	return md5.Key(parts...)
}

// Ingest writes a single observation.
func (p *Pipeline) Ingest(ctx context.Context, item radar.Item, sourceName string) (Outcome, error) {
	res, err := p.IngestBatch(ctx, []radar.Item{item}, sourceName)
	if err != nil {
		return "", err
	}
	switch {
	case res.Inserted == 1:
		return Inserted, nil
	case res.Updated == 1:
		return Updated, nil
	case res.Dropped == 1:
		return Dropped, nil
	default:
		return Skipped, nil
	}
}

// IngestBatch classifies every observation against one lookup of existing rows
// and applies all changes in a single bulk write.
func (p *Pipeline) IngestBatch(ctx context.Context, items []radar.Item, sourceName string) (BatchResult, error) {
	src, ok := p.registry.Get(sourceName)
	if !ok {
		return BatchResult{}, fmt.Errorf("ingest %s: %w", sourceName, radar.ErrUnknownSource)
	}
	collection := src.Collection()
	result := BatchResult{Source: src.Name, Collection: collection}
	now := p.clock.Now().Unix()

	// Repeats of an identity within the batch are kept as extra observations
	// of the first occurrence.
	batch := make([]radar.Item, 0, len(items))
	repeats := make(map[string][]radar.Item)
	for _, raw := range items {
		item, err := normalize(raw, src)
		if err != nil {
			result.Dropped++
			p.logger.Warn("dropping invalid item", zap.String("source", src.Name), zap.Error(err))
			continue
		}
		item.ItemID = ItemID(src.Name, src.DedupFields, item)
		if _, dup := repeats[item.ItemID]; dup {
			repeats[item.ItemID] = append(repeats[item.ItemID], item)
			continue
		}
		repeats[item.ItemID] = nil
		batch = append(batch, item)
	}
	if len(batch) == 0 {
		p.observe(result)
		return result, nil
	}

	ids := make([]string, len(batch))
	for i, it := range batch {
		ids[i] = it.ItemID
	}
	existing, err := p.store.GetMany(ctx, collection, ids)
	if err != nil {
		return result, fmt.Errorf("load existing items: %w", err)
	}

	ops := make([]radar.WriteOp, 0, len(batch))
	for _, item := range batch {
		later := repeats[item.ItemID]
		var op radar.WriteOp
		switch _, found := existing[item.ItemID]; {
		case !found:
			op = insertOp(item, src.TimeVaryingFields, now)
			result.Inserted++
		case src.HasTimeVarying():
			op = appendOp(item, src.TimeVaryingFields, now)
			result.Updated++
		default:
			result.Skipped += 1 + len(later)
			continue
		}
		for _, next := range later {
			if !src.HasTimeVarying() {
				result.Skipped++
				continue
			}
			mergeObservation(&op, next, src.TimeVaryingFields, now)
			result.Updated++
		}
		ops = append(ops, op)
	}
	if len(ops) > 0 {
		if err := p.store.BulkWrite(ctx, collection, ops); err != nil {
			return result, fmt.Errorf("bulk write %s: %w", collection, err)
		}
	}
	p.observe(result)
	p.logger.Debug("batch ingested",
		zap.String("source", src.Name),
		zap.String("collection", string(collection)),
		zap.Int("inserted", result.Inserted),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
		zap.Int("dropped", result.Dropped),
	)
	for _, h := range p.hooks {
		if err := h(ctx, src, result); err != nil {
			p.logger.Warn("after-ingest hook failed", zap.String("source", src.Name), zap.Error(err))
		}
	}
	return result, nil
}

func (p *Pipeline) observe(r BatchResult) {
	metrics.ObserveIngest(r.Source, string(Inserted), r.Inserted)
	metrics.ObserveIngest(r.Source, string(Updated), r.Updated)
	metrics.ObserveIngest(r.Source, string(Skipped), r.Skipped)
	metrics.ObserveIngest(r.Source, string(Dropped), r.Dropped)
}

func normalize(item radar.Item, src sources.Source) (radar.Item, error) {
	out := item.Clone()
	out.Title = strings.TrimSpace(out.Title)
	out.URL = strings.TrimSpace(out.URL)
	if out.Title == "" {
		return radar.Item{}, fmt.Errorf("item has empty title")
	}
	out.Source = src.Name
	if out.Category == "" {
		out.Category = src.Category
	}
	if out.Platform == "" {
		out.Platform = src.DefaultPlatform()
	}
	out.History = nil
	return out, nil
}

func insertOp(item radar.Item, timeVarying []string, now int64) radar.WriteOp {
	item.FirstSeenAt = now
	item.LastSeenAt = now
	for _, f := range timeVarying {
		if v, ok := item.Field(f); ok {
			if item.History == nil {
				item.History = make(map[string][]radar.HistoryPoint)
			}
			item.History[f] = []radar.HistoryPoint{{TS: now, Val: v}}
		}
	}
	return radar.WriteOp{Kind: radar.WriteInsert, Item: item, LastSeenAt: now}
}

func appendOp(item radar.Item, timeVarying []string, now int64) radar.WriteOp {
	op := radar.WriteOp{
		Kind:       radar.WriteAppend,
		Item:       item,
		LastSeenAt: now,
		Set:        map[string]any{},
		Push:       map[string][]radar.HistoryPoint{},
	}
	for _, f := range timeVarying {
		if v, ok := item.Field(f); ok {
			op.Set[f] = v
			op.Push[f] = []radar.HistoryPoint{{TS: now, Val: v}}
		}
	}
	return op
}

// mergeObservation folds a repeat observation into the pending write for the
// same row: its time-varying values win and each one adds a history point.
func mergeObservation(op *radar.WriteOp, item radar.Item, timeVarying []string, now int64) {
	for _, f := range timeVarying {
		v, ok := item.Field(f)
		if !ok {
			continue
		}
		point := radar.HistoryPoint{TS: now, Val: v}
		if op.Kind == radar.WriteInsert {
			if op.Item.History == nil {
				op.Item.History = make(map[string][]radar.HistoryPoint)
			}
			op.Item.History[f] = append(op.Item.History[f], point)
			op.Item.SetField(f, v)
			continue
		}
		op.Set[f] = v
		op.Push[f] = append(op.Push[f], point)
	}
}
