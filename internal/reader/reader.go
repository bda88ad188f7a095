// Package reader exposes the read-side views the detectors consume.
package reader

import (
	"context"
	"fmt"

	"github.com/JakeFAU/hotlist-radar/internal/radar"
)

// DefaultLimit caps the rows returned by a single view.
const DefaultLimit = 2000

// Reader is a thin query layer over a RawStore.
type Reader struct {
	store radar.RawStore
	limit int
}

// New builds a Reader. A non-positive limit selects DefaultLimit.
func New(store radar.RawStore, limit int) *Reader {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Reader{store: store, limit: limit}
}

// ItemsBySource returns one source's rows seen since sinceTS, newest first.
func (r *Reader) ItemsBySource(ctx context.Context, collection radar.Collection, source string, sinceTS int64) ([]radar.Item, error) {
	items, err := r.store.Find(ctx, collection, radar.ItemQuery{Source: source, Since: sinceTS, Limit: r.limit})
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", collection, source, err)
	}
	return items, nil
}

// HotNational returns national and local hot-list rows.
func (r *Reader) HotNational(ctx context.Context, sinceTS int64) ([]radar.Item, error) {
	return r.collection(ctx, radar.CollectionHotNational, sinceTS)
}

// HotVertical returns vertical hot-list rows.
func (r *Reader) HotVertical(ctx context.Context, sinceTS int64) ([]radar.Item, error) {
	return r.collection(ctx, radar.CollectionHotVertical, sinceTS)
}

// Aggregator returns rows republished by aggregator sources.
func (r *Reader) Aggregator(ctx context.Context, sinceTS int64) ([]radar.Item, error) {
	return r.collection(ctx, radar.CollectionAggregator, sinceTS)
}

// Media returns news-feed and wechat rows.
func (r *Reader) Media(ctx context.Context, sinceTS int64) ([]radar.Item, error) {
	return r.collection(ctx, radar.CollectionMedia, sinceTS)
}

// AllHot merges national, vertical and aggregator rows, keeping the first row
// per exact title in that priority order.
func (r *Reader) AllHot(ctx context.Context, sinceTS int64) ([]radar.Item, error) {
	views := []func(context.Context, int64) ([]radar.Item, error){r.HotNational, r.HotVertical, r.Aggregator}
	seen := map[string]bool{}
	var out []radar.Item
	for _, view := range views {
		items, err := view(ctx, sinceTS)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			if seen[it.Title] {
				continue
			}
			seen[it.Title] = true
			out = append(out, it)
		}
	}
	return out, nil
}

func (r *Reader) collection(ctx context.Context, c radar.Collection, sinceTS int64) ([]radar.Item, error) {
	items, err := r.store.Find(ctx, c, radar.ItemQuery{Since: sinceTS, Limit: r.limit})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c, err)
	}
	return items, nil
}
