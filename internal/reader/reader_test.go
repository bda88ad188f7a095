package reader

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hotlist-radar/internal/radar"
	"github.com/JakeFAU/hotlist-radar/internal/storage/memory"
)

func seed(t *testing.T, store *memory.RawStore, c radar.Collection, items ...radar.Item) {
	t.Helper()
	ops := make([]radar.WriteOp, 0, len(items))
	for _, it := range items {
		ops = append(ops, radar.WriteOp{Kind: radar.WriteInsert, Item: it})
	}
	require.NoError(t, store.BulkWrite(context.Background(), c, ops))
}

func TestAllHotDedupsByTitleWithPriority(t *testing.T) {
	t.Parallel()

	store := memory.NewRawStore()
	seed(t, store, radar.CollectionHotNational, radar.Item{ItemID: "n1", Title: "shared", Source: "national", LastSeenAt: 10})
	seed(t, store, radar.CollectionHotVertical,
		radar.Item{ItemID: "v1", Title: "shared", Source: "vertical", LastSeenAt: 20},
		radar.Item{ItemID: "v2", Title: "vertical only", Source: "vertical", LastSeenAt: 20},
	)
	seed(t, store, radar.CollectionAggregator,
		radar.Item{ItemID: "a1", Title: "vertical only", Source: "agg", LastSeenAt: 30},
		radar.Item{ItemID: "a2", Title: "agg only", Source: "agg", LastSeenAt: 30},
	)
	seed(t, store, radar.CollectionMedia, radar.Item{ItemID: "m1", Title: "media only", LastSeenAt: 30})

	r := New(store, 0)
	items, err := r.AllHot(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, items, 3)
	bySource := map[string]string{}
	for _, it := range items {
		bySource[it.Title] = it.Source
	}
	require.Equal(t, map[string]string{
		"shared":        "national",
		"vertical only": "vertical",
		"agg only":      "agg",
	}, bySource)
}

func TestItemsBySourceRespectsSinceAndLimit(t *testing.T) {
	t.Parallel()

	store := memory.NewRawStore()
	seed(t, store, radar.CollectionHotNational,
		radar.Item{ItemID: "1", Title: "a", Source: "s", LastSeenAt: 5},
		radar.Item{ItemID: "2", Title: "b", Source: "s", LastSeenAt: 15},
		radar.Item{ItemID: "3", Title: "c", Source: "s", LastSeenAt: 25},
		radar.Item{ItemID: "4", Title: "d", Source: "t", LastSeenAt: 25},
	)
	r := New(store, 1)
	items, err := r.ItemsBySource(context.Background(), radar.CollectionHotNational, "s", 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "c", items[0].Title)

	media, err := r.Media(context.Background(), 0)
	require.NoError(t, err)
	require.Empty(t, media)
}

type failingStore struct{ radar.RawStore }

func (failingStore) Find(context.Context, radar.Collection, radar.ItemQuery) ([]radar.Item, error) {
	return nil, errors.New("connection reset")
}

func TestReaderWrapsStoreErrors(t *testing.T) {
	t.Parallel()

	r := New(failingStore{}, 0)
	_, err := r.AllHot(context.Background(), 0)
	require.ErrorContains(t, err, "read hot_national")
}
