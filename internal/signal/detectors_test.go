package signal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hotlist-radar/internal/ingest"
	"github.com/JakeFAU/hotlist-radar/internal/radar"
	"github.com/JakeFAU/hotlist-radar/internal/reader"
	"github.com/JakeFAU/hotlist-radar/internal/sources"
	"github.com/JakeFAU/hotlist-radar/internal/storage/memory"
	"github.com/JakeFAU/hotlist-radar/internal/tokenize"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func history(vals ...int64) []radar.HistoryPoint {
	out := make([]radar.HistoryPoint, len(vals))
	for i, v := range vals {
		out[i] = radar.HistoryPoint{TS: int64(i * 60), Val: v}
	}
	return out
}

func TestVelocity(t *testing.T) {
	t.Parallel()

	th := DefaultThresholds()
	items := []radar.Item{
		{Title: "T", Platform: "weibo", History: map[string][]radar.HistoryPoint{"hot_value": history(20000, 35000)}},
		{Title: "slow", Platform: "weibo", History: map[string][]radar.HistoryPoint{"hot_value": history(20000, 25000)}},
		{Title: "small", Platform: "weibo", History: map[string][]radar.HistoryPoint{"hot_value": history(10, 9000)}},
		{Title: "zero", Platform: "weibo", History: map[string][]radar.HistoryPoint{"hot_value": history(0, 90000)}},
		{Title: "single", Platform: "weibo", History: map[string][]radar.HistoryPoint{"hot_value": history(90000)}},
	}
	got := Velocity(items, radar.CollectionHotNational, th, 100)
	require.Len(t, got, 1)
	sig := got[0]
	require.Equal(t, "velocity|"+TitleHash("T")+"|weibo", sig.SignalID)
	require.Equal(t, radar.LayerSource, sig.Layer)
	require.Equal(t, int64(20000), sig.Velocity.PreviousValue)
	require.Equal(t, int64(35000), sig.Velocity.CurrentValue)
	require.InDelta(t, 0.75, sig.Velocity.GrowthRate, 1e-9)
	require.Len(t, sig.HotValueHistory, 2)
}

func TestNewEntry(t *testing.T) {
	t.Parallel()

	th := DefaultThresholds()
	now := int64(10_000)
	items := []radar.Item{
		{Title: "X", Platform: "zhihu", Position: radar.IntPtr(3), HotValue: radar.Int64Ptr(60000), FirstSeenAt: now - 20},
		{Title: "hot only", Platform: "zhihu", Position: radar.IntPtr(40), HotValue: radar.Int64Ptr(50000), FirstSeenAt: now - 100},
		{Title: "old", Platform: "zhihu", Position: radar.IntPtr(1), FirstSeenAt: now - 1801},
		{Title: "cold", Platform: "zhihu", Position: radar.IntPtr(11), HotValue: radar.Int64Ptr(10), FirstSeenAt: now},
	}
	got := NewEntry(items, radar.CollectionHotNational, th, now)
	require.Len(t, got, 2)
	require.Equal(t, "X", got[0].Title)
	require.Less(t, got[0].NewEntry.AgeSeconds, int64(60))
	require.Equal(t, 3, *got[0].NewEntry.Position)
	require.Equal(t, "hot only", got[1].Title)
}

func TestPositionJump(t *testing.T) {
	t.Parallel()

	th := DefaultThresholds()
	items := []radar.Item{
		{Title: "climber", Platform: "douyin", History: map[string][]radar.HistoryPoint{"position": {{TS: 1, Val: 20}, {TS: 2, Val: 5}}}},
		{Title: "small move", Platform: "douyin", History: map[string][]radar.HistoryPoint{"position": {{TS: 1, Val: 12}, {TS: 2, Val: 5}}}},
		{Title: "faller", Platform: "douyin", History: map[string][]radar.HistoryPoint{"position": {{TS: 1, Val: 5}, {TS: 2, Val: 40}}}},
		{Title: "unranked", Platform: "douyin", History: map[string][]radar.HistoryPoint{"position": {{TS: 1, Val: 0}, {TS: 2, Val: -30}}}},
	}
	got := PositionJump(items, radar.CollectionHotNational, th, 3)
	require.Len(t, got, 1)
	require.Equal(t, 15, got[0].PositionJump.Jump)
	require.Equal(t, 20, got[0].PositionJump.PreviousPosition)
	require.Equal(t, 5, got[0].PositionJump.CurrentPosition)
}

func TestCrossPlatformResonance(t *testing.T) {
	t.Parallel()

	tok := tokenize.NewWhitespace()
	items := []radar.Item{
		{Title: "alpha beta gamma", Platform: "wb"},
		{Title: "alpha beta gamma", Platform: "zh"},
		{Title: "alpha beta gamma", Platform: "bili-hot-search", Position: radar.IntPtr(2)},
		{Title: "unrelated story here", Platform: "wb"},
	}
	got := CrossPlatform(items, tok, DefaultThresholds(), 500)
	require.Len(t, got, 1)
	sig := got[0]
	require.Equal(t, CrossSignalID("alpha beta gamma"), sig.SignalID)
	require.Equal(t, radar.LayerCross, sig.Layer)
	require.Equal(t, radar.SourceCollectionCross, sig.SourceCollection)
	require.Equal(t, 3, sig.CrossPlatform.PlatformCount)
	require.Equal(t, []string{"bilibili", "wb", "zh"}, sig.Platforms)
	require.Subset(t, sig.CrossPlatform.CommonKeywords, []string{"alpha", "beta", "gamma"})
	require.Equal(t, 2, *sig.CrossPlatform.PlatformItems["bilibili"].Position)
}

func TestCrossPlatformNeedsEnoughPlatformsAndKeywords(t *testing.T) {
	t.Parallel()

	tok := tokenize.NewWhitespace()
	twoPlatforms := []radar.Item{
		{Title: "alpha beta", Platform: "wb"},
		{Title: "alpha beta story", Platform: "wb-hot"},
		{Title: "alpha beta again", Platform: "zh"},
	}
	require.Empty(t, CrossPlatform(twoPlatforms, tok, DefaultThresholds(), 1))

	oneShared := []radar.Item{
		{Title: "alpha one", Platform: "wb"},
		{Title: "alpha two", Platform: "zh"},
		{Title: "alpha three", Platform: "dy"},
	}
	require.Empty(t, CrossPlatform(oneShared, tok, DefaultThresholds(), 1))
}

func TestCrossPlatformNoiseCap(t *testing.T) {
	t.Parallel()

	th := DefaultThresholds()
	th.CrossKeywordCap = 2
	tok := tokenize.NewWhitespace()
	items := []radar.Item{
		{Title: "alpha beta", Platform: "wb"},
		{Title: "alpha beta", Platform: "zh"},
		{Title: "alpha beta", Platform: "dy"},
	}
	require.Empty(t, CrossPlatform(items, tok, th, 1))
}

func TestDetectSourceAfterIngest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg, err := sources.NewRegistry(sources.Source{
		Name:              "weibo-hot-search",
		Category:          radar.CategoryHotNational,
		SourceType:        sources.TypeScraper,
		Platform:          "weibo",
		DedupFields:       []string{"title"},
		TimeVaryingFields: []string{"hot_value", "position"},
		Enabled:           true,
	})
	require.NoError(t, err)
	raw := memory.NewRawStore()
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	p := ingest.New(reg, raw, clk, nil)
	_, err = p.Ingest(ctx, radar.Item{Title: "T", Position: radar.IntPtr(1), HotValue: radar.Int64Ptr(20000)}, "weibo-hot-search")
	require.NoError(t, err)
	clk.now = clk.now.Add(60 * time.Second)
	_, err = p.Ingest(ctx, radar.Item{Title: "T", Position: radar.IntPtr(1), HotValue: radar.Int64Ptr(35000)}, "weibo-hot-search")
	require.NoError(t, err)

	store := memory.NewSignalStore()
	d := NewDetector(reader.New(raw, 0), store, tokenize.NewWhitespace(), DefaultThresholds(), clk, nil)
	signals, err := d.DetectSource(ctx, radar.CollectionHotNational, "weibo-hot-search", 0)
	require.NoError(t, err)

	var velocity []radar.Signal
	for _, s := range signals {
		if s.Type == radar.SignalVelocity {
			velocity = append(velocity, s)
		}
	}
	require.Len(t, velocity, 1)
	require.InDelta(t, 0.75, velocity[0].Velocity.GrowthRate, 1e-9)
	require.Equal(t, int64(20000), velocity[0].Velocity.PreviousValue)
	require.Equal(t, int64(35000), velocity[0].Velocity.CurrentValue)

	firstID := velocity[0].SignalID
	detectedAt := clk.now.Unix()
	clk.now = clk.now.Add(time.Hour)
	_, err = d.DetectSource(ctx, radar.CollectionHotNational, "weibo-hot-search", 0)
	require.NoError(t, err)
	stored, err := store.List(ctx)
	require.NoError(t, err)
	var found bool
	for _, s := range stored {
		if s.SignalID == firstID {
			found = true
			require.Equal(t, detectedAt, s.DetectedAt)
			require.Equal(t, clk.now.Unix(), s.UpdatedAt)
		}
	}
	require.True(t, found)
}

func TestDetectCrossPlatformOverAllHot(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	raw := memory.NewRawStore()
	require.NoError(t, raw.BulkWrite(ctx, radar.CollectionHotNational, []radar.WriteOp{
		{Kind: radar.WriteInsert, Item: radar.Item{ItemID: "1", Title: "alpha beta gamma", Platform: "weibo", LastSeenAt: 10}},
		{Kind: radar.WriteInsert, Item: radar.Item{ItemID: "2", Title: "alpha beta gamma!", Platform: "zhihu", LastSeenAt: 10}},
	}))
	require.NoError(t, raw.BulkWrite(ctx, radar.CollectionAggregator, []radar.WriteOp{
		{Kind: radar.WriteInsert, Item: radar.Item{ItemID: "3", Title: "alpha beta gamma?", Platform: "douyin", LastSeenAt: 10}},
	}))
	store := memory.NewSignalStore()
	d := NewDetector(reader.New(raw, 0), store, tokenize.NewWhitespace(), DefaultThresholds(), &fakeClock{now: time.Unix(20, 0)}, nil)
	got, err := d.DetectCrossPlatform(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, []string{"douyin", "weibo", "zhihu"}, got[0].Platforms)

	stored, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.NotNil(t, stored[0].CrossPlatform)
}

type failingSignalStore struct{ radar.SignalStore }

func (failingSignalStore) Upsert(context.Context, []radar.Signal) error {
	return errors.New("write refused")
}

func TestDetectPropagatesWriteFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	raw := memory.NewRawStore()
	require.NoError(t, raw.BulkWrite(ctx, radar.CollectionHotNational, []radar.WriteOp{
		{Kind: radar.WriteInsert, Item: radar.Item{ItemID: "1", Source: "s", Title: "X", Position: radar.IntPtr(1), FirstSeenAt: 10, LastSeenAt: 10}},
	}))
	d := NewDetector(reader.New(raw, 0), failingSignalStore{}, tokenize.NewWhitespace(), DefaultThresholds(), &fakeClock{now: time.Unix(20, 0)}, nil)
	_, err := d.DetectSource(ctx, radar.CollectionHotNational, "s", 0)
	require.ErrorContains(t, err, "upsert signals")
}
