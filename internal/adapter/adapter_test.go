package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubAdapter struct {
	platform string
	bag      *ConfigBag
}

func (s *stubAdapter) Platform() string            { return s.platform }
func (s *stubAdapter) Config() *ConfigBag          { return s.bag }
func (s *stubAdapter) Start(context.Context) error { return nil }

func TestSetLookup(t *testing.T) {
	t.Parallel()

	set := NewSet(&stubAdapter{platform: "xhs"}, &stubAdapter{platform: "dy"})
	set.Add(&stubAdapter{platform: "wb"})
	require.Equal(t, []string{"dy", "wb", "xhs"}, set.Platforms())

	a, err := set.Get("dy")
	require.NoError(t, err)
	require.Equal(t, "dy", a.Platform())
	_, err = set.Get("ks")
	require.Error(t, err)
}

func TestTaskContext(t *testing.T) {
	t.Parallel()

	_, ok := TaskFrom(context.Background())
	require.False(t, ok)

	ctx := WithTask(context.Background(), TaskContext{TopicID: "c1", CrawlingTaskID: "t1"})
	tc, ok := TaskFrom(ctx)
	require.True(t, ok)
	require.Equal(t, "c1", tc.TopicID)
	require.Equal(t, "t1", tc.CrawlingTaskID)
}

func TestConfigBagSnapshotRestore(t *testing.T) {
	t.Parallel()

	bag := NewConfigBag(map[string]any{
		KeyPlatform:  "xhs",
		KeyKeywords:  []string{"a", "b"},
		"ENABLE_CDP": true,
		"lowercase":  "ignored by snapshots",
	})
	before := bag.Fingerprint()
	snap := bag.Snapshot()
	require.NotContains(t, snap, "lowercase")

	bag.Set(KeyPlatform, "dy")
	bag.Set(KeyCookies, "a=1")
	kw, _ := bag.Get(KeyKeywords)
	kw.([]string)[0] = "mutated"
	require.Equal(t, "a,b", bag.String(KeyKeywords))

	bag.Restore(snap)
	_, ok := bag.Get(KeyCookies)
	require.False(t, ok)
	require.Equal(t, "xhs", bag.String(KeyPlatform))
	require.Equal(t, before, bag.Fingerprint())

	// Lowercase keys are outside the snapshot and survive a restore.
	bag.Set("lowercase", "kept")
	bag.Restore(snap)
	require.Equal(t, "kept", bag.String("lowercase"))
}

func TestConfigBagTypedAccessors(t *testing.T) {
	t.Parallel()

	bag := NewConfigBag(map[string]any{
		KeyMaxNotes: "15",
		KeyHeadless: "true",
		KeyKeywords: []string{"x", "y"},
	})
	require.Equal(t, 15, bag.Int(KeyMaxNotes, 0))
	require.Equal(t, 3, bag.Int("MISSING", 3))
	require.True(t, bag.Bool(KeyHeadless, false))
	require.False(t, bag.Bool("MISSING", false))
	require.Equal(t, "x,y", bag.String(KeyKeywords))
	require.Equal(t, []string{"x", "y"}, bag.Strings(KeyKeywords))
	require.Empty(t, bag.String("MISSING"))
	require.Nil(t, bag.Strings("MISSING"))

	bag.Set(KeyKeywords, []string{"a,b", "c"})
	require.Equal(t, []string{"a,b", "c"}, bag.Strings(KeyKeywords))
	bag.Set(KeyPlatform, "wb")
	require.Equal(t, []string{"wb"}, bag.Strings(KeyPlatform))

	bag.Set(KeyMaxNotes, 20)
	require.Equal(t, 20, bag.Int(KeyMaxNotes, 0))
	require.Equal(t, "20", bag.String(KeyMaxNotes))
}
