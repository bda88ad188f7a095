package sources

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hotlist-radar/internal/radar"
)

const weiboYAML = `
name: weibo-hot-search
display_name: 微博热搜
category: hot_national
source_type: scraper
spider_name: weibo
dedup_fields: [title]
time_varying_fields: [hot_value, position]
schedule:
  type: interval
  minutes: 5
enabled: true
`

const newsnowYAML = `
name: newsnow-zhihu
category: hot_national
source_type: aggregator
aggregator_name: newsnow
aggregator_source: zhihu
dedup_fields: [title, url]
schedule:
  type: cron
  hour: "*"
  minute: "*/10"
  second: "0"
enabled: false
`

func TestLoadDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "weibo.yaml"), []byte(weiboYAML), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "newsnow.yml"), []byte(newsnowYAML), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o600))

	reg, err := LoadDir(dir)
	require.NoError(t, err)

	weibo, ok := reg.Get("weibo-hot-search")
	require.True(t, ok)
	require.Equal(t, radar.CollectionHotNational, weibo.Collection())
	require.Equal(t, []string{"hot_value", "position"}, weibo.TimeVaryingFields)
	require.Equal(t, "weibo-hot-search", weibo.DefaultPlatform())

	agg, ok := reg.Get("newsnow-zhihu")
	require.True(t, ok)
	require.Equal(t, radar.CollectionAggregator, agg.Collection())
	require.Equal(t, "zhihu", agg.DefaultPlatform())
	require.False(t, agg.HasTimeVarying())

	enabled := reg.Enabled()
	require.Len(t, enabled, 1)
	require.Equal(t, "weibo-hot-search", enabled[0].Name)
}

func TestSourceCollectionMapping(t *testing.T) {
	t.Parallel()

	cases := map[radar.Category]radar.Collection{
		radar.CategoryHotNational: radar.CollectionHotNational,
		radar.CategoryHotLocal:    radar.CollectionHotNational,
		radar.CategoryHotVertical: radar.CollectionHotVertical,
		radar.CategoryMedia:       radar.CollectionMedia,
		radar.CategoryWechat:      radar.CollectionMedia,
	}
	for cat, want := range cases {
		s := Source{Name: "x", Category: cat, SourceType: TypeScraper, DedupFields: []string{"title"}}
		require.Equal(t, want, s.Collection(), string(cat))
	}

	explicit := Source{Name: "x", Category: radar.CategoryHotNational, MongoCollection: "hot_vertical_items"}
	require.Equal(t, radar.CollectionHotVertical, explicit.Collection())
}

func TestSourceValidate(t *testing.T) {
	t.Parallel()

	base := Source{Name: "s", Category: radar.CategoryMedia, SourceType: TypeScraper, DedupFields: []string{"url"}}
	require.NoError(t, base.Validate())

	bad := base
	bad.Category = "sports"
	require.Error(t, bad.Validate())

	bad = base
	bad.SourceType = "rss"
	require.Error(t, bad.Validate())

	bad = base
	bad.DedupFields = nil
	require.Error(t, bad.Validate())

	bad = base
	bad.Schedule = Schedule{Type: "interval"}
	require.Error(t, bad.Validate())

	bad = base
	bad.MongoCollection = "archive"
	require.Error(t, bad.Validate())
}

func TestNormalizePlatform(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"bilibili-hot-search": "bilibili",
		"weibo-hot":           "weibo",
		"Zhihu":               "zhihu",
		"哔哩哔哩":                "bilibili",
		"douyin_hot":          "douyin",
		"xhs":                 "xiaohongshu",
		"":                    "",
		"-hot":                "-hot",
	}
	for in, want := range cases {
		require.Equal(t, want, NormalizePlatform(in), in)
	}
}

func TestWeights(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "weights.yaml")
	require.NoError(t, os.WriteFile(path, []byte("weibo: 1.0\nzhihu: 0.8\n"), 0o600))

	w, err := LoadWeights(path)
	require.NoError(t, err)
	require.InDelta(t, 1.0, w.Weight("weibo"), 1e-9)
	require.InDelta(t, 1.0, w.Weight("weibo-hot-search"), 1e-9)
	require.InDelta(t, 0.8, w.Weight("zhihu"), 1e-9)
	require.InDelta(t, DefaultWeight, w.Weight("douban"), 1e-9)

	require.NoError(t, os.WriteFile(path, []byte("weibo: 2\n"), 0o600))
	_, err = LoadWeights(path)
	require.Error(t, err)

	empty, err := LoadWeights("")
	require.NoError(t, err)
	require.InDelta(t, DefaultWeight, empty.Weight("weibo"), 1e-9)
}
