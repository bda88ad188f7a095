package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hotlist-radar/internal/config"
	"github.com/JakeFAU/hotlist-radar/internal/radar"
)

const sourceYAML = `
name: weibo-hot-search
category: hot_national
source_type: scraper
platform: weibo
dedup_fields: [title]
time_varying_fields: [hot_value, position]
enabled: true
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "weibo.yaml"), []byte(sourceYAML), 0o600))
	cfg.Sources.Dir = dir
	cfg.Logging.Development = false
	cfg.Logging.Level = "error"
	return &cfg
}

func TestBuildWiresMemoryStack(t *testing.T) {
	ctx := context.Background()
	app, err := Build(ctx, testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	require.NotNil(t, app.dispatch)
	require.Len(t, app.Registry().Enabled(), 1)

	pos, hot := 1, int64(900000)
	res, err := app.Pipeline().IngestBatch(ctx, []radar.Item{
		{Title: "台风登陆", Position: &pos, HotValue: &hot},
	}, "weibo-hot-search")
	require.NoError(t, err)
	require.Equal(t, 1, res.Inserted)
	require.Equal(t, radar.CollectionHotNational, res.Collection)

	_, err = app.Detect(ctx)
	require.NoError(t, err)

	_, err = app.Cycle(ctx)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	app.apiServer.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestBuildWithoutSourcesDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sources.Dir = filepath.Join(t.TempDir(), "missing")
	cfg.Dispatcher.Enabled = false

	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })

	require.Nil(t, app.dispatch)
	require.Empty(t, app.Registry().Enabled())
}

func TestBuildRejectsBadWeights(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "weights.yaml")
	require.NoError(t, os.WriteFile(path, []byte("weibo: 3\n"), 0o600))
	cfg.Sources.WeightsFile = path

	_, err := Build(context.Background(), cfg)
	require.ErrorContains(t, err, "platform weights init failed")
}
