package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/hotlist-radar/internal/radar"
)

const schema = `
CREATE OR REPLACE FUNCTION append_history(old jsonb, fresh jsonb) RETURNS jsonb AS $$
	SELECT COALESCE(old, '{}'::jsonb) || COALESCE((
		SELECT jsonb_object_agg(k, COALESCE(old -> k, '[]'::jsonb) || v)
		FROM jsonb_each(COALESCE(fresh, '{}'::jsonb)) AS e(k, v)
	), '{}'::jsonb)
$$ LANGUAGE sql IMMUTABLE;

CREATE TABLE IF NOT EXISTS signals (
	signal_id         TEXT PRIMARY KEY,
	signal_type       TEXT NOT NULL,
	layer             INTEGER NOT NULL,
	source_collection TEXT NOT NULL,
	title             TEXT NOT NULL,
	detected_at       BIGINT NOT NULL,
	updated_at        BIGINT NOT NULL,
	payload           JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS candidates (
	candidate_id    TEXT PRIMARY KEY,
	status          TEXT NOT NULL,
	canonical_title TEXT NOT NULL,
	updated_at      BIGINT NOT NULL,
	payload         JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_candidates_status ON candidates(status);

CREATE TABLE IF NOT EXISTS crawl_tasks (
	task_id       TEXT PRIMARY KEY,
	candidate_id  TEXT NOT NULL DEFAULT '',
	platform      TEXT NOT NULL,
	status        TEXT NOT NULL,
	priority      INTEGER NOT NULL DEFAULT 0,
	created_at    BIGINT NOT NULL,
	next_retry_at BIGINT,
	payload       JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_crawl_tasks_pending ON crawl_tasks(status, priority DESC, created_at);
CREATE INDEX IF NOT EXISTS idx_crawl_tasks_candidate ON crawl_tasks(candidate_id, platform);

CREATE TABLE IF NOT EXISTS crawl_task_status (
	id         BIGSERIAL PRIMARY KEY,
	task_id    TEXT NOT NULL,
	status     TEXT NOT NULL,
	attempts   INTEGER NOT NULL DEFAULT 0,
	error      TEXT NOT NULL DEFAULT '',
	updated_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_crawl_task_status_task ON crawl_task_status(task_id);

CREATE TABLE IF NOT EXISTS platform_cookies (
	platform     TEXT PRIMARY KEY,
	cookies      JSONB NOT NULL,
	saved_at     BIGINT NOT NULL,
	expires_hint BIGINT NOT NULL DEFAULT 0,
	status       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS deep_posts (
	post_id          TEXT PRIMARY KEY,
	platform         TEXT NOT NULL,
	topic_id         TEXT NOT NULL DEFAULT '',
	crawling_task_id TEXT NOT NULL,
	crawled_at       BIGINT NOT NULL,
	seq              BIGSERIAL,
	payload          JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_deep_posts_task ON deep_posts(crawling_task_id);
`

const rawTableTemplate = `
CREATE TABLE IF NOT EXISTS %[1]s (
	item_id       TEXT PRIMARY KEY,
	source        TEXT NOT NULL,
	category      TEXT NOT NULL DEFAULT '',
	title         TEXT NOT NULL DEFAULT '',
	url           TEXT NOT NULL DEFAULT '',
	platform      TEXT NOT NULL DEFAULT '',
	position      INTEGER,
	hot_value     BIGINT,
	extra         JSONB NOT NULL DEFAULT '{}'::jsonb,
	first_seen_at BIGINT NOT NULL,
	last_seen_at  BIGINT NOT NULL,
	history       JSONB NOT NULL DEFAULT '{}'::jsonb
);
CREATE INDEX IF NOT EXISTS idx_%[1]s_source_seen ON %[1]s(source, last_seen_at DESC);
CREATE INDEX IF NOT EXISTS idx_%[1]s_seen ON %[1]s(last_seen_at DESC);
`

// Migrate creates every table the stores use. It is safe to run repeatedly.
func Migrate(ctx context.Context, pool Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	for _, c := range radar.Collections {
		table, err := rawTable(c)
		if err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, fmt.Sprintf(rawTableTemplate, table)); err != nil {
			return fmt.Errorf("create %s: %w", table, err)
		}
	}
	return nil
}

func rawTable(c radar.Collection) (string, error) {
	table := "raw_" + string(c)
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}
