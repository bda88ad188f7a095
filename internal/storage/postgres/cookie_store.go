package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/hotlist-radar/internal/radar"
)

// CookieStore persists per-platform login cookies.
type CookieStore struct {
	pool Pool
}

// NewCookieStore wraps pool.
func NewCookieStore(pool Pool) *CookieStore {
	return &CookieStore{pool: pool}
}

const cookieColumns = "platform, cookies, saved_at, expires_hint, status"

// Get loads the cookies of one platform.
func (s *CookieStore) Get(ctx context.Context, platform string) (radar.PlatformCookie, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+cookieColumns+` FROM platform_cookies WHERE platform = $1`, platform)
	c, err := scanCookie(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return radar.PlatformCookie{}, radar.ErrNotFound
	}
	if err != nil {
		return radar.PlatformCookie{}, fmt.Errorf("get cookies for %s: %w", platform, err)
	}
	return c, nil
}

// Save upserts a platform's cookies.
func (s *CookieStore) Save(ctx context.Context, cookie radar.PlatformCookie) error {
	raw, err := json.Marshal(cookie.Cookies)
	if err != nil {
		return fmt.Errorf("marshal cookies for %s: %w", cookie.Platform, err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO platform_cookies (`+cookieColumns+`)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (platform) DO UPDATE SET
	cookies = EXCLUDED.cookies,
	saved_at = EXCLUDED.saved_at,
	expires_hint = EXCLUDED.expires_hint,
	status = EXCLUDED.status`,
		cookie.Platform, raw, cookie.SavedAt, cookie.ExpiresHint, string(cookie.Status))
	if err != nil {
		return fmt.Errorf("save cookies for %s: %w", cookie.Platform, err)
	}
	return nil
}

// List returns every stored platform ordered by name.
func (s *CookieStore) List(ctx context.Context) ([]radar.PlatformCookie, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+cookieColumns+` FROM platform_cookies ORDER BY platform`)
	if err != nil {
		return nil, fmt.Errorf("list cookies: %w", err)
	}
	defer rows.Close()
	var out []radar.PlatformCookie
	for rows.Next() {
		c, err := scanCookie(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cookies: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// MarkExpired flags a platform's cookies as expired.
func (s *CookieStore) MarkExpired(ctx context.Context, platform string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE platform_cookies SET status = $2 WHERE platform = $1`,
		platform, string(radar.CookieExpired))
	if err != nil {
		return fmt.Errorf("expire cookies for %s: %w", platform, err)
	}
	if tag.RowsAffected() == 0 {
		return radar.ErrNotFound
	}
	return nil
}

func scanCookie(row pgx.Row) (radar.PlatformCookie, error) {
	var (
		c      radar.PlatformCookie
		raw    []byte
		status string
	)
	if err := row.Scan(&c.Platform, &raw, &c.SavedAt, &c.ExpiresHint, &status); err != nil {
		return radar.PlatformCookie{}, err
	}
	c.Status = radar.CookieStatus(status)
	c.Cookies = map[string]string{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &c.Cookies); err != nil {
			return radar.PlatformCookie{}, fmt.Errorf("decode cookies: %w", err)
		}
	}
	return c, nil
}
