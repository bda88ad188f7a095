// Package headless is a reference deep-crawl adapter that drives headless
// Chrome through chromedp: it replays the platform cookies, opens the search
// page for each keyword and scrapes result links into posts.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/hotlist-radar/internal/adapter"
	"github.com/JakeFAU/hotlist-radar/internal/hash/md5"
	"github.com/JakeFAU/hotlist-radar/internal/radar"
)

// Site describes where a platform's search page lives.
type Site struct {
	// SearchURL contains one %s replaced by the query-escaped keyword.
	SearchURL string
	// CookieDomain scopes replayed cookies, e.g. ".weibo.com".
	CookieDomain string
}

// DefaultSites covers the stock deep-crawl platform codes.
func DefaultSites() map[string]Site {
	return map[string]Site{
		"wb":    {SearchURL: "https://s.weibo.com/weibo?q=%s", CookieDomain: ".weibo.com"},
		"xhs":   {SearchURL: "https://www.xiaohongshu.com/search_result?keyword=%s", CookieDomain: ".xiaohongshu.com"},
		"dy":    {SearchURL: "https://www.douyin.com/search/%s", CookieDomain: ".douyin.com"},
		"ks":    {SearchURL: "https://www.kuaishou.com/search/video?searchKey=%s", CookieDomain: ".kuaishou.com"},
		"bili":  {SearchURL: "https://search.bilibili.com/all?keyword=%s", CookieDomain: ".bilibili.com"},
		"zhihu": {SearchURL: "https://www.zhihu.com/search?type=content&q=%s", CookieDomain: ".zhihu.com"},
		"tieba": {SearchURL: "https://tieba.baidu.com/f/search/res?qw=%s", CookieDomain: ".baidu.com"},
	}
}

// Config controls the behavior of the headless adapter.
type Config struct {
	Platform          string
	Site              Site
	ExecPath          string
	UserAgent         string
	NavigationTimeout time.Duration
}

// Adapter implements adapter.Adapter using chromedp and headless Chrome.
type Adapter struct {
	cfg    Config
	bag    *adapter.ConfigBag
	posts  radar.PostStore
	now    func() time.Time
	logger *zap.Logger
}

// New creates a headless adapter writing posts into posts.
func New(cfg Config, posts radar.PostStore, logger *zap.Logger) (*Adapter, error) {
	if cfg.Platform == "" {
		return nil, errors.New("platform is required")
	}
	if !strings.Contains(cfg.Site.SearchURL, "%s") {
		return nil, fmt.Errorf("search url for %s must contain %%s", cfg.Platform)
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		cfg: cfg,
		bag: adapter.NewConfigBag(map[string]any{
			adapter.KeyPlatform:    cfg.Platform,
			adapter.KeyKeywords:    []string{},
			adapter.KeyMaxNotes:    20,
			adapter.KeySaveOption:  "db",
			adapter.KeyLoginType:   "qrcode",
			adapter.KeyCookies:     "",
			adapter.KeyHeadless:    true,
			adapter.KeyCDPHeadless: true,
			adapter.KeyCrawlerType: "search",
		}),
		posts:  posts,
		now:    time.Now,
		logger: logger.Named("headless").With(zap.String("platform", cfg.Platform)),
	}, nil
}

// Platform implements adapter.Adapter.
func (a *Adapter) Platform() string { return a.cfg.Platform }

// Config implements adapter.Adapter.
func (a *Adapter) Config() *adapter.ConfigBag { return a.bag }

// Start crawls every configured keyword and persists the scraped posts.
func (a *Adapter) Start(ctx context.Context) error {
	if mode := a.bag.String(adapter.KeyCrawlerType); mode != "search" {
		return fmt.Errorf("unsupported crawler type %q", mode)
	}
	if opt := a.bag.String(adapter.KeySaveOption); opt != "db" {
		return fmt.Errorf("unsupported save option %q", opt)
	}
	keywords := cleanKeywords(a.bag.Strings(adapter.KeyKeywords))
	if len(keywords) == 0 {
		return errors.New("no keywords configured")
	}
	maxNotes := a.bag.Int(adapter.KeyMaxNotes, 20)
	cookies := cookieParams(radar.ParseCookieHeader(a.bag.String(adapter.KeyCookies)), a.cfg.Site.CookieDomain)
	tc, _ := adapter.TaskFrom(ctx)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", a.bag.Bool(adapter.KeyHeadless, true)),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if a.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(a.cfg.ExecPath))
	}
	if a.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(a.cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	saved := 0
	for _, kw := range keywords {
		if saved >= maxNotes {
			break
		}
		results, err := a.search(browserCtx, kw, cookies, maxNotes-saved)
		if err != nil {
			return err
		}
		posts := toPosts(results, a.cfg.Platform, kw, tc, a.now().Unix())
		if len(posts) == 0 {
			continue
		}
		if err := a.posts.SavePosts(ctx, posts); err != nil {
			return fmt.Errorf("save posts: %w", err)
		}
		saved += len(posts)
		a.logger.Info("keyword crawled",
			zap.String("keyword", kw),
			zap.String("task_id", tc.CrawlingTaskID),
			zap.Int("posts", len(posts)),
		)
	}
	return nil
}

type result struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Author  string `json:"author"`
	Content string `json:"content"`
}

const extractScript = `Array.from(document.querySelectorAll('a[href]'))
	.filter(a => a.innerText && a.innerText.trim().length >= 8)
	.slice(0, %d)
	.map(a => ({id: a.href, title: a.innerText.trim().slice(0, 200), url: a.href, author: '', content: ''}))`

func (a *Adapter) search(ctx context.Context, keyword string, cookies []*network.CookieParam, limit int) ([]result, error) {
	navCtx, cancel := context.WithTimeout(ctx, a.cfg.NavigationTimeout)
	defer cancel()

	var (
		finalURL string
		results  []result
	)
	actions := []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			if err := network.Enable().Do(ctx); err != nil {
				return fmt.Errorf("enable network domain: %w", err)
			}
			if len(cookies) == 0 {
				return nil
			}
			if err := network.SetCookies(cookies).Do(ctx); err != nil {
				return fmt.Errorf("set cookies: %w", err)
			}
			return nil
		}),
		chromedp.Navigate(searchURL(a.cfg.Site.SearchURL, keyword)),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(time.Second),
		chromedp.Location(&finalURL),
		chromedp.Evaluate(fmt.Sprintf(extractScript, limit), &results),
	}
	if err := chromedp.Run(navCtx, actions...); err != nil {
		return nil, fmt.Errorf("chromedp run: %w", err)
	}
	if loginWall(finalURL) {
		return nil, fmt.Errorf("login required: redirected to %s", finalURL)
	}
	return results, nil
}

func searchURL(template, keyword string) string {
	return fmt.Sprintf(template, url.QueryEscape(keyword))
}

func cleanKeywords(in []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, kw := range in {
		kw = strings.TrimSpace(kw)
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		out = append(out, kw)
	}
	return out
}

func cookieParams(cookies map[string]string, domain string) []*network.CookieParam {
	out := make([]*network.CookieParam, 0, len(cookies))
	for _, name := range sortedNames(cookies) {
		out = append(out, &network.CookieParam{
			Name:   name,
			Value:  cookies[name],
			Domain: domain,
			Path:   "/",
		})
	}
	return out
}

func sortedNames(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func loginWall(finalURL string) bool {
	u, err := url.Parse(finalURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	return strings.Contains(path, "login") || strings.Contains(path, "passport") || strings.Contains(path, "signin")
}

func toPosts(results []result, platform, keyword string, tc adapter.TaskContext, now int64) []radar.Post {
	out := make([]radar.Post, 0, len(results))
	seen := map[string]bool{}
	for _, r := range results {
		title := strings.TrimSpace(r.Title)
		if title == "" || r.URL == "" {
			continue
		}
		id := r.ID
		if id == "" {
			id = r.URL
		}
		postID := platform + ":" + md5.Short(id, 16)
		if seen[postID] {
			continue
		}
		seen[postID] = true
		out = append(out, radar.Post{
			PostID:         postID,
			Platform:       platform,
			TopicID:        tc.TopicID,
			CrawlingTaskID: tc.CrawlingTaskID,
			Keyword:        keyword,
			Title:          title,
			URL:            r.URL,
			Author:         r.Author,
			Content:        r.Content,
			CrawledAt:      now,
		})
	}
	return out
}
