package candidate

import (
	"fmt"

	"github.com/JakeFAU/hotlist-radar/internal/radar"
)

// Scale bounds the crawl tasks emitted when a candidate enters a status.
type Scale struct {
	MaxPlatforms int `mapstructure:"max_platforms"`
	MaxNotes     int `mapstructure:"max_notes"`
	Priority     int `mapstructure:"priority"`
}

// Config tunes clustering, scoring and the lifecycle state machine.
type Config struct {
	OverlapMin    float64           `mapstructure:"overlap_min"`
	Decay         float64           `mapstructure:"decay"`
	AdmitMaxPos   int               `mapstructure:"admit_max_position"`
	FadedBelow    float64           `mapstructure:"faded_below"`
	ClosedBelow   float64           `mapstructure:"closed_below"`
	RisingAt      float64           `mapstructure:"rising_at"`
	ConfirmedAt   float64           `mapstructure:"confirmed_at"`
	ExplodedAt    float64           `mapstructure:"exploded_at"`
	DeclineWindow int               `mapstructure:"decline_window"`
	CrawlScale    map[string]Scale  `mapstructure:"crawl_scale"`
	DeepPlatforms map[string]string `mapstructure:"deep_platforms"`
}

// DefaultConfig returns the stock lifecycle settings.
func DefaultConfig() Config {
	return Config{
		OverlapMin:    0.6,
		Decay:         0.8,
		AdmitMaxPos:   10,
		FadedBelow:    100,
		ClosedBelow:   300,
		RisingAt:      1500,
		ConfirmedAt:   4000,
		ExplodedAt:    10000,
		DeclineWindow: 4,
		CrawlScale: map[string]Scale{
			string(radar.StatusExploded): {MaxPlatforms: 7, MaxNotes: 20, Priority: 3},
		},
		DeepPlatforms: DefaultDeepPlatforms(),
	}
}

// DefaultDeepPlatforms maps surface platform names to deep-crawler codes.
func DefaultDeepPlatforms() map[string]string {
	return map[string]string{
		"weibo":       "wb",
		"bilibili":    "bili",
		"zhihu":       "zhihu",
		"douyin":      "dy",
		"kuaishou":    "ks",
		"xiaohongshu": "xhs",
		"tieba":       "tieba",
	}
}

// Validate enforces sane thresholds.
func (c Config) Validate() error {
	if c.OverlapMin <= 0 || c.OverlapMin > 1 {
		return fmt.Errorf("candidate.overlap_min must be within (0, 1]")
	}
	if c.Decay <= 0 || c.Decay >= 1 {
		return fmt.Errorf("candidate.decay must be within (0, 1)")
	}
	if c.DeclineWindow < 2 {
		return fmt.Errorf("candidate.decline_window must be >= 2")
	}
	if !(c.FadedBelow <= c.ClosedBelow && c.RisingAt < c.ConfirmedAt && c.ConfirmedAt < c.ExplodedAt) {
		return fmt.Errorf("candidate thresholds must be ordered")
	}
	for status, s := range c.CrawlScale {
		if s.MaxPlatforms <= 0 {
			return fmt.Errorf("candidate.crawl_scale.%s.max_platforms must be > 0", status)
		}
	}
	return nil
}
