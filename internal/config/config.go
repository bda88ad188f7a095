// Package config loads and validates radar configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/hotlist-radar/internal/candidate"
	"github.com/JakeFAU/hotlist-radar/internal/cookie"
	"github.com/JakeFAU/hotlist-radar/internal/dispatcher"
	"github.com/JakeFAU/hotlist-radar/internal/signal"
)

// Storage and queue providers.
const (
	ProviderMemory   = "memory"
	ProviderPostgres = "postgres"
	ProviderRedis    = "redis"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	Auth       AuthConfig        `mapstructure:"auth"`
	Logging    LoggingConfig     `mapstructure:"logging"`
	Storage    StorageConfig     `mapstructure:"storage"`
	Queue      QueueConfig       `mapstructure:"queue"`
	Sources    SourcesConfig     `mapstructure:"sources"`
	Signal     signal.Thresholds `mapstructure:"signal"`
	Candidate  CandidateConfig   `mapstructure:"candidate"`
	Dispatcher DispatcherConfig  `mapstructure:"dispatcher"`
	Health     HealthConfig      `mapstructure:"health"`
	Alert      AlertConfig       `mapstructure:"alert"`
	Headless   HeadlessConfig    `mapstructure:"headless"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// StorageConfig selects and tunes the record stores.
type StorageConfig struct {
	Provider        string        `mapstructure:"provider"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

// QueueConfig selects the task queue transport.
type QueueConfig struct {
	Provider string `mapstructure:"provider"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// SourcesConfig points at the declarative source files.
type SourcesConfig struct {
	Dir         string `mapstructure:"dir"`
	WeightsFile string `mapstructure:"weights_file"`
}

// CandidateConfig adds scheduling to the lifecycle settings.
type CandidateConfig struct {
	candidate.Config `mapstructure:",squash"`
	CycleInterval    time.Duration `mapstructure:"cycle_interval"`
	SignalWindow     time.Duration `mapstructure:"signal_window"`
}

// DispatcherConfig adds an on/off switch to the dispatcher settings.
type DispatcherConfig struct {
	dispatcher.Config `mapstructure:",squash"`
	Enabled           bool `mapstructure:"enabled"`
}

// HealthConfig tunes the cookie health probe.
type HealthConfig struct {
	Timeout   time.Duration     `mapstructure:"timeout"`
	UserAgent string            `mapstructure:"user_agent"`
	Endpoints map[string]string `mapstructure:"endpoints"`
}

// AlertConfig configures operator alert delivery.
type AlertConfig struct {
	WebhookURL  string        `mapstructure:"webhook_url"`
	Secret      string        `mapstructure:"secret"`
	MinInterval time.Duration `mapstructure:"min_interval"`
}

// HeadlessConfig configures the chromedp deep-crawl adapters.
type HeadlessConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Headless   bool          `mapstructure:"headless"`
	ExecPath   string        `mapstructure:"exec_path"`
	UserAgent  string        `mapstructure:"user_agent"`
	NavTimeout time.Duration `mapstructure:"nav_timeout"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RADAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("logging.development", true)

	v.SetDefault("storage.provider", ProviderMemory)
	v.SetDefault("storage.max_conns", 10)
	v.SetDefault("storage.min_conns", 1)
	v.SetDefault("storage.max_conn_lifetime", time.Hour)
	v.SetDefault("storage.migrate", true)

	v.SetDefault("queue.provider", ProviderMemory)
	v.SetDefault("queue.addr", "localhost:6379")
	v.SetDefault("queue.prefix", "radar:queue")

	v.SetDefault("sources.dir", "config/sources")
	v.SetDefault("sources.weights_file", "")

	th := signal.DefaultThresholds()
	v.SetDefault("signal.velocity_min_hot_value", th.VelocityMinHot)
	v.SetDefault("signal.velocity_growth_rate", th.VelocityGrowth)
	v.SetDefault("signal.new_entry_max_age_seconds", th.NewEntryMaxAge)
	v.SetDefault("signal.new_entry_min_hot_value", th.NewEntryMinHot)
	v.SetDefault("signal.new_entry_max_position", th.NewEntryMaxPos)
	v.SetDefault("signal.position_jump_min", th.PositionMinJump)
	v.SetDefault("signal.cross_min_shared_keywords", th.CrossMinKeywords)
	v.SetDefault("signal.cross_min_platforms", th.CrossMinPlatforms)
	v.SetDefault("signal.cross_keyword_noise_cap", th.CrossKeywordCap)

	cc := candidate.DefaultConfig()
	v.SetDefault("candidate.cycle_interval", 5*time.Minute)
	v.SetDefault("candidate.signal_window", time.Hour)
	v.SetDefault("candidate.overlap_min", cc.OverlapMin)
	v.SetDefault("candidate.decay", cc.Decay)
	v.SetDefault("candidate.admit_max_position", cc.AdmitMaxPos)
	v.SetDefault("candidate.faded_below", cc.FadedBelow)
	v.SetDefault("candidate.closed_below", cc.ClosedBelow)
	v.SetDefault("candidate.rising_at", cc.RisingAt)
	v.SetDefault("candidate.confirmed_at", cc.ConfirmedAt)
	v.SetDefault("candidate.exploded_at", cc.ExplodedAt)
	v.SetDefault("candidate.decline_window", cc.DeclineWindow)
	scales := map[string]any{}
	for status, s := range cc.CrawlScale {
		scales[status] = map[string]any{
			"max_platforms": s.MaxPlatforms,
			"max_notes":     s.MaxNotes,
			"priority":      s.Priority,
		}
	}
	v.SetDefault("candidate.crawl_scale", scales)
	v.SetDefault("candidate.deep_platforms", cc.DeepPlatforms)

	dc := dispatcher.DefaultConfig()
	v.SetDefault("dispatcher.enabled", true)
	v.SetDefault("dispatcher.poll_interval", dc.PollInterval)
	v.SetDefault("dispatcher.health_every", dc.HealthEvery)
	v.SetDefault("dispatcher.max_attempts", dc.MaxAttempts)
	v.SetDefault("dispatcher.backoff", dc.Backoff)
	v.SetDefault("dispatcher.circuit_threshold", dc.CircuitThreshold)
	v.SetDefault("dispatcher.circuit_reset", dc.CircuitReset)
	v.SetDefault("dispatcher.task_timeout", dc.TaskTimeout)
	v.SetDefault("dispatcher.platforms", dc.Platforms)

	v.SetDefault("health.timeout", 10*time.Second)
	v.SetDefault("health.user_agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36")
	v.SetDefault("health.endpoints", cookie.DefaultEndpoints())

	v.SetDefault("alert.min_interval", 300*time.Second)

	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.headless", true)
	v.SetDefault("headless.nav_timeout", 45*time.Second)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Storage.Provider {
	case ProviderMemory:
	case ProviderPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn must be set for the postgres provider")
		}
	default:
		return fmt.Errorf("storage.provider %q is not supported", c.Storage.Provider)
	}
	switch c.Queue.Provider {
	case ProviderMemory:
	case ProviderRedis:
		if c.Queue.Addr == "" {
			return fmt.Errorf("queue.addr must be set for the redis provider")
		}
	default:
		return fmt.Errorf("queue.provider %q is not supported", c.Queue.Provider)
	}
	if c.Signal.VelocityGrowth <= 0 {
		return fmt.Errorf("signal.velocity_growth_rate must be > 0")
	}
	if c.Signal.CrossMinPlatforms < 2 {
		return fmt.Errorf("signal.cross_min_platforms must be >= 2")
	}
	if c.Candidate.CycleInterval <= 0 {
		return fmt.Errorf("candidate.cycle_interval must be > 0")
	}
	if c.Candidate.SignalWindow <= 0 {
		return fmt.Errorf("candidate.signal_window must be > 0")
	}
	if err := c.Candidate.Validate(); err != nil {
		return err
	}
	if err := c.Dispatcher.Validate(); err != nil {
		return err
	}
	if c.Health.Timeout <= 0 {
		return fmt.Errorf("health.timeout must be > 0")
	}
	return nil
}
