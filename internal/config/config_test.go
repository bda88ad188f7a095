package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/hotlist-radar/internal/candidate"
	"github.com/JakeFAU/hotlist-radar/internal/dispatcher"
	"github.com/JakeFAU/hotlist-radar/internal/signal"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Provider != ProviderMemory || cfg.Queue.Provider != ProviderMemory {
		t.Fatalf("expected memory providers, got %q/%q", cfg.Storage.Provider, cfg.Queue.Provider)
	}
	if cfg.Signal != signal.DefaultThresholds() {
		t.Fatalf("expected default thresholds, got %+v", cfg.Signal)
	}
	if cfg.Candidate.Decay != 0.8 || cfg.Candidate.CycleInterval != 5*time.Minute {
		t.Fatalf("unexpected candidate defaults: %+v", cfg.Candidate)
	}
	if got := cfg.Candidate.CrawlScale["exploded"]; got != (candidate.Scale{MaxPlatforms: 7, MaxNotes: 20, Priority: 3}) {
		t.Fatalf("unexpected exploded crawl scale: %+v", got)
	}
	if cfg.Candidate.DeepPlatforms["weibo"] != "wb" {
		t.Fatalf("expected weibo to map to wb, got %+v", cfg.Candidate.DeepPlatforms)
	}
	want := dispatcher.DefaultConfig()
	if cfg.Dispatcher.MaxAttempts != want.MaxAttempts || cfg.Dispatcher.CircuitReset != 1800*time.Second {
		t.Fatalf("unexpected dispatcher defaults: %+v", cfg.Dispatcher)
	}
	if len(cfg.Dispatcher.Backoff) != 3 || cfg.Dispatcher.Backoff[2] != 480*time.Second {
		t.Fatalf("unexpected backoff: %v", cfg.Dispatcher.Backoff)
	}
	if cfg.Alert.MinInterval != 300*time.Second {
		t.Fatalf("expected 300s alert interval, got %v", cfg.Alert.MinInterval)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
storage:
  provider: postgres
  dsn: postgres://radar@localhost/radar
  max_conns: 20
queue:
  provider: redis
  addr: redis:6379
  prefix: test:queue
signal:
  velocity_growth_rate: 0.3
  cross_min_platforms: 4
candidate:
  cycle_interval: 1m
  decay: 0.9
  crawl_scale:
    confirmed:
      max_platforms: 3
      max_notes: 10
      priority: 2
dispatcher:
  enabled: false
  backoff: [60s, 90s]
  platforms: [wb, bili]
alert:
  webhook_url: https://hooks.example.com/radar
headless:
  enabled: true
  nav_timeout: 30s
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Storage.Provider != ProviderPostgres || cfg.Storage.MaxConns != 20 {
		t.Fatalf("expected storage overrides to apply: %+v", cfg.Storage)
	}
	if cfg.Queue.Addr != "redis:6379" || cfg.Queue.Prefix != "test:queue" {
		t.Fatalf("expected queue overrides to apply: %+v", cfg.Queue)
	}
	if cfg.Signal.VelocityGrowth != 0.3 || cfg.Signal.CrossMinPlatforms != 4 {
		t.Fatalf("expected signal overrides to apply: %+v", cfg.Signal)
	}
	if cfg.Signal.VelocityMinHot != 10000 {
		t.Fatalf("expected untouched thresholds to keep defaults, got %d", cfg.Signal.VelocityMinHot)
	}
	if cfg.Candidate.CycleInterval != time.Minute || cfg.Candidate.Decay != 0.9 {
		t.Fatalf("expected candidate overrides to apply: %+v", cfg.Candidate)
	}
	if _, ok := cfg.Candidate.CrawlScale["confirmed"]; !ok {
		t.Fatalf("expected confirmed crawl scale: %+v", cfg.Candidate.CrawlScale)
	}
	if cfg.Dispatcher.Enabled {
		t.Fatalf("expected dispatcher to be disabled")
	}
	if len(cfg.Dispatcher.Backoff) != 2 || cfg.Dispatcher.Backoff[1] != 90*time.Second {
		t.Fatalf("expected backoff override, got %v", cfg.Dispatcher.Backoff)
	}
	if strings.Join(cfg.Dispatcher.Platforms, ",") != "wb,bili" {
		t.Fatalf("expected platform override, got %v", cfg.Dispatcher.Platforms)
	}
	if !cfg.Headless.Enabled || cfg.Headless.NavTimeout != 30*time.Second {
		t.Fatalf("expected headless overrides to apply: %+v", cfg.Headless)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("RADAR_QUEUE_PROVIDER", "redis")
	t.Setenv("RADAR_DISPATCHER_MAX_ATTEMPTS", "5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Queue.Provider != ProviderRedis {
		t.Fatalf("expected redis queue from env, got %q", cfg.Queue.Provider)
	}
	if cfg.Dispatcher.MaxAttempts != 5 {
		t.Fatalf("expected max attempts 5 from env, got %d", cfg.Dispatcher.MaxAttempts)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func validConfig() Config {
	return Config{
		Server:     ServerConfig{Port: 8080},
		Storage:    StorageConfig{Provider: ProviderMemory},
		Queue:      QueueConfig{Provider: ProviderMemory},
		Signal:     signal.DefaultThresholds(),
		Candidate:  CandidateConfig{Config: candidate.DefaultConfig(), CycleInterval: time.Minute, SignalWindow: time.Hour},
		Dispatcher: DispatcherConfig{Config: dispatcher.DefaultConfig()},
		Health:     HealthConfig{Timeout: time.Second},
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid base config, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "auth missing api key", mutate: func(c *Config) { c.Auth.Enabled = true }, want: "auth.api_key"},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Provider = "mongo" }, want: "storage.provider"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Storage.Provider = ProviderPostgres }, want: "storage.dsn"},
		{name: "unknown queue", mutate: func(c *Config) { c.Queue.Provider = "kafka" }, want: "queue.provider"},
		{
			name: "redis without addr",
			mutate: func(c *Config) {
				c.Queue.Provider = ProviderRedis
				c.Queue.Addr = ""
			},
			want: "queue.addr",
		},
		{name: "cross platforms", mutate: func(c *Config) { c.Signal.CrossMinPlatforms = 1 }, want: "signal.cross_min_platforms"},
		{name: "cycle interval", mutate: func(c *Config) { c.Candidate.CycleInterval = 0 }, want: "candidate.cycle_interval"},
		{name: "signal window", mutate: func(c *Config) { c.Candidate.SignalWindow = 0 }, want: "candidate.signal_window"},
		{name: "candidate decay", mutate: func(c *Config) { c.Candidate.Decay = 1 }, want: "candidate.decay"},
		{name: "dispatcher backoff", mutate: func(c *Config) { c.Dispatcher.Backoff = nil }, want: "dispatcher.backoff"},
		{name: "health timeout", mutate: func(c *Config) { c.Health.Timeout = 0 }, want: "health.timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
