// Package server provides the core application server and dependency injection.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/hotlist-radar/internal/adapter"
	"github.com/JakeFAU/hotlist-radar/internal/adapter/headless"
	"github.com/JakeFAU/hotlist-radar/internal/alert"
	"github.com/JakeFAU/hotlist-radar/internal/api"
	"github.com/JakeFAU/hotlist-radar/internal/candidate"
	"github.com/JakeFAU/hotlist-radar/internal/clock/system"
	"github.com/JakeFAU/hotlist-radar/internal/config"
	"github.com/JakeFAU/hotlist-radar/internal/cookie"
	"github.com/JakeFAU/hotlist-radar/internal/dispatcher"
	"github.com/JakeFAU/hotlist-radar/internal/id/uuid"
	"github.com/JakeFAU/hotlist-radar/internal/ingest"
	"github.com/JakeFAU/hotlist-radar/internal/logging"
	queueMemory "github.com/JakeFAU/hotlist-radar/internal/queue/memory"
	queueRedis "github.com/JakeFAU/hotlist-radar/internal/queue/redis"
	"github.com/JakeFAU/hotlist-radar/internal/radar"
	"github.com/JakeFAU/hotlist-radar/internal/reader"
	detect "github.com/JakeFAU/hotlist-radar/internal/signal"
	"github.com/JakeFAU/hotlist-radar/internal/sources"
	memoryStorage "github.com/JakeFAU/hotlist-radar/internal/storage/memory"
	pgstore "github.com/JakeFAU/hotlist-radar/internal/storage/postgres"
	"github.com/JakeFAU/hotlist-radar/internal/telemetry"
	"github.com/JakeFAU/hotlist-radar/internal/tokenize"
	"github.com/JakeFAU/hotlist-radar/internal/worker"
)

// ServiceName identifies the process in traces and logs.
const ServiceName = "hotlist-radar"

// Stores groups the record stores selected by storage.provider.
type Stores struct {
	Raw        radar.RawStore
	Signals    radar.SignalStore
	Candidates radar.CandidateStore
	Tasks      radar.TaskStore
	Cookies    radar.CookieStore
	Posts      radar.PostStore
}

// App contains the application's dependencies.
type App struct {
	cfg            *config.Config
	logger         *zap.Logger
	clock          radar.Clock
	stores         Stores
	queue          radar.TaskQueue
	registry       *sources.Registry
	pipeline       *ingest.Pipeline
	detector       *detect.Detector
	manager        *candidate.Manager
	dispatch       *dispatcher.Dispatcher
	apiServer      *api.Server
	pool           *pgxpool.Pool
	redis          *goredis.Client
	ready          []api.ReadinessCheck
	tracerShutdown func(context.Context) error
	closeOnce      sync.Once
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	// Define a struct for logging only non-sensitive config fields
	type SanitizedConfig struct {
		ServerPort int    `json:"server_port"`
		Storage    string `json:"storage"`
		Queue      string `json:"queue"`
		Dispatcher bool   `json:"dispatcher"`
		Headless   bool   `json:"headless"`
	}
	safeCfg := SanitizedConfig{
		ServerPort: cfg.Server.Port,
		Storage:    cfg.Storage.Provider,
		Queue:      cfg.Queue.Provider,
		Dispatcher: cfg.Dispatcher.Enabled,
		Headless:   cfg.Headless.Enabled,
	}
	logger.Info("Creating application", zap.Any("config", safeCfg))
	return &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
	}, nil
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Pipeline returns the ingestion pipeline.
func (a *App) Pipeline() *ingest.Pipeline {
	return a.pipeline
}

// IngestBatch writes one batch of observations for a source.
func (a *App) IngestBatch(ctx context.Context, items []radar.Item, sourceName string) (ingest.BatchResult, error) {
	return a.pipeline.IngestBatch(ctx, items, sourceName)
}

// Registry returns the loaded source registry.
func (a *App) Registry() *sources.Registry {
	return a.registry
}

// Queue returns the dispatch queue.
func (a *App) Queue() radar.TaskQueue {
	return a.queue
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		a.logger.Info("candidate manager started", zap.Duration("interval", a.cfg.Candidate.CycleInterval))
		a.manager.Run(ctx, a.cfg.Candidate.CycleInterval)
	}()

	dispatchDone := make(chan struct{})
	if a.dispatch != nil {
		go func() {
			defer close(dispatchDone)
			a.dispatch.Run(ctx)
		}()
	} else {
		close(dispatchDone)
		a.logger.Info("dispatcher disabled")
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if a.dispatch != nil {
		a.dispatch.Stop()
	}
	<-dispatchDone

	return a.Close(shutdownCtx)
}

// Detect runs the per-source detectors over every enabled source, then the
// cross-platform detector, and returns the number of signals written.
func (a *App) Detect(ctx context.Context) (int, error) {
	since := a.since()
	total := 0
	for _, src := range a.registry.Enabled() {
		signals, err := a.detector.DetectSource(ctx, src.Collection(), src.Name, since)
		if err != nil {
			return total, fmt.Errorf("detect %s: %w", src.Name, err)
		}
		total += len(signals)
	}
	cross, err := a.detector.DetectCrossPlatform(ctx, since)
	if err != nil {
		return total, fmt.Errorf("detect cross platform: %w", err)
	}
	return total + len(cross), nil
}

// Cycle runs a single candidate cycle.
func (a *App) Cycle(ctx context.Context) (candidate.CycleReport, error) {
	return a.manager.RunCycle(ctx)
}

// Close gracefully shuts down the application. Calls after the first are no-ops.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.closeInfrastructure()
		a.closeObservability(ctx)
		a.logger.Info("shutdown complete")
	})
	return nil
}

func (a *App) closeInfrastructure() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis client close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if err := a.logger.Sync(); err != nil {
		a.logger.Warn("logger sync failed", zap.Error(err))
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
}

func (a *App) since() int64 {
	return a.clock.Now().Add(-a.cfg.Candidate.SignalWindow).Unix()
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}

	tp, err := telemetry.InitTracerProvider(ctx, ServiceName)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracerShutdown = tp.Shutdown

	app.logger.Info("building application dependencies")
	if err = setupStores(ctx, app); err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	if err = setupQueue(ctx, app); err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	if err = setupPipeline(app); err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	if err = setupDispatcher(app); err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	app.apiServer = api.NewServer(api.Deps{
		Tasks:      app.stores.Tasks,
		Queue:      app.queue,
		Candidates: app.stores.Candidates,
		Cookies:    app.stores.Cookies,
		Posts:      app.stores.Posts,
		Ingest:     app.pipeline,
		IDs:        uuid.New(),
		Clock:      app.clock,
		Ready:      app.ready,
	}, *cfg, logger)

	return app, nil
}

func setupStores(ctx context.Context, app *App) error {
	switch app.cfg.Storage.Provider {
	case config.ProviderPostgres:
		app.logger.Info("using postgres storage backend")
		pool, err := pgstore.Connect(ctx, pgstore.Config{
			DSN:             app.cfg.Storage.DSN,
			MaxConns:        app.cfg.Storage.MaxConns,
			MinConns:        app.cfg.Storage.MinConns,
			MaxConnLifetime: app.cfg.Storage.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("postgres init failed: %w", err)
		}
		app.pool = pool
		if app.cfg.Storage.Migrate {
			if err := pgstore.Migrate(ctx, pool); err != nil {
				return fmt.Errorf("postgres migrate failed: %w", err)
			}
			app.logger.Info("postgres schema migrated")
		}
		app.stores = Stores{
			Raw:        pgstore.NewRawStore(pool),
			Signals:    pgstore.NewSignalStore(pool),
			Candidates: pgstore.NewCandidateStore(pool),
			Tasks:      pgstore.NewTaskStore(pool),
			Cookies:    pgstore.NewCookieStore(pool),
			Posts:      pgstore.NewPostStore(pool),
		}
		app.ready = append(app.ready, pool.Ping)
	default:
		app.logger.Info("using in-memory storage backend")
		app.stores = Stores{
			Raw:        memoryStorage.NewRawStore(),
			Signals:    memoryStorage.NewSignalStore(),
			Candidates: memoryStorage.NewCandidateStore(),
			Tasks:      memoryStorage.NewTaskStore(),
			Cookies:    memoryStorage.NewCookieStore(),
			Posts:      memoryStorage.NewPostStore(),
		}
	}
	return nil
}

func setupQueue(ctx context.Context, app *App) error {
	switch app.cfg.Queue.Provider {
	case config.ProviderRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     app.cfg.Queue.Addr,
			Password: app.cfg.Queue.Password,
			DB:       app.cfg.Queue.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("redis ping failed: %w", err)
		}
		app.redis = client
		app.queue = queueRedis.New(client, app.cfg.Queue.Prefix, app.clock.Now)
		app.ready = append(app.ready, func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		app.logger.Info("using redis task queue",
			zap.String("addr", app.cfg.Queue.Addr),
			zap.String("prefix", app.cfg.Queue.Prefix),
		)
	default:
		app.queue = queueMemory.NewQueue(app.clock.Now)
		app.logger.Info("using in-memory task queue")
	}
	return nil
}

func setupPipeline(app *App) error {
	registry, err := loadRegistry(app)
	if err != nil {
		return err
	}
	app.registry = registry

	weights, err := sources.LoadWeights(app.cfg.Sources.WeightsFile)
	if err != nil {
		return fmt.Errorf("platform weights init failed: %w", err)
	}

	var tok radar.Tokenizer
	seg, err := tokenize.NewSegmenter()
	if err != nil {
		app.logger.Warn("gse segmenter unavailable, falling back to whitespace tokenizer", zap.Error(err))
		tok = tokenize.NewWhitespace()
	} else {
		tok = seg
	}

	app.detector = detect.NewDetector(
		reader.New(app.stores.Raw, 0),
		app.stores.Signals,
		tok,
		app.cfg.Signal,
		app.clock,
		app.logger,
	)

	app.pipeline = ingest.New(registry, app.stores.Raw, app.clock, app.logger)
	app.pipeline.AfterIngest(func(ctx context.Context, src sources.Source, res ingest.BatchResult) error {
		_, err := app.detector.DetectSource(ctx, res.Collection, src.Name, app.since())
		return err
	})

	app.manager = candidate.NewManager(candidate.Deps{
		Signals:    app.stores.Signals,
		Candidates: app.stores.Candidates,
		Tasks:      app.stores.Tasks,
		Queue:      app.queue,
		Tokenizer:  tok,
		Weights:    weights,
		IDs:        uuid.New(),
		Clock:      app.clock,
	}, app.cfg.Candidate.Config, app.logger)
	app.manager.BeforeCycle(func(ctx context.Context) error {
		_, err := app.detector.DetectCrossPlatform(ctx, app.since())
		return err
	})
	return nil
}

func loadRegistry(app *App) (*sources.Registry, error) {
	dir := app.cfg.Sources.Dir
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		app.logger.Warn("sources dir not found, starting with no sources", zap.String("dir", dir))
		return sources.NewRegistry()
	}
	registry, err := sources.LoadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("sources init failed: %w", err)
	}
	app.logger.Info("sources loaded", zap.String("dir", dir), zap.Int("enabled", len(registry.Enabled())))
	return registry, nil
}

func setupDispatcher(app *App) error {
	notifiers := []alert.Notifier{alert.NewLog(app.logger)}
	if app.cfg.Alert.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewWebhook(app.cfg.Alert.WebhookURL, app.cfg.Alert.Secret))
		app.logger.Info("webhook alerts enabled")
	}
	alerter := alert.NewManager(app.cfg.Alert.MinInterval, app.clock, app.logger, notifiers...)

	adapters := adapter.NewSet()
	if app.cfg.Headless.Enabled {
		sites := headless.DefaultSites()
		for _, platform := range app.cfg.Dispatcher.Platforms {
			site, ok := sites[platform]
			if !ok {
				app.logger.Warn("no headless site for platform", zap.String("platform", platform))
				continue
			}
			a, err := headless.New(headless.Config{
				Platform:          platform,
				Site:              site,
				ExecPath:          app.cfg.Headless.ExecPath,
				UserAgent:         app.cfg.Headless.UserAgent,
				NavigationTimeout: app.cfg.Headless.NavTimeout,
			}, app.stores.Posts, app.logger)
			if err != nil {
				return fmt.Errorf("headless adapter %s init failed: %w", platform, err)
			}
			adapters.Add(a)
		}
		app.logger.Info("headless adapters registered", zap.Strings("platforms", adapters.Platforms()))
	}

	if !app.cfg.Dispatcher.Enabled {
		return nil
	}

	w := worker.New(adapters, app.stores.Cookies, alerter, worker.Config{
		Headless: app.cfg.Headless.Headless,
	}, app.logger)

	health := cookie.NewHealthChecker(cookie.Config{
		UserAgent: app.cfg.Health.UserAgent,
		Timeout:   app.cfg.Health.Timeout,
		Endpoints: app.cfg.Health.Endpoints,
	})

	app.dispatch = dispatcher.New(dispatcher.Deps{
		Tasks:   app.stores.Tasks,
		Queue:   app.queue,
		Cookies: app.stores.Cookies,
		Worker:  w,
		Health:  health,
		Alerter: alerter,
		Clock:   app.clock,
	}, app.cfg.Dispatcher.Config, app.logger)
	app.logger.Info("dispatcher config",
		zap.Strings("platforms", app.cfg.Dispatcher.Platforms),
		zap.Int("max_attempts", app.cfg.Dispatcher.MaxAttempts),
		zap.Duration("task_timeout", app.cfg.Dispatcher.TaskTimeout),
	)
	return nil
}
