// Package server builds the application graph from configuration and runs it.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-trends/internal/analytics"
	"github.com/JakeFAU/review-trends/internal/api"
	"github.com/JakeFAU/review-trends/internal/clock/system"
	"github.com/JakeFAU/review-trends/internal/config"
	"github.com/JakeFAU/review-trends/internal/crawler"
	"github.com/JakeFAU/review-trends/internal/discovery"
	"github.com/JakeFAU/review-trends/internal/dispatcher"
	"github.com/JakeFAU/review-trends/internal/extractor"
	headlessfetcher "github.com/JakeFAU/review-trends/internal/fetcher/headless"
	"github.com/JakeFAU/review-trends/internal/id/uuid"
	"github.com/JakeFAU/review-trends/internal/metrics"
	"github.com/JakeFAU/review-trends/internal/progress"
	progresssinks "github.com/JakeFAU/review-trends/internal/progress/sinks"
	gcppublisher "github.com/JakeFAU/review-trends/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/review-trends/internal/queue/memory"
	gcsstorage "github.com/JakeFAU/review-trends/internal/storage/gcs"
	localstorage "github.com/JakeFAU/review-trends/internal/storage/local"
	memoryStorage "github.com/JakeFAU/review-trends/internal/storage/memory"
	pgstore "github.com/JakeFAU/review-trends/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/review-trends/internal/storage/sqlite"
	"github.com/JakeFAU/review-trends/internal/store"
	"github.com/JakeFAU/review-trends/internal/telemetry"
)

// App contains the application's dependencies.
type App struct {
	cfg            config.Config
	logger         *zap.Logger
	ids            crawler.IDGenerator
	clock          crawler.Clock
	snapshots      store.SnapshotRepository
	runs           store.RunRepository
	pool           *pgxpool.Pool
	sqlDB          *sql.DB
	tracker        *progress.Tracker
	progressHub    *progress.Hub
	publisher      *gcppublisher.Publisher
	artifacts      crawler.ArtifactStore
	gcsArtifacts   *gcsstorage.BlobStore
	orchestrator   *crawler.Orchestrator
	queue          *queueMemory.Queue
	dispatch       *dispatcher.Dispatcher
	analytics      *analytics.Service
	apiServer      *api.Server
	locations      map[crawler.Platform]api.LocationSource
	tracerShutdown func(context.Context) error
	closeOnce      sync.Once
}

// Build creates the application's dependencies. On error everything built so
// far is released.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{
		cfg:    cfg,
		logger: logger,
		ids:    uuid.New(),
		clock:  system.New(),
	}
	defer func() {
		if err != nil {
			app.closeInfrastructure(context.Background())
		}
	}()
	logger.Info("building application",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("artifacts_backend", cfg.Artifacts.Backend),
		zap.Bool("pubsub_enabled", cfg.PubSub.Enabled),
	)

	metrics.Init()
	if err = app.setupTracing(ctx); err != nil {
		return nil, err
	}
	if err = app.setupStorage(ctx); err != nil {
		return nil, err
	}
	if err = app.setupProgress(ctx); err != nil {
		return nil, err
	}
	if err = app.setupArtifacts(ctx); err != nil {
		return nil, err
	}
	if err = app.setupCrawler(); err != nil {
		return nil, err
	}

	app.queue = queueMemory.NewQueue(cfg.Crawler.QueueDepth)
	app.dispatch = dispatcher.NewPool(app.queue, app.orchestrator, cfg.Crawler.Concurrency, logger.Named("worker"))
	app.analytics = analytics.NewService(app.snapshots, app.clock, logger.Named("analytics"))

	if app.locations, err = app.setupDiscovery(); err != nil {
		return nil, err
	}
	app.apiServer = api.NewServer(api.Deps{
		Runner:    app.orchestrator,
		Queue:     app.dispatch,
		Runs:      app.runs,
		Tracker:   app.tracker,
		Analytics: app.analytics,
		Locations: app.locations,
		BaseURLs: map[crawler.Platform]string{
			crawler.PlatformIFood:   cfg.Platforms.IFood.BaseURL,
			crawler.PlatformAiqfome: cfg.Platforms.Aiqfome.BaseURL,
		},
		IDs:   app.ids,
		Clock: app.clock,
		Ready: app.ready,
	}, cfg, logger.Named("api"))
	return app, nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Runner returns the crawl orchestrator.
func (a *App) Runner() crawler.Runner { return a.orchestrator }

// Report computes the analytics report over the stored history.
func (a *App) Report(ctx context.Context) (analytics.Report, error) {
	return a.analytics.Report(ctx)
}

// Discover resolves city/state into targets for platforms that support it.
func (a *App) Discover(ctx context.Context, platform crawler.Platform, city, state string) ([]crawler.Target, error) {
	source, ok := a.locations[platform]
	if !ok {
		return nil, fmt.Errorf("%w: city/state discovery is not supported for %s", crawler.ErrInvalidRequest, platform)
	}
	targets, err := source.Discover(ctx, city, state)
	if err != nil {
		return nil, fmt.Errorf("discover %s targets: %w", platform, err)
	}
	return targets, nil
}

// BaseURL returns the configured base URL of a platform.
func (a *App) BaseURL(platform crawler.Platform) string {
	switch platform {
	case crawler.PlatformIFood:
		return a.cfg.Platforms.IFood.BaseURL
	case crawler.PlatformAiqfome:
		return a.cfg.Platforms.Aiqfome.BaseURL
	default:
		return ""
	}
}

// NewRunID allocates a crawl run identifier.
func (a *App) NewRunID() (string, error) { return a.ids.NewID() }

// Now returns the application clock's current time.
func (a *App) Now() time.Time { return a.clock.Now() }

// Handler returns the HTTP handler for the API.
func (a *App) Handler() http.Handler { return a.apiServer.Handler() }

// Run starts the workers and HTTP server and blocks until the context is
// canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Crawler.Concurrency))
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
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
	a.queue.Close()
	<-workersDone

	closeErr := a.Close(shutdownCtx)
	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return closeErr
	}
}

// Close releases every resource the App opened. Later calls are no-ops.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		if a.queue != nil {
			a.queue.Close()
		}
		a.closeInfrastructure(ctx)
		if a.tracerShutdown != nil {
			if err := a.tracerShutdown(ctx); err != nil {
				a.logger.Warn("tracer shutdown failed", zap.Error(err))
			}
		}
		a.logger.Info("shutdown complete")
	})
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
	}
	if a.gcsArtifacts != nil {
		if err := a.gcsArtifacts.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.sqlDB != nil {
		if err := a.sqlDB.Close(); err != nil {
			a.logger.Warn("sqlite close failed", zap.Error(err))
		}
	}
}

func (a *App) ready(ctx context.Context) error {
	switch {
	case a.pool != nil:
		if err := a.pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres ping: %w", err)
		}
	case a.sqlDB != nil:
		if err := a.sqlDB.PingContext(ctx); err != nil {
			return fmt.Errorf("sqlite ping: %w", err)
		}
	}
	return nil
}

func (a *App) setupTracing(ctx context.Context) error {
	if !a.cfg.Tracing.Enabled {
		return nil
	}
	exporter, err := telemetry.NewExporter(ctx, telemetry.ExporterConfig{
		GRPCEndpoint: a.cfg.Tracing.GRPCEndpoint,
		HTTPEndpoint: a.cfg.Tracing.HTTPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("tracer init failed: %w", err)
	}
	var opts []sdktrace.TracerProviderOption
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	tp, err := telemetry.InitTracerProvider(ctx, telemetry.ServiceName, opts...)
	if err != nil {
		return fmt.Errorf("tracer init failed: %w", err)
	}
	a.tracerShutdown = tp.Shutdown
	a.logger.Info("tracing enabled", zap.Bool("exporting", exporter != nil))
	return nil
}

func (a *App) setupStorage(ctx context.Context) error {
	switch a.cfg.Storage.Backend {
	case config.BackendPostgres:
		pool, err := pgstore.Connect(ctx, pgstore.Config{DSN: a.cfg.DB.DSN, MaxConns: a.cfg.DB.MaxConns})
		if err != nil {
			return fmt.Errorf("postgres init failed: %w", err)
		}
		a.pool = pool
		if a.cfg.DB.Migrate {
			if err := pgstore.Migrate(ctx, pool); err != nil {
				return fmt.Errorf("postgres migrate failed: %w", err)
			}
		}
		if a.snapshots, err = pgstore.NewSnapshotStoreWithPool(pool, a.ids, a.clock); err != nil {
			return fmt.Errorf("snapshot store init failed: %w", err)
		}
		if a.runs, err = pgstore.NewRunStoreWithPool(pool); err != nil {
			return fmt.Errorf("run store init failed: %w", err)
		}
		a.logger.Info("using postgres storage backend", zap.Bool("migrate", a.cfg.DB.Migrate))
	case config.BackendSQLite:
		db, err := sqlitestore.Open(ctx, a.cfg.Storage.SQLitePath)
		if err != nil {
			return fmt.Errorf("sqlite init failed: %w", err)
		}
		a.sqlDB = db
		if a.snapshots, err = sqlitestore.NewSnapshotStore(db, a.ids, a.clock); err != nil {
			return fmt.Errorf("snapshot store init failed: %w", err)
		}
		if a.runs, err = sqlitestore.NewRunStore(db); err != nil {
			return fmt.Errorf("run store init failed: %w", err)
		}
		a.logger.Info("using sqlite storage backend", zap.String("path", a.cfg.Storage.SQLitePath))
	default:
		a.snapshots = memoryStorage.NewSnapshotStore(a.ids, a.clock)
		a.runs = memoryStorage.NewRunStore()
		a.logger.Info("using in-memory storage backend")
	}
	return nil
}

func (a *App) setupProgress(ctx context.Context) error {
	tracker, err := progress.NewTracker(a.cfg.Progress.RetainedRuns)
	if err != nil {
		return fmt.Errorf("progress tracker init failed: %w", err)
	}
	a.tracker = tracker

	sinkList := []progress.Sink{
		progresssinks.NewStoreSink(a.runs, a.logger.Named("progress_store")),
		progresssinks.NewLogSink(a.logger.Named("progress_log")),
	}
	if promSink, err := progresssinks.NewPrometheusSink(nil); err != nil {
		a.logger.Warn("prometheus progress sink disabled", zap.Error(err))
	} else {
		sinkList = append(sinkList, promSink)
	}
	if a.cfg.PubSub.Enabled {
		a.publisher, err = gcppublisher.New(ctx, gcppublisher.Config{
			ProjectID: a.cfg.PubSub.ProjectID,
			TopicName: a.cfg.PubSub.TopicName,
		}, a.logger.Named("pubsub"))
		if err != nil {
			return fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		sinkList = append(sinkList, progresssinks.NewNotifySink(a.publisher, a.cfg.PubSub.TopicName, a.logger.Named("progress_notify")))
	}
	a.progressHub = progress.NewHub(progress.HubConfig{
		BufferSize: a.cfg.Progress.BufferSize,
		Logger:     a.logger.Named("progress_hub"),
	}, sinkList...)
	a.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("retained_runs", a.cfg.Progress.RetainedRuns),
	)
	return nil
}

func (a *App) setupArtifacts(ctx context.Context) error {
	switch a.cfg.Artifacts.Backend {
	case config.ArtifactsMemory:
		a.artifacts = memoryStorage.NewBlobStore()
	case config.ArtifactsLocal:
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Artifacts.BaseDir})
		if err != nil {
			return fmt.Errorf("local artifact store init failed: %w", err)
		}
		a.artifacts = blobs
	case config.ArtifactsGCS:
		blobs, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: a.cfg.Artifacts.GCSBucket}, a.logger)
		if err != nil {
			return fmt.Errorf("gcs artifact store init failed: %w", err)
		}
		a.gcsArtifacts = blobs
		a.artifacts = blobs
	default:
		return nil
	}
	a.logger.Info("failure artifacts enabled",
		zap.String("backend", a.cfg.Artifacts.Backend),
		zap.Bool("capture_failures", a.cfg.Crawler.CaptureFailures),
	)
	return nil
}

func (a *App) setupCrawler() error {
	browser, err := a.newBrowser()
	if err != nil {
		return err
	}
	extract := extractor.New(extractor.Config{
		NavTimeout:  a.cfg.Crawler.NavTimeout(),
		StepTimeout: a.cfg.Crawler.StepTimeout(),
		Settle:      a.cfg.Crawler.Settle(),
	}, a.logger.Named("extractor"))

	opts := []crawler.Option{crawler.WithEmitter(a.progressHub)}
	if a.artifacts != nil {
		opts = append(opts, crawler.WithArtifacts(a.artifacts))
	}
	a.orchestrator = crawler.NewOrchestrator(
		browser,
		extract,
		a.snapshots,
		a.tracker,
		a.clock,
		crawler.Config{
			TargetsPerSecond: a.cfg.Crawler.TargetsPerSecond,
			CaptureFailures:  a.cfg.Crawler.CaptureFailures,
			ArtifactPrefix:   a.cfg.Artifacts.Prefix,
		},
		a.logger.Named("crawler"),
		opts...,
	)
	a.logger.Info("crawler ready",
		zap.Int("max_sessions", a.cfg.Headless.MaxSessions),
		zap.Duration("nav_timeout", a.cfg.Crawler.NavTimeout()),
		zap.Float64("targets_per_second", a.cfg.Crawler.TargetsPerSecond),
	)
	return nil
}

func (a *App) newBrowser() (crawler.Browser, error) {
	if a.cfg.Headless.Disabled {
		a.logger.Warn("headless browser disabled; crawls will fail to start")
		return headlessfetcher.NewNoop(), nil
	}
	browser, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		MaxSessions:       a.cfg.Headless.MaxSessions,
		UserAgent:         a.cfg.Crawler.UserAgent,
		NavigationTimeout: a.cfg.Crawler.NavTimeout(),
		NoSandbox:         a.cfg.Headless.NoSandbox,
		DisableGPU:        a.cfg.Headless.DisableGPU,
		ExecPath:          a.cfg.Headless.ExecPath,
	}, a.logger.Named("browser"))
	if err != nil {
		return nil, fmt.Errorf("headless browser init failed: %w", err)
	}
	return browser, nil
}

func (a *App) setupDiscovery() (map[crawler.Platform]api.LocationSource, error) {
	listing, err := discovery.NewListingCollector(discovery.Config{
		BaseURL:       a.cfg.Platforms.Aiqfome.BaseURL,
		UserAgent:     a.cfg.Crawler.UserAgent,
		RespectRobots: a.cfg.Discovery.RespectRobots,
		Timeout:       a.cfg.Discovery.Timeout(),
	}, a.logger.Named("discovery"))
	if err != nil {
		return nil, fmt.Errorf("listing discovery init failed: %w", err)
	}
	return map[crawler.Platform]api.LocationSource{crawler.PlatformAiqfome: listing}, nil
}
