// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/genre-analyzer/internal/analysis"
	"github.com/JakeFAU/genre-analyzer/internal/api"
	"github.com/JakeFAU/genre-analyzer/internal/callback"
	"github.com/JakeFAU/genre-analyzer/internal/clock/system"
	"github.com/JakeFAU/genre-analyzer/internal/config"
	"github.com/JakeFAU/genre-analyzer/internal/dispatcher"
	"github.com/JakeFAU/genre-analyzer/internal/id/uuid"
	"github.com/JakeFAU/genre-analyzer/internal/metrics"
	"github.com/JakeFAU/genre-analyzer/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/genre-analyzer/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/genre-analyzer/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/genre-analyzer/internal/queue/memory"
	memoryStorage "github.com/JakeFAU/genre-analyzer/internal/storage/memory"
	"github.com/JakeFAU/genre-analyzer/internal/storage/postgres"
	"github.com/JakeFAU/genre-analyzer/internal/worker"
)

// Deps lets callers (mostly tests) replace the services New would build from config.
// Nil fields are built from config.
type Deps struct {
	Store     analysis.Store
	Notifier  analysis.Notifier
	Publisher analysis.Publisher
	Clock     analysis.Clock
}

// App holds all the shared, long-lived services for the application.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	store      analysis.Store
	queue      *queueMemory.Queue
	dispatcher *dispatcher.Dispatcher
	server     *api.Server
	closers    []func()
}

// New builds the application from config.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	return NewWithDeps(ctx, cfg, logger, Deps{})
}

// NewWithDeps builds the application, preferring the provided services over config-built ones.
// It fails fast if a critical service cannot be initialized.
func NewWithDeps(ctx context.Context, cfg config.Config, logger *zap.Logger, deps Deps) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	logger.Info("initializing application services")

	store, err := a.buildStore(ctx, deps.Store)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store

	notifier := deps.Notifier
	if notifier == nil {
		notifierCfg := callback.Config{
			URL:            cfg.Callback.URL,
			SecretKey:      cfg.Callback.SecretKey,
			Timeout:        cfg.Callback.Timeout,
			ReportFailures: cfg.Callback.ReportFailures,
		}
		if cfg.Callback.MaxRPS > 0 {
			notifierCfg.Limiter = ratelimit.New(ratelimit.Config{RPS: cfg.Callback.MaxRPS, Burst: cfg.Callback.Burst})
		}
		httpNotifier, err := callback.NewHTTPNotifier(notifierCfg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init callback notifier: %w", err)
		}
		notifier = httpNotifier
	}
	if cfg.InsecureCallback() {
		logger.Warn("callback url uses plain http; the shared secret travels unencrypted")
	}

	publisher, err := a.buildPublisher(ctx, deps.Publisher)
	if err != nil {
		a.Close()
		return nil, err
	}

	clock := deps.Clock
	if clock == nil {
		clock = system.New()
	}

	a.queue = queueMemory.NewQueue(cfg.Analysis.QueueDepth)
	a.closers = append(a.closers, a.queue.Close)

	workerCfg := worker.Config{
		DelayMin:       cfg.Analysis.DelayMin,
		DelayMax:       cfg.Analysis.DelayMax,
		FetchTimeout:   cfg.Analysis.FetchTimeout,
		NotifyTimeout:  cfg.Callback.Timeout,
		OutcomeTopic:   cfg.PubSub.TopicName,
		ReportFailures: cfg.Callback.ReportFailures,
	}
	idGen := uuid.New()
	workers := make([]*worker.Worker, 0, cfg.Analysis.Workers)
	for i := range cfg.Analysis.Workers {
		workers = append(workers, worker.New(
			a.queue,
			store,
			notifier,
			publisher,
			clock,
			idGen,
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	a.dispatcher = dispatcher.New(a.queue, workers, cfg.Analysis.EnqueueTimeout)
	a.server = api.NewServer(a.dispatcher, store, clock, api.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
	}, logger.Named("api"))
	metrics.Init()

	logger.Info("application services initialized",
		zap.String("store_driver", cfg.Store.Driver),
		zap.Int("workers", cfg.Analysis.Workers),
		zap.Int("queue_depth", cfg.Analysis.QueueDepth),
		zap.Bool("pubsub_enabled", cfg.PubSub.Enabled),
	)
	return a, nil
}

func (a *App) buildStore(ctx context.Context, provided analysis.Store) (analysis.Store, error) {
	if provided != nil {
		return provided, nil
	}
	switch a.cfg.Store.Driver {
	case config.StoreDriverMemory:
		store := memoryStorage.NewStore()
		if a.cfg.Store.SeedFile != "" {
			if err := store.LoadSeedFile(a.cfg.Store.SeedFile); err != nil {
				return nil, fmt.Errorf("init memory store: %w", err)
			}
		}
		a.logger.Info("using in-memory store", zap.String("seed_file", a.cfg.Store.SeedFile))
		return store, nil
	case config.StoreDriverPostgres:
		a.logger.Info("connecting to PostgreSQL")
		gateway, err := postgres.NewGateway(ctx, postgres.GatewayConfig{
			DSN:             a.cfg.DB.DSN,
			Tables:          postgres.DefaultTables(),
			MaxConns:        a.cfg.DB.MaxConns,
			MinConns:        a.cfg.DB.MinConns,
			MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		a.closers = append(a.closers, gateway.Close)
		return gateway, nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", a.cfg.Store.Driver)
	}
}

func (a *App) buildPublisher(ctx context.Context, provided analysis.Publisher) (analysis.Publisher, error) {
	if provided != nil {
		return provided, nil
	}
	if !a.cfg.PubSub.Enabled {
		return memorypublisher.New(), nil
	}
	a.logger.Info("connecting to GCP Pub/Sub", zap.String("topic", a.cfg.PubSub.TopicName))
	pub, err := pubsubpublisher.New(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("init pubsub publisher: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := pub.Close(); err != nil {
			a.logger.Warn("close pubsub publisher failed", zap.Error(err))
		}
	})
	return pub, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Run serves HTTP and runs the worker pool until ctx is canceled, then drains.
// Queued runs get until the shutdown timeout to finish before they are canceled.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	workerCtx, cancelWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWorkers()
	dispatchDone := make(chan struct{})
	go func() {
		a.logger.Info("dispatcher started")
		a.dispatcher.Run(workerCtx)
		close(dispatchDone)
	}()

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serverErr:
		if ok {
			a.logger.Error("http server error", zap.Error(err))
			runErr = fmt.Errorf("http server: %w", err)
		}
	}
	a.logger.Info("shutdown initiated")

	shutdownTimeout := a.cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	a.queue.Close()
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("drain timed out, canceling in-flight runs", zap.Int("queued", a.queue.Len()))
		cancelWorkers()
		<-dispatchDone
	}
	a.logger.Info("shutdown complete")
	return runErr
}

// Close releases the store, publisher and queue.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
