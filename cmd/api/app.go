package main

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/spec-kit/guestpass-service/internal/api/http/handlers"
	"github.com/spec-kit/guestpass-service/internal/cache"
	"github.com/spec-kit/guestpass-service/internal/config"
	"github.com/spec-kit/guestpass-service/internal/events"
	"github.com/spec-kit/guestpass-service/internal/executor"
	"github.com/spec-kit/guestpass-service/internal/notifier"
	"github.com/spec-kit/guestpass-service/internal/observability"
	"github.com/spec-kit/guestpass-service/internal/persistence"
	"github.com/spec-kit/guestpass-service/internal/repository"
	"github.com/spec-kit/guestpass-service/internal/service"
	"github.com/spec-kit/guestpass-service/internal/worker"
)

// application holds the wired service graph shared by every command.
type application struct {
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *observability.Metrics
	lifecycle *service.LifecycleService
	scheduler *worker.Scheduler
	health    map[string]handlers.Pinger
	closers   []func()
}

func loadConfigAndLogger() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

func buildApplication(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*application, error) {
	app := &application{
		cfg:     cfg,
		logger:  logger,
		metrics: observability.NewMetrics(),
		health:  map[string]handlers.Pinger{},
	}

	var registrations repository.RegistrationRepository
	if cfg.Postgres.DSN != "" {
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		app.closers = append(app.closers, pg.Close)
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				app.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		registrations = repository.NewRegistrationRepository(pg.PoolHandle())
		app.health["postgres"] = pg
		if err := app.metrics.Register(pg.Collector()); err != nil {
			logger.Warn("pool metrics not registered", zap.Error(err))
		}
	} else {
		logger.Warn("POSTGRES_DSN not set, registrations are kept in memory")
		registrations = repository.NewInMemoryRegistrationRepository(nil)
	}

	lock := cache.NewLocalLock()
	ledger := cache.NewMemoryLedger()
	rdb := persistence.NewRedis(ctx, cfg.Redis, logger)
	app.closers = append(app.closers, rdb.Close)
	if rdb.Available() {
		lock = cache.NewRedisLock(rdb.Client)
		ledger = cache.NewRedisLedger(rdb.Client)
		app.health["redis"] = rdb
	}

	var exec executor.SubmissionExecutor
	if cfg.Portal.DryRun {
		logger.Info("portal dry run enabled, submissions are not sent")
		exec = executor.NewDryRunExecutor(logger)
	} else {
		exec = executor.NewPortalExecutor(cfg.Portal, &http.Client{Timeout: cfg.Lifecycle.SubmissionTimeout()}, logger)
	}

	var notify notifier.Notifier = notifier.NewLogNotifier(logger)
	if cfg.Notification.WebhookURL != "" {
		notify = notifier.NewWebhookNotifier(cfg.Notification.WebhookURL, &http.Client{Timeout: cfg.Notification.WebhookTimeout()})
	}

	dispatcher := events.NewInMemoryDispatcher(logger)
	notifications := service.NewNotificationService(service.NotificationDependencies{
		Notifier:   notify,
		Dispatcher: dispatcher,
		Metrics:    app.metrics,
		Logger:     logger,
	})
	notifications.RegisterHandlers()

	app.lifecycle = service.NewLifecycleService(cfg.Lifecycle, service.LifecycleDependencies{
		RegistrationRepo: registrations,
		Executor:         exec,
		Lock:             lock,
		Dispatcher:       dispatcher,
		Metrics:          app.metrics,
		Logger:           logger,
	})

	scheduler, err := worker.NewScheduler(worker.NewJobs(cfg.Scheduler, worker.JobDependencies{
		Lifecycle:     app.lifecycle,
		Notifications: notifications,
		Ledger:        ledger,
		Metrics:       app.metrics,
		Logger:        logger,
	}), logger, app.metrics)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("build scheduler: %w", err)
	}
	app.scheduler = scheduler
	return app, nil
}

// Close releases connections in reverse order of acquisition.
func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
