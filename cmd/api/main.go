package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/glpi-sla-sync/internal/api/http"
	"github.com/spec-kit/glpi-sla-sync/internal/api/http/handlers"
	"github.com/spec-kit/glpi-sla-sync/internal/auth"
	"github.com/spec-kit/glpi-sla-sync/internal/config"
	"github.com/spec-kit/glpi-sla-sync/internal/domain"
	"github.com/spec-kit/glpi-sla-sync/internal/events"
	"github.com/spec-kit/glpi-sla-sync/internal/glpi"
	"github.com/spec-kit/glpi-sla-sync/internal/observability"
	"github.com/spec-kit/glpi-sla-sync/internal/persistence"
	"github.com/spec-kit/glpi-sla-sync/internal/repository"
	"github.com/spec-kit/glpi-sla-sync/internal/service"
	"github.com/spec-kit/glpi-sla-sync/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	crossingRepo := repository.NewCrossingRepository(pool)

	glpiClient := glpi.NewClient(cfg.Sync.GlpiTimeout(), logger)

	syncService := service.NewSyncService(glpiConfigs(cfg.Instances), service.SyncDependencies{
		TicketRepo:   ticketRepo,
		CrossingRepo: crossingRepo,
		Fetcher:      glpiClient,
		Locker:       redis,
		Dispatcher:   dispatcher,
		Metrics:      metrics,
		Logger:       logger,
	})

	notificationService := service.NewNotificationService(cfg.Notification, dispatcher, logger)
	worker.StartNotificationWorker(notificationService)

	tokenManager := auth.NewTokenManager(cfg.Sync.Secret, cfg.Sync.TokenTTLMinutes)
	triggerMiddleware := auth.NewTriggerMiddleware(cfg.Sync.Secret, tokenManager, logger)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: cfg.App.Env == "production",
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:  handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Sync:    handlers.NewSyncHandler(syncService),
		Tickets: handlers.NewTicketsHandler(ticketRepo),
		Trigger: triggerMiddleware,
		Metrics: metrics.Handler(),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

// glpiConfigs maps the env instance blocks to the sync client's config.
func glpiConfigs(instances []config.InstanceConfig) []glpi.Config {
	out := make([]glpi.Config, 0, len(instances))
	for _, inst := range instances {
		out = append(out, glpi.Config{
			Instance:          domain.Instance(inst.Name),
			BaseURL:           inst.BaseURL,
			APIBaseURL:        inst.APIBaseURL,
			AppToken:          inst.AppToken,
			UserToken:         inst.UserToken,
			OAuthClientID:     inst.OAuthClientID,
			OAuthClientSecret: inst.OAuthClientSecret,
			Username:          inst.Username,
			Password:          inst.Password,
		})
	}
	return out
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
