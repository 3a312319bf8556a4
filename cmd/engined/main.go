package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-engine/internal/config"
	"github.com/spec-kit/helpdesk-engine/internal/events"
	"github.com/spec-kit/helpdesk-engine/internal/observability"
	"github.com/spec-kit/helpdesk-engine/internal/permission"
	"github.com/spec-kit/helpdesk-engine/internal/persistence"
	"github.com/spec-kit/helpdesk-engine/internal/repository"
	"github.com/spec-kit/helpdesk-engine/internal/service"
	"github.com/spec-kit/helpdesk-engine/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.App, cfg.Logger)
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

	store := repository.NewPostgresStore(pg.PoolHandle())
	cache := repository.NewTicketCache(store.Tickets(), redis.Client, cfg.Engine.CacheTTL(), logger)

	metrics := observability.NewMetrics()
	bus := events.NewBus(cfg.Bus.BufferSize, events.DropPolicy(cfg.Bus.DropPolicy), logger)
	defer bus.Close()

	gate := permission.NewGate(cfg.Engine.OrgWideVisibility)

	directory := service.NewDirectoryService(service.DirectoryDependencies{
		Store: store,
	})
	if seeded, err := directory.SeedBaseline(ctx); err != nil {
		logger.Fatal("failed to seed directory baseline", zap.Error(err))
	} else if seeded != nil {
		logger.Info("seeded baseline directory", zap.String("sla_policy_id", seeded.ID))
		if cfg.Engine.DefaultSLAPolicyID == "" {
			cfg.Engine.DefaultSLAPolicyID = seeded.ID
		}
	}

	routing := service.NewRoutingService(service.RoutingDependencies{
		Store:  store,
		Engine: cfg.Engine,
		Logger: logger,
	})
	lifecycle := service.NewLifecycleService(service.LifecycleDependencies{
		Store:   store,
		Cache:   cache,
		Routing: routing,
		Gate:    gate,
		Bus:     bus,
		Logger:  logger,
		Metrics: metrics,
		Engine:  cfg.Engine,
	})

	notifications := service.NewNotificationService(bus, logger, cfg.Notification, metrics)
	notifications.Start()
	defer notifications.Stop()

	escalation := worker.NewEscalationWorker(worker.EscalationDependencies{
		Store:     store,
		Lifecycle: lifecycle,
		Logger:    logger,
		Metrics:   metrics,
		Config:    cfg.Escalation,
	})
	if err := escalation.Start(); err != nil {
		logger.Fatal("failed to start escalation worker", zap.Error(err))
	}
	defer escalation.Stop()

	logger.Info("engine started", zap.String("env", cfg.App.Env))

	waitForShutdown(logger)
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
