package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/toolcrib-backend/pkg/config"
	"github.com/angelmondragon/toolcrib-backend/pkg/db"
	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
	"github.com/angelmondragon/toolcrib-backend/pkg/metrics"
	"github.com/angelmondragon/toolcrib-backend/pkg/migrate"
	"github.com/angelmondragon/toolcrib-backend/pkg/outbox"
	"github.com/angelmondragon/toolcrib-backend/pkg/outbox/registry"
	"github.com/angelmondragon/toolcrib-backend/pkg/pubsub"
)

const serviceKind = "outbox-publisher"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.New(logger.Options{ServiceName: serviceKind}).Error(context.Background(), "outbox publisher exited", err)
		os.Exit(1)
	}
}

// run wires the publisher and blocks until ctx is canceled. Deferred closes run
// before main decides the exit code.
func run(ctx context.Context) error {
	bootLog := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		bootLog.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = serviceKind

	logg := logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeQuietly(logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	psClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("bootstrap pubsub: %w", err)
	}
	defer closeQuietly(logg, "pubsub", psClient.Close)

	events, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		return fmt.Errorf("event registry: %w", err)
	}

	svc, err := NewService(ServiceParams{
		Config:      cfg,
		Logger:      logg,
		DB:          dbClient,
		PubSub:      psClient,
		Outbox:      outbox.NewRepository(dbClient.DB()),
		Events:      events,
		DeadLetters: outbox.NewDLQRepository(),
		Metrics:     metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return fmt.Errorf("create outbox publisher: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
		"topics":      events.Topics(),
	})
	logg.Info(ctx, "outbox publisher started")
	defer logg.Info(ctx, "outbox publisher stopped")

	return svc.Run(ctx)
}

func closeQuietly(logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.Background(), "close "+name, err)
	}
}
