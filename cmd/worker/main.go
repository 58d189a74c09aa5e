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

	"github.com/angelmondragon/toolcrib-backend/internal/notifications"
	"github.com/angelmondragon/toolcrib-backend/pkg/config"
	"github.com/angelmondragon/toolcrib-backend/pkg/db"
	"github.com/angelmondragon/toolcrib-backend/pkg/instance"
	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
	"github.com/angelmondragon/toolcrib-backend/pkg/metrics"
	"github.com/angelmondragon/toolcrib-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/toolcrib-backend/pkg/pubsub"
	"github.com/angelmondragon/toolcrib-backend/pkg/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.New(logger.Options{ServiceName: "worker"}).Error(context.Background(), "worker exited", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	if err := godotenv.Load(); err != nil {
		logger.New(logger.Options{ServiceName: "worker"}).Warn(ctx, ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = "worker"

	logg := logger.New(logger.Options{
		ServiceName: cfg.Service.Kind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeAndLog(logg, "database", dbClient.Close)

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeAndLog(logg, "redis", redisClient.Close)

	psClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("bootstrap pubsub: %w", err)
	}
	defer closeAndLog(logg, "pubsub", psClient.Close)

	inbox, err := notifications.NewService(notifications.ServiceParams{
		Repository:   notifications.NewRepository(dbClient.DB()),
		Logger:       logg,
		Metrics:      metrics.NewReservationMetrics(prometheus.DefaultRegisterer),
		DefaultLimit: cfg.Notifications.DefaultListLimit,
	})
	if err != nil {
		return fmt.Errorf("notifications service: %w", err)
	}

	dedupe, err := idempotency.NewManager(redisClient, cfg.Eventing.ConsumerIdempotencyTTL)
	if err != nil {
		return fmt.Errorf("idempotency manager: %w", err)
	}

	backfill, err := notifications.NewConsumer(inbox, psClient.NotificationSubscription(), dedupe, logg)
	if err != nil {
		return fmt.Errorf("notification consumer: %w", err)
	}

	svc, err := NewService(ServiceParams{
		Config:               cfg,
		Logger:               logg,
		DB:                   dbClient,
		Redis:                redisClient,
		PubSub:               psClient,
		NotificationConsumer: backfill,
	})
	if err != nil {
		return fmt.Errorf("worker service: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.ID(),
	})
	logg.Info(ctx, "worker started")
	defer logg.Info(ctx, "worker stopped")

	return svc.Run(ctx)
}

func closeAndLog(logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.Background(), "close "+name, err)
	}
}
