package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/toolcrib-backend/internal/cron"
	"github.com/angelmondragon/toolcrib-backend/internal/ledger"
	"github.com/angelmondragon/toolcrib-backend/internal/notifications"
	"github.com/angelmondragon/toolcrib-backend/pkg/config"
	"github.com/angelmondragon/toolcrib-backend/pkg/db"
	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
	"github.com/angelmondragon/toolcrib-backend/pkg/metrics"
	"github.com/angelmondragon/toolcrib-backend/pkg/migrate"
	"github.com/angelmondragon/toolcrib-backend/pkg/outbox"
	"github.com/angelmondragon/toolcrib-backend/pkg/redis"
)

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *once); err != nil && !errors.Is(err, context.Canceled) {
		logger.New(logger.Options{ServiceName: "cron-worker"}).Error(context.Background(), "cron worker exited", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, once bool) error {
	if err := godotenv.Load(); err != nil {
		logger.New(logger.Options{ServiceName: "cron-worker"}).Warn(ctx, ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = "cron-worker"

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

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeAndLog(logg, "redis", redisClient.Close)

	lock, err := cron.NewCronLock(redisClient, cfg.App.Env, cfg.Cron.Interval)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}

	schedule, err := buildSchedule(cfg, logg, dbClient)
	if err != nil {
		return err
	}

	svc, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Schedule: schedule,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"interval":    cfg.Cron.Interval.String(),
		"jobs":        schedule.Names(),
	})

	if once {
		logg.Info(ctx, "running single cron cycle")
		report, err := svc.RunOnce(ctx)
		if err != nil {
			return err
		}
		return report.Err()
	}

	logg.Info(ctx, "cron worker started")
	defer logg.Info(ctx, "cron worker stopped")
	return svc.Run(ctx)
}

// buildSchedule registers the maintenance jobs in run order: reconcile the ledger
// first, then trim notifications and published outbox rows.
func buildSchedule(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Schedule, error) {
	outboxRepo := outbox.NewRepository(dbClient.DB())
	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		Repository: ledger.NewRepository(dbClient.DB()),
		DB:         dbClient,
		Outbox:     outbox.NewService(outboxRepo, logg),
		Metrics:    metrics.NewReservationMetrics(prometheus.DefaultRegisterer),
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}

	reconcile, err := cron.NewLedgerReconcileJob(cron.LedgerReconcileJobParams{
		Logger: logg,
		Ledger: ledgerService,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger reconcile job: %w", err)
	}
	notificationCleanup, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: notifications.NewRepository(dbClient.DB()),
		Retention:  cfg.Cron.NotificationRetentionDays,
	})
	if err != nil {
		return nil, fmt.Errorf("notification cleanup job: %w", err)
	}
	outboxRetention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
		Retention:  cfg.Cron.OutboxRetentionDays,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}

	return cron.NewSchedule(reconcile, notificationCleanup, outboxRetention)
}

func closeAndLog(logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.Background(), "close "+name, err)
	}
}
