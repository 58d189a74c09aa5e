package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/toolcrib-backend/api/routes"
	"github.com/angelmondragon/toolcrib-backend/internal/ledger"
	"github.com/angelmondragon/toolcrib-backend/internal/notifications"
	"github.com/angelmondragon/toolcrib-backend/internal/requests"
	"github.com/angelmondragon/toolcrib-backend/internal/reservation"
	"github.com/angelmondragon/toolcrib-backend/internal/tools"
	"github.com/angelmondragon/toolcrib-backend/pkg/config"
	"github.com/angelmondragon/toolcrib-backend/pkg/db"
	"github.com/angelmondragon/toolcrib-backend/pkg/instance"
	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
	"github.com/angelmondragon/toolcrib-backend/pkg/metrics"
	"github.com/angelmondragon/toolcrib-backend/pkg/migrate"
	"github.com/angelmondragon/toolcrib-backend/pkg/outbox"
	"github.com/angelmondragon/toolcrib-backend/pkg/redis"
)

const readHeaderTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.New(logger.Options{ServiceName: "api"}).Error(context.Background(), "api exited", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	if err := godotenv.Load(); err != nil {
		logger.New(logger.Options{ServiceName: "api"}).Warn(ctx, ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "api",
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

	handler, err := buildRouter(cfg, logg, dbClient, redisClient)
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{Addr: ":" + port, Handler: handler, ReadHeaderTimeout: readHeaderTimeout}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     server.Addr,
		"instance": instance.ID(),
	})
	logg.Info(ctx, "starting api server")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logg.Info(ctx, "api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// buildRouter wires the domain services. The coordinator and the tool catalog
// share one ledger so quarantine state is seen by both.
func buildRouter(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (http.Handler, error) {
	reservationMetrics := metrics.NewReservationMetrics(prometheus.DefaultRegisterer)
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		Repository: ledger.NewRepository(dbClient.DB()),
		DB:         dbClient,
		Outbox:     outboxService,
		Metrics:    reservationMetrics,
		Logger:     logg,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}

	inbox, err := notifications.NewService(notifications.ServiceParams{
		Repository:   notifications.NewRepository(dbClient.DB()),
		Logger:       logg,
		Metrics:      reservationMetrics,
		DefaultLimit: cfg.Notifications.DefaultListLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("notifications service: %w", err)
	}

	requestsRepo := requests.NewRepository(dbClient.DB())
	requestService, err := requests.NewService(requestsRepo)
	if err != nil {
		return nil, fmt.Errorf("requests service: %w", err)
	}

	toolService, err := tools.NewService(tools.NewRepository(dbClient.DB()), dbClient, ledgerService, requestsRepo)
	if err != nil {
		return nil, fmt.Errorf("tools service: %w", err)
	}

	coordinator, err := reservation.NewCoordinator(reservation.CoordinatorParams{
		DB:               dbClient,
		Ledger:           ledgerService,
		Requests:         requestsRepo,
		Outbox:           outboxService,
		Notifications:    inbox,
		Metrics:          reservationMetrics,
		Logger:           logg,
		OperationTimeout: cfg.DB.OperationTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("reservation coordinator: %w", err)
	}

	return routes.NewRouter(cfg, logg, dbClient, redisClient, toolService, requestService, coordinator, inbox), nil
}

func closeAndLog(logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.Background(), "close "+name, err)
	}
}
