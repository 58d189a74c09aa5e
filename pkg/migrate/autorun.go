package migrate

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/toolcrib-backend/pkg/config"
	"github.com/angelmondragon/toolcrib-backend/pkg/db"
	"github.com/angelmondragon/toolcrib-backend/pkg/db/models"
	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
)

// MaybeRunDev executes migrations automatically when the app is running in dev mode and
// the feature flag is enabled. sqlite databases are brought up with GORM AutoMigrate.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	meta := map[string]any{"env": cfg.App.Env, "dir": DefaultDir, "dialect": client.Dialect()}
	ctx = logg.WithFields(ctx, meta)

	if client.Dialect() == db.DialectSQLite {
		logg.Info(ctx, "running AutoMigrate (dev sqlite)")
		return AutoMigrateModels(client.DB())
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	logg.Info(ctx, "running Goose migrations (dev auto-run)")
	if err := Run(ctx, sqlDB, DefaultDir, "up", logg); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	logg.Info(ctx, "Goose migrations completed")
	return nil
}

// AutoMigrateModels creates every table the service needs. Used for sqlite and tests.
func AutoMigrateModels(conn *gorm.DB) error {
	if err := conn.AutoMigrate(
		&models.Tool{},
		&models.ToolRequest{},
		&models.Notification{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
