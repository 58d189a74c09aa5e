package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/toolcrib-backend/pkg/config"
	"github.com/angelmondragon/toolcrib-backend/pkg/db"
	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
	"github.com/angelmondragon/toolcrib-backend/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

func main() {
	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "up|down|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	if err := run(context.Background(), opts); err != nil {
		logger.New(logger.Options{ServiceName: "migrate"}).Error(context.Background(), "migrate "+opts.cmd+" failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	// create and validate never open a connection.
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return errors.New("-name is required for create")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			return err
		}
		fmt.Println("created", path)
		return nil
	case "validate":
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return err
		}
		fmt.Println("migrations valid")
		return nil
	case "up", "down", "status", "version":
	default:
		return fmt.Errorf("unknown -cmd %q", opts.cmd)
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": opts.cmd, "dir": opts.dir})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "close database", err)
		}
	}()

	// SQLite has no goose history; the gorm models are the schema.
	if dbClient.Dialect() == db.DialectSQLite {
		if opts.cmd != "up" {
			return errors.New("sqlite databases only support -cmd=up")
		}
		if err := migrate.AutoMigrateModels(dbClient.DB()); err != nil {
			return err
		}
		logg.Info(ctx, "sqlite schema up to date")
		return nil
	}

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	if opts.cmd == "version" {
		if opts.version == "" {
			return errors.New("-version is required for version")
		}
		return migrate.MigrateToVersion(ctx, sqlDB, opts.dir, opts.version, logg)
	}
	return migrate.Run(ctx, sqlDB, opts.dir, opts.cmd, logg)
}
