package main

import (
	"context"
	"flag"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/toolcrib-backend/internal/tools"
	"github.com/angelmondragon/toolcrib-backend/pkg/config"
	"github.com/angelmondragon/toolcrib-backend/pkg/db"
	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
	"github.com/angelmondragon/toolcrib-backend/pkg/migrate"
)

func main() {
	file := flag.String("file", "config/tools.yaml", "tool catalog to seed")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "seed"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"file": *file,
	})

	f, err := os.Open(*file)
	if err != nil {
		logg.Error(ctx, "failed to open catalog", err)
		os.Exit(1)
	}
	defer f.Close()

	catalog, err := tools.LoadCatalog(f)
	if err != nil {
		logg.Error(ctx, "invalid catalog", err)
		os.Exit(1)
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	result, err := tools.Seed(ctx, tools.NewRepository(dbClient.DB()), catalog)
	if err != nil {
		logg.Error(ctx, "seed failed", err)
		os.Exit(1)
	}
	logg.Info(logg.WithFields(ctx, map[string]any{
		"created": result.Created,
		"skipped": result.Skipped,
	}), "tool catalog seeded")
}
