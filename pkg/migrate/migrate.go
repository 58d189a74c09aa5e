package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strconv"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
)

// DefaultDir is where new migrations are created. Services read the same
// files from the copy embedded at build time.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

func source(dir string) (fs.FS, error) {
	if dir == "" || dir == DefaultDir {
		return fs.Sub(embedded, "migrations")
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("migrations dir: %w", err)
	}
	return os.DirFS(dir), nil
}

// The SQL targets Postgres only; sqlite is handled by AutoMigrateModels.
func newProvider(db *sql.DB, dir string) (*goose.Provider, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	fsys, err := source(dir)
	if err != nil {
		return nil, err
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return provider, nil
}

// Run executes up, down or status against the database.
func Run(ctx context.Context, db *sql.DB, dir, command string, logg *logger.Logger) error {
	provider, err := newProvider(db, dir)
	if err != nil {
		return err
	}
	switch command {
	case "up":
		results, err := provider.Up(ctx)
		logResults(ctx, logg, results...)
		if err != nil {
			return fmt.Errorf("goose up: %w", err)
		}
	case "down":
		result, err := provider.Down(ctx)
		if result != nil {
			logResults(ctx, logg, result)
		}
		if err != nil {
			return fmt.Errorf("goose down: %w", err)
		}
	case "status":
		statuses, err := provider.Status(ctx)
		if err != nil {
			return fmt.Errorf("goose status: %w", err)
		}
		for _, st := range statuses {
			if logg == nil || st.Source == nil {
				continue
			}
			logg.Info(logg.WithFields(ctx, map[string]any{
				"version": st.Source.Version,
				"file":    path.Base(st.Source.Path),
				"state":   string(st.State),
			}), "migration status")
		}
	default:
		return fmt.Errorf("unsupported goose command %q", command)
	}
	return nil
}

// MigrateToVersion moves the schema up or down to target (YYYYMMDDHHMMSS).
func MigrateToVersion(ctx context.Context, db *sql.DB, dir, target string, logg *logger.Logger) error {
	version, err := parseVersion(target)
	if err != nil {
		return err
	}
	provider, err := newProvider(db, dir)
	if err != nil {
		return err
	}
	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case current == version:
		return nil
	case current < version:
		results, err = provider.UpTo(ctx, version)
	default:
		results, err = provider.DownTo(ctx, version)
	}
	logResults(ctx, logg, results...)
	if err != nil {
		return fmt.Errorf("goose migrate %d -> %d: %w", current, version, err)
	}
	return nil
}

func parseVersion(raw string) (int64, error) {
	if raw == "" {
		return 0, errors.New("target version is required")
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || len(raw) != len(versionLayout) {
		return 0, fmt.Errorf("invalid version %q, want %s", raw, versionLayout)
	}
	return version, nil
}

func logResults(ctx context.Context, logg *logger.Logger, results ...*goose.MigrationResult) {
	if logg == nil {
		return
	}
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		logg.Info(logg.WithFields(ctx, map[string]any{
			"version":     res.Source.Version,
			"file":        path.Base(res.Source.Path),
			"direction":   res.Direction,
			"duration_ms": res.Duration.Milliseconds(),
		}), "migration applied")
	}
}
