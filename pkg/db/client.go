package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/toolcrib-backend/pkg/config"
	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// Client owns the pooled GORM connection and the transaction policy every
// ledger write goes through.
type Client struct {
	conn        *gorm.DB
	dialect     string
	lockTimeout time.Duration
}

func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database DSN is required")
	}

	dialect, dialector := DialectPostgres, gorm.Dialector(nil)
	if cfg.IsSQLite() {
		dialect, dialector = DialectSQLite, sqlite.Open(cfg.DSN)
	} else {
		// Simple protocol keeps pgbouncer in transaction mode happy.
		dialector = postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true})
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 queryLogger(logg, cfg.SlowQueryThreshold),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("opening db connection: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql db handle: %w", err)
	}
	configurePool(sqlDB, cfg)

	if logg != nil {
		logg.Info(logg.WithField(ctx, "dialect", dialect), "database connection established")
	}
	return &Client{conn: conn, dialect: dialect, lockTimeout: cfg.LockTimeout}, nil
}

// NewWithConn wraps a connection opened elsewhere, typically by tests.
func NewWithConn(conn *gorm.DB, lockTimeout time.Duration) *Client {
	dialect := DialectPostgres
	if conn != nil && conn.Dialector != nil && conn.Dialector.Name() == DialectSQLite {
		dialect = DialectSQLite
	}
	return &Client{conn: conn, dialect: dialect, lockTimeout: lockTimeout}
}

// queryLogger reports slow statements and driver errors through the service
// logger. Missing rows are normal lookups and stay quiet.
func queryLogger(logg *logger.Logger, slow time.Duration) gormlogger.Interface {
	if logg == nil {
		return gormlogger.Discard
	}
	level := gormlogger.Warn
	if slow <= 0 {
		level = gormlogger.Error
	}
	return gormlogger.New(gormWriter{logg: logg}, gormlogger.Config{
		SlowThreshold:             slow,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		ParameterizedQueries:      true,
	})
}

type gormWriter struct {
	logg *logger.Logger
}

func (w gormWriter) Printf(format string, args ...any) {
	w.logg.Warn(w.logg.WithField(context.Background(), "component", "gorm"), fmt.Sprintf(format, args...))
}

func configurePool(sqlDB *sql.DB, cfg config.DBConfig) {
	if cfg.IsSQLite() {
		// sqlite has one writer; a single connection turns SQLITE_BUSY into queueing.
		sqlDB.SetMaxOpenConns(1)
		return
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
}

func (c *Client) DB() *gorm.DB { return c.conn }

func (c *Client) Dialect() string { return c.dialect }

func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (c *Client) Close() error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn in one transaction: committed when fn returns nil, rolled
// back on error or panic. On Postgres a SET LOCAL lock_timeout makes a
// contended tool row fail fast as busy instead of queueing the request.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if c.dialect == DialectPostgres && c.lockTimeout > 0 {
			if err := tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", c.lockTimeout.Milliseconds())).Error; err != nil {
				return fmt.Errorf("set lock timeout: %w", err)
			}
		}
		return fn(tx)
	})
}
