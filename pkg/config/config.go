package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	HTTP          HTTPConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
	Cron          CronConfig
	Notifications NotificationsConfig
	RateLimit     RateLimitConfig
}

// Load reads the process environment, fills the database DSN from its parts
// when only those are set, and rejects settings the services cannot run with.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	dsn, err := cfg.DB.resolveDSN()
	if err != nil {
		return nil, err
	}
	cfg.DB.DSN = dsn
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var problems []string
	check := func(ok bool, env, want string) {
		if !ok {
			problems = append(problems, env+" must be "+want)
		}
	}
	check(c.Outbox.BatchSize > 0, EnvOutboxBatch, "positive")
	check(c.Outbox.MaxAttempts > 0, EnvOutboxAttempts, "positive")
	check(c.Cron.Interval > 0, EnvCronInterval, "a positive duration")
	check(c.RateLimit.RequestsPerWindow > 0, EnvRateLimit, "positive")
	check(c.DB.LockTimeout >= 0, EnvDBLock, "zero or a positive duration")
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"TOOLCRIB_APP_ENV" required:"true"`
	Port         string `envconfig:"TOOLCRIB_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"TOOLCRIB_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TOOLCRIB_LOG_WARN_STACK" default:"false"`
}

// IsDev gates conveniences such as startup migrations.
func (a AppConfig) IsDev() bool { return strings.EqualFold(a.Env, AppEnvDev) }

func (a AppConfig) IsProd() bool { return strings.EqualFold(a.Env, AppEnvProd) }

type ServiceConfig struct {
	Kind string `envconfig:"TOOLCRIB_SERVICE_KIND" default:"api"`
}

type HTTPConfig struct {
	CORSAllowedOrigins []string      `envconfig:"TOOLCRIB_CORS_ALLOWED_ORIGINS"`
	ShutdownTimeout    time.Duration `envconfig:"TOOLCRIB_HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
}

type DBConfig struct {
	// DSN wins over the discrete connection fields below.
	DSN    string `envconfig:"TOOLCRIB_DB_DSN"`
	Driver string `envconfig:"TOOLCRIB_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"TOOLCRIB_DB_HOST"`
	Port     int    `envconfig:"TOOLCRIB_DB_PORT" default:"5432"`
	User     string `envconfig:"TOOLCRIB_DB_USER"`
	Password string `envconfig:"TOOLCRIB_DB_PASSWORD"`
	Name     string `envconfig:"TOOLCRIB_DB_NAME"`
	SSLMode  string `envconfig:"TOOLCRIB_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TOOLCRIB_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TOOLCRIB_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TOOLCRIB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TOOLCRIB_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// LockTimeout bounds how long a reservation waits on a contended row before failing as busy.
	LockTimeout      time.Duration `envconfig:"TOOLCRIB_DB_LOCK_TIMEOUT" default:"3s"`
	OperationTimeout time.Duration `envconfig:"TOOLCRIB_DB_OPERATION_TIMEOUT" default:"10s"`

	// SlowQueryThreshold logs statements that run longer; zero disables it.
	SlowQueryThreshold time.Duration `envconfig:"TOOLCRIB_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

// IsSQLite reports whether the sqlite driver is configured.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, "sqlite")
}

type RedisConfig struct {
	URL          string        `envconfig:"TOOLCRIB_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TOOLCRIB_REDIS_ADDR"`
	Password     string        `envconfig:"TOOLCRIB_REDIS_PASSWORD"`
	DB           int           `envconfig:"TOOLCRIB_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TOOLCRIB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TOOLCRIB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TOOLCRIB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TOOLCRIB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TOOLCRIB_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TOOLCRIB_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TOOLCRIB_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"TOOLCRIB_JWT_EXPIRATION_MINUTES" default:"60"`
}

// Expiration returns the access token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"TOOLCRIB_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	ConsumerIdempotencyTTL time.Duration `envconfig:"TOOLCRIB_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"TOOLCRIB_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	LifecycleTopic           string `envconfig:"TOOLCRIB_PUBSUB_LIFECYCLE_TOPIC" default:"toolcrib-request-lifecycle"`
	NotificationSubscription string `envconfig:"TOOLCRIB_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"toolcrib-notification-backfill"`
	// AutoCreate provisions missing resources. Meant for the local emulator.
	AutoCreate bool `envconfig:"TOOLCRIB_PUBSUB_AUTO_CREATE" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TOOLCRIB_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TOOLCRIB_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"TOOLCRIB_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval                  time.Duration `envconfig:"TOOLCRIB_CRON_INTERVAL" default:"1h"`
	NotificationRetentionDays int           `envconfig:"TOOLCRIB_CRON_NOTIFICATION_RETENTION_DAYS" default:"30"`
	OutboxRetentionDays       int           `envconfig:"TOOLCRIB_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
}

type NotificationsConfig struct {
	DefaultListLimit int `envconfig:"TOOLCRIB_NOTIFICATIONS_LIST_LIMIT" default:"25"`
}

// RateLimitConfig throttles request submissions per worker.
type RateLimitConfig struct {
	RequestsPerWindow int64         `envconfig:"TOOLCRIB_RATE_LIMIT_REQUESTS" default:"30"`
	Window            time.Duration `envconfig:"TOOLCRIB_RATE_LIMIT_WINDOW" default:"1m"`
}
