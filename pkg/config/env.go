package config

// EnvPrefix scopes envconfig lookups; every tag below also resolves without it.
const EnvPrefix = "TOOLCRIB"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv = "TOOLCRIB_APP_ENV"
	EnvPort   = "TOOLCRIB_APP_PORT"
	EnvDBDSN  = "TOOLCRIB_DB_DSN"
	EnvDBDrv  = "TOOLCRIB_DB_DRIVER"
	EnvDBHost = "TOOLCRIB_DB_HOST"
	EnvDBUser = "TOOLCRIB_DB_USER"
	EnvDBName = "TOOLCRIB_DB_NAME"
	EnvDBLock = "TOOLCRIB_DB_LOCK_TIMEOUT"

	EnvRedisURL = "TOOLCRIB_REDIS_URL"

	EnvJWTSecret  = "TOOLCRIB_JWT_SECRET"
	EnvJWTIssuer  = "TOOLCRIB_JWT_ISSUER"
	EnvJWTExpMins = "TOOLCRIB_JWT_EXPIRATION_MINUTES"

	EnvOutboxBatch    = "TOOLCRIB_OUTBOX_PUBLISH_BATCH_SIZE"
	EnvOutboxAttempts = "TOOLCRIB_OUTBOX_MAX_ATTEMPTS"
	EnvCronInterval   = "TOOLCRIB_CRON_INTERVAL"
	EnvRateLimit      = "TOOLCRIB_RATE_LIMIT_REQUESTS"
)
