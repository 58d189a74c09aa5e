package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/toolcrib-backend/pkg/config"
	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
)

var errNotInitialized = errors.New("redis client not initialized")

// fixedWindowScript increments the window counter and starts its expiry on the
// first hit in one round trip, so a crash can never leave a counter without TTL.
var fixedWindowScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// compareAndDeleteScript removes the key only while it still holds ARGV[1].
var compareAndDeleteScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// commands is the subset of go-redis the client uses; tests substitute a fake.
type commands interface {
	redis.Scripter
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Client is the redis handle shared by the API, worker and cron processes.
type Client struct {
	cmd    commands
	closer func() error
	keys   Keyspace
}

// RateLimiter is the fixed-window limiter surface used by HTTP middleware.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// New dials Redis and fails fast when the server does not answer PING.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"redis_db": opts.DB, "pool_size": opts.PoolSize}), "redis connected")
	}
	return &Client{cmd: raw, closer: raw.Close, keys: DefaultKeyspace}, nil
}

// optionsFromConfig prefers a URL and lets explicit settings fill whatever
// the URL leaves unset.
func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	case cfg.Address != "":
		opts = &redis.Options{Addr: cfg.Address, Password: cfg.Password}
	default:
		return nil, errors.New("redis url or address is required")
	}

	fillInt(&opts.DB, cfg.DB)
	fillInt(&opts.PoolSize, cfg.PoolSize)
	fillInt(&opts.MinIdleConns, cfg.MinIdleConns)
	fillDuration(&opts.DialTimeout, cfg.DialTimeout)
	fillDuration(&opts.ReadTimeout, cfg.ReadTimeout)
	fillDuration(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func fillInt(dst *int, v int) {
	if *dst == 0 {
		*dst = v
	}
}

func fillDuration(dst *time.Duration, v time.Duration) {
	if *dst == 0 {
		*dst = v
	}
}

func (c *Client) ready() error {
	if c == nil || c.cmd == nil {
		return errNotInitialized
	}
	return nil
}

// Get returns redis.Nil when the key is absent.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	return c.cmd.Get(ctx, key).Result()
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.cmd.Set(ctx, key, value, ttl).Err()
}

func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}
	return c.cmd.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.cmd.Del(ctx, keys...).Err()
}

// CompareAndDelete deletes key only if it still holds value and reports
// whether it did. Lock owners use it to release without clobbering a successor.
func (c *Client) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}
	n, err := compareAndDeleteScript.Run(ctx, c.cmd, []string{key}, value).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// FixedWindowAllow counts one hit against scope and reports whether the
// window is still within limit, along with the running count.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	if err := c.ready(); err != nil {
		return false, 0, err
	}
	count, err := fixedWindowScript.Run(ctx, c.cmd, []string{c.RateLimitKey(scope)}, window.Milliseconds()).Int64()
	if err != nil {
		return false, 0, err
	}
	return count <= limit, count, nil
}

func (c *Client) IdempotencyKey(scope, id string) string { return c.keyspace().idempotency(scope, id) }

func (c *Client) RateLimitKey(scope string) string { return c.keyspace().rateLimit(scope) }

func (c *Client) LockKey(name, env string) string { return c.keyspace().lock(name, env) }

func (c *Client) keyspace() Keyspace {
	if c == nil || c.keys == "" {
		return DefaultKeyspace
	}
	return c.keys
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.cmd.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c == nil || c.closer == nil {
		return nil
	}
	return c.closer()
}
