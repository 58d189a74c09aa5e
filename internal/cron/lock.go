package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/toolcrib-backend/pkg/instance"
	pkgredis "github.com/angelmondragon/toolcrib-backend/pkg/redis"
)

const (
	cronLockName   = "toolcrib-cron"
	defaultLockTTL = time.Hour
	minLockTTL     = time.Minute
)

// Lock coordinates exclusive cron runs.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
}

// RedisLock is a single-holder lease on a redis key. The value names the
// holder so release never deletes a lease that expired and was re-taken.
type RedisLock struct {
	store lockStore
	key   string
	ttl   time.Duration
	token string
}

func NewRedisLock(store lockStore, key string, ttl time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

// NewCronLock builds the shared cron lock for env. The TTL trails the run
// interval so a crashed holder never blocks more than one cycle.
func NewCronLock(client *pkgredis.Client, env string, interval time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	return NewRedisLock(client, client.LockKey(cronLockName, env), lockTTLFor(interval))
}

func lockTTLFor(interval time.Duration) time.Duration {
	if interval <= 0 {
		return defaultLockTTL
	}
	return max(interval*9/10, minLockTTL)
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := instance.ID() + "/" + uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Release is a no-op when this instance does not hold the lease.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	token := l.token
	l.token = ""
	if _, err := l.store.CompareAndDelete(ctx, l.key, token); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
