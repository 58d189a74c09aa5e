package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/toolcrib-backend/pkg/config"
)

func newFakeClient() (*Client, *fakeCommands) {
	fake := &fakeCommands{data: map[string]string{}, ttl: map[string]time.Duration{}}
	return &Client{cmd: fake, keys: DefaultKeyspace}, fake
}

func TestFixedWindowAllowStartsExpiryOnce(t *testing.T) {
	ctx := context.Background()
	client, fake := newFakeClient()

	for i, want := range []bool{true, true, false} {
		allowed, count, err := client.FixedWindowAllow(ctx, "worker-1", 2, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, allowed, "hit %d", i+1)
		assert.Equal(t, int64(i+1), count)
	}
	assert.Equal(t, time.Minute, fake.ttl["tc:rate_limit:worker-1"])
	assert.Equal(t, 1, fake.expiries)
}

func TestCompareAndDeleteOnlyRemovesMatchingValue(t *testing.T) {
	ctx := context.Background()
	client, fake := newFakeClient()
	key := client.LockKey("toolcrib-cron", "prod")
	fake.data[key] = "host-a/1"

	deleted, err := client.CompareAndDelete(ctx, key, "host-b/2")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Contains(t, fake.data, key)

	deleted, err = client.CompareAndDelete(ctx, key, "host-a/1")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.NotContains(t, fake.data, key)
}

func TestSetNXGetSetDel(t *testing.T) {
	ctx := context.Background()
	client, _ := newFakeClient()
	key := client.IdempotencyKey("worker|POST|/api/v1/requests", "abc")

	ok, err := client.SetNX(ctx, key, "claim", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.SetNX(ctx, key, "claim", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, client.Set(ctx, key, "done", time.Hour))
	val, err := client.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "done", val)

	require.NoError(t, client.Del(ctx, key))
	_, err = client.Get(ctx, key)
	assert.ErrorIs(t, err, redis.Nil)
}

func TestUninitializedClient(t *testing.T) {
	var nilClient *Client
	for _, client := range []*Client{{}, nilClient} {
		assert.ErrorIs(t, client.Ping(context.Background()), errNotInitialized)
		_, err := client.Get(context.Background(), "k")
		assert.ErrorIs(t, err, errNotInitialized)
		_, _, err = client.FixedWindowAllow(context.Background(), "s", 1, time.Second)
		assert.ErrorIs(t, err, errNotInitialized)
		assert.NoError(t, client.Close())
	}
}

func TestKeyspace(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "tc:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	assert.Equal(t, "tc:idempotency:scope", client.IdempotencyKey("scope", " "))
	assert.Equal(t, "tc:rate_limit:scope", client.RateLimitKey("scope"))
	assert.Equal(t, "tc:lock:toolcrib-cron:prod", client.LockKey("toolcrib-cron", "prod"))
	assert.Equal(t, "tc:lock:toolcrib-cron:local", client.LockKey("toolcrib-cron", ""))
	assert.Equal(t, "staging:lock:x:local", Keyspace("staging").Key("lock", "x", "local"))
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	assert.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{Address: "localhost:6379", PoolSize: 7, DB: 2, DialTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 7, opts.PoolSize)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, time.Second, opts.DialTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{URL: "redis://cache:6380/4", DB: 9, PoolSize: 3})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 4, opts.DB, "db from the url wins")
	assert.Equal(t, 3, opts.PoolSize)
}

// fakeCommands emulates the two scripts by hash and the plain key commands.
type fakeCommands struct {
	data     map[string]string
	counters map[string]int64
	ttl      map[string]time.Duration
	expiries int
}

func (f *fakeCommands) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeCommands) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeCommands) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	f.data[key] = fmt.Sprint(value)
	f.ttl[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeCommands) SetNX(_ context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = fmt.Sprint(value)
	f.ttl[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (f *fakeCommands) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(f.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (f *fakeCommands) EvalSha(_ context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	switch sha {
	case fixedWindowScript.Hash():
		if f.counters == nil {
			f.counters = map[string]int64{}
		}
		f.counters[keys[0]]++
		if f.counters[keys[0]] == 1 {
			f.ttl[keys[0]] = time.Duration(args[0].(int64)) * time.Millisecond
			f.expiries++
		}
		return redis.NewCmdResult(f.counters[keys[0]], nil)
	case compareAndDeleteScript.Hash():
		if v, ok := f.data[keys[0]]; ok && v == args[0] {
			delete(f.data, keys[0])
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	}
	return redis.NewCmdResult(nil, fmt.Errorf("unknown script %s", sha))
}

func (f *fakeCommands) Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return f.EvalSha(ctx, redis.NewScript(script).Hash(), keys, args...)
}

func (f *fakeCommands) EvalRO(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return f.Eval(ctx, script, keys, args...)
}

func (f *fakeCommands) EvalShaRO(ctx context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	return f.EvalSha(ctx, sha, keys, args...)
}

func (f *fakeCommands) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeCommands) ScriptLoad(_ context.Context, script string) *redis.StringCmd {
	return redis.NewStringResult(redis.NewScript(script).Hash(), nil)
}
