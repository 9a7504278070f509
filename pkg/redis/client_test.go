package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stockledger/pkg/config"
)

// scriptedStore emulates the Lua scripts the client sends.
type scriptedStore struct {
	data    map[string]string
	counter map[string]int64
	ttls    map[string]time.Duration
}

func newScriptedStore() *scriptedStore {
	return &scriptedStore{data: map[string]string{}, counter: map[string]int64{}, ttls: map[string]time.Duration{}}
}

func (s *scriptedStore) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (s *scriptedStore) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := s.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (s *scriptedStore) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, ok := s.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	s.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (s *scriptedStore) SetXX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, ok := s.data[key]; !ok {
		return redis.NewBoolResult(false, nil)
	}
	s.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (s *scriptedStore) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(s.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (s *scriptedStore) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	switch script {
	case fixedWindowScript:
		s.counter[keys[0]]++
		if s.counter[keys[0]] == 1 {
			s.ttls[keys[0]] = time.Duration(args[0].(int64)) * time.Millisecond
		}
		return redis.NewCmdResult(s.counter[keys[0]], nil)
	case compareAndDeleteScript:
		if s.data[keys[0]] == args[0] {
			delete(s.data, keys[0])
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	case compareAndExpireScript:
		if s.data[keys[0]] != args[0] {
			return redis.NewCmdResult(int64(0), nil)
		}
		s.ttls[keys[0]] = time.Duration(args[1].(int64)) * time.Millisecond
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(nil, fmt.Errorf("unexpected script"))
}

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	store := newScriptedStore()
	client := &Client{store: store}

	for i, want := range []bool{true, true, false} {
		allowed, count, err := client.FixedWindowAllow(ctx, "stock-mutations:user:1", 2, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, allowed, "call %d", i)
		assert.EqualValues(t, i+1, count)
	}
	assert.Equal(t, time.Minute, store.ttls["stockledger:rate_limit:stock-mutations:user:1"])
}

func TestCompareAndDelete(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newScriptedStore()}

	ok, err := client.SetNX(ctx, "lease", "token-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	deleted, err := client.CompareAndDelete(ctx, "lease", "token-b")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = client.CompareAndDelete(ctx, "lease", "token-a")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = client.Get(ctx, "lease")
	assert.ErrorIs(t, err, redis.Nil)
}

func TestCompareAndExpireRequiresToken(t *testing.T) {
	ctx := context.Background()
	store := newScriptedStore()
	client := &Client{store: store}

	_, err := client.SetNX(ctx, "lease", "token-a", time.Minute)
	require.NoError(t, err)

	extended, err := client.CompareAndExpire(ctx, "lease", "token-b", time.Hour)
	require.NoError(t, err)
	assert.False(t, extended)
	assert.Zero(t, store.ttls["lease"])

	extended, err = client.CompareAndExpire(ctx, "lease", "token-a", time.Hour)
	require.NoError(t, err)
	assert.True(t, extended)
	assert.Equal(t, time.Hour, store.ttls["lease"])
}

func TestSetXXOnlyReplaces(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newScriptedStore()}

	ok, err := client.SetXX(ctx, "record", "done", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = client.SetNX(ctx, "record", "pending", time.Minute)
	require.NoError(t, err)
	ok, err = client.SetXX(ctx, "record", "done", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := client.Get(ctx, "record")
	require.NoError(t, err)
	assert.Equal(t, "done", got)
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	assert.Error(t, client.Ping(context.Background()))
	_, _, err := client.FixedWindowAllow(context.Background(), "s", 1, time.Second)
	assert.Error(t, err)
	assert.NoError(t, client.Close())
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "stockledger:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	assert.Equal(t, "stockledger:rate_limit:scope", client.RateLimitKey("scope"))
	assert.Equal(t, "stockledger:lock:cron", client.LockKey("cron"))
	assert.Equal(t, "stockledger:idempotency:id", client.IdempotencyKey(" ", "id"))
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	assert.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/3", PoolSize: 20, DialTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, 20, opts.PoolSize)
	assert.Equal(t, time.Second, opts.DialTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6379", DB: 2})
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
}
