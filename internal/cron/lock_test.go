package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryStore) CompareAndExpire(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	if m.values[key] != token {
		return false, nil
	}
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryStore) CompareAndDelete(_ context.Context, key, token string) (bool, error) {
	if m.values[key] != token {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockerIsExclusive(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()
	locker, err := NewRedisLocker(store, "lock:cron", time.Minute)
	require.NoError(t, err)

	lease, err := locker.TryLock(ctx)
	require.NoError(t, err)

	_, err = locker.TryLock(ctx)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, lease.Release(ctx))
	again, err := locker.TryLock(ctx)
	require.NoError(t, err)
	assert.NotNil(t, again)
}

func TestLeaseExtendAfterTakeover(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()
	locker, _ := NewRedisLocker(store, "lock:cron", time.Minute)

	lease, err := locker.TryLock(ctx)
	require.NoError(t, err)
	store.ttls["lock:cron"] = time.Second
	require.NoError(t, lease.Extend(ctx))
	assert.Equal(t, time.Minute, store.ttls["lock:cron"])

	// lease expired and another worker took it
	store.values["lock:cron"] = "someone-else"

	assert.ErrorIs(t, lease.Extend(ctx), errLeaseLost)
	require.NoError(t, lease.Release(ctx))
	assert.Equal(t, "someone-else", store.values["lock:cron"])
}

func TestNewRedisLockerValidation(t *testing.T) {
	cases := map[string]struct {
		store leaseStore
		key   string
		ttl   time.Duration
	}{
		"nil store": {nil, "k", time.Minute},
		"empty key": {newMemoryStore(), "", time.Minute},
		"zero ttl":  {newMemoryStore(), "k", 0},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewRedisLocker(tc.store, tc.key, tc.ttl)
			assert.Error(t, err)
		})
	}
}
