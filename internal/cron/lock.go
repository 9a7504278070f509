package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrLockHeld is returned by TryLock when another worker owns the lease.
var ErrLockHeld = errors.New("cron lock held by another worker")

var errLeaseLost = errors.New("cron lease lost")

// Locker hands out the lease that lets one worker run a cycle.
type Locker interface {
	TryLock(ctx context.Context) (Lease, error)
}

// Lease is a held cron lock. Extend keeps it alive between jobs.
type Lease interface {
	Extend(ctx context.Context) error
	Release(ctx context.Context) error
}

type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndExpire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, token string) (bool, error)
}

// RedisLocker issues token-guarded leases on a single redis key.
type RedisLocker struct {
	store leaseStore
	key   string
	ttl   time.Duration
}

func NewRedisLocker(store leaseStore, key string, ttl time.Duration) (*RedisLocker, error) {
	switch {
	case store == nil:
		return nil, errors.New("redis client required for lock")
	case key == "":
		return nil, errors.New("lock key is required")
	case ttl <= 0:
		return nil, errors.New("lock ttl must be positive")
	}
	return &RedisLocker{store: store, key: key, ttl: ttl}, nil
}

func (l *RedisLocker) TryLock(ctx context.Context) (Lease, error) {
	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return nil, fmt.Errorf("setnx %s: %w", l.key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &redisLease{locker: l, token: token}, nil
}

type redisLease struct {
	locker *RedisLocker
	token  string
}

// Extend resets the lease TTL. It fails with errLeaseLost once the key
// expired or passed to another worker.
func (l *redisLease) Extend(ctx context.Context) error {
	ok, err := l.locker.store.CompareAndExpire(ctx, l.locker.key, l.token, l.locker.ttl)
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", l.locker.key, err)
	}
	if !ok {
		return errLeaseLost
	}
	return nil
}

// Release leaves a lease taken over by another worker alone.
func (l *redisLease) Release(ctx context.Context) error {
	if _, err := l.locker.store.CompareAndDelete(ctx, l.locker.key, l.token); err != nil {
		return fmt.Errorf("release lock %s: %w", l.locker.key, err)
	}
	return nil
}
