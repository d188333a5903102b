package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// The TTL bounds how long a crashed sweeper can starve the others. It only
// needs to outlast one sweep pass: the holder releases on completion, and a
// pass over every idle session finishes well inside this window.
const defaultLockTTL = 30 * time.Minute

// Lock gates a sweep pass so concurrently deployed sweepers do not reclaim
// the same sessions.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLock is a SETNX lease. Each acquisition stamps a fresh owner token so
// a release can never free a lease another sweeper took over after this
// one's TTL expired.
type RedisLock struct {
	store redisStore
	key   string
	ttl   time.Duration
	owner string
}

// NewRedisLock builds the sweep lease. A non-positive ttl falls back to the
// default window.
func NewRedisLock(store redisStore, key string, ttl time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("redis store required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

// Acquire claims the lease for one sweep pass.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquiring sweep lease: %w", err)
	}
	if ok {
		l.owner = token
	}
	return ok, nil
}

// Release drops the lease when this instance still owns it. An expired or
// reassigned lease is left alone.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	holder, err := l.store.Get(ctx, l.key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			l.owner = ""
			return nil
		}
		return fmt.Errorf("reading sweep lease holder: %w", err)
	}
	if holder != l.owner {
		l.owner = ""
		return nil
	}
	if err := l.store.Del(ctx, l.key); err != nil {
		return fmt.Errorf("releasing sweep lease: %w", err)
	}
	l.owner = ""
	return nil
}
