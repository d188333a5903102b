package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dinebot-ai/dinebot-backend/pkg/config"
	"github.com/dinebot-ai/dinebot-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	keyNamespace      = "dinebot"
	idempotencyPrefix = "idempotency"
	lockPrefix        = "lock"
	sessionPrefix     = "session"
	activityKey       = "session_activity"
)

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Del(context.Context, ...string) *redis.IntCmd
	ZAdd(context.Context, string, ...redis.Z) *redis.IntCmd
	ZRem(context.Context, string, ...any) *redis.IntCmd
	ZRangeByScore(context.Context, string, *redis.ZRangeBy) *redis.StringSliceCmd
}

// Client wraps the redis helpers the session engine needs: the cron lock,
// realtime message de-duplication, the hot cart/state cache, and the
// session-activity index the sweeper scans.
type Client struct {
	store cmdable
	raw   *redis.Client
}

// Pinger exposes the health-check surface.
type Pinger interface {
	Ping(context.Context) error
}

// Nil re-exports the driver's missing-key sentinel so callers do not import
// the driver directly.
var Nil = redis.Nil

// New bootstraps a Redis client with pooling/timeouts and verifies connectivity.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if logg != nil {
		logg.Info(ctx, "redis connection established")
	}
	return &Client{store: raw, raw: raw}, nil
}

func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL == "" && cfg.Address == "" {
		return nil, errors.New("redis url or address is required")
	}
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	if opts.DB == 0 {
		opts.DB = cfg.DB
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if opts.MinIdleConns == 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

// Set stores a string value with an optional TTL.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c.store == nil {
		return errors.New("redis client not initialized")
	}
	return c.store.Set(ctx, key, value, ttl).Err()
}

// Get returns a string value stored at key.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c.store == nil {
		return "", errors.New("redis client not initialized")
	}
	return c.store.Get(ctx, key).Result()
}

// SetNX sets a value only if the key does not exist yet.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if c.store == nil {
		return false, errors.New("redis client not initialized")
	}
	return c.store.SetNX(ctx, key, value, ttl).Result()
}

// Del removes the provided keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c.store == nil {
		return errors.New("redis client not initialized")
	}
	return c.store.Del(ctx, keys...).Err()
}

// TouchActivity records the session's last activity in the sweeper index.
func (c *Client) TouchActivity(ctx context.Context, sessionID string, at time.Time) error {
	if c.store == nil {
		return errors.New("redis client not initialized")
	}
	member := redis.Z{Score: float64(at.UTC().Unix()), Member: sessionID}
	return c.store.ZAdd(ctx, c.buildKey(activityKey), member).Err()
}

// IdleSessions returns session IDs whose recorded activity is at or before
// the cutoff. The index is advisory; the sweeper re-checks the database row
// before reclaiming anything.
func (c *Client) IdleSessions(ctx context.Context, cutoff time.Time) ([]string, error) {
	if c.store == nil {
		return nil, errors.New("redis client not initialized")
	}
	rng := &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", cutoff.UTC().Unix()),
	}
	return c.store.ZRangeByScore(ctx, c.buildKey(activityKey), rng).Result()
}

// ForgetActivity drops sessions from the activity index after reclamation.
func (c *Client) ForgetActivity(ctx context.Context, sessionIDs ...string) error {
	if c.store == nil {
		return errors.New("redis client not initialized")
	}
	if len(sessionIDs) == 0 {
		return nil
	}
	members := make([]any, len(sessionIDs))
	for i, id := range sessionIDs {
		members[i] = id
	}
	return c.store.ZRem(ctx, c.buildKey(activityKey), members...).Err()
}

// IdempotencyKey returns a namespaced key for realtime message de-duplication.
func (c *Client) IdempotencyKey(scope, id string) string {
	return c.buildKey(idempotencyPrefix, scope, id)
}

// LockKey returns a namespaced key for distributed locks.
func (c *Client) LockKey(name string) string {
	return c.buildKey(lockPrefix, name)
}

// CartCacheKey returns the hot-cache key for a session's materialized cart.
func (c *Client) CartCacheKey(sessionID string) string {
	return c.buildKey(sessionPrefix, sessionID, "cart")
}

// StateCacheKey returns the hot-cache key for a session's conversation state.
func (c *Client) StateCacheKey(sessionID string) string {
	return c.buildKey(sessionPrefix, sessionID, "state")
}

// Ping verifies the connection.
func (c *Client) Ping(ctx context.Context) error {
	if c.store == nil {
		return errors.New("redis client not initialized")
	}
	return c.store.Ping(ctx).Err()
}

// Close shuts down the underlying client if available.
func (c *Client) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

func (c *Client) buildKey(parts ...string) string {
	if len(parts) == 0 {
		return keyNamespace
	}
	clean := []string{keyNamespace}
	for _, part := range parts {
		if part == "" {
			continue
		}
		clean = append(clean, strings.TrimSpace(part))
	}
	return strings.Join(clean, ":")
}
