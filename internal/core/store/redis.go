package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medcityai/pubgate/internal/config"
)

const defaultRedisPrefix = "pubgate:cache"

// RedisCache stores gateway responses in Redis. Keys expire after the
// configured TTL so stale entries do not accumulate.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

type RedisCacheOption func(*RedisCache)

func WithRedisPrefix(prefix string) RedisCacheOption {
	return func(c *RedisCache) {
		if trimmed := strings.Trim(strings.TrimSpace(prefix), ":"); trimmed != "" {
			c.prefix = trimmed
		}
	}
}

func WithRedisTTL(ttl time.Duration) RedisCacheOption {
	return func(c *RedisCache) { c.ttl = ttl }
}

func NewRedisCache(rdb *redis.Client, opts ...RedisCacheOption) *RedisCache {
	c := &RedisCache{rdb: rdb, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OpenRedis connects to the Redis server named by cfg.URL and verifies it
// responds.
func OpenRedis(ctx context.Context, cfg config.StoreConfig, ttl time.Duration) (*RedisCache, error) {
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		return nil, errors.New("store url is required for the redis driver")
	}
	opts, err := redis.ParseURL(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if token := strings.TrimSpace(cfg.AuthToken); token != "" && opts.Password == "" {
		opts.Password = token
	}

	if ctx == nil {
		ctx = context.Background()
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis store: %w", err)
	}

	return NewRedisCache(rdb, WithRedisPrefix(cfg.KeyPrefix), WithRedisTTL(ttl)), nil
}

func (c *RedisCache) key(key string) string {
	return c.prefix + ":" + key
}

// Get returns the stored value for key, or nil when absent.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	if c == nil || c.rdb == nil {
		return nil, errors.New("redis cache is not initialized")
	}
	value, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch cache entry: %w", err)
	}
	return value, nil
}

// Set stores value under key with the cache TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte) error {
	if c == nil || c.rdb == nil {
		return errors.New("redis cache is not initialized")
	}
	if err := c.rdb.Set(ctx, c.key(key), value, c.ttl).Err(); err != nil {
		return fmt.Errorf("store cache entry: %w", err)
	}
	return nil
}

// Delete removes key.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if c == nil || c.rdb == nil {
		return errors.New("redis cache is not initialized")
	}
	if err := c.rdb.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// CacheStats scans the key prefix. Oldest and Newest come from the
// envelope timestamps.
func (c *RedisCache) CacheStats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{Driver: DriverRedis}
	err := c.scan(ctx, func(key string, value []byte, ts time.Time) error {
		stats.Entries++
		stats.Bytes += int64(len(value))
		if ts.IsZero() {
			return nil
		}
		if stats.Oldest == nil || ts.Before(*stats.Oldest) {
			oldest := ts
			stats.Oldest = &oldest
		}
		if stats.Newest == nil || ts.After(*stats.Newest) {
			newest := ts
			stats.Newest = &newest
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// PurgeCache deletes entries whose envelope timestamp is before cutoff, or
// every entry when cutoff is zero.
func (c *RedisCache) PurgeCache(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := c.scan(ctx, func(key string, _ []byte, ts time.Time) error {
		if !cutoff.IsZero() && !ts.IsZero() && !ts.Before(cutoff) {
			return nil
		}
		n, err := c.rdb.Del(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("purge cache: %w", err)
		}
		removed += n
		return nil
	})
	return removed, err
}

// Close releases the Redis connection pool.
func (c *RedisCache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

func (c *RedisCache) scan(ctx context.Context, visit func(key string, value []byte, ts time.Time) error) error {
	if c == nil || c.rdb == nil {
		return errors.New("redis cache is not initialized")
	}

	iter := c.rdb.Scan(ctx, 0, c.prefix+":*", 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		value, err := c.rdb.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return fmt.Errorf("scan cache entry: %w", err)
		}
		if err := visit(key, value, envelopeTime(value)); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan cache: %w", err)
	}
	return nil
}

func envelopeTime(value []byte) time.Time {
	var env struct {
		TS int64 `json:"ts"`
	}
	if err := json.Unmarshal(value, &env); err != nil || env.TS <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(env.TS).UTC()
}
