package store

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/medcityai/pubgate/internal/config"
)

func openTestRedis(t *testing.T) *RedisCache {
	t.Helper()
	url := strings.TrimSpace(os.Getenv("PUBGATE_TEST_REDIS_URL"))
	if url == "" {
		t.Skip("PUBGATE_TEST_REDIS_URL not set")
	}

	cache, err := OpenRedis(context.Background(), config.StoreConfig{
		URL:       url,
		KeyPrefix: "pubgate-test:" + uuid.NewString(),
	}, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = cache.PurgeCache(context.Background(), time.Time{})
		_ = cache.Close()
	})
	return cache
}

func TestRedisCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache := openTestRedis(t)

	value, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	require.Nil(t, value)

	envelope := []byte(`{"ts":1700000000000,"data":{"ok":true}}`)
	require.NoError(t, cache.Set(ctx, "k", envelope))
	value, err = cache.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, envelope, value)

	ttl, err := cache.rdb.TTL(ctx, cache.key("k")).Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))

	stats, err := cache.CacheStats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Entries)
	require.Equal(t, time.UnixMilli(1700000000000).UTC(), *stats.Oldest)

	removed, err := cache.PurgeCache(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)
}

func TestOpenRedisRequiresURL(t *testing.T) {
	_, err := OpenRedis(context.Background(), config.StoreConfig{}, time.Minute)
	require.Error(t, err)

	_, err = OpenRedis(context.Background(), config.StoreConfig{URL: "http://not-redis"}, time.Minute)
	require.Error(t, err)
}

func TestRedisPrefixOption(t *testing.T) {
	cache := NewRedisCache(nil, WithRedisPrefix(":custom:"), WithRedisTTL(time.Hour))
	require.Equal(t, "custom:k", cache.key("k"))
	require.Equal(t, time.Hour, cache.ttl)

	_, err := cache.Get(context.Background(), "k")
	require.Error(t, err)
}
