package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/medcityai/pubgate/internal/config"
)

func TestBuildLibsqlDSN(t *testing.T) {
	t.Run("URLUsesRawValue", func(t *testing.T) {
		cfg := config.StoreConfig{
			URL:       "libsql://example.turso.io",
			AuthToken: "token123",
		}

		dsn, local, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.False(t, local)
		require.Equal(t, "libsql://example.turso.io?authToken=token123", dsn)
	})

	t.Run("URLWithExistingQuery", func(t *testing.T) {
		cfg := config.StoreConfig{
			URL:       "libsql://example.turso.io?foo=bar",
			AuthToken: "token123",
		}

		dsn, _, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "libsql://example.turso.io?authToken=token123&foo=bar", dsn)
	})

	t.Run("PathWithFilePrefix", func(t *testing.T) {
		cfg := config.StoreConfig{Path: "file:./pubgate.db"}

		dsn, local, err := buildLibsqlDSN(cfg)
		require.NoError(t, err)
		require.True(t, local)
		require.Equal(t, "file:./pubgate.db", dsn)
	})

	t.Run("PathMissing", func(t *testing.T) {
		_, _, err := buildLibsqlDSN(config.StoreConfig{})
		require.Error(t, err)
	})

	t.Run("MemoryPath", func(t *testing.T) {
		dsn, local, err := buildLibsqlDSN(config.StoreConfig{Path: ":memory:"})
		require.NoError(t, err)
		require.True(t, local)
		require.Equal(t, ":memory:", dsn)
	})
}

func TestBuildSQLiteDSN(t *testing.T) {
	dir := t.TempDir()
	dsn, local, err := buildSQLiteDSN(config.StoreConfig{Path: filepath.Join(dir, "nested", "pubgate.db")})
	require.NoError(t, err)
	require.True(t, local)
	require.Equal(t, "file:"+filepath.Join(dir, "nested", "pubgate.db"), dsn)
	require.DirExists(t, filepath.Join(dir, "nested"))

	_, _, err = buildSQLiteDSN(config.StoreConfig{URL: "libsql://example.turso.io"})
	require.Error(t, err)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "postgres", Path: ":memory:"})
	require.ErrorContains(t, err, "unsupported store driver")
}

func openSQLite(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, config.StoreConfig{Driver: DriverSQLite, Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestResponseCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)
	require.Equal(t, DriverSQLite, s.Driver())

	value, err := s.Get(ctx, "pubmed:json:https://example.org/esearch.fcgi?")
	require.NoError(t, err)
	require.Nil(t, value)

	payload := []byte(`{"ts":1700000000000,"data":{"count":"3"}}`)
	require.NoError(t, s.Set(ctx, "pubmed:json:https://example.org/esearch.fcgi?", payload))

	value, err = s.Get(ctx, "pubmed:json:https://example.org/esearch.fcgi?")
	require.NoError(t, err)
	require.Equal(t, payload, value)

	replaced := []byte(`{"ts":1700000000001,"data":{"count":"4"}}`)
	require.NoError(t, s.Set(ctx, "pubmed:json:https://example.org/esearch.fcgi?", replaced))
	value, err = s.Get(ctx, "pubmed:json:https://example.org/esearch.fcgi?")
	require.NoError(t, err)
	require.Equal(t, replaced, value)

	require.NoError(t, s.Delete(ctx, "pubmed:json:https://example.org/esearch.fcgi?"))
	require.NoError(t, s.Delete(ctx, "missing"))
	value, err = s.Get(ctx, "pubmed:json:https://example.org/esearch.fcgi?")
	require.NoError(t, err)
	require.Nil(t, value)

	_, err = s.Get(ctx, " ")
	require.Error(t, err)
}

func TestCacheStatsAndPurge(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)

	stats, err := s.CacheStats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.Entries)
	require.Nil(t, stats.Oldest)

	old := time.Now().Add(-48 * time.Hour).UTC().UnixMilli()
	_, err = s.DB.ExecContext(ctx, `INSERT INTO response_cache (cache_key, value, updated_at) VALUES (?, ?, ?)`, "old", "abcd", old)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "fresh", []byte("xy")))

	stats, err = s.CacheStats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.Entries)
	require.Equal(t, int64(6), stats.Bytes)
	require.NotNil(t, stats.Oldest)
	require.NotNil(t, stats.Newest)
	require.True(t, stats.Oldest.Before(*stats.Newest))

	removed, err := s.PurgeCache(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	value, err := s.Get(ctx, "fresh")
	require.NoError(t, err)
	require.Equal(t, []byte("xy"), value)

	removed, err = s.PurgeCache(ctx, time.Time{})
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)
}

func TestNilStore(t *testing.T) {
	var s *Store
	require.NoError(t, s.Close())
	require.Empty(t, s.Driver())
	_, err := s.Get(context.Background(), "k")
	require.Error(t, err)
	require.Error(t, s.Migrate(context.Background()))
}
