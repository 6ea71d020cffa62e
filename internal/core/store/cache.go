package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CacheStats summarizes the response cache table.
type CacheStats struct {
	Driver  string     `json:"driver"`
	Entries int64      `json:"entries"`
	Bytes   int64      `json:"bytes"`
	Oldest  *time.Time `json:"oldest,omitempty"`
	Newest  *time.Time `json:"newest,omitempty"`
}

// Get returns the stored value for key, or nil when absent.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("cache key is required")
	}

	var value string
	row := s.DB.QueryRowContext(ctx, `SELECT value FROM response_cache WHERE cache_key = ?`, key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch cache entry: %w", err)
	}
	return []byte(value), nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("cache key is required")
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO response_cache (cache_key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, string(value), time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("store cache entry: %w", err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := s.DB.ExecContext(ctx, `DELETE FROM response_cache WHERE cache_key = ?`, strings.TrimSpace(key)); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// CacheStats reports entry count, payload size and write-time range.
func (s *Store) CacheStats(ctx context.Context) (*CacheStats, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		entries int64
		size    int64
		oldest  sql.NullInt64
		newest  sql.NullInt64
	)
	row := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(LENGTH(value)), 0), MIN(updated_at), MAX(updated_at)
		FROM response_cache
	`)
	if err := row.Scan(&entries, &size, &oldest, &newest); err != nil {
		return nil, fmt.Errorf("read cache stats: %w", err)
	}

	stats := &CacheStats{Driver: s.driver, Entries: entries, Bytes: size}
	if oldest.Valid {
		value := time.UnixMilli(oldest.Int64).UTC()
		stats.Oldest = &value
	}
	if newest.Valid {
		value := time.UnixMilli(newest.Int64).UTC()
		stats.Newest = &value
	}
	return stats, nil
}

// PurgeCache deletes entries written before cutoff and returns how many
// were removed. A zero cutoff removes everything.
func (s *Store) PurgeCache(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		result sql.Result
		err    error
	)
	if cutoff.IsZero() {
		result, err = s.DB.ExecContext(ctx, `DELETE FROM response_cache`)
	} else {
		result, err = s.DB.ExecContext(ctx, `DELETE FROM response_cache WHERE updated_at < ?`, cutoff.UTC().UnixMilli())
	}
	if err != nil {
		return 0, fmt.Errorf("purge cache: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return removed, nil
}
