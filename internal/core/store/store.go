package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/medcityai/pubgate/internal/config"
)

const (
	DriverLibsql = "libsql"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"

	localBusyTimeoutMS = 5000
)

// Store wraps the SQL database backing the response cache.
type Store struct {
	DB     *sql.DB
	driver string
}

// Open initializes a SQL store connection using the provided configuration.
func Open(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DriverSQLite
	}

	if ctx == nil {
		ctx = context.Background()
	}

	var (
		dsn   string
		local bool
		err   error
	)
	switch driver {
	case DriverLibsql:
		dsn, local, err = buildLibsqlDSN(cfg)
	case DriverSQLite:
		dsn, local, err = buildSQLiteDSN(cfg)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	if local {
		// Single writer; an in-memory database is also private to its connection.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s store: %w", driver, err)
	}

	s := &Store{DB: db, driver: driver}
	if local {
		if err := s.configureLocal(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Driver returns the configured store driver.
func (s *Store) Driver() string {
	if s == nil {
		return ""
	}
	return s.driver
}

func (s *Store) configureLocal(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", localBusyTimeoutMS),
	}
	for _, pragma := range pragmas {
		var ignored string
		err := s.DB.QueryRowContext(ctx, pragma).Scan(&ignored)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("configure store (%s): %w", pragma, err)
		}
	}
	return nil
}

func buildLibsqlDSN(cfg config.StoreConfig) (string, bool, error) {
	if dsn := strings.TrimSpace(cfg.URL); dsn != "" {
		dsn, err := addAuthToken(dsn, cfg.AuthToken)
		return dsn, false, err
	}

	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return "", false, errors.New("store path or url is required")
	}

	if path == ":memory:" {
		return path, true, nil
	}

	if strings.HasPrefix(path, "file:") {
		localPath, err := extractFilePath(path)
		if err != nil {
			return "", false, err
		}
		if err := ensureStoreDir(localPath); err != nil {
			return "", false, err
		}
		return path, true, nil
	}

	if strings.HasPrefix(path, "libsql:") {
		return path, false, nil
	}

	if err := ensureStoreDir(path); err != nil {
		return "", false, err
	}
	return "file:" + filepath.Clean(path), true, nil
}

func buildSQLiteDSN(cfg config.StoreConfig) (string, bool, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return "", false, errors.New("store path is required for the sqlite driver")
	}
	if path == ":memory:" {
		return path, true, nil
	}

	localPath := path
	if strings.HasPrefix(path, "file:") {
		extracted, err := extractFilePath(path)
		if err != nil {
			return "", false, err
		}
		localPath = extracted
	}
	if err := ensureStoreDir(localPath); err != nil {
		return "", false, err
	}
	return "file:" + filepath.Clean(localPath), true, nil
}

func addAuthToken(dsn string, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return dsn, nil
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid store url: %w", err)
	}

	query := parsed.Query()
	if query.Get("authToken") == "" {
		query.Set("authToken", token)
		parsed.RawQuery = query.Encode()
	}

	return parsed.String(), nil
}

func extractFilePath(dsn string) (string, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid store path: %w", err)
	}

	if parsed.Path != "" {
		return strings.TrimPrefix(parsed.Path, "//"), nil
	}

	return strings.TrimPrefix(parsed.Opaque, "//"), nil
}

func ensureStoreDir(path string) error {
	if strings.TrimSpace(path) == "" || path == ":memory:" {
		return nil
	}

	dir := filepath.Dir(filepath.Clean(path))
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}

	// #nosec G301 -- data directories use 0755 for multi-user access compatibility
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	return nil
}
