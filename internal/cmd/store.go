package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/medcityai/pubgate/internal/config"
	"github.com/medcityai/pubgate/internal/core/gateway"
	"github.com/medcityai/pubgate/internal/core/pubmed"
	"github.com/medcityai/pubgate/internal/core/store"
	"github.com/medcityai/pubgate/internal/core/trending"
	"github.com/medcityai/pubgate/internal/observability"
)

// cacheAdmin is implemented by the durable cache drivers.
type cacheAdmin interface {
	CacheStats(ctx context.Context) (*store.CacheStats, error)
	PurgeCache(ctx context.Context, cutoff time.Time) (int64, error)
}

// cacheBackend is the opened response cache for the configured driver.
type cacheBackend struct {
	driver string
	cache  gateway.Cache
	admin  cacheAdmin
	close  func() error
}

func (b *cacheBackend) Close() error {
	if b == nil || b.close == nil {
		return nil
	}
	return b.close()
}

// CheckHealth pings the cache with a stats query.
func (b *cacheBackend) CheckHealth(ctx context.Context) error {
	if b == nil || b.admin == nil {
		return nil
	}
	_, err := b.admin.CacheStats(ctx)
	return err
}

// services bundles what a command needs to talk to PubMed.
type services struct {
	cfg     *config.Config
	backend *cacheBackend
	gateway *gateway.Gateway
	client  *pubmed.Client
}

func (r *services) Close() error {
	if r == nil {
		return nil
	}
	return r.backend.Close()
}

// loadConfig loads configuration with overrides collected from flags.
func loadConfig(cmd *cobra.Command, overrides map[string]any) (*config.Config, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(ctx, overrides)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func openCache(ctx context.Context, cfg *config.Config) (*cacheBackend, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	switch driver {
	case store.DriverMemory:
		return &cacheBackend{driver: driver, cache: gateway.NewMemoryCache()}, nil
	case store.DriverRedis:
		rc, err := store.OpenRedis(ctx, cfg.Store, cfg.PubMed.CacheTTL)
		if err != nil {
			return nil, err
		}
		return &cacheBackend{driver: driver, cache: rc, admin: rc, close: rc.Close}, nil
	default:
		db, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &cacheBackend{driver: db.Driver(), cache: db, admin: db, close: db.Close}, nil
	}
}

func gatewayConfig(cfg config.PubMedConfig) gateway.Config {
	gc := gateway.DefaultConfig()
	if cfg.BaseURL != "" {
		gc.BaseURL = cfg.BaseURL
	}
	gc.APIKey = cfg.APIKey
	if cfg.Namespace != "" {
		gc.Namespace = cfg.Namespace
	}
	gc.MinInterval = cfg.MinInterval
	if cfg.CacheTTL > 0 {
		gc.CacheTTL = cfg.CacheTTL
	}
	if cfg.Timeout > 0 {
		gc.Timeout = cfg.Timeout
	}
	gc.MaxRetries = cfg.MaxRetries
	if cfg.ChunkSize > 0 {
		gc.ChunkSize = cfg.ChunkSize
	}
	gc.UserAgent = cfg.UserAgent
	return gc
}

// openServices opens the cache and builds the gateway and PubMed client.
func openServices(ctx context.Context, cfg *config.Config) (*services, error) {
	backend, err := openCache(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	logger := observability.Logger()
	gw, err := gateway.New(gatewayConfig(cfg.PubMed),
		gateway.WithCache(backend.cache),
		gateway.WithLogger(logger),
	)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	if logger != nil {
		settings := gw.Settings()
		logger.Debug("Gateway ready",
			zap.String("cache_driver", backend.driver),
			zap.Bool("api_key", settings.APIKeyEnabled),
			zap.Duration("min_interval", settings.MinInterval))
	}

	return &services{
		cfg:     cfg,
		backend: backend,
		gateway: gw,
		client: &pubmed.Client{
			Gateway:       gw,
			LocalKeywords: cfg.PubMed.LocalKeywords,
			Logger:        logger,
		},
	}, nil
}

func newTrendingService(cfg *config.Config) *trending.Service {
	timeout := cfg.Trending.Timeout
	likesURL := cfg.Trending.LikesURL
	if likesURL == "" {
		likesURL = trending.DefaultLikesURL
	}
	return &trending.Service{
		Likes:       &trending.LikeSource{URL: likesURL, Timeout: timeout},
		Fs:          afero.NewOsFs(),
		CatalogPath: cfg.Trending.CatalogPath,
		CatalogURL:  cfg.Trending.CatalogURL,
		Client:      &http.Client{Timeout: timeout},
		Options: trending.Options{
			Window: cfg.Trending.Window,
			Limit:  cfg.Trending.Limit,
		},
	}
}

var errNoDurableCache = errors.New("the memory cache driver keeps no durable entries")
