// Package gateway serializes, de-duplicates, retries and caches calls to the
// NCBI E-utilities API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/medcityai/pubgate/internal/core"
	"github.com/medcityai/pubgate/internal/core/engine"
	"github.com/medcityai/pubgate/internal/metrics"
)

const (
	DefaultBaseURL   = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
	DefaultNamespace = "pubmed"
	DefaultCacheTTL  = 24 * time.Hour
	DefaultChunkSize = 75
)

// Config controls gateway behaviour. Start from DefaultConfig.
type Config struct {
	BaseURL     string
	APIKey      string
	Namespace   string
	MinInterval time.Duration
	CacheTTL    time.Duration
	Timeout     time.Duration
	MaxRetries  int
	ChunkSize   int
	UserAgent   string
}

// DefaultConfig returns the upstream client defaults.
func DefaultConfig() Config {
	policy := engine.DefaultRetryPolicy()
	return Config{
		BaseURL:    DefaultBaseURL,
		Namespace:  DefaultNamespace,
		CacheTTL:   DefaultCacheTTL,
		Timeout:    policy.Timeout,
		MaxRetries: policy.MaxRetries,
		ChunkSize:  DefaultChunkSize,
	}
}

// Settings is the effective configuration of a gateway.
type Settings struct {
	BaseURL        string        `json:"base_url" yaml:"base_url"`
	Namespace      string        `json:"namespace" yaml:"namespace"`
	APIKeyEnabled  bool          `json:"api_key_enabled" yaml:"api_key_enabled"`
	MinInterval    time.Duration `json:"min_interval" yaml:"min_interval"`
	CacheTTL       time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`
	MaxRetries     int           `json:"max_retries" yaml:"max_retries"`
	ChunkSize      int           `json:"chunk_size" yaml:"chunk_size"`
}

// Option customises a Gateway.
type Option func(*options)

type options struct {
	client engine.HTTPDoer
	cache  Cache
	logger *logging.Logger
	clock  func() time.Time
	sleep  engine.SleepFunc
}

// WithHTTPClient sets the HTTP client used for upstream calls.
func WithHTTPClient(client engine.HTTPDoer) Option {
	return func(o *options) { o.client = client }
}

// WithCache sets the response cache. The default is an in-memory cache.
func WithCache(cache Cache) Option {
	return func(o *options) { o.cache = cache }
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock sets the time source for spacing and cache expiry.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithSleep sets the sleep used for spacing and retry delays.
func WithSleep(sleep engine.SleepFunc) Option {
	return func(o *options) { o.sleep = sleep }
}

// Gateway owns the dispatch queue, the in-flight registry and the cache.
type Gateway struct {
	cfg     Config
	cache   Cache
	logger  *logging.Logger
	clock   func() time.Time
	sched   *engine.Scheduler
	fetcher *engine.Fetcher
	group   singleflight.Group
}

// New builds a gateway from cfg.
func New(cfg Config, opts ...Option) (*Gateway, error) {
	o := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if strings.TrimSpace(cfg.Namespace) == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = engine.MinIntervalFor(cfg.APIKey)
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = engine.DefaultRetryPolicy().Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}

	if o.cache == nil {
		o.cache = NewMemoryCache()
	}
	if o.client == nil {
		o.client = &http.Client{}
	}

	g := &Gateway{
		cfg:    cfg,
		cache:  o.cache,
		logger: o.logger,
		clock:  o.clock,
	}

	policy := engine.DefaultRetryPolicy()
	policy.MaxRetries = cfg.MaxRetries
	policy.Timeout = cfg.Timeout

	g.sched = &engine.Scheduler{
		MinInterval: cfg.MinInterval,
		Clock:       o.clock,
		Sleep:       o.sleep,
		OnDispatch:  metrics.RecordDispatch,
	}
	g.fetcher = &engine.Fetcher{
		Client:    o.client,
		Policy:    policy,
		Sleep:     o.sleep,
		Clock:     o.clock,
		UserAgent: cfg.UserAgent,
		OnRetry:   g.onRetry,
	}

	return g, nil
}

// RequestJSON returns the compacted JSON body for path and params.
func (g *Gateway) RequestJSON(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	body, err := g.request(ctx, path, params, core.ResponseJSON)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// RequestText returns the body for path and params as text.
func (g *Gateway) RequestText(ctx context.Context, path string, params url.Values) (string, error) {
	body, err := g.request(ctx, path, params, core.ResponseText)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// URL returns the canonical URL the gateway would request.
func (g *Gateway) URL(path string, params url.Values) string {
	return BuildURL(g.cfg.BaseURL, path, params, g.cfg.APIKey)
}

// Settings reports the effective configuration.
func (g *Gateway) Settings() Settings {
	return Settings{
		BaseURL:        g.cfg.BaseURL,
		Namespace:      g.cfg.Namespace,
		APIKeyEnabled:  g.cfg.APIKey != "",
		MinInterval:    g.cfg.MinInterval,
		CacheTTL:       g.cfg.CacheTTL,
		RequestTimeout: g.cfg.Timeout,
		MaxRetries:     g.cfg.MaxRetries,
		ChunkSize:      g.cfg.ChunkSize,
	}
}

// State reports the dispatch queue.
func (g *Gateway) State() core.DispatchState {
	return g.sched.State()
}

func (g *Gateway) request(ctx context.Context, path string, params url.Values, rt core.ResponseType) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	rawURL := g.URL(path, params)
	cacheKey := CacheKey(g.cfg.Namespace, rt, rawURL)

	data, result := g.lookup(ctx, cacheKey, rt)
	metrics.RecordCacheLookup(result)
	if data != nil {
		return data, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := g.group.DoChan(InflightKey(rt, rawURL), func() (any, error) {
		if data, _ := g.lookup(detached, cacheKey, rt); data != nil {
			return data, nil
		}

		body, err := g.sched.Do(detached, func(jobCtx context.Context) ([]byte, error) {
			return g.dispatch(jobCtx, rawURL, rt)
		})
		if err != nil {
			g.recordFailure(rawURL, err)
			return nil, err
		}

		g.store(detached, cacheKey, rt, body)
		return body, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.RecordSharedCall()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *Gateway) dispatch(ctx context.Context, rawURL string, rt core.ResponseType) ([]byte, error) {
	body, err := g.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if rt != core.ResponseJSON {
		return body, nil
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		return nil, &engine.RequestError{Kind: engine.KindDecode, URL: engine.RedactURL(rawURL), Attempts: 1, Err: err}
	}
	return compact.Bytes(), nil
}

// lookup returns a live cached payload, or nil with the reason for the miss.
func (g *Gateway) lookup(ctx context.Context, key string, rt core.ResponseType) ([]byte, string) {
	raw, err := g.cache.Get(ctx, key)
	if err != nil {
		g.debug("Cache read failed", zap.String("key", engine.RedactURL(key)), zap.Error(err))
		return nil, "miss"
	}
	if raw == nil {
		return nil, "miss"
	}

	ts, data, err := DecodeEnvelope(rt, raw)
	if err != nil {
		g.evict(ctx, key)
		return nil, "corrupt"
	}
	if g.now().Sub(ts) >= g.cfg.CacheTTL {
		g.evict(ctx, key)
		return nil, "expired"
	}
	if data == nil {
		data = []byte{}
	}
	return data, "hit"
}

func (g *Gateway) store(ctx context.Context, key string, rt core.ResponseType, body []byte) {
	value, err := EncodeEnvelope(rt, body, g.now())
	if err != nil {
		g.debug("Cache encode failed", zap.Error(err))
		return
	}
	if err := g.cache.Set(ctx, key, value); err != nil {
		g.warn("Cache write failed", zap.String("key", engine.RedactURL(key)), zap.Error(err))
	}
}

func (g *Gateway) evict(ctx context.Context, key string) {
	if err := g.cache.Delete(ctx, key); err != nil {
		g.debug("Cache delete failed", zap.String("key", engine.RedactURL(key)), zap.Error(err))
	}
}

func (g *Gateway) onRetry(event engine.RetryEvent) {
	cause := "network"
	if event.StatusCode != 0 {
		cause = strconv.Itoa(event.StatusCode)
	}
	metrics.RecordRetry(cause)

	fields := []zap.Field{
		zap.String("url", event.URL),
		zap.Int("attempt", event.Attempt+1),
		zap.Duration("delay", event.Delay),
		zap.String("cause", cause),
	}
	if event.Err != nil {
		fields = append(fields, zap.Error(event.Err))
	}
	if event.RetryAfter {
		fields = append(fields, zap.Bool("retry_after", true))
	}
	g.warn("Retrying PubMed request", fields...)
}

func (g *Gateway) recordFailure(rawURL string, err error) {
	kind := "unknown"
	var reqErr *engine.RequestError
	if errors.As(err, &reqErr) {
		kind = string(reqErr.Kind)
	}
	metrics.RecordRequestFailure(kind)
	g.warn("PubMed request failed", zap.String("url", engine.RedactURL(rawURL)), zap.String("kind", kind), zap.Error(err))
}

func (g *Gateway) now() time.Time {
	if g.clock != nil {
		return g.clock()
	}
	return time.Now().UTC()
}

func (g *Gateway) debug(msg string, fields ...zap.Field) {
	if g.logger != nil {
		g.logger.Debug(msg, fields...)
	}
}

func (g *Gateway) warn(msg string, fields ...zap.Field) {
	if g.logger != nil {
		g.logger.Warn(msg, fields...)
	}
}
