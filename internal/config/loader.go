// Package config provides centralized configuration management for pubgate.
// Defaults are registered on a viper instance, overlaid by an optional YAML
// file, then environment variables (mapped with gofulmen/config env specs)
// and finally runtime overrides.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// AppName names the XDG config, data and cache directories.
	AppName = "pubgate"

	// EnvPrefix prefixes every mapped environment variable.
	EnvPrefix = "PUBGATE_"
)

var (
	// appConfig holds the current application configuration
	appConfig  *Config
	configFile string
	configUsed string
	configMu   sync.RWMutex
)

// EnvVarSpec defines environment variable mappings for config fields
// following the pattern: {PREFIX}{NAME} maps to config path
type EnvVarSpec = gfconfig.EnvVarSpec

// Environment variable types
const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// SetConfigFile pins the YAML file Load reads. An empty path restores
// discovery in the XDG config directory and ./config.
func SetConfigFile(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	configFile = strings.TrimSpace(path)
}

// ConfigFileUsed returns the file read by the last Load, if any.
func ConfigFileUsed() string {
	configMu.RLock()
	defer configMu.RUnlock()
	return configUsed
}

// Load builds the configuration. It is safe to call repeatedly, for
// example on SIGHUP.
func Load(ctx context.Context, runtimeOverrides ...map[string]any) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	used, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	envOverrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}
	if envOverrides == nil {
		envOverrides = map[string]any{}
	}
	if value := strings.TrimSpace(os.Getenv(EnvPrefix + "RATE_LIMIT_RPS")); value != "" {
		rps, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid rate limit rps: %w", err)
		}
		ensureMap(envOverrides, "rate_limit")["requests_per_second"] = rps
	}

	applyOverrides(v, "", envOverrides)
	for _, overrides := range runtimeOverrides {
		applyOverrides(v, "", overrides)
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}
	cfg.PubMed.APIKey = ResolveAPIKey(cfg.PubMed.APIKey)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = cfg
	configUsed = used
	configMu.Unlock()

	return cfg, nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// ResolveAPIKey returns the configured key, falling back to the
// PUBMED_API_KEY and NCBI_API_KEY environment variables.
func ResolveAPIKey(configured string) string {
	if key := strings.TrimSpace(configured); key != "" {
		return key
	}
	for _, name := range []string{"PUBMED_API_KEY", "NCBI_API_KEY"} {
		if key := strings.TrimSpace(os.Getenv(name)); key != "" {
			return key
		}
	}
	return ""
}

// Validate rejects values no component can run with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var problems []string
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port out of range: %d", cfg.Server.Port))
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Store.Driver)) {
	case "", "sqlite", "libsql", "redis", "memory":
	default:
		problems = append(problems, fmt.Sprintf("store.driver unsupported: %s", cfg.Store.Driver))
	}
	if cfg.PubMed.MinInterval < 0 {
		problems = append(problems, "pubmed.min_interval must not be negative")
	}
	if cfg.PubMed.CacheTTL < 0 {
		problems = append(problems, "pubmed.cache_ttl must not be negative")
	}
	if cfg.RateLimit.Enabled && cfg.RateLimit.RequestsPerSecond <= 0 {
		problems = append(problems, "rate_limit.requests_per_second must be positive when enabled")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func readConfigFile(v *viper.Viper) (string, error) {
	configMu.RLock()
	explicit := configFile
	configMu.RUnlock()

	if explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return "", fmt.Errorf("read config file %s: %w", explicit, err)
		}
		return v.ConfigFileUsed(), nil
	}

	if dir := gfconfig.GetAppConfigDir(AppName); strings.TrimSpace(dir) != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath("./config")
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("read config file: %w", err)
	}
	return v.ConfigFileUsed(), nil
}

// applyOverrides sets nested override maps as dotted viper keys so they
// take precedence over the file and defaults.
func applyOverrides(v *viper.Viper, prefix string, overrides map[string]any) {
	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		path := strings.ToLower(key)
		if prefix != "" {
			path = prefix + "." + path
		}
		if nested, ok := overrides[key].(map[string]any); ok {
			applyOverrides(v, path, nested)
			continue
		}
		v.Set(path, overrides[key])
	}
}

// SetDefaults registers default configuration values.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Store defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "")
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")
	v.SetDefault("store.key_prefix", "pubgate:cache")

	// PubMed gateway defaults
	v.SetDefault("pubmed.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("pubmed.api_key", "")
	v.SetDefault("pubmed.namespace", "pubmed")
	v.SetDefault("pubmed.min_interval", "0s")
	v.SetDefault("pubmed.cache_ttl", "24h")
	v.SetDefault("pubmed.timeout", "20s")
	v.SetDefault("pubmed.max_retries", 4)
	v.SetDefault("pubmed.chunk_size", 75)
	v.SetDefault("pubmed.user_agent", "pubgate")
	v.SetDefault("pubmed.local_keywords", []string{"rochester", "mayo"})
	v.SetDefault("pubmed.location_term", "")

	// Trending defaults
	v.SetDefault("trending.likes_url", "")
	v.SetDefault("trending.catalog_path", "")
	v.SetDefault("trending.catalog_url", "")
	v.SetDefault("trending.window", "336h")
	v.SetDefault("trending.limit", 5)
	v.SetDefault("trending.timeout", "15s")

	// Featured report defaults
	v.SetDefault("featured.enabled", false)
	v.SetDefault("featured.schedule", "0 6 * * 0")
	v.SetDefault("featured.output_path", "featured_weekly.json")
	v.SetDefault("featured.limit", 10)

	// Inbound API rate limit defaults
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 10.0)
	v.SetDefault("rate_limit.burst", 20)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "STRUCTURED")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Health check defaults
	v.SetDefault("health.enabled", true)

	// Debug defaults
	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.pprof_enabled", false)
}

// getEnvSpecs returns environment variable specifications for config mapping
// Maps {PREFIX}{NAME} environment variables to config paths
func getEnvSpecs() []EnvVarSpec {
	prefix := EnvPrefix

	return []EnvVarSpec{
		// Server config
		{Name: prefix + "HOST", Path: []string{"server", "host"}, Type: EnvString},
		{Name: prefix + "PORT", Path: []string{"server", "port"}, Type: EnvInt},
		// Duration fields are parsed as strings and converted by mapstructure decode hook
		{Name: prefix + "READ_TIMEOUT", Path: []string{"server", "read_timeout"}, Type: EnvString},
		{Name: prefix + "WRITE_TIMEOUT", Path: []string{"server", "write_timeout"}, Type: EnvString},
		{Name: prefix + "IDLE_TIMEOUT", Path: []string{"server", "idle_timeout"}, Type: EnvString},
		{Name: prefix + "SHUTDOWN_TIMEOUT", Path: []string{"server", "shutdown_timeout"}, Type: EnvString},

		{Name: prefix + "LOG_LEVEL", Path: []string{"logging", "level"}, Type: EnvString},
		{Name: prefix + "LOG_PROFILE", Path: []string{"logging", "profile"}, Type: EnvString},

		// Store config
		{Name: prefix + "DB_DRIVER", Path: []string{"store", "driver"}, Type: EnvString},
		{Name: prefix + "DB_PATH", Path: []string{"store", "path"}, Type: EnvString},
		{Name: prefix + "DB_URL", Path: []string{"store", "url"}, Type: EnvString},
		{Name: prefix + "DB_AUTH_TOKEN", Path: []string{"store", "auth_token"}, Type: EnvString},
		{Name: prefix + "DB_KEY_PREFIX", Path: []string{"store", "key_prefix"}, Type: EnvString},

		// Gateway config
		{Name: prefix + "PUBMED_BASE_URL", Path: []string{"pubmed", "base_url"}, Type: EnvString},
		{Name: prefix + "PUBMED_API_KEY", Path: []string{"pubmed", "api_key"}, Type: EnvString},
		{Name: prefix + "PUBMED_NAMESPACE", Path: []string{"pubmed", "namespace"}, Type: EnvString},
		{Name: prefix + "PUBMED_MIN_INTERVAL", Path: []string{"pubmed", "min_interval"}, Type: EnvString},
		{Name: prefix + "PUBMED_CACHE_TTL", Path: []string{"pubmed", "cache_ttl"}, Type: EnvString},
		{Name: prefix + "PUBMED_TIMEOUT", Path: []string{"pubmed", "timeout"}, Type: EnvString},
		{Name: prefix + "PUBMED_MAX_RETRIES", Path: []string{"pubmed", "max_retries"}, Type: EnvInt},
		{Name: prefix + "PUBMED_CHUNK_SIZE", Path: []string{"pubmed", "chunk_size"}, Type: EnvInt},
		{Name: prefix + "PUBMED_LOCAL_KEYWORDS", Path: []string{"pubmed", "local_keywords"}, Type: EnvString},

		// Trending and featured config
		{Name: prefix + "TRENDING_LIKES_URL", Path: []string{"trending", "likes_url"}, Type: EnvString},
		{Name: prefix + "TRENDING_CATALOG_PATH", Path: []string{"trending", "catalog_path"}, Type: EnvString},
		{Name: prefix + "TRENDING_CATALOG_URL", Path: []string{"trending", "catalog_url"}, Type: EnvString},
		{Name: prefix + "TRENDING_WINDOW", Path: []string{"trending", "window"}, Type: EnvString},
		{Name: prefix + "TRENDING_LIMIT", Path: []string{"trending", "limit"}, Type: EnvInt},
		{Name: prefix + "FEATURED_ENABLED", Path: []string{"featured", "enabled"}, Type: EnvBool},
		{Name: prefix + "FEATURED_SCHEDULE", Path: []string{"featured", "schedule"}, Type: EnvString},
		{Name: prefix + "FEATURED_OUTPUT_PATH", Path: []string{"featured", "output_path"}, Type: EnvString},
		{Name: prefix + "FEATURED_LIMIT", Path: []string{"featured", "limit"}, Type: EnvInt},

		// Inbound rate limit; RATE_LIMIT_RPS is parsed separately as a float
		{Name: prefix + "RATE_LIMIT_ENABLED", Path: []string{"rate_limit", "enabled"}, Type: EnvBool},
		{Name: prefix + "RATE_LIMIT_BURST", Path: []string{"rate_limit", "burst"}, Type: EnvInt},

		// Metrics config
		{Name: prefix + "METRICS_ENABLED", Path: []string{"metrics", "enabled"}, Type: EnvBool},
		{Name: prefix + "METRICS_PORT", Path: []string{"metrics", "port"}, Type: EnvInt},

		// Health config
		{Name: prefix + "HEALTH_ENABLED", Path: []string{"health", "enabled"}, Type: EnvBool},

		// Debug config
		{Name: prefix + "DEBUG_ENABLED", Path: []string{"debug", "enabled"}, Type: EnvBool},
		{Name: prefix + "DEBUG_PPROF_ENABLED", Path: []string{"debug", "pprof_enabled"}, Type: EnvBool},
	}
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := gfconfig.GetAppConfigDir(AppName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	return gfconfig.GetAppDataDir(AppName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	dataDir := gfconfig.GetAppDataDir(AppName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + AppName + ".db"
	}
	return filepath.Join(dataDir, AppName+".db")
}

func ensureMap(parent map[string]any, key string) map[string]any {
	if parent == nil {
		return map[string]any{}
	}
	if existing, ok := parent[key]; ok {
		if typed, ok := existing.(map[string]any); ok {
			return typed
		}
	}
	next := map[string]any{}
	parent[key] = next
	return next
}
