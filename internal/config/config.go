package config

import (
	"time"
)

// Config represents the complete application configuration.
// Precedence, lowest first: built-in defaults, the YAML config file,
// environment variables, runtime overrides.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	PubMed    PubMedConfig    `mapstructure:"pubmed"`
	Trending  TrendingConfig  `mapstructure:"trending"`
	Featured  FeaturedConfig  `mapstructure:"featured"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Health    HealthConfig    `mapstructure:"health"`
	Debug     DebugConfig     `mapstructure:"debug"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig selects the durable response cache.
//
// Drivers: sqlite (pure Go, local file), libsql (local file or Turso URL),
// redis (URL), memory (process lifetime only).
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// PubMedConfig configures the E-utilities gateway.
type PubMedConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	Namespace string `mapstructure:"namespace"`

	// MinInterval overrides the dispatch spacing. Zero derives it from
	// whether an API key is configured.
	MinInterval time.Duration `mapstructure:"min_interval"`

	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`
	ChunkSize     int           `mapstructure:"chunk_size"`
	UserAgent     string        `mapstructure:"user_agent"`
	LocalKeywords []string      `mapstructure:"local_keywords"`
	LocationTerm  string        `mapstructure:"location_term"`
}

// TrendingConfig configures the trending article list.
type TrendingConfig struct {
	LikesURL    string        `mapstructure:"likes_url"`
	CatalogPath string        `mapstructure:"catalog_path"`
	CatalogURL  string        `mapstructure:"catalog_url"`
	Window      time.Duration `mapstructure:"window"`
	Limit       int           `mapstructure:"limit"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// FeaturedConfig configures the weekly featured report.
type FeaturedConfig struct {
	// Enabled schedules the report while serving.
	Enabled    bool   `mapstructure:"enabled"`
	Schedule   string `mapstructure:"schedule"`
	OutputPath string `mapstructure:"output_path"`
	Limit      int    `mapstructure:"limit"`
}

// RateLimitConfig limits inbound API requests per client.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated Prometheus endpoint port
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug and profiling configuration
type DebugConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// PprofEnabled controls whether pprof endpoints are exposed
	// WARNING: Only enable in development/staging environments
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}
