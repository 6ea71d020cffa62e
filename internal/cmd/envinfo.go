package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/medcityai/pubgate/internal/config"
	"github.com/medcityai/pubgate/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display comprehensive environment, configuration, and version information.",
	Run: func(cmd *cobra.Command, args []string) {
		version := crucible.GetVersion()
		log := observability.CLILogger

		log.Info("=== pubgate Environment Information ===")
		log.Info("")

		log.Info("Application:")
		log.Info("  Name:       " + config.AppName)
		log.Info("  Version:    " + versionInfo.Version)
		log.Info("  Commit:     " + versionInfo.Commit)
		log.Info("  Built:      " + versionInfo.BuildDate)
		log.Info("")

		log.Info("SSOT:")
		log.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		log.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		log.Info("")

		log.Info("Runtime:")
		log.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		log.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		log.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		log.Info(fmt.Sprintf("  NumCPU:     %d", runtime.NumCPU()), zap.Int("num_cpu", runtime.NumCPU()))
		log.Info("")

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			log.Warn("Config load failed", zap.Error(err))
			return
		}

		configFile := config.ConfigFileUsed()
		if configFile == "" {
			configFile = config.DefaultConfigPath() + " (not found)"
		}

		log.Info("Configuration:")
		log.Info("  Server Host:    "+cfg.Server.Host, zap.String("host", cfg.Server.Host))
		log.Info(fmt.Sprintf("  Server Port:    %d", cfg.Server.Port), zap.Int("port", cfg.Server.Port))
		log.Info("  Log Level:      "+cfg.Logging.Level, zap.String("log_level", cfg.Logging.Level))
		log.Info("  Log Profile:    "+cfg.Logging.Profile, zap.String("log_profile", cfg.Logging.Profile))
		log.Info("  Cache Driver:   "+cfg.Store.Driver, zap.String("cache_driver", cfg.Store.Driver))
		if strings.TrimSpace(cfg.Store.URL) != "" {
			log.Info("  Cache URL:      " + redactURL(cfg.Store.URL))
		} else {
			log.Info("  Cache Path:     "+cfg.Store.Path, zap.String("cache_path", cfg.Store.Path))
		}
		log.Info(fmt.Sprintf("  Metrics:        %t (port %d)", cfg.Metrics.Enabled, cfg.Metrics.Port), zap.Int("metrics_port", cfg.Metrics.Port))
		log.Info("  Config File:    "+configFile, zap.String("config_file", configFile))
		log.Info("")

		settings := gatewayConfig(cfg.PubMed)
		log.Info("PubMed Gateway:")
		log.Info("  Base URL:       " + settings.BaseURL)
		log.Info("  Namespace:      " + settings.Namespace)
		log.Info(fmt.Sprintf("  API Key:        %t", settings.APIKey != ""), zap.Bool("api_key", settings.APIKey != ""))
		if settings.MinInterval > 0 {
			log.Info("  Min Interval:   " + settings.MinInterval.String())
		} else {
			log.Info("  Min Interval:   (derived from API key)")
		}
		log.Info("  Cache TTL:      " + settings.CacheTTL.String())
		log.Info("  Timeout:        " + settings.Timeout.String())
		log.Info(fmt.Sprintf("  Max Retries:    %d", settings.MaxRetries))
		log.Info(fmt.Sprintf("  Chunk Size:     %d", settings.ChunkSize))
		log.Info("")

		log.Info("Inbound Rate Limit:")
		log.Info(fmt.Sprintf("  Enabled:        %t", cfg.RateLimit.Enabled))
		log.Info(fmt.Sprintf("  Requests/s:     %g", cfg.RateLimit.RequestsPerSecond))
		log.Info(fmt.Sprintf("  Burst:          %d", cfg.RateLimit.Burst))
		log.Info("")

		log.Info("Trending:")
		log.Info("  Window:         " + cfg.Trending.Window.String())
		log.Info(fmt.Sprintf("  Limit:          %d", cfg.Trending.Limit))
		log.Info("  Catalog Path:   " + valueOrUnset(cfg.Trending.CatalogPath))
		log.Info("  Catalog URL:    " + valueOrUnset(cfg.Trending.CatalogURL))
		log.Info(fmt.Sprintf("  Featured:       %t (%s -> %s)", cfg.Featured.Enabled, cfg.Featured.Schedule, cfg.Featured.OutputPath))
		log.Info("")

		log.Info("=== End Environment Information ===")
	},
}

func valueOrUnset(value string) string {
	if strings.TrimSpace(value) == "" {
		return "(unset)"
	}
	return value
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
