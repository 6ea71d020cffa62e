package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/medcityai/pubgate/internal/config"
	"github.com/medcityai/pubgate/internal/core/store"
	errwrap "github.com/medcityai/pubgate/internal/errors"
	"github.com/medcityai/pubgate/internal/observability"
)

var doctorUpstream bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long:  "Run diagnostic checks on the system and suggest fixes for common issues.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		log := observability.CLILogger
		log.Info("=== " + config.AppName + " doctor ===")
		log.Info("")
		log.Info("Running diagnostic checks...")
		log.Info("")

		allChecks := true
		totalChecks := 7

		// Check 1: Go version
		goVersion := runtime.Version()
		if goVersion >= "go1.23" {
			log.Info(fmt.Sprintf("[1/%d] Checking Go version... ✅ %s", totalChecks, goVersion), zap.String("go_version", goVersion))
		} else {
			log.Warn(fmt.Sprintf("[1/%d] Checking Go version... ⚠️  %s (recommended: go1.23+)", totalChecks, goVersion), zap.String("go_version", goVersion))
			allChecks = false
		}

		// Check 2: Crucible access
		version := crucible.GetVersion()
		if version.Crucible != "" {
			log.Info(fmt.Sprintf("[2/%d] Checking Crucible access... ✅ v%s", totalChecks, version.Crucible), zap.String("crucible_version", version.Crucible))
		} else {
			log.Error(fmt.Sprintf("[2/%d] Checking Crucible access... ❌ Cannot access Crucible", totalChecks))
			ExitWithCode(log, foundry.ExitExternalServiceUnavailable, "Cannot access Crucible", errwrap.NewExternalServiceError("Crucible service unavailable"))
		}

		// Check 3: Config directory
		configPath := config.DefaultConfigPath()
		if configPath == "" {
			log.Error(fmt.Sprintf("[3/%d] Checking config directory... ❌ Cannot resolve config directory", totalChecks))
			ExitWithCode(log, foundry.ExitFileNotFound, "Cannot resolve config directory", errwrap.NewInternalError("config directory not resolved"))
		}
		log.Info(fmt.Sprintf("[3/%d] Checking config directory... ✅ %s", totalChecks, filepath.Dir(configPath)), zap.String("config_dir", filepath.Dir(configPath)))

		// Check 4: Configuration
		cfg, cfgErr := config.Load(ctx)
		if cfgErr != nil {
			log.Warn(fmt.Sprintf("[4/%d] Checking configuration... ⚠️  %v", totalChecks, cfgErr), zap.Error(cfgErr))
			allChecks = false
		} else {
			source := config.ConfigFileUsed()
			if source == "" {
				source = "defaults and environment"
			}
			log.Info(fmt.Sprintf("[4/%d] Checking configuration... ✅ %s", totalChecks, source), zap.String("config_source", source))
		}

		// Check 5: Response cache
		if cfgErr == nil {
			if msg, ok := checkCache(ctx, cfg); ok {
				log.Info(fmt.Sprintf("[5/%d] Checking response cache... ✅ %s", totalChecks, msg))
			} else {
				log.Warn(fmt.Sprintf("[5/%d] Checking response cache... ⚠️  %s", totalChecks, msg))
				allChecks = false
			}
		} else {
			log.Warn(fmt.Sprintf("[5/%d] Checking response cache... ⚠️  skipped (config not loaded)", totalChecks))
		}

		// Check 6: API key
		if cfgErr == nil {
			if cfg.PubMed.APIKey != "" {
				log.Info(fmt.Sprintf("[6/%d] Checking NCBI API key... ✅ configured (10 requests/s)", totalChecks))
			} else {
				log.Warn(fmt.Sprintf("[6/%d] Checking NCBI API key... ⚠️  not set (3 requests/s; set PUBMED_API_KEY)", totalChecks))
			}
		} else {
			log.Warn(fmt.Sprintf("[6/%d] Checking NCBI API key... ⚠️  skipped (config not loaded)", totalChecks))
		}

		// Check 7: Upstream reachability
		switch {
		case !doctorUpstream:
			log.Info(fmt.Sprintf("[7/%d] Checking E-utilities... skipped (use --upstream)", totalChecks))
		case cfgErr != nil:
			log.Warn(fmt.Sprintf("[7/%d] Checking E-utilities... ⚠️  skipped (config not loaded)", totalChecks))
		default:
			elapsed, err := pingUpstream(ctx, cfg)
			if err != nil {
				log.Warn(fmt.Sprintf("[7/%d] Checking E-utilities... ⚠️  %v", totalChecks, err), zap.Error(err))
				allChecks = false
			} else {
				log.Info(fmt.Sprintf("[7/%d] Checking E-utilities... ✅ reachable (%s)", totalChecks, elapsed.Round(time.Millisecond)),
					zap.Duration("latency", elapsed))
			}
		}

		log.Info("")
		if allChecks {
			log.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", config.AppName))
		} else {
			log.Warn("⚠️  Some checks failed. Review the output above for details.")
		}
		log.Info("")
		log.Info("=== End Diagnostics ===")
	},
}

func checkCache(ctx context.Context, cfg *config.Config) (string, bool) {
	backend, err := openCache(ctx, cfg)
	if err != nil {
		return fmt.Sprintf("cannot open %s cache: %v", cfg.Store.Driver, err), false
	}
	defer backend.Close() //nolint:errcheck

	if backend.admin == nil {
		return backend.driver + " (not persisted)", true
	}
	stats, err := backend.admin.CacheStats(ctx)
	if err != nil {
		return fmt.Sprintf("%s stats unavailable: %v", backend.driver, err), false
	}
	msg := fmt.Sprintf("%s, %s entries, %s", backend.driver, humanize.Comma(stats.Entries), humanize.Bytes(uint64(stats.Bytes)))
	if stats.Newest != nil {
		msg += ", last write " + humanize.Time(*stats.Newest)
	}
	return msg, true
}

// pingUpstream sends one einfo request through the gateway.
func pingUpstream(ctx context.Context, cfg *config.Config) (time.Duration, error) {
	memCfg := *cfg
	memCfg.Store.Driver = store.DriverMemory
	svc, err := openServices(ctx, &memCfg)
	if err != nil {
		return 0, err
	}
	defer svc.Close() //nolint:errcheck

	start := time.Now()
	params := url.Values{}
	params.Set("db", "pubmed")
	_, err = svc.gateway.RequestJSON(ctx, "einfo.fcgi", params)
	return time.Since(start), err
}

var (
	doctorInitForce   bool
	doctorInitAPIKey  string
	doctorResetConfig bool
	doctorResetData   bool
	doctorResetAll    bool
)

var doctorInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.DefaultConfigPath()
		if configPath == "" {
			return fmt.Errorf("config path not resolved")
		}

		if _, err := os.Stat(configPath); err == nil && !doctorInitForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
		}

		apiKey := strings.TrimSpace(doctorInitAPIKey)
		if strings.EqualFold(apiKey, "prompt") {
			key, err := promptForValue("Enter NCBI API key (leave blank to skip): ")
			if err != nil {
				return err
			}
			apiKey = key
		}

		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}

		mode := os.FileMode(0644)
		if apiKey != "" {
			mode = 0600
		}

		if err := os.WriteFile(configPath, []byte(buildInitConfig(apiKey)), mode); err != nil {
			return fmt.Errorf("write config file: %w", err)
		}

		observability.CLILogger.Info("Config initialized", zap.String("path", configPath))
		return nil
	},
}

var doctorConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration status and paths",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := observability.CLILogger
		configPath := config.DefaultConfigPath()
		dataDir := config.DefaultDataDir()

		log.Info("Configuration:")
		log.Info(fmt.Sprintf("  Config file:    %s (%s)", configPath, existenceStatus(fileExists(configPath))))
		if dataDir != "" {
			log.Info(fmt.Sprintf("  Data directory: %s (%s)", dataDir, existenceStatus(fileExists(dataDir))))
		} else {
			log.Info("  Data directory: (not resolved)")
		}

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			log.Warn("Config load failed", zap.Error(err))
			return nil
		}

		if cfg.Store.URL != "" {
			log.Info(fmt.Sprintf("  Cache store:    %s (%s, remote)", redactURL(cfg.Store.URL), cfg.Store.Driver))
		} else {
			absPath, _ := filepath.Abs(cfg.Store.Path)
			if info, statErr := os.Stat(absPath); statErr == nil {
				log.Info(fmt.Sprintf("  Cache store:    %s (%s)", absPath, humanize.Bytes(uint64(info.Size()))))
			} else if os.IsNotExist(statErr) {
				log.Info(fmt.Sprintf("  Cache store:    %s (not created yet)", absPath))
			} else {
				log.Warn("Cache store status error", zap.String("path", absPath), zap.Error(statErr))
			}
		}

		log.Info("")
		log.Info("Environment:")
		for _, name := range []string{"PUBMED_API_KEY", "NCBI_API_KEY", config.EnvPrefix + "ADMIN_TOKEN", config.EnvPrefix + "RATE_LIMIT_RPS"} {
			log.Info(fmt.Sprintf("  %s: %s", name, envStatus(name)))
		}

		log.Info("")
		log.Info("Effective Settings:")
		log.Info("  pubmed.base_url: " + cfg.PubMed.BaseURL)
		log.Info("  pubmed.cache_ttl: " + cfg.PubMed.CacheTTL.String())
		log.Info(fmt.Sprintf("  rate_limit.enabled: %t", cfg.RateLimit.Enabled))
		log.Info(fmt.Sprintf("  featured.enabled: %t", cfg.Featured.Enabled))
		return nil
	},
}

var doctorResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset user configuration and/or cached data",
	RunE: func(cmd *cobra.Command, args []string) error {
		if doctorResetAll {
			doctorResetConfig = true
			doctorResetData = true
		}

		if !doctorResetConfig && !doctorResetData {
			return fmt.Errorf("specify --config, --data, or --all")
		}

		if doctorResetConfig {
			configPath := config.DefaultConfigPath()
			if configPath == "" {
				observability.CLILogger.Warn("Config path not resolved; skipping config reset")
			} else if err := os.Remove(configPath); err == nil {
				observability.CLILogger.Info("Config removed", zap.String("path", configPath))
			} else if os.IsNotExist(err) {
				observability.CLILogger.Info("Config already removed", zap.String("path", configPath))
			} else {
				return fmt.Errorf("remove config file: %w", err)
			}
		}

		if doctorResetData {
			cfg, err := config.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Store.URL != "" {
				return fmt.Errorf("remote store configured; use 'cache purge' instead")
			}

			absPath, _ := filepath.Abs(cfg.Store.Path)
			if err := os.Remove(absPath); err == nil {
				observability.CLILogger.Info("Cache store removed", zap.String("path", absPath))
			} else if os.IsNotExist(err) {
				observability.CLILogger.Info("Cache store already removed", zap.String("path", absPath))
			} else {
				return fmt.Errorf("remove cache store: %w", err)
			}
		}

		return nil
	},
}

var doctorValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the current config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.DefaultConfigPath()
		if configPath == "" {
			return fmt.Errorf("config path not resolved")
		}
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return fmt.Errorf("config file not found: %s", configPath)
		}

		if _, err := config.Load(cmd.Context()); err != nil {
			return err
		}

		observability.CLILogger.Info("Config is valid", zap.String("path", configPath))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.AddCommand(doctorInitCmd)
	doctorCmd.AddCommand(doctorConfigCmd)
	doctorCmd.AddCommand(doctorResetCmd)
	doctorCmd.AddCommand(doctorValidateCmd)

	doctorCmd.Flags().BoolVar(&doctorUpstream, "upstream", false, "also send one einfo request to E-utilities")

	doctorInitCmd.Flags().BoolVar(&doctorInitForce, "force", false, "overwrite existing config file")
	doctorInitCmd.Flags().StringVar(&doctorInitAPIKey, "api-key", "", "set the NCBI API key or use 'prompt' to enter")

	doctorResetCmd.Flags().BoolVar(&doctorResetConfig, "config", false, "remove user config file")
	doctorResetCmd.Flags().BoolVar(&doctorResetData, "data", false, "remove the local cache store")
	doctorResetCmd.Flags().BoolVar(&doctorResetAll, "all", false, "remove config and data")
}

func buildInitConfig(apiKey string) string {
	lines := []string{
		"# " + config.AppName + " config - created by '" + config.AppName + " doctor init'",
		"pubmed:",
	}
	if strings.TrimSpace(apiKey) != "" {
		lines = append(lines, fmt.Sprintf("  api_key: %q", apiKey))
	} else {
		lines = append(lines, "  # api_key: \"\"  # or set PUBMED_API_KEY")
	}
	lines = append(lines,
		"  cache_ttl: 24h",
		"store:",
		"  driver: sqlite",
		"rate_limit:",
		"  enabled: true",
		"  requests_per_second: 10",
		"  burst: 20",
		"featured:",
		"  enabled: false",
		"  schedule: \"0 6 * * 0\"",
	)

	return strings.Join(lines, "\n") + "\n"
}

func promptForValue(prompt string) (string, error) {
	if _, err := fmt.Fprint(os.Stdout, prompt); err != nil {
		return "", err
	}
	reader := bufio.NewReader(os.Stdin)
	value, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func existenceStatus(exists bool) string {
	if exists {
		return "exists"
	}
	return "missing"
}

func envStatus(name string) string {
	if strings.TrimSpace(os.Getenv(name)) != "" {
		return "(set)"
	}
	return "(not set)"
}

// redactURL drops credentials and query parameters from a store URL.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "(invalid url)"
	}
	u.User = nil
	u.RawQuery = ""
	return u.String()
}
