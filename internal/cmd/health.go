package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	errwrap "github.com/medcityai/pubgate/internal/errors"
	"github.com/medcityai/pubgate/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Run a self-health check to verify the application can start successfully.",
	Run: func(cmd *cobra.Command, args []string) {
		// Can't log if logger is nil, so use stderr
		if observability.CLILogger == nil {
			ExitWithCodeStderr(foundry.ExitConfigInvalid, "Logger not initialized", errwrap.NewConfigInvalidError("Logger not initialized"))
			return
		}
		log := observability.CLILogger
		log.Info("Running health check...")

		if versionInfo.Version == "" {
			log.Error("❌ FAIL: Version information missing")
			ExitWithCode(log, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewConfigInvalidError("Version information missing"))
			return
		}
		log.Debug("Version check passed", zap.String("version", versionInfo.Version))
		log.Info("✅ Version information available")
		log.Info("✅ Logger initialized")

		cfg, err := loadConfig(cmd, nil)
		if err != nil {
			log.Error("❌ FAIL: Configuration invalid", zap.Error(err))
			ExitWithCode(log, foundry.ExitConfigInvalid, "Configuration invalid", errwrap.WrapConfigInvalid(cmd.Context(), err, "config load failed"))
			return
		}
		log.Info("✅ Configuration loaded")

		backend, err := openCache(cmd.Context(), cfg)
		if err != nil {
			log.Error("❌ FAIL: Response cache unavailable", zap.Error(err))
			ExitWithCode(log, foundry.ExitExternalServiceUnavailable, "Response cache unavailable", errwrap.WrapInternal(cmd.Context(), err, "cache open failed"))
			return
		}
		defer backend.Close() //nolint:errcheck
		if err := backend.CheckHealth(cmd.Context()); err != nil {
			log.Error("❌ FAIL: Response cache unhealthy", zap.Error(err))
			ExitWithCode(log, foundry.ExitExternalServiceUnavailable, "Response cache unhealthy", errwrap.WrapInternal(cmd.Context(), err, "cache check failed"))
			return
		}
		log.Info("✅ Response cache ready", zap.String("driver", backend.driver))

		log.Info("")
		log.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
