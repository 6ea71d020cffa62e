package observability_test

import (
	"testing"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medcityai/pubgate/internal/config"
	"github.com/medcityai/pubgate/internal/observability"
)

func TestCLILogger(t *testing.T) {
	observability.InitCLILogger("pubgate-test", true)
	require.NotNil(t, observability.CLILogger)
	observability.CLILogger.Debug("debug enabled", zap.String("mode", "verbose"))
}

func TestServerLoggerProfiles(t *testing.T) {
	t.Cleanup(func() { observability.ServerLogger = nil })

	for _, profile := range []string{"STRUCTURED", "simple", ""} {
		observability.InitServerLogger("pubgate-test", config.LoggingConfig{Level: "debug", Profile: profile}, "pubgate")
		require.NotNil(t, observability.ServerLogger, profile)
		observability.ServerLogger.Info("server logger ready",
			zap.String("profile", profile),
			zap.Int("request_id", 123))
	}
}

func TestLoggerPrefersServerLogger(t *testing.T) {
	t.Cleanup(func() { observability.ServerLogger = nil })

	observability.InitCLILogger("pubgate-test", false)
	observability.ServerLogger = nil
	require.Same(t, observability.CLILogger, observability.Logger())

	observability.InitServerLogger("pubgate-test", config.LoggingConfig{Level: "info"}, "")
	require.Same(t, observability.ServerLogger, observability.Logger())
}

func TestInitMetricsDisabled(t *testing.T) {
	require.NoError(t, observability.InitMetrics(config.MetricsConfig{Enabled: false, Port: 9191}, ""))
	require.Nil(t, observability.TelemetrySystem)
	require.False(t, observability.MetricsEnabled())
	require.Zero(t, observability.GetMetricsPort())
}

func TestCrucibleVersion(t *testing.T) {
	version := crucible.GetVersion()
	require.NotEmpty(t, version.Gofulmen)
	require.NotEmpty(t, version.Crucible)
}
