package metrics

import (
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/telemetry"
	telemetrytesting "github.com/fulmenhq/gofulmen/telemetry/testing"
	"github.com/stretchr/testify/require"

	"github.com/medcityai/pubgate/internal/observability"
)

func setupTelemetry(t *testing.T) *telemetrytesting.FakeCollector {
	t.Helper()

	collector := telemetrytesting.NewFakeCollector()
	sys, err := telemetry.NewSystem(&telemetry.Config{
		Enabled: true,
		Emitter: collector,
	})
	require.NoError(t, err)

	original := observability.TelemetrySystem
	observability.TelemetrySystem = sys
	t.Cleanup(func() {
		observability.TelemetrySystem = original
	})
	return collector
}

func TestGatewayMetrics(t *testing.T) {
	collector := setupTelemetry(t)

	RecordCacheLookup("hit")
	RecordCacheLookup("miss")
	RecordDispatch(120 * time.Millisecond)
	RecordRetry("status")
	RecordRequestFailure("network")
	RecordSharedCall()

	require.Equal(t, 2, collector.CountMetricsByName(GatewayCacheLookupsTotal))
	require.Equal(t, 1, collector.CountMetricsByName(GatewayDispatchesTotal))
	require.GreaterOrEqual(t, collector.CountMetricsByName(GatewayDispatchWait), 1)
	require.Equal(t, 1, collector.CountMetricsByName(GatewayRetriesTotal))
	require.Equal(t, 1, collector.CountMetricsByName(GatewayFailuresTotal))
	require.Equal(t, 1, collector.CountMetricsByName(GatewaySharedCallsTotal))
}

func TestAppMetrics(t *testing.T) {
	collector := setupTelemetry(t)

	RecordJobRun("featured", true, time.Second)
	RecordHealthCheck("store", false, time.Millisecond)
	RecordInboundRejected("/api/v1/search")
	RecordError("EXTERNAL_SERVICE_ERROR", 502)

	require.Equal(t, 1, collector.CountMetricsByName(JobRunsTotal))
	require.GreaterOrEqual(t, collector.CountMetricsByName(JobRunDuration), 1)
	require.Equal(t, 1, collector.CountMetricsByName(HealthCheckTotal))
	require.Equal(t, 1, collector.CountMetricsByName(InboundRejectedTotal))
	require.Equal(t, 1, collector.CountMetricsByName(ErrorsTotalName))
}

func TestMetricsWithoutTelemetry(t *testing.T) {
	original := observability.TelemetrySystem
	observability.TelemetrySystem = nil
	t.Cleanup(func() { observability.TelemetrySystem = original })

	RecordCacheLookup("hit")
	RecordDispatch(time.Millisecond)
	RecordJobRun("featured", false, 0)
	RecordPanic()
}
