package metrics

import (
	"time"

	"github.com/medcityai/pubgate/internal/observability"
)

// Gateway metric names
const (
	GatewayCacheLookupsTotal = "gateway_cache_lookups_total"
	GatewayDispatchesTotal   = "gateway_dispatches_total"
	GatewayDispatchWait      = "gateway_dispatch_wait_ms"
	GatewayRetriesTotal      = "gateway_retries_total"
	GatewayFailuresTotal     = "gateway_request_failures_total"
	GatewaySharedCallsTotal  = "gateway_shared_calls_total"
)

// RecordCacheLookup records a cache lookup outcome (hit, miss, expired, corrupt).
func RecordCacheLookup(result string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			GatewayCacheLookupsTotal,
			1,
			map[string]string{
				"result": result,
			},
		)
	}
}

// RecordDispatch records an upstream dispatch and the spacing wait before it.
func RecordDispatch(wait time.Duration) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(GatewayDispatchesTotal, 1, nil)
		_ = observability.TelemetrySystem.Histogram(GatewayDispatchWait, wait, nil)
	}
}

// RecordRetry records a retried attempt by cause (network or HTTP status).
func RecordRetry(cause string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			GatewayRetriesTotal,
			1,
			map[string]string{
				"cause": cause,
			},
		)
	}
}

// RecordRequestFailure records a terminal gateway failure by error kind.
func RecordRequestFailure(kind string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			GatewayFailuresTotal,
			1,
			map[string]string{
				"kind": kind,
			},
		)
	}
}

// RecordSharedCall records a caller that received a de-duplicated result.
func RecordSharedCall() {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(GatewaySharedCallsTotal, 1, nil)
	}
}
