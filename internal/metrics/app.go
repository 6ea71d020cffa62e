package metrics

import (
	"time"

	"github.com/medcityai/pubgate/internal/observability"
)

// Application-level metrics following Prometheus conventions
const (
	JobRunsTotal   = "app_job_runs_total"
	JobRunDuration = "app_job_run_duration_ms"

	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	InboundRejectedTotal = "app_inbound_rate_limited_total"

	ServerStartTime = "app_server_start_time_seconds"
)

// RecordJobRun records a scheduled job execution (for example the weekly
// featured report).
func RecordJobRun(job string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			JobRunsTotal,
			1,
			map[string]string{
				"job":    job,
				"status": status,
			},
		)
		_ = observability.TelemetrySystem.Histogram(
			JobRunDuration,
			duration,
			map[string]string{
				"job": job,
			},
		)
	}
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			HealthCheckTotal,
			1,
			map[string]string{
				"check":  checkName,
				"status": status,
			},
		)

		_ = observability.TelemetrySystem.Histogram(
			HealthCheckDuration,
			duration,
			map[string]string{
				"check": checkName,
			},
		)
	}
}

// RecordInboundRejected counts API requests refused by the inbound limiter.
func RecordInboundRejected(route string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			InboundRejectedTotal,
			1,
			map[string]string{
				"route": route,
			},
		)
	}
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerStartTime,
			float64(timestamp),
			nil,
		)
	}
}
