package observability

import (
	"fmt"
	"net"
	"strconv"

	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/fulmenhq/gofulmen/telemetry/exporters"

	"github.com/medcityai/pubgate/internal/config"
)

// DefaultMetricsNamespace prefixes every exported metric.
const DefaultMetricsNamespace = "pubgate"

var (
	// TelemetrySystem receives gateway and HTTP metrics. Nil disables
	// emission.
	TelemetrySystem *telemetry.System

	// PrometheusExporter serves the scrape endpoint while serving.
	PrometheusExporter *exporters.PrometheusExporter

	metricsPort int
)

// InitMetrics starts the Prometheus exporter on cfg.Port (0 picks a free
// port) and installs the telemetry system. When cfg is disabled a disabled
// system is installed instead and no listener is opened.
func InitMetrics(cfg config.MetricsConfig, namespace string) error {
	if namespace == "" {
		namespace = DefaultMetricsNamespace
	}

	if !cfg.Enabled {
		sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false})
		if err != nil {
			return err
		}
		TelemetrySystem = nil
		PrometheusExporter = nil
		metricsPort = 0
		telemetry.SetGlobalSystem(sys)
		return nil
	}

	requestedPort := cfg.Port
	if requestedPort < 0 {
		requestedPort = 0
	}
	metricsPort = requestedPort

	exporter := exporters.NewPrometheusExporter(namespace, fmt.Sprintf(":%d", requestedPort))
	if err := exporter.Start(); err != nil {
		return fmt.Errorf("start prometheus exporter: %w", err)
	}
	if actualPort, err := resolvePort(exporter.GetAddr()); err == nil {
		metricsPort = actualPort
	}

	sys, err := telemetry.NewSystem(&telemetry.Config{
		Enabled: true,
		Emitter: exporter,
	})
	if err != nil {
		return err
	}

	PrometheusExporter = exporter
	TelemetrySystem = sys
	return nil
}

// MetricsEnabled reports whether metrics are being exported.
func MetricsEnabled() bool {
	return TelemetrySystem != nil && PrometheusExporter != nil
}

// GetMetricsPort returns the port the Prometheus exporter is listening on
func GetMetricsPort() int {
	return metricsPort
}

func resolvePort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, err
	}
	return port, nil
}
