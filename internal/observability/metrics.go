package observability

import (
	"fmt"
	"net"
	"strconv"

	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/fulmenhq/gofulmen/telemetry/exporters"

	"github.com/tasklist/tasklist/internal/config"
)

// defaultMetricsPort is reported when the exporter address cannot be parsed.
const defaultMetricsPort = 9090

var (
	// TelemetrySystem receives every metric recorded by internal/metrics.
	TelemetrySystem *telemetry.System

	// PrometheusExporter serves the recorded metrics; nil when disabled.
	PrometheusExporter *exporters.PrometheusExporter

	metricsPort int
)

// InitMetrics installs TelemetrySystem. When cfg.Enabled is set it first
// starts a Prometheus exporter on cfg.Port (0 picks a free port); otherwise
// the installed system is disabled and recorders do nothing.
func InitMetrics(serviceName string, cfg config.MetricsConfig, namespace ...string) error {
	telemetryConfig := &telemetry.Config{Enabled: cfg.Enabled}

	if cfg.Enabled {
		metricNamespace := serviceName
		if len(namespace) > 0 && namespace[0] != "" {
			metricNamespace = namespace[0]
		}

		exporter, port, err := startExporter(metricNamespace, max(cfg.Port, 0))
		if err != nil {
			return err
		}
		PrometheusExporter = exporter
		metricsPort = port
		telemetryConfig.Emitter = exporter
	}

	sys, err := telemetry.NewSystem(telemetryConfig)
	if err != nil {
		return err
	}
	TelemetrySystem = sys
	return nil
}

func startExporter(namespace string, port int) (*exporters.PrometheusExporter, int, error) {
	exporter := exporters.NewPrometheusExporter(namespace, ":"+strconv.Itoa(port))
	if err := exporter.Start(); err != nil {
		return nil, 0, fmt.Errorf("start prometheus exporter: %w", err)
	}

	if bound, err := resolvePort(exporter.GetAddr()); err == nil {
		return exporter, bound, nil
	}
	if port == 0 {
		port = defaultMetricsPort
	}
	return exporter, port, nil
}

// ShutdownMetrics stops the exporter and clears the telemetry globals.
func ShutdownMetrics() {
	if PrometheusExporter != nil {
		_ = PrometheusExporter.Stop()
		PrometheusExporter = nil
	}
	TelemetrySystem = nil
}

// GetMetricsPort returns the port the exporter listens on.
func GetMetricsPort() int {
	return metricsPort
}

func resolvePort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}
