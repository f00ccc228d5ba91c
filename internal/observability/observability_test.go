package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tasklist/tasklist/internal/config"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]string{
		"trace":   "TRACE",
		"DEBUG":   "DEBUG",
		" info ":  "INFO",
		"warn":    "WARN",
		"warning": "WARN",
		"error":   "ERROR",
		"":        "INFO",
		"verbose": "INFO",
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLogLevel(in), "level %q", in)
	}
}

func TestNewServerLogger(t *testing.T) {
	t.Run("Structured", func(t *testing.T) {
		logger, err := NewServerLogger("tasklist-test", config.LoggingConfig{Level: "debug", Profile: "structured"}, "tasklist")
		require.NoError(t, err)
		require.NotNil(t, logger)
		logger.Info("structured logger ready", zap.String("component", "test"))
	})

	t.Run("Simple", func(t *testing.T) {
		logger, err := NewServerLogger("tasklist-test", config.LoggingConfig{Level: "info", Profile: "simple"})
		require.NoError(t, err)
		require.NotNil(t, logger)
		logger.Info("simple logger ready")
	})
}

func TestInitCLILogger(t *testing.T) {
	original := CLILogger
	t.Cleanup(func() { CLILogger = original })

	InitCLILogger("tasklist-test", true)
	require.NotNil(t, CLILogger)
	CLILogger.Debug("cli logger ready", zap.Bool("verbose", true))
}

func TestInitMetricsDisabled(t *testing.T) {
	t.Cleanup(ShutdownMetrics)

	require.NoError(t, InitMetrics("tasklist", config.MetricsConfig{Enabled: false}))
	require.NotNil(t, TelemetrySystem)
	assert.Nil(t, PrometheusExporter)
}

func TestResolvePort(t *testing.T) {
	port, err := resolvePort("[::]:9191")
	require.NoError(t, err)
	assert.Equal(t, 9191, port)

	_, err = resolvePort("no-port")
	require.Error(t, err)
}
