package observability

import (
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"

	"github.com/tasklist/tasklist/internal/config"
)

var (
	// CLILogger writes human-readable output for CLI commands.
	CLILogger *logging.Logger

	// ServerLogger writes request and lifecycle logs for `tasklist serve`.
	ServerLogger *logging.Logger
)

var logLevels = map[string]string{
	"trace":   "TRACE",
	"debug":   "DEBUG",
	"info":    "INFO",
	"warn":    "WARN",
	"warning": "WARN",
	"error":   "ERROR",
}

// InitCLILogger installs CLILogger. verbose lowers the level to DEBUG.
func InitCLILogger(serviceName string, verbose bool) {
	logger, err := logging.NewCLI(serviceName)
	if err != nil {
		fatal("Failed to initialize CLI logger", err)
	}
	if verbose {
		logger.SetLevel(logging.DEBUG)
	}
	CLILogger = logger
}

// InitServerLogger installs ServerLogger built by NewServerLogger.
func InitServerLogger(serviceName string, cfg config.LoggingConfig, namespace ...string) {
	logger, err := NewServerLogger(serviceName, cfg, namespace...)
	if err != nil {
		fatal("Failed to initialize server logger", err)
	}
	ServerLogger = logger
}

// NewServerLogger builds a stderr logger. The structured profile (default)
// writes JSON with caller, stacktrace and correlation middleware; the simple
// profile writes console text.
func NewServerLogger(serviceName string, cfg config.LoggingConfig, namespace ...string) (*logging.Logger, error) {
	loggerConfig := serverLoggerConfig(serviceName, cfg)
	if len(namespace) > 0 && namespace[0] != "" {
		loggerConfig.StaticFields["namespace"] = namespace[0]
	}

	logger, err := logging.New(loggerConfig)
	if err != nil {
		return nil, fmt.Errorf("create server logger: %w", err)
	}
	return logger, nil
}

func serverLoggerConfig(serviceName string, cfg config.LoggingConfig) *logging.LoggerConfig {
	sink := logging.SinkConfig{
		Type:    "console",
		Format:  "json",
		Console: &logging.ConsoleSinkConfig{Stream: "stderr"},
	}
	loggerConfig := &logging.LoggerConfig{
		Profile:      logging.ProfileStructured,
		DefaultLevel: parseLogLevel(cfg.Level),
		Service:      serviceName,
		Environment:  "production",
		StaticFields: map[string]any{},
	}

	if strings.EqualFold(strings.TrimSpace(cfg.Profile), "simple") {
		loggerConfig.Profile = logging.ProfileSimple
		sink.Format = "console"
		loggerConfig.Sinks = []logging.SinkConfig{sink}
		return loggerConfig
	}

	loggerConfig.Sinks = []logging.SinkConfig{sink}
	loggerConfig.EnableCaller = true
	loggerConfig.EnableStacktrace = true
	loggerConfig.Middleware = []logging.MiddlewareConfig{
		{Name: "correlation", Enabled: true, Order: 100, Config: map[string]any{}},
	}
	return loggerConfig
}

// parseLogLevel maps a configured level name onto a logging severity,
// defaulting to INFO.
func parseLogLevel(level string) string {
	if severity, ok := logLevels[strings.ToLower(strings.TrimSpace(level))]; ok {
		return severity
	}
	return "INFO"
}

// fatal reports a logger setup failure on stderr and exits with
// ExitConfigInvalid. No logger exists yet at this point.
func fatal(msg string, err error) {
	code := foundry.ExitConfigInvalid
	fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	if info, ok := foundry.GetExitCodeInfo(code); ok {
		fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
		os.Exit(info.Code)
	}
	os.Exit(int(code))
}
