package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tasklist/tasklist/internal/config"
	"github.com/tasklist/tasklist/internal/core/throttle"
	errwrap "github.com/tasklist/tasklist/internal/errors"
	"github.com/tasklist/tasklist/internal/metrics"
	"github.com/tasklist/tasklist/internal/observability"
	"github.com/tasklist/tasklist/internal/server"
	"github.com/tasklist/tasklist/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct {
	enabled bool
}

func (t telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if !t.enabled {
		return nil
	}
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the task API server with graceful shutdown support.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config file re-read (restart to apply store or rate limit changes)

The server stops accepting connections, closes the database and flushes logs on shutdown.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return errwrap.WrapConfigInvalid(cmd.Context(), err, "invalid configuration")
	}

	namespace := config.AppName
	observability.InitServerLogger(config.AppName, cfg.Logging, namespace)
	logger := observability.ServerLogger

	if err := observability.InitMetrics(config.AppName, cfg.Metrics, namespace); err != nil {
		logger.Error("Failed to initialize metrics", zap.Error(err))
		return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
	}
	metrics.SetServerStartTime(time.Now().Unix())

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	db, err := openStore(ctx, cfg.Store)
	if err != nil {
		logger.Error("Failed to open task store",
			zap.String("driver", cfg.Store.Driver),
			zap.Error(err))
		return errwrap.WrapDatabaseError(ctx, err, "store initialization failed")
	}

	var limiter *throttle.RequestThrottle
	if cfg.RateLimit.Enabled {
		limiter = throttle.New(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
		stopSweeper := limiter.StartSweeper(ctx, cfg.RateLimit.SweepInterval, func(removed, tracked int) {
			metrics.RecordThrottleSweep(removed, tracked)
			if removed > 0 {
				logger.Debug("Dropped idle throttle records",
					zap.Int("removed", removed),
					zap.Int("tracked", tracked))
			}
		})
		defer stopSweeper()
	} else {
		logger.Warn("Request throttling disabled")
	}

	hm := handlers.NewHealthManager(versionInfo.Version)
	if cfg.Health.Enabled {
		hm.RegisterChecker("store", db)
		hm.RegisterChecker("telemetry", telemetryHealthChecker{enabled: cfg.Metrics.Enabled})
	}

	logger.Info("Initializing server",
		zap.String("service", config.AppName),
		zap.String("version", versionInfo.Version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("store_driver", db.Driver()),
		zap.Bool("rate_limit_enabled", cfg.RateLimit.Enabled),
		zap.Int("rate_limit_max_requests", cfg.RateLimit.MaxRequests),
		zap.Duration("rate_limit_window", cfg.RateLimit.Window),
		zap.Int("metrics_port", observability.GetMetricsPort()))

	srv := server.New(server.Options{
		Server:     cfg.Server,
		CORS:       cfg.CORS,
		Tasks:      db,
		Throttle:   limiter,
		Health:     hm,
		AdminToken: cfg.Admin.Token,
	})

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 10 * time.Second
	}

	// Shutdown handlers run LIFO: HTTP server, then store, then logger.
	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Flushing logger...")
		if err := logger.Sync(); err != nil {
			// Sync errors are often benign (stdout/stderr already closed)
			logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
		}
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		observability.ShutdownMetrics()
		if err := db.Close(); err != nil {
			return errwrap.WrapDatabaseError(ctx, err, "store close failed")
		}
		logger.Info("Task store closed")
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Shutting down HTTP server...")
		shutdownCtx, cancelShutdown := context.WithTimeout(ctx, shutdownTimeout)
		defer cancelShutdown()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errwrap.WrapInternal(ctx, err, "server shutdown failed")
		}

		logger.Info("HTTP server stopped gracefully")
		return nil
	})

	signals.OnReload(func(ctx context.Context) error {
		logger.Info("Received SIGHUP: attempting config reload")

		if err := viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				logger.Info("No config file found - using defaults and environment variables")
				return nil
			}
			logger.Error("Failed to reload config file",
				zap.String("file", viper.ConfigFileUsed()),
				zap.Error(err))
			return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
		}

		if _, err := loadConfig(); err != nil {
			logger.Error("Reloaded config is invalid", zap.Error(err))
			return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
		}

		logger.Info("Configuration reloaded",
			zap.String("file", viper.ConfigFileUsed()))
		return nil
	})

	// Enable double-tap force quit (Ctrl+C within 2 seconds)
	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}

	errChan := make(chan error, 2)
	go func() {
		errChan <- srv.Start()
	}()

	go func() {
		if err := signals.Listen(ctx); err != nil {
			logger.Error("Signal handler error", zap.Error(err))
			errChan <- err
		}
	}()

	// Start returns nil once Shutdown has run.
	if err := <-errChan; err != nil {
		return errwrap.WrapInternal(ctx, err, "server error")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
