package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	errwrap "github.com/tasklist/tasklist/internal/errors"
	"github.com/tasklist/tasklist/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Run a self-health check: configuration validity and a round trip to the task database.",
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.CLILogger
		if logger == nil {
			ExitWithCodeStderr(foundry.ExitConfigInvalid, "Logger not initialized", errwrap.NewConfigInvalidError("Logger not initialized"))
			return
		}
		logger.Info("Running health check...")

		// Check 1: Version info available
		if versionInfo.Version == "" {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewConfigInvalidError("Version information missing"))
			return
		}
		logger.Info("✅ Version information available", zap.String("version", versionInfo.Version))

		// Check 2: Configuration valid
		cfg, err := loadConfig()
		if err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Configuration invalid", errwrap.WrapConfigInvalid(cmd.Context(), err, "configuration invalid"))
			return
		}
		logger.Info("✅ Configuration valid", zap.String("store_driver", cfg.Store.Driver))

		// Check 3: Store reachable
		db, err := openStore(cmd.Context(), cfg.Store)
		if err != nil {
			ExitWithCode(logger, foundry.ExitExternalServiceUnavailable, "Task store unreachable", errwrap.WrapDatabaseError(cmd.Context(), err, "task store unreachable"))
			return
		}
		defer db.Close() // nolint:errcheck // CLI exit path

		if err := db.CheckHealth(cmd.Context()); err != nil {
			ExitWithCode(logger, foundry.ExitExternalServiceUnavailable, "Task store unhealthy", errwrap.WrapDatabaseError(cmd.Context(), err, "task store unhealthy"))
			return
		}
		logger.Info("✅ Task store reachable", zap.String("driver", db.Driver()))

		logger.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
