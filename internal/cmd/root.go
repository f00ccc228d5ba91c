package cmd

import (
	"errors"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tasklist/tasklist/internal/config"
	"github.com/tasklist/tasklist/internal/observability"
)

var (
	cfgFile string
	verbose bool

	// set by main from ldflags
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo records build metadata for the version command.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var rootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "Task list API server with per-client request throttling",
	Long: `tasklist serves a small task-list JSON API backed by libsql, sqlite or MySQL.
Every client is limited to a configurable number of requests per sliding window.

Use the subcommands to run the server or manage tasks from the command line.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// CLI commands never emit metrics; serve installs its own system.
	if sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false}); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/tasklist/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig layers defaults, TASKLIST_* environment variables and an optional
// YAML file into the global viper instance.
func initConfig() {
	observability.InitCLILogger(config.AppName, verbose)
	logger := observability.CLILogger

	v := viper.GetViper()
	config.SetDefaults(v)
	if err := config.BindEnv(v); err != nil {
		ExitWithCode(logger, foundry.ExitConfigInvalid, "Failed to bind environment variables", err)
	}

	addConfigSearchPaths(v)

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		logger.Debug("Using config file", zap.String("path", v.ConfigFileUsed()))
	case errors.As(err, &notFound):
		logger.Debug("No config file found, using defaults and environment variables")
	case cfgFile != "":
		ExitWithCode(logger, foundry.ExitConfigInvalid, fmt.Sprintf("Failed to read config file %s", cfgFile), err)
	default:
		logger.Warn("Ignoring unreadable config file", zap.Error(err))
	}
}

// addConfigSearchPaths points v at --config, or at config.yaml in the XDG
// config dir and ./config.
func addConfigSearchPaths(v *viper.Viper) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		return
	}

	if dir := config.DefaultConfigDir(); dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath("./config")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// loadConfig decodes and validates the layered settings.
func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}
