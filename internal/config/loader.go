// Package config provides centralized configuration management for tasklist.
// Settings are layered through viper: defaults registered by SetDefaults, an
// optional YAML file, TASKLIST_* environment variables and bound CLI flags.
// Load decodes the merged view into a typed Config with mapstructure.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// AppName names the XDG config/data directories and the default database file.
	AppName = "tasklist"

	// EnvPrefix prefixes every environment override (TASKLIST_SERVER_PORT, ...).
	EnvPrefix = "TASKLIST"
)

// Supported store drivers.
const (
	DriverLibsql = "libsql"
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// legacyEnv maps config keys to the unprefixed DB_* variables older deployments set.
var legacyEnv = map[string][]string{
	"store.host":     {EnvPrefix + "_DB_HOST", "DB_HOST"},
	"store.name":     {EnvPrefix + "_DB_NAME", "DB_NAME"},
	"store.user":     {EnvPrefix + "_DB_USER", "DB_USER"},
	"store.password": {EnvPrefix + "_DB_PASS", "DB_PASS"},
	"store.driver":   {EnvPrefix + "_DB_DRIVER"},
	"store.path":     {EnvPrefix + "_DB_PATH"},
	"store.url":      {EnvPrefix + "_DB_URL"},
	"admin.token":    {EnvPrefix + "_ADMIN_TOKEN"},
	"logging.level":  {EnvPrefix + "_LOG_LEVEL"},
}

// SetDefaults registers default configuration values on v.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Store defaults
	v.SetDefault("store.driver", DriverLibsql)
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")
	v.SetDefault("store.host", "127.0.0.1")
	v.SetDefault("store.port", 3306)
	v.SetDefault("store.name", "")
	v.SetDefault("store.user", "")
	v.SetDefault("store.password", "")

	// Rate limit defaults: 100 requests per client per hour
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.max_requests", 100)
	v.SetDefault("rate_limit.window", "1h")
	v.SetDefault("rate_limit.sweep_interval", "5m")

	// CORS defaults
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.max_age", 86400)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Health check defaults
	v.SetDefault("health.enabled", true)

	v.SetDefault("admin.token", "")
}

// BindEnv wires TASKLIST_* environment variables (dots become underscores)
// and the legacy DB_* names onto v.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, names := range legacyEnv {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}

// Load decodes the settings held by v into a Config, validates it and stores it
// as the current configuration.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		return nil, errors.New("config source is required")
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	if cfg.Store.Driver != DriverMySQL && strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	switch c.Store.Driver {
	case DriverLibsql, DriverSQLite:
	case DriverMySQL:
		if strings.TrimSpace(c.Store.Name) == "" {
			return errors.New("store.name is required for the mysql driver")
		}
	default:
		return fmt.Errorf("unsupported store driver: %q", c.Store.Driver)
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.MaxRequests <= 0 {
			return fmt.Errorf("rate_limit.max_requests must be positive, got %d", c.RateLimit.MaxRequests)
		}
		if c.RateLimit.Window < time.Second {
			return fmt.Errorf("rate_limit.window must be at least 1s, got %s", c.RateLimit.Window)
		}
		if c.RateLimit.SweepInterval < 0 {
			return fmt.Errorf("rate_limit.sweep_interval must not be negative, got %s", c.RateLimit.SweepInterval)
		}
	}

	return nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// DefaultConfigDir returns the XDG-compliant config directory for the app.
func DefaultConfigDir() string {
	return gfconfig.GetAppConfigDir(AppName)
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := DefaultConfigDir()
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	dataDir := gfconfig.GetAppDataDir(AppName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + AppName + ".db"
	}
	return filepath.Join(dataDir, AppName+".db")
}
