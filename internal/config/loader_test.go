package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()

	v := viper.New()
	SetDefaults(v)
	require.NoError(t, BindEnv(v))
	return v
}

func TestLoad(t *testing.T) {
	t.Run("LoadDefaults", func(t *testing.T) {
		t.Setenv("XDG_DATA_HOME", t.TempDir())

		cfg, err := Load(newViper(t))
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// Verify server defaults
		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		// Verify store defaults
		assert.Equal(t, DriverLibsql, cfg.Store.Driver)
		expectedStorePath := filepath.Join(gfconfig.GetAppDataDir(AppName), AppName+".db")
		assert.Equal(t, expectedStorePath, cfg.Store.Path)
		assert.Equal(t, "", cfg.Store.URL)

		// Verify rate limit defaults
		assert.True(t, cfg.RateLimit.Enabled)
		assert.Equal(t, 100, cfg.RateLimit.MaxRequests)
		assert.Equal(t, time.Hour, cfg.RateLimit.Window)
		assert.Equal(t, 5*time.Minute, cfg.RateLimit.SweepInterval)

		assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, 86400, cfg.CORS.MaxAge)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.True(t, cfg.Metrics.Enabled)
		assert.Equal(t, 9090, cfg.Metrics.Port)
		assert.True(t, cfg.Health.Enabled)

		assert.Same(t, cfg, GetConfig())
	})

	t.Run("EnvironmentOverrides", func(t *testing.T) {
		t.Setenv("TASKLIST_SERVER_PORT", "9191")
		t.Setenv("TASKLIST_RATE_LIMIT_MAX_REQUESTS", "5")
		t.Setenv("TASKLIST_RATE_LIMIT_WINDOW", "90s")
		t.Setenv("TASKLIST_CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
		t.Setenv("TASKLIST_LOG_LEVEL", "debug")

		cfg, err := Load(newViper(t))
		require.NoError(t, err)

		assert.Equal(t, 9191, cfg.Server.Port)
		assert.Equal(t, 5, cfg.RateLimit.MaxRequests)
		assert.Equal(t, 90*time.Second, cfg.RateLimit.Window)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("LegacyDatabaseVariables", func(t *testing.T) {
		t.Setenv("TASKLIST_DB_DRIVER", "MySQL")
		t.Setenv("DB_HOST", "db.internal")
		t.Setenv("DB_NAME", "todo_list")
		t.Setenv("DB_USER", "todo")
		t.Setenv("DB_PASS", "secret")

		cfg, err := Load(newViper(t))
		require.NoError(t, err)

		assert.Equal(t, DriverMySQL, cfg.Store.Driver)
		assert.Equal(t, "db.internal", cfg.Store.Host)
		assert.Equal(t, "todo_list", cfg.Store.Name)
		assert.Equal(t, "todo", cfg.Store.User)
		assert.Equal(t, "secret", cfg.Store.Password)
		assert.Equal(t, 3306, cfg.Store.Port)
	})

	t.Run("ConfigFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := []byte(`
server:
  port: 7070
rate_limit:
  max_requests: 3
  window: 10s
store:
  driver: sqlite
  path: ":memory:"
`)
		require.NoError(t, os.WriteFile(path, content, 0o600))

		v := newViper(t)
		v.SetConfigFile(path)
		require.NoError(t, v.ReadInConfig())

		cfg, err := Load(v)
		require.NoError(t, err)
		assert.Equal(t, 7070, cfg.Server.Port)
		assert.Equal(t, 3, cfg.RateLimit.MaxRequests)
		assert.Equal(t, 10*time.Second, cfg.RateLimit.Window)
		assert.Equal(t, DriverSQLite, cfg.Store.Driver)
		assert.Equal(t, ":memory:", cfg.Store.Path)
	})

	t.Run("NilSource", func(t *testing.T) {
		_, err := Load(nil)
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{Port: 8080},
			Store:  StoreConfig{Driver: DriverSQLite, Path: ":memory:"},
			RateLimit: RateLimitConfig{
				Enabled:     true,
				MaxRequests: 10,
				Window:      time.Minute,
			},
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "oracle" }},
		{"mysql without database", func(c *Config) { c.Store.Driver = DriverMySQL }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"zero max requests", func(c *Config) { c.RateLimit.MaxRequests = 0 }},
		{"sub-second window", func(c *Config) { c.RateLimit.Window = 500 * time.Millisecond }},
		{"negative sweep interval", func(c *Config) { c.RateLimit.SweepInterval = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}

	t.Run("disabled rate limit skips its checks", func(t *testing.T) {
		cfg := valid()
		cfg.RateLimit.Enabled = false
		cfg.RateLimit.MaxRequests = 0
		require.NoError(t, cfg.Validate())
	})

	var nilCfg *Config
	require.Error(t, nilCfg.Validate())
}
