package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Plugins.Dir)
	assert.Empty(t, cfg.Plugins.Disabled)
	require.NoError(t, cfg.Validate())
}

func TestLoader_Load_FromFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  http_port: 9000
  shutdown_timeout: 5s
plugins:
  dir: ./plugins
  disabled:
    - analytics
    - legacy
  config:
    cache:
      addr: redis:6379
log:
  level: debug
  format: console
`)

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "./plugins", cfg.Plugins.Dir)
	assert.Equal(t, []string{"analytics", "legacy"}, cfg.Plugins.Disabled)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)

	overrides := cfg.Plugins.PluginConfig("cache")
	require.NotNil(t, overrides)
	assert.Equal(t, "redis:6379", overrides["addr"])
}

func TestLoader_Load_MissingFileKeepsDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_Load_InvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "server: [not a mapping")
	_, err := NewLoader().WithConfigPath(path).Load()
	require.Error(t, err)
}

func TestLoader_Load_EnvOverride(t *testing.T) {
	t.Setenv("PLUGFLOW_SERVER_HTTP_PORT", "7070")
	t.Setenv("PLUGFLOW_PLUGINS_DIR", "/srv/plugins")
	t.Setenv("PLUGFLOW_PLUGINS_DISABLED", "foo, bar")
	t.Setenv("PLUGFLOW_LOG_LEVEL", "warn")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.HTTPPort)
	assert.Equal(t, "/srv/plugins", cfg.Plugins.Dir)
	assert.Equal(t, []string{"foo", "bar"}, cfg.Plugins.Disabled)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_Load_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, "server:\n  http_port: 9000\n")
	t.Setenv("PLUGFLOW_SERVER_HTTP_PORT", "9999")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.HTTPPort)
}

func TestLoader_Load_Validator(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error { return assert.AnError }).
		Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "bad http port",
			mutate:  func(c *Config) { c.Server.HTTPPort = -1 },
			wantErr: "invalid HTTP port",
		},
		{
			name:    "bad metrics port",
			mutate:  func(c *Config) { c.Server.MetricsPort = 70000 },
			wantErr: "invalid metrics port",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Log.Level = "loud" },
			wantErr: "unknown log level",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPluginsConfig_PluginDisabled(t *testing.T) {
	p := PluginsConfig{Disabled: []string{"a", "b"}}
	assert.True(t, p.PluginDisabled("a"))
	assert.False(t, p.PluginDisabled("c"))
}

func TestPluginsConfig_PluginConfig_Nil(t *testing.T) {
	var p PluginsConfig
	assert.Nil(t, p.PluginConfig("anything"))
}
