package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.GetAddress())
	assert.True(t, cfg.Memory.Enabled)
	assert.Equal(t, "./data", cfg.Memory.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 60*time.Second, cfg.Tools.Timeout)
	assert.Empty(t, cfg.Providers)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
memory:
  enabled: false
  path: postgres://user:pw@localhost/memories
logging:
  level: debug
  format: text
tools:
  timeout: 15s
providers:
  search:
    autostart: true
    overrides:
      BRAVE_API_KEY: secret
  filesystem:
    args: ["/srv/shared", "/tmp"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.False(t, cfg.Memory.Enabled)
	assert.Equal(t, "postgres://user:pw@localhost/memories", cfg.Memory.Path)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 15*time.Second, cfg.Tools.Timeout)

	require.Contains(t, cfg.Providers, "search")
	assert.True(t, cfg.Providers["search"].Autostart)
	assert.Equal(t, map[string]string{"BRAVE_API_KEY": "secret"}, cfg.ProviderOverrides("search"))
	assert.Equal(t, []string{"/srv/shared", "/tmp"}, cfg.Providers["filesystem"].Args)
	assert.Nil(t, cfg.ProviderOverrides("fetch"))
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("MEMORY_ENABLED", "false")
	t.Setenv("SERVER_PORT", "7070")

	cfg, err := Load(writeConfig(t, "memory:\n  enabled: true\n"))
	require.NoError(t, err)
	assert.False(t, cfg.Memory.Enabled)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoader_Reload(t *testing.T) {
	path := writeConfig(t, "memory:\n  enabled: true\n")
	loader := NewLoader(path)

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.True(t, cfg.Memory.Enabled)

	require.NoError(t, os.WriteFile(path, []byte("memory:\n  enabled: false\n"), 0o644))
	cfg, err = loader.Load()
	require.NoError(t, err)
	assert.False(t, cfg.Memory.Enabled)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad port", "server:\n  port: 70000\n", "invalid server port"},
		{"empty memory path", "memory:\n  path: \"\"\n", "memory path cannot be empty"},
		{"bad level", "logging:\n  level: loud\n", "invalid log level"},
		{"bad format", "logging:\n  format: xml\n", "unsupported log format"},
		{"negative timeout", "tools:\n  timeout: -1s\n", "tool timeout cannot be negative"},
		{"malformed yaml", "server: [\n", "failed to read config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
