package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 5, cfg.Logging.MaxSizeMB)
	assert.Equal(t, 5, cfg.Logging.MaxBackups)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
library:
  default_video_path: /srv/movies
omdb:
  api_key: from-file
  timeout: 3s
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "/srv/movies", cfg.Library.DefaultVideoPath)
	assert.Equal(t, "from-file", cfg.OMDB.APIKey)
	assert.Equal(t, 3*time.Second, cfg.OMDB.Timeout)
	assert.Equal(t, "https://www.omdbapi.com/", cfg.OMDB.BaseURL)
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "omdb:\n  api_key: from-file\ndatabase:\n  path: file.db\n")
	t.Setenv("MOVIELIB_OMDB_API_KEY", "from-env")
	t.Setenv("MOVIELIB_SERVER_PORT", "9090")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.OMDB.APIKey)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "file.db", cfg.Database.Path)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [this is not a map"))
	assert.Error(t, err)
}

func TestLoadMonitor(t *testing.T) {
	path := writeConfig(t, `
log_dir: /var/log/movielib
processes:
  - name: backend
    command: ./movielib
    args: ["-config", "config.yaml"]
    restart: true
    autostart: true
`)

	cfg, err := LoadMonitor(path)
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, time.Second, cfg.MetricsInterval)
	assert.Equal(t, "/var/log/movielib", cfg.LogDir)
	require.Len(t, cfg.Processes, 1)
	assert.Equal(t, ProcessConfig{
		Name:      "backend",
		Command:   "./movielib",
		Args:      []string{"-config", "config.yaml"},
		Restart:   true,
		Autostart: true,
	}, cfg.Processes[0])
}

func TestLoadMonitorValidatesProcesses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing command", "processes:\n  - name: backend\n"},
		{"duplicate name", "processes:\n  - {name: a, command: x}\n  - {name: a, command: y}\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadMonitor(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}
