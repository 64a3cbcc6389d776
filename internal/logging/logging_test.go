package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"movielib/internal/config"
)

func TestNewWritesJSONToConsole(t *testing.T) {
	var out bytes.Buffer
	logger, closer, err := New(config.LoggingConfig{Level: "debug"}, &out)
	require.NoError(t, err)
	defer closer.Close()

	logger.Info().Str("path", "/movies").Msg("scanning library")

	assert.Contains(t, out.String(), `"path":"/movies"`)
	assert.Contains(t, out.String(), `"message":"scanning library"`)
}

func TestNewTeesToRotatingFile(t *testing.T) {
	var out bytes.Buffer
	path := filepath.Join(t.TempDir(), "nested", "movielib.log")

	logger, closer, err := New(config.LoggingConfig{
		Level:      "info",
		Pretty:     true,
		File:       path,
		MaxSizeMB:  5,
		MaxBackups: 5,
	}, &out)
	require.NoError(t, err)

	logger.Warn().Msg("omdb request limit reached")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"level":"warn"`)
	assert.Contains(t, out.String(), "omdb request limit reached")
}

func TestNewFallsBackToInfoLevel(t *testing.T) {
	_, closer, err := New(config.LoggingConfig{Level: "chatty"}, &bytes.Buffer{})
	require.NoError(t, err)
	defer closer.Close()

	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
