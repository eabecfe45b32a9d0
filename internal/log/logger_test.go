package log

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Configure(Config{Level: "debug", Output: &buf, Service: "test"}))
	t.Cleanup(func() { _ = Configure(Config{Output: &bytes.Buffer{}}) })

	logger := WithComponent("ocr")
	logger.Info().Int("page", 2).Msg("page recognized")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "test", entry["service"])
	assert.Equal(t, "ocr", entry["component"])
	assert.Equal(t, "page recognized", entry["message"])
	assert.EqualValues(t, 2, entry["page"])
}

func TestConfigureLevel(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Configure(Config{Level: "warn", Output: &buf}))
	t.Cleanup(func() { _ = Configure(Config{Output: &bytes.Buffer{}}) })

	logger := WithComponent("x")
	logger.Info().Msg("hidden")
	assert.Empty(t, buf.String())

	logger = WithComponent("x")
	logger.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestConfigureFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "practicos.log")
	var buf bytes.Buffer
	require.NoError(t, Configure(Config{Output: &buf, File: path}))

	logger := WithComponent("main")
	logger.Info().Msg("to both")
	Close()
	t.Cleanup(func() { _ = Configure(Config{Output: &bytes.Buffer{}}) })

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to both")
	assert.Contains(t, buf.String(), "to both")
}

func TestConfigureDefaultsToInfo(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	var buf bytes.Buffer
	require.NoError(t, Configure(Config{Output: &buf}))
	t.Cleanup(func() { _ = Configure(Config{Output: &bytes.Buffer{}}) })

	logger := WithComponent("config")
	logger.Debug().Str("key", "OCR_DPI").Msg("using default value")
	assert.Empty(t, buf.String())

	logger = WithComponent("config")
	logger.Info().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestConfigureLevelFromEnvironment(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	var buf bytes.Buffer
	require.NoError(t, Configure(Config{Output: &buf}))
	t.Cleanup(func() { _ = Configure(Config{Output: &bytes.Buffer{}}) })

	logger := WithComponent("x")
	logger.Warn().Msg("hidden")
	assert.Empty(t, buf.String())

	logger = WithComponent("x")
	logger.Error().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}
