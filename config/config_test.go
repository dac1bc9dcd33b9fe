package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test from an empty directory with no Alpaca variables set
func isolate(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", dir)
	for _, key := range []string{"APCA_API_KEY_ID", "APCA_API_SECRET_KEY", "APCA_API_BASE_URL", "APCA_API_DATA_URL"} {
		t.Setenv(key, "")
	}
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://paper-api.alpaca.markets", cfg.Alpaca.TradingURL)
	assert.Equal(t, "https://data.alpaca.markets", cfg.Alpaca.DataURL)
	assert.Equal(t, "iex", cfg.Alpaca.Feed)
	assert.Equal(t, 100, cfg.Alpaca.PageLimit)
	assert.Equal(t, 30*time.Second, cfg.Alpaca.Timeout)
	assert.False(t, cfg.Alpaca.HasCredentials())

	assert.Equal(t, ":8080", cfg.Server.Addr())
	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, "./data/options-yield.db", cfg.Database.Path)

	assert.Equal(t, ChainConfig{SidePolicy: "calls", MaxExpirations: 5, WindowBelow: 7, WindowAbove: 7}, cfg.Chain)
	assert.Equal(t, LoggingConfig{Level: "info", Format: "text"}, cfg.Logging)
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := isolate(t)

	writeFile(t, filepath.Join(dir, "config", "config.yaml"), `
alpaca:
  api_key: file-key
  api_secret: file-secret
  feed: sip
  timeout: 5s
server:
  host: 127.0.0.1
  port: 9000
chain:
  side_policy: position
  max_expirations: 3
logging:
  level: debug
`)
	t.Setenv("OPTIONS_YIELD_SERVER_PORT", "9100")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.Alpaca.HasCredentials())
	assert.Equal(t, "file-key", cfg.Alpaca.APIKey)
	assert.Equal(t, "sip", cfg.Alpaca.Feed)
	assert.Equal(t, 5*time.Second, cfg.Alpaca.Timeout)
	assert.Equal(t, "127.0.0.1:9100", cfg.Server.Addr(), "environment overrides the file")
	assert.Equal(t, "position", cfg.Chain.SidePolicy)
	assert.Equal(t, 3, cfg.Chain.MaxExpirations)
	assert.Equal(t, 7, cfg.Chain.WindowBelow)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadAlpacaEnvironmentNames(t *testing.T) {
	isolate(t)
	t.Setenv("APCA_API_KEY_ID", "env-key")
	t.Setenv("APCA_API_SECRET_KEY", "env-secret")
	t.Setenv("APCA_API_BASE_URL", "https://api.alpaca.markets")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Alpaca.APIKey)
	assert.Equal(t, "env-secret", cfg.Alpaca.APISecret)
	assert.Equal(t, "https://api.alpaca.markets", cfg.Alpaca.TradingURL)
}

func TestLoadExplicitPath(t *testing.T) {
	dir := isolate(t)

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(dir, "custom.yaml")
	writeFile(t, path, "database:\n  enabled: false\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Database.Enabled)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"port", "OPTIONS_YIELD_SERVER_PORT", "70000"},
		{"side policy", "OPTIONS_YIELD_CHAIN_SIDE_POLICY", "puts"},
		{"max expirations", "OPTIONS_YIELD_CHAIN_MAX_EXPIRATIONS", "0"},
		{"window", "OPTIONS_YIELD_CHAIN_WINDOW_BELOW", "-1"},
		{"log format", "OPTIONS_YIELD_LOGGING_FORMAT", "xml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			t.Setenv(tt.key, tt.val)

			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := isolate(t)

	assert.NoError(t, LoadEnvFile(filepath.Join(dir, "missing.env")))

	t.Setenv("OPTIONS_YIELD_FROM_ENV_FILE", "")
	os.Unsetenv("OPTIONS_YIELD_FROM_ENV_FILE")
	path := filepath.Join(dir, ".env")
	writeFile(t, path, "OPTIONS_YIELD_FROM_ENV_FILE=loaded\n")

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "loaded", os.Getenv("OPTIONS_YIELD_FROM_ENV_FILE"))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger, err := NewLogger(LoggingConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())

	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	_, err = NewLogger(LoggingConfig{Level: "loud"}, nil)
	assert.Error(t, err)
}
