package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileErrors(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadConfig_ParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  env: production
capture:
  dll_path: C:\agent.dll
  poll_interval_ms: 30
stream:
  http_addr: ":9000"
`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Server.Env)
	assert.Equal(t, `C:\agent.dll`, cfg.Capture.DLLPath)
	assert.Equal(t, 30, cfg.Capture.PollIntervalMs)
	assert.Equal(t, ":9000", cfg.Stream.HTTPAddr)
}

func TestApplyDefaults_FillsZeroValues(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	assert.Equal(t, "development", cfg.Server.Env)
	assert.Equal(t, "agent.dll", cfg.Capture.DLLPath)
	assert.Equal(t, "WowCapture", cfg.Capture.MappingPrefix)
	assert.Equal(t, ":8787", cfg.Stream.HTTPAddr)
	assert.Equal(t, ":8788", cfg.Stream.GRPCAddr)
	assert.Equal(t, 256, cfg.Stream.SubscriberBuffer)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, ":9187", cfg.Metrics.Addr)
}

func TestApplyEnvOverrides_TakesPrecedenceOverFileValues(t *testing.T) {
	t.Setenv("WOWCAP_CAPTURE_DLL_PATH", "override.dll")
	t.Setenv("WOWCAP_CAPTURE_POLL_INTERVAL_MS", "99")
	t.Setenv("WOWCAP_METRICS_ENABLED", "true")

	cfg := &Config{Capture: CaptureConfig{DLLPath: "original.dll", PollIntervalMs: 15}}
	cfg.applyEnvOverrides()

	assert.Equal(t, "override.dll", cfg.Capture.DLLPath)
	assert.Equal(t, 99, cfg.Capture.PollIntervalMs)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestIsProductionIsDevelopment(t *testing.T) {
	prod := &Config{Server: ServerConfig{Env: "production"}}
	assert.True(t, prod.IsProduction())
	assert.False(t, prod.IsDevelopment())

	dev := &Config{Server: ServerConfig{Env: "development"}}
	assert.True(t, dev.IsDevelopment())
}
