package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SyedDaiam9101/cropdoc/internal/coordinator"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Decode(New())
	require.NoError(t, err)

	assert.Equal(t, 50051, cfg.Port)
	assert.Equal(t, 9100, cfg.MetricsPort)
	assert.Equal(t, "models/manifest.yaml", cfg.Manifest)
	assert.Empty(t, cfg.Redis)
	assert.Equal(t, 0.6, cfg.Fusion.ImageWeight)
	assert.Equal(t, 0.4, cfg.Fusion.TextWeight)
	assert.Equal(t, 0.4, cfg.Fusion.Threshold)
	assert.Equal(t, 100, cfg.Cache.Capacity)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, coordinator.ReloadWait, cfg.ReloadPolicy)
	assert.Equal(t, coordinator.DefaultConfig(), cfg.Coordinator())
	assert.NoError(t, cfg.Validate())
}

func TestLoadWithConfigFile(t *testing.T) {
	path := writeConfig(t, `
port: 6000
metrics_port: 6001
image_model: /srv/leaf.onnx
text_model: ""
redis: redis:6379
redis_ttl: 30m
fusion:
  image_weight: 0.7
  text_weight: 0.3
  threshold: 0.5
cache:
  capacity: 250
  ttl: 90s
  failure_backoff: 2s
request_timeout: 3s
reload_policy: fail
`)

	cfg, err := LoadWithConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, 6000, cfg.Port)
	assert.Equal(t, "/srv/leaf.onnx", cfg.ImageModel)
	assert.Empty(t, cfg.TextModel)
	assert.Equal(t, "redis:6379", cfg.Redis)
	assert.Equal(t, 30*time.Minute, cfg.RedisTTL)
	assert.Equal(t, 0.7, cfg.Fusion.ImageWeight)
	assert.Equal(t, 0.5, cfg.Fusion.Threshold)

	cc := cfg.Coordinator()
	assert.Equal(t, 250, cc.Capacity)
	assert.Equal(t, 90*time.Second, cc.TTL)
	assert.Equal(t, 2*time.Second, cc.FailureBackoff)
	assert.Equal(t, 3*time.Second, cc.RequestTimeout)
	assert.Equal(t, coordinator.ReloadFailFast, cc.ReloadPolicy)
	assert.NoError(t, cfg.Validate())
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "port: 6000\ncache:\n  capacity: 250\n")
	t.Setenv("CROPDOC_PORT", "7000")
	t.Setenv("CROPDOC_CACHE_CAPACITY", "12")
	t.Setenv("CROPDOC_USE_MOCK", "true")

	cfg, err := LoadWithConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, 12, cfg.Cache.Capacity)
	assert.True(t, cfg.UseMockInference)
}

func TestOTELStandardEnv(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")

	cfg, err := Decode(New())
	require.NoError(t, err)
	assert.True(t, cfg.OTELEnabled)
	assert.Equal(t, "collector:4317", cfg.OTELEndpoint)
}

func TestLoadWithMissingFile(t *testing.T) {
	_, err := LoadWithConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Decode(New())
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Port = 0 }},
		{"bad metrics port", func(c *Config) { c.MetricsPort = 70000 }},
		{"same ports", func(c *Config) { c.MetricsPort = c.Port }},
		{"no models", func(c *Config) { c.ImageModel, c.TextModel = "", "" }},
		{"redis without ttl", func(c *Config) { c.Redis, c.RedisTTL = "localhost:6379", 0 }},
		{"negative weight", func(c *Config) { c.Fusion.ImageWeight = -1 }},
		{"threshold above one", func(c *Config) { c.Fusion.Threshold = 1.5 }},
		{"zero capacity", func(c *Config) { c.Cache.Capacity = 0 }},
		{"unknown reload policy", func(c *Config) { c.ReloadPolicy = "later" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := base()
	cfg.ImageModel, cfg.TextModel = "", ""
	cfg.UseMockInference = true
	assert.NoError(t, cfg.Validate())
}
