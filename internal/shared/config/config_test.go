package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.CORSAllowOrigin)
	assert.Equal(t, "local", cfg.Store.Type)
	assert.Equal(t, 5, cfg.Pool.Size)
	assert.Equal(t, 60*time.Second, cfg.Pool.ShutdownGrace)
	assert.InDelta(t, 0.6, cfg.Tiers.Auto, 0.0001)
	assert.InDelta(t, 0.3, cfg.Tiers.Review, 0.0001)
	assert.InDelta(t, 0.5, cfg.Locations.MinConfidence, 0.0001)
	assert.Equal(t, []string{"eng"}, cfg.Extraction.TesseractLanguages)
	assert.True(t, cfg.Extraction.OCREnabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SCHED_ENV", "prod")
	t.Setenv("SCHED_POOL_SIZE", "9")
	t.Setenv("SCHED_STORE_TYPE", "S3")
	t.Setenv("SCHED_SERVER_CORS_ALLOW_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("SCHED_POOL_SHUTDOWN_GRACE", "5s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, 9, cfg.Pool.Size)
	assert.Equal(t, "s3", cfg.Store.Type)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSAllowOrigin)
	assert.Equal(t, 5*time.Second, cfg.Pool.ShutdownGrace)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)
	yaml := `
log:
  level: debug
  format: console
tiers:
  auto: 0.7
locations:
  cache_ttl: 1m
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.InDelta(t, 0.7, cfg.Tiers.Auto, 0.0001)
	assert.Equal(t, time.Minute, cfg.Locations.CacheTTL)
}

func TestLoadEnvFileDoesNotOverrideEnvironment(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SCHED_SERVER_PORT=9999\nSCHED_LOG_LEVEL=warn\n"), 0o644))
	t.Setenv("SCHED_SERVER_PORT", "7000")
	t.Cleanup(func() { _ = os.Unsetenv("SCHED_LOG_LEVEL") })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestIsDevLike(t *testing.T) {
	assert.True(t, IsDevLike("development"))
	assert.True(t, IsDevLike("local"))
	assert.False(t, IsDevLike("prod"))
	assert.False(t, IsDevLike("staging"))
}
