package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CREAMERY_DATABASE_URL", "CREAMERY_REDIS_ADDR", "CREAMERY_REDIS_PASSWORD", "CREAMERY_REDIS_DB",
		"CREAMERY_NATS_URL", "STRIPE_SECRET_KEY", "CREAMERY_CDN_BASE_URL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "")

	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.False(t, cfg.CardPaymentsEnabled())
}

func TestLoad_YAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "creamery.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  url: postgres://shop@db:5432/shop
redis:
  addr: cache:6379
  cache_ttl: 5m
shop:
  currency: usd
`), 0o644))

	cfg, err := Load(path, "")

	require.NoError(t, err)
	assert.Equal(t, "postgres://shop@db:5432/shop", cfg.Database.URL)
	assert.Equal(t, int32(10), cfg.Database.MaxConns)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, "usd", cfg.Shop.Currency)
	assert.Equal(t, 10, cfg.Shop.Workers)

	ttl, err := cfg.GetCacheTTL()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, ttl)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CREAMERY_DATABASE_URL", "postgres://env/shop")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("CREAMERY_REDIS_DB", "3")

	cfg, err := Load("", "")

	require.NoError(t, err)
	assert.Equal(t, "postgres://env/shop", cfg.Database.URL)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.True(t, cfg.CardPaymentsEnabled())
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("CREAMERY_CDN_BASE_URL")
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("CREAMERY_CDN_BASE_URL=https://cdn.example.com\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("CREAMERY_CDN_BASE_URL") })

	cfg, err := Load("", envFile)

	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com", cfg.Storage.CDNBaseURL)
}

func TestLoad_InvalidTTL(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "creamery.yaml")
	require.NoError(t, os.WriteFile(path, []byte("redis:\n  cache_ttl: soon\n"), 0o644))

	_, err := Load(path, "")

	assert.ErrorContains(t, err, "invalid redis.cache_ttl")
}
