package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/waterfall-engine/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PORT", "DATABASE_PATH", "LOG_LEVEL", "CACHE_BACKEND", "REDIS_ADDR"} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	assert.NoError(t, config.Default().Validate())
}

func TestLoad_NoFile(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
	assert.Equal(t, ":8080", cfg.Server.Addr())
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	clearEnv(t)

	path := writeFile(t, `
server:
  port: 9090
  read_timeout: 5s
database:
  path: /tmp/funds.db
logging:
  level: debug
  json: true
cache:
  backend: redis
  redis_addr: cache:6379
  ttl: 2m
retention:
  enabled: false
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout, "untouched keys keep defaults")
	assert.Equal(t, "/tmp/funds.db", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.JSON)
	assert.Equal(t, config.CacheRedis, cfg.Cache.Backend)
	assert.Equal(t, "cache:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, 2*time.Minute, cfg.Cache.TTL)
	assert.False(t, cfg.Retention.Enabled)
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "server:\n  port: 9090\n")

	t.Setenv("PORT", "7070")
	t.Setenv("DATABASE_PATH", ":memory:")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("CACHE_BACKEND", "none")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, ":memory:", cfg.Database.Path)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, config.CacheNone, cfg.Cache.Backend)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config")

	_, err = config.Load(writeFile(t, "server: [not, a, map]"))
	assert.ErrorContains(t, err, "failed to parse config")

	t.Setenv("PORT", "eighty")
	_, err = config.Load("")
	assert.ErrorContains(t, err, "PORT must be an integer")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"port", func(c *config.Config) { c.Server.Port = 70000 }, "server.port"},
		{"timeout", func(c *config.Config) { c.Server.ReadTimeout = 0 }, "server.read_timeout"},
		{"db path", func(c *config.Config) { c.Database.Path = "" }, "database.path"},
		{"log level", func(c *config.Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"backend", func(c *config.Config) { c.Cache.Backend = "memcached" }, "cache.backend"},
		{"redis addr", func(c *config.Config) { c.Cache.Backend = config.CacheRedis; c.Cache.RedisAddr = "" }, "cache.redis_addr"},
		{"ttl", func(c *config.Config) { c.Cache.TTL = 0 }, "cache.ttl"},
		{"retention age", func(c *config.Config) { c.Retention.RunMaxAge = -time.Hour }, "retention.run_max_age"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}
}

func TestValidate_NoCacheIgnoresTTL(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.Backend = config.CacheNone
	cfg.Cache.TTL = 0
	assert.NoError(t, cfg.Validate())
}
