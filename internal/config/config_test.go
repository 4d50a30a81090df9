package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, time.Hour, cfg.Sync.CacheValidity)
	assert.Equal(t, 7*24*time.Hour, cfg.Sync.FullSyncInterval)
	assert.Zero(t, cfg.Sync.RefreshInterval)
	assert.Equal(t, "postgres", cfg.Storage.Backend)
	assert.Equal(t, 8080, cfg.Admin.Port)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "zero cache validity",
			mutate: func(c *Config) { c.Sync.CacheValidity = 0 },
			want:   "cache_validity",
		},
		{
			name:   "full sync shorter than validity window",
			mutate: func(c *Config) { c.Sync.FullSyncInterval = 30 * time.Minute },
			want:   "full_sync_interval",
		},
		{
			name:   "missing upstream",
			mutate: func(c *Config) { c.Upstream.BaseURL = "" },
			want:   "base_url",
		},
		{
			name:   "unknown backend",
			mutate: func(c *Config) { c.Storage.Backend = "etcd" },
			want:   "storage.backend",
		},
		{
			name: "postgres backend without host",
			mutate: func(c *Config) {
				c.Storage.Backend = "postgres"
				c.Database.Host = ""
			},
			want: "database.host",
		},
		{
			name: "redis backend without host",
			mutate: func(c *Config) {
				c.Storage.Backend = "redis"
				c.Redis.Host = ""
			},
			want: "redis.host",
		},
		{
			name:   "out of range admin port",
			mutate: func(c *Config) { c.Admin.Port = 70000 },
			want:   "admin.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMemoryBackendNeedsNoConnectionSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Backend = "memory"
	cfg.Database = DatabaseConfig{}
	cfg.Redis = RedisConfig{}
	assert.NoError(t, cfg.Validate())
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sync:
  cache_validity: 15m
  full_sync_interval: 48h
storage:
  backend: memory
admin:
  port: 9090
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.Sync.CacheValidity)
	assert.Equal(t, 48*time.Hour, cfg.Sync.FullSyncInterval)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 9090, cfg.Admin.Port)
	// Untouched sections keep their defaults.
	assert.Equal(t, "https://graph.microsoft.com/v1.0", cfg.Upstream.BaseURL)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Storage.Backend)
}

func TestEnvironmentOverridesTakePrecedence(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "redis")
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("UPSTREAM_BASE_URL", "https://graph.example.test/v1.0")
	t.Setenv("ADMIN_PORT", "9999")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Storage.Backend)
	assert.Equal(t, "cache.internal", cfg.Redis.Host)
	assert.Equal(t, 6380, cfg.Redis.Port)
	assert.Equal(t, "https://graph.example.test/v1.0", cfg.Upstream.BaseURL)
	assert.Equal(t, 9999, cfg.Admin.Port)
}

func TestEnvironmentOverrideIgnoresBadPort(t *testing.T) {
	t.Setenv("ADMIN_PORT", "not-a-port")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Admin.Port)
}
