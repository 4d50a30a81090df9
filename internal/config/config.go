package config

import (
	"errors"
	"time"
)

// Config represents the mirror service configuration
type Config struct {
	Sync     SyncConfig     `mapstructure:"sync"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Stats    StatsConfig    `mapstructure:"stats"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// SyncConfig governs the staleness and re-baseline decisions
type SyncConfig struct {
	// CacheValidity is how long mirrored data is served without a refresh.
	CacheValidity time.Duration `mapstructure:"cache_validity"`
	// FullSyncInterval is the periodic re-baseline: a full load runs when
	// this much time has passed since the last one, even with a valid token.
	FullSyncInterval time.Duration `mapstructure:"full_sync_interval"`
	// RefreshInterval drives the optional background refresh ticker. Zero
	// disables it and leaves sync entirely caller-driven.
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// UpstreamConfig represents the directory service endpoint
type UpstreamConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	PageSize       int           `mapstructure:"page_size"`
	AllowedDomains []string      `mapstructure:"allowed_domains"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// StatsConfig represents the usage statistics feed
type StatsConfig struct {
	ReportURL       string        `mapstructure:"report_url"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// StorageConfig selects the cache storage backend
type StorageConfig struct {
	// Backend is one of: postgres, redis, memory
	Backend string `mapstructure:"backend"`
}

// DatabaseConfig represents the PostgreSQL backend
type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MinConnections int    `mapstructure:"min_connections"`
}

// RedisConfig represents the Redis backend
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AdminConfig represents the admin HTTP surface
type AdminConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// MetricsConfig represents Prometheus metrics exposure
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Sync.CacheValidity <= 0 {
		return errors.New("sync.cache_validity must be positive")
	}
	if c.Sync.FullSyncInterval <= 0 {
		return errors.New("sync.full_sync_interval must be positive")
	}
	if c.Sync.FullSyncInterval < c.Sync.CacheValidity {
		return errors.New("sync.full_sync_interval must not be shorter than sync.cache_validity")
	}
	if c.Upstream.BaseURL == "" {
		return errors.New("upstream.base_url is required")
	}
	if c.Upstream.PageSize <= 0 {
		return errors.New("upstream.page_size must be positive")
	}
	if c.Stats.RefreshInterval <= 0 {
		return errors.New("stats.refresh_interval must be positive")
	}
	switch c.Storage.Backend {
	case "postgres":
		if c.Database.Host == "" {
			return errors.New("database.host is required")
		}
		if c.Database.Database == "" {
			return errors.New("database.database is required")
		}
		if c.Database.User == "" {
			return errors.New("database.user is required")
		}
	case "redis":
		if c.Redis.Host == "" {
			return errors.New("redis.host is required")
		}
	case "memory":
	default:
		return errors.New("storage.backend must be one of: postgres, redis, memory")
	}
	if c.Admin.Port <= 0 || c.Admin.Port > 65535 {
		return errors.New("admin.port must be between 1 and 65535")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	return nil
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		Sync: SyncConfig{
			CacheValidity:    1 * time.Hour,
			FullSyncInterval: 7 * 24 * time.Hour,
			RefreshInterval:  0,
		},
		Upstream: UpstreamConfig{
			BaseURL:  "https://graph.microsoft.com/v1.0",
			PageSize: 100,
			Timeout:  60 * time.Second,
		},
		Stats: StatsConfig{
			RefreshInterval: 24 * time.Hour,
			Timeout:         60 * time.Second,
		},
		Storage: StorageConfig{
			Backend: "postgres",
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			Database:       "nudge_mirror",
			User:           "mirror",
			Password:       "",
			MaxConnections: 10,
			MinConnections: 2,
		},
		Redis: RedisConfig{
			Host:     "localhost",
			Port:     6379,
			Password: "",
			DB:       0,
		},
		Admin: AdminConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
