package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sambetts/office-nudge-sub000/internal/config"
	"github.com/sambetts/office-nudge-sub000/internal/handler"
	"github.com/sambetts/office-nudge-sub000/internal/health"
	"github.com/sambetts/office-nudge-sub000/internal/loader"
	"github.com/sambetts/office-nudge-sub000/internal/metrics"
	"github.com/sambetts/office-nudge-sub000/internal/server"
	"github.com/sambetts/office-nudge-sub000/internal/service"
	"github.com/sambetts/office-nudge-sub000/internal/statsfeed"
	"github.com/sambetts/office-nudge-sub000/internal/store"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting directory mirror service")

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Configuration loaded",
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("upstream", cfg.Upstream.BaseURL),
		zap.Duration("cache_validity", cfg.Sync.CacheValidity),
		zap.Duration("full_sync_interval", cfg.Sync.FullSyncInterval))

	// Initialize metrics
	m := metrics.NewMetrics()

	// Initialize user store
	userStore, err := newUserStore(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize user store", zap.Error(err))
	}
	logger.Info("User store initialized", zap.String("backend", cfg.Storage.Backend))

	// Initialize directory loader. The default client carries no
	// credentials; deployments inject auth via UPSTREAM_BASE_URL pointing at
	// an authenticating proxy or by building with a token-carrying client.
	directoryLoader := loader.NewGraphLoader(
		cfg.Upstream.BaseURL,
		cfg.Upstream.PageSize,
		cfg.Upstream.AllowedDomains,
		cfg.Upstream.Timeout,
		nil,
		logger,
	)

	// Initialize stats feed
	var feed statsfeed.StatsFeed
	if cfg.Stats.ReportURL != "" {
		feed = statsfeed.NewReportFeed(cfg.Stats.ReportURL, cfg.Stats.Timeout, nil, logger)
	} else {
		logger.Info("No stats report URL configured, enrichment disabled")
		feed = statsfeed.NewFixtureFeed()
	}

	// Initialize services
	syncService := service.NewSyncService(
		userStore,
		directoryLoader,
		cfg.Sync.CacheValidity,
		cfg.Sync.FullSyncInterval,
		m,
		logger,
	)
	statsService := service.NewStatsService(
		userStore,
		feed,
		cfg.Stats.RefreshInterval,
		m,
		logger,
	)

	// Initialize admin server
	adminHandler := handler.NewAdminHandler(syncService, statsService, logger)
	healthChecker := health.NewHealthChecker(userStore, logger)
	adminServer := server.NewAdminServer(&server.AdminServerConfig{
		Host:           cfg.Admin.Host,
		Port:           cfg.Admin.Port,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
	}, adminHandler, healthChecker, logger)
	adminServer.Start()

	// Optional background refresh ticker. The sync core stays caller-driven;
	// this is the external timer driving periodic GetAll/stats passes.
	stopRefresh := make(chan struct{})
	if cfg.Sync.RefreshInterval > 0 {
		go runBackgroundRefresh(syncService, statsService, cfg.Sync.RefreshInterval, stopRefresh, logger)
		logger.Info("Background refresh enabled", zap.Duration("interval", cfg.Sync.RefreshInterval))
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received signal", zap.String("signal", sig.String()))

	// Graceful shutdown
	logger.Info("Shutting down gracefully")
	close(stopRefresh)

	if err := adminServer.Stop(cfg.Admin.ShutdownTimeout); err != nil {
		logger.Warn("Admin server shutdown", zap.Error(err))
	}

	userStore.Close()
	logger.Info("Directory mirror service stopped")
}

// newUserStore builds the configured storage backend
func newUserStore(cfg *config.Config, logger *zap.Logger) (store.UserStore, error) {
	switch cfg.Storage.Backend {
	case "postgres":
		return store.NewPostgresUserStore(
			cfg.Database.Host,
			cfg.Database.Port,
			cfg.Database.Database,
			cfg.Database.User,
			cfg.Database.Password,
			cfg.Database.MaxConnections,
			cfg.Database.MinConnections,
			logger,
		)
	case "redis":
		return store.NewRedisUserStore(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			logger,
		)
	case "memory":
		return store.NewMemoryUserStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// runBackgroundRefresh periodically resolves staleness for both the primary
// sync and the stats enrichment until stop is closed.
func runBackgroundRefresh(
	syncService *service.SyncService,
	statsService *service.StatsService,
	interval time.Duration,
	stop <-chan struct{},
	logger *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			if _, err := syncService.GetAll(ctx, false); err != nil {
				logger.Warn("Background refresh failed", zap.Error(err))
			}
			if _, err := statsService.RefreshIfStale(ctx); err != nil {
				logger.Warn("Background stats refresh failed", zap.Error(err))
			}
			cancel()
		case <-stop:
			return
		}
	}
}
