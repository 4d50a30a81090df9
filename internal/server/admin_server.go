package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sambetts/office-nudge-sub000/internal/handler"
	"github.com/sambetts/office-nudge-sub000/internal/health"
	"go.uber.org/zap"
)

// AdminServer serves the admin API, health probes and Prometheus metrics
// from one HTTP listener.
type AdminServer struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// AdminServerConfig holds configuration for the admin server
type AdminServerConfig struct {
	Host           string
	Port           int
	MetricsEnabled bool
	MetricsPath    string
}

// NewAdminServer creates a new admin server
func NewAdminServer(cfg *AdminServerConfig, adminHandler *handler.AdminHandler, healthChecker *health.HealthChecker, logger *zap.Logger) *AdminServer {
	mux := http.NewServeMux()

	adminHandler.Register(mux)
	mux.HandleFunc("/health/live", healthChecker.LivenessHandler)
	mux.HandleFunc("/health/ready", healthChecker.ReadinessHandler)

	if cfg.MetricsEnabled {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle(path, promhttp.Handler())
	}

	return &AdminServer{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 120 * time.Second, // manual syncs can be slow
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Start starts serving in a background goroutine
func (s *AdminServer) Start() {
	s.logger.Info("Starting admin server", zap.String("addr", s.httpServer.Addr))

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Admin server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully stops the server
func (s *AdminServer) Stop(timeout time.Duration) error {
	s.logger.Info("Stopping admin server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("admin server shutdown failed: %w", err)
	}
	return nil
}
