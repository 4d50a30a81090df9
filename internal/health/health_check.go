package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sambetts/office-nudge-sub000/internal/store"
	"go.uber.org/zap"
)

// HealthChecker serves liveness and readiness probes over the user store
type HealthChecker struct {
	userStore store.UserStore
	logger    *zap.Logger
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(userStore store.UserStore, logger *zap.Logger) *HealthChecker {
	return &HealthChecker{
		userStore: userStore,
		logger:    logger,
	}
}

// LivenessHandler reports that the process is up
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ReadinessHandler reports whether the storage backend is reachable
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.userStore.Ping(ctx); err != nil {
		h.logger.Warn("Readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ready",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
