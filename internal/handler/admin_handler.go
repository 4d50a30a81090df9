package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sambetts/office-nudge-sub000/internal/service"
	"github.com/sambetts/office-nudge-sub000/internal/store"
	"go.uber.org/zap"
)

// AdminHandler exposes the orchestrator's operations as a thin JSON surface:
// list and lookup for consumers, sync/clear/status/stats-refresh for
// operators. All decisions stay in the services; this layer only translates.
type AdminHandler struct {
	syncService  *service.SyncService
	statsService *service.StatsService
	logger       *zap.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(syncService *service.SyncService, statsService *service.StatsService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		syncService:  syncService,
		statsService: statsService,
		logger:       logger,
	}
}

// Register mounts all routes on mux
func (h *AdminHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/users", h.handleUsers)
	mux.HandleFunc("/v1/users/", h.handleUserByPrincipal)
	mux.HandleFunc("/v1/sync", h.handleSync)
	mux.HandleFunc("/v1/cache/clear", h.handleClear)
	mux.HandleFunc("/v1/stats/refresh", h.handleStatsRefresh)
	mux.HandleFunc("/v1/status", h.handleStatus)
}

// handleUsers serves GET /v1/users[?refresh=true]
func (h *AdminHandler) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	forceRefresh := r.URL.Query().Get("refresh") == "true"
	users, err := h.syncService.GetAll(r.Context(), forceRefresh)
	if err != nil {
		h.logger.Error("Failed to list users", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(users),
		"users": users,
	})
}

// handleUserByPrincipal serves GET /v1/users/{principal}
func (h *AdminHandler) handleUserByPrincipal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	principal := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	if principal == "" {
		writeError(w, http.StatusBadRequest, "principal name is required")
		return
	}

	user, err := h.syncService.GetUser(r.Context(), principal)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to get user", zap.String("principal", principal), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get user")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// handleSync serves POST /v1/sync. Unlike GetAll, a failed cycle surfaces
// here so operators can see repeated failures.
func (h *AdminHandler) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := h.syncService.Sync(r.Context()); err != nil {
		h.logger.Error("Manual sync failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	status, err := h.syncService.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "sync succeeded but status read failed")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleClear serves POST /v1/cache/clear
func (h *AdminHandler) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	removed, err := h.syncService.ClearCache(r.Context())
	if err != nil {
		h.logger.Error("Cache clear failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// handleStatsRefresh serves POST /v1/stats/refresh[?force=true]
func (h *AdminHandler) handleStatsRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var report *service.ApplyReport
	var err error
	if r.URL.Query().Get("force") == "true" {
		report, err = h.statsService.Refresh(r.Context())
	} else {
		report, err = h.statsService.RefreshIfStale(r.Context())
	}
	if err != nil {
		h.logger.Error("Stats refresh failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if report == nil {
		writeJSON(w, http.StatusOK, map[string]string{"result": "fresh"})
		return
	}

	failures := make([]string, 0, len(report.Failures))
	for _, f := range report.Failures {
		failures = append(failures, f.Principal+": "+f.Err.Error())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"feed_status": report.FeedStatus,
		"applied":     report.Applied,
		"skipped":     report.Skipped,
		"failures":    failures,
	})
}

// handleStatus serves GET /v1/status
func (h *AdminHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	status, err := h.syncService.Status(r.Context())
	if err != nil {
		h.logger.Error("Failed to read sync status", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read sync status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
