package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/mini-rodalies-3d/onboard/internal/db"
	"github.com/mini-rodalies-3d/onboard/internal/metrics"
	"github.com/mini-rodalies-3d/onboard/internal/tracker"
)

// ErrorResponse is the JSON error response structure
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HealthResponse is the JSON response for GET /health
type HealthResponse struct {
	Status    string                  `json:"status"`
	Database  string                  `json:"database"`
	Endpoints []metrics.EndpointStats `json:"endpoints"`
	LastFixAt *time.Time              `json:"lastFixAt,omitempty"`
	Timestamp time.Time               `json:"timestamp"`
	Error     string                  `json:"error,omitempty"`
}

// RefreshResponse is the JSON response for the refresh endpoints
type RefreshResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// GetHealth handles GET /health
// Reports database connectivity and per-endpoint position fetch latency
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    "ok",
		Database:  "connected",
		Endpoints: []metrics.EndpointStats{},
		Timestamp: time.Now().UTC(),
	}
	if h.latency != nil {
		resp.Endpoints = h.latency.Stats()
	}
	if snap := h.svc.Snapshot(); snap.Fix != nil {
		at := snap.Fix.CapturedAt
		resp.LastFixAt = &at
	}

	if h.store != nil {
		if err := h.store.Ping(ctx); err != nil {
			resp.Status = "error"
			resp.Database = "disconnected"
			resp.Error = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetSnapshot handles GET /api/snapshot
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, h.svc.Snapshot())
}

// HistoryResponse is the JSON response for GET /api/history
type HistoryResponse struct {
	Fixes []db.FixRecord `json:"fixes"`
	Count int            `json:"count"`
}

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// GetHistory handles GET /api/history
// Returns recorded fixes newest first, limited by the limit query parameter
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "history disabled"})
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	fixes, err := h.store.RecentFixes(ctx, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to retrieve history",
			Details: map[string]interface{}{"internal": err.Error()},
		})
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Fixes: fixes, Count: len(fixes)})
}

// PostRefresh handles POST /api/refresh
// Claims and enqueues a user-initiated cycle. Returns 409 while a cycle is
// running or already queued.
func (h *Handler) PostRefresh(w http.ResponseWriter, r *http.Request) {
	if !h.svc.Refresh() {
		writeJSON(w, http.StatusConflict, RefreshResponse{Accepted: false, Reason: "cycle in flight"})
		return
	}
	writeJSON(w, http.StatusAccepted, RefreshResponse{Accepted: true})
}

// PostViewpointsRefresh handles POST /api/viewpoints/refresh
// Enqueues a forced church search around the latest fix
func (h *Handler) PostViewpointsRefresh(w http.ResponseWriter, r *http.Request) {
	err := h.svc.RequestViewpoints()
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, RefreshResponse{Accepted: true})
	case errors.Is(err, tracker.ErrNoFix):
		writeJSON(w, http.StatusConflict, RefreshResponse{Accepted: false, Reason: err.Error()})
	case errors.Is(err, tracker.ErrViewpointsDisabled):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to request viewpoints",
			Details: map[string]interface{}{"internal": err.Error()},
		})
	}
}
