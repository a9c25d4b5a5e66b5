// Package api serves tracker snapshots over HTTP and websockets.
package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/mini-rodalies-3d/onboard/internal/db"
	"github.com/mini-rodalies-3d/onboard/internal/metrics"
	"github.com/mini-rodalies-3d/onboard/internal/tracker"
)

// TrackerService is the part of the tracker the handlers use
type TrackerService interface {
	Snapshot() tracker.Snapshot
	Subscribe() (<-chan tracker.Snapshot, func())
	Refresh() bool
	RequestViewpoints() error
}

// Store is the persisted state the handlers read
type Store interface {
	Ping(ctx context.Context) error
	RecentFixes(ctx context.Context, limit int) ([]db.FixRecord, error)
}

// LatencySource reports per-endpoint fetch statistics
type LatencySource interface {
	Stats() []metrics.EndpointStats
}

// Handler serves the presentation API
type Handler struct {
	svc      TrackerService
	store    Store
	latency  LatencySource
	upgrader websocket.Upgrader
}

// NewHandler creates a handler. store and latency may be nil.
func NewHandler(svc TrackerService, store Store, latency LatencySource) *Handler {
	return &Handler{svc: svc, store: store, latency: latency}
}

// NewRouter wires the routes with CORS for the given origins. The same
// origins gate websocket upgrades on /ws.
func NewRouter(h *Handler, allowedOrigins []string) http.Handler {
	h.upgrader = newUpgrader(allowedOrigins)

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.GetHealth)
	r.Get("/api/snapshot", h.GetSnapshot)
	r.Get("/api/history", h.GetHistory)
	r.Post("/api/refresh", h.PostRefresh)
	r.Post("/api/viewpoints/refresh", h.PostViewpointsRefresh)
	r.Get("/ws", h.Stream)
	return r
}

// Server wraps http.Server with graceful shutdown
type Server struct {
	srv *http.Server
}

// NewServer creates a server listening on addr
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Start serves in the background
func (s *Server) Start() {
	go func() {
		log.Printf("API server starting on %s", s.srv.Addr)
		log.Println("  GET  /health")
		log.Println("  GET  /api/snapshot")
		log.Println("  GET  /api/history")
		log.Println("  POST /api/refresh")
		log.Println("  POST /api/viewpoints/refresh")
		log.Println("  GET  /ws")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("API server failed: %v", err)
		}
	}()
}

// Shutdown stops accepting connections and waits for active requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
