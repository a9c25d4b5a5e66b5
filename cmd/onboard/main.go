package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mini-rodalies-3d/onboard/internal/api"
	"github.com/mini-rodalies-3d/onboard/internal/config"
	"github.com/mini-rodalies-3d/onboard/internal/db"
	"github.com/mini-rodalies-3d/onboard/internal/enrichment"
	"github.com/mini-rodalies-3d/onboard/internal/metrics"
	"github.com/mini-rodalies-3d/onboard/internal/overpass"
	"github.com/mini-rodalies-3d/onboard/internal/position"
	"github.com/mini-rodalies-3d/onboard/internal/publish"
	"github.com/mini-rodalies-3d/onboard/internal/reckoning"
	"github.com/mini-rodalies-3d/onboard/internal/tracker"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Println("Starting onboard tracker...")

	// .env.local overrides .env for local development
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded: poll_interval=%v, endpoints=%d, overpass=%s",
		cfg.PollInterval, len(cfg.PositionEndpoints), cfg.OverpassURL)

	// ═══════════════════════════════════════════════════════
	// PHASE 1: Initialize Database
	// ═══════════════════════════════════════════════════════
	database, err := db.Connect(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("Failed to ensure database schema: %v", err)
	}
	log.Println("Database initialized")

	// ═══════════════════════════════════════════════════════
	// PHASE 2: Position and enrichment pipeline
	// ═══════════════════════════════════════════════════════
	latency := metrics.NewLatency()
	selector := position.NewSelector(cfg.PositionEndpoints, database, cfg.PositionTimeout, latency)
	reckoner := reckoning.New()
	poller := position.NewPoller(selector, reckoner, database)

	client := overpass.NewClient(cfg.OverpassURL, cfg.OverpassRPS, cfg.OverpassBurst, cfg.EnrichTimeout, cfg.UserAgent)
	stations := enrichment.NewStationFinder(client,
		enrichment.NewGate("station", cfg.GateInterval, cfg.GateDistanceKm),
		cfg.StationRadiiM, cfg.EnrichTimeout)
	lines := enrichment.NewLineDetector(client,
		enrichment.NewGate("line", cfg.GateInterval, cfg.GateDistanceKm),
		cfg.LineRadiusM, cfg.EnrichTimeout)
	viewpoints := enrichment.NewViewpointFinder(client,
		enrichment.NewGate("viewpoint", cfg.ViewpointInterval, cfg.ViewpointDistanceKm),
		cfg.ViewpointRadiusKm, cfg.ViewpointMaxResults, cfg.ViewpointAheadDeg, cfg.EnrichTimeout)

	trk := tracker.New(tracker.Deps{
		Poller:     poller,
		Reckoner:   reckoner,
		Stations:   stations,
		Lines:      lines,
		Viewpoints: viewpoints,
		QueryURL:   client.QueryURL,
	}, cfg.PollInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ═══════════════════════════════════════════════════════
	// PHASE 3: Sinks
	// ═══════════════════════════════════════════════════════
	server := api.NewServer(cfg.HTTPAddr, api.NewRouter(api.NewHandler(trk, database, latency), cfg.CORSOrigins))
	server.Start()

	if cfg.MQTTBroker != "" {
		mqttClient, err := publish.Connect(cfg.MQTTBroker, cfg.MQTTClientID)
		if err != nil {
			log.Printf("Warning: MQTT disabled: %v", err)
		} else {
			defer mqttClient.Disconnect(250)
			updates, unsubscribe := trk.Subscribe()
			defer unsubscribe()
			go publish.NewPublisher(mqttClient, cfg.MQTTTopic).Run(ctx, updates)
			log.Printf("Publishing snapshots to %s on %s", cfg.MQTTTopic, cfg.MQTTBroker)
		}
	}

	// ═══════════════════════════════════════════════════════
	// PHASE 4: Tracking loop
	// ═══════════════════════════════════════════════════════
	stopped := make(chan struct{})
	go func() {
		trk.Run(ctx)
		close(stopped)
	}()

	// Fix history retention
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := database.Cleanup(ctx, cfg.RetentionDuration, time.Now()); err != nil {
					log.Printf("Cleanup error: %v", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Printf("Tracker running (poll every %v, retain %v)", cfg.PollInterval, cfg.RetentionDuration)

	// ═══════════════════════════════════════════════════════
	// PHASE 5: Graceful Shutdown
	// ═══════════════════════════════════════════════════════
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("API shutdown error: %v", err)
	}

	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		log.Println("Timed out waiting for in-flight cycles")
	}
	log.Println("Goodbye!")
}
