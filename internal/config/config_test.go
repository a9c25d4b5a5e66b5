package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TRACKER_CONFIG", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.PollInterval != 15*time.Second {
		t.Errorf("PollInterval = %v, expected 15s", cfg.PollInterval)
	}
	if cfg.PositionTimeout != 2*time.Second {
		t.Errorf("PositionTimeout = %v, expected 2s", cfg.PositionTimeout)
	}
	if len(cfg.PositionEndpoints) != len(DefaultPositionEndpoints) {
		t.Errorf("expected %d default endpoints, got %d", len(DefaultPositionEndpoints), len(cfg.PositionEndpoints))
	}
	if cfg.GateInterval != time.Minute || cfg.GateDistanceKm != 0.5 {
		t.Errorf("gate defaults = %v / %f", cfg.GateInterval, cfg.GateDistanceKm)
	}
	if cfg.StationRadiiM[0] != 500 || cfg.StationRadiiM[len(cfg.StationRadiiM)-1] != 30000 {
		t.Errorf("unexpected radii %v", cfg.StationRadiiM)
	}
}

func TestLoad_StationRadiiSorted(t *testing.T) {
	t.Setenv("TRACKER_CONFIG", "")
	t.Setenv("STATION_RADII_M", "2000,500,1000,500")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := []int{500, 1000, 2000}
	if len(cfg.StationRadiiM) != len(want) {
		t.Fatalf("StationRadiiM = %v, expected %v", cfg.StationRadiiM, want)
	}
	for i := range want {
		if cfg.StationRadiiM[i] != want[i] {
			t.Errorf("StationRadiiM = %v, expected %v", cfg.StationRadiiM, want)
			break
		}
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TRACKER_CONFIG", "")
	t.Setenv("POLL_INTERVAL", "30")
	t.Setenv("ENRICH_TIMEOUT", "45s")
	t.Setenv("POSITION_ENDPOINTS", "https://a.example/gps, https://b.example/gps")
	t.Setenv("STATION_RADII_M", "100,200")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %v, expected 30s", cfg.PollInterval)
	}
	if cfg.EnrichTimeout != 45*time.Second {
		t.Errorf("EnrichTimeout = %v, expected 45s", cfg.EnrichTimeout)
	}
	if len(cfg.PositionEndpoints) != 2 || cfg.PositionEndpoints[1] != "https://b.example/gps" {
		t.Errorf("PositionEndpoints = %v", cfg.PositionEndpoints)
	}
	if len(cfg.StationRadiiM) != 2 || cfg.StationRadiiM[1] != 200 {
		t.Errorf("StationRadiiM = %v", cfg.StationRadiiM)
	}
}

func TestLoad_YAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.yml")
	content := `
poll_interval: 5s
overpass_url: https://overpass.example/api/interpreter
station_radii_m: [250, 750]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TRACKER_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v, expected 5s", cfg.PollInterval)
	}
	if cfg.OverpassURL != "https://overpass.example/api/interpreter" {
		t.Errorf("OverpassURL = %q", cfg.OverpassURL)
	}
	if len(cfg.StationRadiiM) != 2 || cfg.StationRadiiM[0] != 250 {
		t.Errorf("StationRadiiM = %v", cfg.StationRadiiM)
	}
	// untouched keys keep their defaults
	if cfg.LineRadiusM != 10 {
		t.Errorf("LineRadiusM = %d, expected default 10", cfg.LineRadiusM)
	}
}

func TestLoad_InvalidEndpoint(t *testing.T) {
	t.Setenv("TRACKER_CONFIG", "")
	t.Setenv("POSITION_ENDPOINTS", "not a url")

	if _, err := Load(); err == nil {
		t.Error("expected validation error for malformed endpoint")
	}
}
