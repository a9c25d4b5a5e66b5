package config

import (
	"fmt"
	"log"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultPositionEndpoints are the onboard Wi-Fi portal APIs tried in order
var DefaultPositionEndpoints = []string{
	"https://wifi.sncf/router/api/train/gps",
	"https://wifi.intercites.sncf/router/api/train/gps",
	"https://ouifi.ouigo.com:8084/api/gps",
	"https://wifi.tgv-lyria.com/router/api/train/gps",
	"https://www.ombord.info/api/jsonp/position",
}

// DefaultStationRadii are the station search radii in meters, nearest first
var DefaultStationRadii = []int{500, 1000, 2000, 5000, 10000, 20000, 30000}

// Config holds all configuration for the onboard tracker
type Config struct {
	// Database
	DatabasePath      string        `yaml:"database_path" validate:"required"`
	RetentionDuration time.Duration `yaml:"retention" validate:"gt=0"`

	// Position polling
	PollInterval      time.Duration `yaml:"poll_interval" validate:"gt=0"`
	PositionTimeout   time.Duration `yaml:"position_timeout" validate:"gt=0"`
	PositionEndpoints []string      `yaml:"position_endpoints" validate:"min=1,dive,url"`

	// Overpass
	OverpassURL    string        `yaml:"overpass_url" validate:"required,url"`
	OverpassRPS    float64       `yaml:"overpass_rps" validate:"gt=0"`
	OverpassBurst  int           `yaml:"overpass_burst" validate:"gt=0"`
	EnrichTimeout  time.Duration `yaml:"enrich_timeout" validate:"gt=0"`
	UserAgent      string        `yaml:"user_agent"`
	StationRadiiM  []int         `yaml:"station_radii_m" validate:"min=1,dive,gt=0"`
	LineRadiusM    int           `yaml:"line_radius_m" validate:"gt=0"`
	GateInterval   time.Duration `yaml:"gate_min_interval" validate:"gt=0"`
	GateDistanceKm float64       `yaml:"gate_min_distance_km" validate:"gt=0"`

	// Viewpoints
	ViewpointRadiusKm   float64       `yaml:"viewpoint_radius_km" validate:"gt=0"`
	ViewpointMaxResults int           `yaml:"viewpoint_max_results" validate:"gt=0"`
	ViewpointAheadDeg   float64       `yaml:"viewpoint_ahead_deg" validate:"gt=0,lte=180"`
	ViewpointInterval   time.Duration `yaml:"viewpoint_min_interval" validate:"gt=0"`
	ViewpointDistanceKm float64       `yaml:"viewpoint_min_distance_km" validate:"gt=0"`

	// HTTP API
	HTTPAddr    string   `yaml:"http_addr" validate:"required"`
	CORSOrigins []string `yaml:"cors_origins"`

	// MQTT (optional)
	MQTTBroker   string `yaml:"mqtt_broker"`
	MQTTClientID string `yaml:"mqtt_client_id"`
	MQTTTopic    string `yaml:"mqtt_topic"`
}

// Load reads configuration from environment variables with sensible defaults.
// If TRACKER_CONFIG names a YAML file, its values override the environment.
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath:      getEnv("SQLITE_DATABASE", "data/onboard.db"),
		RetentionDuration: getEnvDuration("RETENTION_DURATION", 24*time.Hour),

		PollInterval:      getEnvDuration("POLL_INTERVAL", 15*time.Second),
		PositionTimeout:   time.Duration(getEnvInt("POSITION_TIMEOUT_MS", 2000)) * time.Millisecond,
		PositionEndpoints: getEnvList("POSITION_ENDPOINTS", DefaultPositionEndpoints),

		OverpassURL:    getEnv("OVERPASS_URL", "https://overpass.private.coffee/api/interpreter"),
		OverpassRPS:    getEnvFloat("OVERPASS_RPS", 1),
		OverpassBurst:  getEnvInt("OVERPASS_BURST", 2),
		EnrichTimeout:  getEnvDuration("ENRICH_TIMEOUT", 30*time.Second),
		UserAgent:      getEnv("USER_AGENT", "onboard-tracker/1.0"),
		StationRadiiM:  getEnvIntList("STATION_RADII_M", DefaultStationRadii),
		LineRadiusM:    getEnvInt("LINE_RADIUS_M", 10),
		GateInterval:   getEnvDuration("GATE_MIN_INTERVAL", 60*time.Second),
		GateDistanceKm: getEnvFloat("GATE_MIN_DISTANCE_KM", 0.5),

		ViewpointRadiusKm:   getEnvFloat("VIEWPOINT_RADIUS_KM", 3),
		ViewpointMaxResults: getEnvInt("VIEWPOINT_MAX_RESULTS", 5),
		ViewpointAheadDeg:   getEnvFloat("VIEWPOINT_AHEAD_DEG", 70),
		ViewpointInterval:   getEnvDuration("VIEWPOINT_MIN_INTERVAL", 120*time.Second),
		ViewpointDistanceKm: getEnvFloat("VIEWPOINT_MIN_DISTANCE_KM", 0.8),

		HTTPAddr:    getEnv("HTTP_ADDR", ":8081"),
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"http://localhost:5173"}),

		MQTTBroker:   getEnv("MQTT_BROKER", ""),
		MQTTClientID: getEnv("MQTT_CLIENT_ID", "onboard-tracker"),
		MQTTTopic:    getEnv("MQTT_TOPIC", "onboard/snapshot"),
	}

	if path := os.Getenv("TRACKER_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	// radii are searched nearest first
	slices.Sort(cfg.StationRadiiM)
	cfg.StationRadiiM = slices.Compact(cfg.StationRadiiM)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// applyFile overlays values present in a YAML file onto cfg
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	log.Printf("Config: applied overrides from %s", path)
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return append([]string(nil), defaultValue...)
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvIntList(key string, defaultValue []int) []int {
	value := os.Getenv(key)
	if value == "" {
		return append([]int(nil), defaultValue...)
	}
	var out []int
	for _, part := range strings.Split(value, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return append([]int(nil), defaultValue...)
	}
	return out
}
