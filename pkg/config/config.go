package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config represents the complete application configuration.
// It is shared by the terminal clients and the web server.
type Config struct {
	OpenSky      OpenSkyConfig      `json:"opensky"`
	Geocoder     GeocoderConfig     `json:"geocoder"`
	Map          MapConfig          `json:"map"`
	UserLocation UserLocationConfig `json:"user_location"`
	Server       ServerConfig       `json:"server"`
	Database     DatabaseConfig     `json:"database"`
	Logging      LoggingConfig      `json:"logging"`
}

// OpenSkyConfig contains flight-state provider settings.
type OpenSkyConfig struct {
	// BaseURL is the API base URL (default: https://opensky-network.org/api)
	BaseURL string `json:"base_url"`

	// Username and Password enable authenticated access with a higher quota.
	// Both empty means anonymous access.
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// TimeoutSeconds bounds a single states request (0 = transport default)
	TimeoutSeconds int `json:"timeout_seconds"`

	// RateLimitSeconds is the minimum time between API calls in seconds
	// 0 = no rate limit. Anonymous OpenSky data only refreshes every 10s.
	RateLimitSeconds float64 `json:"rate_limit_seconds"`
}

// GeocoderConfig contains geocoding provider settings.
type GeocoderConfig struct {
	// BaseURL is the Nominatim-compatible base URL
	BaseURL string `json:"base_url"`

	// UserAgent identifies this client; Nominatim rejects anonymous requests
	UserAgent string `json:"user_agent"`

	// CacheSize is the number of resolved locations kept in memory (0 disables)
	CacheSize int `json:"cache_size"`

	// CacheTTLMinutes is how long a resolved location stays cached
	CacheTTLMinutes int `json:"cache_ttl_minutes"`
}

// MapConfig contains map view settings.
type MapConfig struct {
	// TileURL is the slippy-map tile template used by the browser page
	TileURL string `json:"tile_url"`

	// Attribution is shown under the map and is required by the tile provider
	Attribution string `json:"attribution"`

	// DefaultRadius is the initial search radius in decimal degrees (0.5, 1.0 or 1.5)
	DefaultRadius float64 `json:"default_radius"`

	// DefaultQuery is searched on startup when non-empty
	DefaultQuery string `json:"default_query"`

	// RefreshIntervalSeconds re-fetches the current center (0 disables)
	RefreshIntervalSeconds int `json:"refresh_interval_seconds"`

	// StartInMapView selects the map instead of the list on startup
	StartInMapView bool `json:"start_in_map_view"`
}

// UserLocationConfig describes a fixed device position for terminal clients.
// Browsers supply their own position stream instead.
type UserLocationConfig struct {
	Enabled   bool    `json:"enabled"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	AccuracyM float64 `json:"accuracy_m"`
	Heading   float64 `json:"heading"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Port is the HTTP server port (default: 8080)
	Port string `json:"port"`

	// Host is the server bind address (default: "0.0.0.0")
	Host string `json:"host"`

	// AllowedOrigins is the CORS allow list (default: all)
	AllowedOrigins []string `json:"allowed_origins"`
}

// DatabaseConfig contains the optional sighting history database settings.
type DatabaseConfig struct {
	// Enabled turns on recording of every successful fetch
	Enabled bool `json:"enabled"`

	// Host is the database server hostname
	Host string `json:"host"`

	// Port is the database server port
	Port int `json:"port"`

	// Database is the database name
	Database string `json:"database"`

	// Username for database authentication
	Username string `json:"username"`

	// Password for database authentication (should be loaded from environment)
	Password string `json:"password"`

	// SSLMode for PostgreSQL connections (disable, require, verify-ca, verify-full)
	SSLMode string `json:"ssl_mode"`

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int `json:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int `json:"max_idle_conns"`

	// RetentionHours is how long sightings are kept before cleanup
	RetentionHours int `json:"retention_hours"`
}

// LoggingConfig controls the rotating log file.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `json:"level"`

	// Dir is the log directory; empty means the user config dir
	Dir string `json:"dir"`
}

// Load reads configuration from a JSON file.
// If the file doesn't exist, returns a default configuration.
// Env overrides are validated either way.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvironmentOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Start from defaults so a partial file only overrides what it names
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvironmentOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to a JSON file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		OpenSky: OpenSkyConfig{
			BaseURL:          "https://opensky-network.org/api",
			TimeoutSeconds:   0,
			RateLimitSeconds: 5.0,
		},
		Geocoder: GeocoderConfig{
			BaseURL:         "https://nominatim.openstreetmap.org",
			UserAgent:       "skytrack/1.0 (flight viewer)",
			CacheSize:       128,
			CacheTTLMinutes: 60,
		},
		Map: MapConfig{
			TileURL:                "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
			Attribution:            "&copy; OpenStreetMap contributors",
			DefaultRadius:          0.5,
			RefreshIntervalSeconds: 15,
		},
		Server: ServerConfig{
			Port:           "8080",
			Host:           "0.0.0.0",
			AllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Enabled:        false,
			Host:           "localhost",
			Port:           5432,
			Database:       "skytrack",
			Username:       "skytrack",
			SSLMode:        "disable",
			MaxOpenConns:   10,
			MaxIdleConns:   2,
			RetentionHours: 24,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks values that would otherwise fail later at request time.
func (c *Config) Validate() error {
	switch c.Map.DefaultRadius {
	case 0.5, 1.0, 1.5:
	default:
		return fmt.Errorf("map.default_radius must be 0.5, 1.0 or 1.5, got %v", c.Map.DefaultRadius)
	}
	if c.Map.RefreshIntervalSeconds < 0 {
		return fmt.Errorf("map.refresh_interval_seconds must not be negative")
	}
	if c.Geocoder.UserAgent == "" {
		return fmt.Errorf("geocoder.user_agent is required by the geocoding provider")
	}
	if c.UserLocation.Enabled {
		if c.UserLocation.Latitude < -90 || c.UserLocation.Latitude > 90 {
			return fmt.Errorf("user_location.latitude out of range: %v", c.UserLocation.Latitude)
		}
		if c.UserLocation.Longitude < -180 || c.UserLocation.Longitude > 180 {
			return fmt.Errorf("user_location.longitude out of range: %v", c.UserLocation.Longitude)
		}
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}

// OpenSkyTimeout returns the request timeout as a duration.
func (c *OpenSkyConfig) OpenSkyTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RefreshInterval returns the auto-refresh period, zero when disabled.
func (c *MapConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSeconds) * time.Second
}

// CacheTTL returns the geocoder cache lifetime.
func (c *GeocoderConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// Addr returns the listen address for the HTTP server.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
// This allows credentials to be kept out of config files.
func (c *Config) applyEnvironmentOverrides() {
	if port := os.Getenv("SKYTRACK_PORT"); port != "" {
		c.Server.Port = port
	}
	if user := os.Getenv("SKYTRACK_OPENSKY_USERNAME"); user != "" {
		c.OpenSky.Username = user
	}
	if pass := os.Getenv("SKYTRACK_OPENSKY_PASSWORD"); pass != "" {
		c.OpenSky.Password = pass
	}
	if ua := os.Getenv("SKYTRACK_GEOCODER_USER_AGENT"); ua != "" {
		c.Geocoder.UserAgent = ua
	}
	if dbPassword := os.Getenv("SKYTRACK_DB_PASSWORD"); dbPassword != "" {
		c.Database.Password = dbPassword
	}
	if enabled := os.Getenv("SKYTRACK_DB_ENABLED"); enabled != "" {
		if v, err := strconv.ParseBool(enabled); err == nil {
			c.Database.Enabled = v
		}
	}
	if level := os.Getenv("SKYTRACK_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}
