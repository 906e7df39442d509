// Package app wires the configured providers, the optional sighting
// database and the controller shared by every front end.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/skypies/geo"

	"github.com/unklstewy/skytrack/internal/controller"
	"github.com/unklstewy/skytrack/internal/db"
	"github.com/unklstewy/skytrack/pkg/config"
	"github.com/unklstewy/skytrack/pkg/geocode"
	"github.com/unklstewy/skytrack/pkg/opensky"
	"github.com/unklstewy/skytrack/pkg/tracking"
)

// Services is the assembled core.
type Services struct {
	Config     *config.Config
	Flights    *opensky.Client
	Resolver   *geocode.Resolver
	Controller *controller.Controller

	// DB and Sightings are nil unless database.enabled is set
	DB        *db.DB
	Sightings *db.SightingRepository

	logger *slog.Logger
}

// New builds the services from cfg. With the database enabled it waits
// for Postgres (bounded retries), applies the schema and records every
// successful fetch.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Services, error) {
	if logger == nil {
		logger = slog.Default()
	}

	flights := opensky.NewClient(opensky.Options{
		BaseURL:     cfg.OpenSky.BaseURL,
		Username:    cfg.OpenSky.Username,
		Password:    cfg.OpenSky.Password,
		Timeout:     cfg.OpenSky.OpenSkyTimeout(),
		MinInterval: time.Duration(cfg.OpenSky.RateLimitSeconds * float64(time.Second)),
		Logger:      logger,
	})

	geocoder := geocode.NewClient(cfg.Geocoder.BaseURL, cfg.Geocoder.UserAgent, 0)
	resolver := geocode.NewResolver(geocoder, cfg.Geocoder.CacheSize, cfg.Geocoder.CacheTTL(), logger)

	s := &Services{
		Config:     cfg,
		Flights:    flights,
		Resolver:   resolver,
		Controller: controller.New(resolver, flights, logger),
		logger:     logger,
	}

	if cfg.Database.Enabled {
		database, err := db.ReconnectWithRetry(ctx, cfg.Database, 5, time.Second, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := database.InitSchema(ctx); err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
		s.DB = database
		s.Sightings = db.NewSightingRepository(database)
		s.Controller.WithRecorder(s.Sightings)
		logger.Info("recording sightings", "host", cfg.Database.Host, "database", cfg.Database.Database)
	}

	return s, nil
}

// Close releases the database, if any.
func (s *Services) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// RunCleanup prunes sightings older than the retention period once an
// hour until ctx is done. It returns immediately without a database.
func (s *Services) RunCleanup(ctx context.Context) error {
	if s.DB == nil || s.Config.Database.RetentionHours <= 0 {
		return nil
	}
	retention := time.Duration(s.Config.Database.RetentionHours) * time.Hour

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		n, err := s.DB.CleanupOldData(ctx, retention)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("sighting cleanup failed", "error", err)
		} else if n > 0 {
			s.logger.Info("pruned sightings", "rows", n)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// InitialState is the controller state a front end starts from.
func InitialState(cfg *config.Config) controller.State {
	view := controller.ListView
	if cfg.Map.StartInMapView {
		view = controller.MapView
	}
	return controller.NewState(cfg.Map.DefaultQuery, cfg.Map.DefaultRadius, view)
}

// UserSources returns the device position and heading sources for a
// terminal client: a fixed position when configured, otherwise none.
func UserSources(cfg config.UserLocationConfig) (tracking.PositionSource, tracking.HeadingSource) {
	if !cfg.Enabled {
		return tracking.Unavailable{}, tracking.Unavailable{}
	}
	heading := cfg.Heading
	src := tracking.StaticSource{
		Fix: tracking.Fix{
			Position:  geo.Latlong{Lat: cfg.Latitude, Long: cfg.Longitude},
			AccuracyM: cfg.AccuracyM,
		},
		Heading: &heading,
	}
	return src, src
}

// ParseHere parses a "lat,lon" flag value.
func ParseHere(s string) (geo.Latlong, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return geo.Latlong{}, fmt.Errorf("%q: expected lat,lon", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return geo.Latlong{}, fmt.Errorf("%q: invalid latitude: %w", s, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return geo.Latlong{}, fmt.Errorf("%q: invalid longitude: %w", s, err)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return geo.Latlong{}, fmt.Errorf("%q: coordinates out of range", s)
	}
	return geo.Latlong{Lat: lat, Long: lon}, nil
}

// ApplyHere enables a fixed user location from a -here flag value.
func ApplyHere(cfg *config.Config, here string) error {
	if here == "" {
		return nil
	}
	ll, err := ParseHere(here)
	if err != nil {
		return err
	}
	cfg.UserLocation.Enabled = true
	cfg.UserLocation.Latitude = ll.Lat
	cfg.UserLocation.Longitude = ll.Long
	return nil
}
