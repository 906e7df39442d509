package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/skypies/geo"

	"github.com/unklstewy/skytrack/pkg/geocode"
	"github.com/unklstewy/skytrack/pkg/opensky"
)

// Locator resolves a search query to a location.
type Locator interface {
	Resolve(ctx context.Context, query string) (geocode.Location, error)
}

// FlightSource returns airborne flights around a center.
type FlightSource interface {
	Flights(ctx context.Context, center geo.Latlong, radius float64) ([]opensky.Flight, error)
}

// Recorder persists fetched flights. Optional.
type Recorder interface {
	RecordFlights(ctx context.Context, loc geocode.Location, flights []opensky.Flight, at time.Time) error
}

// Result is the outcome of one fetch.
type Result struct {
	Location  geocode.Location
	Radius    float64
	Flights   []opensky.Flight
	FetchedAt time.Time
}

// Controller runs searches. It holds no UI state; see Store and Reduce.
type Controller struct {
	locator  Locator
	flights  FlightSource
	recorder Recorder
	logger   *slog.Logger
}

// New creates a controller.
func New(locator Locator, flights FlightSource, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{locator: locator, flights: flights, logger: logger}
}

// WithRecorder makes every successful fetch go to r as well.
func (c *Controller) WithRecorder(r Recorder) *Controller {
	c.recorder = r
	return c
}

// Search resolves query and fetches flights within radius of it. The two
// calls run in sequence. On ErrNoAircraft the returned Result still holds
// the resolved location.
func (c *Controller) Search(ctx context.Context, query string, radius float64) (Result, error) {
	if err := opensky.ValidateRadius(radius); err != nil {
		return Result{}, err
	}

	loc, err := c.locator.Resolve(ctx, query)
	if err != nil {
		c.logger.Info("search did not resolve", "query", query, "error", err)
		return Result{}, err
	}

	return c.Refresh(ctx, loc, radius)
}

// Refresh re-fetches flights around an already resolved location.
func (c *Controller) Refresh(ctx context.Context, loc geocode.Location, radius float64) (Result, error) {
	res := Result{Location: loc, Radius: radius}

	flights, err := c.flights.Flights(ctx, loc.Latlong(), radius)
	res.FetchedAt = time.Now()
	if err != nil {
		if errors.Is(err, opensky.ErrNoAircraft) {
			c.logger.Info("no aircraft in area", "query", loc.Query, "radius", radius)
		} else {
			c.logger.Error("flight fetch failed", "query", loc.Query, "radius", radius, "error", err)
		}
		return res, err
	}
	res.Flights = flights

	c.logger.Info("fetched flights", "query", loc.Query, "location", loc.Name,
		"radius", radius, "count", len(flights))

	if c.recorder != nil {
		if err := c.recorder.RecordFlights(ctx, loc, flights, res.FetchedAt); err != nil {
			c.logger.Warn("failed to record sightings", "error", err)
		}
	}

	return res, nil
}

// MessageFor maps an error to the single user-visible message string.
func MessageFor(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, geocode.ErrNotFound) {
		return "Location not found. Try an airport code (e.g. JFK) or a city name (e.g. London)."
	}
	if errors.Is(err, opensky.ErrNoAircraft) {
		return "No aircraft detected in this area."
	}
	if errors.Is(err, opensky.ErrInvalidRadius) {
		return "Radius must be 0.5, 1.0 or 1.5 degrees."
	}
	if rle, ok := opensky.IsRateLimitError(err); ok && rle.RetryAfter > 0 {
		return fmt.Sprintf("Flight data rate limit reached. Try again in %s.", rle.RetryAfter.Round(time.Second))
	}
	if opensky.IsUnavailable(err) {
		return "Flight data is unavailable right now (rate limit or service outage). Please try again shortly."
	}

	if msg := err.Error(); msg != "" {
		return msg
	}
	return "Something went wrong. Please try again."
}
