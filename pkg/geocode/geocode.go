// Package geocode resolves free-text place queries to coordinates using a
// Nominatim-compatible search API.
//
// API Documentation: https://nominatim.org/release-docs/latest/api/Search/
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/skypies/geo"
)

// ErrNotFound is returned when neither the airport lookup nor the plain
// place lookup produced a usable result.
var ErrNotFound = errors.New("location not found")

// Location is a resolved search center.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	// Name is the most specific segment of the provider's display name
	Name string `json:"name"`

	// Query is the text the user entered
	Query string `json:"query"`
}

// Latlong returns the location as a geo point.
func (l Location) Latlong() geo.Latlong {
	return geo.Latlong{Lat: l.Latitude, Long: l.Longitude}
}

// Place is one raw search result. Nominatim encodes coordinates as strings.
type Place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Latlong parses the string-encoded coordinates.
func (p Place) Latlong() (geo.Latlong, error) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return geo.Latlong{}, fmt.Errorf("invalid latitude %q: %w", p.Lat, err)
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return geo.Latlong{}, fmt.Errorf("invalid longitude %q: %w", p.Lon, err)
	}
	return geo.Latlong{Lat: lat, Long: lon}, nil
}

// Client calls the provider's /search endpoint.
type Client struct {
	// baseURL is the API base URL (default: https://nominatim.openstreetmap.org)
	baseURL string

	// userAgent identifies this application; the public instance requires it
	userAgent string

	httpClient *http.Client
}

// NewClient creates a geocoding client. timeout of zero keeps the
// transport default.
func NewClient(baseURL, userAgent string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://nominatim.openstreetmap.org"
	}
	return &Client{
		baseURL:    baseURL,
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Search returns at most one place matching query. An empty slice means
// the provider had no match.
func (c *Client) Search(ctx context.Context, query string) ([]Place, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "1")
	reqURL := fmt.Sprintf("%s/search?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query geocoder: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("geocoder returned status %d: %s", resp.StatusCode, string(body))
	}

	var places []Place
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return nil, fmt.Errorf("failed to parse geocoder response: %w", err)
	}
	return places, nil
}
