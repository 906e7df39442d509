// Package opensky fetches aircraft state vectors from the OpenSky Network
// REST API and normalizes them into display-ready flights.
//
// API Documentation: https://openskynetwork.github.io/opensky-api/rest.html
package opensky

import (
	"errors"
	"fmt"

	"github.com/skypies/geo"
)

// Radii lists the accepted search radii in decimal degrees.
var Radii = []float64{0.5, 1.0, 1.5}

var (
	// ErrNoAircraft is returned when the provider answers successfully but
	// reports no state vectors at all inside the bounding box.
	ErrNoAircraft = errors.New("no aircraft detected in this area")

	// ErrInvalidRadius is returned for radii outside Radii.
	ErrInvalidRadius = errors.New("radius must be 0.5, 1.0 or 1.5 degrees")
)

// NotAvailable is rendered for any field the provider left empty.
const NotAvailable = "N/A"

// Flight is one airborne aircraft as shown to the user. It is rebuilt from
// every provider response; only ID links it to earlier fetches.
type Flight struct {
	// ID is the ICAO24 transponder address, or "flight-<index>" when absent
	ID string `json:"id"`

	// Callsign is trimmed; NotAvailable when missing
	Callsign string `json:"callsign"`

	// Country is the origin country reported by the provider
	Country string `json:"country"`

	// Latitude/Longitude in decimal degrees (valid only when HasPosition)
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	HasPosition bool    `json:"has_position"`

	// Numeric values, nil when the provider omitted them
	AltitudeM   *float64 `json:"altitude_m,omitempty"`
	VelocityKmh *float64 `json:"velocity_kmh,omitempty"`
	HeadingDeg  *float64 `json:"heading_deg,omitempty"`

	// Display strings ("10668 m", "360 km/h", "90°" or NotAvailable)
	Altitude string `json:"altitude"`
	Velocity string `json:"velocity"`
	Heading  string `json:"heading"`

	OnGround bool `json:"on_ground"`
}

// Latlong returns the flight position.
func (f Flight) Latlong() geo.Latlong {
	return geo.Latlong{Lat: f.Latitude, Long: f.Longitude}
}

// Track returns the heading in degrees, 0 when unknown.
func (f Flight) Track() float64 {
	if f.HeadingDeg == nil {
		return 0
	}
	return *f.HeadingDeg
}

// ValidateRadius rejects any radius not listed in Radii.
func ValidateRadius(radius float64) error {
	for _, r := range Radii {
		if radius == r {
			return nil
		}
	}
	return fmt.Errorf("%w (got %v)", ErrInvalidRadius, radius)
}

// NextRadius returns the radius that follows r in Radii, wrapping around.
func NextRadius(r float64) float64 {
	for i, v := range Radii {
		if v == r {
			return Radii[(i+1)%len(Radii)]
		}
	}
	return Radii[0]
}

// BoundingBox returns the axis-aligned box center ± radius on each axis.
func BoundingBox(center geo.Latlong, radius float64) geo.LatlongBox {
	return geo.LatlongBox{
		SW: geo.Latlong{Lat: center.Lat - radius, Long: center.Long - radius},
		NE: geo.Latlong{Lat: center.Lat + radius, Long: center.Long + radius},
	}
}
