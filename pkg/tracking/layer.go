// Package tracking keeps a map view's aircraft markers and accumulated
// flight paths in step with the latest fetched flights, and drives the
// optional device-location overlay.
//
// The package owns marker state as a registry keyed by flight ID. Drawing
// is delegated to a MarkerLayer so the same reconciliation runs behind
// the terminal radar, the console canvas and the browser map.
package tracking

import (
	"math"

	"github.com/skypies/geo"

	"github.com/unklstewy/skytrack/pkg/opensky"
)

// Popup is the information attached to a marker when it is created.
type Popup struct {
	Callsign string `json:"callsign"`
	Country  string `json:"country"`
	Altitude string `json:"altitude"`
	Velocity string `json:"velocity"`
	Heading  string `json:"heading"`
}

// PopupFor builds the popup text for a flight.
func PopupFor(f opensky.Flight) Popup {
	return Popup{
		Callsign: f.Callsign,
		Country:  f.Country,
		Altitude: f.Altitude,
		Velocity: f.Velocity,
		Heading:  f.Heading,
	}
}

// MarkerLayer draws aircraft markers and path overlays.
// Headings are degrees clockwise from north in [0, 360).
type MarkerLayer interface {
	AddMarker(id string, pos geo.Latlong, heading float64, popup Popup)
	MoveMarker(id string, pos geo.Latlong, heading float64)
	RemoveMarker(id string)

	// AddPath and UpdatePath receive a copy of the track
	AddPath(id string, points []geo.Latlong)
	UpdatePath(id string, points []geo.Latlong)
	RemovePath(id string)
}

// UserPosition is the device location shown by the user overlay.
type UserPosition struct {
	Position  geo.Latlong
	AccuracyM float64

	// Heading is valid only when HasHeading is set
	Heading    float64
	HasHeading bool
}

// UserLayer draws the device marker and its accuracy circle.
type UserLayer interface {
	SetUserLocation(p UserPosition)
	ClearUserLocation()
}

// NormalizeHeading maps any angle in degrees into [0, 360).
func NormalizeHeading(deg float64) float64 {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0
	}
	h := math.Mod(deg, 360)
	if h < 0 {
		h += 360
	}
	return h
}
