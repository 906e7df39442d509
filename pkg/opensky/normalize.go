package opensky

import (
	"fmt"
	"math"
	"strings"
)

// State vector indices as documented for /states/all.
const (
	idxICAO24        = 0
	idxCallsign      = 1
	idxOriginCountry = 2
	idxLongitude     = 5
	idxLatitude      = 6
	idxBaroAltitude  = 7
	idxOnGround      = 8
	idxVelocity      = 9
	idxTrueTrack     = 10
)

// msToKmh converts metres per second to kilometres per hour.
const msToKmh = 3.6

// synthesizedPrefix marks IDs made up from the record's array index.
const synthesizedPrefix = "flight-"

// IsSynthesizedID reports whether id was made up because the provider
// sent none. Such IDs are not stable across fetches.
func IsSynthesizedID(id string) bool {
	return strings.HasPrefix(id, synthesizedPrefix)
}

// Normalize converts raw state vectors to flights. Grounded aircraft are
// kept; use Airborne to drop them.
func Normalize(states [][]any) []Flight {
	flights := make([]Flight, 0, len(states))
	for i, raw := range states {
		flights = append(flights, NormalizeState(i, raw))
	}
	return flights
}

// NormalizeState converts one state vector. index is its position in the
// response and is used to synthesize an identifier when none is present.
func NormalizeState(index int, raw []any) Flight {
	f := Flight{
		ID:       fmt.Sprintf("%s%d", synthesizedPrefix, index),
		Callsign: NotAvailable,
		Country:  NotAvailable,
	}

	if id, ok := stringAt(raw, idxICAO24); ok && strings.TrimSpace(id) != "" {
		f.ID = strings.TrimSpace(id)
	}
	if cs, ok := stringAt(raw, idxCallsign); ok {
		if cs = strings.TrimSpace(cs); cs != "" {
			f.Callsign = cs
		}
	}
	if country, ok := stringAt(raw, idxOriginCountry); ok && country != "" {
		f.Country = country
	}

	lon := floatAt(raw, idxLongitude)
	lat := floatAt(raw, idxLatitude)
	if lon != nil && lat != nil {
		f.Longitude, f.Latitude = *lon, *lat
		f.HasPosition = true
	}

	f.AltitudeM = floatAt(raw, idxBaroAltitude)
	if v := floatAt(raw, idxVelocity); v != nil {
		kmh := *v * msToKmh
		f.VelocityKmh = &kmh
	}
	f.HeadingDeg = floatAt(raw, idxTrueTrack)

	f.Altitude = formatRounded(f.AltitudeM, " m")
	f.Velocity = formatRounded(f.VelocityKmh, " km/h")
	f.Heading = formatRounded(f.HeadingDeg, "°")

	if len(raw) > idxOnGround {
		if b, ok := raw[idxOnGround].(bool); ok {
			f.OnGround = b
		}
	}

	return f
}

// Airborne returns the flights that are not flagged on-ground.
func Airborne(flights []Flight) []Flight {
	out := make([]Flight, 0, len(flights))
	for _, f := range flights {
		if !f.OnGround {
			out = append(out, f)
		}
	}
	return out
}

func formatRounded(v *float64, suffix string) string {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return NotAvailable
	}
	return fmt.Sprintf("%d%s", int64(math.Round(*v)), suffix)
}

func stringAt(raw []any, i int) (string, bool) {
	if i >= len(raw) {
		return "", false
	}
	s, ok := raw[i].(string)
	return s, ok
}

// floatAt returns nil for missing, null or non-numeric entries.
func floatAt(raw []any, i int) *float64 {
	if i >= len(raw) {
		return nil
	}
	switch v := raw[i].(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	default:
		return nil
	}
}
