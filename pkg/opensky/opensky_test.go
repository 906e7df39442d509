package opensky

import (
	"errors"
	"math"
	"testing"

	"github.com/skypies/geo"
)

func floatPtr(f float64) *float64 {
	return &f
}

// TestBoundingBox checks center ± radius on both axes.
func TestBoundingBox(t *testing.T) {
	tests := []struct {
		name   string
		center geo.Latlong
		radius float64
	}{
		{"JFK 0.5", geo.Latlong{Lat: 40.64, Long: -73.78}, 0.5},
		{"London 1.0", geo.Latlong{Lat: 51.5, Long: -0.12}, 1.0},
		{"Sydney 1.5", geo.Latlong{Lat: -33.94, Long: 151.17}, 1.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			box := BoundingBox(tt.center, tt.radius)
			if !approx(box.SW.Lat, tt.center.Lat-tt.radius) || !approx(box.NE.Lat, tt.center.Lat+tt.radius) {
				t.Errorf("latitude bounds wrong: %+v", box)
			}
			if !approx(box.SW.Long, tt.center.Long-tt.radius) || !approx(box.NE.Long, tt.center.Long+tt.radius) {
				t.Errorf("longitude bounds wrong: %+v", box)
			}
			if !box.Contains(tt.center) {
				t.Error("box does not contain its center")
			}
		})
	}
}

func TestValidateRadius(t *testing.T) {
	for _, r := range []float64{0.5, 1.0, 1.5} {
		if err := ValidateRadius(r); err != nil {
			t.Errorf("ValidateRadius(%v) = %v, want nil", r, err)
		}
	}
	for _, r := range []float64{0, 0.25, 0.75, 2.0, -0.5} {
		if err := ValidateRadius(r); !errors.Is(err, ErrInvalidRadius) {
			t.Errorf("ValidateRadius(%v) = %v, want ErrInvalidRadius", r, err)
		}
	}
}

func TestNextRadius(t *testing.T) {
	if got := NextRadius(0.5); got != 1.0 {
		t.Errorf("NextRadius(0.5) = %v", got)
	}
	if got := NextRadius(1.5); got != 0.5 {
		t.Errorf("NextRadius(1.5) = %v, want wrap to 0.5", got)
	}
	if got := NextRadius(3); got != 0.5 {
		t.Errorf("NextRadius(3) = %v, want 0.5", got)
	}
}

// TestNormalizeState covers the per-field display rules.
func TestNormalizeState(t *testing.T) {
	t.Run("Complete record", func(t *testing.T) {
		raw := []any{"a1b2c3", "DAL123  ", "United States", nil, nil, -73.5, 40.9, 10668.4, false, 100.0, 89.6}
		f := NormalizeState(0, raw)

		if f.ID != "a1b2c3" {
			t.Errorf("Expected ID a1b2c3, got %s", f.ID)
		}
		if f.Callsign != "DAL123" {
			t.Errorf("Expected trimmed callsign DAL123, got %q", f.Callsign)
		}
		if f.Country != "United States" {
			t.Errorf("Expected country, got %s", f.Country)
		}
		if !f.HasPosition || f.Latitude != 40.9 || f.Longitude != -73.5 {
			t.Errorf("Expected position 40.9,-73.5, got %v,%v (%v)", f.Latitude, f.Longitude, f.HasPosition)
		}
		if f.Altitude != "10668 m" {
			t.Errorf("Expected altitude '10668 m', got %q", f.Altitude)
		}
		if f.Velocity != "360 km/h" {
			t.Errorf("Expected velocity '360 km/h', got %q", f.Velocity)
		}
		if f.Heading != "90°" {
			t.Errorf("Expected heading '90°', got %q", f.Heading)
		}
		if f.OnGround {
			t.Error("Expected airborne")
		}
	})

	t.Run("Missing fields", func(t *testing.T) {
		raw := []any{nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil}
		f := NormalizeState(7, raw)

		if f.ID != "flight-7" {
			t.Errorf("Expected synthesized ID flight-7, got %s", f.ID)
		}
		if f.Callsign != NotAvailable || f.Country != NotAvailable {
			t.Errorf("Expected N/A callsign and country, got %q/%q", f.Callsign, f.Country)
		}
		if f.Altitude != NotAvailable || f.Velocity != NotAvailable || f.Heading != NotAvailable {
			t.Errorf("Expected N/A numerics, got %q %q %q", f.Altitude, f.Velocity, f.Heading)
		}
		if f.HasPosition {
			t.Error("Expected no position")
		}
		if f.AltitudeM != nil || f.VelocityKmh != nil || f.HeadingDeg != nil {
			t.Error("Expected nil numeric values")
		}
	})

	t.Run("Blank callsign", func(t *testing.T) {
		f := NormalizeState(0, []any{"abc", "        "})
		if f.Callsign != NotAvailable {
			t.Errorf("Expected N/A for blank callsign, got %q", f.Callsign)
		}
	})

	t.Run("Short record", func(t *testing.T) {
		f := NormalizeState(3, []any{"abc"})
		if f.ID != "abc" || f.HasPosition || f.OnGround {
			t.Errorf("Unexpected flight from short record: %+v", f)
		}
	})

	t.Run("Wrong types", func(t *testing.T) {
		raw := []any{42.0, 17.0, true, nil, nil, "x", "y", "z", "true", "1", "2"}
		f := NormalizeState(2, raw)
		if f.ID != "flight-2" || f.Callsign != NotAvailable || f.HasPosition || f.OnGround {
			t.Errorf("Expected malformed values to be ignored, got %+v", f)
		}
	})
}

func TestVelocityConversion(t *testing.T) {
	tests := []struct {
		ms   float64
		want string
	}{
		{100, "360 km/h"},
		{0, "0 km/h"},
		{250.5, "902 km/h"},
		{0.1, "0 km/h"},
	}
	for _, tt := range tests {
		raw := []any{"id", "CS", "X", nil, nil, 0.0, 0.0, 0.0, false, tt.ms, 0.0}
		if got := NormalizeState(0, raw).Velocity; got != tt.want {
			t.Errorf("velocity %v m/s: got %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func TestAirborneDropsGrounded(t *testing.T) {
	states := [][]any{
		{"air1", "AAL1", "United States", nil, nil, -73.7, 40.6, 3000.0, false, 120.0, 45.0},
		{"gnd1", "JBU2", "United States", nil, nil, -73.78, 40.64, nil, true, 0.0, 0.0},
		{"air2", "BAW3", "United Kingdom", nil, nil, -73.9, 40.7, 9000.0, false, 220.0, 270.0},
	}

	all := Normalize(states)
	if len(all) != 3 {
		t.Fatalf("Normalize kept %d flights, want 3", len(all))
	}

	flights := Airborne(all)
	if len(flights) != 2 {
		t.Fatalf("Expected 2 airborne flights, got %d", len(flights))
	}
	for _, f := range flights {
		if f.OnGround || f.ID == "gnd1" {
			t.Errorf("Grounded flight leaked into result: %+v", f)
		}
	}
}

func TestFlightTrack(t *testing.T) {
	if (Flight{}).Track() != 0 {
		t.Error("Expected zero track when heading unknown")
	}
	f := Flight{HeadingDeg: floatPtr(271.5)}
	if f.Track() != 271.5 {
		t.Errorf("Expected 271.5, got %v", f.Track())
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestIsSynthesizedID(t *testing.T) {
	if !IsSynthesizedID(NormalizeState(4, nil).ID) {
		t.Error("Expected index-based ID to be synthesized")
	}
	if IsSynthesizedID("a1b2c3") {
		t.Error("Provider ICAO24 must not count as synthesized")
	}
}
