package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/unklstewy/skytrack/pkg/geocode"
	"github.com/unklstewy/skytrack/pkg/opensky"
)

// Sighting is one stored position of a flight.
type Sighting struct {
	FlightID    string    `json:"flight_id"`
	Callsign    string    `json:"callsign"`
	Country     string    `json:"country"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	AltitudeM   *float64  `json:"altitude_m,omitempty"`
	VelocityKmh *float64  `json:"velocity_kmh,omitempty"`
	HeadingDeg  *float64  `json:"heading_deg,omitempty"`
	Query       string    `json:"query"`
	SeenAt      time.Time `json:"seen_at"`
}

// SightingRepository handles database operations for sightings.
type SightingRepository struct {
	db *DB
}

// NewSightingRepository creates a new sighting repository.
func NewSightingRepository(db *DB) *SightingRepository {
	return &SightingRepository{db: db}
}

// RecordFlights stores every placeable flight of one fetch in a single
// transaction.
func (r *SightingRepository) RecordFlights(ctx context.Context, loc geocode.Location, flights []opensky.Flight, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO sightings (
			flight_id, callsign, country, latitude, longitude,
			altitude_m, velocity_kmh, heading_deg,
			search_query, center_lat, center_lon, seen_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	at = at.UTC()
	for _, f := range SightingsFrom(flights) {
		_, err := stmt.ExecContext(ctx,
			f.ID, f.Callsign, f.Country, f.Latitude, f.Longitude,
			nullFloat(f.AltitudeM), nullFloat(f.VelocityKmh), nullFloat(f.HeadingDeg),
			loc.Query, loc.Latitude, loc.Longitude, at,
		)
		if err != nil {
			return fmt.Errorf("failed to insert sighting %s: %w", f.ID, err)
		}
	}

	return tx.Commit()
}

// SightingsFrom returns the flights worth storing: placeable ones with a
// provider identifier. Index-synthesized IDs do not identify an aircraft
// across fetches.
func SightingsFrom(flights []opensky.Flight) []opensky.Flight {
	out := make([]opensky.Flight, 0, len(flights))
	for _, f := range flights {
		if f.HasPosition && !opensky.IsSynthesizedID(f.ID) {
			out = append(out, f)
		}
	}
	return out
}

// Track returns the stored positions of a flight since a time, oldest first.
func (r *SightingRepository) Track(ctx context.Context, flightID string, since time.Time) ([]Sighting, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT flight_id, callsign, country, latitude, longitude,
		        altitude_m, velocity_kmh, heading_deg, search_query, seen_at
		 FROM sightings
		 WHERE flight_id = $1 AND seen_at >= $2
		 ORDER BY seen_at ASC`,
		flightID, since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query track: %w", err)
	}
	defer rows.Close()

	var out []Sighting
	for rows.Next() {
		var s Sighting
		var alt, vel, hdg sql.NullFloat64
		if err := rows.Scan(&s.FlightID, &s.Callsign, &s.Country, &s.Latitude, &s.Longitude,
			&alt, &vel, &hdg, &s.Query, &s.SeenAt); err != nil {
			return nil, err
		}
		s.AltitudeM = floatOrNil(alt)
		s.VelocityKmh = floatOrNil(vel)
		s.HeadingDeg = floatOrNil(hdg)
		out = append(out, s)
	}

	return out, rows.Err()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatOrNil(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
