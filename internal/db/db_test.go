package db

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/unklstewy/skytrack/pkg/config"
	"github.com/unklstewy/skytrack/pkg/geocode"
	"github.com/unklstewy/skytrack/pkg/opensky"
)

// testDB connects to SKYTRACK_TEST_DSN or skips.
func testDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("SKYTRACK_TEST_DSN")
	if dsn == "" {
		t.Skip("SKYTRACK_TEST_DSN not set")
	}
	db, err := connectDSN(dsn, config.DatabaseConfig{MaxOpenConns: 2, MaxIdleConns: 1})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := db.InitSchema(context.Background()); err != nil {
		t.Fatalf("schema: %v", err)
	}
	if _, err := db.Exec(`TRUNCATE sightings`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestConnect tests database connection string construction.
func TestConnect(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		Username: "testuser",
		Password: "testpass",
		Database: "testdb",
		SSLMode:  "disable",
	}

	got := connString(cfg)
	for _, part := range []string{"host=localhost", "port=5432", "user=testuser", "password=testpass", "dbname=testdb", "sslmode=disable"} {
		if !strings.Contains(got, part) {
			t.Errorf("Expected %q in connection string %q", part, got)
		}
	}
}

func TestReconnectWithRetryGivesUp(t *testing.T) {
	cfg := config.DatabaseConfig{Host: "127.0.0.1", Port: 1, Username: "x", Database: "x", SSLMode: "disable"}

	start := time.Now()
	_, err := ReconnectWithRetry(context.Background(), cfg, 2, 10*time.Millisecond, nil)
	if err == nil {
		t.Fatal("Expected error for unreachable database")
	}
	if time.Since(start) > 15*time.Second {
		t.Error("Retry loop took too long")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ReconnectWithRetry(ctx, cfg, 0, time.Hour, nil); err == nil {
		t.Fatal("Expected context error")
	}
}

func TestHealthCheckNil(t *testing.T) {
	if HealthCheck(context.Background(), nil) {
		t.Error("nil database must not be healthy")
	}
}

func TestSightingsFrom(t *testing.T) {
	flights := []opensky.Flight{
		{ID: "a1b2c3", HasPosition: true},
		{ID: "flight-3", HasPosition: true},
		{ID: "d4e5f6", HasPosition: false},
	}
	got := SightingsFrom(flights)
	if len(got) != 1 || got[0].ID != "a1b2c3" {
		t.Errorf("Expected only a1b2c3, got %+v", got)
	}
}

func TestNullFloat(t *testing.T) {
	if nullFloat(nil).Valid {
		t.Error("nil must map to NULL")
	}
	v := 12.5
	n := nullFloat(&v)
	if !n.Valid || n.Float64 != 12.5 {
		t.Errorf("Unexpected %+v", n)
	}
	if p := floatOrNil(n); p == nil || *p != 12.5 {
		t.Errorf("Expected round trip to 12.5, got %v", p)
	}
}

// TestSightingRepository runs against a real database.
func TestSightingRepository(t *testing.T) {
	db := testDB(t)
	repo := NewSightingRepository(db)
	ctx := context.Background()

	alt := 3048.0
	loc := geocode.Location{Latitude: 40.64, Longitude: -73.78, Name: "JFK", Query: "JFK"}
	t0 := time.Now().Add(-time.Minute).UTC().Truncate(time.Second)

	err := repo.RecordFlights(ctx, loc, []opensky.Flight{
		{ID: "a1b2c3", Callsign: "DAL1", Country: "United States", Latitude: 40.7, Longitude: -73.9, HasPosition: true, AltitudeM: &alt},
		{ID: "flight-1", Callsign: "N/A", Country: "N/A", Latitude: 40.8, Longitude: -73.8, HasPosition: true},
	}, t0)
	if err != nil {
		t.Fatalf("RecordFlights: %v", err)
	}
	err = repo.RecordFlights(ctx, loc, []opensky.Flight{
		{ID: "a1b2c3", Callsign: "DAL1", Country: "United States", Latitude: 40.75, Longitude: -73.85, HasPosition: true},
	}, t0.Add(15*time.Second))
	if err != nil {
		t.Fatalf("RecordFlights: %v", err)
	}

	track, err := repo.Track(ctx, "a1b2c3", t0.Add(-time.Second))
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if len(track) != 2 {
		t.Fatalf("Expected 2 sightings, got %d", len(track))
	}
	if track[0].Latitude != 40.7 || track[1].Latitude != 40.75 {
		t.Errorf("Expected oldest first, got %+v", track)
	}
	if track[0].AltitudeM == nil || *track[0].AltitudeM != 3048 || track[1].AltitudeM != nil {
		t.Error("Expected nullable altitude to round-trip")
	}

	stats, err := db.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Sightings != 2 || stats.Flights != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}

	n, err := db.CleanupOldData(ctx, time.Nanosecond)
	if err != nil {
		t.Fatalf("CleanupOldData: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 rows deleted, got %d", n)
	}
}
