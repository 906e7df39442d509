// Package db records flight sightings in PostgreSQL so a flight's path
// can be read back after the in-memory map view is gone.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/unklstewy/skytrack/pkg/config"
)

//go:embed schema.sql
var schemaSQL embed.FS

// DB wraps a database connection with helper methods.
type DB struct {
	*sql.DB
	config config.DatabaseConfig
}

// Connect establishes a connection to the PostgreSQL database.
func Connect(cfg config.DatabaseConfig) (*DB, error) {
	return connectDSN(connString(cfg), cfg)
}

func connString(cfg config.DatabaseConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.Username,
		cfg.Password,
		cfg.Database,
		cfg.SSLMode,
	)
}

func connectDSN(dsn string, cfg config.DatabaseConfig) (*DB, error) {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: sqlDB, config: cfg}, nil
}

// InitSchema creates the schema if missing. Safe to call on every start.
func (db *DB) InitSchema(ctx context.Context) error {
	schemaBytes, err := schemaSQL.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}

	if _, err := db.ExecContext(ctx, string(schemaBytes)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

// CleanupOldData deletes sightings older than maxAge.
// Should be called periodically to prevent unbounded growth.
func (db *DB) CleanupOldData(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)

	res, err := db.ExecContext(ctx, `DELETE FROM sightings WHERE seen_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old sightings: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Stats summarizes the stored history.
type Stats struct {
	Sightings int64      `json:"sightings"`
	Flights   int64      `json:"flights"`
	Oldest    *time.Time `json:"oldest,omitempty"`
}

// GetStats returns database statistics.
func (db *DB) GetStats(ctx context.Context) (Stats, error) {
	var s Stats
	var oldest sql.NullTime
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT flight_id), MIN(seen_at) FROM sightings`,
	).Scan(&s.Sightings, &s.Flights, &oldest)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to query stats: %w", err)
	}
	if oldest.Valid {
		s.Oldest = &oldest.Time
	}
	return s, nil
}
