package db

import (
	"context"
	"log/slog"
	"time"

	"github.com/unklstewy/skytrack/pkg/config"
)

// ReconnectWithRetry connects with exponential backoff, for a database
// that may still be starting when the server comes up.
//
// Parameters:
//   - ctx: Cancels the wait between attempts
//   - cfg: Database configuration
//   - maxRetries: Maximum number of connection attempts (0 = until ctx is done)
//   - initialDelay: Initial wait time between attempts
//
// Returns: Connected database or the last error
func ReconnectWithRetry(ctx context.Context, cfg config.DatabaseConfig, maxRetries int, initialDelay time.Duration, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	delay := initialDelay
	attempt := 0

	for {
		attempt++
		logger.Info("database connection attempt", "attempt", attempt, "host", cfg.Host)

		db, err := Connect(cfg)
		if err == nil {
			return db, nil
		}

		if maxRetries > 0 && attempt >= maxRetries {
			logger.Error("database connection failed", "attempts", attempt, "error", err)
			return nil, err
		}

		logger.Warn("database connection failed, retrying", "error", err, "retry_in", delay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}

		// Exponential backoff with cap at 60 seconds
		delay *= 2
		if delay > 60*time.Second {
			delay = 60 * time.Second
		}
	}
}

// HealthCheck reports whether the database answers a trivial query.
func HealthCheck(ctx context.Context, db *DB) bool {
	if db == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		slog.Warn("database health check failed", "error", err)
		return false
	}

	return result == 1
}
