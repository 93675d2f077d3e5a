package dbpool

import (
	"context"
	"fmt"
	"time"

	"github.com/bazaar-mp/project/internal/platform/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

func New(ctx context.Context, databaseURL string, settings config.DB) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	minConns, maxConns := settings.MinConns, settings.MaxConns
	if minConns < 0 {
		minConns = 0
	}
	if maxConns <= 0 {
		maxConns = 20
	}
	if minConns > maxConns {
		minConns = maxConns
	}

	cfg.MinConns = int32(minConns)
	cfg.MaxConns = int32(maxConns)
	cfg.MaxConnLifetime = positive(settings.MaxConnLifetime, 30*time.Minute)
	cfg.MaxConnIdleTime = positive(settings.MaxConnIdleTime, 5*time.Minute)
	cfg.HealthCheckPeriod = positive(settings.HealthCheckPeriod, 30*time.Second)

	return pgxpool.NewWithConfig(ctx, cfg)
}

// NewWithRetry waits for the database to accept connections.
func NewWithRetry(ctx context.Context, databaseURL string, settings config.DB, timeout time.Duration) (*pgxpool.Pool, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		pool, err := New(ctx, databaseURL, settings)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return nil, fmt.Errorf("connect postgres timeout after %s: %w", timeout, lastErr)
}

func positive(v, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return v
}
