package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
)

// startupRetry bounds how long serve and migrate wait for Postgres to accept
// connections.
type startupRetry struct {
	pingTimeout time.Duration
	maxWait     time.Duration
	firstDelay  time.Duration
	maxDelay    time.Duration
}

var defaultStartupRetry = startupRetry{
	pingTimeout: 5 * time.Second,
	maxWait:     30 * time.Second,
	firstDelay:  500 * time.Millisecond,
	maxDelay:    5 * time.Second,
}

type pinger interface {
	PingContext(ctx context.Context) error
}

func openDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := waitForDatabase(ctx, db, defaultStartupRetry); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// waitForDatabase pings db with doubling delays until it answers, ctx ends or
// r.maxWait elapses.
func waitForDatabase(ctx context.Context, db pinger, r startupRetry) error {
	ctx, cancel := context.WithTimeout(ctx, r.maxWait)
	defer cancel()

	delay := r.firstDelay
	for attempt := 1; ; attempt++ {
		pingCtx, cancelPing := context.WithTimeout(ctx, r.pingTimeout)
		err := db.PingContext(pingCtx)
		cancelPing()
		if err == nil {
			if attempt > 1 {
				log.Info().Int("attempts", attempt).Msg("database ready")
			}
			return nil
		}

		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("database not ready")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("ping database after %d attempts: %w", attempt, err)
		case <-timer.C:
		}
		delay = min(delay*2, r.maxDelay)
	}
}
