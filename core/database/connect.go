package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/m3rciful/topup/core/logger"
)

// Connect opens the database, waits until it answers, and configures the pool.
func Connect(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("db connect: driver %q is disabled", cfg.Driver)
	}
	start := time.Now()

	db, err := sqlx.Open(cfg.Driver, cfg.DataSource())
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if err := waitReady(ctx, db, time.Duration(cfg.WaitSeconds)*time.Second); err != nil {
		_ = db.Close()
		logger.Error(ctx, logger.CompDB, "db.connect",
			slog.String("status", "fail"),
			slog.String("driver", cfg.Driver),
			slog.String("db", cfg.Target()),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("db ping: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections)

	logger.Info(ctx, logger.CompDB, "db.connect",
		slog.String("status", "ok"),
		slog.String("driver", cfg.Driver),
		slog.String("db", cfg.Target()),
		slog.Int("pool_open", cfg.MaxConnections),
		slog.Duration("duration", logger.Took(start)),
	)
	return db, nil
}

// waitReady pings db until it answers or timeout elapses.
func waitReady(ctx context.Context, db *sqlx.DB, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout reached waiting for database: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}
