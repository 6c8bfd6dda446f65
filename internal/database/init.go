package database

import (
	"context"
	"fmt"

	"github.com/yourusername/factor-backtest/internal/config"
)

const schema = `
CREATE TABLE IF NOT EXISTS backtest_results (
	id                UUID PRIMARY KEY,
	strategy_name     TEXT NOT NULL,
	run_date          TIMESTAMPTZ NOT NULL,
	start_date        DATE NOT NULL,
	end_date          DATE NOT NULL,
	initial_capital   DOUBLE PRECISION NOT NULL,
	final_value       DOUBLE PRECISION NOT NULL,
	total_return      DOUBLE PRECISION NOT NULL,
	annualized_return DOUBLE PRECISION NOT NULL,
	sharpe_ratio      DOUBLE PRECISION NOT NULL,
	max_drawdown      DOUBLE PRECISION NOT NULL,
	total_trades      INTEGER NOT NULL,
	win_rate          DOUBLE PRECISION NOT NULL,
	trading_days      INTEGER NOT NULL,
	method            TEXT NOT NULL,
	config            JSONB NOT NULL,
	full_results      JSONB,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_backtest_results_strategy ON backtest_results (strategy_name, run_date DESC);
`

// Initialize creates a connection pool and makes sure the result table exists.
func Initialize(ctx context.Context, cfg *config.Config) (*DB, error) {
	db, err := NewDB(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureSchema creates the backtest_results table when missing.
func EnsureSchema(ctx context.Context, db *DB) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
