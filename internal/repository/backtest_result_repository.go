package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/yourusername/factor-backtest/internal/database"
	"github.com/yourusername/factor-backtest/internal/models"
)

const (
	errScanBacktestResult = "failed to scan backtest result: %w"

	backtestResultColumns = `id, strategy_name, run_date, start_date, end_date, initial_capital, final_value,
		total_return, annualized_return, sharpe_ratio, max_drawdown, total_trades, win_rate,
		trading_days, method, config, full_results, created_at`

	insertBacktestResult = `INSERT INTO backtest_results (` + backtestResultColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`
)

// PostgresBacktestResultRepository implements BacktestResultRepository for PostgreSQL
type PostgresBacktestResultRepository struct {
	db *database.DB
}

// NewPostgresBacktestResultRepository creates a new backtest result repository
func NewPostgresBacktestResultRepository(db *database.DB) BacktestResultRepository {
	return &PostgresBacktestResultRepository{db: db}
}

// SaveResult inserts a backtest result
func (r *PostgresBacktestResultRepository) SaveResult(ctx context.Context, result *models.BacktestResult) error {
	if _, err := r.db.Exec(ctx, insertBacktestResult, insertArgs(result)...); err != nil {
		return fmt.Errorf("failed to save backtest result: %w", err)
	}
	return nil
}

// SaveResults inserts every result in one transaction; none are kept if
// any insert fails.
func (r *PostgresBacktestResultRepository) SaveResults(ctx context.Context, results []*models.BacktestResult) error {
	if len(results) == 0 {
		return nil
	}
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		for _, result := range results {
			if _, err := tx.Exec(ctx, insertBacktestResult, insertArgs(result)...); err != nil {
				return fmt.Errorf("failed to save backtest result %s: %w", result.StrategyName, err)
			}
		}
		return nil
	})
}

func insertArgs(result *models.BacktestResult) []interface{} {
	return []interface{}{
		result.ID, result.StrategyName, result.RunDate, result.StartDate, result.EndDate,
		result.InitialCapital, result.FinalValue, result.TotalReturn, result.AnnualizedReturn,
		result.SharpeRatio, result.MaxDrawdown, result.TotalTrades, result.WinRate,
		result.TradingDays, result.Method, result.Config, result.FullResults, result.CreatedAt,
	}
}

// GetByID retrieves one result
func (r *PostgresBacktestResultRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.BacktestResult, error) {
	query := `SELECT ` + backtestResultColumns + ` FROM backtest_results WHERE id = $1`
	result, err := scanBacktestResult(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf(errScanBacktestResult, err)
	}
	return result, nil
}

// GetByStrategy retrieves the newest results of a strategy
func (r *PostgresBacktestResultRepository) GetByStrategy(ctx context.Context, strategyName string, limit int) ([]*models.BacktestResult, error) {
	query := `SELECT ` + backtestResultColumns + `
		FROM backtest_results WHERE strategy_name = $1 ORDER BY run_date DESC LIMIT $2`
	rows, err := r.db.Query(ctx, query, strategyName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtest results: %w", err)
	}
	return collectBacktestResults(rows)
}

// GetLatest retrieves latest backtest results
func (r *PostgresBacktestResultRepository) GetLatest(ctx context.Context, limit int) ([]*models.BacktestResult, error) {
	query := `SELECT ` + backtestResultColumns + ` FROM backtest_results ORDER BY run_date DESC LIMIT $1`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest backtest results: %w", err)
	}
	return collectBacktestResults(rows)
}

func collectBacktestResults(rows pgx.Rows) ([]*models.BacktestResult, error) {
	defer rows.Close()

	var results []*models.BacktestResult
	for rows.Next() {
		result, err := scanBacktestResult(rows)
		if err != nil {
			return nil, fmt.Errorf(errScanBacktestResult, err)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

func scanBacktestResult(row pgx.Row) (*models.BacktestResult, error) {
	result := &models.BacktestResult{}
	err := row.Scan(
		&result.ID, &result.StrategyName, &result.RunDate, &result.StartDate, &result.EndDate,
		&result.InitialCapital, &result.FinalValue, &result.TotalReturn, &result.AnnualizedReturn,
		&result.SharpeRatio, &result.MaxDrawdown, &result.TotalTrades, &result.WinRate,
		&result.TradingDays, &result.Method, &result.Config, &result.FullResults, &result.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}
