package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// BacktestResult represents a persisted backtest run
type BacktestResult struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	StrategyName     string          `db:"strategy_name" json:"strategy_name"`
	RunDate          time.Time       `db:"run_date" json:"run_date"`
	StartDate        time.Time       `db:"start_date" json:"start_date"`
	EndDate          time.Time       `db:"end_date" json:"end_date"`
	InitialCapital   float64         `db:"initial_capital" json:"initial_capital"`
	FinalValue       float64         `db:"final_value" json:"final_value"`
	TotalReturn      float64         `db:"total_return" json:"total_return"`
	AnnualizedReturn float64         `db:"annualized_return" json:"annualized_return"`
	SharpeRatio      float64         `db:"sharpe_ratio" json:"sharpe_ratio"`
	MaxDrawdown      float64         `db:"max_drawdown" json:"max_drawdown"`
	TotalTrades      int             `db:"total_trades" json:"total_trades"`
	WinRate          float64         `db:"win_rate" json:"win_rate"`
	TradingDays      int             `db:"trading_days" json:"trading_days"`
	Method           string          `db:"method" json:"method"`
	Config           json.RawMessage `db:"config" json:"config"`
	FullResults      json.RawMessage `db:"full_results" json:"full_results"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}
