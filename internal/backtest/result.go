package backtest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/factor-backtest/internal/models"
)

// NewBacktestResult builds the persisted form of a finished run. full is
// stored as JSON alongside the headline metrics and may be nil.
func NewBacktestResult(id uuid.UUID, method string, a Analytics, cfg RunConfig, full interface{}) (*models.BacktestResult, error) {
	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run config: %w", err)
	}
	var fullJSON json.RawMessage
	if full != nil {
		if fullJSON, err = json.Marshal(full); err != nil {
			return nil, fmt.Errorf("failed to encode full results: %w", err)
		}
	}

	now := time.Now().UTC()
	return &models.BacktestResult{
		ID:               id,
		StrategyName:     a.StrategyName,
		RunDate:          now,
		StartDate:        a.StartDate,
		EndDate:          a.EndDate,
		InitialCapital:   a.InitialCapital,
		FinalValue:       a.EndingValue,
		TotalReturn:      a.TotalReturn,
		AnnualizedReturn: a.AnnualizedReturn,
		SharpeRatio:      a.SharpeRatio,
		MaxDrawdown:      a.MaxDrawdown,
		TotalTrades:      a.TotalTrades,
		WinRate:          a.WinRate,
		TradingDays:      a.TradingDays,
		Method:           method,
		Config:           configJSON,
		FullResults:      fullJSON,
		CreatedAt:        now,
	}, nil
}
