package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/yourusername/factor-backtest/internal/models"
)

// BacktestResultRepository defines backtest result persistence
type BacktestResultRepository interface {
	SaveResult(ctx context.Context, result *models.BacktestResult) error
	SaveResults(ctx context.Context, results []*models.BacktestResult) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.BacktestResult, error)
	GetByStrategy(ctx context.Context, strategyName string, limit int) ([]*models.BacktestResult, error)
	GetLatest(ctx context.Context, limit int) ([]*models.BacktestResult, error)
}
