package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/factor-backtest/internal/database"
	"github.com/yourusername/factor-backtest/internal/models"
)

func testResult(name string, runDate time.Time) *models.BacktestResult {
	return &models.BacktestResult{
		ID:               uuid.New(),
		StrategyName:     name,
		RunDate:          runDate,
		StartDate:        time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC),
		EndDate:          time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC),
		InitialCapital:   1000000,
		FinalValue:       1080000,
		TotalReturn:      0.08,
		AnnualizedReturn: 0.17,
		SharpeRatio:      1.2,
		MaxDrawdown:      0.05,
		TotalTrades:      240,
		WinRate:          0.55,
		TradingDays:      121,
		Method:           "single",
		Config:           json.RawMessage(`{"top_n":10}`),
		CreatedAt:        runDate,
	}
}

func TestNewRepositoriesRequiresDB(t *testing.T) {
	_, err := NewRepositories(nil)
	assert.Error(t, err)
}

func TestBacktestResultRepository(t *testing.T) {
	db := database.SetupTestDB(t)
	defer database.TeardownTestDB(t, db)

	repos, err := NewRepositories(db)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Microsecond)
	older := testResult("test_double_low", now.Add(-time.Hour))
	newer := testResult("test_double_low", now)
	other := testResult("test_low_price", now.Add(-time.Minute))
	require.NoError(t, repos.BacktestResult.SaveResult(ctx, older))
	require.NoError(t, repos.BacktestResult.SaveResults(ctx, []*models.BacktestResult{newer, other}))

	// a duplicate id rolls back the whole batch
	fresh := testResult("test_rollback", now)
	err = repos.BacktestResult.SaveResults(ctx, []*models.BacktestResult{fresh, older})
	require.Error(t, err)
	_, err = repos.BacktestResult.GetByID(ctx, fresh.ID)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	got, err := repos.BacktestResult.GetByID(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, newer.StrategyName, got.StrategyName)
	assert.Equal(t, newer.TotalTrades, got.TotalTrades)
	assert.JSONEq(t, `{"top_n":10}`, string(got.Config))

	byStrategy, err := repos.BacktestResult.GetByStrategy(ctx, "test_double_low", 10)
	require.NoError(t, err)
	require.Len(t, byStrategy, 2)
	assert.Equal(t, newer.ID, byStrategy[0].ID)

	latest, err := repos.BacktestResult.GetLatest(ctx, 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)

	_, err = repos.BacktestResult.GetByID(ctx, uuid.New())
	assert.True(t, errors.Is(err, models.ErrNotFound))
}
