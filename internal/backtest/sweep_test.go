package backtest

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/factor-backtest/internal/datacache"
	"github.com/yourusername/factor-backtest/internal/ranking"
)

// A rises and carries the lower score, B falls.
func trendCache(t *testing.T) *datacache.Cache {
	return newCache(t,
		quote(1, "A", 100, 1), quote(1, "B", 100, 2),
		quote(2, "A", 110, 1), quote(2, "B", 90, 2),
		quote(3, "A", 120, 1), quote(3, "B", 80, 2),
	)
}

func TestSweepConfigs(t *testing.T) {
	catalog := []ranking.Factor{
		{ID: "close", Weight: -1},
		{ID: "ytm", Weight: 1},
	}
	base := scoreConfig(5, 50000)

	configs := SweepConfigs(catalog, base)

	require.Len(t, configs, 2)
	assert.Equal(t, "single_close", configs[0].StrategyName)
	assert.Equal(t, []string{"close"}, configs[0].Indicators)
	assert.Equal(t, []float64{-1}, configs[0].Weights)
	assert.Equal(t, "single_ytm", configs[1].StrategyName)
	assert.Equal(t, []float64{1}, configs[1].Weights)
	assert.Equal(t, ranking.BasicFilters(), configs[1].Filters)
	assert.Equal(t, 5, configs[1].TopN)
	assert.Equal(t, 50000.0, configs[1].InitialCapital)
	// base untouched
	assert.Equal(t, "low_score", base.StrategyName)
}

func TestRunSweep(t *testing.T) {
	log, _ := test.NewNullLogger()
	cache := trendCache(t)

	low := scoreConfig(1, 1000)
	high := scoreConfig(1, 1000)
	high.StrategyName = "high_score"
	high.Weights = []float64{1}
	broken := scoreConfig(1, 1000)
	broken.StrategyName = "broken"
	broken.Indicators = []string{"missing"}
	invalid := scoreConfig(0, 1000)
	invalid.StrategyName = "invalid"

	result, err := RunSweep(context.Background(), cache, []RunConfig{high, broken, low, invalid}, 2, log)
	require.NoError(t, err)

	require.Len(t, result.Entries, 2)
	assert.Equal(t, "low_score", result.Entries[0].Config.StrategyName)
	assert.Equal(t, "high_score", result.Entries[1].Config.StrategyName)
	assert.Greater(t, result.Entries[0].Analytics.AnnualizedReturn, 0.0)
	assert.Less(t, result.Entries[1].Analytics.AnnualizedReturn, 0.0)
	assert.Equal(t, RecommendationReject, result.Entries[1].Recommendation)

	require.Len(t, result.Failures, 2)
	names := []string{result.Failures[0].StrategyName, result.Failures[1].StrategyName}
	assert.ElementsMatch(t, []string{"broken", "invalid"}, names)

	stats := result.Stats()
	assert.Equal(t, 2, stats.Count)
	assert.Equal(t, "low_score", stats.Best)
	mean := (result.Entries[0].Analytics.AnnualizedReturn + result.Entries[1].Analytics.AnnualizedReturn) / 2
	assert.InDelta(t, mean, stats.Mean, 1e-9)
	assert.Greater(t, stats.StdDev, 0.0)
}

func TestRunSweepCancelled(t *testing.T) {
	log, _ := test.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := RunSweep(ctx, trendCache(t), []RunConfig{scoreConfig(1, 1000)}, 1, log)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, result)
	assert.Empty(t, result.Entries)

	_, err = RunSweep(context.Background(), nil, nil, 1, log)
	assert.Error(t, err)
}

func TestSweepStatsEmptyAndSingle(t *testing.T) {
	assert.Equal(t, SweepStats{}, (&SweepResult{}).Stats())

	single := &SweepResult{Entries: []SweepEntry{{
		Config:    RunConfig{StrategyName: "only"},
		Analytics: Analytics{AnnualizedReturn: 0.12},
	}}}
	stats := single.Stats()
	assert.Equal(t, 1, stats.Count)
	assert.Equal(t, 0.12, stats.Mean)
	assert.Equal(t, 0.12, stats.Median)
	assert.Equal(t, 0.0, stats.StdDev)
}

func TestWriteSweepCSV(t *testing.T) {
	result := &SweepResult{Entries: []SweepEntry{
		{
			Config:         RunConfig{StrategyName: "single_close", Indicators: []string{"close"}, Weights: []float64{-1}},
			Analytics:      Analytics{AnnualizedReturn: 0.25, TotalTrades: 12},
			CompositeScore: 0.7,
			Recommendation: RecommendationAccept,
		},
	}}
	path := filepath.Join(t.TempDir(), "nested", "sweep.csv")

	require.NoError(t, WriteSweepCSV(path, result))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 2)
	assert.Equal(t, "rank", rows[0][0])
	assert.Equal(t, []string{"1", "single_close", "close", "-1.00"}, rows[1][:4])
	assert.Equal(t, "12", rows[1][9])
}
