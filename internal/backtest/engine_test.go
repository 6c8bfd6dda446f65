package backtest

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/factor-backtest/internal/datacache"
	"github.com/yourusername/factor-backtest/internal/dataset"
	"github.com/yourusername/factor-backtest/internal/metrics"
	"github.com/yourusername/factor-backtest/internal/models"
)

const tolerance = 1e-6

var testColumns = []string{"code", "name", "trade_date", "close", "score"}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

// quote builds a row; a negative price leaves close null.
func quote(d int, code string, price, score float64) dataset.Row {
	values := map[string]float64{"score": score}
	if price >= 0 {
		values["close"] = price
	}
	return dataset.Row{Code: code, Name: "bond " + code, Date: day(d), Values: values}
}

func newCache(t *testing.T, rows ...dataset.Row) *datacache.Cache {
	t.Helper()
	log, _ := test.NewNullLogger()
	frame, err := dataset.NewFrame(testColumns, rows)
	require.NoError(t, err)
	cache, err := datacache.New(frame, log)
	require.NoError(t, err)
	return cache
}

func scoreConfig(topN int, capital float64) RunConfig {
	return RunConfig{
		StrategyName:   "low_score",
		TopN:           topN,
		InitialCapital: capital,
		Indicators:     []string{"score"},
		Weights:        []float64{-1},
	}
}

func runEngine(t *testing.T, cache *datacache.Cache, cfg RunConfig) (*BacktestState, Analytics) {
	t.Helper()
	log, _ := test.NewNullLogger()
	engine, err := NewEngine(cache, cfg, log)
	require.NoError(t, err)
	state, analytics, err := engine.Run(context.Background())
	require.NoError(t, err)
	return state, analytics
}

func TestNewEngineValidation(t *testing.T) {
	cache := newCache(t, quote(1, "A", 100, 1))

	_, err := NewEngine(nil, scoreConfig(1, 1000), nil)
	assert.Error(t, err)

	_, err = NewEngine(cache, scoreConfig(0, 1000), nil)
	assert.True(t, errors.Is(err, models.ErrInvalidConfig))

	_, err = NewEngine(cache, scoreConfig(1, 0), nil)
	assert.True(t, errors.Is(err, models.ErrInvalidConfig))
}

func TestRunSingleInstrumentBuysFullSlot(t *testing.T) {
	cache := newCache(t, quote(1, "A", 100, 1))

	state, analytics := runEngine(t, cache, scoreConfig(1, 1000))

	require.Len(t, state.Trades(), 1)
	trade := state.Trades()[0]
	assert.Equal(t, models.TradeActionBuy, trade.Action)
	assert.Equal(t, int64(10), trade.Quantity)
	assert.Equal(t, 1000.0, trade.Amount)
	assert.Nil(t, trade.Profit)
	assert.Equal(t, 0.0, state.Cash())
	assert.Equal(t, []float64{1000}, state.Values())

	assert.Equal(t, 1, analytics.TradingDays)
	assert.Equal(t, 0.0, analytics.TotalReturn)
	assert.Equal(t, 0.0, analytics.SharpeRatio)
	assert.Equal(t, 0.0, analytics.MaxDrawdown)
	assert.Nil(t, analytics.MaxDrawdownStart)
	assert.Equal(t, "low_score", analytics.StrategyName)
}

func TestRunZeroPriceTakesNoAction(t *testing.T) {
	cache := newCache(t,
		quote(1, "A", 100, 1),
		quote(2, "A", -1, 1), // null close
		quote(2, "B", 0, 2),
	)

	state, _ := runEngine(t, cache, scoreConfig(2, 1000))

	// day 1 buys A with one slot; day 2 neither A nor B can trade
	require.Len(t, state.Trades(), 1)
	snaps := state.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, snaps[0].Cash, snaps[1].Cash)
	assert.Equal(t, snaps[0].Positions, snaps[1].Positions)
	assert.Equal(t, 500.0, snaps[1].Positions["A"].MarketValue)
	_, heldB := snaps[1].Positions["B"]
	assert.False(t, heldB)
}

func TestRunBuySkippedWhenCashShort(t *testing.T) {
	cache := newCache(t,
		quote(1, "A", 100, 1),
		quote(1, "B", 100, 2),
		quote(2, "A", 0, 3),
		quote(2, "B", 100, 2),
		quote(2, "C", 100, 1),
	)

	state, _ := runEngine(t, cache, scoreConfig(2, 1000))

	// C targets 5 x 100 but all cash sits in A (stale) and B (kept)
	require.Len(t, state.Trades(), 2)
	for _, trade := range state.Trades() {
		assert.Equal(t, day(1), trade.Date)
	}
	last := state.Snapshots()[1]
	assert.Equal(t, 0.0, last.Cash)
	assert.Len(t, last.Positions, 2)
	assert.NotContains(t, last.Positions, "C")
	assert.InDelta(t, 1000.0, last.TotalValue, tolerance)
}

// skippedBuys runs the engine at debug level and returns the skip entries.
func skippedBuys(t *testing.T, cache *datacache.Cache, cfg RunConfig) (*BacktestState, []*logrus.Entry) {
	t.Helper()
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	engine, err := NewEngine(cache, cfg, log)
	require.NoError(t, err)
	state, _, err := engine.Run(context.Background())
	require.NoError(t, err)

	var skips []*logrus.Entry
	for _, entry := range hook.AllEntries() {
		if entry.Message == "Buy skipped" {
			skips = append(skips, entry)
		}
	}
	return state, skips
}

func TestRunCashShortSkipIsLogged(t *testing.T) {
	cache := newCache(t,
		quote(1, "A", 100, 1),
		quote(1, "B", 100, 2),
		quote(2, "A", 0, 3),
		quote(2, "B", 100, 2),
		quote(2, "C", 100, 1),
	)
	before := testutil.ToFloat64(metrics.BuySkipsTotal.WithLabelValues(skipInsufficientCash))

	_, skips := skippedBuys(t, cache, scoreConfig(2, 1000))

	require.Len(t, skips, 1)
	assert.Equal(t, "C", skips[0].Data["code"])
	assert.Equal(t, skipInsufficientCash, skips[0].Data["reason"])
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.BuySkipsTotal.WithLabelValues(skipInsufficientCash)))
}

func TestRunStalePositionHoldsSlot(t *testing.T) {
	cache := newCache(t,
		quote(1, "A", 100, 1),
		quote(1, "B", 100, 2),
		quote(2, "A", -1, 3), // null close, cannot be sold
		quote(2, "B", 1000, 2),
		quote(2, "C", 100, 1),
	)
	before := testutil.ToFloat64(metrics.BuySkipsTotal.WithLabelValues(skipSlotLimit))

	state, skips := skippedBuys(t, cache, scoreConfig(2, 1000))

	// B trims 5 -> 2 at 1000, freeing 3000; C wants 27 x 100 but A and B fill both slots
	trades := state.Trades()
	require.Len(t, trades, 3)
	assert.Equal(t, models.TradeActionSell, trades[2].Action)
	assert.Equal(t, "B", trades[2].Code)
	assert.Equal(t, int64(3), trades[2].Quantity)

	last := state.Latest()
	assert.Len(t, last.Positions, 2)
	assert.NotContains(t, last.Positions, "C")
	assert.InDelta(t, 3000.0, last.Cash, tolerance)

	require.Len(t, skips, 1)
	assert.Equal(t, "C", skips[0].Data["code"])
	assert.Equal(t, skipSlotLimit, skips[0].Data["reason"])
	assert.Equal(t, int64(27), skips[0].Data["quantity"])
	assert.InDelta(t, 3000.0, skips[0].Data["cash"], tolerance)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.BuySkipsTotal.WithLabelValues(skipSlotLimit)))
}

func TestRunFullRotation(t *testing.T) {
	cache := newCache(t,
		quote(1, "A", 100, 1),
		quote(1, "B", 50, 2),
		quote(2, "A", 110, 2),
		quote(2, "B", 50, 1),
	)

	state, analytics := runEngine(t, cache, scoreConfig(1, 1000))

	trades := state.Trades()
	require.Len(t, trades, 3)
	sell := trades[1]
	assert.Equal(t, models.TradeActionSell, sell.Action)
	assert.Equal(t, "A", sell.Code)
	assert.Equal(t, int64(10), sell.Quantity)
	require.NotNil(t, sell.Profit)
	assert.InDelta(t, 100.0, *sell.Profit, tolerance)
	assert.InDelta(t, 0.1, *sell.ProfitRate, tolerance)

	buy := trades[2]
	assert.Equal(t, "B", buy.Code)
	assert.Equal(t, int64(22), buy.Quantity)

	latest := state.Latest()
	assert.NotContains(t, latest.Positions, "A")
	assert.Equal(t, int64(22), latest.Positions["B"].Quantity)
	assert.Equal(t, day(2), latest.Timestamp)
	assert.InDelta(t, 1100.0, latest.TotalAssets, tolerance)

	assert.Equal(t, []float64{1000, 1100}, state.Values())
	assert.InDelta(t, 0.1, analytics.TotalReturn, tolerance)
	assert.Equal(t, 1.0, analytics.WinRate)
	assert.Equal(t, 1, analytics.SellTrades)
}

func TestRunPartialSellKeepsAverageCost(t *testing.T) {
	cache := newCache(t,
		quote(1, "A", 100, 1),
		quote(2, "A", 200, 1),
		quote(2, "B", 100, 2),
	)

	state, _ := runEngine(t, cache, scoreConfig(2, 1000))

	trades := state.Trades()
	require.Len(t, trades, 3)
	assert.Equal(t, int64(5), trades[0].Quantity)

	sell := trades[1]
	assert.Equal(t, models.TradeActionSell, sell.Action)
	assert.Equal(t, int64(2), sell.Quantity)
	assert.InDelta(t, 200.0, *sell.Profit, tolerance)
	assert.InDelta(t, 1.0, *sell.ProfitRate, tolerance)

	assert.Equal(t, "B", trades[2].Code)
	assert.Equal(t, int64(7), trades[2].Quantity)

	positions := state.Positions()
	assert.Equal(t, int64(3), positions["A"].Quantity)
	assert.InDelta(t, 300.0, positions["A"].Cost, tolerance)
	assert.InDelta(t, 100.0, positions["A"].AverageCost(), tolerance)
	assert.InDelta(t, 200.0, state.Cash(), tolerance)
	assert.InDelta(t, 1500.0, state.TotalValue(), tolerance)
}

func TestRunDateRange(t *testing.T) {
	cache := newCache(t,
		quote(1, "A", 100, 1),
		quote(2, "A", 101, 1),
		quote(3, "A", 102, 1),
	)
	cfg := scoreConfig(1, 1000)
	cfg.StartDate = day(2)
	cfg.EndDate = day(3)

	state, analytics := runEngine(t, cache, cfg)
	assert.Equal(t, []time.Time{day(2), day(3)}, state.Dates())
	assert.Equal(t, day(2), analytics.StartDate)
	assert.Equal(t, day(3), analytics.EndDate)

	cfg.StartDate = day(10)
	cfg.EndDate = day(12)
	engine, err := NewEngine(cache, cfg, nil)
	require.NoError(t, err)
	_, _, err = engine.Run(context.Background())
	assert.True(t, errors.Is(err, models.ErrDataNotFound))
}

func TestRunMissingIndicatorFailsBeforeSimulation(t *testing.T) {
	cache := newCache(t, quote(1, "A", 100, 1))
	cfg := scoreConfig(1, 1000)
	cfg.Indicators = []string{"ytm"}

	engine, err := NewEngine(cache, cfg, nil)
	require.NoError(t, err)
	state, _, err := engine.Run(context.Background())
	assert.True(t, errors.Is(err, models.ErrMissingColumn))
	assert.Nil(t, state)
}

func TestRunCancelledKeepsState(t *testing.T) {
	cache := newCache(t, quote(1, "A", 100, 1), quote(2, "A", 100, 1))
	engine, err := NewEngine(cache, scoreConfig(1, 1000), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	state, _, err := engine.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, state)
	assert.Empty(t, state.Snapshots())
	assert.Equal(t, 1000.0, state.Cash())
}

// invariantRows builds a month of quotes for six codes with some missing prices.
func invariantRows() []dataset.Row {
	codes := []string{"A", "B", "C", "D", "E", "F"}
	var rows []dataset.Row
	for d := 1; d <= 28; d++ {
		for i, code := range codes {
			price := 80 + float64((i*7+d*13)%41)
			if (i+d)%11 == 0 {
				price = 0
			}
			rows = append(rows, quote(d, code, price, float64((i*5+d*3)%7)))
		}
	}
	return rows
}

func TestRunInvariants(t *testing.T) {
	cache := newCache(t, invariantRows()...)
	cfg := scoreConfig(3, 100000)

	state, analytics := runEngine(t, cache, cfg)
	require.Len(t, state.Snapshots(), 28)

	for _, snap := range state.Snapshots() {
		assert.InDelta(t, snap.TotalValue, snap.Cash+snap.PositionsValue(), tolerance, "value identity on %s", snap.Date)
		assert.LessOrEqual(t, len(snap.Positions), cfg.TopN, "position count on %s", snap.Date)
		assert.GreaterOrEqual(t, snap.Cash, 0.0)
		for code, pos := range snap.Positions {
			assert.Greater(t, pos.Quantity, int64(0), "empty position %s kept on %s", code, snap.Date)
		}
	}

	buys, sells := 0.0, 0.0
	for _, trade := range state.Trades() {
		if trade.IsSell() {
			sells += trade.Amount
		} else {
			buys += trade.Amount
		}
	}
	assert.InDelta(t, cfg.InitialCapital-state.Cash(), buys-sells, 1e-4)

	assert.Equal(t, len(state.Trades()), analytics.TotalTrades)
	assert.InDelta(t, state.Values()[27], analytics.EndingValue, tolerance)
	assert.False(t, math.IsNaN(analytics.SharpeRatio))

	report := state.DailyReport()
	require.Len(t, report, 28)
	assert.InDelta(t, report[27].TotalValue, report[27].Cash+report[27].PositionsValue, tolerance)
}

func TestRunDeterministic(t *testing.T) {
	cache := newCache(t, invariantRows()...)

	first, a1 := runEngine(t, cache, scoreConfig(3, 100000))
	second, a2 := runEngine(t, cache, scoreConfig(3, 100000))

	assert.Equal(t, first.Trades(), second.Trades())
	assert.Equal(t, first.Values(), second.Values())
	a1.ExecutionTime, a2.ExecutionTime = 0, 0
	assert.Equal(t, a1, a2)
}

func TestStateBuyRefusesPartialFill(t *testing.T) {
	state := NewBacktestState(1000, 1)

	_, ok := state.buy(day(1), "A", "bond A", 11, 100)
	assert.False(t, ok)
	assert.Equal(t, 1000.0, state.Cash())
	assert.Empty(t, state.Positions())
	assert.Empty(t, state.Trades())

	trade, ok := state.buy(day(1), "A", "bond A", 10, 100)
	require.True(t, ok)
	assert.Equal(t, 1000.0, trade.Amount)
	assert.Equal(t, 0.0, state.Cash())
}
