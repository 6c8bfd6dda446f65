package backtest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/factor-backtest/internal/datacache"
	"github.com/yourusername/factor-backtest/internal/logger"
	"github.com/yourusername/factor-backtest/internal/metrics"
	"github.com/yourusername/factor-backtest/internal/models"
	"github.com/yourusername/factor-backtest/internal/ranking"
)

// Run methods, used as the metrics "method" label.
const (
	MethodSingle      = "single"
	MethodSweep       = "sweep"
	MethodWalkForward = "walk_forward"
)

// Engine simulates one factor strategy over a shared, read-only cache.
type Engine struct {
	cache  *datacache.Cache
	config RunConfig
	runID  string
	method string
	logger *logrus.Logger
	log    *logger.BacktestLogger
}

type target struct {
	code     string
	name     string
	quantity int64
	price    float64
}

// NewEngine creates a new backtesting engine
func NewEngine(cache *datacache.Cache, cfg RunConfig, log *logrus.Logger) (*Engine, error) {
	if cache == nil {
		return nil, fmt.Errorf("data cache is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log = logger.OrDefault(log)
	runID := uuid.NewString()

	return &Engine{
		cache:  cache,
		config: cfg,
		runID:  runID,
		method: MethodSingle,
		logger: log,
		log:    logger.NewBacktestLogger(log).WithRun(runID, cfg.StrategyName),
	}, nil
}

// WithMethod labels the engine's metrics with a run method.
func (e *Engine) WithMethod(method string) *Engine {
	e.method = method
	return e
}

// Config returns the run configuration
func (e *Engine) Config() RunConfig {
	return e.config
}

// RunID returns the identifier attached to this engine's logs.
func (e *Engine) RunID() string {
	return e.runID
}

// Run ranks the whole range once, then rebalances day by day. On error or
// cancellation the returned state holds every day processed so far.
func (e *Engine) Run(ctx context.Context) (*BacktestState, Analytics, error) {
	started := time.Now()

	days := e.cache.TradingDays(e.config.StartDate, e.config.EndDate)
	if len(days) == 0 {
		metrics.RecordBacktestRun(e.method, "failure")
		return nil, Analytics{}, fmt.Errorf("%w: no trading days between %s and %s",
			models.ErrDataNotFound, models.FormatDate(e.config.StartDate), models.FormatDate(e.config.EndDate))
	}
	e.log.LogRunStarted(days[0], days[len(days)-1], len(days), e.config.TopN, e.config.InitialCapital, e.config.Indicators)

	rankStarted := time.Now()
	selections, err := ranking.Rank(e.cache.Frame(), e.config.Criteria())
	if err != nil {
		metrics.RecordBacktestRun(e.method, "failure")
		return nil, Analytics{}, fmt.Errorf("ranking failed: %w", err)
	}
	rankDuration := time.Since(rankStarted)
	metrics.RecordRankingDuration(rankDuration.Seconds())
	e.log.LogRankingCompleted(len(selections.Days()), selections.Len(), float64(rankDuration.Microseconds())/1000)

	state := NewBacktestState(e.config.InitialCapital, len(days))
	for i, day := range days {
		if err := ctx.Err(); err != nil {
			e.log.LogRunAborted(day, i, err)
			metrics.RecordBacktestRun(e.method, "failure")
			return state, Analytics{}, fmt.Errorf("backtest aborted at %s: %w", models.FormatDate(day), err)
		}
		e.rebalance(day, selections.For(day), state)
	}

	duration := time.Since(started)
	analytics, err := CalculateAnalytics(state, e.config, duration)
	if err != nil {
		metrics.RecordBacktestRun(e.method, "failure")
		return state, Analytics{}, err
	}

	metrics.RecordBacktestRun(e.method, "success")
	metrics.RecordBacktestDuration(e.method, duration.Seconds())
	metrics.RecordAnnualizedReturn(e.method, analytics.AnnualizedReturn)
	e.log.LogRunCompleted(analytics.EndingValue, analytics.TotalReturn, analytics.MaxDrawdown,
		analytics.SharpeRatio, analytics.TotalTrades, duration)

	return state, analytics, nil
}

// rebalance runs one trading day: mark to market, size targets, sell, buy,
// snapshot.
func (e *Engine) rebalance(day time.Time, candidates []ranking.Candidate, state *BacktestState) {
	prices := e.cache.DailyPrices(day)
	state.markToMarket(prices)

	// the divisor is the configured top_n even when fewer candidates exist
	slot := state.TotalValue() / float64(e.config.TopN)
	targets := make([]target, 0, len(candidates))
	targetQty := make(map[string]int64, len(candidates))
	for _, c := range candidates {
		price := prices[c.Code]
		if price <= 0 {
			continue
		}
		qty := int64(math.Floor(slot / price))
		if qty <= 0 {
			continue
		}
		targets = append(targets, target{code: c.Code, name: c.Name, quantity: qty, price: price})
		targetQty[c.Code] = qty
	}

	for _, code := range heldCodes(state) {
		price := prices[code]
		if price <= 0 {
			continue
		}
		held := state.positions[code].Quantity
		want, ok := targetQty[code]
		switch {
		case !ok:
			e.recordTrade(state.sell(day, code, held, price))
		case want < held:
			e.recordTrade(state.sell(day, code, held-want, price))
		}
	}

	for _, t := range targets {
		var held int64
		pos, isHeld := state.positions[t.code]
		if isHeld {
			held = pos.Quantity
		}
		need := t.quantity - held
		if need <= 0 {
			continue
		}
		amount := float64(need) * t.price
		if state.cash < amount {
			e.skipBuy(day, t.code, skipInsufficientCash, need, amount, state.cash)
			continue
		}
		// positions carried over without a price still occupy a slot
		if !isHeld && len(state.positions) >= e.config.TopN {
			e.skipBuy(day, t.code, skipSlotLimit, need, amount, state.cash)
			continue
		}
		trade, ok := state.buy(day, t.code, t.name, need, t.price)
		if !ok {
			e.skipBuy(day, t.code, skipInsufficientCash, need, amount, state.cash)
			continue
		}
		e.recordTrade(trade)
	}

	state.recordSnapshot(day)
}

const (
	skipInsufficientCash = "insufficient_cash"
	skipSlotLimit        = "slot_limit"
)

func (e *Engine) skipBuy(day time.Time, code, reason string, quantity int64, amount, cash float64) {
	metrics.RecordBuySkip(reason)
	e.log.LogBuySkipped(day, code, reason, quantity, amount, cash)
}

func (e *Engine) recordTrade(trade models.TradeRecord) {
	metrics.RecordTrade(string(trade.Action))
	e.log.LogTrade(trade.Date, trade.Code, string(trade.Action), trade.Quantity, trade.Price, trade.Amount)
}

func heldCodes(state *BacktestState) []string {
	codes := make([]string, 0, len(state.positions))
	for code := range state.positions {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
