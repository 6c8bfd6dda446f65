package backtest

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/yourusername/factor-backtest/internal/models"
)

const (
	tradingDaysPerYear = 252
	annualRiskFreeRate = 0.03
	profitFactorCap    = 999
)

// dailyRiskFreeRate is the 3% annual rate compounded over 252 trading days.
var dailyRiskFreeRate = math.Pow(1+annualRiskFreeRate, 1.0/tradingDaysPerYear) - 1

// Analytics represents backtest performance metrics
type Analytics struct {
	StrategyName     string     `json:"strategy_name"`
	InitialCapital   float64    `json:"initial_capital"`
	EndingValue      float64    `json:"ending_value"`
	TotalReturn      float64    `json:"total_return"`
	AnnualizedReturn float64    `json:"annualized_return"`
	MaxDrawdown      float64    `json:"max_drawdown"`
	MaxDrawdownStart *time.Time `json:"max_drawdown_start"`
	MaxDrawdownEnd   *time.Time `json:"max_drawdown_end"`
	SharpeRatio      float64    `json:"sharpe_ratio"`
	SortinoRatio     float64    `json:"sortino_ratio"`
	CalmarRatio      float64    `json:"calmar_ratio"`
	Volatility       float64    `json:"volatility"`
	TotalTrades      int        `json:"total_trades"`
	SellTrades       int        `json:"sell_trades"`
	WinRate          float64    `json:"win_rate"`
	ProfitFactor     float64    `json:"profit_factor"`
	StartDate        time.Time  `json:"start_date"`
	EndDate          time.Time  `json:"end_date"`
	TradingDays      int        `json:"trading_days"`
	ExecutionTime    float64    `json:"execution_time"`
}

// CalculateAnalytics computes the summary of a completed run.
func CalculateAnalytics(state *BacktestState, cfg RunConfig, duration time.Duration) (Analytics, error) {
	if state == nil || len(state.Values()) == 0 {
		return Analytics{}, models.ErrNoBacktestData
	}

	values := state.Values()
	dates := state.Dates()
	n := len(values)
	returns := ReturnSeries(values, cfg.InitialCapital)
	finalReturn := returns[n-1]
	daily := DailyReturns(values)

	a := Analytics{
		StrategyName:     cfg.StrategyName,
		InitialCapital:   cfg.InitialCapital,
		EndingValue:      values[n-1],
		TotalReturn:      finalReturn,
		AnnualizedReturn: AnnualizedReturn(finalReturn, n),
		SharpeRatio:      SharpeRatio(daily),
		SortinoRatio:     SortinoRatio(daily),
		Volatility:       Volatility(daily),
		TotalTrades:      len(state.Trades()),
		SellTrades:       countSells(state.Trades()),
		WinRate:          WinRate(state.Trades()),
		ProfitFactor:     ProfitFactor(state.Trades()),
		StartDate:        dates[0],
		EndDate:          dates[n-1],
		TradingDays:      n,
		ExecutionTime:    duration.Seconds(),
	}

	mdd, peak, trough := MaxDrawdown(values)
	a.MaxDrawdown = mdd
	if peak >= 0 {
		start, end := dates[peak], dates[trough]
		a.MaxDrawdownStart = &start
		a.MaxDrawdownEnd = &end
	}
	if mdd > 0 {
		a.CalmarRatio = a.AnnualizedReturn / mdd
	}
	return a, nil
}

// ReturnSeries returns value[i]/initialCapital - 1.
func ReturnSeries(values []float64, initialCapital float64) []float64 {
	out := make([]float64, len(values))
	if initialCapital == 0 {
		return out
	}
	for i, v := range values {
		out[i] = v/initialCapital - 1
	}
	return out
}

// AnnualizedReturn scales a total return over days trading days to 252.
func AnnualizedReturn(totalReturn float64, days int) float64 {
	if days <= 0 {
		return 0
	}
	return math.Pow(1+totalReturn, float64(tradingDaysPerYear)/float64(days)) - 1
}

// MaxDrawdown scans values once, tracking the running peak. The first
// peak/trough pair reaching the maximum is kept. Indices are -1 when the
// series never falls below a prior peak.
func MaxDrawdown(values []float64) (magnitude float64, peakIdx, troughIdx int) {
	peakIdx, troughIdx = -1, -1
	if len(values) == 0 {
		return 0, peakIdx, troughIdx
	}

	peak, runningPeakIdx := values[0], 0
	for i, v := range values {
		if v > peak {
			peak, runningPeakIdx = v, i
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - v) / peak; dd > magnitude {
			magnitude, peakIdx, troughIdx = dd, runningPeakIdx, i
		}
	}
	return magnitude, peakIdx, troughIdx
}

// DailyReturns returns the simple change between consecutive values.
func DailyReturns(values []float64) []float64 {
	if len(values) < 2 {
		return []float64{}
	}
	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		prev := values[i-1]
		if prev == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, (values[i]-prev)/prev)
	}
	return returns
}

// SharpeRatio annualizes the excess daily return over the population
// standard deviation.
func SharpeRatio(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	mean, std := stat.PopMeanStdDev(returns, nil)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return (mean - dailyRiskFreeRate) / std * math.Sqrt(tradingDaysPerYear)
}

// SortinoRatio is SharpeRatio with only downside deviation in the denominator.
func SortinoRatio(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	downside := 0.0
	for _, r := range returns {
		if r < 0 {
			downside += r * r
		}
	}
	if downside == 0 {
		return 0
	}
	downside = math.Sqrt(downside / float64(len(returns)))
	return (stat.Mean(returns, nil) - dailyRiskFreeRate) / downside * math.Sqrt(tradingDaysPerYear)
}

// Volatility is the annualized population standard deviation of returns.
func Volatility(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	_, std := stat.PopMeanStdDev(returns, nil)
	return std * math.Sqrt(tradingDaysPerYear)
}

// WinRate is the share of sells that realized a positive profit.
func WinRate(trades []models.TradeRecord) float64 {
	sells, wins := 0, 0
	for _, t := range trades {
		if !t.IsSell() {
			continue
		}
		sells++
		if t.Profit != nil && *t.Profit > 0 {
			wins++
		}
	}
	if sells == 0 {
		return 0
	}
	return float64(wins) / float64(sells)
}

// ProfitFactor is gross realized profit over gross realized loss.
func ProfitFactor(trades []models.TradeRecord) float64 {
	grossProfit, grossLoss := 0.0, 0.0
	for _, t := range trades {
		if !t.IsSell() || t.Profit == nil {
			continue
		}
		if *t.Profit > 0 {
			grossProfit += *t.Profit
		} else {
			grossLoss -= *t.Profit
		}
	}
	if grossLoss == 0 {
		if grossProfit > 0 {
			return profitFactorCap
		}
		return 0
	}
	return grossProfit / grossLoss
}

func countSells(trades []models.TradeRecord) int {
	n := 0
	for _, t := range trades {
		if t.IsSell() {
			n++
		}
	}
	return n
}
