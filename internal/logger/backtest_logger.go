// Package logger provides backtest-specific logging.
package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

const dateFormat = "2006-01-02"

// BacktestLogger provides dedicated logging for simulation runs.
type BacktestLogger struct {
	*logrus.Entry
}

// NewBacktestLogger creates a new backtest logger.
func NewBacktestLogger(baseLogger *logrus.Logger) *BacktestLogger {
	return &BacktestLogger{
		Entry: baseLogger.WithField("component", "backtest"),
	}
}

// WithRun scopes the logger to a single run.
func (bl *BacktestLogger) WithRun(runID, strategyName string) *BacktestLogger {
	return &BacktestLogger{
		Entry: bl.WithFields(logrus.Fields{
			"run_id":        runID,
			"strategy_name": strategyName,
		}),
	}
}

// LogRunStarted logs the start of a simulation run.
func (bl *BacktestLogger) LogRunStarted(start, end time.Time, tradingDays, topN int, initialCapital float64, indicators []string) {
	bl.WithFields(logrus.Fields{
		"start_date":      start.Format(dateFormat),
		"end_date":        end.Format(dateFormat),
		"trading_days":    tradingDays,
		"top_n":           topN,
		"initial_capital": initialCapital,
		"indicators":      indicators,
	}).Info("Backtest run started")
}

// LogRankingCompleted logs the bulk ranking pass.
func (bl *BacktestLogger) LogRankingCompleted(daysRanked, candidates int, durationMs float64) {
	bl.WithFields(logrus.Fields{
		"days_ranked":         daysRanked,
		"candidates":          candidates,
		"ranking_duration_ms": durationMs,
	}).Info("Factor ranking completed")
}

// LogTrade logs an executed fill.
func (bl *BacktestLogger) LogTrade(day time.Time, code, action string, quantity int64, price, amount float64) {
	bl.WithFields(logrus.Fields{
		"date":     day.Format(dateFormat),
		"code":     code,
		"action":   action,
		"quantity": quantity,
		"price":    price,
		"amount":   amount,
	}).Debug("Trade executed")
}

// LogBuySkipped logs a buy dropped without a fill.
func (bl *BacktestLogger) LogBuySkipped(day time.Time, code, reason string, quantity int64, amount, cash float64) {
	bl.WithFields(logrus.Fields{
		"date":     day.Format(dateFormat),
		"code":     code,
		"reason":   reason,
		"quantity": quantity,
		"amount":   amount,
		"cash":     cash,
	}).Debug("Buy skipped")
}

// LogRunCompleted logs run completion with headline metrics.
func (bl *BacktestLogger) LogRunCompleted(endingValue, totalReturn, maxDrawdown, sharpe float64, trades int, duration time.Duration) {
	bl.WithFields(logrus.Fields{
		"ending_value": endingValue,
		"total_return": totalReturn,
		"max_drawdown": maxDrawdown,
		"sharpe_ratio": sharpe,
		"total_trades": trades,
		"duration_ms":  duration.Milliseconds(),
	}).Info("Backtest run completed")
}

// LogRunAborted logs a run stopped part way through.
func (bl *BacktestLogger) LogRunAborted(day time.Time, daysProcessed int, err error) {
	bl.WithFields(logrus.Fields{
		"date":           day.Format(dateFormat),
		"days_processed": daysProcessed,
	}).WithError(err).Error("Backtest run aborted")
}
