// Package metrics defines backtesting-specific metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Backtest counter vectors
var (
	BacktestRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backtest_runs_total",
		Help:      "Total number of backtest runs by method and status",
	}, []string{"method", "status"})
	TradesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "trades_total",
		Help:      "Total number of simulated fills by action",
	}, []string{"action"})
	BuySkipsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "buy_skips_total",
		Help:      "Buys skipped by reason",
	}, []string{"reason"})
	SweepRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_runs_total",
		Help:      "Total number of factor sweeps by trigger and status",
	}, []string{"trigger", "status"})
)

// Backtest histograms
var (
	BacktestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "backtest_duration_seconds",
		Help:      "Duration of backtest runs in seconds",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	}, []string{"method"})
	RankingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ranking_duration_seconds",
		Help:      "Duration of the bulk factor ranking pass in seconds",
		Buckets:   prometheus.DefBuckets,
	})
	BacktestAnnualizedReturn = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "backtest_annualized_return",
		Help:      "Annualized returns of completed backtest runs",
		Buckets:   []float64{-0.5, -0.2, -0.1, 0, 0.05, 0.1, 0.2, 0.5, 1},
	}, []string{"method"})
)

// RecordBacktestRun records a backtest run event.
// method should be one of: "single", "sweep", "walk_forward"
// status should be one of: "success", "failure"
func RecordBacktestRun(method, status string) {
	BacktestRunsTotal.WithLabelValues(method, status).Inc()
}

// RecordBacktestDuration records backtest duration.
func RecordBacktestDuration(method string, durationSeconds float64) {
	BacktestDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordAnnualizedReturn records a completed run's annualized return.
func RecordAnnualizedReturn(method string, value float64) {
	BacktestAnnualizedReturn.WithLabelValues(method).Observe(value)
}

// RecordRankingDuration records the ranking pass duration.
func RecordRankingDuration(durationSeconds float64) {
	RankingDuration.Observe(durationSeconds)
}

// RecordTrade records a simulated fill.
func RecordTrade(action string) {
	TradesTotal.WithLabelValues(action).Inc()
}

// RecordBuySkip records a skipped buy.
// reason should be one of: "insufficient_cash", "slot_limit"
func RecordBuySkip(reason string) {
	BuySkipsTotal.WithLabelValues(reason).Inc()
}

// RecordSweepRun records a factor sweep.
// trigger should be one of: "cli", "schedule", "api"
func RecordSweepRun(trigger, status string) {
	SweepRunsTotal.WithLabelValues(trigger, status).Inc()
}
