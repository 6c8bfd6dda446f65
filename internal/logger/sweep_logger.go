// Package logger provides factor sweep logging.
package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// SweepLogger provides dedicated logging for batch factor runs.
type SweepLogger struct {
	*logrus.Entry
}

// NewSweepLogger creates a new sweep logger.
func NewSweepLogger(baseLogger *logrus.Logger) *SweepLogger {
	return &SweepLogger{
		Entry: baseLogger.WithField("component", "sweep"),
	}
}

// LogSweepStarted logs the start of a sweep.
func (sl *SweepLogger) LogSweepStarted(configs, concurrency int) {
	sl.WithFields(logrus.Fields{
		"configs":     configs,
		"concurrency": concurrency,
	}).Info("Factor sweep started")
}

// LogFactorCompleted logs one finished factor run.
func (sl *SweepLogger) LogFactorCompleted(index, total int, name string, annualizedReturn float64) {
	sl.WithFields(logrus.Fields{
		"progress":          index,
		"total":             total,
		"strategy_name":     name,
		"annualized_return": annualizedReturn,
	}).Info("Factor backtest completed")
}

// LogFactorFailed logs one failed factor run.
func (sl *SweepLogger) LogFactorFailed(name string, err error) {
	sl.WithField("strategy_name", name).WithError(err).Warn("Factor backtest failed")
}

// LogSweepCompleted logs the sweep summary.
func (sl *SweepLogger) LogSweepCompleted(succeeded, failed int, best string, duration time.Duration) {
	sl.WithFields(logrus.Fields{
		"succeeded":     succeeded,
		"failed":        failed,
		"best_strategy": best,
		"duration_ms":   duration.Milliseconds(),
	}).Info("Factor sweep completed")
}
