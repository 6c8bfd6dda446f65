// Package logger provides data-layer logging.
package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// DataLogger provides dedicated logging for dataset loading and day lookups.
type DataLogger struct {
	*logrus.Entry
}

// NewDataLogger creates a new data logger.
func NewDataLogger(baseLogger *logrus.Logger) *DataLogger {
	return &DataLogger{
		Entry: baseLogger.WithField("component", "datacache"),
	}
}

// LogDatasetLoaded logs a dataset file read.
func (dl *DataLogger) LogDatasetLoaded(path, format string, rows, columns int, duration time.Duration) {
	dl.WithFields(logrus.Fields{
		"path":        path,
		"format":      format,
		"rows":        rows,
		"columns":     columns,
		"duration_ms": duration.Milliseconds(),
	}).Info("Dataset loaded")
}

// LogCacheBuilt logs cache construction.
func (dl *DataLogger) LogCacheBuilt(tradingDays, rows int, first, last time.Time) {
	dl.WithFields(logrus.Fields{
		"trading_days": tradingDays,
		"rows":         rows,
		"first_day":    first.Format(dateFormat),
		"last_day":     last.Format(dateFormat),
	}).Info("Daily data cache built")
}

// LogNearestDateFallback logs a lookup served from a substitute day.
func (dl *DataLogger) LogNearestDateFallback(lookup string, requested, resolved time.Time) {
	dl.WithFields(logrus.Fields{
		"lookup":    lookup,
		"requested": requested.Format(dateFormat),
		"resolved":  resolved.Format(dateFormat),
	}).Warn("Requested day not cached, using nearest trading day")
}
