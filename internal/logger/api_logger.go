package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// APILogger provides dedicated logging for the HTTP API.
type APILogger struct {
	*logrus.Entry
}

// NewAPILogger creates a new API logger.
func NewAPILogger(baseLogger *logrus.Logger) *APILogger {
	return &APILogger{
		Entry: baseLogger.WithField("component", "api"),
	}
}

// LogRequest logs one served request.
func (al *APILogger) LogRequest(method, path, route string, status, bytes int, duration time.Duration, requestID string) {
	entry := al.WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"route":       route,
		"status":      status,
		"bytes":       bytes,
		"duration_ms": float64(duration.Microseconds()) / 1000,
		"request_id":  requestID,
	})
	if status >= 500 {
		entry.Warn("HTTP request")
		return
	}
	entry.Info("HTTP request")
}

// LogRunStored logs a finished run kept in the run store.
func (al *APILogger) LogRunStored(runID, strategyName string, storedRuns int) {
	al.WithFields(logrus.Fields{
		"run_id":        runID,
		"strategy_name": strategyName,
		"stored_runs":   storedRuns,
	}).Info("Backtest run stored")
}

// LogPersistFailed logs a result that could not be saved to the database.
func (al *APILogger) LogPersistFailed(runID string, err error) {
	al.WithField("run_id", runID).WithError(err).Error("Failed to persist backtest result")
}

// LogClientConnected logs a websocket client joining or leaving.
func (al *APILogger) LogClientConnected(remote string, connected bool, clients int) {
	al.WithFields(logrus.Fields{
		"remote":    remote,
		"connected": connected,
		"clients":   clients,
	}).Debug("Websocket client")
}
