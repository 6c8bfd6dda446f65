package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/yourusername/factor-backtest/internal/models"
)

type envelope struct {
	Status  string      `json:"status"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidConfig),
		errors.Is(err, models.ErrInvalidDateFormat),
		errors.Is(err, models.ErrInvalidFilterOperator),
		errors.Is(err, models.ErrMissingColumn):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrDataNotFound),
		errors.Is(err, models.ErrRunNotFound),
		errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrNoBacktestData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// client went away
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, envelope{Status: "success", Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), envelope{Status: "error", Message: err.Error()})
}
