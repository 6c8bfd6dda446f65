// Package metrics provides the centralized Prometheus metrics registry for the backtest service.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "factor_backtest"

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// API metrics
var (
	APIRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_requests_total",
		Help:      "Total number of API requests by route and status code",
	}, []string{"route", "status"})
	APIRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "api_request_duration_seconds",
		Help:      "Duration of API requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
	StoredRuns = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stored_runs",
		Help:      "Number of finished runs held in the run store",
	})
	WebsocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "websocket_clients",
		Help:      "Number of connected websocket clients",
	})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		// Register API metrics
		registry.MustRegister(APIRequestsTotal)
		registry.MustRegister(APIRequestDuration)
		registry.MustRegister(StoredRuns)
		registry.MustRegister(WebsocketClients)

		// Register data metrics
		registry.MustRegister(CachedTradingDays)
		registry.MustRegister(CachedRows)
		registry.MustRegister(NearestDateFallbacksTotal)
		registry.MustRegister(DatasetLoadDuration)

		// Register backtest metrics
		registry.MustRegister(BacktestRunsTotal)
		registry.MustRegister(BacktestDuration)
		registry.MustRegister(RankingDuration)
		registry.MustRegister(TradesTotal)
		registry.MustRegister(BuySkipsTotal)
		registry.MustRegister(BacktestAnnualizedReturn)
		registry.MustRegister(SweepRunsTotal)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	return InitRegistry()
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// RecordAPIRequest records a served API request.
func RecordAPIRequest(route, status string, durationSeconds float64) {
	APIRequestsTotal.WithLabelValues(route, status).Inc()
	APIRequestDuration.WithLabelValues(route).Observe(durationSeconds)
}

// UpdateStoredRuns updates the run store gauge.
func UpdateStoredRuns(count int) {
	StoredRuns.Set(float64(count))
}

// UpdateWebsocketClients updates the websocket client gauge.
func UpdateWebsocketClients(count int) {
	WebsocketClients.Set(float64(count))
}
