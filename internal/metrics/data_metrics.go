// Package metrics defines dataset and cache metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Data gauges
var (
	CachedTradingDays = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cached_trading_days",
		Help:      "Number of distinct trading days held by the daily data cache",
	})
	CachedRows = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cached_rows",
		Help:      "Number of dataset rows held by the daily data cache",
	})
)

// Data counters and histograms
var (
	NearestDateFallbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "nearest_date_fallbacks_total",
		Help:      "Lookups for an uncached day served from the nearest trading day",
	}, []string{"lookup"})
	DatasetLoadDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "dataset_load_duration_seconds",
		Help:      "Time spent reading dataset files",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"format"})
)

// UpdateCacheSize records the cache dimensions.
func UpdateCacheSize(days, rows int) {
	CachedTradingDays.Set(float64(days))
	CachedRows.Set(float64(rows))
}

// RecordNearestDateFallback records a nearest-day substitution.
// lookup should be one of: "daily_data", "daily_prices"
func RecordNearestDateFallback(lookup string) {
	NearestDateFallbacksTotal.WithLabelValues(lookup).Inc()
}

// RecordDatasetLoad records a dataset file read.
func RecordDatasetLoad(format string, durationSeconds float64) {
	DatasetLoadDuration.WithLabelValues(format).Observe(durationSeconds)
}
