// Package datacache partitions a loaded dataset by trading day and serves
// day-keyed lookups to simulation runs.
//
// A Cache is fully built by New and never mutated afterwards, so one instance
// can be shared by any number of concurrent independent runs.
package datacache

import (
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/factor-backtest/internal/dataset"
	"github.com/yourusername/factor-backtest/internal/logger"
	"github.com/yourusername/factor-backtest/internal/metrics"
	"github.com/yourusername/factor-backtest/internal/models"
)

const (
	lookupDailyData   = "daily_data"
	lookupDailyPrices = "daily_prices"
)

// Cache is the immutable day-partitioned view of a dataset.
type Cache struct {
	frame  *dataset.Frame
	days   []time.Time
	index  map[int64]int
	rows   [][]dataset.Row
	prices []map[string]float64
	logger *logger.DataLogger
}

// Load reads the dataset at path and builds a cache over it.
func Load(path, format string, log *logrus.Logger) (*Cache, error) {
	log = logger.OrDefault(log)
	if format == "" || format == dataset.FormatAuto {
		format = dataset.DetectFormat(path)
	}

	started := time.Now()
	frame, err := dataset.Load(path, format)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	elapsed := time.Since(started)
	metrics.RecordDatasetLoad(format, elapsed.Seconds())
	logger.NewDataLogger(log).LogDatasetLoaded(path, format, frame.Len(), len(frame.Columns()), elapsed)

	return New(frame, log)
}

// New builds the trading-day index, the per-day row partitions and price maps.
func New(frame *dataset.Frame, log *logrus.Logger) (*Cache, error) {
	if frame == nil {
		return nil, fmt.Errorf("dataset frame is required")
	}
	for _, column := range dataset.RequiredColumns {
		if !frame.HasColumn(column) {
			return nil, &models.MissingColumnError{Column: column}
		}
	}

	c := &Cache{
		frame:  frame,
		index:  make(map[int64]int),
		logger: logger.NewDataLogger(logger.OrDefault(log)),
	}

	for _, row := range frame.Rows() {
		key := dayKey(row.Date)
		if _, ok := c.index[key]; !ok {
			c.index[key] = len(c.days)
			c.days = append(c.days, row.Date)
		}
	}
	sort.Slice(c.days, func(i, j int) bool { return c.days[i].Before(c.days[j]) })
	for i, day := range c.days {
		c.index[dayKey(day)] = i
	}

	c.rows = make([][]dataset.Row, len(c.days))
	c.prices = make([]map[string]float64, len(c.days))
	for i := range c.prices {
		c.prices[i] = make(map[string]float64)
	}
	for _, row := range frame.Rows() {
		i := c.index[dayKey(row.Date)]
		c.rows[i] = append(c.rows[i], row)
		c.prices[i][row.Code] = row.Close()
	}

	metrics.UpdateCacheSize(len(c.days), frame.Len())
	if first, last, ok := c.Bounds(); ok {
		c.logger.LogCacheBuilt(len(c.days), frame.Len(), first, last)
	}
	return c, nil
}

// Frame returns the full underlying dataset.
func (c *Cache) Frame() *dataset.Frame {
	return c.frame
}

// Len returns the number of distinct trading days.
func (c *Cache) Len() int {
	return len(c.days)
}

// Bounds returns the first and last trading day.
func (c *Cache) Bounds() (time.Time, time.Time, bool) {
	if len(c.days) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return c.days[0], c.days[len(c.days)-1], true
}

// Resolve maps day onto the trading-day index. When day is not cached the
// nearest day by absolute distance is returned with fellBack set; of two
// equidistant days the earlier one wins.
func (c *Cache) Resolve(day time.Time) (resolved time.Time, fellBack bool, err error) {
	i, fellBack, err := c.resolveIndex(day)
	if err != nil {
		return time.Time{}, false, err
	}
	return c.days[i], fellBack, nil
}

func (c *Cache) resolveIndex(day time.Time) (int, bool, error) {
	if len(c.days) == 0 {
		return 0, false, fmt.Errorf("%w: requested %s", models.ErrDataNotFound, models.FormatDate(day))
	}
	if i, ok := c.index[dayKey(day)]; ok {
		return i, false, nil
	}

	// first index at or after day
	after := sort.Search(len(c.days), func(i int) bool { return !c.days[i].Before(day) })
	switch {
	case after == 0:
		return 0, true, nil
	case after == len(c.days):
		return len(c.days) - 1, true, nil
	}
	before := after - 1
	if day.Sub(c.days[before]) <= c.days[after].Sub(day) {
		return before, true, nil
	}
	return after, true, nil
}

// DailyData returns every row for day, falling back to the nearest trading day.
// The returned slice is shared and must not be modified.
func (c *Cache) DailyData(day time.Time) ([]dataset.Row, error) {
	i, fellBack, err := c.resolveIndex(day)
	if err != nil {
		return nil, err
	}
	if fellBack {
		c.recordFallback(lookupDailyData, day, c.days[i])
	}
	return c.rows[i], nil
}

// DailyPrices returns the code to close price map for day, with the same
// fallback as DailyData. With no trading days at all it returns an empty map.
// The returned map is shared and must not be modified.
func (c *Cache) DailyPrices(day time.Time) map[string]float64 {
	i, fellBack, err := c.resolveIndex(day)
	if err != nil {
		return map[string]float64{}
	}
	if fellBack {
		c.recordFallback(lookupDailyPrices, day, c.days[i])
	}
	return c.prices[i]
}

// TradingDays returns the trading days inside [start, end]. Zero bounds are open.
func (c *Cache) TradingDays(start, end time.Time) []time.Time {
	lo := 0
	if !start.IsZero() {
		lo = sort.Search(len(c.days), func(i int) bool { return !c.days[i].Before(start) })
	}
	hi := len(c.days)
	if !end.IsZero() {
		hi = sort.Search(len(c.days), func(i int) bool { return c.days[i].After(end) })
	}
	if lo >= hi {
		return []time.Time{}
	}
	out := make([]time.Time, hi-lo)
	copy(out, c.days[lo:hi])
	return out
}

// OnOrBefore returns the latest trading day not after day, or the first
// trading day when day precedes the whole index.
func (c *Cache) OnOrBefore(day time.Time) (time.Time, error) {
	if len(c.days) == 0 {
		return time.Time{}, fmt.Errorf("%w: requested %s", models.ErrDataNotFound, models.FormatDate(day))
	}
	after := sort.Search(len(c.days), func(i int) bool { return c.days[i].After(day) })
	if after == 0 {
		return c.days[0], nil
	}
	return c.days[after-1], nil
}

func (c *Cache) recordFallback(lookup string, requested, resolved time.Time) {
	metrics.RecordNearestDateFallback(lookup)
	c.logger.LogNearestDateFallback(lookup, requested, resolved)
}

func dayKey(t time.Time) int64 {
	return t.UnixNano()
}
