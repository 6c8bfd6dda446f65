// Package dataset holds the in-memory tabular dataset the backtest engine runs on.
package dataset

import (
	"math"
	"sort"
	"time"

	"github.com/yourusername/factor-backtest/internal/models"
)

// Well-known column names.
const (
	ColumnCode      = "code"
	ColumnName      = "name"
	ColumnTradeDate = "trade_date"
	ColumnClose     = "close"
)

// RequiredColumns must be present for a frame to be usable.
var RequiredColumns = []string{ColumnCode, ColumnTradeDate, ColumnClose}

// Row is one instrument's record for one trading day.
type Row struct {
	Code   string
	Name   string
	Date   time.Time
	Values map[string]float64
}

// Value returns a numeric field. Absent keys and NaN count as null.
func (r Row) Value(field string) (float64, bool) {
	v, ok := r.Values[field]
	if !ok || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Close returns the close price, with null treated as 0.
func (r Row) Close() float64 {
	v, _ := r.Value(ColumnClose)
	return v
}

// Frame is an immutable set of rows in load order.
type Frame struct {
	columns map[string]struct{}
	names   []string
	rows    []Row
}

// NewFrame validates the column set and wraps the rows.
func NewFrame(columns []string, rows []Row) (*Frame, error) {
	set := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		set[c] = struct{}{}
	}
	for _, required := range RequiredColumns {
		if _, ok := set[required]; !ok {
			return nil, &models.MissingColumnError{Column: required}
		}
	}
	names := make([]string, 0, len(set))
	for c := range set {
		names = append(names, c)
	}
	sort.Strings(names)

	return &Frame{columns: set, names: names, rows: rows}, nil
}

// HasColumn reports whether the column was present at load time.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.columns[name]
	return ok
}

// Columns returns the sorted column names.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

// Rows returns the rows in load order. Callers must not modify them.
func (f *Frame) Rows() []Row {
	return f.rows
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.rows)
}

// Between returns rows whose date falls in [start, end]. Zero bounds are open.
func (f *Frame) Between(start, end time.Time) []Row {
	out := make([]Row, 0, len(f.rows))
	for _, row := range f.rows {
		if InRange(row.Date, start, end) {
			out = append(out, row)
		}
	}
	return out
}

// InRange reports whether t is inside [start, end], treating zero bounds as open.
func InRange(t, start, end time.Time) bool {
	if !start.IsZero() && t.Before(start) {
		return false
	}
	if !end.IsZero() && t.After(end) {
		return false
	}
	return true
}
