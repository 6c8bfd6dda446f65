package backtest

import (
	"bytes"
	"strconv"
	"time"

	"github.com/yourusername/factor-backtest/internal/models"
)

// EquityPoint represents a point in the equity curve
type EquityPoint struct {
	Time     time.Time `json:"time"`
	Value    float64   `json:"value"`
	NAV      float64   `json:"nav"`
	Drawdown float64   `json:"drawdown"`
	DailyPnL float64   `json:"daily_pnl"`
}

// EquityCurve represents a time-series of equity points
type EquityCurve []EquityPoint

// NewEquityCurve derives the curve from a run's value trajectory. NAV is
// value over initial capital.
func NewEquityCurve(state *BacktestState) EquityCurve {
	values := state.Values()
	dates := state.Dates()
	curve := make(EquityCurve, len(values))

	peak := 0.0
	prev := state.InitialCapital()
	for i, v := range values {
		if v > peak {
			peak = v
		}
		point := EquityPoint{Time: dates[i], Value: v, DailyPnL: v - prev}
		if state.InitialCapital() > 0 {
			point.NAV = v / state.InitialCapital()
		}
		if peak > 0 {
			point.Drawdown = (peak - v) / peak
		}
		curve[i] = point
		prev = v
	}
	return curve
}

// Values returns the value column.
func (e EquityCurve) Values() []float64 {
	out := make([]float64, len(e))
	for i, p := range e {
		out[i] = p.Value
	}
	return out
}

// ToCSV exports equity curve to CSV string
func (e EquityCurve) ToCSV() string {
	var buf bytes.Buffer
	buf.WriteString("date,value,nav,drawdown,daily_pnl\n")
	for _, point := range e {
		buf.WriteString(point.Time.Format(models.DateLayout))
		buf.WriteString(",")
		buf.WriteString(formatFloat(point.Value, 2))
		buf.WriteString(",")
		buf.WriteString(formatFloat(point.NAV, 6))
		buf.WriteString(",")
		buf.WriteString(formatFloat(point.Drawdown, 6))
		buf.WriteString(",")
		buf.WriteString(formatFloat(point.DailyPnL, 2))
		buf.WriteString("\n")
	}
	return buf.String()
}

func formatFloat(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}
