package backtest

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/factor-backtest/internal/models"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRoundMoney(t *testing.T) {
	assert.Equal(t, "1234.57", RoundMoney(1234.5678).StringFixed(2))
	assert.Equal(t, "0.10", RoundMoney(0.1+0.2-0.2).StringFixed(2))
	assert.Equal(t, "-3.00", money(-2.999))
}

func TestWriteReports(t *testing.T) {
	cache := newCache(t,
		quote(1, "A", 100, 1), quote(1, "B", 100, 2),
		quote(2, "A", 110, 2), quote(2, "B", 100, 1),
	)
	cfg := scoreConfig(1, 1000)
	state, analytics := runEngine(t, cache, cfg)
	dir := filepath.Join(t.TempDir(), "report")

	require.NoError(t, WriteReports(dir, state, analytics, cfg))

	trades := readCSV(t, filepath.Join(dir, TradeRecordsFile))
	assert.Equal(t, []string{"date", "code", "name", "action", "quantity", "price", "amount", "profit", "profit_rate"}, trades[0])
	require.Len(t, trades, 1+len(state.Trades()))
	assert.Equal(t, []string{"2024-01-01", "A", "bond A", "buy", "10", "100.0000", "1000.00", "", ""}, trades[1])
	assert.Equal(t, []string{"2024-01-02", "A", "bond A", "sell", "10", "110.0000", "1100.00", "100.00", "0.100000"}, trades[2])

	daily := readCSV(t, filepath.Join(dir, DailyReportFile))
	require.Len(t, daily, 3)
	assert.Equal(t, []string{"date", "cash", "positions_value", "total_value", "position_count"}, daily[0])
	assert.Equal(t, "1100.00", daily[2][3])

	curve, err := os.ReadFile(filepath.Join(dir, EquityCurveFile))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(curve), "date,value,nav,drawdown,daily_pnl\n2024-01-01,1000.00,1.000000"))

	raw, err := os.ReadFile(filepath.Join(dir, SummaryFile))
	require.NoError(t, err)
	var summary map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &summary))
	assert.Equal(t, "low_score", summary["strategy_name"])
	assert.Equal(t, "1100", summary["ending_value"])
	assert.Contains(t, summary, "config")
}

func TestWriteReportsNilState(t *testing.T) {
	err := WriteReports(t.TempDir(), nil, Analytics{}, RunConfig{})
	assert.ErrorIs(t, err, models.ErrNoBacktestData)
}

func TestGenerateConsoleReport(t *testing.T) {
	start, end := day(2), day(5)
	report := GenerateConsoleReport(Analytics{
		StrategyName:     "double_low",
		InitialCapital:   1000000,
		EndingValue:      1123456.789,
		TotalReturn:      0.123456789,
		MaxDrawdown:      0.05,
		MaxDrawdownStart: &start,
		MaxDrawdownEnd:   &end,
		StartDate:        day(1),
		EndDate:          day(10),
		TradingDays:      10,
	})

	assert.Contains(t, report, "Strategy: double_low")
	assert.Contains(t, report, "Ending Value: 1123456.79")
	assert.Contains(t, report, "Total Return: 12.35%")
	assert.Contains(t, report, "Max Drawdown: 5.00% (2024-01-02 to 2024-01-05)")
	assert.Contains(t, report, "(10 trading days)")
}

func TestEquityCurve(t *testing.T) {
	state := NewBacktestState(100, 3)
	for i, v := range []float64{100, 120, 90} {
		state.cash = v
		state.recordSnapshot(day(i + 1))
	}

	curve := NewEquityCurve(state)

	require.Len(t, curve, 3)
	assert.Equal(t, []float64{100, 120, 90}, curve.Values())
	assert.InDelta(t, 1.2, curve[1].NAV, 1e-12)
	assert.InDelta(t, 0.25, curve[2].Drawdown, 1e-12)
	assert.InDelta(t, -30, curve[2].DailyPnL, 1e-12)
	assert.Contains(t, curve.ToCSV(), "2024-01-03,90.00,0.900000,0.250000,-30.00")
}
