package backtest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/yourusername/factor-backtest/internal/models"
)

// Report file names written by WriteReports.
const (
	TradeRecordsFile = "trade_records.csv"
	DailyReportFile  = "daily_report.csv"
	EquityCurveFile  = "equity_curve.csv"
	SummaryFile      = "summary.json"
)

// RoundMoney rounds a currency amount to cents.
func RoundMoney(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

func money(v float64) string {
	return RoundMoney(v).StringFixed(2)
}

// Summary is the rounded, report-facing form of Analytics.
type Summary struct {
	Analytics
	InitialCapital decimal.Decimal `json:"initial_capital"`
	EndingValue    decimal.Decimal `json:"ending_value"`
	Config         RunConfig       `json:"config"`
}

// NewSummary rounds the money fields of a.
func NewSummary(a Analytics, cfg RunConfig) Summary {
	return Summary{
		Analytics:      a,
		InitialCapital: RoundMoney(a.InitialCapital),
		EndingValue:    RoundMoney(a.EndingValue),
		Config:         cfg,
	}
}

// WriteReports writes the trade log, daily report, equity curve and summary
// into dir, creating it if needed.
func WriteReports(dir string, state *BacktestState, a Analytics, cfg RunConfig) error {
	if state == nil {
		return models.ErrNoBacktestData
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	if err := writeCSV(filepath.Join(dir, TradeRecordsFile), tradeRecordRows(state.Trades())); err != nil {
		return err
	}
	if err := writeCSV(filepath.Join(dir, DailyReportFile), dailyReportRows(state.DailyReport())); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, EquityCurveFile), []byte(NewEquityCurve(state).ToCSV()), 0o644); err != nil {
		return fmt.Errorf("failed to write equity curve: %w", err)
	}

	data, err := json.MarshalIndent(NewSummary(a, cfg), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, SummaryFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

func tradeRecordRows(trades []models.TradeRecord) [][]string {
	rows := make([][]string, 0, len(trades)+1)
	rows = append(rows, []string{"date", "code", "name", "action", "quantity", "price", "amount", "profit", "profit_rate"})
	for _, t := range trades {
		profit, rate := "", ""
		if t.Profit != nil {
			profit = money(*t.Profit)
		}
		if t.ProfitRate != nil {
			rate = formatFloat(*t.ProfitRate, 6)
		}
		rows = append(rows, []string{
			models.FormatDate(t.Date),
			t.Code,
			t.Name,
			string(t.Action),
			strconv.FormatInt(t.Quantity, 10),
			formatFloat(t.Price, 4),
			money(t.Amount),
			profit,
			rate,
		})
	}
	return rows
}

func dailyReportRows(report []DailyReportRow) [][]string {
	rows := make([][]string, 0, len(report)+1)
	rows = append(rows, []string{"date", "cash", "positions_value", "total_value", "position_count"})
	for _, r := range report {
		rows = append(rows, []string{
			models.FormatDate(r.Date),
			money(r.Cash),
			money(r.PositionsValue),
			money(r.TotalValue),
			strconv.Itoa(r.PositionCount),
		})
	}
	return rows
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// GenerateConsoleReport formats analytics for terminal output
func GenerateConsoleReport(a Analytics) string {
	var builder strings.Builder
	builder.WriteString("Backtest Report\n")
	builder.WriteString("================\n")
	builder.WriteString(fmt.Sprintf("Strategy: %s\n", a.StrategyName))
	builder.WriteString(fmt.Sprintf("Period: %s to %s (%d trading days)\n",
		models.FormatDate(a.StartDate), models.FormatDate(a.EndDate), a.TradingDays))
	builder.WriteString(fmt.Sprintf("Initial Capital: %s\n", money(a.InitialCapital)))
	builder.WriteString(fmt.Sprintf("Ending Value: %s\n", money(a.EndingValue)))
	builder.WriteString(fmt.Sprintf("Total Return: %.2f%%\n", a.TotalReturn*100))
	builder.WriteString(fmt.Sprintf("Annualized Return: %.2f%%\n", a.AnnualizedReturn*100))
	builder.WriteString(fmt.Sprintf("Max Drawdown: %.2f%%", a.MaxDrawdown*100))
	if a.MaxDrawdownStart != nil && a.MaxDrawdownEnd != nil {
		builder.WriteString(fmt.Sprintf(" (%s to %s)", models.FormatDate(*a.MaxDrawdownStart), models.FormatDate(*a.MaxDrawdownEnd)))
	}
	builder.WriteString("\n")
	builder.WriteString(fmt.Sprintf("Sharpe Ratio: %.2f\n", a.SharpeRatio))
	builder.WriteString(fmt.Sprintf("Sortino Ratio: %.2f\n", a.SortinoRatio))
	builder.WriteString(fmt.Sprintf("Volatility: %.2f%%\n", a.Volatility*100))
	builder.WriteString(fmt.Sprintf("Trades: %d (%d sells)\n", a.TotalTrades, a.SellTrades))
	builder.WriteString(fmt.Sprintf("Win Rate: %.2f%%\n", a.WinRate*100))
	builder.WriteString(fmt.Sprintf("Profit Factor: %.2f\n", a.ProfitFactor))
	builder.WriteString(fmt.Sprintf("Execution Time: %.3fs\n", a.ExecutionTime))
	return builder.String()
}
