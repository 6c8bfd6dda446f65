package backtest

import (
	"time"

	"github.com/yourusername/factor-backtest/internal/models"
)

// BacktestState tracks cash, holdings and the append-only logs of one run.
// It is owned by a single run and never shared.
type BacktestState struct {
	initialCapital float64
	cash           float64
	positions      map[string]*models.Position
	trades         []models.TradeRecord
	snapshots      []models.DailySnapshot
	values         []float64
	dates          []time.Time
	latest         models.PortfolioState
}

// DailyReportRow is one line of the daily report.
type DailyReportRow struct {
	Date           time.Time `json:"date"`
	Cash           float64   `json:"cash"`
	PositionsValue float64   `json:"positions_value"`
	TotalValue     float64   `json:"total_value"`
	PositionCount  int       `json:"position_count"`
}

// NewBacktestState initializes state with all capital in cash. days sizes the
// value trajectory.
func NewBacktestState(initialCapital float64, days int) *BacktestState {
	return &BacktestState{
		initialCapital: initialCapital,
		cash:           initialCapital,
		positions:      make(map[string]*models.Position),
		values:         make([]float64, 0, days),
		dates:          make([]time.Time, 0, days),
		latest: models.PortfolioState{
			Cash:        initialCapital,
			Positions:   map[string]models.Position{},
			TotalAssets: initialCapital,
		},
	}
}

// InitialCapital returns the starting cash.
func (s *BacktestState) InitialCapital() float64 { return s.initialCapital }

// Cash returns the current cash balance.
func (s *BacktestState) Cash() float64 { return s.cash }

// Trades returns the ordered trade log.
func (s *BacktestState) Trades() []models.TradeRecord { return s.trades }

// Snapshots returns one snapshot per processed day.
func (s *BacktestState) Snapshots() []models.DailySnapshot { return s.snapshots }

// Values returns the total portfolio value per processed day.
func (s *BacktestState) Values() []float64 { return s.values }

// Dates returns the processed trading days, aligned with Values.
func (s *BacktestState) Dates() []time.Time { return s.dates }

// Latest returns the portfolio as of the last processed day.
func (s *BacktestState) Latest() models.PortfolioState { return s.latest }

// Positions returns a copy of the current holdings.
func (s *BacktestState) Positions() map[string]models.Position {
	return models.CopyPositions(s.positions)
}

// PositionsValue sums the market value of the current holdings.
func (s *BacktestState) PositionsValue() float64 {
	total := 0.0
	for _, pos := range s.positions {
		total += pos.MarketValue
	}
	return total
}

// TotalValue returns cash plus the market value of every holding.
func (s *BacktestState) TotalValue() float64 {
	return s.cash + s.PositionsValue()
}

// DailyReport summarizes every snapshot.
func (s *BacktestState) DailyReport() []DailyReportRow {
	rows := make([]DailyReportRow, len(s.snapshots))
	for i, snap := range s.snapshots {
		rows[i] = DailyReportRow{
			Date:           snap.Date,
			Cash:           snap.Cash,
			PositionsValue: snap.PositionsValue(),
			TotalValue:     snap.TotalValue,
			PositionCount:  len(snap.Positions),
		}
	}
	return rows
}

// markToMarket revalues holdings that have a positive price today. Holdings
// without one keep yesterday's value.
func (s *BacktestState) markToMarket(prices map[string]float64) {
	for code, pos := range s.positions {
		if price := prices[code]; price > 0 {
			pos.MarketValue = float64(pos.Quantity) * price
		}
	}
}

// buy fills quantity at price. It returns false, changing nothing, when cash
// does not cover the whole amount.
func (s *BacktestState) buy(day time.Time, code, name string, quantity int64, price float64) (models.TradeRecord, bool) {
	amount := float64(quantity) * price
	if s.cash < amount {
		return models.TradeRecord{}, false
	}

	pos, ok := s.positions[code]
	if !ok {
		pos = &models.Position{Code: code, Name: name}
		s.positions[code] = pos
	}
	pos.Cost += amount
	pos.Quantity += quantity
	pos.MarketValue = float64(pos.Quantity) * price
	s.cash -= amount

	trade := models.TradeRecord{
		Date:     day,
		Code:     code,
		Name:     pos.Name,
		Action:   models.TradeActionBuy,
		Quantity: quantity,
		Price:    price,
		Amount:   amount,
	}
	s.trades = append(s.trades, trade)
	return trade, true
}

// sell fills quantity at price using the pre-sale average cost. A position
// sold down to zero is removed.
func (s *BacktestState) sell(day time.Time, code string, quantity int64, price float64) models.TradeRecord {
	pos := s.positions[code]
	avgCost := pos.AverageCost()
	amount := float64(quantity) * price
	profit := (price - avgCost) * float64(quantity)
	profitRate := 0.0
	if avgCost > 0 {
		profitRate = price/avgCost - 1
	}

	pos.Quantity -= quantity
	if pos.Quantity <= 0 {
		delete(s.positions, code)
	} else {
		pos.Cost -= avgCost * float64(quantity)
		pos.MarketValue = float64(pos.Quantity) * price
	}
	s.cash += amount

	trade := models.TradeRecord{
		Date:       day,
		Code:       code,
		Name:       pos.Name,
		Action:     models.TradeActionSell,
		Quantity:   quantity,
		Price:      price,
		Amount:     amount,
		Profit:     &profit,
		ProfitRate: &profitRate,
	}
	s.trades = append(s.trades, trade)
	return trade
}

// recordSnapshot closes the day: it appends the snapshot and value, and
// rebuilds the latest portfolio state from scratch.
func (s *BacktestState) recordSnapshot(day time.Time) {
	total := s.TotalValue()
	positions := models.CopyPositions(s.positions)

	s.snapshots = append(s.snapshots, models.DailySnapshot{
		Date:       day,
		Cash:       s.cash,
		Positions:  positions,
		TotalValue: total,
	})
	s.values = append(s.values, total)
	s.dates = append(s.dates, day)
	s.latest = models.PortfolioState{
		Cash:        s.cash,
		Positions:   models.CopyPositions(s.positions),
		Timestamp:   day,
		TotalAssets: total,
	}
}
