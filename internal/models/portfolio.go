package models

import "time"

// TradeAction represents the side of a trade (buy or sell)
type TradeAction string

const (
	TradeActionBuy  TradeAction = "buy"
	TradeActionSell TradeAction = "sell"
)

// TradeRecord is an executed fill at the day's close. Profit fields are set on sells only.
type TradeRecord struct {
	Date       time.Time   `json:"date"`
	Code       string      `json:"code"`
	Name       string      `json:"name"`
	Action     TradeAction `json:"action"`
	Quantity   int64       `json:"quantity"`
	Price      float64     `json:"price"`
	Amount     float64     `json:"amount"`
	Profit     *float64    `json:"profit,omitempty"`
	ProfitRate *float64    `json:"profit_rate,omitempty"`
}

// IsSell reports whether the record is a sell fill.
func (t TradeRecord) IsSell() bool {
	return t.Action == TradeActionSell
}

// Position is a holding in one instrument.
type Position struct {
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Quantity    int64   `json:"quantity"`
	Cost        float64 `json:"cost_basis"`
	MarketValue float64 `json:"market_value"`
}

// AverageCost returns cost per unit, or 0 for an empty position.
func (p Position) AverageCost() float64 {
	if p.Quantity == 0 {
		return 0
	}
	return p.Cost / float64(p.Quantity)
}

// CopyPositions returns a deep copy of a position mapping.
func CopyPositions(positions map[string]*Position) map[string]Position {
	out := make(map[string]Position, len(positions))
	for code, pos := range positions {
		out[code] = *pos
	}
	return out
}

// PortfolioState is the portfolio as observed at the end of a simulated day.
type PortfolioState struct {
	Cash        float64             `json:"cash"`
	Positions   map[string]Position `json:"positions"`
	Timestamp   time.Time           `json:"timestamp"`
	TotalAssets float64             `json:"total_assets"`
}

// PositionsValue sums the market value of every holding.
func (s PortfolioState) PositionsValue() float64 {
	total := 0.0
	for _, pos := range s.Positions {
		total += pos.MarketValue
	}
	return total
}

// DailySnapshot records one simulated day.
type DailySnapshot struct {
	Date       time.Time           `json:"date"`
	Cash       float64             `json:"cash"`
	Positions  map[string]Position `json:"positions"`
	TotalValue float64             `json:"total_value"`
}

// PositionsValue sums the market value of the snapshot's holdings.
func (s DailySnapshot) PositionsValue() float64 {
	total := 0.0
	for _, pos := range s.Positions {
		total += pos.MarketValue
	}
	return total
}
