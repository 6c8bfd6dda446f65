package api

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/yourusername/factor-backtest/internal/dataset"
	"github.com/yourusername/factor-backtest/internal/models"
)

const (
	defaultRankingLimit = 10
	maxRankingLimit     = 100
)

// fieldGroups lists the known dataset columns by topic.
var fieldGroups = []struct {
	Name   string
	Fields []string
}{
	{"basic", []string{"code", "name", "trade_date"}},
	{"price", []string{"pre_close", "open", "high", "low", "close", "pct_chg", "vol", "amount"}},
	{"stock", []string{"code_stk", "pre_close_stk", "open_stk", "high_stk", "low_stk", "close_stk", "pct_chg_stk", "vol_stk", "amount_stk"}},
	{"valuation", []string{"pe_ttm", "pb", "ps_ttm", "total_share", "float_share", "total_mv", "circ_mv", "volatility_stk"}},
	{"convertible", []string{"is_call", "conv_price", "conv_value", "conv_prem", "theory_conv_prem", "mod_conv_prem", "dblow",
		"issue_size", "remain_size", "remain_cap", "turnover", "cap_mv_rate", "list_days", "left_years", "ytm", "pure_value",
		"bond_prem", "option_value", "theory_value", "theory_bias"}},
	{"others", []string{"rating", "yy_rating", "orgform", "area", "industry_1", "industry_2", "industry_3",
		"maturity_put_price", "maturity", "popularity_ranking"}},
}

type fieldInfo struct {
	Name   string `json:"name"`
	Loaded bool   `json:"loaded"`
}

type fieldGroup struct {
	Group  string      `json:"group"`
	Fields []fieldInfo `json:"fields"`
}

type fieldInfoResponse struct {
	Groups  []fieldGroup `json:"groups"`
	Columns []string     `json:"columns"`
}

type marketOverviewResponse struct {
	Date               string   `json:"date"`
	TotalBonds         int      `json:"total_bonds"`
	TotalMarketValue   *float64 `json:"total_market_value"`
	TotalTradingAmount *float64 `json:"total_trading_amount"`
	AvgPremiumRate     *float64 `json:"avg_premium_rate"`
	AvgBondPremiumRate *float64 `json:"avg_bond_premium_rate"`
	AvgYTM             *float64 `json:"avg_ytm"`
}

type bucketCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

type distributionResponse struct {
	Date     string        `json:"date"`
	Premium  []bucketCount `json:"premium_distribution"`
	YTM      []bucketCount `json:"ytm_distribution"`
	Duration []bucketCount `json:"duration_distribution"`
}

type bondSummary struct {
	Code        string   `json:"code"`
	Name        string   `json:"name"`
	Close       *float64 `json:"close"`
	PctChg      *float64 `json:"pct_chg"`
	Volume      *float64 `json:"volume"`
	Amount      *float64 `json:"amount"`
	ConvPrice   *float64 `json:"conv_price"`
	ConvValue   *float64 `json:"conv_value"`
	ConvPrem    *float64 `json:"conv_prem"`
	YTM         *float64 `json:"ytm"`
	RemainSize  *float64 `json:"remain_size"`
	Turnover    *float64 `json:"turnover"`
	DoubleLow   *float64 `json:"dblow"`
	StockPrice  *float64 `json:"stock_price"`
	StockPctChg *float64 `json:"stock_pct_chg"`
}

type rankingResponse struct {
	Date         string        `json:"date"`
	DoubleLowTop []bondSummary `json:"double_low_top"`
	HighYTM      []bondSummary `json:"high_ytm"`
	LowYTM       []bondSummary `json:"low_ytm"`
	HighPremium  []bondSummary `json:"high_premium"`
	LowPremium   []bondSummary `json:"low_premium"`
	TopGainers   []bondSummary `json:"top_gainers"`
	TopLosers    []bondSummary `json:"top_losers"`
	MostActive   []bondSummary `json:"most_active"`
}

// bucket is a half-open [lo, hi) range.
type bucket struct {
	label  string
	lo, hi float64
}

var (
	premiumBuckets = []bucket{
		{"<0", math.Inf(-1), 0}, {"0-10", 0, 10}, {"10-20", 10, 20}, {"20-30", 20, 30},
		{"30-40", 30, 40}, {"40-50", 40, 50}, {"50-100", 50, 100}, {"100+", 100, math.Inf(1)},
	}
	ytmBuckets = []bucket{
		{"<0", math.Inf(-1), 0}, {"0-1", 0, 1}, {"1-2", 1, 2}, {"2-3", 2, 3},
		{"3-4", 3, 4}, {"4-5", 4, 5}, {"5+", 5, math.Inf(1)},
	}
	durationBuckets = []bucket{
		{"<1", math.Inf(-1), 1}, {"1-2", 1, 2}, {"2-3", 2, 3},
		{"3-4", 3, 4}, {"4-5", 4, 5}, {"5+", 5, math.Inf(1)},
	}
)

func (s *Server) handleFieldInfo(w http.ResponseWriter, r *http.Request) {
	frame := s.cache.Frame()
	groups := make([]fieldGroup, len(fieldGroups))
	for i, g := range fieldGroups {
		fields := make([]fieldInfo, len(g.Fields))
		for j, name := range g.Fields {
			fields[j] = fieldInfo{Name: name, Loaded: frame.HasColumn(name)}
		}
		groups[i] = fieldGroup{Group: g.Name, Fields: fields}
	}
	writeData(w, fieldInfoResponse{Groups: groups, Columns: frame.Columns()})
}

// handleMarketOverview reports day totals and averages. Null cells are
// skipped; a column with no values reports null.
func (s *Server) handleMarketOverview(w http.ResponseWriter, r *http.Request) {
	day, rows, err := s.resolveDay(r)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := marketOverviewResponse{Date: models.FormatDate(day), TotalBonds: len(rows)}
	if v := columnValues(rows, "remain_size"); len(v) > 0 {
		resp.TotalMarketValue = round2(floats.Sum(v) / 100)
	}
	if v := columnValues(rows, "amount"); len(v) > 0 {
		// yuan to 100 millions
		resp.TotalTradingAmount = round2(floats.Sum(v) / 1e8)
	}
	resp.AvgPremiumRate = columnMean(rows, "conv_prem")
	resp.AvgBondPremiumRate = columnMean(rows, "bond_prem")
	resp.AvgYTM = columnMean(rows, "ytm")
	writeData(w, resp)
}

func (s *Server) handleDistributionData(w http.ResponseWriter, r *http.Request) {
	day, rows, err := s.resolveDay(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, distributionResponse{
		Date:     models.FormatDate(day),
		Premium:  histogram(columnValues(rows, "conv_prem"), premiumBuckets),
		YTM:      histogram(columnValues(rows, "ytm"), ytmBuckets),
		Duration: histogram(columnValues(rows, "left_years"), durationBuckets),
	})
}

// handleRankingData returns the top and bottom ?limit bonds for each
// headline field. Rows with a null field are left out of that list.
func (s *Server) handleRankingData(w http.ResponseWriter, r *http.Request) {
	limit := defaultRankingLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, fmt.Errorf("%w: limit must be a positive integer", models.ErrInvalidConfig))
			return
		}
		if n > maxRankingLimit {
			n = maxRankingLimit
		}
		limit = n
	}

	day, rows, err := s.resolveDay(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, rankingResponse{
		Date:         models.FormatDate(day),
		DoubleLowTop: rankBy(rows, "dblow", false, limit),
		HighYTM:      rankBy(rows, "ytm", true, limit),
		LowYTM:       rankBy(rows, "ytm", false, limit),
		HighPremium:  rankBy(rows, "conv_prem", true, limit),
		LowPremium:   rankBy(rows, "conv_prem", false, limit),
		TopGainers:   rankBy(rows, "pct_chg", true, limit),
		TopLosers:    rankBy(rows, "pct_chg", false, limit),
		MostActive:   rankBy(rows, "amount", true, limit),
	})
}

func columnValues(rows []dataset.Row, field string) []float64 {
	out := make([]float64, 0, len(rows))
	for _, row := range rows {
		if v, ok := row.Value(field); ok {
			out = append(out, v)
		}
	}
	return out
}

func columnMean(rows []dataset.Row, field string) *float64 {
	v := columnValues(rows, field)
	if len(v) == 0 {
		return nil
	}
	return round2(stat.Mean(v, nil))
}

func round2(v float64) *float64 {
	r := math.Round(v*100) / 100
	return &r
}

func histogram(values []float64, buckets []bucket) []bucketCount {
	out := make([]bucketCount, len(buckets))
	for i, b := range buckets {
		out[i].Label = b.label
	}
	for _, v := range values {
		for i, b := range buckets {
			if v >= b.lo && v < b.hi {
				out[i].Count++
				break
			}
		}
	}
	return out
}

// rankBy orders rows on field, keeping load order for ties.
func rankBy(rows []dataset.Row, field string, descending bool, limit int) []bondSummary {
	ranked := make([]dataset.Row, 0, len(rows))
	for _, row := range rows {
		if _, ok := row.Value(field); ok {
			ranked = append(ranked, row)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, _ := ranked[i].Value(field)
		b, _ := ranked[j].Value(field)
		if descending {
			return a > b
		}
		return a < b
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]bondSummary, len(ranked))
	for i, row := range ranked {
		out[i] = summarize(row)
	}
	return out
}

func summarize(row dataset.Row) bondSummary {
	field := func(name string) *float64 {
		v, ok := row.Value(name)
		if !ok {
			return nil
		}
		return &v
	}
	return bondSummary{
		Code:        row.Code,
		Name:        row.Name,
		Close:       field("close"),
		PctChg:      field("pct_chg"),
		Volume:      field("vol"),
		Amount:      field("amount"),
		ConvPrice:   field("conv_price"),
		ConvValue:   field("conv_value"),
		ConvPrem:    field("conv_prem"),
		YTM:         field("ytm"),
		RemainSize:  field("remain_size"),
		Turnover:    field("turnover"),
		DoubleLow:   field("dblow"),
		StockPrice:  field("close_stk"),
		StockPctChg: field("pct_chg_stk"),
	}
}
