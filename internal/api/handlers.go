package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/yourusername/factor-backtest/internal/backtest"
	"github.com/yourusername/factor-backtest/internal/dataset"
	"github.com/yourusername/factor-backtest/internal/models"
	"github.com/yourusername/factor-backtest/internal/ranking"
)

const (
	maxRequestBody     = 1 << 20
	defaultResultLimit = 20
	maxResultLimit     = 200
)

type tradingDatesResponse struct {
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
	AllDates  []string `json:"all_dates"`
	TotalDays int      `json:"total_days"`
}

type dailyDataResponse struct {
	CurrentDate string                   `json:"current_date"`
	Rows        []map[string]interface{} `json:"rows"`
}

type factorsResponse struct {
	Factors   []ranking.Factor   `json:"factors"`
	Operators []ranking.Operator `json:"operators"`
}

type portfolioStateResponse struct {
	TotalAssets float64                    `json:"total_assets"`
	Cash        float64                    `json:"cash"`
	Positions   map[string]models.Position `json:"positions"`
	Timestamp   string                     `json:"timestamp"`
}

type runResponse struct {
	ID              string                    `json:"id"`
	Performance     backtest.Summary          `json:"performance"`
	Trades          []models.TradeRecord      `json:"trades"`
	Daily           []backtest.DailyReportRow `json:"daily"`
	PortfolioValues []float64                 `json:"portfolio_values"`
	Dates           []string                  `json:"dates"`
	PortfolioState  portfolioStateResponse    `json:"portfolio_state"`
	ExecutionTime   float64                   `json:"execution_time"`
}

type runSummaryResponse struct {
	ID        string           `json:"id"`
	CreatedAt time.Time        `json:"created_at"`
	Summary   backtest.Summary `json:"performance"`
}

type sweepResponse struct {
	*backtest.SweepResult
	Stats backtest.SweepStats `json:"stats"`
}

func (s *Server) handleTradingDates(w http.ResponseWriter, r *http.Request) {
	days := s.cache.TradingDays(time.Time{}, time.Time{})
	if len(days) == 0 {
		writeError(w, models.ErrDataNotFound)
		return
	}
	resp := tradingDatesResponse{
		StartDate: models.FormatDate(days[0]),
		EndDate:   models.FormatDate(days[len(days)-1]),
		AllDates:  formatDates(days),
		TotalDays: len(days),
	}
	writeData(w, resp)
}

// resolveDay picks the latest trading day not after ?date, defaulting to the
// last trading day, and returns its rows.
func (s *Server) resolveDay(r *http.Request) (time.Time, []dataset.Row, error) {
	var requested time.Time
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := models.ParseDate(raw)
		if err != nil {
			return time.Time{}, nil, err
		}
		requested = d
	} else {
		_, last, ok := s.cache.Bounds()
		if !ok {
			return time.Time{}, nil, models.ErrDataNotFound
		}
		requested = last
	}

	day, err := s.cache.OnOrBefore(requested)
	if err != nil {
		return time.Time{}, nil, err
	}
	rows, err := s.cache.DailyData(day)
	if err != nil {
		return time.Time{}, nil, err
	}
	return day, rows, nil
}

func (s *Server) handleDailyData(w http.ResponseWriter, r *http.Request) {
	day, rows, err := s.resolveDay(r)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		out[i] = rowJSON(row)
	}
	writeData(w, dailyDataResponse{CurrentDate: models.FormatDate(day), Rows: out})
}

func (s *Server) handleFactors(w http.ResponseWriter, r *http.Request) {
	writeData(w, factorsResponse{
		Factors:   ranking.Available(ranking.DefaultCatalog, s.cache.Frame().HasColumn),
		Operators: ranking.Operators,
	})
}

func (s *Server) handleRunBacktest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", models.ErrInvalidConfig, err))
		return
	}
	cfg, err := backtest.DecodeRunConfig(body)
	if err != nil {
		writeError(w, err)
		return
	}

	started := time.Now()
	engine, err := backtest.NewEngine(s.cache, cfg, s.logger)
	if err != nil {
		writeError(w, err)
		return
	}
	state, analytics, err := engine.Run(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	run := &StoredRun{
		ID:        engine.RunID(),
		Config:    cfg,
		State:     state,
		Analytics: analytics,
	}
	s.store.Put(run)
	s.log.LogRunStored(run.ID, cfg.StrategyName, s.store.Count())
	s.persist(r.Context(), run)

	summary := backtest.NewSummary(analytics, cfg)
	s.hub.Broadcast(Event{Type: EventRunCompleted, RunID: run.ID, Data: summary})

	writeJSON(w, http.StatusOK, runResponse{
		ID:              run.ID,
		Performance:     summary,
		Trades:          nonNilTrades(state.Trades()),
		Daily:           state.DailyReport(),
		PortfolioValues: state.Values(),
		Dates:           formatDates(state.Dates()),
		PortfolioState:  portfolioState(state.Latest()),
		ExecutionTime:   time.Since(started).Seconds(),
	})
}

// persist saves the run when a repository is configured. Failures are
// logged and do not fail the request.
func (s *Server) persist(ctx context.Context, run *StoredRun) {
	if s.repo == nil {
		return
	}
	id, err := uuid.Parse(run.ID)
	if err != nil {
		id = uuid.New()
	}
	result, err := backtest.NewBacktestResult(id, backtest.MethodSingle, run.Analytics, run.Config, nil)
	if err == nil {
		err = s.repo.SaveResult(ctx, result)
	}
	if err != nil {
		s.log.LogPersistFailed(run.ID, err)
	}
}

func (s *Server) storedRun(w http.ResponseWriter, r *http.Request) (*StoredRun, bool) {
	run, err := s.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return run, true
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.storedRun(w, r)
	if !ok {
		return
	}
	writeData(w, runSummaryResponse{
		ID:        run.ID,
		CreatedAt: run.CreatedAt,
		Summary:   backtest.NewSummary(run.Analytics, run.Config),
	})
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	run, ok := s.storedRun(w, r)
	if !ok {
		return
	}
	writeData(w, nonNilTrades(run.State.Trades()))
}

func (s *Server) handleGetDaily(w http.ResponseWriter, r *http.Request) {
	run, ok := s.storedRun(w, r)
	if !ok {
		return
	}
	writeData(w, run.State.DailyReport())
}

func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	run, ok := s.storedRun(w, r)
	if !ok {
		return
	}
	writeData(w, portfolioState(run.State.Latest()))
}

func (s *Server) handleLatestSweep(w http.ResponseWriter, r *http.Request) {
	result, ok := s.store.LatestSweep()
	if !ok {
		writeJSON(w, http.StatusNotFound, envelope{Status: "error", Message: "no sweep has completed yet"})
		return
	}
	writeData(w, sweepResponse{SweepResult: result, Stats: result.Stats()})
}

// handleListResults lists persisted results, newest first, optionally for
// one ?strategy.
func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, envelope{Status: "error", Message: "persistence is not configured"})
		return
	}
	limit := defaultResultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, fmt.Errorf("%w: limit must be a positive integer", models.ErrInvalidConfig))
			return
		}
		if n > maxResultLimit {
			n = maxResultLimit
		}
		limit = n
	}

	var (
		results []*models.BacktestResult
		err     error
	)
	if name := r.URL.Query().Get("strategy"); name != "" {
		results, err = s.repo.GetByStrategy(r.Context(), name, limit)
	} else {
		results, err = s.repo.GetLatest(r.Context(), limit)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if results == nil {
		results = []*models.BacktestResult{}
	}
	writeData(w, results)
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, envelope{Status: "error", Message: "persistence is not configured"})
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", models.ErrNotFound, err))
		return
	}
	result, err := s.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			writeError(w, fmt.Errorf("%w: %s", models.ErrNotFound, id))
			return
		}
		writeError(w, err)
		return
	}
	writeData(w, result)
}

func rowJSON(row dataset.Row) map[string]interface{} {
	out := make(map[string]interface{}, len(row.Values)+3)
	for k := range row.Values {
		if v, ok := row.Value(k); ok {
			out[k] = v
		} else {
			out[k] = nil
		}
	}
	out["code"] = row.Code
	out["name"] = row.Name
	out["trade_date"] = models.FormatDate(row.Date)
	return out
}

func portfolioState(p models.PortfolioState) portfolioStateResponse {
	positions := p.Positions
	if positions == nil {
		positions = map[string]models.Position{}
	}
	resp := portfolioStateResponse{
		TotalAssets: p.TotalAssets,
		Cash:        p.Cash,
		Positions:   positions,
	}
	if !p.Timestamp.IsZero() {
		resp.Timestamp = models.FormatDate(p.Timestamp)
	}
	return resp
}

func formatDates(days []time.Time) []string {
	out := make([]string, len(days))
	for i, d := range days {
		out[i] = models.FormatDate(d)
	}
	return out
}

func nonNilTrades(trades []models.TradeRecord) []models.TradeRecord {
	if trades == nil {
		return []models.TradeRecord{}
	}
	return trades
}
