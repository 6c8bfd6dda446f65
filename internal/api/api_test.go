package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/factor-backtest/internal/backtest"
	"github.com/yourusername/factor-backtest/internal/config"
	"github.com/yourusername/factor-backtest/internal/datacache"
	"github.com/yourusername/factor-backtest/internal/dataset"
	"github.com/yourusername/factor-backtest/internal/models"
)

type fakeRepo struct {
	mu      sync.Mutex
	results []*models.BacktestResult
	err     error
}

func (f *fakeRepo) SaveResult(ctx context.Context, result *models.BacktestResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.results = append(f.results, result)
	return nil
}

func (f *fakeRepo) SaveResults(ctx context.Context, results []*models.BacktestResult) error {
	for _, r := range results {
		if err := f.SaveResult(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.BacktestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.results {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeRepo) GetByStrategy(ctx context.Context, name string, limit int) ([]*models.BacktestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.BacktestResult
	for _, r := range f.results {
		if r.StrategyName == name && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetLatest(ctx context.Context, limit int) ([]*models.BacktestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.results) < limit {
		limit = len(f.results)
	}
	return f.results[:limit], nil
}

func date(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func row(d int, code string, price, score float64) dataset.Row {
	return dataset.Row{
		Code:   code,
		Name:   "bond " + code,
		Date:   date(d),
		Values: map[string]float64{"close": price, "score": score},
	}
}

func newTestServer(t *testing.T, repo *fakeRepo) *Server {
	t.Helper()
	return newServerFor(t, repo, []string{"code", "name", "trade_date", "close", "score"}, []dataset.Row{
		row(2, "A", 100, 1), row(2, "B", 100, 2),
		row(3, "A", 110, 2), row(3, "B", 100, 1),
		row(5, "A", 120, 2), row(5, "B", 105, 1),
	})
}

func newServerFor(t *testing.T, repo *fakeRepo, columns []string, rows []dataset.Row) *Server {
	t.Helper()
	log, _ := test.NewNullLogger()
	frame, err := dataset.NewFrame(columns, rows)
	require.NoError(t, err)
	cache, err := datacache.New(frame, log)
	require.NoError(t, err)

	cfg := Config{
		Cache:  cache,
		Logger: log,
		Server: config.ServerConfig{
			Address:               ":0",
			RunTTLMinutes:         5,
			RequestTimeoutSeconds: 5,
		},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
	if repo != nil {
		cfg.Repo = repo
	}
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func data(t *testing.T, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	require.Equal(t, "success", body["status"])
	out, ok := body["data"].(map[string]interface{})
	require.True(t, ok, "data is not an object: %v", body["data"])
	return out
}

const runBody = `{"strategy_name":"low_score","top_n":1,"initial_capital":1000,"indicators":["score"],"weights":[-1]}`

func TestNewRequiresCache(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestTradingDates(t *testing.T) {
	s := newTestServer(t, nil)

	rec, body := do(t, s, http.MethodGet, "/api/trading-dates", "")
	require.Equal(t, http.StatusOK, rec.Code)
	d := data(t, body)
	assert.Equal(t, "2024-01-02", d["start_date"])
	assert.Equal(t, "2024-01-05", d["end_date"])
	assert.Equal(t, float64(3), d["total_days"])
	assert.Equal(t, []interface{}{"2024-01-02", "2024-01-03", "2024-01-05"}, d["all_dates"])
}

func TestDailyData(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name    string
		query   string
		status  int
		current string
	}{
		{"exact day", "?date=2024-01-03", http.StatusOK, "2024-01-03"},
		{"gap uses earlier day", "?date=2024-01-04", http.StatusOK, "2024-01-03"},
		{"before range uses first day", "?date=2023-12-01", http.StatusOK, "2024-01-02"},
		{"after range uses last day", "?date=2025-01-01", http.StatusOK, "2024-01-05"},
		{"default is last day", "", http.StatusOK, "2024-01-05"},
		{"invalid date", "?date=01/03/2024", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, s, http.MethodGet, "/api/daily-data"+tt.query, "")
			require.Equal(t, tt.status, rec.Code)
			if tt.status != http.StatusOK {
				assert.Equal(t, "error", body["status"])
				return
			}
			d := data(t, body)
			assert.Equal(t, tt.current, d["current_date"])
			rows := d["rows"].([]interface{})
			require.Len(t, rows, 2)
			first := rows[0].(map[string]interface{})
			assert.Equal(t, tt.current, first["trade_date"])
			assert.Contains(t, first, "close")
		})
	}
}

func TestFactors(t *testing.T) {
	s := newTestServer(t, nil)

	rec, body := do(t, s, http.MethodGet, "/api/factors", "")
	require.Equal(t, http.StatusOK, rec.Code)
	d := data(t, body)

	factors := d["factors"].([]interface{})
	require.Len(t, factors, 1)
	assert.Equal(t, "close", factors[0].(map[string]interface{})["id"])
	assert.Len(t, d["operators"], 6)
}

var marketColumns = []string{"code", "name", "trade_date", "close", "pct_chg", "amount",
	"conv_prem", "bond_prem", "ytm", "left_years", "remain_size", "dblow"}

func bond(d int, code string, values map[string]float64) dataset.Row {
	return dataset.Row{Code: code, Name: "bond " + code, Date: date(d), Values: values}
}

func newMarketServer(t *testing.T) *Server {
	t.Helper()
	return newServerFor(t, nil, marketColumns, []dataset.Row{
		bond(2, "A", map[string]float64{"close": 100, "pct_chg": 1.5, "amount": 2e8, "conv_prem": -5,
			"bond_prem": 10, "ytm": 2.5, "left_years": 0.5, "remain_size": 300, "dblow": 95}),
		bond(2, "B", map[string]float64{"close": 120, "pct_chg": -2, "amount": 1e8, "conv_prem": 35,
			"bond_prem": 20, "left_years": 3, "remain_size": 100, "dblow": 155}),
		bond(2, "C", map[string]float64{"close": 130, "pct_chg": 0.5, "amount": 5e8, "conv_prem": 120,
			"bond_prem": 30, "ytm": -1, "left_years": 6, "remain_size": 200, "dblow": 250}),
		bond(4, "A", map[string]float64{"close": 101, "pct_chg": 1, "amount": 1e8, "conv_prem": 0}),
	})
}

func bucketCounts(t *testing.T, raw interface{}) map[string]float64 {
	t.Helper()
	out := map[string]float64{}
	for _, b := range raw.([]interface{}) {
		entry := b.(map[string]interface{})
		out[entry["label"].(string)] = entry["count"].(float64)
	}
	return out
}

func codes(raw interface{}) []string {
	var out []string
	for _, b := range raw.([]interface{}) {
		out = append(out, b.(map[string]interface{})["code"].(string))
	}
	return out
}

func TestMarketOverview(t *testing.T) {
	s := newMarketServer(t)

	rec, body := do(t, s, http.MethodGet, "/api/market-overview?date=2024-01-03", "")
	require.Equal(t, http.StatusOK, rec.Code)
	d := data(t, body)
	assert.Equal(t, "2024-01-02", d["date"])
	assert.Equal(t, float64(3), d["total_bonds"])
	assert.InDelta(t, 6.0, d["total_market_value"], 1e-9)
	assert.InDelta(t, 8.0, d["total_trading_amount"], 1e-9)
	assert.InDelta(t, 50.0, d["avg_premium_rate"], 1e-9)
	assert.InDelta(t, 20.0, d["avg_bond_premium_rate"], 1e-9)
	assert.InDelta(t, 0.75, d["avg_ytm"], 1e-9)

	// last day has no ytm or remain_size at all
	rec, body = do(t, s, http.MethodGet, "/api/market-overview", "")
	require.Equal(t, http.StatusOK, rec.Code)
	d = data(t, body)
	assert.Equal(t, "2024-01-04", d["date"])
	assert.Equal(t, float64(1), d["total_bonds"])
	assert.Nil(t, d["avg_ytm"])
	assert.Nil(t, d["total_market_value"])

	rec, _ = do(t, s, http.MethodGet, "/api/market-overview?date=bad", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDistributionData(t *testing.T) {
	s := newMarketServer(t)

	rec, body := do(t, s, http.MethodGet, "/api/distribution-data?date=2024-01-02", "")
	require.Equal(t, http.StatusOK, rec.Code)
	d := data(t, body)
	assert.Equal(t, "2024-01-02", d["date"])

	premium := d["premium_distribution"].([]interface{})
	require.Len(t, premium, 8)
	assert.Equal(t, "<0", premium[0].(map[string]interface{})["label"])
	assert.Equal(t, map[string]float64{"<0": 1, "0-10": 0, "10-20": 0, "20-30": 0, "30-40": 1,
		"40-50": 0, "50-100": 0, "100+": 1}, bucketCounts(t, premium))

	ytm := bucketCounts(t, d["ytm_distribution"])
	assert.Equal(t, float64(1), ytm["<0"])
	assert.Equal(t, float64(1), ytm["2-3"])
	var total float64
	for _, c := range ytm {
		total += c
	}
	assert.Equal(t, float64(2), total, "null ytm is not counted")

	duration := bucketCounts(t, d["duration_distribution"])
	assert.Equal(t, float64(1), duration["<1"])
	assert.Equal(t, float64(1), duration["3-4"])
	assert.Equal(t, float64(1), duration["5+"])
}

func TestRankingData(t *testing.T) {
	s := newMarketServer(t)

	rec, body := do(t, s, http.MethodGet, "/api/ranking-data?date=2024-01-03&limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	d := data(t, body)
	assert.Equal(t, "2024-01-02", d["date"])
	assert.Equal(t, []string{"A", "B"}, codes(d["double_low_top"]))
	assert.Equal(t, []string{"A", "C"}, codes(d["top_gainers"]))
	assert.Equal(t, []string{"B", "C"}, codes(d["top_losers"]))
	assert.Equal(t, []string{"A", "C"}, codes(d["high_ytm"]))
	assert.Equal(t, []string{"C", "A"}, codes(d["low_ytm"]))
	assert.Equal(t, []string{"C", "B"}, codes(d["high_premium"]))
	assert.Equal(t, []string{"C", "A"}, codes(d["most_active"]))

	first := d["double_low_top"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "bond A", first["name"])
	assert.Equal(t, 95.0, first["dblow"])
	assert.Nil(t, first["stock_price"])

	for _, query := range []string{"?limit=0", "?limit=abc", "?date=2024/01/02"} {
		rec, _ := do(t, s, http.MethodGet, "/api/ranking-data"+query, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestFieldInfo(t *testing.T) {
	s := newMarketServer(t)

	rec, body := do(t, s, http.MethodGet, "/api/field-info", "")
	require.Equal(t, http.StatusOK, rec.Code)
	d := data(t, body)

	groups := d["groups"].([]interface{})
	require.Len(t, groups, 6)
	loaded := map[string]bool{}
	for _, g := range groups {
		for _, f := range g.(map[string]interface{})["fields"].([]interface{}) {
			field := f.(map[string]interface{})
			loaded[field["name"].(string)] = field["loaded"].(bool)
		}
	}
	assert.True(t, loaded["dblow"])
	assert.True(t, loaded["close"])
	assert.False(t, loaded["rating"])
	assert.Contains(t, d["columns"], "conv_prem")
}

func TestRunBacktestAndDetails(t *testing.T) {
	repo := &fakeRepo{}
	s := newTestServer(t, repo)

	rec, body := do(t, s, http.MethodPost, "/api/backtest", runBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	id, _ := body["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, []interface{}{"2024-01-02", "2024-01-03", "2024-01-05"}, body["dates"])
	assert.Len(t, body["portfolio_values"], 3)
	assert.Len(t, body["daily"], 3)
	assert.NotEmpty(t, body["trades"])
	perf := body["performance"].(map[string]interface{})
	assert.Equal(t, "low_score", perf["strategy_name"])
	state := body["portfolio_state"].(map[string]interface{})
	assert.Equal(t, "2024-01-05", state["timestamp"])

	require.Len(t, repo.results, 1)
	assert.Equal(t, id, repo.results[0].ID.String())
	assert.Equal(t, 1, s.Store().Count())

	for _, path := range []string{"", "/trades", "/daily", "/portfolio"} {
		rec, body := do(t, s, http.MethodGet, "/api/backtest/"+id+path, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "success", body["status"], path)
	}

	rec, _ = do(t, s, http.MethodGet, "/api/backtest/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunBacktestPersistFailureStillSucceeds(t *testing.T) {
	s := newTestServer(t, &fakeRepo{err: errors.New("db down")})

	rec, _ := do(t, s, http.MethodPost, "/api/backtest", runBody)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRunBacktestErrors(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed", `{"indicators":`, http.StatusBadRequest},
		{"unknown key", `{"indicators":["score"],"weights":[-1],"leverage":2}`, http.StatusBadRequest},
		{"missing indicator", `{"indicators":["ytm"],"weights":[1]}`, http.StatusBadRequest},
		{"bad operator", `{"indicators":["score"],"weights":[-1],"filters":{"close":["~",1]}}`, http.StatusBadRequest},
		{"empty range", `{"start_date":"2030-01-01","indicators":["score"],"weights":[-1]}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, s, http.MethodPost, "/api/backtest", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "error", body["status"])
			assert.NotEmpty(t, body["message"])
		})
	}
	assert.Equal(t, 0, s.Store().Count())
}

func TestLatestSweep(t *testing.T) {
	s := newTestServer(t, nil)

	rec, _ := do(t, s, http.MethodGet, "/api/sweep/latest", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s.PublishSweep(&backtest.SweepResult{Entries: []backtest.SweepEntry{{
		Config:    backtest.RunConfig{StrategyName: "single_close"},
		Analytics: backtest.Analytics{AnnualizedReturn: 0.1},
	}}})

	rec, body := do(t, s, http.MethodGet, "/api/sweep/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	d := data(t, body)
	stats := d["stats"].(map[string]interface{})
	assert.Equal(t, "single_close", stats["best"])
	assert.Len(t, d["entries"], 1)
	assert.Equal(t, 0, s.Store().Count())
}

func TestResults(t *testing.T) {
	s := newTestServer(t, nil)
	rec, _ := do(t, s, http.MethodGet, "/api/results", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	repo := &fakeRepo{}
	s = newTestServer(t, repo)
	rec, _ = do(t, s, http.MethodPost, "/api/backtest", runBody)
	require.Equal(t, http.StatusOK, rec.Code)
	id := repo.results[0].ID

	rec, body := do(t, s, http.MethodGet, "/api/results?strategy=low_score&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["data"], 1)

	rec, _ = do(t, s, http.MethodGet, "/api/results?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = do(t, s, http.MethodGet, "/api/results/"+id.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "low_score", data(t, body)["strategy_name"])

	rec, _ = do(t, s, http.MethodGet, "/api/results/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = do(t, s, http.MethodGet, "/api/results/not-a-uuid", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	s := newTestServer(t, nil)

	rec, _ := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body := do(t, s, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "ok", body["checks"].(map[string]interface{})["data_cache"])

	rec, _ = do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "factor_backtest_")
}

func TestWebsocketReceivesRunCompleted(t *testing.T) {
	s := newTestServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.Hub().ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	resp, err := http.Post(ts.URL+"/api/backtest", "application/json", bytes.NewBufferString(runBody))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventRunCompleted, ev.Type)
	assert.NotEmpty(t, ev.RunID)

	s.Hub().Close()
	assert.Equal(t, 0, s.Hub().ClientCount())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("wrap: %w", models.ErrInvalidConfig), http.StatusBadRequest},
		{&models.MissingColumnError{Column: "ytm"}, http.StatusBadRequest},
		{&models.InvalidFilterOperatorError{Field: "close", Operator: "~"}, http.StatusBadRequest},
		{models.ErrInvalidDateFormat, http.StatusBadRequest},
		{models.ErrDataNotFound, http.StatusNotFound},
		{models.ErrRunNotFound, http.StatusNotFound},
		{models.ErrNoBacktestData, http.StatusUnprocessableEntity},
		{fmt.Errorf("aborted: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, statusFor(tt.err), tt.err.Error())
	}
}

func TestRunStore(t *testing.T) {
	store := NewRunStore(time.Minute)

	id := store.Put(&StoredRun{Config: backtest.RunConfig{StrategyName: "x"}})
	require.NotEmpty(t, id)
	run, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "x", run.Config.StrategyName)
	assert.False(t, run.CreatedAt.IsZero())

	_, err = store.Get("missing")
	assert.True(t, errors.Is(err, models.ErrRunNotFound))

	_, ok := store.LatestSweep()
	assert.False(t, ok)
	store.PutSweep(&backtest.SweepResult{})
	_, ok = store.LatestSweep()
	assert.True(t, ok)
	assert.Equal(t, 1, store.Count())
}
