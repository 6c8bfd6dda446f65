package backtest

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/yourusername/factor-backtest/internal/datacache"
	"github.com/yourusername/factor-backtest/internal/logger"
	"github.com/yourusername/factor-backtest/internal/ranking"
)

// SweepEntry is the outcome of one successful single-factor run.
type SweepEntry struct {
	Config         RunConfig `json:"config"`
	Analytics      Analytics `json:"performance"`
	CompositeScore float64   `json:"composite_score"`
	Recommendation string    `json:"recommendation"`
}

// SweepFailure records a configuration that could not be run.
type SweepFailure struct {
	StrategyName string `json:"strategy_name"`
	Error        string `json:"error"`
}

// SweepResult holds every entry of a sweep, best annualized return first.
type SweepResult struct {
	StartedAt time.Time      `json:"started_at"`
	Duration  float64        `json:"duration"`
	Entries   []SweepEntry   `json:"entries"`
	Failures  []SweepFailure `json:"failures"`
}

// SweepStats summarizes annualized returns across the sweep.
type SweepStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Median float64 `json:"median"`
	Best   string  `json:"best"`
}

// SweepConfigs builds one single-factor config per catalog factor, using the
// factor's default direction and the basic filters.
func SweepConfigs(catalog []ranking.Factor, base RunConfig) []RunConfig {
	configs := make([]RunConfig, 0, len(catalog))
	for _, f := range catalog {
		cfg := base
		cfg.StrategyName = "single_" + f.ID
		cfg.Indicators = []string{f.ID}
		cfg.Weights = []float64{f.Weight}
		cfg.Filters = ranking.BasicFilters()
		configs = append(configs, cfg)
	}
	return configs
}

// RunSweep runs every config against the shared cache with at most
// concurrency runs in flight. A failing config is recorded and the rest
// continue; only cancellation stops the sweep.
func RunSweep(ctx context.Context, cache *datacache.Cache, configs []RunConfig, concurrency int, log *logrus.Logger) (*SweepResult, error) {
	if cache == nil {
		return nil, fmt.Errorf("data cache is required")
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	log = logger.OrDefault(log)
	sweepLog := logger.NewSweepLogger(log)
	started := time.Now()
	sweepLog.LogSweepStarted(len(configs), concurrency)

	entries := make([]*SweepEntry, len(configs))
	failures := make([]error, len(configs))
	var done int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, cfg := range configs {
		i, cfg := i, cfg
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			engine, err := NewEngine(cache, cfg, log)
			if err != nil {
				failures[i] = err
				sweepLog.LogFactorFailed(cfg.StrategyName, err)
				return nil
			}
			_, analytics, err := engine.WithMethod(MethodSweep).Run(gctx)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failures[i] = err
				sweepLog.LogFactorFailed(cfg.StrategyName, err)
				return nil
			}
			score := CalculateCompositeScore(analytics)
			entries[i] = &SweepEntry{
				Config:         cfg,
				Analytics:      analytics,
				CompositeScore: score,
				Recommendation: GenerateRecommendation(score, analytics.AnnualizedReturn),
			}
			n := atomic.AddInt64(&done, 1)
			sweepLog.LogFactorCompleted(int(n), len(configs), cfg.StrategyName, analytics.AnnualizedReturn)
			return nil
		})
	}
	waitErr := g.Wait()

	result := &SweepResult{StartedAt: started.UTC()}
	for i, entry := range entries {
		if entry != nil {
			result.Entries = append(result.Entries, *entry)
		} else if failures[i] != nil {
			result.Failures = append(result.Failures, SweepFailure{
				StrategyName: configs[i].StrategyName,
				Error:        failures[i].Error(),
			})
		}
	}
	sort.SliceStable(result.Entries, func(a, b int) bool {
		return result.Entries[a].Analytics.AnnualizedReturn > result.Entries[b].Analytics.AnnualizedReturn
	})
	result.Duration = time.Since(started).Seconds()

	best := ""
	if len(result.Entries) > 0 {
		best = result.Entries[0].Config.StrategyName
	}
	sweepLog.LogSweepCompleted(len(result.Entries), len(result.Failures), best, time.Since(started))

	if waitErr != nil {
		return result, fmt.Errorf("sweep interrupted: %w", waitErr)
	}
	return result, nil
}

// Stats returns sample statistics of the entries' annualized returns.
func (r *SweepResult) Stats() SweepStats {
	s := SweepStats{Count: len(r.Entries)}
	if s.Count == 0 {
		return s
	}
	returns := make([]float64, s.Count)
	for i, e := range r.Entries {
		returns[i] = e.Analytics.AnnualizedReturn
	}
	s.Best = r.Entries[0].Config.StrategyName
	if s.Count > 1 {
		s.Mean, s.StdDev = stat.MeanStdDev(returns, nil)
	} else {
		s.Mean = returns[0]
	}
	sort.Float64s(returns)
	s.Median = stat.Quantile(0.5, stat.Empirical, returns, nil)
	return s
}

// WriteSweepCSV writes the ranked sweep summary.
func WriteSweepCSV(path string, result *SweepResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create sweep directory: %w", err)
	}

	rows := [][]string{{
		"rank", "strategy_name", "indicator", "weight", "annualized_return", "total_return",
		"max_drawdown", "sharpe_ratio", "win_rate", "total_trades", "composite_score", "recommendation",
	}}
	for i, e := range result.Entries {
		indicator, weight := "", ""
		if len(e.Config.Indicators) > 0 {
			indicator = e.Config.Indicators[0]
			weight = formatFloat(e.Config.Weights[0], 2)
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			e.Config.StrategyName,
			indicator,
			weight,
			formatFloat(e.Analytics.AnnualizedReturn, 6),
			formatFloat(e.Analytics.TotalReturn, 6),
			formatFloat(e.Analytics.MaxDrawdown, 6),
			formatFloat(e.Analytics.SharpeRatio, 4),
			formatFloat(e.Analytics.WinRate, 4),
			strconv.Itoa(e.Analytics.TotalTrades),
			formatFloat(e.CompositeScore, 4),
			e.Recommendation,
		})
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create sweep csv: %w", err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write sweep csv: %w", err)
	}
	return nil
}
