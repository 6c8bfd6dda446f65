package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/factor-backtest/internal/datacache"
	"github.com/yourusername/factor-backtest/internal/models"
)

// WalkForwardConfig configures rolling-window evaluation. Windows are
// measured in trading days.
type WalkForwardConfig struct {
	WindowDays  int
	StepDays    int
	Concurrency int
}

// WalkForwardWindow represents one evaluated window
type WalkForwardWindow struct {
	WindowID  int       `json:"window_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Analytics Analytics `json:"performance"`
}

// WalkForwardResult aggregates every window
type WalkForwardResult struct {
	Windows          []WalkForwardWindow `json:"windows"`
	MeanReturn       float64             `json:"mean_return"`
	MeanSharpe       float64             `json:"mean_sharpe"`
	MeanDrawdown     float64             `json:"mean_drawdown"`
	ConsistencyScore float64             `json:"consistency_score"`
	Recommendation   string              `json:"recommendation"`
}

// RunWalkForward splits the configured range into rolling windows and runs an
// independent backtest in each.
func RunWalkForward(ctx context.Context, cache *datacache.Cache, cfg RunConfig, wf WalkForwardConfig, log *logrus.Logger) (WalkForwardResult, error) {
	if cache == nil {
		return WalkForwardResult{}, fmt.Errorf("data cache is required")
	}
	if wf.WindowDays <= 0 {
		return WalkForwardResult{}, fmt.Errorf("%w: window_days must be positive", models.ErrInvalidConfig)
	}
	if wf.StepDays <= 0 {
		wf.StepDays = wf.WindowDays
	}
	if wf.Concurrency <= 0 {
		wf.Concurrency = 1
	}

	days := cache.TradingDays(cfg.StartDate, cfg.EndDate)
	bounds := windowBounds(days, wf.WindowDays, wf.StepDays)
	if len(bounds) == 0 {
		return WalkForwardResult{}, fmt.Errorf("%w: %d trading days cannot fill a %d day window",
			models.ErrInvalidConfig, len(days), wf.WindowDays)
	}

	windows := make([]WalkForwardWindow, len(bounds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(wf.Concurrency)
	for i, b := range bounds {
		i, b := i, b
		g.Go(func() error {
			windowCfg := cfg.Window(b[0], b[1])
			windowCfg.StrategyName = fmt.Sprintf("%s_wf%d", cfg.StrategyName, i+1)
			engine, err := NewEngine(cache, windowCfg, log)
			if err != nil {
				return err
			}
			_, analytics, err := engine.WithMethod(MethodWalkForward).Run(gctx)
			if err != nil {
				return fmt.Errorf("window %d: %w", i+1, err)
			}
			windows[i] = WalkForwardWindow{WindowID: i + 1, Start: b[0], End: b[1], Analytics: analytics}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return WalkForwardResult{}, err
	}

	result := WalkForwardResult{Windows: windows}
	for _, w := range windows {
		result.MeanReturn += w.Analytics.TotalReturn
		result.MeanSharpe += w.Analytics.SharpeRatio
		result.MeanDrawdown += w.Analytics.MaxDrawdown
	}
	n := float64(len(windows))
	result.MeanReturn /= n
	result.MeanSharpe /= n
	result.MeanDrawdown /= n
	result.ConsistencyScore = CalculateConsistency(windows)
	result.Recommendation = walkForwardRecommendation(result)
	return result, nil
}

// windowBounds returns [first, last] trading days of each full window.
func windowBounds(days []time.Time, size, step int) [][2]time.Time {
	var out [][2]time.Time
	for start := 0; start+size <= len(days); start += step {
		out = append(out, [2]time.Time{days[start], days[start+size-1]})
	}
	return out
}

// CalculateConsistency calculates the share of windows with a positive return
func CalculateConsistency(windows []WalkForwardWindow) float64 {
	if len(windows) == 0 {
		return 0
	}
	profitable := 0
	for _, w := range windows {
		if w.Analytics.TotalReturn > 0 {
			profitable++
		}
	}
	return float64(profitable) / float64(len(windows))
}

func walkForwardRecommendation(r WalkForwardResult) string {
	if r.ConsistencyScore < 0.4 || r.MeanReturn < 0 {
		return RecommendationReject
	}
	if r.ConsistencyScore > 0.6 && r.MeanReturn > 0 {
		return RecommendationAccept
	}
	return RecommendationNeedsReview
}

// ToJSON exports the walk-forward result
func (w WalkForwardResult) ToJSON() string {
	data, _ := json.Marshal(w)
	return string(data)
}
