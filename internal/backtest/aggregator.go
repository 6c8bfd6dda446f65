package backtest

import "math"

// Recommendations attached to sweep and walk-forward results.
const (
	RecommendationAccept      = "ACCEPT"
	RecommendationReject      = "REJECT"
	RecommendationNeedsReview = "NEEDS_REVIEW"
)

// CalculateCompositeScore folds the headline analytics into a 0..1 score.
func CalculateCompositeScore(a Analytics) float64 {
	sharpeScore := normalize(a.SharpeRatio, -2, 3)
	returnScore := normalize(a.AnnualizedReturn, -0.5, 1.0)
	profitFactorScore := normalize(a.ProfitFactor, 0, 3)
	drawdownPenalty := 1.0 - normalize(a.MaxDrawdown, 0, 0.5)
	winRateScore := normalize(a.WinRate, 0, 1)

	weighted := 0.0
	weighted += sharpeScore * 0.30
	weighted += returnScore * 0.20
	weighted += profitFactorScore * 0.20
	weighted += drawdownPenalty * 0.15
	weighted += winRateScore * 0.15
	return weighted
}

// GenerateRecommendation determines if a factor configuration is acceptable
func GenerateRecommendation(score, annualizedReturn float64) string {
	if score > 0.7 && annualizedReturn > 0 {
		return RecommendationAccept
	}
	if score < 0.4 || annualizedReturn < 0 {
		return RecommendationReject
	}
	return RecommendationNeedsReview
}

func normalize(value, min, max float64) float64 {
	if max-min == 0 {
		return 0
	}
	v := (value - min) / (max - min)
	return math.Max(0, math.Min(1, v))
}
