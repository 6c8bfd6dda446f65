package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/factor-backtest/internal/backtest"
	"github.com/yourusername/factor-backtest/internal/datacache"
	"github.com/yourusername/factor-backtest/internal/logger"
	"github.com/yourusername/factor-backtest/internal/metrics"
	"github.com/yourusername/factor-backtest/internal/models"
	"github.com/yourusername/factor-backtest/internal/repository"
)

// Publisher receives every finished sweep.
type Publisher interface {
	PublishSweep(result *backtest.SweepResult)
}

// SweepJob runs the single-factor sweep over a shared cache.
type SweepJob struct {
	Cache       *datacache.Cache
	Configs     []backtest.RunConfig
	Concurrency int
	OutputDir   string
	Publisher   Publisher
	Repo        repository.BacktestResultRepository
	Logger      *logrus.Logger
}

// Name implements Job.
func (j *SweepJob) Name() string {
	return "factor_sweep"
}

// Run implements Job. Partial results of an interrupted sweep are neither
// published nor persisted.
func (j *SweepJob) Run(ctx context.Context) error {
	log := logger.OrDefault(j.Logger)
	result, err := backtest.RunSweep(ctx, j.Cache, j.Configs, j.Concurrency, log)
	if err != nil {
		metrics.RecordSweepRun("schedule", "failure")
		return err
	}
	metrics.RecordSweepRun("schedule", "success")

	if j.OutputDir != "" {
		name := fmt.Sprintf("sweep_%s.csv", result.StartedAt.Format("20060102T150405"))
		if err := backtest.WriteSweepCSV(filepath.Join(j.OutputDir, name), result); err != nil {
			log.WithError(err).Warn("Failed to write sweep summary")
		}
	}
	if j.Publisher != nil {
		j.Publisher.PublishSweep(result)
	}
	if j.Repo != nil {
		saved := j.persist(ctx, result, log)
		log.WithFields(logrus.Fields{"saved": saved, "entries": len(result.Entries)}).Info("Sweep results persisted")
	}
	return nil
}

// persist saves every entry in one batch and returns how many were saved.
func (j *SweepJob) persist(ctx context.Context, result *backtest.SweepResult, log *logrus.Logger) int {
	records := make([]*models.BacktestResult, 0, len(result.Entries))
	for _, e := range result.Entries {
		extra := struct {
			CompositeScore float64   `json:"composite_score"`
			Recommendation string    `json:"recommendation"`
			SweepStartedAt time.Time `json:"sweep_started_at"`
		}{e.CompositeScore, e.Recommendation, result.StartedAt}

		record, err := backtest.NewBacktestResult(uuid.New(), backtest.MethodSweep, e.Analytics, e.Config, extra)
		if err != nil {
			log.WithField("strategy_name", e.Config.StrategyName).WithError(err).Error("Failed to encode sweep result")
			continue
		}
		records = append(records, record)
	}
	if err := j.Repo.SaveResults(ctx, records); err != nil {
		log.WithError(err).Error("Failed to persist sweep results")
		return 0
	}
	return len(records)
}
