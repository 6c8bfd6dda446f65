// Package scheduler runs the single-factor sweep on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/factor-backtest/internal/logger"
)

// Job is one schedulable unit of work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler manages scheduled jobs. A job still running when its next tick
// arrives skips that tick.
type Scheduler struct {
	cron       *cron.Cron
	logger     *logrus.Entry
	mu         sync.RWMutex
	isRunning  bool
	jobIDs     []cron.EntryID
	jobTimeout time.Duration
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewScheduler creates a new scheduler. Each job run is bounded by
// jobTimeout; zero means no bound.
func NewScheduler(log *logrus.Logger, jobTimeout time.Duration) *Scheduler {
	entry := logger.OrDefault(log).WithField("component", "scheduler")
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(entry))),
		),
		logger:     entry,
		jobIDs:     make([]cron.EntryID, 0),
		jobTimeout: jobTimeout,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Schedule registers job under a standard five-field cron expression.
func (s *Scheduler) Schedule(cronExpression string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cannot schedule job while scheduler is running")
	}

	entryID, err := s.cron.AddFunc(cronExpression, func() { s.runJob(job) })
	if err != nil {
		return fmt.Errorf("failed to add job: %w", err)
	}

	s.jobIDs = append(s.jobIDs, entryID)
	s.logger.WithFields(logrus.Fields{
		"job":      job.Name(),
		"schedule": cronExpression,
	}).Info("Job scheduled")
	return nil
}

func (s *Scheduler) runJob(job Job) {
	ctx := s.ctx
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.jobTimeout)
		defer cancel()
	}

	started := time.Now()
	s.logger.WithField("job", job.Name()).Info("Job started")
	if err := job.Run(ctx); err != nil {
		s.logger.WithField("job", job.Name()).WithError(err).Error("Job failed")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"job":         job.Name(),
		"duration_ms": time.Since(started).Milliseconds(),
	}).Info("Job completed")
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}
	if len(s.jobIDs) == 0 {
		return fmt.Errorf("no jobs scheduled")
	}

	s.cron.Start()
	s.isRunning = true
	s.logger.WithField("jobs", len(s.jobIDs)).Info("Scheduler started")
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	s.cancel()
	<-s.cron.Stop().Done()
	s.isRunning = false
	s.logger.Info("Scheduler stopped")
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// NextRun returns the time of the next scheduled job run, or zero when the
// scheduler is stopped.
func (s *Scheduler) NextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning || len(s.jobIDs) == 0 {
		return time.Time{}
	}

	nextRun := time.Time{}
	for _, jobID := range s.jobIDs {
		entry := s.cron.Entry(jobID)
		if entry.Valid() {
			if nextRun.IsZero() || entry.Next.Before(nextRun) {
				nextRun = entry.Next
			}
		}
	}
	return nextRun
}
