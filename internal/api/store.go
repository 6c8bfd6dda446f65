package api

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"

	"github.com/yourusername/factor-backtest/internal/backtest"
	"github.com/yourusername/factor-backtest/internal/metrics"
	"github.com/yourusername/factor-backtest/internal/models"
)

const latestSweepKey = "sweep:latest"

// StoredRun is a finished backtest kept for the detail endpoints.
type StoredRun struct {
	ID        string
	CreatedAt time.Time
	Config    backtest.RunConfig
	State     *backtest.BacktestState
	Analytics backtest.Analytics
}

// RunStore keeps finished runs in memory for ttl. The latest sweep never
// expires and is replaced by the next one.
type RunStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewRunStore creates a new run store
func NewRunStore(ttl time.Duration) *RunStore {
	s := &RunStore{
		cache: cache.New(ttl, ttl*2),
		ttl:   ttl,
	}
	s.cache.OnEvicted(func(string, interface{}) {
		metrics.UpdateStoredRuns(s.Count())
	})
	return s
}

// Put stores run, assigning an id when it has none, and returns the id.
func (s *RunStore) Put(run *StoredRun) string {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	s.cache.Set(runKey(run.ID), run, s.ttl)
	metrics.UpdateStoredRuns(s.Count())
	return run.ID
}

// Get returns a stored run or ErrRunNotFound.
func (s *RunStore) Get(id string) (*StoredRun, error) {
	if v, found := s.cache.Get(runKey(id)); found {
		if run, ok := v.(*StoredRun); ok {
			return run, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", models.ErrRunNotFound, id)
}

// Count returns the number of stored runs, the latest sweep excluded.
func (s *RunStore) Count() int {
	n := s.cache.ItemCount()
	if _, found := s.cache.Get(latestSweepKey); found {
		n--
	}
	return n
}

// PutSweep replaces the latest sweep result.
func (s *RunStore) PutSweep(result *backtest.SweepResult) {
	s.cache.Set(latestSweepKey, result, cache.NoExpiration)
}

// LatestSweep returns the most recent sweep, if any ran.
func (s *RunStore) LatestSweep() (*backtest.SweepResult, bool) {
	v, found := s.cache.Get(latestSweepKey)
	if !found {
		return nil, false
	}
	result, ok := v.(*backtest.SweepResult)
	return result, ok
}

func runKey(id string) string {
	return "run:" + id
}
