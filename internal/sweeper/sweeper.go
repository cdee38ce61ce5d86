// Package sweeper periodically reports meals stuck in processing. It only
// detects them; moving a record on is left to redelivery or an operator.
package sweeper

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/kylejryan/meal-ingestion-pipeline/internal/metrics"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/models"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/store"
)

// DefaultLimit caps how many stale records one sweep lists.
const DefaultLimit = 500

// Sweeper lists records in processing whose last transition is older than
// StaleAfter.
type Sweeper struct {
	Store      store.Store
	StaleAfter time.Duration
	Limit      int
	Log        logrus.FieldLogger

	now func() time.Time
}

// Sweep runs one scan, logs every stale record and updates the gauge.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	limit := s.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	stale, err := s.Store.ListStale(ctx, models.StatusProcessing, now().Add(-s.StaleAfter), limit)
	if err != nil {
		return 0, err
	}
	for _, m := range stale {
		s.Log.WithFields(logrus.Fields{
			"meal_id":    m.ID,
			"file_key":   m.InputFileKey,
			"updated_at": models.FormatTime(m.UpdatedAt),
		}).Warn("meal stuck in processing")
	}
	metrics.StaleMeals.Set(float64(len(stale)))
	return len(stale), nil
}

// NewCron returns a scheduler that recovers panicking jobs and skips a run
// while the previous one is still going.
func NewCron(log logrus.FieldLogger) *cron.Cron {
	l := cron.PrintfLogger(log)
	return cron.New(cron.WithLogger(l), cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)))
}

// Schedule registers Sweep on c under spec (e.g. "@every 5m"). Each run is
// bounded by timeout.
func (s *Sweeper) Schedule(c *cron.Cron, spec string, timeout time.Duration) error {
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			s.Log.WithError(err).Error("stale meal sweep")
		}
	})
	return err
}
