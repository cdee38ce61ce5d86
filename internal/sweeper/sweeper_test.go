package sweeper

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kylejryan/meal-ingestion-pipeline/internal/metrics"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/models"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/store/boltstore"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/store/storetest"
)

func TestSweep(t *testing.T) {
	s, err := boltstore.Open(filepath.Join(t.TempDir(), "meals.db"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	stuck := storetest.NewMeal("user-1", time.Now())
	fresh := storetest.NewMeal("user-1", time.Now())
	waiting := storetest.NewMeal("user-1", time.Now())
	for _, m := range []models.MealRecord{stuck, fresh, waiting} {
		_, err := s.Create(ctx, m)
		require.NoError(t, err)
	}
	for _, m := range []models.MealRecord{stuck, fresh} {
		ok, err := s.CompareAndSetStatus(ctx, m.ID, []models.Status{models.StatusUploading}, models.StatusProcessing, nil)
		require.NoError(t, err)
		require.True(t, ok)
	}

	log, hook := test.NewNullLogger()
	sw := &Sweeper{Store: s, StaleAfter: 15 * time.Minute, Log: log}

	// An hour from now only the two processing records are stale.
	sw.now = func() time.Time { return time.Now().Add(time.Hour) }
	n, err := sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, hook.AllEntries(), 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.StaleMeals))

	sw.now = time.Now
	n, err = sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, testutil.ToFloat64(metrics.StaleMeals))

	got, err := s.GetByID(ctx, stuck.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, got.Status, "detection only")
}

func TestSchedule(t *testing.T) {
	log, _ := test.NewNullLogger()
	c := NewCron(log)
	sw := &Sweeper{Log: log}
	require.NoError(t, sw.Schedule(c, "@every 5m", time.Minute))
	assert.Len(t, c.Entries(), 1)
	assert.Error(t, sw.Schedule(c, "not a schedule", time.Minute))
}
