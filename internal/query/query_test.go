package query

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kylejryan/meal-ingestion-pipeline/internal/models"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/store"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/store/boltstore"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/store/storetest"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/validate"
)

func setup(t *testing.T) (*Service, *boltstore.Store) {
	t.Helper()
	s, err := boltstore.Open(filepath.Join(t.TempDir(), "meals.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return &Service{Store: s}, s
}

func create(t *testing.T, s store.Store, owner string, at time.Time, final models.Status) models.MealRecord {
	t.Helper()
	ctx := context.Background()
	m := storetest.NewMeal(owner, at)
	_, err := s.Create(ctx, m)
	require.NoError(t, err)
	if final == models.StatusUploading {
		return m
	}
	ok, err := s.CompareAndSetStatus(ctx, m.ID, []models.Status{models.StatusUploading}, models.StatusProcessing, nil)
	require.NoError(t, err)
	require.True(t, ok)
	if final == models.StatusProcessing {
		return m
	}
	var out *store.Outcome
	if final == models.StatusSuccess {
		out = &store.Outcome{Name: "Salad", Icon: "🥗", Foods: []models.FoodItem{{Name: "Lettuce", Quantity: 50, Unit: "g", Calories: 8}}}
	}
	ok, err = s.CompareAndSetStatus(ctx, m.ID, []models.Status{models.StatusProcessing}, final, out)
	require.NoError(t, err)
	require.True(t, ok)
	return m
}

func TestListByDay(t *testing.T) {
	svc, s := setup(t)
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	in1 := create(t, s, "user-1", day, models.StatusSuccess)
	in2 := create(t, s, "user-1", time.Date(2024, 3, 5, 23, 59, 59, 999_000_000, time.UTC), models.StatusSuccess)
	create(t, s, "user-1", day.Add(-time.Millisecond), models.StatusSuccess)
	create(t, s, "user-1", day.Add(24*time.Hour), models.StatusSuccess)
	create(t, s, "user-1", day.Add(time.Hour), models.StatusFailed)
	create(t, s, "user-1", day.Add(2*time.Hour), models.StatusProcessing)
	create(t, s, "user-1", day.Add(3*time.Hour), models.StatusUploading)
	create(t, s, "user-2", day.Add(4*time.Hour), models.StatusSuccess)

	meals, err := svc.ListByDay(context.Background(), "user-1", "2024-03-05")
	require.NoError(t, err)
	require.Len(t, meals, 2)
	assert.Equal(t, in1.ID, meals[0].ID)
	assert.Equal(t, in2.ID, meals[1].ID)
	for _, m := range meals {
		assert.Equal(t, models.StatusSuccess, m.Status)
		assert.NotEmpty(t, m.Foods)
	}

	empty, err := svc.ListByDay(context.Background(), "user-1", "2024-03-07")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	_, err = svc.ListByDay(context.Background(), "user-1", "05-03-2024")
	assert.True(t, validate.IsValidation(err))
}

func TestGet(t *testing.T) {
	svc, s := setup(t)
	m := create(t, s, "user-1", time.Now(), models.StatusProcessing)

	got, err := svc.Get(context.Background(), "user-1", m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, got.Status, "non-terminal meals are pollable")

	_, err = svc.Get(context.Background(), "user-2", m.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.Get(context.Background(), "user-1", "abc")
	assert.True(t, validate.IsValidation(err))

	_, err = svc.Get(context.Background(), "", m.ID)
	assert.True(t, validate.IsValidation(err))
}
