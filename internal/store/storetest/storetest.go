// Package storetest holds the behavioural suite every store.Store backend
// must pass.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kylejryan/meal-ingestion-pipeline/internal/models"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/store"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) store.Store

// NewMeal builds an uploading record for owner created at createdAt.
func NewMeal(owner string, createdAt time.Time) models.MealRecord {
	id := uuid.NewString()
	return models.MealRecord{
		ID:           id,
		OwnerID:      owner,
		InputFileKey: id + ".jpeg",
		InputType:    models.InputPicture,
		Status:       models.StatusUploading,
		Foods:        []models.FoodItem{},
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
}

var salad = store.Outcome{
	Name: "Salad",
	Icon: "🥗",
	Foods: []models.FoodItem{
		{Name: "Lettuce", Quantity: 50, Unit: "g", Calories: 8, Proteins: 1, Carbohydrates: 1.5, Fats: 0.1},
	},
}

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("DuplicateKey", func(t *testing.T) { testDuplicateKey(t, newStore(t)) })
	t.Run("FindByInputKey", func(t *testing.T) { testFindByInputKey(t, newStore(t)) })
	t.Run("CompareAndSet", func(t *testing.T) { testCompareAndSet(t, newStore(t)) })
	t.Run("IllegalTransitions", func(t *testing.T) { testIllegalTransitions(t, newStore(t)) })
	t.Run("CompareAndSetRace", func(t *testing.T) { testCompareAndSetRace(t, newStore(t)) })
	t.Run("ListByOwnerAndDay", func(t *testing.T) { testListByOwnerAndDay(t, newStore(t)) })
	t.Run("ListStale", func(t *testing.T) { testListStale(t, newStore(t)) })
}

func testCreateAndGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	m := NewMeal("owner-a", time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC))

	id, err := s.Create(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, m.ID, id)

	got, err := s.GetByID(ctx, id, "owner-a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploading, got.Status)
	assert.Equal(t, m.InputFileKey, got.InputFileKey)
	assert.Equal(t, models.InputPicture, got.InputType)
	assert.Empty(t, got.Foods)
	assert.True(t, got.CreatedAt.Equal(m.CreatedAt))

	_, err = s.GetByID(ctx, id, "owner-b")
	assert.ErrorIs(t, err, store.ErrNotFound, "other owners must not see the record")

	_, err = s.GetByID(ctx, uuid.NewString(), "owner-a")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDuplicateKey(t *testing.T, s store.Store) {
	ctx := context.Background()
	m := NewMeal("owner-a", time.Now())
	_, err := s.Create(ctx, m)
	require.NoError(t, err)

	again := NewMeal("owner-a", time.Now())
	again.InputFileKey = m.InputFileKey
	_, err = s.Create(ctx, again)
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

func testFindByInputKey(t *testing.T, s store.Store) {
	ctx := context.Background()
	m := NewMeal("owner-a", time.Now())
	_, err := s.Create(ctx, m)
	require.NoError(t, err)

	got, err := s.FindByInputKey(ctx, m.InputFileKey)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, "owner-a", got.OwnerID)

	_, err = s.FindByInputKey(ctx, "missing.jpeg")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testCompareAndSet(t *testing.T, s store.Store) {
	ctx := context.Background()
	m := NewMeal("owner-a", time.Now())
	_, err := s.Create(ctx, m)
	require.NoError(t, err)

	ok, err := s.CompareAndSetStatus(ctx, m.ID, []models.Status{models.StatusProcessing}, models.StatusSuccess, &salad)
	require.NoError(t, err)
	assert.False(t, ok, "uploading is not in {processing}")

	ok, err = s.CompareAndSetStatus(ctx, m.ID, []models.Status{models.StatusUploading, models.StatusProcessing}, models.StatusProcessing, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.CompareAndSetStatus(ctx, m.ID, []models.Status{models.StatusProcessing}, models.StatusSuccess, &salad)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetByID(ctx, m.ID, "owner-a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, got.Status)
	assert.Equal(t, "Salad", got.Name)
	assert.Equal(t, "🥗", got.Icon)
	assert.Equal(t, salad.Foods, got.Foods)

	// terminal records are frozen
	ok, err = s.CompareAndSetStatus(ctx, m.ID, []models.Status{models.StatusProcessing}, models.StatusFailed, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.CompareAndSetStatus(ctx, uuid.NewString(), []models.Status{models.StatusUploading}, models.StatusProcessing, nil)
	require.NoError(t, err)
	assert.False(t, ok, "unknown ids fail the precondition without an error")
}

func testIllegalTransitions(t *testing.T, s store.Store) {
	ctx := context.Background()
	m := NewMeal("owner-a", time.Now())
	_, err := s.Create(ctx, m)
	require.NoError(t, err)

	ok, err := s.CompareAndSetStatus(ctx, m.ID, []models.Status{models.StatusUploading}, models.StatusSuccess, &salad)
	require.NoError(t, err)
	assert.False(t, ok, "uploading cannot skip processing")

	ok, err = s.CompareAndSetStatus(ctx, m.ID, []models.Status{models.StatusUploading, models.StatusProcessing}, models.StatusProcessing, nil)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.CompareAndSetStatus(ctx, m.ID, []models.Status{models.StatusProcessing}, models.StatusSuccess, nil)
	require.NoError(t, err)
	assert.False(t, ok, "success without an outcome")

	ok, err = s.CompareAndSetStatus(ctx, m.ID, []models.Status{models.StatusProcessing}, models.StatusSuccess, &store.Outcome{Icon: "🥗"})
	require.NoError(t, err)
	assert.False(t, ok, "success with an empty outcome")

	got, err := s.GetByID(ctx, m.ID, "owner-a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, got.Status)
	assert.Empty(t, got.Foods)

	ok, err = s.CompareAndSetStatus(ctx, m.ID, []models.Status{models.StatusProcessing}, models.StatusSuccess, &salad)
	require.NoError(t, err)
	require.True(t, ok)

	for _, back := range []models.Status{models.StatusUploading, models.StatusProcessing, models.StatusFailed} {
		ok, err = s.CompareAndSetStatus(ctx, m.ID, []models.Status{models.StatusSuccess}, back, nil)
		require.NoError(t, err)
		assert.Falsef(t, ok, "success -> %s", back)
	}
	got, err = s.GetByID(ctx, m.ID, "owner-a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, got.Status)
	assert.Equal(t, salad.Foods, got.Foods)
}

func testCompareAndSetRace(t *testing.T, s store.Store) {
	ctx := context.Background()
	m := NewMeal("owner-a", time.Now())
	_, err := s.Create(ctx, m)
	require.NoError(t, err)

	const racers = 16
	race := func(expected []models.Status, next models.Status, out *store.Outcome) int {
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			applied int
		)
		wg.Add(racers)
		for i := 0; i < racers; i++ {
			go func() {
				defer wg.Done()
				ok, err := s.CompareAndSetStatus(ctx, m.ID, expected, next, out)
				assert.NoError(t, err)
				if ok {
					mu.Lock()
					applied++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		return applied
	}

	assert.Equal(t, 1, race([]models.Status{models.StatusUploading}, models.StatusProcessing, nil))

	var (
		wg              sync.WaitGroup
		mu              sync.Mutex
		success, failed int
	)
	wg.Add(2 * racers)
	for i := 0; i < racers; i++ {
		go func() {
			defer wg.Done()
			ok, err := s.CompareAndSetStatus(ctx, m.ID, []models.Status{models.StatusProcessing}, models.StatusSuccess, &salad)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
		go func() {
			defer wg.Done()
			ok, err := s.CompareAndSetStatus(ctx, m.ID, []models.Status{models.StatusProcessing}, models.StatusFailed, nil)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, success+failed, "exactly one terminal transition applies")

	got, err := s.GetByID(ctx, m.ID, "owner-a")
	require.NoError(t, err)
	if got.Status == models.StatusSuccess {
		assert.NotEmpty(t, got.Foods)
	} else {
		assert.Equal(t, models.StatusFailed, got.Status)
		assert.Empty(t, got.Foods)
		assert.Empty(t, got.Name)
	}
}

func testListByOwnerAndDay(t *testing.T, s store.Store) {
	ctx := context.Background()
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	create := func(owner string, at time.Time, succeed bool) models.MealRecord {
		m := NewMeal(owner, at)
		_, err := s.Create(ctx, m)
		require.NoError(t, err)
		if succeed {
			ok, err := s.CompareAndSetStatus(ctx, m.ID, []models.Status{models.StatusUploading}, models.StatusProcessing, nil)
			require.NoError(t, err)
			require.True(t, ok)
			ok, err = s.CompareAndSetStatus(ctx, m.ID, []models.Status{models.StatusProcessing}, models.StatusSuccess, &salad)
			require.NoError(t, err)
			require.True(t, ok)
		}
		return m
	}

	first := create("owner-a", day, true)
	last := create("owner-a", day.Add(24*time.Hour-time.Millisecond), true)
	create("owner-a", day.Add(-time.Millisecond), true) // previous day
	create("owner-a", day.Add(24*time.Hour), true)      // next day
	create("owner-a", day.Add(12*time.Hour), false)     // still uploading
	create("owner-b", day.Add(12*time.Hour), true)      // someone else
	create("owner-aa", day.Add(12*time.Hour), true)     // owner id prefix

	got, err := s.ListByOwnerAndDay(ctx, "owner-a", day.Add(15*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, last.ID, got[1].ID)
	for _, m := range got {
		assert.Equal(t, models.StatusSuccess, m.Status)
		assert.Equal(t, "owner-a", m.OwnerID)
	}

	empty, err := s.ListByOwnerAndDay(ctx, "owner-c", day)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testListStale(t *testing.T, s store.Store) {
	ctx := context.Background()
	old := NewMeal("owner-a", time.Now().Add(-2*time.Hour))
	_, err := s.Create(ctx, old)
	require.NoError(t, err)
	ok, err := s.CompareAndSetStatus(ctx, old.ID, []models.Status{models.StatusUploading}, models.StatusProcessing, nil)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := s.ListStale(ctx, models.StatusProcessing, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, old.ID, got[0].ID)

	got, err = s.ListStale(ctx, models.StatusProcessing, time.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}
