// Package query serves the owner-scoped read paths.
package query

import (
	"context"

	"github.com/kylejryan/meal-ingestion-pipeline/internal/models"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/store"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/validate"
)

// Service answers meal lookups for one owner at a time.
type Service struct {
	Store store.Store
}

// Get returns a meal in any status, for polling. Meals of other owners
// are reported as store.ErrNotFound.
func (s *Service) Get(ctx context.Context, ownerID, mealID string) (models.MealRecord, error) {
	if err := validate.OwnerID(ownerID); err != nil {
		return models.MealRecord{}, err
	}
	if err := validate.MealID(mealID); err != nil {
		return models.MealRecord{}, err
	}
	return s.Store.GetByID(ctx, mealID, ownerID)
}

// ListByDay returns the owner's successful meals created on date
// (YYYY-MM-DD, UTC).
func (s *Service) ListByDay(ctx context.Context, ownerID, date string) ([]models.MealRecord, error) {
	if err := validate.OwnerID(ownerID); err != nil {
		return nil, err
	}
	day, err := validate.Date(date)
	if err != nil {
		return nil, err
	}
	meals, err := s.Store.ListByOwnerAndDay(ctx, ownerID, day)
	if err != nil {
		return nil, err
	}
	if meals == nil {
		meals = []models.MealRecord{}
	}
	return meals, nil
}
