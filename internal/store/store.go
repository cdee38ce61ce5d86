// Package store defines the durable record store for meals and the
// compare-and-set primitive every status transition goes through.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/kylejryan/meal-ingestion-pipeline/internal/models"
)

var (
	// ErrNotFound is returned when no record matches, including when the
	// record exists but belongs to another owner.
	ErrNotFound = errors.New("meal not found")
	// ErrDuplicateKey is returned by Create when the id or input key is taken.
	ErrDuplicateKey = errors.New("meal already exists")
)

// Outcome carries the descriptive fields written together with a terminal
// status. A nil *Outcome leaves them untouched.
type Outcome struct {
	Name  string
	Icon  string
	Foods []models.FoodItem
}

// Store is the contract shared by every backend.
type Store interface {
	// Create persists a new record and returns its id.
	Create(ctx context.Context, m models.MealRecord) (string, error)
	// GetByID returns the record with id if it belongs to ownerID.
	GetByID(ctx context.Context, id, ownerID string) (models.MealRecord, error)
	// ListByOwnerAndDay returns the owner's success records created within
	// the UTC day containing day, oldest first.
	ListByOwnerAndDay(ctx context.Context, ownerID string, day time.Time) ([]models.MealRecord, error)
	// FindByInputKey resolves an object key to its record.
	FindByInputKey(ctx context.Context, key string) (models.MealRecord, error)
	// CompareAndSetStatus sets next (and out, when non-nil) only if the
	// current status is in expected and the move is Legal. A failed
	// precondition returns false with a nil error.
	CompareAndSetStatus(ctx context.Context, id string, expected []models.Status, next models.Status, out *Outcome) (bool, error)
	// ListStale returns up to limit records in status whose last transition
	// happened before olderThan.
	ListStale(ctx context.Context, status models.Status, olderThan time.Time, limit int) ([]models.MealRecord, error)
}

// DayWindow returns the inclusive [00:00:00.000, 23:59:59.999] UTC bounds
// of the day containing t.
func DayWindow(t time.Time) (from, to time.Time) {
	t = t.UTC()
	from = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	to = from.Add(24*time.Hour - time.Millisecond)
	return from, to
}

// Contains reports whether s is one of statuses.
func Contains(statuses []models.Status, s models.Status) bool {
	for _, x := range statuses {
		if x == s {
			return true
		}
	}
	return false
}

// Legal reports whether a compare-and-set may be attempted at all: every
// expected status must be able to move to next, success needs a valid
// outcome and no other status carries one. Backends fail the precondition
// of an illegal request without touching the record.
func Legal(expected []models.Status, next models.Status, out *Outcome) bool {
	if len(expected) == 0 {
		return false
	}
	for _, s := range expected {
		if !s.CanTransitionTo(next) {
			return false
		}
	}
	if next == models.StatusSuccess {
		return out != nil && models.ValidateOutcome(out.Name, out.Icon, out.Foods) == nil
	}
	return out == nil
}

// Apply performs the in-memory half of a compare-and-set for backends that
// read, check and write inside one transaction. It reports whether the
// precondition held; m is modified only when it did.
func Apply(m *models.MealRecord, expected []models.Status, next models.Status, out *Outcome, now time.Time) bool {
	if !Legal(expected, next, out) || !Contains(expected, m.Status) {
		return false
	}
	m.Status = next
	m.UpdatedAt = now.UTC()
	if out != nil {
		m.Name = out.Name
		m.Icon = out.Icon
		m.Foods = append([]models.FoodItem(nil), out.Foods...)
	}
	return true
}

// Truncate normalizes a timestamp to the millisecond UTC precision every
// backend persists.
func Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
