// Package pg is the PostgreSQL meal store used by the long-running
// deployment. It is built on GORM; a conditional UPDATE with a status
// predicate implements compare-and-set.
package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kylejryan/meal-ingestion-pipeline/internal/models"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/store"
)

// mealRow is the meals table.
type mealRow struct {
	ID           string         `gorm:"type:uuid;primaryKey"`
	OwnerID      string         `gorm:"type:varchar(255);not null;index:idx_owner_created,priority:1"`
	InputFileKey string         `gorm:"type:varchar(255);not null;uniqueIndex"`
	InputType    string         `gorm:"type:varchar(16);not null"`
	Status       string         `gorm:"type:varchar(16);not null;index:idx_status_updated,priority:1"`
	Name         string         `gorm:"type:text"`
	Icon         string         `gorm:"type:varchar(32)"`
	Foods        datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time      `gorm:"not null;index:idx_owner_created,priority:2"`
	UpdatedAt    time.Time      `gorm:"not null;index:idx_status_updated,priority:2"`
}

func (mealRow) TableName() string { return "meals" }

func fromModel(m models.MealRecord) (mealRow, error) {
	foods := m.Foods
	if foods == nil {
		foods = []models.FoodItem{}
	}
	raw, err := json.Marshal(foods)
	if err != nil {
		return mealRow{}, err
	}
	created := store.Truncate(m.CreatedAt)
	updated := created
	if !m.UpdatedAt.IsZero() {
		updated = store.Truncate(m.UpdatedAt)
	}
	return mealRow{
		ID:           m.ID,
		OwnerID:      m.OwnerID,
		InputFileKey: m.InputFileKey,
		InputType:    string(m.InputType),
		Status:       string(m.Status),
		Name:         m.Name,
		Icon:         m.Icon,
		Foods:        datatypes.JSON(raw),
		CreatedAt:    created,
		UpdatedAt:    updated,
	}, nil
}

func (r mealRow) toModel() (models.MealRecord, error) {
	if !models.Status(r.Status).Valid() {
		return models.MealRecord{}, fmt.Errorf("meal %s has unknown status %q", r.ID, r.Status)
	}
	foods := []models.FoodItem{}
	if len(r.Foods) > 0 {
		if err := json.Unmarshal(r.Foods, &foods); err != nil {
			return models.MealRecord{}, fmt.Errorf("decode foods of meal %s: %w", r.ID, err)
		}
	}
	return models.MealRecord{
		ID:           r.ID,
		OwnerID:      r.OwnerID,
		InputFileKey: r.InputFileKey,
		InputType:    models.InputType(r.InputType),
		Status:       models.Status(r.Status),
		Name:         r.Name,
		Icon:         r.Icon,
		Foods:        foods,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}, nil
}

// Store implements store.Store on a GORM connection.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open connects to dsn and migrates the meals table.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return store.Truncate(time.Now()) },
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return New(db)
}

// New wraps an open connection and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&mealRow{}); err != nil {
		return nil, fmt.Errorf("migrate meals: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Create inserts m; unique violations on id or input key map to
// store.ErrDuplicateKey.
func (s *Store) Create(ctx context.Context, m models.MealRecord) (string, error) {
	row, err := fromModel(m)
	if err != nil {
		return "", err
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return "", store.ErrDuplicateKey
		}
		return "", fmt.Errorf("insert meal %s: %w", m.ID, err)
	}
	return row.ID, nil
}

// GetByID returns the meal if it belongs to ownerID.
func (s *Store) GetByID(ctx context.Context, id, ownerID string) (models.MealRecord, error) {
	return s.first(ctx, "id = ? AND owner_id = ?", id, ownerID)
}

// FindByInputKey resolves an object key to its meal.
func (s *Store) FindByInputKey(ctx context.Context, key string) (models.MealRecord, error) {
	return s.first(ctx, "input_file_key = ?", key)
}

func (s *Store) first(ctx context.Context, query string, args ...any) (models.MealRecord, error) {
	var row mealRow
	err := s.db.WithContext(ctx).Where(query, args...).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.MealRecord{}, store.ErrNotFound
	}
	if err != nil {
		return models.MealRecord{}, err
	}
	return row.toModel()
}

// ListByOwnerAndDay returns the owner's success meals of the UTC day.
func (s *Store) ListByOwnerAndDay(ctx context.Context, ownerID string, day time.Time) ([]models.MealRecord, error) {
	from, to := store.DayWindow(day)
	var rows []mealRow
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND status = ? AND created_at BETWEEN ? AND ?", ownerID, string(models.StatusSuccess), from, to).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toModels(rows)
}

// ListStale returns meals stuck in status since before olderThan.
func (s *Store) ListStale(ctx context.Context, status models.Status, olderThan time.Time, limit int) ([]models.MealRecord, error) {
	q := s.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", string(status), olderThan.UTC()).
		Order("updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []mealRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return toModels(rows)
}

// CompareAndSetStatus runs UPDATE ... WHERE id = ? AND status IN (...);
// the transition applied iff exactly one row changed. Illegal transitions
// fail the precondition without a query.
func (s *Store) CompareAndSetStatus(ctx context.Context, id string, expected []models.Status, next models.Status, out *store.Outcome) (bool, error) {
	if !store.Legal(expected, next, out) {
		return false, nil
	}
	statuses := make([]string, len(expected))
	for i, st := range expected {
		statuses[i] = string(st)
	}
	updates, err := changes(next, out, store.Truncate(s.now()))
	if err != nil {
		return false, err
	}
	res := s.update(ctx, id, statuses, updates)
	if res.Error != nil {
		return false, fmt.Errorf("update meal %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// update is the conditional UPDATE behind CompareAndSetStatus.
func (s *Store) update(ctx context.Context, id string, statuses []string, updates map[string]any) *gorm.DB {
	return s.db.WithContext(ctx).Model(&mealRow{}).
		Where("id = ? AND status IN ?", id, statuses).
		Updates(updates)
}

// changes builds the column map for a transition. A map keeps empty
// strings, which struct updates would skip.
func changes(next models.Status, out *store.Outcome, now time.Time) (map[string]any, error) {
	updates := map[string]any{
		"status":     string(next),
		"updated_at": now,
	}
	if out != nil {
		foods := out.Foods
		if foods == nil {
			foods = []models.FoodItem{}
		}
		raw, err := json.Marshal(foods)
		if err != nil {
			return nil, err
		}
		updates["name"] = out.Name
		updates["icon"] = out.Icon
		updates["foods"] = datatypes.JSON(raw)
	}
	return updates, nil
}

func toModels(rows []mealRow) ([]models.MealRecord, error) {
	out := make([]models.MealRecord, 0, len(rows))
	for _, r := range rows {
		m, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
