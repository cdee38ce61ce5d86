// Package boltstore is an embedded, single-file meal store for local runs
// and tests. Every compare-and-set runs inside one bbolt read-write
// transaction, which bbolt serializes.
package boltstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/kylejryan/meal-ingestion-pipeline/internal/models"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/store"
)

var (
	// records keyed by meal id
	bucketMeals = []byte("meals")
	// input file key -> meal id
	bucketInputKeys = []byte("input_keys")
	// owner \x00 createdAt \x00 id -> meal id; fixed-width timestamps make
	// a cursor seek a day-window range scan.
	bucketOwnerCreated = []byte("owner_created")
)

// record is the persisted shape; unlike models.MealRecord it keeps every field.
type record struct {
	ID           string            `json:"id"`
	OwnerID      string            `json:"owner_id"`
	InputFileKey string            `json:"input_file_key"`
	InputType    models.InputType  `json:"input_type"`
	Status       models.Status     `json:"status"`
	Name         string            `json:"name"`
	Icon         string            `json:"icon"`
	Foods        []models.FoodItem `json:"foods"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func fromModel(m models.MealRecord) record {
	return record(m)
}

func (r record) toModel() models.MealRecord {
	m := models.MealRecord(r)
	if m.Foods == nil {
		m.Foods = []models.FoodItem{}
	}
	return m
}

// Store implements store.Store on a bbolt file.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) the database file at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open boltdb: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketMeals, bucketInputKeys, bucketOwnerCreated} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database file.
func (s *Store) Close() error { return s.db.Close() }

func ownerKey(ownerID string, createdAt time.Time, id string) []byte {
	return []byte(ownerID + "\x00" + models.FormatTime(createdAt) + "\x00" + id)
}

func getRecord(b *bolt.Bucket, id string) (record, bool, error) {
	raw := b.Get([]byte(id))
	if raw == nil {
		return record{}, false, nil
	}
	var r record
	if err := json.Unmarshal(raw, &r); err != nil {
		return record{}, false, fmt.Errorf("decode meal %s: %w", id, err)
	}
	return r, true, nil
}

func putRecord(b *bolt.Bucket, r record) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return b.Put([]byte(r.ID), raw)
}

// Create inserts m and its index entries.
func (s *Store) Create(ctx context.Context, m models.MealRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r := fromModel(m)
	r.CreatedAt = store.Truncate(r.CreatedAt)
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		meals := tx.Bucket(bucketMeals)
		keys := tx.Bucket(bucketInputKeys)
		if meals.Get([]byte(r.ID)) != nil || keys.Get([]byte(r.InputFileKey)) != nil {
			return store.ErrDuplicateKey
		}
		if err := putRecord(meals, r); err != nil {
			return err
		}
		if err := keys.Put([]byte(r.InputFileKey), []byte(r.ID)); err != nil {
			return err
		}
		return tx.Bucket(bucketOwnerCreated).Put(ownerKey(r.OwnerID, r.CreatedAt, r.ID), []byte(r.ID))
	})
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

// GetByID returns the record if it belongs to ownerID.
func (s *Store) GetByID(ctx context.Context, id, ownerID string) (models.MealRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.MealRecord{}, err
	}
	var out models.MealRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		r, ok, err := getRecord(tx.Bucket(bucketMeals), id)
		if err != nil {
			return err
		}
		if !ok || r.OwnerID != ownerID {
			return store.ErrNotFound
		}
		out = r.toModel()
		return nil
	})
	return out, err
}

// ListByOwnerAndDay range-scans the owner index over the day window.
func (s *Store) ListByOwnerAndDay(ctx context.Context, ownerID string, day time.Time) ([]models.MealRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	from, to := store.DayWindow(day)
	lower := []byte(ownerID + "\x00" + models.FormatTime(from))
	upper := []byte(ownerID + "\x00" + models.FormatTime(to) + "\x01")

	out := []models.MealRecord{}
	err := s.db.View(func(tx *bolt.Tx) error {
		meals := tx.Bucket(bucketMeals)
		c := tx.Bucket(bucketOwnerCreated).Cursor()
		for k, v := c.Seek(lower); k != nil && bytes.Compare(k, upper) < 0; k, v = c.Next() {
			r, ok, err := getRecord(meals, string(v))
			if err != nil {
				return err
			}
			if ok && r.Status == models.StatusSuccess {
				out = append(out, r.toModel())
			}
		}
		return nil
	})
	return out, err
}

// FindByInputKey resolves key through the input key index.
func (s *Store) FindByInputKey(ctx context.Context, key string) (models.MealRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.MealRecord{}, err
	}
	var out models.MealRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketInputKeys).Get([]byte(key))
		if id == nil {
			return store.ErrNotFound
		}
		r, ok, err := getRecord(tx.Bucket(bucketMeals), string(id))
		if err != nil {
			return err
		}
		if !ok {
			return store.ErrNotFound
		}
		out = r.toModel()
		return nil
	})
	return out, err
}

var errPrecondition = errors.New("precondition failed")

// CompareAndSetStatus reads, checks and writes within a single transaction.
func (s *Store) CompareAndSetStatus(ctx context.Context, id string, expected []models.Status, next models.Status, out *store.Outcome) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		meals := tx.Bucket(bucketMeals)
		r, ok, err := getRecord(meals, id)
		if err != nil {
			return err
		}
		if !ok {
			return errPrecondition
		}
		m := r.toModel()
		if !store.Apply(&m, expected, next, out, store.Truncate(s.now())) {
			return errPrecondition
		}
		return putRecord(meals, fromModel(m))
	})
	if errors.Is(err, errPrecondition) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListStale walks every record; fine for the sizes a local file holds.
func (s *Store) ListStale(ctx context.Context, status models.Status, olderThan time.Time, limit int) ([]models.MealRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []models.MealRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeals).ForEach(func(_, v []byte) error {
			if limit > 0 && len(out) >= limit {
				return nil
			}
			var r record
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if r.Status == status && r.UpdatedAt.Before(olderThan) {
				out = append(out, r.toModel())
			}
			return nil
		})
	})
	return out, err
}
