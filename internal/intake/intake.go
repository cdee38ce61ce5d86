// Package intake creates meal records and the upload credentials that go
// with them.
package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kylejryan/meal-ingestion-pipeline/internal/models"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/objstore"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/store"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/validate"
)

// ErrCredential wraps a failure to sign the upload URL. The record created
// before it stays behind in uploading.
var ErrCredential = errors.New("issue upload credential")

// ValidationError is returned for a blank owner or a content type outside
// the whitelist.
type ValidationError = validate.Error

// Intent is what the client needs to upload.
type Intent struct {
	MealID      string
	FileKey     string
	UploadURL   string
	ExpiresIn   time.Duration
	ContentType string
}

// Issuer creates records in uploading and signs their upload URLs.
type Issuer struct {
	Store   store.Store
	Storage objstore.Storage
	TTL     time.Duration
	Log     logrus.FieldLogger

	NewID func() string
	Now   func() time.Time
}

// CreateIntent validates the request, persists the record and only then
// signs a PUT for exactly its key.
func (i *Issuer) CreateIntent(ctx context.Context, ownerID, contentType string) (Intent, error) {
	if err := validate.OwnerID(ownerID); err != nil {
		return Intent{}, err
	}
	up, err := validate.ContentType(contentType)
	if err != nil {
		return Intent{}, err
	}

	id := i.newID()
	now := store.Truncate(i.now())
	m := models.MealRecord{
		ID:           id,
		OwnerID:      ownerID,
		InputFileKey: objstore.BuildKey(id, up.Ext),
		InputType:    up.InputType,
		Status:       models.StatusUploading,
		Foods:        []models.FoodItem{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := i.Store.Create(ctx, m); err != nil {
		return Intent{}, fmt.Errorf("create meal: %w", err)
	}

	url, err := i.Storage.PresignPut(ctx, m.InputFileKey, up.ContentType, i.TTL)
	if err != nil {
		i.Log.WithError(err).WithField("meal_id", id).Warn("record left in uploading without an upload url")
		return Intent{}, fmt.Errorf("%w: %w", ErrCredential, err)
	}

	i.Log.WithFields(logrus.Fields{"meal_id": id, "file_key": m.InputFileKey, "input_type": up.InputType}).Info("upload intent issued")
	return Intent{
		MealID:      id,
		FileKey:     m.InputFileKey,
		UploadURL:   url,
		ExpiresIn:   i.TTL,
		ContentType: up.ContentType,
	}, nil
}

func (i *Issuer) newID() string {
	if i.NewID != nil {
		return i.NewID()
	}
	return uuid.NewString()
}

func (i *Issuer) now() time.Time {
	if i.Now != nil {
		return i.Now()
	}
	return time.Now()
}
