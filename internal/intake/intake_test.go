package intake

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kylejryan/meal-ingestion-pipeline/internal/models"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/store"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/store/boltstore"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/validate"
)

type fakeStorage struct {
	key, contentType string
	ttl              time.Duration
	err              error
}

func (f *fakeStorage) PresignPut(_ context.Context, key, contentType string, ttl time.Duration) (string, error) {
	f.key, f.contentType, f.ttl = key, contentType, ttl
	if f.err != nil {
		return "", f.err
	}
	return "https://uploads.example/" + key + "?X-Amz-Signature=abc", nil
}

func (f *fakeStorage) PresignGet(context.Context, string, time.Duration) (string, error) {
	return "", errors.New("unused")
}

func (f *fakeStorage) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("unused")
}

type failingStore struct{ store.Store }

func (failingStore) Create(context.Context, models.MealRecord) (string, error) {
	return "", errors.New("table unavailable")
}

const fixedID = "0b6f3c1e-9c1a-4a55-9d57-1f1f0f7a2c11"

func newIssuer(t *testing.T, st store.Store, storage *fakeStorage) *Issuer {
	t.Helper()
	log, _ := test.NewNullLogger()
	return &Issuer{
		Store:   st,
		Storage: storage,
		TTL:     600 * time.Second,
		Log:     log,
		NewID:   func() string { return fixedID },
		Now:     func() time.Time { return time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC) },
	}
}

func openStore(t *testing.T) *boltstore.Store {
	t.Helper()
	s, err := boltstore.Open(filepath.Join(t.TempDir(), "meals.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateIntent_Picture(t *testing.T) {
	st := openStore(t)
	storage := &fakeStorage{}
	in, err := newIssuer(t, st, storage).CreateIntent(context.Background(), "user-1", "picture/jpeg")
	require.NoError(t, err)

	assert.Equal(t, fixedID, in.MealID)
	assert.Equal(t, fixedID+".jpeg", in.FileKey)
	assert.Contains(t, in.UploadURL, in.FileKey)
	assert.Equal(t, 600*time.Second, in.ExpiresIn)
	assert.Equal(t, fixedID+".jpeg", storage.key, "credential is bound to the record's key")
	assert.Equal(t, "picture/jpeg", storage.contentType)

	m, err := st.GetByID(context.Background(), fixedID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploading, m.Status)
	assert.Equal(t, models.InputPicture, m.InputType)
	assert.Empty(t, m.Foods)
	assert.Empty(t, m.Name)
}

func TestCreateIntent_AudioCaseInsensitive(t *testing.T) {
	st := openStore(t)
	storage := &fakeStorage{}
	in, err := newIssuer(t, st, storage).CreateIntent(context.Background(), "user-1", " AUDIO/M4A ")
	require.NoError(t, err)
	assert.Equal(t, fixedID+".m4a", in.FileKey)
	assert.Equal(t, "audio/m4a", storage.contentType)

	m, err := st.FindByInputKey(context.Background(), in.FileKey)
	require.NoError(t, err)
	assert.Equal(t, models.InputAudio, m.InputType)
}

func TestCreateIntent_Rejects(t *testing.T) {
	st := openStore(t)
	storage := &fakeStorage{}
	iss := newIssuer(t, st, storage)

	for _, tc := range []struct{ owner, ct string }{
		{"user-1", "video/mp4"},
		{"user-1", ""},
		{"", "picture/jpeg"},
	} {
		_, err := iss.CreateIntent(context.Background(), tc.owner, tc.ct)
		require.Error(t, err)
		assert.True(t, validate.IsValidation(err), "%q %q", tc.owner, tc.ct)
	}
	assert.Empty(t, storage.key, "no credential for rejected requests")
	_, err := st.FindByInputKey(context.Background(), fixedID+".jpeg")
	assert.ErrorIs(t, err, store.ErrNotFound, "no record for rejected requests")
}

func TestCreateIntent_StoreFailureIssuesNoCredential(t *testing.T) {
	storage := &fakeStorage{}
	_, err := newIssuer(t, failingStore{}, storage).CreateIntent(context.Background(), "user-1", "picture/jpeg")
	require.ErrorContains(t, err, "table unavailable")
	assert.False(t, validate.IsValidation(err))
	assert.Empty(t, storage.key)
}

func TestCreateIntent_CredentialFailureLeavesRecord(t *testing.T) {
	st := openStore(t)
	storage := &fakeStorage{err: errors.New("signer down")}
	_, err := newIssuer(t, st, storage).CreateIntent(context.Background(), "user-1", "picture/jpeg")
	require.ErrorIs(t, err, ErrCredential)
	assert.ErrorContains(t, err, "signer down")

	m, err := st.GetByID(context.Background(), fixedID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploading, m.Status)
}
