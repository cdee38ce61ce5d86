// Package validate checks client-supplied values at the API boundary.
package validate

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kylejryan/meal-ingestion-pipeline/internal/models"
)

// Error is a rejected input. Handlers map it to 400.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string { return e.Field + ": " + e.Reason }

// IsValidation reports whether err is (or wraps) an *Error.
func IsValidation(err error) bool {
	var v *Error
	return errors.As(err, &v)
}

// Upload describes an accepted upload content type.
type Upload struct {
	ContentType string
	InputType   models.InputType
	Ext         string
}

// uploads is the content type whitelist. Keys are lower case.
var uploads = map[string]Upload{
	"audio/m4a":    {ContentType: "audio/m4a", InputType: models.InputAudio, Ext: "m4a"},
	"picture/jpeg": {ContentType: "picture/jpeg", InputType: models.InputPicture, Ext: "jpeg"},
}

// ContentType matches ct (trimmed, case insensitive) against the whitelist.
func ContentType(ct string) (Upload, error) {
	u, ok := uploads[strings.ToLower(strings.TrimSpace(ct))]
	if !ok {
		return Upload{}, &Error{Field: "fileType", Reason: "must be one of audio/m4a, picture/jpeg"}
	}
	return u, nil
}

// MealID checks that id is a canonical uuid.
func MealID(id string) error {
	if _, err := uuid.Parse(id); err != nil || len(id) != 36 {
		return &Error{Field: "mealId", Reason: "must be a uuid"}
	}
	return nil
}

// DateLayout is the accepted day format.
const DateLayout = "2006-01-02"

// Date parses a YYYY-MM-DD day as UTC midnight.
func Date(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, &Error{Field: "date", Reason: "must be YYYY-MM-DD"}
	}
	return d, nil
}

// OwnerID checks that an authenticated subject is present.
func OwnerID(sub string) error {
	if strings.TrimSpace(sub) == "" {
		return &Error{Field: "owner", Reason: "required"}
	}
	return nil
}
