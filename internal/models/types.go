// Package models defines the data models used in the application.
package models

import (
	"errors"
	"fmt"
	"time"
)

// Status represents the processing state of a meal.
type Status string

// Possible values for Status
const (
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusUploading, StatusProcessing, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is a forward step of
// the uploading -> processing -> {success, failed} machine. Re-entering
// processing is allowed so a redelivered item can resume a crashed attempt.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusUploading:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusProcessing || next == StatusSuccess || next == StatusFailed
	}
	return false
}

// InputType is the kind of media a meal was uploaded as.
type InputType string

// Possible values for InputType
const (
	InputAudio   InputType = "audio"
	InputPicture InputType = "picture"
)

// FoodItem is one food of an analyzed meal. It has no identity of its own.
type FoodItem struct {
	Name          string  `json:"name" dynamodbav:"name"`
	Quantity      float64 `json:"quantity" dynamodbav:"quantity"`
	Unit          string  `json:"unit" dynamodbav:"unit"`
	Calories      float64 `json:"calories" dynamodbav:"calories"`
	Proteins      float64 `json:"proteins" dynamodbav:"proteins"`
	Carbohydrates float64 `json:"carbohydrates" dynamodbav:"carbohydrates"`
	Fats          float64 `json:"fats" dynamodbav:"fats"`
}

// MealRecord is a meal uploaded by a user and the result of its analysis.
type MealRecord struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"-"`
	InputFileKey string     `json:"-"`
	InputType    InputType  `json:"inputType"`
	Status       Status     `json:"status"`
	Name         string     `json:"name"`
	Icon         string     `json:"icon"`
	Foods        []FoodItem `json:"foods"`
	CreatedAt    time.Time  `json:"createdAt"`

	// UpdatedAt is the time of the last status transition.
	UpdatedAt time.Time `json:"-"`
}

// TimeLayout is the fixed-width UTC layout used wherever timestamps are
// persisted as strings, so lexical order equals chronological order.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string { return t.UTC().Format(TimeLayout) }

// ParseTime parses a TimeLayout timestamp.
func ParseTime(s string) (time.Time, error) { return time.Parse(TimeLayout, s) }

// ErrInvalidOutcome is returned by ValidateOutcome for results that cannot
// be committed as a successful meal.
var ErrInvalidOutcome = errors.New("invalid analysis outcome")

// ValidateOutcome checks that a result is fit for the success state: name,
// icon and at least one food, each food named, with a unit and no negative
// quantities or macros.
func ValidateOutcome(name, icon string, foods []FoodItem) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidOutcome)
	}
	if icon == "" {
		return fmt.Errorf("%w: empty icon", ErrInvalidOutcome)
	}
	if len(foods) == 0 {
		return fmt.Errorf("%w: no foods", ErrInvalidOutcome)
	}
	for i, f := range foods {
		if f.Name == "" || f.Unit == "" {
			return fmt.Errorf("%w: food %d missing name or unit", ErrInvalidOutcome, i)
		}
		if f.Quantity < 0 || f.Calories < 0 || f.Proteins < 0 || f.Carbohydrates < 0 || f.Fats < 0 {
			return fmt.Errorf("%w: food %d has negative values", ErrInvalidOutcome, i)
		}
	}
	return nil
}
