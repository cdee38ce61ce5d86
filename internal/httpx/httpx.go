// Package httpx provides helper functions for creating HTTP responses.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"github.com/kylejryan/meal-ingestion-pipeline/internal/authz"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/store"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/validate"
)

// JSON creates a JSON HTTP response with the given status code and value.
func JSON(status int, v any) (events.APIGatewayV2HTTPResponse, error) {
	b, _ := json.Marshal(v)
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: string(b),
	}, nil
}

// Error creates a JSON HTTP error response with the given status code and message.
func Error(status int, msg string) (events.APIGatewayV2HTTPResponse, error) {
	return JSON(status, map[string]string{"error": msg})
}

// Status maps a service error to its HTTP status and client message.
// Unknown errors become a 500 with a generic message.
func Status(err error) (int, string) {
	switch {
	case errors.Is(err, authz.ErrUnauthorized):
		return http.StatusUnauthorized, authz.Message
	case validate.IsValidation(err):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "meal not found"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// FromError renders err with Status.
func FromError(err error) (events.APIGatewayV2HTTPResponse, error) {
	return Error(Status(err))
}
