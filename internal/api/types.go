// Package api contains types for the API requests and responses.
package api

import "github.com/kylejryan/meal-ingestion-pipeline/internal/models"

// CreateMealRequest is the body of POST /meals.
type CreateMealRequest struct {
	FileType string `json:"fileType"`
}

// CreateMealResponse is returned with 201 once the record exists and the
// upload URL is signed.
type CreateMealResponse struct {
	MealID    string `json:"mealId"`
	UploadURL string `json:"uploadUrl"`
	FileKey   string `json:"fileKey"`
	ExpiresIn int    `json:"expiresIn"`
}

// MealResponse is the body of GET /meals/{mealId}.
type MealResponse struct {
	Meal models.MealRecord `json:"meal"`
}

// ListMealsResponse is the body of GET /meals?date=YYYY-MM-DD.
type ListMealsResponse struct {
	Meals []models.MealRecord `json:"meals"`
}
