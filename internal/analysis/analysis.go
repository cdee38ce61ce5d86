// Package analysis is the boundary to the external capability that turns
// meal media into nutrition data.
package analysis

import (
	"context"

	"github.com/kylejryan/meal-ingestion-pipeline/internal/models"
)

// Input identifies the media to analyze.
type Input struct {
	FileKey   string
	InputType models.InputType
}

// Result is a nutrition analysis. It is validated before it is committed.
type Result struct {
	Name  string            `json:"name"`
	Icon  string            `json:"icon"`
	Foods []models.FoodItem `json:"foods"`
}

// Analyzer analyzes one upload. Any error fails the meal.
type Analyzer interface {
	Analyze(ctx context.Context, in Input) (Result, error)
}

// Func adapts a function to Analyzer.
type Func func(ctx context.Context, in Input) (Result, error)

// Analyze calls f.
func (f Func) Analyze(ctx context.Context, in Input) (Result, error) { return f(ctx, in) }

// Placeholder answers every input with the same fixed meal. It stands in
// for the real capability in local runs without API credentials.
var Placeholder = Func(func(ctx context.Context, _ Input) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return Result{
		Name: "Meal name",
		Icon: "🍽️",
		Foods: []models.FoodItem{
			{Name: "Food name", Quantity: 100, Unit: "g", Calories: 100, Proteins: 10, Carbohydrates: 10, Fats: 10},
		},
	}, nil
})
