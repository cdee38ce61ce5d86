package analysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kylejryan/meal-ingestion-pipeline/internal/models"
)

func TestPlaceholderIsCommittable(t *testing.T) {
	r, err := Placeholder.Analyze(context.Background(), Input{FileKey: "a.jpeg", InputType: models.InputPicture})
	require.NoError(t, err)
	assert.NoError(t, models.ValidateOutcome(r.Name, r.Icon, r.Foods))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Placeholder.Analyze(ctx, Input{})
	assert.ErrorIs(t, err, context.Canceled)
}
