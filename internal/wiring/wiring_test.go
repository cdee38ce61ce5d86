package wiring

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kylejryan/meal-ingestion-pipeline/internal/analysis"
	mealai "github.com/kylejryan/meal-ingestion-pipeline/internal/analysis/openai"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/config"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/logging"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/queue"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/store/boltstore"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/store/ddb"
)

func TestStore_Bolt(t *testing.T) {
	d := New(config.Env{StoreBackend: config.StoreBolt, BoltPath: filepath.Join(t.TempDir(), "m.db")}, logging.Discard())
	s, err := d.Store(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &boltstore.Store{}, s)
	assert.NoError(t, d.Close())
}

func TestStore_DynamoDB(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	d := New(config.Env{StoreBackend: config.StoreDynamoDB, Region: "us-east-1", Table: "meals"}, logging.Discard())
	s, err := d.Store(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "meals", s.(*ddb.Repo).Table)

	d.Env.Table = ""
	assert.Panics(t, func() { _, _ = d.Store(context.Background()) })
}

func TestPublisher(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	d := New(config.Env{QueueBackend: config.QueueSQS, Region: "us-east-1", QueueURL: "http://localhost/q"}, logging.Discard())
	p, err := d.Publisher(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &queue.SQSPublisher{}, p)

	d = New(config.Env{QueueBackend: config.QueueKafka, KafkaTopic: "meals.uploaded"}, logging.Discard())
	_, err = d.Publisher(context.Background())
	assert.ErrorContains(t, err, "KAFKA_BROKERS")

	d.Env.KafkaBrokers = []string{"localhost:9092"}
	p, err = d.Publisher(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &queue.KafkaPublisher{}, p)
	assert.NoError(t, d.Close())
}

func TestAnalyzer(t *testing.T) {
	d := New(config.Env{}, logging.Discard())
	_, ok := d.Analyzer(nil).(analysis.Func)
	assert.True(t, ok, "placeholder without an api key")

	d.Env.OpenAIAPIKey = "sk-test"
	assert.IsType(t, &mealai.Analyzer{}, d.Analyzer(nil))
}
