// Package wiring builds the configured backends for the binaries.
package wiring

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kylejryan/meal-ingestion-pipeline/internal/analysis"
	mealai "github.com/kylejryan/meal-ingestion-pipeline/internal/analysis/openai"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/awsutil"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/config"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/objstore"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/queue"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/store"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/store/boltstore"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/store/ddb"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/store/pg"
)

// Deps opens backends on demand and closes them together.
type Deps struct {
	Env config.Env
	Log logrus.FieldLogger

	awsOnce sync.Once
	aws     awsutil.Clients
	awsErr  error

	closers []func() error
}

// New returns an empty Deps for env.
func New(env config.Env, log logrus.FieldLogger) *Deps {
	return &Deps{Env: env, Log: log}
}

func (d *Deps) awsClients(ctx context.Context) (awsutil.Clients, error) {
	d.awsOnce.Do(func() {
		cfg, err := awsutil.Load(ctx, d.Env.Region, d.Env.EndpointURL)
		if err != nil {
			d.awsErr = fmt.Errorf("load aws config: %w", err)
			return
		}
		d.aws = awsutil.NewClients(cfg)
	})
	return d.aws, d.awsErr
}

// Store opens the configured record store.
func (d *Deps) Store(ctx context.Context) (store.Store, error) {
	switch d.Env.StoreBackend {
	case config.StoreDynamoDB:
		d.Env.Require("MEALS_TABLE", d.Env.Table)
		c, err := d.awsClients(ctx)
		if err != nil {
			return nil, err
		}
		return ddb.New(c.DynamoDB, d.Env.Table), nil
	case config.StorePostgres:
		d.Env.Require("DATABASE_URL", d.Env.DatabaseURL)
		s, err := pg.Open(d.Env.DatabaseURL)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, s.Close)
		return s, nil
	case config.StoreBolt:
		s, err := boltstore.Open(d.Env.BoltPath)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, s.Close)
		return s, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", d.Env.StoreBackend)
}

// Storage connects the configured object store.
func (d *Deps) Storage(ctx context.Context) (objstore.Storage, error) {
	d.Env.Require("UPLOADS_BUCKET_NAME", d.Env.Bucket)
	switch d.Env.StorageBackend {
	case config.StorageS3:
		c, err := d.awsClients(ctx)
		if err != nil {
			return nil, err
		}
		return objstore.NewS3(c.S3, d.Env.Bucket), nil
	case config.StorageMinio:
		return d.Minio(ctx)
	}
	return nil, fmt.Errorf("unknown storage backend %q", d.Env.StorageBackend)
}

// Minio connects to MinIO directly; the notification bridge needs the
// concrete client.
func (d *Deps) Minio(ctx context.Context) (*objstore.Minio, error) {
	d.Env.Require("MINIO_ENDPOINT", d.Env.MinioEndpoint, "UPLOADS_BUCKET_NAME", d.Env.Bucket)
	return objstore.NewMinio(ctx, d.Env.MinioEndpoint, d.Env.MinioAccessKey, d.Env.MinioSecretKey, d.Env.Bucket, d.Env.MinioUseSSL)
}

// Publisher returns the configured work queue publisher.
func (d *Deps) Publisher(ctx context.Context) (queue.Publisher, error) {
	switch d.Env.QueueBackend {
	case config.QueueSQS:
		d.Env.Require("MEALS_QUEUE_URL", d.Env.QueueURL)
		c, err := d.awsClients(ctx)
		if err != nil {
			return nil, err
		}
		return &queue.SQSPublisher{Client: c.SQS, QueueURL: d.Env.QueueURL}, nil
	case config.QueueKafka:
		if len(d.Env.KafkaBrokers) == 0 {
			return nil, errors.New("missing env KAFKA_BROKERS")
		}
		w := queue.NewKafkaWriter(d.Env.KafkaBrokers, d.Env.KafkaTopic)
		d.closers = append(d.closers, w.Close)
		return &queue.KafkaPublisher{Writer: w}, nil
	}
	return nil, fmt.Errorf("unknown queue backend %q", d.Env.QueueBackend)
}

// Analyzer returns the OpenAI analyzer, or the fixed placeholder when no
// API key is configured.
func (d *Deps) Analyzer(storage objstore.Storage) analysis.Analyzer {
	if d.Env.OpenAIAPIKey == "" {
		d.Log.Warn("OPENAI_API_KEY not set, using placeholder analysis")
		return analysis.Placeholder
	}
	return &mealai.Analyzer{
		Client:             mealai.NewClient(d.Env.OpenAIAPIKey, d.Env.OpenAIBaseURL),
		Storage:            storage,
		Model:              d.Env.OpenAIModel,
		TranscriptionModel: d.Env.OpenAITranscriptionModel,
	}
}

// Close releases everything opened so far, newest first.
func (d *Deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	d.closers = nil
	return errors.Join(errs...)
}
