// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Backend selectors.
const (
	StoreDynamoDB = "dynamodb"
	StorePostgres = "postgres"
	StoreBolt     = "bolt"

	QueueSQS   = "sqs"
	QueueKafka = "kafka"

	StorageS3    = "s3"
	StorageMinio = "minio"
)

// Env holds the configuration values for the application.
type Env struct {
	Region      string
	EndpointURL string

	StoreBackend   string
	QueueBackend   string
	StorageBackend string

	Bucket      string
	Table       string
	QueueURL    string
	DatabaseURL string
	BoltPath    string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	OpenAIAPIKey             string
	OpenAIBaseURL            string
	OpenAIModel              string
	OpenAITranscriptionModel string
	AnalysisTimeout          time.Duration

	PresignTTL    time.Duration
	JWTSecret     string
	DevBypassAuth bool

	WorkerConcurrency int
	HTTPAddr          string
	MetricsAddr       string
	StaleAfter        time.Duration
	StaleScanSchedule string
	LogLevel          string
}

var defaults = map[string]any{
	"AWS_REGION":                 "us-east-1",
	"STORE_BACKEND":              StoreDynamoDB,
	"QUEUE_BACKEND":              QueueSQS,
	"STORAGE_BACKEND":            StorageS3,
	"BOLT_PATH":                  "meals.db",
	"MINIO_USE_SSL":              false,
	"KAFKA_TOPIC":                "meals.uploaded",
	"KAFKA_GROUP_ID":             "meal-processor",
	"OPENAI_MODEL":               "gpt-4o-mini",
	"OPENAI_TRANSCRIPTION_MODEL": "whisper-1",
	"ANALYSIS_TIMEOUT_SECONDS":   0,
	"PRESIGN_TTL_SECONDS":        600,
	"DEV_BYPASS_AUTH":            false,
	"WORKER_CONCURRENCY":         4,
	"HTTP_ADDR":                  ":8080",
	"METRICS_ADDR":               ":2112",
	"STALE_AFTER_SECONDS":        900,
	"STALE_SCAN_SCHEDULE":        "@every 5m",
	"LOG_LEVEL":                  "info",
}

// MustLoad reads the environment (and a .env file, when present) and returns
// an Env. It panics on values that cannot be interpreted.
func MustLoad() Env {
	// .env is optional; Lambda environments never have one.
	_ = godotenv.Load()

	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()

	e := Env{
		Region:      v.GetString("AWS_REGION"),
		EndpointURL: v.GetString("AWS_ENDPOINT_URL"),

		StoreBackend:   oneOf(v, "STORE_BACKEND", StoreDynamoDB, StorePostgres, StoreBolt),
		QueueBackend:   oneOf(v, "QUEUE_BACKEND", QueueSQS, QueueKafka),
		StorageBackend: oneOf(v, "STORAGE_BACKEND", StorageS3, StorageMinio),

		Bucket:      v.GetString("UPLOADS_BUCKET_NAME"),
		Table:       v.GetString("MEALS_TABLE"),
		QueueURL:    v.GetString("MEALS_QUEUE_URL"),
		DatabaseURL: v.GetString("DATABASE_URL"),
		BoltPath:    v.GetString("BOLT_PATH"),

		MinioEndpoint:  v.GetString("MINIO_ENDPOINT"),
		MinioAccessKey: v.GetString("MINIO_ACCESS_KEY"),
		MinioSecretKey: v.GetString("MINIO_SECRET_KEY"),
		MinioUseSSL:    v.GetBool("MINIO_USE_SSL"),

		KafkaBrokers: splitList(v.GetString("KAFKA_BROKERS")),
		KafkaTopic:   v.GetString("KAFKA_TOPIC"),
		KafkaGroupID: v.GetString("KAFKA_GROUP_ID"),

		OpenAIAPIKey:             v.GetString("OPENAI_API_KEY"),
		OpenAIBaseURL:            v.GetString("OPENAI_BASE_URL"),
		OpenAIModel:              v.GetString("OPENAI_MODEL"),
		OpenAITranscriptionModel: v.GetString("OPENAI_TRANSCRIPTION_MODEL"),
		AnalysisTimeout:          seconds(v, "ANALYSIS_TIMEOUT_SECONDS"),

		PresignTTL:    seconds(v, "PRESIGN_TTL_SECONDS"),
		JWTSecret:     v.GetString("JWT_SECRET"),
		DevBypassAuth: v.GetBool("DEV_BYPASS_AUTH"),

		WorkerConcurrency: v.GetInt("WORKER_CONCURRENCY"),
		HTTPAddr:          v.GetString("HTTP_ADDR"),
		MetricsAddr:       v.GetString("METRICS_ADDR"),
		StaleAfter:        seconds(v, "STALE_AFTER_SECONDS"),
		StaleScanSchedule: v.GetString("STALE_SCAN_SCHEDULE"),
		LogLevel:          v.GetString("LOG_LEVEL"),
	}
	if e.PresignTTL <= 0 {
		panic(fmt.Errorf("PRESIGN_TTL_SECONDS must be positive"))
	}
	return e
}

// Require panics if any of the named settings is empty. Each binary calls it
// with the settings its backends need.
func (e Env) Require(pairs ...string) {
	if len(pairs)%2 != 0 {
		panic("config: Require takes name/value pairs")
	}
	for i := 0; i < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			panic(fmt.Errorf("missing env %s", pairs[i]))
		}
	}
}

// oneOf returns the lowercased value of k, panicking if it is not allowed.
func oneOf(v *viper.Viper, k string, allowed ...string) string {
	val := strings.ToLower(strings.TrimSpace(v.GetString(k)))
	for _, a := range allowed {
		if val == a {
			return val
		}
	}
	panic(fmt.Errorf("env %s=%q, want one of %v", k, val, allowed))
}

func seconds(v *viper.Viper, k string) time.Duration {
	return time.Duration(v.GetInt(k)) * time.Second
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
