// Package objstore issues upload/download credentials for meal media and
// reads uploaded objects. S3 backs the Lambda deployment, MinIO the
// self-hosted one.
package objstore

import (
	"context"
	"io"
	"time"
)

// Storage is what the pipeline needs from an object store.
type Storage interface {
	// PresignPut returns a URL that accepts exactly one PUT of key with the
	// given Content-Type until ttl elapses.
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	// PresignGet returns a time-limited download URL for key.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	// Open streams the object body. Callers close it.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}
