// Package bridge turns object-created notifications into work items.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/minio/minio-go/v7/pkg/notification"
	"github.com/sirupsen/logrus"

	"github.com/kylejryan/meal-ingestion-pipeline/internal/metrics"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/objstore"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/queue"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/validate"
)

// Bridge forwards uploaded object keys to the work queue.
type Bridge struct {
	Publisher queue.Publisher
	Log       logrus.FieldLogger
}

// Forward enqueues one work item per meal upload key; other objects are
// logged and skipped. Every key is attempted and the failures are returned
// joined so the caller can retry the notification. Items that did get
// through are redelivered by that retry, which the processor tolerates.
func (b *Bridge) Forward(ctx context.Context, keys []string) error {
	items := make([]queue.WorkItem, 0, len(keys))
	for _, k := range keys {
		k = objstore.UnescapeKey(k)
		if k == "" {
			continue
		}
		if !mealKey(k) {
			metrics.ItemsEnqueued.WithLabelValues("skipped").Inc()
			b.Log.WithField("file_key", k).Warn("skipping object that is not a meal upload")
			continue
		}
		items = append(items, queue.WorkItem{FileKey: k})
	}
	if len(items) == 0 {
		return nil
	}

	var failed []error
	for i, err := range b.Publisher.Publish(ctx, items) {
		log := b.Log.WithField("file_key", items[i].FileKey)
		if err != nil {
			metrics.ItemsEnqueued.WithLabelValues("error").Inc()
			log.WithError(err).Error("enqueue failed")
			failed = append(failed, fmt.Errorf("enqueue %s: %w", items[i].FileKey, err))
			continue
		}
		metrics.ItemsEnqueued.WithLabelValues("ok").Inc()
		log.Info("enqueued")
	}
	return errors.Join(failed...)
}

// mealKey reports whether k has the "<meal uuid>.<ext>" shape intents issue.
func mealKey(k string) bool {
	id, _, ok := objstore.ParseKey(k)
	return ok && validate.MealID(id) == nil
}

func created(eventName string) bool {
	return strings.Contains(eventName, "ObjectCreated:")
}

// FromS3Event returns the raw keys of the created objects in e.
func FromS3Event(e events.S3Event) []string {
	var keys []string
	for _, r := range e.Records {
		if created(r.EventName) {
			keys = append(keys, r.S3.Object.Key)
		}
	}
	return keys
}

// FromMinioNotification returns the raw keys of the created objects in info.
func FromMinioNotification(info notification.Info) []string {
	var keys []string
	for _, r := range info.Records {
		if created(r.EventName) {
			keys = append(keys, r.S3.Object.Key)
		}
	}
	return keys
}
