package bridge

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/minio/minio-go/v7/pkg/notification"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kylejryan/meal-ingestion-pipeline/internal/queue"
)

type fakePublisher struct {
	got  []queue.WorkItem
	fail map[string]bool
}

func (f *fakePublisher) Publish(_ context.Context, items []queue.WorkItem) []error {
	errs := make([]error, len(items))
	for i, it := range items {
		f.got = append(f.got, it)
		if f.fail[it.FileKey] {
			errs[i] = errors.New("queue unavailable")
		}
	}
	return errs
}

const (
	keyA = "0b6f3c1e-9c1a-4a55-9d57-1f1f0f7a2c11.jpeg"
	keyB = "7d2c1f3e-0a4b-4c5d-8e9f-a0b1c2d3e4f5.jpeg"
	keyC = "c4a1e2b3-5d6f-4a7b-8c9d-0e1f2a3b4c5d.m4a"
)

func TestForward(t *testing.T) {
	log, hook := test.NewNullLogger()
	p := &fakePublisher{}
	b := &Bridge{Publisher: p, Log: log}

	require.NoError(t, b.Forward(context.Background(), []string{keyA, keyC, ""}))
	assert.Equal(t, []queue.WorkItem{{FileKey: keyA}, {FileKey: keyC}}, p.got)
	assert.Len(t, hook.AllEntries(), 2)

	require.NoError(t, b.Forward(context.Background(), nil))
}

func TestForward_SkipsForeignKeys(t *testing.T) {
	log, hook := test.NewNullLogger()
	p := &fakePublisher{}
	b := &Bridge{Publisher: p, Log: log}

	keys := []string{"my+meal.m4a", "user%2F" + keyA, "0b6f3c1e-9c1a-4a55-9d57-1f1f0f7a2c11", "not-a-uuid.jpeg", keyB}
	require.NoError(t, b.Forward(context.Background(), keys))
	assert.Equal(t, []queue.WorkItem{{FileKey: keyB}}, p.got)

	var skipped []any
	for _, e := range hook.AllEntries() {
		if e.Message == "skipping object that is not a meal upload" {
			skipped = append(skipped, e.Data["file_key"])
		}
	}
	assert.Equal(t, []any{"my meal.m4a", "user/" + keyA, "0b6f3c1e-9c1a-4a55-9d57-1f1f0f7a2c11", "not-a-uuid.jpeg"}, skipped)
}

func TestForward_IndependentFailures(t *testing.T) {
	log, hook := test.NewNullLogger()
	p := &fakePublisher{fail: map[string]bool{keyB: true}}
	b := &Bridge{Publisher: p, Log: log}

	err := b.Forward(context.Background(), []string{keyA, keyB, keyC})
	require.Error(t, err)
	assert.ErrorContains(t, err, keyB)
	assert.NotContains(t, err.Error(), keyA)
	assert.Len(t, p.got, 3, "every key is attempted")

	var errorsLogged int
	for _, e := range hook.AllEntries() {
		if e.Message == "enqueue failed" {
			errorsLogged++
			assert.Equal(t, keyB, e.Data["file_key"])
		}
	}
	assert.Equal(t, 1, errorsLogged)
}

func TestFromS3Event(t *testing.T) {
	e := events.S3Event{Records: []events.S3EventRecord{
		{EventName: "ObjectCreated:Put", S3: events.S3Entity{Object: events.S3Object{Key: "a.jpeg"}}},
		{EventName: "ObjectRemoved:Delete", S3: events.S3Entity{Object: events.S3Object{Key: "b.jpeg"}}},
		{EventName: "ObjectCreated:CompleteMultipartUpload", S3: events.S3Entity{Object: events.S3Object{Key: "c.m4a"}}},
	}}
	assert.Equal(t, []string{"a.jpeg", "c.m4a"}, FromS3Event(e))
}

func TestFromMinioNotification(t *testing.T) {
	put := notification.Event{EventName: "s3:ObjectCreated:Put"}
	put.S3.Object.Key = "a.jpeg"
	del := notification.Event{EventName: "s3:ObjectRemoved:Delete"}
	del.S3.Object.Key = "b.jpeg"

	keys := FromMinioNotification(notification.Info{Records: []notification.Event{put, del}})
	assert.Equal(t, []string{"a.jpeg"}, keys)
}
