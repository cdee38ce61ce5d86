package main

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"

	"github.com/kylejryan/meal-ingestion-pipeline/internal/bridge"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/logging"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/queue"
)

const (
	keyA = "0b6f3c1e-9c1a-4a55-9d57-1f1f0f7a2c11.jpeg"
	keyB = "7d2c1f3e-0a4b-4c5d-8e9f-a0b1c2d3e4f5.m4a"
	keyC = "c4a1e2b3-5d6f-4a7b-8c9d-0e1f2a3b4c5d.jpeg"
)

type publisher struct {
	items []queue.WorkItem
	err   error
}

func (p *publisher) Publish(_ context.Context, items []queue.WorkItem) []error {
	p.items = append(p.items, items...)
	errs := make([]error, len(items))
	for i := range errs {
		errs[i] = p.err
	}
	return errs
}

func event(keys ...string) events.S3Event {
	var ev events.S3Event
	for _, k := range keys {
		var r events.S3EventRecord
		r.EventName = "ObjectCreated:Put"
		r.S3.Object.Key = k
		ev.Records = append(ev.Records, r)
	}
	return ev
}

func TestHandler(t *testing.T) {
	p := &publisher{}
	app := &App{bridge: &bridge.Bridge{Publisher: p, Log: logging.Discard()}}

	assert.NoError(t, app.handler(context.Background(), event(keyA, keyB)))
	assert.Equal(t, []queue.WorkItem{{FileKey: keyA}, {FileKey: keyB}}, p.items)

	p.err = errors.New("queue down")
	assert.Error(t, app.handler(context.Background(), event(keyC)), "failures surface so the event is retried")
}
