// Package main bridges S3 object-created events onto the work queue.
package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/kylejryan/meal-ingestion-pipeline/internal/bridge"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/config"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/logging"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/wiring"
)

// App holds the handler dependencies.
type App struct {
	bridge *bridge.Bridge
}

func main() {
	env := config.MustLoad()
	log := logging.New("fileuploaded", env.LogLevel)
	pub, err := wiring.New(env, log).Publisher(context.Background())
	if err != nil {
		log.WithError(err).Fatal("open publisher")
	}
	app := &App{bridge: &bridge.Bridge{Publisher: pub, Log: log}}
	lambda.Start(app.handler)
}

// ---- Handler ----

// handler returns the enqueue failures so Lambda retries the whole event.
func (a *App) handler(ctx context.Context, ev events.S3Event) error {
	return a.bridge.Forward(ctx, bridge.FromS3Event(ev))
}
