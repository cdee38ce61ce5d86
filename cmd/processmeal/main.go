// Package main consumes work items from SQS and runs the meal processor.
package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/kylejryan/meal-ingestion-pipeline/internal/config"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/logging"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/processor"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/wiring"
)

// App holds the handler dependencies.
type App struct {
	proc *processor.Processor
}

func main() {
	env := config.MustLoad()
	log := logging.New("processmeal", env.LogLevel)
	deps := wiring.New(env, log)

	ctx := context.Background()
	st, err := deps.Store(ctx)
	if err != nil {
		log.WithError(err).Fatal("open store")
	}
	storage, err := deps.Storage(ctx)
	if err != nil {
		log.WithError(err).Fatal("open storage")
	}

	app := &App{proc: &processor.Processor{
		Store:    st,
		Analyzer: deps.Analyzer(storage),
		Timeout:  env.AnalysisTimeout,
		Log:      log,
	}}
	lambda.Start(app.handler)
}

// ---- Handler ----

// handler reports partial batch failures; the function's event source
// mapping must enable ReportBatchItemFailures.
func (a *App) handler(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	return a.proc.HandleSQS(ctx, ev), nil
}
