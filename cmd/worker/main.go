// Package main runs the meal processor against Kafka, together with the
// stale-meal sweeper and a metrics endpoint.
package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kylejryan/meal-ingestion-pipeline/internal/config"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/logging"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/metrics"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/processor"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/queue"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/sweeper"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/wiring"
)

const sweepTimeout = time.Minute

func main() {
	env := config.MustLoad()
	log := logging.New("worker", env.LogLevel)
	if env.QueueBackend != config.QueueKafka {
		log.WithField("queue_backend", env.QueueBackend).Fatal("the worker consumes kafka; sqs is served by the processmeal function")
	}
	if len(env.KafkaBrokers) == 0 {
		log.Fatal("missing env KAFKA_BROKERS")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := wiring.New(env, log)
	defer func() {
		if err := deps.Close(); err != nil {
			log.WithError(err).Warn("close backends")
		}
	}()

	st, err := deps.Store(ctx)
	if err != nil {
		log.WithError(err).Fatal("open store")
	}
	storage, err := deps.Storage(ctx)
	if err != nil {
		log.WithError(err).Fatal("open storage")
	}
	proc := &processor.Processor{
		Store:    st,
		Analyzer: deps.Analyzer(storage),
		Timeout:  env.AnalysisTimeout,
		Log:      log,
	}

	metrics.StartServer(env.MetricsAddr, func(err error) { log.WithError(err).Error("metrics server") })

	sw := &sweeper.Sweeper{Store: st, StaleAfter: env.StaleAfter, Log: log}
	c := sweeper.NewCron(log)
	if err := sw.Schedule(c, env.StaleScanSchedule, sweepTimeout); err != nil {
		log.WithError(err).Fatal("schedule sweeper")
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	log.WithFields(logrus.Fields{
		"topic":       env.KafkaTopic,
		"group":       env.KafkaGroupID,
		"concurrency": env.WorkerConcurrency,
	}).Info("worker starting")
	runConsumers(ctx, env, proc, log)
	log.Info("worker shutdown complete")
}

// runConsumers starts one group member per slot and waits for all of them.
func runConsumers(ctx context.Context, env config.Env, proc *processor.Processor, log logrus.FieldLogger) {
	var wg sync.WaitGroup
	for i := 0; i < max(env.WorkerConcurrency, 1); i++ {
		r := queue.NewKafkaReader(env.KafkaBrokers, env.KafkaTopic, env.KafkaGroupID)
		c := &queue.KafkaConsumer{
			Reader:    r,
			Handle:    proc.Handle,
			Retriable: processor.IsRetriable,
			Log:       log.WithField("consumer", i),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer r.Close()
			if err := c.Run(ctx); err != nil {
				c.Log.WithError(err).Error("consumer stopped")
			}
		}()
	}
	wg.Wait()
}
