// Package main listens for MinIO bucket notifications and forwards every
// uploaded object to the work queue.
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/minio/minio-go/v7/pkg/notification"
	"github.com/sirupsen/logrus"

	"github.com/kylejryan/meal-ingestion-pipeline/internal/bridge"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/config"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/logging"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/metrics"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/queue"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/wiring"
)

var createdEvents = []string{string(notification.ObjectCreatedAll)}

// Listener is the slice of the MinIO client the bridge needs.
type Listener interface {
	ListenBucketNotification(ctx context.Context, bucket, prefix, suffix string, events []string) <-chan notification.Info
}

// App forwards notifications from one bucket.
type App struct {
	listener Listener
	bucket   string
	bridge   *bridge.Bridge
	log      logrus.FieldLogger

	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func main() {
	env := config.MustLoad()
	log := logging.New("bridge", env.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := wiring.New(env, log)
	defer func() {
		if err := deps.Close(); err != nil {
			log.WithError(err).Warn("close backends")
		}
	}()

	mc, err := deps.Minio(ctx)
	if err != nil {
		log.WithError(err).Fatal("connect minio")
	}
	pub, err := deps.Publisher(ctx)
	if err != nil {
		log.WithError(err).Fatal("open publisher")
	}
	metrics.StartServer(env.MetricsAddr, func(err error) { log.WithError(err).Error("metrics server") })

	app := &App{
		listener: mc.Client,
		bucket:   mc.Bucket,
		bridge:   &bridge.Bridge{Publisher: pub, Log: log},
		log:      log,
	}
	log.WithField("bucket", mc.Bucket).Info("listening for uploads")
	app.run(ctx)
	log.Info("bridge stopped")
}

// ---- Loop ----

// run keeps a notification stream open until ctx ends, reconnecting after
// stream errors.
func (a *App) run(ctx context.Context) {
	for ctx.Err() == nil {
		for info := range a.listener.ListenBucketNotification(ctx, a.bucket, "", "", createdEvents) {
			if info.Err != nil {
				a.log.WithError(info.Err).Warn("notification stream")
				continue
			}
			a.forward(ctx, bridge.FromMinioNotification(info))
		}
		if err := a.wait(ctx, queue.MinBackoff); err != nil {
			return
		}
	}
}

// forward retries a failed batch with capped backoff. MinIO does not
// redeliver, so giving up would strand the record in uploading.
func (a *App) forward(ctx context.Context, keys []string) {
	backoff := queue.MinBackoff
	for {
		err := a.bridge.Forward(ctx, keys)
		if err == nil {
			return
		}
		a.log.WithError(err).WithField("retry_in", backoff.String()).Warn("forward failed")
		if a.wait(ctx, backoff) != nil {
			return
		}
		backoff = min(2*backoff, queue.MaxBackoff)
	}
}

func (a *App) wait(ctx context.Context, d time.Duration) error {
	if a.sleep != nil {
		return a.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
