// Package main serves the meal HTTP API outside Lambda.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/kylejryan/meal-ingestion-pipeline/internal/authz"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/config"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/httpapi"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/intake"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/logging"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/query"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/wiring"
)

func main() {
	env := config.MustLoad()
	log := logging.New("server", env.LogLevel)

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

	api := &httpapi.Server{
		Issuer: &intake.Issuer{Store: st, Storage: storage, TTL: env.PresignTTL, Log: log},
		Query:  &query.Service{Store: st},
		Auth:   authz.Verifier{Secret: []byte(env.JWTSecret), DevBypass: env.DevBypassAuth},
		Log:    log,
	}
	srv := &http.Server{Addr: env.HTTPAddr, Handler: api.Router(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.WithField("addr", env.HTTPAddr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown")
	}
}
