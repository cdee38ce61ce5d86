// Package main issues upload intents: it creates the meal record and
// returns a presigned PUT URL for the client to upload to.
package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"

	"github.com/kylejryan/meal-ingestion-pipeline/internal/api"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/authz"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/config"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/httpx"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/intake"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/logging"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/wiring"
)

// App holds the handler dependencies.
type App struct {
	auth   authz.Verifier
	issuer *intake.Issuer
	log    logrus.FieldLogger
}

func main() {
	env := config.MustLoad()
	log := logging.New("createmeal", env.LogLevel)
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

	app := &App{
		auth:   authz.Verifier{Secret: []byte(env.JWTSecret), DevBypass: env.DevBypassAuth},
		issuer: &intake.Issuer{Store: st, Storage: storage, TTL: env.PresignTTL, Log: log},
		log:    log,
	}
	lambda.Start(app.handler)
}

// ---- Handler ----

func (a *App) handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	ctx = logging.WithRequestID(ctx, req.RequestContext.RequestID)

	sub, err := a.auth.FromAPIGWv2(req)
	if err != nil {
		return httpx.FromError(err)
	}

	var body api.CreateMealRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return httpx.Error(http.StatusBadRequest, "invalid JSON body")
	}

	in, err := a.issuer.CreateIntent(ctx, sub, body.FileType)
	if err != nil {
		if code, _ := httpx.Status(err); code >= http.StatusInternalServerError {
			logging.FromContext(ctx, a.log).WithError(err).Error("create meal failed")
		}
		return httpx.FromError(err)
	}
	return httpx.JSON(http.StatusCreated, api.CreateMealResponse{
		MealID:    in.MealID,
		UploadURL: in.UploadURL,
		FileKey:   in.FileKey,
		ExpiresIn: int(in.ExpiresIn.Seconds()),
	})
}
