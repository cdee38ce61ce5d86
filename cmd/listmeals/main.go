// Package main powers the meal diary by listing the caller's successful
// meals for one UTC day.
package main

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"

	"github.com/kylejryan/meal-ingestion-pipeline/internal/api"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/authz"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/config"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/httpx"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/logging"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/query"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/wiring"
)

// App holds the handler dependencies.
type App struct {
	auth  authz.Verifier
	query *query.Service
	log   logrus.FieldLogger
}

func main() {
	env := config.MustLoad()
	log := logging.New("listmeals", env.LogLevel)
	st, err := wiring.New(env, log).Store(context.Background())
	if err != nil {
		log.WithError(err).Fatal("open store")
	}
	app := &App{
		auth:  authz.Verifier{Secret: []byte(env.JWTSecret), DevBypass: env.DevBypassAuth},
		query: &query.Service{Store: st},
		log:   log,
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
	meals, err := a.query.ListByDay(ctx, sub, req.QueryStringParameters["date"])
	if err != nil {
		if code, _ := httpx.Status(err); code >= http.StatusInternalServerError {
			logging.FromContext(ctx, a.log).WithError(err).Error("list meals failed")
		}
		return httpx.FromError(err)
	}
	return httpx.JSON(http.StatusOK, api.ListMealsResponse{Meals: meals})
}
