// Package httpapi is the gin surface of the long-running deployment. It
// exposes the same routes as the Lambda functions.
package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kylejryan/meal-ingestion-pipeline/internal/api"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/authz"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/httpx"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/intake"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/logging"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/metrics"
	"github.com/kylejryan/meal-ingestion-pipeline/internal/query"
)

const ownerKey = "ownerID"

// Server wires the HTTP handlers to the services.
type Server struct {
	Issuer *intake.Issuer
	Query  *query.Service
	Auth   authz.Verifier
	Log    logrus.FieldLogger
}

// Router builds the engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	meals := r.Group("/meals")
	meals.Use(s.authenticate())
	{
		meals.POST("", s.createMeal)
		meals.GET("", s.listMeals)
		meals.GET("/:mealId", s.getMeal)
	}
	return r
}

// requestLog tags the request context with an id and records metrics.
func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-Id", id)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.ObserveRequest(route, strconv.Itoa(status), time.Since(start))
		logging.FromContext(c.Request.Context(), s.Log).WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"route":    route,
			"status":   status,
			"duration": time.Since(start).String(),
		}).Info("request")
	}
}

func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, err := s.Auth.FromHeader(c.GetHeader)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": authz.Message})
			return
		}
		c.Set(ownerKey, owner)
		c.Next()
	}
}

// fail writes err with the shared status mapping.
func (s *Server) fail(c *gin.Context, err error) {
	code, msg := httpx.Status(err)
	if code >= http.StatusInternalServerError {
		logging.FromContext(c.Request.Context(), s.Log).WithError(err).Error("request failed")
	}
	c.JSON(code, gin.H{"error": msg})
}

func (s *Server) createMeal(c *gin.Context) {
	var body api.CreateMealRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	in, err := s.Issuer.CreateIntent(c.Request.Context(), c.GetString(ownerKey), body.FileType)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, api.CreateMealResponse{
		MealID:    in.MealID,
		UploadURL: in.UploadURL,
		FileKey:   in.FileKey,
		ExpiresIn: int(in.ExpiresIn.Seconds()),
	})
}

func (s *Server) listMeals(c *gin.Context) {
	meals, err := s.Query.ListByDay(c.Request.Context(), c.GetString(ownerKey), c.Query("date"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ListMealsResponse{Meals: meals})
}

func (s *Server) getMeal(c *gin.Context) {
	m, err := s.Query.Get(c.Request.Context(), c.GetString(ownerKey), c.Param("mealId"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.MealResponse{Meal: m})
}
