// Package metrics holds the Prometheus collectors of every binary.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MealsProcessed counts work items by processor outcome.
	MealsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meals_processed_total",
			Help: "Work items handled by the meal processor, by outcome",
		},
		[]string{"outcome"},
	)

	AnalysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meal_analysis_duration_seconds",
			Help:    "Time spent in the analysis capability",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"input_type"},
	)

	// ItemsEnqueued counts bridge publishes by result.
	ItemsEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meal_items_enqueued_total",
			Help: "Work items published by the ingestion bridge",
		},
		[]string{"status"},
	)

	StaleMeals = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "meals_stale_processing",
			Help: "Meals stuck in processing at the last sweep",
		},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests served",
		},
		[]string{"route", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(
		MealsProcessed,
		AnalysisDuration,
		ItemsEnqueued,
		StaleMeals,
		RequestsTotal,
		RequestDuration,
	)
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }

// StartServer serves /metrics on addr in the background. An empty addr
// disables it and returns nil.
func StartServer(addr string, onErr func(error)) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			onErr(err)
		}
	}()
	return srv
}

// ObserveRequest records one served request.
func ObserveRequest(route, status string, d time.Duration) {
	RequestsTotal.WithLabelValues(route, status).Inc()
	RequestDuration.WithLabelValues(route).Observe(d.Seconds())
}
