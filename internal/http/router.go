package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-lookup-service/internal/observability"
)

// RouterOptions configures the middleware applied to the weather route.
type RouterOptions struct {
	// Limiter is nil when rate limiting is disabled.
	Limiter        *rate.Limiter
	RequestTimeout time.Duration
}

// NewRouter registers /weather, /health and /metrics on a new router.
func NewRouter(h *Handler, logger *zap.Logger, opts RouterOptions) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(RecoveryMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler())

	weather := http.Handler(http.HandlerFunc(h.GetWeather))
	weather = TimeoutMiddleware(opts.RequestTimeout)(weather)
	weather = RateLimitMiddleware(opts.Limiter)(weather)
	router.Handle("/weather", weather).Methods(http.MethodGet)
	router.Handle("/weather/", weather).Methods(http.MethodGet)
	return router
}
