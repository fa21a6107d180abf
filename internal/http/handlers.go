package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup-service/internal/apperrors"
	"github.com/kjstillabower/weather-lookup-service/internal/client"
	"github.com/kjstillabower/weather-lookup-service/internal/lifecycle"
	"github.com/kjstillabower/weather-lookup-service/internal/models"
	"github.com/kjstillabower/weather-lookup-service/internal/observability"
	"github.com/kjstillabower/weather-lookup-service/internal/validation"
)

// genericErrorMessage is the only failure detail ever returned to callers.
const genericErrorMessage = "An unexpected error occurred."

// WeatherGetter is the lookup the weather endpoint delegates to.
type WeatherGetter interface {
	GetWeather(ctx context.Context, city string) (models.WeatherRecord, error)
}

// APIKeyValidator checks that upstream credentials are accepted.
type APIKeyValidator interface {
	ValidateAPIKey(ctx context.Context) error
}

// HealthConfig holds dependencies for the health handler.
type HealthConfig struct {
	ServiceName string
	// CachePing, when set, is called to check cache reachability.
	CachePing func(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weather          WeatherGetter
	apiKey           APIKeyValidator
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(weather WeatherGetter, apiKey APIKeyValidator, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		weather:      weather,
		apiKey:       apiKey,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

type weatherResponse struct {
	Message string               `json:"message"`
	Data    models.WeatherRecord `json:"data"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// GetWeather handles GET /weather?city={name}. The city is validated before any
// lookup so a rejected name never reaches the cache or upstream.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	if err := validation.ValidateCity(city); err != nil {
		h.writeFailure(w, r, err)
		return
	}

	record, err := h.weather.GetWeather(r.Context(), city)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, weatherResponse{Message: "Success", Data: record})
}

// writeFailure logs err with its kind and writes the uniform error body. Every
// lookup failure goes through here, including invalid input, and the status is
// always 200.
func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperrors.KindOf(err)
	observability.LookupFailuresTotal.WithLabelValues(string(kind)).Inc()

	logger := observability.LoggerFromContext(r.Context(), h.logger)
	fields := []zap.Field{
		zap.String("kind", string(kind)),
		zap.String("category", string(client.CategorizeError(err))),
		zap.String("city", r.URL.Query().Get("city")),
		zap.Error(err),
	}
	if kind == apperrors.KindInvalidInput {
		logger.Warn("weather lookup rejected", fields...)
	} else {
		logger.Error("weather lookup failed", fields...)
	}

	writeJSON(w, http.StatusOK, errorResponse{Error: genericErrorMessage})
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result, checks := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	serviceName := "weather-lookup-service"
	if h.healthConfig != nil && h.healthConfig.ServiceName != "" {
		serviceName = h.healthConfig.ServiceName
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   serviceName,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > API key invalid > cache unreachable > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) (healthResult, map[string]string) {
	checks := make(map[string]string)
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}, checks
	}

	result := healthResult{"healthy", http.StatusOK, ""}

	checks["weatherApi"] = "healthy"
	if h.apiKey != nil {
		if err := h.apiKey.ValidateAPIKey(ctx); err != nil {
			checks["weatherApi"] = "unhealthy"
			result = healthResult{"degraded", http.StatusServiceUnavailable, "api_key_invalid"}
		}
	}

	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if err := h.healthConfig.CachePing(ctx); err != nil {
			checks["cache"] = "unhealthy"
			if result.status == "healthy" {
				result = healthResult{"degraded", http.StatusServiceUnavailable, "cache_unreachable"}
			}
		} else {
			checks["cache"] = "healthy"
		}
	}
	return result, checks
}

// writeJSON writes a JSON response with the specified HTTP status code.
// Sets Content-Type header to application/json and encodes the provided value.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
