package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rowanhenning/weather-data-service/internal/client"
	"github.com/rowanhenning/weather-data-service/internal/service"
	"github.com/rowanhenning/weather-data-service/internal/validation"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weatherService *service.WeatherService
	client         client.WeatherClient
	logger         *zap.Logger
	rateLimiter    *rate.Limiter
	locationMinLen int
	locationMaxLen int
	// cachePing, when set, is called to check cache reachability. Used when
	// the backend is memcached or redis.
	cachePing func() error
}

// NewHandler returns a new Handler.
func NewHandler(
	weatherService *service.WeatherService,
	client client.WeatherClient,
	logger *zap.Logger,
	rateLimiter *rate.Limiter,
	locationMinLen, locationMaxLen int,
	cachePing func() error,
) *Handler {
	return &Handler{
		weatherService: weatherService,
		client:         client,
		logger:         logger,
		rateLimiter:    rateLimiter,
		locationMinLen: locationMinLen,
		locationMaxLen: locationMaxLen,
		cachePing:      cachePing,
	}
}

// GetWeather handles GET /weather/{location}.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	location, err := validation.ValidateLocation(mux.Vars(r)["location"], h.locationMinLen, h.locationMaxLen)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
		return
	}

	result, err := h.weatherService.GetWeather(r.Context(), location)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetForecast handles GET /forecast/{location}?days=N. days defaults to the
// maximum when absent; values above the maximum are clamped downstream, while
// values below 1 are rejected.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	location, err := validation.ValidateLocation(mux.Vars(r)["location"], h.locationMinLen, h.locationMaxLen)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
		return
	}

	days := client.MaxForecastDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		days, err = strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_DAYS", validation.ErrDaysNotANumber.Error())
			return
		}
	}

	entries, err := h.weatherService.GetForecast(r.Context(), location, days)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"location": location,
		"forecast": entries,
	})
}

// GetHealth handles GET /health. Reports API-key validity and, when a ping
// function is configured, cache backend reachability.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	statusCode := http.StatusOK
	checks := make(map[string]string)

	if err := h.client.ValidateAPIKey(r.Context()); err != nil {
		checks["weatherApi"] = "unhealthy"
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["weatherApi"] = "healthy"
	}

	if h.cachePing != nil {
		if err := h.cachePing(); err != nil {
			checks["cache"] = "unhealthy"
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		} else {
			checks["cache"] = "healthy"
		}
	}

	writeJSON(w, statusCode, map[string]interface{}{
		"status":    status,
		"service":   "weather-data-service",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code,
// message, and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID, _ = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeServiceError maps service-layer errors onto HTTP responses: rejected
// day counts become 400, an upstream 404 becomes 404, a malformed upstream
// body becomes 502, and everything else upstream becomes 503.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger, _ := r.Context().Value("logger").(*zap.Logger)

	switch {
	case errors.Is(err, client.ErrInvalidDays):
		writeError(w, r, http.StatusBadRequest, "INVALID_DAYS", "days must be at least 1")
		return
	case errors.Is(err, client.ErrMalformedResponse):
		writeError(w, r, http.StatusBadGateway, "BAD_UPSTREAM_RESPONSE", "Weather provider returned an unexpected response")
		if logger != nil {
			logger.Warn("upstream contract violation", zap.Error(err))
		}
		return
	}

	var ue *client.UpstreamError
	if errors.As(err, &ue) && ue.StatusCode == http.StatusNotFound {
		writeError(w, r, http.StatusNotFound, "LOCATION_NOT_FOUND", "Location not found")
		return
	}

	writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch weather data")
	if logger != nil {
		logger.Debug("upstream error", zap.Error(err))
	}
}
