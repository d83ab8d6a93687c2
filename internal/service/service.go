package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rowanhenning/weather-data-service/internal/cache"
	"github.com/rowanhenning/weather-data-service/internal/client"
	"github.com/rowanhenning/weather-data-service/internal/models"
	"github.com/rowanhenning/weather-data-service/internal/observability"
)

// WeatherService orchestrates weather data retrieval. Current conditions use
// a cache-aside pattern keyed per normalized location; forecasts are never
// cached and go straight upstream. Errors propagate to the caller unchanged;
// no retry or fallback happens here.
type WeatherService struct {
	client          client.WeatherClient
	cache           cache.Cache
	ttl             time.Duration
	stampedeTracker *stampedeTracker
	coalescer       *requestCoalescer // nil when coalescing disabled
}

// NewWeatherService creates a WeatherService with the provided dependencies.
// ttl is the cache window for current conditions. coalesceEnabled and
// coalesceTimeout configure request coalescing (disabled if timeout 0).
func NewWeatherService(client client.WeatherClient, cache cache.Cache, ttl time.Duration, coalesceEnabled bool, coalesceTimeout time.Duration) *WeatherService {
	var coalescer *requestCoalescer
	if coalesceEnabled && coalesceTimeout > 0 {
		coalescer = newRequestCoalescer(coalesceTimeout)
	}
	return &WeatherService{
		client:          client,
		cache:           cache,
		ttl:             ttl,
		stampedeTracker: newStampedeTracker(),
		coalescer:       coalescer,
	}
}

// loggerFromContext extracts a zap.Logger from request context if present.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return nil
}

// GetWeather returns current conditions for the location. A cache entry
// within the window is returned unchanged, original timestamp included; on a
// miss the upstream result is stored under the normalized location key.
func (s *WeatherService) GetWeather(ctx context.Context, location string) (models.WeatherReport, error) {
	key := normalizeLocation(location)
	start := time.Now()
	logger := loggerFromContext(ctx)
	observability.RecordWeatherQuery(key)

	getStart := time.Now()
	cached, ok, err := s.cache.Get(ctx, key)
	getDuration := time.Since(getStart).Seconds()
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", string(client.CategorizeError(err))).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(getDuration)
	} else if ok {
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(getDuration)
		observability.CacheHitsTotal.WithLabelValues("weather").Inc()
		if logger != nil {
			logger.Debug("cache hit", zap.String("location", key))
			logger.Debug("weather served", zap.String("location", key), zap.Bool("cached", true), zap.Duration("duration", time.Since(start)))
		}
		return cached, nil
	}

	concurrentMisses := s.stampedeTracker.RecordMiss(key)
	defer s.stampedeTracker.Resolve(key)
	locLabel := observability.MetricLocationLabel(key)
	if concurrentMisses > 1 {
		observability.CacheStampedeDetectedTotal.WithLabelValues(locLabel).Inc()
		observability.CacheStampedeConcurrency.WithLabelValues(locLabel).Observe(float64(concurrentMisses))
	}

	if logger != nil {
		logger.Debug("cache miss, fetching upstream", zap.String("location", key))
	}

	var report models.WeatherReport
	var upstreamErr error
	if s.coalescer != nil {
		coalesceStart := time.Now()
		report, upstreamErr = s.coalescer.GetOrDo(ctx, key, func() (models.WeatherReport, error) {
			return s.client.GetCurrentWeather(ctx, key)
		})
		coalesceWait := time.Since(coalesceStart)
		if upstreamErr == nil {
			// A wait above the threshold means we piggybacked on another
			// caller's request rather than initiating our own (approximate).
			if coalesceWait > 10*time.Millisecond {
				observability.RequestCoalescingHitsTotal.WithLabelValues(locLabel).Inc()
			}
			observability.RequestCoalescingWaitSeconds.Observe(coalesceWait.Seconds())
		}
	} else {
		report, upstreamErr = s.client.GetCurrentWeather(ctx, key)
	}
	if upstreamErr != nil {
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(client.CategorizeError(upstreamErr))).Inc()
		return models.WeatherReport{}, fmt.Errorf("fetch weather for %s: %w", key, upstreamErr)
	}

	setStart := time.Now()
	if setErr := s.cache.Set(ctx, key, report, s.ttl); setErr != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", string(client.CategorizeError(setErr))).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "error").Observe(time.Since(setStart).Seconds())
		if logger != nil {
			logger.Warn("cache set failed", zap.String("location", key), zap.Error(setErr))
		}
	} else {
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(time.Since(setStart).Seconds())
	}
	if logger != nil {
		logger.Debug("weather served", zap.String("location", key), zap.Bool("cached", false), zap.Duration("duration", time.Since(start)))
	}
	return report, nil
}

// GetForecast returns a multi-day forecast. Forecasts are never cached; every
// call is an upstream request. Day-count validation lives in the client.
func (s *WeatherService) GetForecast(ctx context.Context, location string, days int) ([]models.ForecastEntry, error) {
	key := normalizeLocation(location)
	observability.RecordForecastQuery(key)
	logger := loggerFromContext(ctx)

	entries, err := s.client.GetForecast(ctx, key, days)
	if err != nil {
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(client.CategorizeError(err))).Inc()
		return nil, fmt.Errorf("fetch forecast for %s: %w", key, err)
	}
	if logger != nil {
		logger.Debug("forecast served", zap.String("location", key), zap.Int("days", days), zap.Int("entries", len(entries)))
	}
	return entries, nil
}

// normalizeLocation trims whitespace and lowercases so cache keys and
// upstream requests are consistent regardless of input format.
func normalizeLocation(location string) string {
	return strings.ToLower(strings.TrimSpace(location))
}
