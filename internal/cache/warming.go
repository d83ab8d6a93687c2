package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rowanhenning/weather-data-service/internal/models"
	"github.com/rowanhenning/weather-data-service/internal/observability"
)

// ReportFetcher is implemented by the service layer to fetch current
// conditions for a location. Used by Warmer to avoid a circular dependency on
// the service package.
type ReportFetcher interface {
	GetWeather(ctx context.Context, location string) (models.WeatherReport, error)
}

// Warmer prefetches current conditions for a list of locations so the first
// real caller hits a warm cache.
type Warmer struct {
	fetcher ReportFetcher
	logger  *zap.Logger
}

// NewWarmer creates a Warmer that uses the given fetcher and logger.
func NewWarmer(fetcher ReportFetcher, logger *zap.Logger) *Warmer {
	return &Warmer{fetcher: fetcher, logger: logger}
}

// Warm fetches conditions for each location concurrently, populating the
// cache via the fetcher. Returns an aggregated error if any location failed.
func (w *Warmer) Warm(ctx context.Context, locations []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming cache", zap.Int("locations", len(locations)))
	}
	var wg sync.WaitGroup
	errCh := make(chan error, len(locations))
	for _, loc := range locations {
		wg.Add(1)
		go func(loc string) {
			defer wg.Done()
			if _, err := w.fetcher.GetWeather(ctx, loc); err != nil {
				errCh <- fmt.Errorf("warm %s: %w", loc, err)
			}
		}(loc)
	}
	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("cache warming complete", zap.Int("locations", len(locations)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %v", errs)
	}
	return nil
}

// WarmPeriodic runs an initial Warm, then refreshes at the given interval
// until ctx is done.
func (w *Warmer) WarmPeriodic(ctx context.Context, locations []string, interval time.Duration) error {
	if err := w.Warm(ctx, locations); err != nil && w.logger != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, locations); err != nil && w.logger != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
