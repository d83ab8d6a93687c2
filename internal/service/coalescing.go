package service

import (
	"context"
	"sync"
	"time"

	"github.com/rowanhenning/weather-data-service/internal/models"
)

// inFlightRequest tracks a single upstream request that multiple callers may wait for.
type inFlightRequest struct {
	mu      sync.Mutex
	result  models.WeatherReport
	err     error
	done    bool
	waiters []chan struct{} // closed/notified when the result is ready
}

// requestCoalescer collapses concurrent cache misses for the same key into
// one upstream call; late arrivals wait for the in-flight result.
type requestCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightRequest
	timeout  time.Duration
}

// newRequestCoalescer creates a requestCoalescer with the specified wait timeout.
func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{
		inFlight: make(map[string]*inFlightRequest),
		timeout:  timeout,
	}
}

// GetOrDo checks if a request for key is already in-flight. If yes, waits for
// its result. If no, executes fn and registers the request. Respects context
// cancellation and the configured timeout to avoid blocking indefinitely.
func (rc *requestCoalescer) GetOrDo(ctx context.Context, key string, fn func() (models.WeatherReport, error)) (models.WeatherReport, error) {
	rc.mu.Lock()
	req, exists := rc.inFlight[key]
	if exists {
		notify := make(chan struct{})
		req.mu.Lock()
		if req.done {
			result := req.result
			err := req.err
			req.mu.Unlock()
			rc.mu.Unlock()
			if err != nil {
				return models.WeatherReport{}, err
			}
			return result, nil
		}
		req.waiters = append(req.waiters, notify)
		req.mu.Unlock()
		rc.mu.Unlock()

		waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
		defer cancel()
		select {
		case <-notify:
			req.mu.Lock()
			result := req.result
			err := req.err
			req.mu.Unlock()
			if err != nil {
				return models.WeatherReport{}, err
			}
			return result, nil
		case <-waitCtx.Done():
			return models.WeatherReport{}, waitCtx.Err()
		}
	}

	req = &inFlightRequest{}
	rc.inFlight[key] = req
	rc.mu.Unlock()

	result, err := fn()

	req.mu.Lock()
	req.result = result
	req.err = err
	req.done = true
	waiters := req.waiters
	req.waiters = nil
	req.mu.Unlock()

	rc.mu.Lock()
	delete(rc.inFlight, key)
	rc.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}

	if err != nil {
		return models.WeatherReport{}, err
	}
	return result, nil
}
