package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/rowanhenning/weather-data-service/internal/models"
	"github.com/rowanhenning/weather-data-service/internal/observability"
)

// DefaultBaseURL is the provider's production endpoint, used when no base URL
// is configured.
const DefaultBaseURL = "https://api.openweathermap.org/data/2.5"

// samplesPerDay is the number of 3-hour forecast samples upstream returns per day.
const samplesPerDay = 8

// MaxForecastDays caps forecast requests; values above it are silently clamped.
const MaxForecastDays = 5

// WeatherClient is the single point of contact with the upstream weather provider.
type WeatherClient interface {
	GetCurrentWeather(ctx context.Context, location string) (models.WeatherReport, error)
	GetForecast(ctx context.Context, location string, days int) ([]models.ForecastEntry, error)
	ValidateAPIKey(ctx context.Context) error
}

// OpenWeatherClient talks to the OpenWeatherMap API. It performs no internal
// retry; every failure surfaces to the caller.
type OpenWeatherClient struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	client  *http.Client
	clock   clockwork.Clock
}

// NewOpenWeatherClient builds a client. apiKey must be non-empty; baseURL
// defaults to DefaultBaseURL when empty.
func NewOpenWeatherClient(apiKey, baseURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &OpenWeatherClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		timeout: timeout,
		clock:   clockwork.NewRealClock(),
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetClock swaps the time source used for report timestamps. Pass nil to
// reset to real time. Intended for tests.
func (c *OpenWeatherClient) SetClock(clk clockwork.Clock) {
	if clk == nil {
		c.clock = clockwork.NewRealClock()
		return
	}
	c.clock = clk
}

type currentResponse struct {
	Main *struct {
		Temp     *float64 `json:"temp"`
		Humidity *int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Wind *struct {
		Speed *float64 `json:"speed"`
	} `json:"wind"`
	Name string `json:"name"`
}

type forecastResponse struct {
	List []forecastSample `json:"list"`
}

type forecastSample struct {
	DtTxt string `json:"dt_txt"`
	Main  *struct {
		Temp *float64 `json:"temp"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
}

// GetCurrentWeather fetches current conditions for location. The location is
// passed through to upstream unmodified; upstream performs geocoding.
func (c *OpenWeatherClient) GetCurrentWeather(ctx context.Context, location string) (models.WeatherReport, error) {
	body, err := c.call(ctx, "weather", url.Values{"q": []string{location}})
	if err != nil {
		return models.WeatherReport{}, err
	}

	var apiResp currentResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.WeatherReport{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if apiResp.Main == nil || apiResp.Main.Temp == nil {
		return models.WeatherReport{}, fmt.Errorf("%w: missing main.temp", ErrMalformedResponse)
	}
	if apiResp.Main.Humidity == nil {
		return models.WeatherReport{}, fmt.Errorf("%w: missing main.humidity", ErrMalformedResponse)
	}
	if apiResp.Wind == nil || apiResp.Wind.Speed == nil {
		return models.WeatherReport{}, fmt.Errorf("%w: missing wind.speed", ErrMalformedResponse)
	}

	return c.mapCurrent(apiResp, location), nil
}

// GetForecast fetches a multi-day forecast. days below 1 is rejected with
// ErrInvalidDays before any network call; days above MaxForecastDays is
// silently clamped. Upstream returns 3-hour samples; one entry per day is
// produced by taking every 8th sample starting at index 0. The result is
// shorter than days when upstream returns fewer samples than requested.
func (c *OpenWeatherClient) GetForecast(ctx context.Context, location string, days int) ([]models.ForecastEntry, error) {
	if days < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDays, days)
	}
	if days > MaxForecastDays {
		days = MaxForecastDays
	}

	params := url.Values{
		"q":   []string{location},
		"cnt": []string{fmt.Sprintf("%d", days*samplesPerDay)},
	}
	body, err := c.call(ctx, "forecast", params)
	if err != nil {
		return nil, err
	}

	var apiResp forecastResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	entries := make([]models.ForecastEntry, 0, days)
	for i := 0; i < len(apiResp.List); i += samplesPerDay {
		entry, err := mapForecastSample(apiResp.List[i])
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// call performs one GET against {baseURL}/{endpoint} and returns the body on
// a 2xx response. Non-success statuses, network failures, and timeouts are
// reported as *UpstreamError.
func (c *OpenWeatherClient) call(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	start := time.Now()

	reqCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := c.buildRequest(reqCtx, endpoint, params)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}

	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.WeatherAPIDuration.WithLabelValues(endpoint, "error").Observe(duration)

		timeout := errors.Is(err, context.DeadlineExceeded) || isClientTimeout(err)
		return nil, &UpstreamError{Message: err.Error(), Timeout: timeout, Err: err}
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(endpoint, status).Observe(duration)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := readErrorMessage(resp.Body)
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Message: msg}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{Message: fmt.Sprintf("read response body: %v", err), Err: err}
	}
	return body, nil
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, endpoint string, params url.Values) (*http.Request, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	base.Path = strings.TrimSuffix(base.Path, "/") + "/" + endpoint

	params.Set("appid", c.apiKey)
	params.Set("units", "metric")
	base.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", base.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *OpenWeatherClient) mapCurrent(apiResp currentResponse, location string) models.WeatherReport {
	conditions := ""
	if len(apiResp.Weather) > 0 {
		conditions = apiResp.Weather[0].Main
		if apiResp.Weather[0].Description != "" {
			conditions = apiResp.Weather[0].Description
		}
	}

	displayName := apiResp.Name
	if displayName == "" {
		displayName = location
	}

	return models.WeatherReport{
		Location:    strings.ToLower(displayName),
		Temperature: *apiResp.Main.Temp,
		Conditions:  conditions,
		Humidity:    *apiResp.Main.Humidity,
		WindSpeed:   *apiResp.Wind.Speed,
		Timestamp:   c.clock.Now().UTC(),
	}
}

// mapForecastSample converts one 3-hour sample into a per-day entry. The
// sample timestamp is truncated to calendar-date granularity (UTC midnight).
func mapForecastSample(s forecastSample) (models.ForecastEntry, error) {
	if s.Main == nil || s.Main.Temp == nil {
		return models.ForecastEntry{}, fmt.Errorf("%w: missing main.temp in forecast sample", ErrMalformedResponse)
	}
	ts, err := time.ParseInLocation("2006-01-02 15:04:05", s.DtTxt, time.UTC)
	if err != nil {
		return models.ForecastEntry{}, fmt.Errorf("%w: bad dt_txt %q", ErrMalformedResponse, s.DtTxt)
	}

	conditions := ""
	if len(s.Weather) > 0 {
		conditions = s.Weather[0].Description
	}

	return models.ForecastEntry{
		Date:        time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC),
		Temperature: *s.Main.Temp,
		Conditions:  conditions,
	}, nil
}

// readErrorMessage extracts the provider's error message from a non-success
// body, falling back to the raw body when it is not the usual JSON shape.
func readErrorMessage(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(body) == 0 {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(body))
}

func isClientTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "Client.Timeout")
}

func extractCorrelationID(ctx context.Context) string {
	if v := ctx.Value("correlation_id"); v != nil {
		if corrID, ok := v.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "success"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	default:
		return "error"
	}
}

// ValidateAPIKey performs a cheap upstream probe to confirm the configured
// key is accepted. Used by the health endpoint.
func (c *OpenWeatherClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := c.buildRequest(ctx, "weather", url.Values{"q": []string{"London"}})
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return &UpstreamError{StatusCode: resp.StatusCode, Message: "API key is invalid or not activated"}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("validation failed: HTTP %d", resp.StatusCode)
	}
	return nil
}
