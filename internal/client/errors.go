package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrMissingAPIKey is returned at construction when no API key is configured.
// It is raised before any network activity occurs.
var ErrMissingAPIKey = errors.New("API key is required")

// ErrInvalidDays is returned when a forecast is requested for fewer than one day.
// No upstream call is attempted.
var ErrInvalidDays = errors.New("forecast days must be at least 1")

// ErrMalformedResponse is returned when upstream replied with a success status
// but the JSON body did not contain the expected shape.
var ErrMalformedResponse = errors.New("malformed upstream response")

// UpstreamError reports a failed exchange with the weather provider: a
// non-success HTTP status, a network failure, or a timeout. StatusCode is zero
// when no response was received.
type UpstreamError struct {
	StatusCode int
	Message    string
	Timeout    bool
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode > 0:
		return fmt.Sprintf("upstream: HTTP %d: %s", e.StatusCode, e.Message)
	case e.Timeout:
		return fmt.Sprintf("upstream: timeout: %s", e.Message)
	default:
		return fmt.Sprintf("upstream: %s", e.Message)
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

// Error category constants used as metric labels (weatherApiErrorsTotal).
const (
	ErrorCategoryTimeout       ErrorCategory = "timeout"
	ErrorCategoryNetwork       ErrorCategory = "network"
	ErrorCategoryUpstream4xx   ErrorCategory = "upstream_4xx"
	ErrorCategoryUpstream5xx   ErrorCategory = "upstream_5xx"
	ErrorCategoryParsing       ErrorCategory = "parsing"
	ErrorCategoryValidation    ErrorCategory = "validation"
	ErrorCategoryConfiguration ErrorCategory = "configuration"
	ErrorCategoryCache         ErrorCategory = "cache"
	ErrorCategoryUnknown       ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory for metrics.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if errors.Is(err, ErrMissingAPIKey) {
		return ErrorCategoryConfiguration
	}
	if errors.Is(err, ErrInvalidDays) {
		return ErrorCategoryValidation
	}
	if errors.Is(err, ErrMalformedResponse) {
		return ErrorCategoryParsing
	}

	var ue *UpstreamError
	if errors.As(err, &ue) {
		switch {
		case ue.Timeout:
			return ErrorCategoryTimeout
		case ue.StatusCode >= 500:
			return ErrorCategoryUpstream5xx
		case ue.StatusCode >= 400:
			return ErrorCategoryUpstream4xx
		default:
			return ErrorCategoryNetwork
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorCategoryTimeout
	}

	errStr := err.Error()
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return ErrorCategoryNetwork
	}
	if strings.Contains(errStr, "parse") || strings.Contains(errStr, "unmarshal") {
		return ErrorCategoryParsing
	}
	if strings.Contains(errStr, "cache") {
		return ErrorCategoryCache
	}

	return ErrorCategoryUnknown
}
