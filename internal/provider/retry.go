package provider

import (
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// RetryConfig configures backoff for transient provider errors. Retries
// apply only to idempotent calls (embedding); generation is never replayed
// on transient failure.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval int // milliseconds
	MaxInterval     int // milliseconds
}

// DefaultRetryConfig returns sensible defaults for provider API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      2,
		InitialInterval: 500,
		MaxInterval:     5000,
	}
}

// retryableError reports whether err is transient. Typed API errors are
// classified by status code; everything else falls back to substring
// matching because not every backend surfaces a typed error.
func retryableError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, sub := range []string{"connection reset", "connection refused", "timeout", "temporary", "unavailable"} {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}

// temperatureRejected reports whether err is a parameter-rejection response
// naming temperature. Some hosted models accept only their default
// temperature; the caller strips the parameter and retries exactly once.
// Only a client rejection that names the parameter qualifies, so unrelated
// failures are never masked by the retry.
func temperatureRejected(err error) bool {
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.HTTPStatusCode != http.StatusBadRequest {
		return false
	}
	if p := apiErr.Param; p != nil && strings.EqualFold(*p, "temperature") {
		return true
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "temperature")
}
