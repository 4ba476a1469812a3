package provider

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/docloom/docloom/internal/log"
)

// Options carries cross-cutting construction parameters shared by both
// capabilities. The zero value is usable.
type Options struct {
	// Timeout bounds a single HTTP call. Zero means the default.
	Timeout time.Duration

	// Limiter throttles outbound calls. Nil disables throttling.
	Limiter *rate.Limiter

	// Retry overrides transient-error backoff. Zero means defaults.
	Retry RetryConfig

	// Logger receives retry and shedding diagnostics. Nil means silent.
	Logger log.Logger
}

func (o Options) retryOrDefault() RetryConfig {
	if o.Retry.MaxRetries == 0 && o.Retry.InitialInterval == 0 {
		return DefaultRetryConfig()
	}
	return o.Retry
}

func (o Options) loggerOrNop() log.Logger {
	if o.Logger == nil {
		return log.NewNop()
	}
	return o.Logger
}
