package rest

import (
	"net/http"
	"time"

	"github.com/datazip-inc/resttap/constants"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// RetryConfig bounds the retry loop around a single page fetch.
type RetryConfig struct {
	MaxAttempts     int           `json:"max_attempts,omitempty" validate:"gte=0"`
	InitialInterval time.Duration `json:"-"`
	MaxInterval     time.Duration `json:"-"`
	Multiplier      float64       `json:"multiplier,omitempty" validate:"gte=0"`
	// per attempt, covering the request and reading the body
	RequestTimeout time.Duration `json:"-"`
	// replaces the default 429 + 5xx set when not empty
	RetryStatusCodes []int `json:"retry_status_codes,omitempty"`
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     constants.DefaultMaxAttempts,
		InitialInterval: constants.DefaultInitialBackoff,
		MaxInterval:     constants.DefaultMaxBackoff,
		Multiplier:      constants.DefaultMultiplier,
		RequestTimeout:  constants.DefaultRequestTimeout,
	}
}

func (r RetryConfig) withDefaults() RetryConfig {
	defaults := DefaultRetryConfig()
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = defaults.MaxAttempts
	}
	if r.InitialInterval <= 0 {
		r.InitialInterval = defaults.InitialInterval
	}
	if r.MaxInterval <= 0 {
		r.MaxInterval = defaults.MaxInterval
	}
	if r.Multiplier <= 0 {
		r.Multiplier = defaults.Multiplier
	}
	if r.RequestTimeout <= 0 {
		r.RequestTimeout = defaults.RequestTimeout
	}
	return r
}

func (r RetryConfig) retryable() map[int]bool {
	codes := make(map[int]bool, len(r.RetryStatusCodes))
	for _, code := range r.RetryStatusCodes {
		codes[code] = true
	}
	return codes
}

// NewHTTPClient returns a client whose transport is traced. Timeouts are
// applied per attempt through the request context.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}
