package transport

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse is returned when an upstream payload cannot be decoded
// or lacks required fields. It is never retried.
var ErrMalformedResponse = errors.New("malformed upstream response")

// RateLimitedError signals provider-side throttling (HTTP 429).
type RateLimitedError struct {
	Provider string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: rate limited (429)", e.Provider)
}

// TransportError is a timeout or connection failure.
type TransportError struct {
	Provider string
	Timeout  bool
	Err      error
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: request timed out: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: request failed: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// UpstreamError is a non-2xx response or a JSON-RPC error object.
// StatusCode is the HTTP status; Code carries the JSON-RPC error code when set.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Code       int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: RPC error %d: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsRetryable reports whether err is a rate-limit or transport failure.
func IsRetryable(err error) bool {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return true
	}
	var te *TransportError
	return errors.As(err, &te)
}

// Malformed wraps a decoding or validation failure as ErrMalformedResponse.
func Malformed(provider, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w: %s", provider, ErrMalformedResponse, fmt.Sprintf(format, args...))
}

// errorKind returns a short label for metrics.
func errorKind(err error) string {
	var rl *RateLimitedError
	var te *TransportError
	var ue *UpstreamError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &rl):
		return "rate_limited"
	case errors.As(err, &te):
		if te.Timeout {
			return "timeout"
		}
		return "transport"
	case errors.As(err, &ue):
		return "upstream"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	default:
		return "error"
	}
}
