package transport

import (
	"errors"
	"time"
)

// Default policy values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
)

// Policy decides whether and when a failed attempt is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BaseDelay is the fixed delay after transport errors and the base of
	// the exponential delay after rate limiting.
	BaseDelay time.Duration
	// MaxDelay caps the exponential delay.
	MaxDelay time.Duration
	// Retryable selects the error kinds that are retried. Nil means IsRetryable.
	Retryable func(error) bool
}

// DefaultPolicy returns the policy shared by all providers.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

// ShouldRetry reports whether err may be retried under this policy.
func (p Policy) ShouldRetry(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return IsRetryable(err)
}

// Delay returns the wait before the retry that follows the given 0-based attempt.
// Rate limiting backs off exponentially (BaseDelay * 2^attempt); every other
// retryable error waits BaseDelay.
func (p Policy) Delay(err error, attempt int) time.Duration {
	var rl *RateLimitedError
	if !errors.As(err, &rl) {
		return p.BaseDelay
	}

	delay := p.BaseDelay << uint(attempt)
	if p.MaxDelay > 0 && (delay > p.MaxDelay || delay <= 0) {
		delay = p.MaxDelay
	}
	return delay
}
