package utils

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig holds configuration for retry operations with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial attempt)
	MaxAttempts int

	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration

	// MaxDelay caps exponential growth
	MaxDelay time.Duration

	// BackoffFactor is the multiplier for exponential backoff (e.g., 2.0 doubles delay)
	BackoffFactor float64

	// JitterFactor adds randomness to delays (0.0-1.0, where 0.1 = 10% jitter)
	JitterFactor float64

	// RetryableErrors reports whether err should trigger a retry.
	// If nil, all errors are considered retryable.
	RetryableErrors func(error) bool
}

// DefaultRetryConfig returns the policy used when dialing brokers and
// Redis at startup: 5 attempts, 500ms doubling up to 10s, 10% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   5,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
		JitterFactor:  0.1,
	}
}

// RetryWithBackoff runs fn until it succeeds, returns a non-retryable error,
// the attempts are exhausted or ctx is done.
func RetryWithBackoff(ctx context.Context, config RetryConfig, fn func() error) error {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if config.RetryableErrors != nil && !config.RetryableErrors(err) {
			return err
		}
		if attempt == config.MaxAttempts {
			break
		}

		wait := delay
		if config.JitterFactor > 0 && wait > 0 {
			wait += time.Duration(rand.Int63n(int64(float64(wait)*config.JitterFactor) + 1))
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * config.BackoffFactor)
		if config.MaxDelay > 0 && delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
