// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resilience

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"
)

// ErrInvalidRetryConfig is returned when a retry configuration fails validation.
var ErrInvalidRetryConfig = errors.New("invalid retry configuration")

// RetryConfig configures retry behavior with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	// Default: 3
	MaxAttempts int

	// InitialBackoff is the backoff duration after the first failure.
	// Default: 1s
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff duration. Default: 30s
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to backoff after each failure.
	// Default: 2.0
	BackoffFactor float64

	// JitterFactor adds randomness to backoff (0.0 to 1.0).
	// A factor of 0.2 means backoff varies by +/- 20%. Default: 0.2
	JitterFactor float64
}

// DefaultRetryConfig returns sensible defaults for retry behavior.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		JitterFactor:   0.2,
	}
}

// Validate checks the retry configuration for validity.
func (c RetryConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return ErrInvalidRetryConfig
	}
	if c.InitialBackoff < 0 {
		return ErrInvalidRetryConfig
	}
	if c.MaxBackoff < c.InitialBackoff {
		return ErrInvalidRetryConfig
	}
	if c.BackoffFactor < 1.0 {
		return ErrInvalidRetryConfig
	}
	if c.JitterFactor < 0 || c.JitterFactor > 1.0 {
		return ErrInvalidRetryConfig
	}
	return nil
}

// RetryResult contains the outcome of a retry operation.
type RetryResult struct {
	// Attempts is the number of attempts made.
	Attempts int

	// TotalDuration is the total time spent including backoff waits.
	TotalDuration time.Duration

	// LastError is the error from the final attempt (nil on success).
	LastError error
}

// RetryableFunc is a function that can be retried.
//
// The attempt parameter is 1-based (first call has attempt=1).
type RetryableFunc func(ctx context.Context, attempt int) error

// retryableError marks a wrapped error as transient.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }

func (e *retryableError) Unwrap() error { return e.err }

func (e *retryableError) Retryable() bool { return true }

// MarkRetryable wraps an error so IsRetryable reports true for it.
//
// Callers that talk to a backend classify errors at the call site where
// the status code or failure mode is still visible, then hand the marked
// error back to the retry loop.
func MarkRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether an error is worth retrying.
//
// Transient conditions are retryable: marked errors, network timeouts,
// and deadline expiry. Everything else (auth failures, malformed
// requests, cancellation) fails fast because repeating the call cannot
// change the outcome.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var marked interface{ Retryable() bool }
	if errors.As(err, &marked) {
		return marked.Retryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}

// Retry executes fn with exponential backoff until it succeeds, exhausts
// the attempt budget, returns a non-retryable error, or ctx is done.
//
// Inputs:
//   - ctx: Cancellation aborts both waiting and further attempts.
//   - config: Retry behavior. Validated before the first attempt.
//   - fn: The operation. Receives the 1-based attempt number.
//
// Outputs:
//   - RetryResult: Attempt count and timing, filled in on every path.
//   - error: nil on success, otherwise the last attempt's error or ctx.Err().
func Retry(ctx context.Context, config RetryConfig, fn RetryableFunc) (RetryResult, error) {
	result := RetryResult{}

	if err := config.Validate(); err != nil {
		return result, err
	}

	start := time.Now()
	backoff := config.InitialBackoff

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			result.TotalDuration = time.Since(start)
			result.LastError = err
			return result, err
		}

		result.Attempts = attempt
		err := fn(ctx, attempt)
		if err == nil {
			result.TotalDuration = time.Since(start)
			result.LastError = nil
			return result, nil
		}

		result.LastError = err

		if !IsRetryable(err) {
			result.TotalDuration = time.Since(start)
			return result, err
		}

		if attempt == config.MaxAttempts {
			break
		}

		waitTime := calculateBackoff(backoff, config.JitterFactor)
		select {
		case <-ctx.Done():
			result.TotalDuration = time.Since(start)
			result.LastError = ctx.Err()
			return result, ctx.Err()
		case <-time.After(waitTime):
		}

		backoff = nextBackoff(backoff, config.BackoffFactor, config.MaxBackoff)
	}

	result.TotalDuration = time.Since(start)
	return result, result.LastError
}

// calculateBackoff applies jitter to a base backoff duration.
//
// The returned duration is in the range [base*(1-jitter), base*(1+jitter)].
func calculateBackoff(base time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return base
	}
	jitter := (rand.Float64()*2 - 1) * jitterFactor
	return time.Duration(float64(base) * (1 + jitter))
}

// nextBackoff computes the next backoff duration, capped at max.
func nextBackoff(current time.Duration, factor float64, max time.Duration) time.Duration {
	next := time.Duration(float64(current) * factor)
	if next > max {
		return max
	}
	return next
}
