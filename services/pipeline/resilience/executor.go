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

	"golang.org/x/time/rate"
)

// Executor composes the circuit breaker, retry loop, and rate limiter
// around a single protected call site.
//
// The breaker sees one outcome per Execute, not one per attempt: the
// whole retry loop runs inside a single breaker admission, succeeds if
// any attempt succeeds, and counts as one failure only when every
// attempt is exhausted. Recording each attempt separately would let a
// single flaky request trip the breaker on its own.
//
// Thread Safety: Safe for concurrent use.
type Executor struct {
	breaker *CircuitBreaker
	retry   RetryConfig
	limiter *rate.Limiter
}

// NewExecutor creates an executor for one protected call site.
//
// Inputs:
//   - breaker: Required. Usually obtained from a Registry.
//   - retry: Retry behavior. Zero value means DefaultRetryConfig.
//   - limiter: Optional outbound rate limiter. nil means unlimited.
func NewExecutor(breaker *CircuitBreaker, retry RetryConfig, limiter *rate.Limiter) *Executor {
	if retry == (RetryConfig{}) {
		retry = DefaultRetryConfig()
	}
	return &Executor{
		breaker: breaker,
		retry:   retry,
		limiter: limiter,
	}
}

// NewLimiter creates a rate limiter allowing rps events per second with
// the given burst size.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Execute runs fn under the breaker, retry, and rate limit policies.
//
// If the breaker is open, Execute returns ErrCircuitOpen without
// calling fn or consuming a rate token. Otherwise every attempt waits
// for the rate limiter before running, and the combined outcome is
// recorded on the breaker exactly once. Caller cancellation does not
// un-record downstream failures: if at least one attempt ran, the
// failure outcome is recorded; cancellation before any attempt records
// nothing because the downstream was never touched.
//
// Outputs:
//   - RetryResult: Attempt count and timing for observability.
//   - error: nil on success, ErrCircuitOpen on rejection, otherwise the
//     final attempt's error.
func (e *Executor) Execute(ctx context.Context, fn RetryableFunc) (RetryResult, error) {
	if !e.breaker.Allow() {
		return RetryResult{LastError: ErrCircuitOpen}, ErrCircuitOpen
	}

	result, err := Retry(ctx, e.retry, e.limited(fn))

	switch {
	case err == nil:
		e.breaker.RecordSuccess()
	case errors.Is(err, context.Canceled) && result.Attempts == 0:
		// The downstream was never called.
	default:
		e.breaker.RecordFailure()
	}

	return result, err
}

// State returns the current state of the underlying breaker.
func (e *Executor) State() CircuitState {
	return e.breaker.State()
}

// limited wraps fn so each attempt waits for a rate token first.
func (e *Executor) limited(fn RetryableFunc) RetryableFunc {
	if e.limiter == nil {
		return fn
	}
	return func(ctx context.Context, attempt int) error {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
		return fn(ctx, attempt)
	}
}
