// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resilience wraps unreliable downstream calls in circuit
// breaking, retry with exponential backoff, and rate limiting. The
// generation service is the primary protected call site: it fails
// slowly and often, and the pipeline must fail fast and safely instead
// of cascading.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed allows requests through normally.
	CircuitClosed CircuitState = iota

	// CircuitOpen rejects all requests immediately.
	CircuitOpen

	// CircuitHalfOpen allows limited probe requests to test recovery.
	CircuitHalfOpen
)

// String returns the human-readable name for the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening.
	// Default: 5
	FailureThreshold int

	// ResetTimeout is the duration to wait before transitioning from open
	// to half-open. Default: 60s
	ResetTimeout time.Duration

	// HalfOpenMaxRequests is the max probe requests allowed in half-open.
	// Default: 2
	HalfOpenMaxRequests int

	// SuccessThreshold is the number of consecutive successes in half-open
	// required to close. Default: 2
	SuccessThreshold int

	// OnStateChange is called when the state transitions. Called
	// asynchronously so a slow observer cannot block the caller.
	OnStateChange func(from, to CircuitState)
}

// DefaultCircuitBreakerConfig returns sensible defaults for the circuit breaker.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:    5,
		ResetTimeout:        60 * time.Second,
		HalfOpenMaxRequests: 2,
		SuccessThreshold:    2,
	}
}

// CircuitBreaker implements the circuit breaker pattern for fault tolerance.
//
// The circuit breaker has three states:
// - Closed: Normal operation, requests pass through
// - Open: Failure threshold exceeded, requests are rejected immediately
// - Half-Open: Testing recovery, limited requests allowed
//
// Thread Safety: Safe for concurrent use.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	state                CircuitState
	consecutiveFailures  int
	consecutiveSuccesses int
	halfOpenRequests     int
	lastFailureTime      time.Time
	lastStateChange      time.Time

	mu sync.RWMutex
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration.
// Zero-value config fields fall back to the defaults.
//
// Outputs:
//   - *CircuitBreaker: A new circuit breaker in closed state.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	defaults := DefaultCircuitBreakerConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = defaults.ResetTimeout
	}
	if config.HalfOpenMaxRequests <= 0 {
		config.HalfOpenMaxRequests = defaults.HalfOpenMaxRequests
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = defaults.SuccessThreshold
	}

	return &CircuitBreaker{
		config:          config,
		state:           CircuitClosed,
		lastStateChange: time.Now(),
	}
}

// Allow checks if a request should be allowed through.
//
// Returns true if the request is allowed, false if it should be rejected.
// In half-open state, this also counts the probe against the probe budget.
//
// Thread Safety: Safe for concurrent use.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()

	switch cb.state {
	case CircuitClosed:
		return true

	case CircuitOpen:
		if now.Sub(cb.lastFailureTime) >= cb.config.ResetTimeout {
			cb.transitionTo(CircuitHalfOpen, now)
			cb.halfOpenRequests = 1
			return true
		}
		return false

	case CircuitHalfOpen:
		if cb.halfOpenRequests < cb.config.HalfOpenMaxRequests {
			cb.halfOpenRequests++
			return true
		}
		return false

	default:
		return false
	}
}

// RecordSuccess records a successful call outcome.
//
// In half-open state, consecutive successes may close the circuit.
//
// Thread Safety: Safe for concurrent use.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.consecutiveFailures = 0

	case CircuitHalfOpen:
		cb.consecutiveSuccesses++
		cb.consecutiveFailures = 0
		if cb.consecutiveSuccesses >= cb.config.SuccessThreshold {
			cb.transitionTo(CircuitClosed, time.Now())
		}
	}
}

// RecordFailure records a failed call outcome.
//
// Consecutive failures may open the circuit. Any failure in half-open
// reopens it immediately and restarts the reset clock.
//
// Thread Safety: Safe for concurrent use.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	cb.lastFailureTime = now

	switch cb.state {
	case CircuitClosed:
		cb.consecutiveFailures++
		cb.consecutiveSuccesses = 0
		if cb.consecutiveFailures >= cb.config.FailureThreshold {
			cb.transitionTo(CircuitOpen, now)
		}

	case CircuitHalfOpen:
		cb.transitionTo(CircuitOpen, now)
	}
}

// State returns the current circuit state.
//
// Thread Safety: Safe for concurrent use.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Stats returns current circuit breaker statistics.
//
// Thread Safety: Safe for concurrent use.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return CircuitBreakerStats{
		State:                cb.state,
		ConsecutiveFailures:  cb.consecutiveFailures,
		ConsecutiveSuccesses: cb.consecutiveSuccesses,
		LastFailureTime:      cb.lastFailureTime,
		LastStateChange:      cb.lastStateChange,
	}
}

// Reset returns the circuit breaker to closed state.
//
// This is primarily for testing or manual intervention.
//
// Thread Safety: Safe for concurrent use.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = CircuitClosed
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
	cb.halfOpenRequests = 0
	cb.lastStateChange = time.Now()
}

// transitionTo changes the circuit state.
// Must be called with lock held.
func (cb *CircuitBreaker) transitionTo(newState CircuitState, now time.Time) {
	old := cb.state
	cb.state = newState
	cb.lastStateChange = now
	cb.consecutiveSuccesses = 0
	cb.halfOpenRequests = 0

	if newState == CircuitClosed {
		cb.consecutiveFailures = 0
	}

	if cb.config.OnStateChange != nil && old != newState {
		go cb.config.OnStateChange(old, newState)
	}
}

// CircuitBreakerStats contains circuit breaker statistics.
type CircuitBreakerStats struct {
	State                CircuitState
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastFailureTime      time.Time
	LastStateChange      time.Time
}

// TimeSinceLastFailure returns the duration since the last failure.
func (s CircuitBreakerStats) TimeSinceLastFailure() time.Duration {
	if s.LastFailureTime.IsZero() {
		return 0
	}
	return time.Since(s.LastFailureTime)
}

// Registry holds one named circuit breaker per protected call site.
//
// The orchestrator receives a registry instead of reaching for package
// globals, so every test can construct fresh breakers and two pipelines
// never share state by accident.
//
// Thread Safety: Safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	config   CircuitBreakerConfig
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates a registry whose breakers share one configuration.
func NewRegistry(config CircuitBreakerConfig) *Registry {
	return &Registry{
		config:   config,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Breaker returns the breaker for a call site, creating it on first use.
func (r *Registry) Breaker(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, ok := r.breakers[name]
	if !ok {
		cb = NewCircuitBreaker(r.config)
		r.breakers[name] = cb
	}
	return cb
}

// Stats returns a snapshot of every registered breaker.
func (r *Registry) Stats() map[string]CircuitBreakerStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := make(map[string]CircuitBreakerStats, len(r.breakers))
	for name, cb := range r.breakers {
		stats[name] = cb.Stats()
	}
	return stats
}
