// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package config contains unit tests for configuration types.

# Testing Strategy

These tests verify:
  - Default values are correctly applied
  - Getter methods fall back to defaults for zero values
*/
package config

import (
	"testing"
	"time"
)

// -----------------------------------------------------------------------------
// GatewayConfig Tests
// -----------------------------------------------------------------------------

// TestGatewayConfig_Timeout verifies default fallback.
func TestGatewayConfig_Timeout(t *testing.T) {
	tests := []struct {
		name     string
		config   GatewayConfig
		expected time.Duration
	}{
		{
			name:     "returns configured value",
			config:   GatewayConfig{TimeoutSeconds: 30},
			expected: 30 * time.Second,
		},
		{
			name:     "returns default when zero",
			config:   GatewayConfig{TimeoutSeconds: 0},
			expected: time.Duration(DefaultTimeoutSeconds) * time.Second,
		},
		{
			name:     "returns default when negative",
			config:   GatewayConfig{TimeoutSeconds: -10},
			expected: time.Duration(DefaultTimeoutSeconds) * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.config.Timeout(); got != tt.expected {
				t.Errorf("Timeout() = %v, want %v", got, tt.expected)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// DefaultConfig Tests
// -----------------------------------------------------------------------------

// TestDefaultConfig_GatewayDefaults verifies gateway connection defaults.
func TestDefaultConfig_GatewayDefaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Gateway.URL != "http://localhost:12300" {
		t.Errorf("Gateway.URL = %q, want %q", cfg.Gateway.URL, "http://localhost:12300")
	}

	if cfg.Gateway.Token != "" {
		t.Error("Gateway.Token should be empty by default")
	}

	if cfg.Gateway.TimeoutSeconds != DefaultTimeoutSeconds {
		t.Errorf("Gateway.TimeoutSeconds = %d, want %d",
			cfg.Gateway.TimeoutSeconds, DefaultTimeoutSeconds)
	}
}

// TestDefaultConfig_LoggingDefaults verifies logging configuration.
func TestDefaultConfig_LoggingDefaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}

	if cfg.Logging.Dir != "~/.scribe/logs" {
		t.Errorf("Logging.Dir = %q, want %q", cfg.Logging.Dir, "~/.scribe/logs")
	}
}

// TestDefaultConfig_RequestDefaults verifies per-request defaults.
func TestDefaultConfig_RequestDefaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Defaults.Audience != "" {
		t.Error("Defaults.Audience should be empty by default")
	}

	if cfg.Defaults.Format != "markdown" {
		t.Errorf("Defaults.Format = %q, want %q", cfg.Defaults.Format, "markdown")
	}
}
