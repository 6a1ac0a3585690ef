// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"time"
)

type ScribeConfig struct {
	// Gateway: how the CLI reaches the transform gateway
	Gateway GatewayConfig `yaml:"gateway"`

	// Logging: where the CLI writes its own operational logs
	Logging LoggingConfig `yaml:"logging"`

	// Defaults: request values applied when the matching flag is omitted
	Defaults RequestDefaults `yaml:"defaults"`
}

type GatewayConfig struct {
	URL            string `yaml:"url"`             // e.g. http://localhost:12300
	Token          string `yaml:"token,omitempty"` // bearer token, empty for open deployments
	TimeoutSeconds int    `yaml:"timeout_seconds"` // per-request HTTP timeout
}

// Timeout returns the request timeout as a duration, falling back to the
// default when the configured value is zero or negative.
func (g GatewayConfig) Timeout() time.Duration {
	if g.TimeoutSeconds <= 0 {
		return time.Duration(DefaultTimeoutSeconds) * time.Second
	}
	return time.Duration(g.TimeoutSeconds) * time.Second
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, or error
	Dir   string `yaml:"dir"`   // e.g. ~/.scribe/logs, empty disables file logging
}

type RequestDefaults struct {
	// Audience is used when transform is called without --audience.
	// Teams usually rewrite for the same audience over and over.
	Audience string `yaml:"audience,omitempty"`
	Format   string `yaml:"format"` // text, markdown, or json
}

// DefaultTimeoutSeconds allows for a full generation attempt plus retries.
const DefaultTimeoutSeconds = 180

func DefaultConfig() ScribeConfig {
	return ScribeConfig{
		Gateway: GatewayConfig{
			URL:            "http://localhost:12300",
			Token:          "",
			TimeoutSeconds: DefaultTimeoutSeconds,
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "~/.scribe/logs",
		},
		Defaults: RequestDefaults{
			Format: "markdown",
		},
	}
}
