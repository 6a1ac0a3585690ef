// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command gateway starts the AleutianScribe transform HTTP server.
//
// This is the main entry point for the containerized gateway service.
// It reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - SCRIBE_GATEWAY_PORT: HTTP server port (default: 12300)
//   - SCRIBE_GENERATION_BACKEND: generation provider - local, openai, ollama (default: local)
//   - SCRIBE_SOURCE_BACKEND: document source - fs, gcs, weaviate (default: fs)
//   - SCRIBE_DOCUMENT_DIR: root directory for the fs source (default: ./documents)
//   - SCRIBE_GCS_BUCKET, SCRIBE_GCS_PREFIX, SCRIBE_GCS_KEY_PATH: gcs source settings
//   - WEAVIATE_SERVICE_URL: Weaviate URL for the weaviate source
//   - SCRIBE_AUDIT_BACKEND: audit sink - chain, influx, slog, nop (default: chain)
//   - SCRIBE_AUDIT_LOG_PATH: hash-chained audit log file (default: ./logs/audit.jsonl)
//   - SCRIBE_INFLUX_URL, SCRIBE_INFLUX_TOKEN, SCRIBE_INFLUX_ORG, SCRIBE_INFLUX_BUCKET:
//     influx audit settings
//   - SCRIBE_REVIEW_DB_PATH: review queue database directory (default: ./data/reviews)
//   - SCRIBE_RATE_LIMIT_RPS: generation calls per second, 0 disables (default: 0)
//   - SCRIBE_ATTEMPT_TIMEOUT: per-attempt generation timeout, e.g. "90s"
//
// The generation backends read their own connection settings:
// LLM_SERVICE_URL_BASE (local), OPENAI_API_KEY (openai), and
// OLLAMA_BASE_URL (ollama).
//
// # Usage
//
//	# Build
//	go build -o gateway ./cmd/gateway
//
//	# Run
//	./gateway
//
//	# Or via container
//	podman-compose up gateway
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/AleutianAI/AleutianScribe/services/gateway"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Build configuration from environment variables
	cfg := gateway.Config{
		Port:              getEnvInt("SCRIBE_GATEWAY_PORT", 12300),
		GenerationBackend: getEnvString("SCRIBE_GENERATION_BACKEND", "local"),
		SourceBackend:     getEnvString("SCRIBE_SOURCE_BACKEND", "fs"),
		DocumentDir:       getEnvString("SCRIBE_DOCUMENT_DIR", "./documents"),
		GCSBucket:         os.Getenv("SCRIBE_GCS_BUCKET"),
		GCSPrefix:         os.Getenv("SCRIBE_GCS_PREFIX"),
		GCSKeyPath:        os.Getenv("SCRIBE_GCS_KEY_PATH"),
		WeaviateURL:       os.Getenv("WEAVIATE_SERVICE_URL"),
		AuditBackend:      getEnvString("SCRIBE_AUDIT_BACKEND", "chain"),
		AuditLogPath:      getEnvString("SCRIBE_AUDIT_LOG_PATH", "./logs/audit.jsonl"),
		InfluxURL:         os.Getenv("SCRIBE_INFLUX_URL"),
		InfluxToken:       os.Getenv("SCRIBE_INFLUX_TOKEN"),
		InfluxOrg:         os.Getenv("SCRIBE_INFLUX_ORG"),
		InfluxBucket:      os.Getenv("SCRIBE_INFLUX_BUCKET"),
		ReviewDBPath:      getEnvString("SCRIBE_REVIEW_DB_PATH", "./data/reviews"),
		RequestsPerSecond: getEnvFloat("SCRIBE_RATE_LIMIT_RPS", 0),
		AttemptTimeout:    getEnvDuration("SCRIBE_ATTEMPT_TIMEOUT", 0),
	}

	slog.Info("Starting gateway",
		"port", cfg.Port,
		"generation_backend", cfg.GenerationBackend,
		"source_backend", cfg.SourceBackend,
		"audit_backend", cfg.AuditBackend,
	)

	// Create the gateway with default (no-op) extension options
	// Shared deployments will pass custom ServiceOptions here
	svc, err := gateway.New(cfg, nil)
	if err != nil {
		log.Fatalf("Failed to create gateway: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Gateway error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns the environment variable as float64 or a default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvDuration returns the environment variable as a duration or a default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if dur, err := time.ParseDuration(value); err == nil {
			return dur
		}
	}
	return defaultValue
}
