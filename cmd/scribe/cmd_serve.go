// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianScribe/services/gateway"
)

// ===== SERVE COMMAND FLAGS =====

var (
	servePort              int           // HTTP port for the gateway
	serveGenerationBackend string        // local, openai, or ollama
	serveSourceBackend     string        // fs, gcs, or weaviate
	serveDocumentDir       string        // root directory for the fs source
	serveAuditBackend      string        // chain, influx, slog, or nop
	serveAuditLogPath      string        // hash-chained audit log file
	serveReviewDBPath      string        // review queue database directory
	serveRateLimit         float64       // generation calls per second, 0 disables
	serveAttemptTimeout    time.Duration // per-attempt generation timeout
)

// init registers the serve flags. Each default already folds in the
// matching environment variable, so precedence is flag, then env, then
// the built-in value.
func init() {
	serveCmd.Flags().IntVar(&servePort, "port",
		envInt("SCRIBE_GATEWAY_PORT", 12300), "HTTP port for the gateway")
	serveCmd.Flags().StringVar(&serveGenerationBackend, "generation-backend",
		envString("SCRIBE_GENERATION_BACKEND", "local"), "Generation provider: local, openai, or ollama")
	serveCmd.Flags().StringVar(&serveSourceBackend, "source-backend",
		envString("SCRIBE_SOURCE_BACKEND", "fs"), "Document source: fs, gcs, or weaviate")
	serveCmd.Flags().StringVar(&serveDocumentDir, "document-dir",
		envString("SCRIBE_DOCUMENT_DIR", "./documents"), "Root directory for the fs source")
	serveCmd.Flags().StringVar(&serveAuditBackend, "audit-backend",
		envString("SCRIBE_AUDIT_BACKEND", "chain"), "Audit sink: chain, influx, slog, or nop")
	serveCmd.Flags().StringVar(&serveAuditLogPath, "audit-log",
		envString("SCRIBE_AUDIT_LOG_PATH", "./logs/audit.jsonl"), "Hash-chained audit log file")
	serveCmd.Flags().StringVar(&serveReviewDBPath, "review-db",
		envString("SCRIBE_REVIEW_DB_PATH", "./data/reviews"), "Review queue database directory")
	serveCmd.Flags().Float64Var(&serveRateLimit, "rate-limit",
		envFloat("SCRIBE_RATE_LIMIT_RPS", 0), "Generation calls per second, 0 disables")
	serveCmd.Flags().DurationVar(&serveAttemptTimeout, "attempt-timeout",
		envDuration("SCRIBE_ATTEMPT_TIMEOUT", 0), "Per-attempt generation timeout, e.g. 90s")
}

// runServe starts the transform gateway in the foreground.
//
// # Description
//
//	Builds a gateway.Config from the serve flags and blocks on the HTTP
//	server until it shuts down. Cloud and database connection settings
//	with no flag equivalent (GCS, Weaviate, Influx, bearer tokens) come
//	straight from the environment, the same variables the containerized
//	gateway binary reads.
//
// # Inputs
//
//   - cmd: The Cobra command context
//   - args: unused
//
// # Outputs
//
//   - None. Exits non-zero if the gateway cannot start.
func runServe(cmd *cobra.Command, args []string) {
	// A foreground service logs JSON to stdout, not to the CLI log file
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg := gateway.Config{
		Port:              servePort,
		GenerationBackend: serveGenerationBackend,
		SourceBackend:     serveSourceBackend,
		DocumentDir:       serveDocumentDir,
		GCSBucket:         os.Getenv("SCRIBE_GCS_BUCKET"),
		GCSPrefix:         os.Getenv("SCRIBE_GCS_PREFIX"),
		GCSKeyPath:        os.Getenv("SCRIBE_GCS_KEY_PATH"),
		WeaviateURL:       os.Getenv("WEAVIATE_SERVICE_URL"),
		AuditBackend:      serveAuditBackend,
		AuditLogPath:      serveAuditLogPath,
		InfluxURL:         os.Getenv("SCRIBE_INFLUX_URL"),
		InfluxToken:       os.Getenv("SCRIBE_INFLUX_TOKEN"),
		InfluxOrg:         os.Getenv("SCRIBE_INFLUX_ORG"),
		InfluxBucket:      os.Getenv("SCRIBE_INFLUX_BUCKET"),
		ReviewDBPath:      serveReviewDBPath,
		RequestsPerSecond: serveRateLimit,
		AttemptTimeout:    serveAttemptTimeout,
	}

	slog.Info("Starting gateway",
		"port", cfg.Port,
		"generation_backend", cfg.GenerationBackend,
		"source_backend", cfg.SourceBackend,
		"audit_backend", cfg.AuditBackend,
	)

	svc, err := gateway.New(cfg, nil)
	if err != nil {
		log.Fatalf("Failed to create gateway: %v", err)
	}
	if err := svc.Run(); err != nil {
		log.Fatalf("Gateway error: %v", err)
	}
}

// ===== ENVIRONMENT HELPERS =====

// envString returns the environment variable value or a default.
func envString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envInt returns the environment variable as int or a default.
func envInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// envFloat returns the environment variable as float64 or a default.
func envFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// envDuration returns the environment variable as a duration or a default.
func envDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if dur, err := time.ParseDuration(value); err == nil {
			return dur
		}
	}
	return defaultValue
}
