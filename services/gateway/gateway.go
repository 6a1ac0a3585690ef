// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gateway provides the HTTP service for AleutianScribe.
//
// This package contains the main gateway type that coordinates all
// components of the service: HTTP routing, the transform pipeline, the
// document source, the generation backend, the review queue, audit
// recording, and observability infrastructure.
//
// # Integration
//
// The gateway supports dependency injection via extensions.ServiceOptions,
// enabling deployments to provide a custom AuthProvider (shared-secret,
// JWT, API keys) in place of the local no-auth default.
//
// # Usage
//
// Local single-user setup (no-op auth, every caller is a reviewer):
//
//	cfg := gateway.Config{Port: 12300}
//	svc, err := gateway.New(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc.Run()
//
// Shared deployment (token auth, reviewer role on selected identities):
//
//	provider, _ := extensions.NewStaticTokenProvider(secret, extensions.AuthInfo{
//	    UserID: "review-team",
//	    Roles:  []string{extensions.RoleReviewer},
//	})
//	opts := extensions.DefaultOptions().WithAuth(provider)
//	svc, err := gateway.New(cfg, &opts)
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianScribe/pkg/extensions"
	"github.com/AleutianAI/AleutianScribe/services/gateway/routes"
	"github.com/AleutianAI/AleutianScribe/services/gateway/telemetry"
	"github.com/AleutianAI/AleutianScribe/services/generation"
	"github.com/AleutianAI/AleutianScribe/services/pipeline"
	"github.com/AleutianAI/AleutianScribe/services/pipeline/audit"
	"github.com/AleutianAI/AleutianScribe/services/pipeline/document"
	"github.com/AleutianAI/AleutianScribe/services/pipeline/review"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the gateway service.
//
// # Description
//
// Service abstracts the gateway lifecycle, enabling testing and
// alternative implementations. The interface follows the minimal surface
// area principle - only essential lifecycle methods are exposed.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and should
// only be called once per instance.
//
// # Assumptions
//
//   - Service is fully initialized before Run() is called
//   - Run() is called at most once per Service instance
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	//
	// # Outputs
	//
	//   - error: Non-nil if the server fails to start or encounters a
	//     fatal error
	//
	// # Examples
	//
	//   if err := svc.Run(); err != nil {
	//       log.Fatalf("server error: %v", err)
	//   }
	Run() error

	// Router returns the underlying Gin engine for testing.
	//
	// # Description
	//
	// Provides access to the configured Gin router, primarily for
	// integration testing where direct HTTP calls are needed.
	//
	// # Assumptions
	//
	//   - Caller will not modify the router
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds gateway configuration options.
//
// # Description
//
// Config centralizes all configuration for the gateway service. Values
// can be populated from environment variables, config files, or
// programmatically for testing.
//
// # Required Fields
//
// None - all fields have sensible defaults. The default setup serves
// documents from a local directory, generates through a local
// llama.cpp-compatible server, records audit events to a hash-chained
// log file, and queues reviews in a local BadgerDB.
type Config struct {
	// Port is the HTTP server port. Default: 12300
	Port int

	// GenerationBackend specifies the generation provider.
	// Valid values: "local", "openai", "ollama"
	// Default: "local"
	GenerationBackend string

	// SourceBackend specifies where documents are loaded from.
	// Valid values: "fs", "gcs", "weaviate"
	// Default: "fs"
	SourceBackend string

	// DocumentDir is the root directory for the fs source.
	// Default: "./documents"
	DocumentDir string

	// GCSBucket, GCSPrefix, and GCSKeyPath configure the gcs source.
	// GCSKeyPath may be empty to use ambient credentials.
	GCSBucket  string
	GCSPrefix  string
	GCSKeyPath string

	// WeaviateURL configures the weaviate source.
	// Example: "http://localhost:8080"
	WeaviateURL string

	// CacheEnabled wraps the source in a TTL cache.
	// Default: true
	CacheEnabled bool

	// CacheTTL is how long a cached document stays valid.
	// Default: the document cache default (30s).
	CacheTTL time.Duration

	// AuditBackend selects the audit sink.
	// Valid values: "chain", "influx", "slog", "nop"
	// Default: "chain"
	AuditBackend string

	// AuditLogPath is the hash-chained audit log file for the chain
	// backend. Default: "./logs/audit.jsonl"
	AuditLogPath string

	// InfluxURL, InfluxToken, InfluxOrg, and InfluxBucket configure the
	// influx audit backend.
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	// ReviewDBPath is the BadgerDB directory for the review queue.
	// Default: "./data/reviews"
	ReviewDBPath string

	// RequestsPerSecond throttles outbound generation calls.
	// Zero disables throttling.
	RequestsPerSecond float64

	// Burst is the rate limiter burst size. Only read when
	// RequestsPerSecond is positive. Default: 1
	Burst int

	// AttemptTimeout bounds a single generation attempt.
	// Default: the pipeline default (2m).
	AttemptTimeout time.Duration

	// Telemetry overrides the telemetry setup. Nil uses
	// telemetry.DefaultConfig(), which reads the OTEL_* environment.
	Telemetry *telemetry.Config
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Description
//
// service is the main implementation that coordinates:
//   - HTTP routing via Gin
//   - The transform pipeline and its generation backend
//   - The document source (fs, GCS, or Weaviate, with optional caching)
//   - The persistent review queue and its notification hub
//   - Audit recording
//   - OpenTelemetry tracing and Prometheus metrics
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns.
type service struct {
	config            Config
	opts              extensions.ServiceOptions
	router            *gin.Engine
	pipeline          *pipeline.Pipeline
	source            document.Source
	generator         generation.Generator
	recorder          audit.Recorder
	recorderClose     func()
	queue             *review.Queue
	hub               *review.Hub
	telemetryShutdown func(context.Context) error
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a new gateway Service with the given configuration.
//
// # Description
//
// New initializes all gateway components:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing and metrics
//  3. Creates the document source based on the backend type
//  4. Creates the generation client based on the backend type
//  5. Creates the audit recorder
//  6. Opens the review queue and its notification hub
//  7. Builds the transform pipeline
//  8. Sets up HTTP routes with extension options
//
// If opts is nil, DefaultOptions() is used (local no-auth provider).
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//   - opts: Extension options. May be nil.
//
// # Outputs
//
//   - Service: Ready-to-run gateway service
//   - error: Non-nil if initialization fails
//
// # Assumptions
//
//   - Environment variables are set for the chosen generation backend
//     (API keys, server URLs)
//   - Network is available for external service connections
func New(cfg Config, opts *extensions.ServiceOptions) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	// Apply extension options (use defaults if nil)
	if opts != nil {
		s.opts = *opts
	} else {
		s.opts = extensions.DefaultOptions()
	}

	// Initialize OpenTelemetry tracing and metrics
	if err := s.initTelemetry(); err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	// Initialize the document source
	if err := s.initSource(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize document source: %w", err)
	}

	// Initialize the generation backend
	if err := s.initGenerator(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize generation backend: %w", err)
	}

	// Initialize the audit recorder
	if err := s.initRecorder(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize audit recorder: %w", err)
	}

	// Open the review queue
	if err := s.initReviewQueue(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to open review queue: %w", err)
	}

	// Build the transform pipeline
	if err := s.initPipeline(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	// Setup HTTP router
	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting gateway server",
		"port", s.config.Port,
		"source", s.config.SourceBackend,
		"generation", s.config.GenerationBackend,
		"audit", s.config.AuditBackend)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12300
	}
	if cfg.GenerationBackend == "" {
		cfg.GenerationBackend = "local"
	}
	if cfg.SourceBackend == "" {
		cfg.SourceBackend = "fs"
	}
	if cfg.DocumentDir == "" {
		cfg.DocumentDir = "./documents"
	}
	if cfg.AuditBackend == "" {
		cfg.AuditBackend = "chain"
	}
	if cfg.AuditLogPath == "" {
		cfg.AuditLogPath = "./logs/audit.jsonl"
	}
	if cfg.ReviewDBPath == "" {
		cfg.ReviewDBPath = "./data/reviews"
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	// The zero value of a bool cannot distinguish "unset" from "off", so
	// source caching is always on.
	cfg.CacheEnabled = true

	return cfg
}

// initTelemetry initializes tracing and metrics through the telemetry
// package and keeps the shutdown hook for cleanup.
func (s *service) initTelemetry() error {
	cfg := telemetry.DefaultConfig()
	if s.config.Telemetry != nil {
		cfg = *s.config.Telemetry
	}

	shutdown, err := telemetry.Init(context.Background(), cfg)
	if err != nil {
		return err
	}
	s.telemetryShutdown = shutdown
	return nil
}

// initSource creates the document source for the configured backend and
// wraps it in a TTL cache when caching is enabled.
func (s *service) initSource() error {
	var (
		src document.Source
		err error
	)

	switch s.config.SourceBackend {
	case "fs":
		src, err = document.NewFSSource(s.config.DocumentDir)
		slog.Info("Using filesystem document source", "dir", s.config.DocumentDir)
	case "gcs":
		src, err = document.NewGCSSource(context.Background(),
			s.config.GCSBucket, s.config.GCSPrefix, s.config.GCSKeyPath)
		slog.Info("Using GCS document source",
			"bucket", s.config.GCSBucket, "prefix", s.config.GCSPrefix)
	case "weaviate":
		src, err = s.newWeaviateSource()
		slog.Info("Using Weaviate document source", "url", s.config.WeaviateURL)
	default:
		return fmt.Errorf("unknown source backend: %s", s.config.SourceBackend)
	}
	if err != nil {
		return err
	}

	if s.config.CacheEnabled {
		cacheCfg := document.CacheConfig{TTL: s.config.CacheTTL}
		if s.config.SourceBackend == "fs" {
			// Filesystem edits flush the cache instead of waiting out
			// the TTL.
			cacheCfg.WatchDir = s.config.DocumentDir
		}
		src, err = document.NewCachingSource(src, cacheCfg)
		if err != nil {
			return err
		}
	}

	s.source = src
	return nil
}

// newWeaviateSource validates the URL, connects, and makes sure the
// document class exists.
func (s *service) newWeaviateSource() (document.Source, error) {
	weaviateURL := strings.Trim(s.config.WeaviateURL, "\"' ")
	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid Weaviate URL: %s", weaviateURL)
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Weaviate client: %w", err)
	}

	if err := document.EnsureDocumentClass(context.Background(), client); err != nil {
		return nil, err
	}
	return document.NewWeaviateSource(client), nil
}

// initGenerator creates the generation client for the configured backend.
func (s *service) initGenerator() error {
	var err error

	switch s.config.GenerationBackend {
	case "local":
		s.generator, err = generation.NewLlamaCppGenerator()
		slog.Info("Using local llama.cpp generation backend")
	case "openai":
		s.generator, err = generation.NewOpenAIGenerator()
		slog.Info("Using OpenAI generation backend")
	case "ollama":
		s.generator, err = generation.NewOllamaGenerator()
		slog.Info("Using Ollama generation backend")
	default:
		slog.Warn("Unknown generation backend, defaulting to local",
			"backend", s.config.GenerationBackend)
		s.generator, err = generation.NewLlamaCppGenerator()
	}

	return err
}

// initRecorder creates the audit recorder for the configured backend.
func (s *service) initRecorder() error {
	switch s.config.AuditBackend {
	case "chain":
		rec, err := audit.NewChainRecorder(audit.ChainConfig{Path: s.config.AuditLogPath})
		if err != nil {
			return err
		}
		s.recorder = rec
		s.recorderClose = func() {
			if err := rec.Close(); err != nil {
				slog.Warn("Audit recorder close error", "error", err)
			}
		}
		slog.Info("Using hash-chained audit log", "path", s.config.AuditLogPath)
	case "influx":
		rec := audit.NewInfluxRecorder(s.config.InfluxURL, s.config.InfluxToken,
			s.config.InfluxOrg, s.config.InfluxBucket)
		s.recorder = rec
		s.recorderClose = rec.Close
		slog.Info("Using InfluxDB audit recorder", "url", s.config.InfluxURL)
	case "slog":
		s.recorder = audit.NewSlogRecorder(nil)
	case "nop":
		s.recorder = audit.NewNopRecorder()
	default:
		return fmt.Errorf("unknown audit backend: %s", s.config.AuditBackend)
	}
	return nil
}

// initReviewQueue opens the persistent queue and wires its notifiers.
func (s *service) initReviewQueue() error {
	s.hub = review.NewHub()

	storeCfg := review.DefaultStoreConfig()
	storeCfg.Path = s.config.ReviewDBPath

	queue, err := review.NewQueue(storeCfg, review.Notifiers{
		review.NewSlogNotifier(nil),
		s.hub,
	}, s.recorder)
	if err != nil {
		return err
	}
	s.queue = queue
	return nil
}

// initPipeline assembles the transform pipeline over the initialized
// collaborators.
func (s *service) initPipeline() error {
	var limiter *rate.Limiter
	if s.config.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.config.RequestsPerSecond), s.config.Burst)
	}

	p, err := pipeline.New(pipeline.Config{
		Source:         s.source,
		Generator:      s.generator,
		Queue:          s.queue,
		Recorder:       s.recorder,
		Limiter:        limiter,
		AttemptTimeout: s.config.AttemptTimeout,
	})
	if err != nil {
		return err
	}
	s.pipeline = p
	return nil
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("scribe-gateway"))

	routes.SetupRoutes(s.router, s.pipeline, s.queue, s.hub, s.opts.AuthProvider)
}

// cleanup releases all resources held by the service.
//
// Called when Run() exits or on initialization failure. Safe to call
// with partially initialized state.
func (s *service) cleanup() {
	if s.queue != nil {
		if err := s.queue.Close(); err != nil {
			slog.Warn("Review queue close error", "error", err)
		}
	}

	if s.hub != nil {
		if err := s.hub.Close(); err != nil {
			slog.Warn("Notification hub close error", "error", err)
		}
	}

	if s.recorderClose != nil {
		s.recorderClose()
	}

	// Key material held by the generation layer is wiped before exit.
	generation.PurgeSecrets()

	if s.telemetryShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.telemetryShutdown(ctx); err != nil {
			slog.Warn("Telemetry shutdown error", "error", err)
		}
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
