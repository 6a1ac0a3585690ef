// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline orchestrates the secure document transformation flow.
//
// # Description
//
// A Pipeline takes a primary document id and a target audience and runs
// the full flow: context assembly, inbound sanitization and redaction,
// prompt construction, a resilient call to the generation backend, and
// outbound redaction and validation. Clean output is delivered, output
// needing human judgment is queued for review, and output with critical
// security issues is withheld.
//
// Failure detail from downstream systems is logged and audited, never
// echoed back to callers.
//
// # Thread Safety
//
// A Pipeline is safe for concurrent use. Each Transform call works on
// its own state; shared collaborators do their own locking.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianScribe/services/generation"
	"github.com/AleutianAI/AleutianScribe/services/pipeline/assembler"
	"github.com/AleutianAI/AleutianScribe/services/pipeline/audit"
	"github.com/AleutianAI/AleutianScribe/services/pipeline/document"
	"github.com/AleutianAI/AleutianScribe/services/pipeline/resilience"
	"github.com/AleutianAI/AleutianScribe/services/pipeline/review"
	"github.com/AleutianAI/AleutianScribe/services/pipeline/sanitizer"
	"github.com/AleutianAI/AleutianScribe/services/pipeline/secrets"
	"github.com/AleutianAI/AleutianScribe/services/pipeline/validator"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

var (
	tracer = otel.Tracer("scribe.pipeline")
	meter  = otel.Meter("scribe.pipeline")
)

// GenerationBreakerName is the circuit breaker call site guarding the
// generation backend.
const GenerationBreakerName = "generation"

// DefaultAttemptTimeout bounds a single generation attempt.
const DefaultAttemptTimeout = 2 * time.Minute

// ReviewQueue is the slice of the review queue the pipeline needs.
// Implemented by review.Queue.
type ReviewQueue interface {
	FlagForReview(ctx context.Context, content string, issues []review.ItemIssue) (string, error)
}

var _ ReviewQueue = (*review.Queue)(nil)

// Config wires the pipeline's collaborators.
type Config struct {
	// Source loads documents. Required.
	Source document.Source

	// Generator calls the LLM backend. Required.
	Generator generation.Generator

	// Queue receives output that needs human review. When nil, output
	// requiring review fails closed with an UnavailableError.
	Queue ReviewQueue

	// Recorder receives audit events. Defaults to audit.DefaultRecorder.
	Recorder audit.Recorder

	// Breakers tracks circuit state per call site. Defaults to a fresh
	// registry with default thresholds.
	Breakers *resilience.Registry

	// Retry configures generation retries. Zero value means defaults.
	Retry resilience.RetryConfig

	// Limiter throttles outbound generation calls. Nil means unlimited.
	Limiter *rate.Limiter

	// AttemptTimeout bounds one generation attempt. Zero or less means
	// DefaultAttemptTimeout.
	AttemptTimeout time.Duration

	// PromptCharBudget caps the combined prompt size. Zero or less means
	// DefaultPromptCharBudget.
	PromptCharBudget int

	// AssemblerOptions sets the baseline assembly behavior. Individual
	// transforms can still override it.
	AssemblerOptions []assembler.Option
}

// Pipeline runs the secure document transformation flow end to end.
type Pipeline struct {
	generator      generation.Generator
	queue          ReviewQueue
	recorder       audit.Recorder
	breakers       *resilience.Registry
	executor       *resilience.Executor
	attemptTimeout time.Duration

	assembler *assembler.Assembler
	sanitizer *sanitizer.Sanitizer
	scanner   *secrets.Scanner
	validator *validator.OutputValidator
	prompts   *PromptBuilder
}

// New validates the configuration and builds a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Source == nil {
		return nil, errors.New("pipeline: document source is required")
	}
	if cfg.Generator == nil {
		return nil, errors.New("pipeline: generator is required")
	}

	recorder := cfg.Recorder
	if recorder == nil {
		recorder = audit.DefaultRecorder
	}
	breakers := cfg.Breakers
	if breakers == nil {
		breakers = resilience.NewRegistry(resilience.DefaultCircuitBreakerConfig())
	}
	attemptTimeout := cfg.AttemptTimeout
	if attemptTimeout <= 0 {
		attemptTimeout = DefaultAttemptTimeout
	}

	outputValidator, err := validator.New()
	if err != nil {
		return nil, fmt.Errorf("pipeline: build output validator: %w", err)
	}

	return &Pipeline{
		generator:      cfg.Generator,
		queue:          cfg.Queue,
		recorder:       recorder,
		breakers:       breakers,
		executor:       resilience.NewExecutor(breakers.Breaker(GenerationBreakerName), cfg.Retry, cfg.Limiter),
		attemptTimeout: attemptTimeout,
		assembler:      assembler.New(cfg.Source, recorder, cfg.AssemblerOptions...),
		sanitizer:      sanitizer.New(sanitizer.DefaultConfig()),
		scanner:        secrets.NewScanner(),
		validator:      outputValidator,
		prompts:        NewPromptBuilder(cfg.PromptCharBudget),
	}, nil
}

// Status describes how a transform concluded.
type Status string

const (
	// StatusDelivered means the output passed validation and is in
	// Result.Output.
	StatusDelivered Status = "delivered"

	// StatusQueued means the output is waiting for human review and
	// Result.Output is empty.
	StatusQueued Status = "queued"
)

// TransformOptions tunes a single transform request.
type TransformOptions struct {
	// Format is the expected output shape. Empty means plain text.
	Format validator.Format

	// MaxContextDocuments overrides the assembly budget when positive.
	MaxContextDocuments int

	// AllowCircularReferences admits context documents that reference
	// the primary back.
	AllowCircularReferences bool

	// FailOnValidationError turns primary frontmatter problems into
	// errors instead of warnings.
	FailOnValidationError bool

	// Generation tunes the backend call.
	Generation generation.GenerationParams
}

// assemblerOptions translates per-request overrides into assembly options.
func (o TransformOptions) assemblerOptions() []assembler.Option {
	var opts []assembler.Option
	if o.MaxContextDocuments > 0 {
		opts = append(opts, assembler.WithMaxContextDocuments(o.MaxContextDocuments))
	}
	if o.AllowCircularReferences {
		opts = append(opts, assembler.WithAllowCircularReferences(true))
	}
	if o.FailOnValidationError {
		opts = append(opts, assembler.WithFailOnValidationError(true))
	}
	return opts
}

// Result is the outcome of one transform request.
type Result struct {
	RequestID string           `json:"request_id"`
	PrimaryID string           `json:"primary_id"`
	Audience  string           `json:"audience"`
	Format    validator.Format `json:"format"`
	Status    Status           `json:"status"`

	// Output holds the redacted text when Status is StatusDelivered.
	Output string `json:"output,omitempty"`

	// ReviewItemID identifies the queued item when Status is StatusQueued.
	ReviewItemID string `json:"review_item_id,omitempty"`

	AcceptedContextIDs []string              `json:"accepted_context_ids,omitempty"`
	RejectedContext    []assembler.Rejection `json:"rejected_context,omitempty"`
	Warnings           []string              `json:"warnings,omitempty"`

	// Issues carries the validation issues that did not block delivery.
	Issues []validator.Issue `json:"issues,omitempty"`

	InboundRedactions  int           `json:"inbound_redactions"`
	OutboundRedactions int           `json:"outbound_redactions"`
	Duration           time.Duration `json:"duration"`
}

// Transform runs the full flow for one document.
//
// # Description
//
// Steps:
//  1. Assemble the primary document and its context set.
//  2. Sanitize and redact every document body headed for the prompt.
//  3. Build the prompts and call the generation backend through the
//     circuit breaker, retry policy, and rate limit.
//  4. Redact the raw output, then validate it.
//  5. Route by validation outcome: deliver, queue for review, or
//     withhold.
//
// Returned errors are typed: document.ErrNotFound for a missing primary,
// *document.FrontmatterError under strict validation, *UnavailableError
// when generation or the review queue is down, *SecurityBlockedError when
// the output is withheld, and the caller's own context error on
// cancellation.
func (p *Pipeline) Transform(ctx context.Context, primaryID, audience string, opts TransformOptions) (*Result, error) {
	start := time.Now()
	requestID := uuid.NewString()

	ctx, span := tracer.Start(ctx, "Pipeline.Transform", trace.WithAttributes(
		attribute.String("request.id", requestID),
		attribute.String("document.id", primaryID),
		attribute.String("transform.audience", audience),
	))
	defer span.End()

	format := opts.Format
	if format == "" {
		format = validator.FormatText
	}

	slog.InfoContext(ctx, "Processing transform request",
		"request_id", requestID,
		"document_id", primaryID,
		"audience", audience,
		"format", string(format))

	// Step 1: Assemble the context set.
	asm, err := p.assembler.Assemble(ctx, primaryID, opts.assemblerOptions()...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assembly failed")
		recordTransformMetrics(ctx, "assembly_failed", time.Since(start))
		return nil, err
	}

	// Step 2: Sanitize and redact everything headed for the prompt.
	primaryUnit, inbound := p.prepare(ctx, asm.Primary)
	contextUnits := make([]PromptDocument, 0, len(asm.Accepted))
	for _, doc := range asm.Accepted {
		unit, n := p.prepare(ctx, doc)
		inbound += n
		contextUnits = append(contextUnits, unit)
	}
	if inbound > 0 {
		audit.Emit(ctx, p.recorder, audit.Event{
			Kind:      audit.EventSecretsRedacted,
			ActorID:   "system",
			SubjectID: requestID,
			Outcome:   audit.OutcomeSuccess,
			Details:   map[string]any{"direction": "inbound", "count": inbound},
		})
	}

	// Step 3: Build the prompts and call the generation backend.
	systemPrompt, userPrompt, truncatedIDs := p.prompts.Build(primaryUnit, contextUnits, audience, format)
	warnings := asm.Warnings
	for _, id := range truncatedIDs {
		warnings = append(warnings, fmt.Sprintf("context document %q truncated to fit the prompt budget", id))
	}

	rawOutput, err := p.generate(ctx, requestID, systemPrompt, userPrompt, opts.Generation)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		recordTransformMetrics(ctx, "generation_failed", time.Since(start))
		return nil, err
	}

	// Step 4: Redact the raw output. Validation sees the raw text so
	// severity reflects what the model actually produced; everything
	// past this point sees only the redacted copy.
	redacted, findings := p.scanner.Redact(rawOutput)
	if len(findings) > 0 {
		audit.Emit(ctx, p.recorder, audit.Event{
			Kind:      audit.EventSecretsRedacted,
			ActorID:   "system",
			SubjectID: requestID,
			Outcome:   audit.OutcomeSuccess,
			Details:   map[string]any{"direction": "outbound", "count": len(findings)},
		})
	}
	validation := p.validator.Validate(rawOutput, format, audience)
	span.SetAttributes(
		attribute.Int("validation.issues", len(validation.Issues)),
		attribute.Bool("validation.blocked", validation.Blocked),
	)

	result := &Result{
		RequestID:          requestID,
		PrimaryID:          primaryID,
		Audience:           audience,
		Format:             format,
		AcceptedContextIDs: asm.AcceptedIDs(),
		RejectedContext:    asm.Rejected,
		Warnings:           warnings,
		Issues:             validation.Issues,
		InboundRedactions:  inbound,
		OutboundRedactions: len(findings),
	}

	// Step 5: Route by validation outcome.
	if validation.Blocked {
		slog.WarnContext(ctx, "Transform output withheld",
			"request_id", requestID,
			"issues", validation.Summary())
		audit.Emit(ctx, p.recorder, audit.Event{
			Kind:      audit.EventSecurityBlocked,
			ActorID:   "system",
			SubjectID: requestID,
			Outcome:   audit.OutcomeBlocked,
			Details: map[string]any{
				"primary_id": primaryID,
				"issues":     validation.Summary(),
			},
		})
		span.SetStatus(codes.Error, "output withheld")
		recordTransformMetrics(ctx, "blocked", time.Since(start))
		return nil, &SecurityBlockedError{Issues: validation.Issues}
	}

	if validation.RequiresManualReview {
		itemID, qErr := p.flagForReview(ctx, redacted, validation)
		if qErr != nil {
			slog.ErrorContext(ctx, "Review queue unavailable",
				"request_id", requestID,
				"error", qErr)
			span.RecordError(qErr)
			span.SetStatus(codes.Error, "review queue failed")
			recordTransformMetrics(ctx, "review_failed", time.Since(start))
			return nil, &UnavailableError{Component: componentReviewQueue}
		}
		result.Status = StatusQueued
		result.ReviewItemID = itemID
		result.Duration = time.Since(start)
		p.emitCompleted(ctx, result, len(validation.Issues))
		recordTransformMetrics(ctx, "queued", time.Since(start))
		slog.InfoContext(ctx, "Transform queued for review",
			"request_id", requestID,
			"review_item_id", itemID)
		return result, nil
	}

	result.Status = StatusDelivered
	result.Output = redacted
	result.Duration = time.Since(start)
	p.emitCompleted(ctx, result, len(validation.Issues))
	recordTransformMetrics(ctx, "delivered", time.Since(start))
	slog.InfoContext(ctx, "Transform completed",
		"request_id", requestID,
		"accepted_context", len(result.AcceptedContextIDs),
		"duration_ms", time.Since(start).Milliseconds())
	return result, nil
}

// BreakerStats exposes circuit state for health reporting.
func (p *Pipeline) BreakerStats() map[string]resilience.CircuitBreakerStats {
	return p.breakers.Stats()
}

// prepare sanitizes one document body and redacts any secrets it still
// carries. Returns the prompt-ready unit and the redaction count.
func (p *Pipeline) prepare(ctx context.Context, doc *document.Document) (PromptDocument, int) {
	sanitized := p.sanitizer.Sanitize(doc.Body)
	if sanitized.Modified {
		slog.DebugContext(ctx, "Sanitized document text",
			"document_id", doc.ID,
			"redacted_phrases", sanitized.RedactedPhrases,
			"stripped_markup", sanitized.StrippedMarkup,
			"removed_invisible", sanitized.RemovedInvisible)
	}
	clean, findings := p.scanner.Redact(sanitized.Content)
	return PromptDocument{ID: doc.ID, Body: clean}, len(findings)
}

// generate calls the backend through the breaker, retry policy, and rate
// limit. The failure detail stays in the log and the audit trail.
func (p *Pipeline) generate(ctx context.Context, requestID, systemPrompt, userPrompt string, params generation.GenerationParams) (string, error) {
	var output string
	result, err := p.executor.Execute(ctx, func(ctx context.Context, attempt int) error {
		attemptCtx, cancel := context.WithTimeout(ctx, p.attemptTimeout)
		defer cancel()
		text, genErr := p.generator.Generate(attemptCtx, systemPrompt, userPrompt, params)
		if genErr != nil {
			return genErr
		}
		output = text
		return nil
	})
	if err == nil {
		return output, nil
	}

	circuitOpen := errors.Is(err, resilience.ErrCircuitOpen)
	slog.ErrorContext(ctx, "Generation failed",
		"request_id", requestID,
		"attempts", result.Attempts,
		"circuit_open", circuitOpen,
		"error", err)
	audit.Emit(ctx, p.recorder, audit.Event{
		Kind:      audit.EventGenerationFailed,
		ActorID:   "system",
		SubjectID: requestID,
		Outcome:   audit.OutcomeFailure,
		Details: map[string]any{
			"attempts":     result.Attempts,
			"circuit_open": circuitOpen,
		},
	})

	// A caller that gave up gets its own context error back, not an
	// availability verdict.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	return "", &UnavailableError{
		Component:   componentGeneration,
		Attempts:    result.Attempts,
		CircuitOpen: circuitOpen,
	}
}

// flagForReview hands the redacted output to the review queue.
func (p *Pipeline) flagForReview(ctx context.Context, content string, validation *validator.Result) (string, error) {
	if p.queue == nil {
		return "", errors.New("no review queue configured")
	}
	issues := make([]review.ItemIssue, len(validation.Issues))
	for i, issue := range validation.Issues {
		issues[i] = review.ItemIssue{
			Kind:     string(issue.Kind),
			Severity: string(issue.Severity),
			Detail:   issue.Detail,
		}
	}
	return p.queue.FlagForReview(ctx, content, issues)
}

// emitCompleted records the terminal audit event for a finished transform.
func (p *Pipeline) emitCompleted(ctx context.Context, result *Result, issueCount int) {
	outcome := audit.OutcomeSuccess
	if result.Status == StatusQueued {
		outcome = audit.OutcomeQueued
	}
	audit.Emit(ctx, p.recorder, audit.Event{
		Kind:      audit.EventTransformCompleted,
		ActorID:   "system",
		SubjectID: result.RequestID,
		Outcome:   outcome,
		Details: map[string]any{
			"primary_id":       result.PrimaryID,
			"audience":         result.Audience,
			"status":           string(result.Status),
			"accepted_context": len(result.AcceptedContextIDs),
			"rejected_context": len(result.RejectedContext),
			"issues":           issueCount,
			"duration_ms":      result.Duration.Milliseconds(),
		},
	})
}

// =============================================================================
// Metrics
// =============================================================================

var (
	transformMetricsOnce sync.Once
	transformMetricsErr  error
	transformTotal       metric.Int64Counter
	transformDuration    metric.Float64Histogram
)

func initTransformMetrics() error {
	transformMetricsOnce.Do(func() {
		transformTotal, transformMetricsErr = meter.Int64Counter(
			"scribe_transform_total",
			metric.WithDescription("Transform requests by outcome"),
		)
		if transformMetricsErr != nil {
			return
		}
		transformDuration, transformMetricsErr = meter.Float64Histogram(
			"scribe_transform_duration_seconds",
			metric.WithDescription("End to end transform latency"),
		)
	})
	return transformMetricsErr
}

func recordTransformMetrics(ctx context.Context, outcome string, elapsed time.Duration) {
	if err := initTransformMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	transformTotal.Add(ctx, 1, attrs)
	transformDuration.Record(ctx, elapsed.Seconds(), attrs)
}
