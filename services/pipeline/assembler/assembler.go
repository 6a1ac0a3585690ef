// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package assembler resolves a primary document's declared context set.
//
// # Description
//
// The assembler loads a primary document, walks its author-declared related
// document ids in declaration order, and admits each candidate against two
// rules: a context document's sensitivity must not exceed the primary's, and
// it must not form a reference cycle back to the primary. Violations become
// rejection entries; missing documents become warnings. Neither ever fails
// the call. Only a missing or (optionally) malformed primary is fatal.
//
// # Thread Safety
//
// An Assembler is safe for concurrent use. Each Assemble call builds its own
// result; the only shared state is the read-only option set and the source.
package assembler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianScribe/services/pipeline/audit"
	"github.com/AleutianAI/AleutianScribe/services/pipeline/document"
	"github.com/AleutianAI/AleutianScribe/services/pipeline/sensitivity"
)

// Package-level tracer and meter for assembly operations.
var (
	tracer = otel.Tracer("scribe.pipeline.assembler")
	meter  = otel.Meter("scribe.pipeline.assembler")
)

// DefaultMaxContextDocuments bounds how many context documents one assembly
// may admit. The bound caps both prompt cost and the attack surface a
// malicious related-document list can reach.
const DefaultMaxContextDocuments = 10

// Options controls one assembly.
type Options struct {
	// MaxContextDocuments stops the walk once this many documents are
	// accepted. Remaining declared ids are dropped silently, not rejected.
	MaxContextDocuments int

	// AllowCircularReferences admits cycle-forming documents with a
	// warning instead of rejecting them.
	AllowCircularReferences bool

	// FailOnValidationError promotes a malformed primary frontmatter from
	// a warning to a fatal FrontmatterError. Context documents always
	// degrade to warnings regardless of this flag.
	FailOnValidationError bool
}

// DefaultOptions returns the assembly defaults.
func DefaultOptions() Options {
	return Options{
		MaxContextDocuments: DefaultMaxContextDocuments,
	}
}

// Option mutates Options.
type Option func(*Options)

// WithMaxContextDocuments overrides the accepted-context bound.
func WithMaxContextDocuments(n int) Option {
	return func(o *Options) { o.MaxContextDocuments = n }
}

// WithAllowCircularReferences admits cycle-forming context documents.
func WithAllowCircularReferences(allow bool) Option {
	return func(o *Options) { o.AllowCircularReferences = allow }
}

// WithFailOnValidationError makes a malformed primary frontmatter fatal.
func WithFailOnValidationError(fail bool) Option {
	return func(o *Options) { o.FailOnValidationError = fail }
}

// Rejection is one context document excluded from the accepted set and why.
type Rejection struct {
	DocumentID string `json:"document_id"`
	Reason     string `json:"reason"`
}

// Result is the outcome of one assembly.
//
// Description:
//
//	Accepted and Rejected mirror the declaration order of the primary's
//	related-document list; nothing is re-sorted. Every accepted document
//	satisfies sensitivity(context) <= sensitivity(primary).
type Result struct {
	// Primary is the document the assembly was requested for.
	Primary *document.Document

	// Accepted holds the admitted context documents in declaration order.
	Accepted []*document.Document

	// Rejected lists excluded documents with their reasons, in
	// declaration order.
	Rejected []Rejection

	// Warnings lists non-fatal problems: missing documents, frontmatter
	// defaults, cycle notes.
	Warnings []string
}

// AcceptedIDs returns the ids of the accepted documents in order.
func (r *Result) AcceptedIDs() []string {
	ids := make([]string, len(r.Accepted))
	for i, doc := range r.Accepted {
		ids[i] = doc.ID
	}
	return ids
}

// Assembler admits context documents for transformation requests.
type Assembler struct {
	source   document.Source
	recorder audit.Recorder
	options  Options
}

// New creates an assembler over a document source.
//
// Description:
//
//	The recorder receives an authorization-denial event per sensitivity
//	rejection and one summary event per assembly. A nil recorder disables
//	auditing; assembly behavior is identical either way.
//
// Inputs:
//   - source: Where documents are loaded from. Must not be nil.
//   - recorder: Audit sink, may be nil.
//   - opts: Baseline options applied to every Assemble call.
//
// Outputs:
//   - *Assembler: The configured assembler.
func New(source document.Source, recorder audit.Recorder, opts ...Option) *Assembler {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &Assembler{
		source:   source,
		recorder: recorder,
		options:  options,
	}
}

// Assemble resolves the context set for one primary document.
//
// Description:
//
//	Loads the primary, then walks its relatedDocumentIds in declaration
//	order, deduplicated on first occurrence. Each candidate is loaded and
//	checked: missing documents degrade to warnings, sensitivity violations
//	and reference cycles become rejections. The walk stops once the
//	accepted set reaches MaxContextDocuments; later ids are dropped
//	without a rejection entry.
//
// Inputs:
//   - ctx: Context for cancellation and tracing.
//   - primaryID: The primary document id. Must resolve or the call fails.
//   - opts: Per-call overrides layered over the assembler's baseline.
//
// Outputs:
//   - *Result: The assembly, non-nil on success.
//   - error: document.ErrNotFound (wrapped) if the primary is missing, a
//     *document.FrontmatterError if the primary is malformed and
//     FailOnValidationError is set, or a transport error from the source.
func (a *Assembler) Assemble(ctx context.Context, primaryID string, opts ...Option) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Assembler.Assemble",
		trace.WithAttributes(attribute.String("document.id", primaryID)),
	)
	defer span.End()
	start := time.Now()

	options := a.options
	for _, opt := range opts {
		opt(&options)
	}
	if options.MaxContextDocuments <= 0 {
		options.MaxContextDocuments = DefaultMaxContextDocuments
	}

	// Step 1: load the primary. A missing or unreachable primary is the
	// one failure that aborts the whole call.
	primary, diag, err := a.source.Load(ctx, primaryID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "primary load failed")
		return nil, fmt.Errorf("load primary document %q: %w", primaryID, err)
	}

	result := &Result{Primary: primary}
	if !diag.Clean() {
		if options.FailOnValidationError {
			err := &document.FrontmatterError{DocumentID: primaryID, Err: diagProblem(diag)}
			span.RecordError(err)
			span.SetStatus(codes.Error, "primary frontmatter invalid")
			return nil, err
		}
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("primary document %q has invalid frontmatter, defaults applied", primaryID))
	}

	// Step 2: walk the declared ids in order, first occurrence wins.
	seen := make(map[string]bool, len(primary.RelatedDocumentIDs))
	for _, id := range primary.RelatedDocumentIDs {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "cancelled")
			return nil, err
		}
		if seen[id] {
			continue
		}
		seen[id] = true

		// Budget reached: the remaining ids are dropped silently.
		if len(result.Accepted) >= options.MaxContextDocuments {
			break
		}

		a.admit(ctx, primary, id, options, result)
	}

	// Step 3: one summary event per assembly, whatever the counts came to.
	requested := len(primary.RelatedDocumentIDs)
	audit.Emit(ctx, a.recorder, audit.Event{
		Kind:      audit.EventAssemblySummary,
		ActorID:   "system",
		SubjectID: primaryID,
		Outcome:   audit.OutcomeSuccess,
		Details: map[string]any{
			"requested": requested,
			"accepted":  len(result.Accepted),
			"rejected":  len(result.Rejected),
			"warnings":  len(result.Warnings),
		},
	})

	span.SetAttributes(
		attribute.Int("assembly.requested", requested),
		attribute.Int("assembly.accepted", len(result.Accepted)),
		attribute.Int("assembly.rejected", len(result.Rejected)),
		attribute.Int("assembly.warnings", len(result.Warnings)),
	)
	recordAssemblyMetrics(ctx, result, time.Since(start))

	return result, nil
}

// admit loads one candidate and applies the admission rules, appending to
// the result's accepted, rejected, or warnings as the rules decide.
func (a *Assembler) admit(ctx context.Context, primary *document.Document, id string,
	options Options, result *Result) {

	var candidate *document.Document
	if id == primary.ID {
		// The primary declaring itself is the smallest possible cycle;
		// skip the redundant load and let the cycle rule decide.
		candidate = primary
	} else {
		doc, diag, err := a.source.Load(ctx, id)
		if err != nil {
			// Missing or unreachable context degrades to a warning; one
			// bad reference must not fail the whole assembly. The
			// backend error is logged, never surfaced to the caller.
			slog.WarnContext(ctx, "Context document unavailable",
				"document_id", id, "primary_id", primary.ID, "error", err)
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("context document %q not found", id))
			return
		}
		if !diag.Clean() {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("context document %q has invalid frontmatter, defaults applied", id))
		}
		candidate = doc
	}

	// Sensitivity rule: information never flows downward from a more
	// sensitive document.
	if !sensitivity.CanAccessContext(primary.Sensitivity, candidate.Sensitivity) {
		result.Rejected = append(result.Rejected, Rejection{
			DocumentID: id,
			Reason: fmt.Sprintf("sensitivity violation: %s cannot access %s",
				primary.Sensitivity, candidate.Sensitivity),
		})
		audit.Emit(ctx, a.recorder, audit.Event{
			Kind:      audit.EventAuthzDenied,
			ActorID:   "system",
			SubjectID: id,
			Outcome:   audit.OutcomeDenied,
			Details: map[string]any{
				"primary_id":    primary.ID,
				"primary_level": primary.Sensitivity.String(),
				"context_level": candidate.Sensitivity.String(),
			},
		})
		return
	}

	// Cycle rule: a candidate that references the primary back closes a
	// loop. Only direct references are checked; the declared graph is one
	// level deep by contract.
	if candidate.ID == primary.ID || slices.Contains(candidate.RelatedDocumentIDs, primary.ID) {
		if !options.AllowCircularReferences {
			result.Rejected = append(result.Rejected, Rejection{
				DocumentID: id,
				Reason:     "circular reference",
			})
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("context document %q forms a circular reference with %q", id, primary.ID))
			return
		}
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("context document %q forms a circular reference with %q, accepted by configuration",
				id, primary.ID))
	}

	result.Accepted = append(result.Accepted, candidate)
}

// diagProblem picks the reportable problem out of parse diagnostics.
func diagProblem(diag document.Diagnostics) error {
	if diag.MalformedFrontmatter != nil {
		return diag.MalformedFrontmatter
	}
	return fmt.Errorf("unknown sensitivity level %q", diag.UnknownSensitivity)
}

// Assembly metrics.
var (
	assemblyTotal    metric.Int64Counter
	assemblyAccepted metric.Int64Counter
	assemblyRejected metric.Int64Counter
	assemblyDuration metric.Float64Histogram

	assemblyMetricsOnce sync.Once
	assemblyMetricsErr  error
)

// initAssemblyMetrics initializes metrics.
func initAssemblyMetrics() error {
	assemblyMetricsOnce.Do(func() {
		var err error

		assemblyTotal, err = meter.Int64Counter(
			"scribe_assembly_total",
			metric.WithDescription("Total context assemblies"),
		)
		if err != nil {
			assemblyMetricsErr = err
			return
		}

		assemblyAccepted, err = meter.Int64Counter(
			"scribe_assembly_accepted_total",
			metric.WithDescription("Total context documents accepted"),
		)
		if err != nil {
			assemblyMetricsErr = err
			return
		}

		assemblyRejected, err = meter.Int64Counter(
			"scribe_assembly_rejected_total",
			metric.WithDescription("Total context documents rejected"),
		)
		if err != nil {
			assemblyMetricsErr = err
			return
		}

		assemblyDuration, err = meter.Float64Histogram(
			"scribe_assembly_duration_seconds",
			metric.WithDescription("Context assembly duration"),
		)
		if err != nil {
			assemblyMetricsErr = err
			return
		}
	})
	return assemblyMetricsErr
}

func recordAssemblyMetrics(ctx context.Context, result *Result, elapsed time.Duration) {
	if err := initAssemblyMetrics(); err != nil {
		return
	}

	assemblyTotal.Add(ctx, 1)
	if len(result.Accepted) > 0 {
		assemblyAccepted.Add(ctx, int64(len(result.Accepted)))
	}
	if len(result.Rejected) > 0 {
		assemblyRejected.Add(ctx, int64(len(result.Rejected)))
	}
	assemblyDuration.Record(ctx, elapsed.Seconds())
}
