// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package audit records security-relevant pipeline events.
//
// # Description
//
// Every stage of the transformation pipeline emits events here: context
// admission decisions, redaction counts, blocked outputs, review decisions.
// Recording is fire-and-forget from the pipeline's perspective; an audit
// failure is logged and swallowed, never allowed to fail the operation
// that produced the event.
//
// # Event Categories
//
// Kinds follow a "category.action" format for filtering and alerting:
//   - Authorization: "authz.denied"
//   - Assembly: "assembly.summary"
//   - Scanning: "secrets.redacted"
//   - Generation: "generation.failed"
//   - Validation: "security.blocked"
//   - Review: "review.flagged", "review.decided"
//   - Pipeline: "transform.completed"
//
// # Thread Safety
//
// All Recorder implementations in this package are safe for concurrent use.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// EventKind categorizes an audit event.
type EventKind string

const (
	// EventAuthzDenied records a context document rejected because its
	// sensitivity exceeds the primary document's clearance.
	EventAuthzDenied EventKind = "authz.denied"

	// EventAssemblySummary records the requested/accepted/rejected counts
	// of one context assembly. Emitted once per transform, always.
	EventAssemblySummary EventKind = "assembly.summary"

	// EventSecretsRedacted records how many secrets were redacted from a
	// text unit. Counts only; the values themselves never reach the log.
	EventSecretsRedacted EventKind = "secrets.redacted"

	// EventGenerationFailed records an exhausted or short-circuited call
	// to the generation service.
	EventGenerationFailed EventKind = "generation.failed"

	// EventSecurityBlocked records output withheld after a CRITICAL
	// validation issue.
	EventSecurityBlocked EventKind = "security.blocked"

	// EventReviewFlagged records output queued for manual review.
	EventReviewFlagged EventKind = "review.flagged"

	// EventReviewDecided records a reviewer approving or rejecting a
	// queued item.
	EventReviewDecided EventKind = "review.decided"

	// EventTransformCompleted records the final outcome of a transform.
	EventTransformCompleted EventKind = "transform.completed"
)

// Outcome values for Event.Outcome.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeBlocked = "blocked"
	OutcomeDenied  = "denied"
	OutcomeQueued  = "queued"
)

// Event is a single audit record.
//
// # Fields
//
//   - ID: Unique event id. Implementations assign one if empty.
//   - Kind: What happened, in "category.action" form.
//   - Timestamp: When it happened (UTC). Implementations set time.Now()
//     if zero.
//   - ActorID: Who caused it. Use "system" for automated actions.
//   - SubjectID: The document, request, or review item involved.
//   - Outcome: One of the Outcome constants.
//   - Details: Event-specific data. Never put raw secret or PII values
//     here; counts and masked forms only.
type Event struct {
	ID        string         `json:"id,omitempty"`
	Kind      EventKind      `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	ActorID   string         `json:"actor_id,omitempty"`
	SubjectID string         `json:"subject_id,omitempty"`
	Outcome   string         `json:"outcome"`
	Details   map[string]any `json:"details,omitempty"`
}

// normalize fills the generated fields an emitter left empty.
func (e *Event) normalize() {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
}

// Recorder receives audit events.
//
// # Description
//
// Implementations must be safe for concurrent use and should return
// quickly; the pipeline records on the request path. Errors are the
// implementation's to report and the caller's to ignore: use Emit at
// call sites so a sink failure never fails the operation being audited.
type Recorder interface {
	// Record persists or transmits one event.
	Record(ctx context.Context, event Event) error
}

// NopRecorder discards all events.
//
// # Description
//
// The default recorder for local single-user deployments where an audit
// trail is not required. It holds no state and records nothing.
type NopRecorder struct{}

// Record discards the event. Always returns nil.
func (r *NopRecorder) Record(ctx context.Context, event Event) error {
	return nil
}

// Compile-time interface compliance check.
var _ Recorder = (*NopRecorder)(nil)

// DefaultRecorder is the recorder used when none is configured.
var DefaultRecorder Recorder = &NopRecorder{}

// NewNopRecorder returns a fresh discarding recorder.
func NewNopRecorder() Recorder {
	return &NopRecorder{}
}

// Emit records an event and swallows any failure with a warning log.
//
// Inputs:
//   - ctx: Context passed through to the recorder.
//   - r: The recorder; nil is treated as NopRecorder.
//   - event: The event to record.
func Emit(ctx context.Context, r Recorder, event Event) {
	if r == nil {
		return
	}
	if err := r.Record(ctx, event); err != nil {
		slog.WarnContext(ctx, "Audit record failed", "kind", event.Kind, "error", err)
	}
}
