// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides request and response types for the gateway.
//
// This file contains the transform endpoint types. Review endpoint types
// live in review.go.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianScribe/pkg/validation"
	"github.com/AleutianAI/AleutianScribe/services/generation"
	"github.com/AleutianAI/AleutianScribe/services/pipeline"
	outputvalidator "github.com/AleutianAI/AleutianScribe/services/pipeline/validator"
)

// =============================================================================
// Input Bounds
// =============================================================================

const (
	// MaxAudienceLength bounds the free-text audience description.
	// The audience goes into the system prompt verbatim, so it is kept
	// short enough that it cannot smuggle a document-sized payload.
	MaxAudienceLength = 128

	// MaxContextDocumentsLimit caps how many context documents a single
	// request may ask the assembler to accept.
	MaxContextDocumentsLimit = 64

	// MaxStopSequences bounds the generation stop list.
	MaxStopSequences = 8
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// transformValidate is the validator instance for transform datatypes.
// Initialized in init() with custom validators.
var transformValidate *validator.Validate

func init() {
	transformValidate = validator.New()

	// "docid" runs the same identifier rules the document sources enforce,
	// so malformed ids are rejected before any store lookup happens.
	_ = transformValidate.RegisterValidation("docid", validateDocumentID)
}

// validateDocumentID validates that a string field is a well-formed document
// identifier (bounded length, no traversal segments, no absolute paths).
func validateDocumentID(fl validator.FieldLevel) bool {
	return validation.ValidateDocumentID(fl.Field().String()) == nil
}

// =============================================================================
// Transform Request Types
// =============================================================================

// GenerationSettings carries the optional model parameters of a transform
// request. Nil fields use backend defaults.
type GenerationSettings struct {
	Temperature *float32 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	TopK        *int     `json:"top_k,omitempty" validate:"omitempty,gte=1"`
	TopP        *float32 `json:"top_p,omitempty" validate:"omitempty,gt=0,lte=1"`
	MaxTokens   *int     `json:"max_tokens,omitempty" validate:"omitempty,gte=1,lte=32768"`
	Stop        []string `json:"stop,omitempty" validate:"max=8,dive,max=64"`
}

// Params converts the wire settings into backend generation parameters.
func (g GenerationSettings) Params() generation.GenerationParams {
	return generation.GenerationParams{
		Temperature: g.Temperature,
		TopK:        g.TopK,
		TopP:        g.TopP,
		MaxTokens:   g.MaxTokens,
		Stop:        g.Stop,
	}
}

// TransformRequest represents a document transform request body.
//
// # Description
//
// TransformRequest names the primary document, the audience the rewrite is
// for, and the output format. This is the body for POST /v1/transform.
// Every request includes a unique ID and timestamp for audit trails.
//
// # Validation
//
// Uses go-playground/validator:
//   - RequestID: required, must be valid UUID v4 (EnsureDefaults generates one)
//   - Timestamp: required, must be > 0 (EnsureDefaults fills it)
//   - DocumentID: required, must pass document identifier rules
//   - Audience: required, 1-128 characters
//   - Format: empty or one of text, markdown, json
//   - MaxContextDocuments: 0-64 (0 means the pipeline default)
//
// # Examples
//
//	req := TransformRequest{
//	    DocumentID: "guides/deploy",
//	    Audience:   "new on-call engineers",
//	    Format:     "markdown",
//	}
//	req.EnsureDefaults()
//	if err := req.Validate(); err != nil { ... }
type TransformRequest struct {
	RequestID               string             `json:"request_id" validate:"required,uuid4"`
	Timestamp               int64              `json:"timestamp" validate:"required,gt=0"`
	DocumentID              string             `json:"document_id" validate:"required,docid"`
	Audience                string             `json:"audience" validate:"required,min=1,max=128"`
	Format                  string             `json:"format" validate:"omitempty,oneof=text markdown json"`
	MaxContextDocuments     int                `json:"max_context_documents" validate:"gte=0,lte=64"`
	AllowCircularReferences bool               `json:"allow_circular_references"`
	FailOnValidationError   bool               `json:"fail_on_validation_error"`
	Generation              GenerationSettings `json:"generation"`
}

// Validate validates the TransformRequest fields.
//
// Call after binding the JSON request and EnsureDefaults.
func (r *TransformRequest) Validate() error {
	return transformValidate.Struct(r)
}

// EnsureDefaults populates identifiers the client did not send.
//
// Generates RequestID and Timestamp if not provided, so every request has
// proper identifiers for tracing and auditing.
func (r *TransformRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = uuid.NewString()
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
}

// Options converts the request knobs into pipeline transform options.
func (r *TransformRequest) Options() pipeline.TransformOptions {
	return pipeline.TransformOptions{
		Format:                  outputvalidator.Format(r.Format),
		MaxContextDocuments:     r.MaxContextDocuments,
		AllowCircularReferences: r.AllowCircularReferences,
		FailOnValidationError:   r.FailOnValidationError,
		Generation:              r.Generation.Params(),
	}
}

// =============================================================================
// Transform Response Types
// =============================================================================

// IssueView is the wire form of one validation finding. Detail describes
// the finding without quoting the matched text.
type IssueView struct {
	Kind     string `json:"kind"`
	Severity string `json:"severity"`
	Detail   string `json:"detail,omitempty"`
}

// RejectionView is the wire form of one excluded context document.
type RejectionView struct {
	DocumentID string `json:"document_id"`
	Reason     string `json:"reason"`
}

// NewIssueViews converts validation findings into their wire form.
func NewIssueViews(issues []outputvalidator.Issue) []IssueView {
	views := make([]IssueView, 0, len(issues))
	for _, issue := range issues {
		views = append(views, IssueView{
			Kind:     string(issue.Kind),
			Severity: string(issue.Severity),
			Detail:   issue.Detail,
		})
	}
	return views
}

// TransformResponse represents the response from a transform request.
//
// # Description
//
// Contains the transform outcome. When Status is "delivered", Output holds
// the redacted rewritten text. When Status is "queued", Output is empty and
// ReviewItemID names the queue entry a reviewer must decide. Every response
// includes a unique ID and timestamp for audit correlation.
//
// # Fields
//
//   - ResponseID: Unique identifier for this response (UUID v4).
//   - RequestID: Echo of the request ID for correlation.
//   - Timestamp: Unix timestamp in milliseconds (UTC) when the response
//     was generated.
//   - Status: "delivered" or "queued".
//   - Output: The transformed text. Empty while content sits in review.
//   - ReviewItemID: Set when Status is "queued".
//   - AcceptedContextIDs / RejectedContext / Warnings: Assembly metadata.
//   - Issues: Validation findings below the blocking threshold.
//   - InboundRedactions / OutboundRedactions: Redaction counts, not content.
//   - ProcessingTimeMs: Time taken to process the request.
type TransformResponse struct {
	ResponseID         string          `json:"response_id"`
	RequestID          string          `json:"request_id"`
	Timestamp          int64           `json:"timestamp"`
	Status             string          `json:"status"`
	Output             string          `json:"output,omitempty"`
	ReviewItemID       string          `json:"review_item_id,omitempty"`
	Audience           string          `json:"audience"`
	Format             string          `json:"format"`
	AcceptedContextIDs []string        `json:"accepted_context_ids,omitempty"`
	RejectedContext    []RejectionView `json:"rejected_context,omitempty"`
	Warnings           []string        `json:"warnings,omitempty"`
	Issues             []IssueView     `json:"issues,omitempty"`
	InboundRedactions  int             `json:"inbound_redactions"`
	OutboundRedactions int             `json:"outbound_redactions"`
	ProcessingTimeMs   int64           `json:"processing_time_ms"`
}

// NewTransformResponse creates a TransformResponse from a pipeline result
// with auto-generated ID and timestamp.
func NewTransformResponse(requestID string, result *pipeline.Result) *TransformResponse {
	resp := &TransformResponse{
		ResponseID:         uuid.NewString(),
		RequestID:          requestID,
		Timestamp:          time.Now().UnixMilli(),
		Status:             string(result.Status),
		Output:             result.Output,
		ReviewItemID:       result.ReviewItemID,
		Audience:           result.Audience,
		Format:             string(result.Format),
		AcceptedContextIDs: result.AcceptedContextIDs,
		Warnings:           result.Warnings,
		InboundRedactions:  result.InboundRedactions,
		OutboundRedactions: result.OutboundRedactions,
		ProcessingTimeMs:   result.Duration.Milliseconds(),
	}
	for _, rej := range result.RejectedContext {
		resp.RejectedContext = append(resp.RejectedContext, RejectionView{
			DocumentID: rej.DocumentID,
			Reason:     rej.Reason,
		})
	}
	if len(result.Issues) > 0 {
		resp.Issues = NewIssueViews(result.Issues)
	}
	return resp
}
