// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianScribe/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianScribe/services/pipeline"
	"github.com/AleutianAI/AleutianScribe/services/pipeline/document"
)

var transformTracer = otel.Tracer("scribe.gateway.handlers")

// HandleTransform runs the full transform pipeline for one document.
//
// The response carries either the redacted output (status "delivered") or
// a review item ID (status "queued") when the output was quarantined.
func HandleTransform(p *pipeline.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := transformTracer.Start(c.Request.Context(), "HandleTransform")
		defer span.End()

		var req datatypes.TransformRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to parse the transform request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Warn("Rejected invalid transform request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result, err := p.Transform(ctx, req.DocumentID, req.Audience, req.Options())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			writeTransformError(c, req.DocumentID, err)
			return
		}

		c.JSON(http.StatusOK, datatypes.NewTransformResponse(req.RequestID, result))
	}
}

// writeTransformError maps pipeline failures onto HTTP statuses. Backend
// error strings stay in the server log; clients get a stable message.
func writeTransformError(c *gin.Context, documentID string, err error) {
	var fmErr *document.FrontmatterError
	switch {
	case errors.Is(err, document.ErrNotFound):
		slog.Warn("Transform requested for unknown document", "documentId", documentID)
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})

	case errors.As(err, &fmErr):
		slog.Warn("Transform rejected malformed document metadata",
			"documentId", fmErr.DocumentID, "error", err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":       "document metadata is malformed",
			"document_id": fmErr.DocumentID,
		})

	case pipeline.IsSecurityBlocked(err):
		issues := pipeline.GetSecurityIssues(err)
		slog.Warn("Transform blocked by inbound security scan",
			"documentId", documentID, "issues", len(issues))
		c.JSON(http.StatusForbidden, gin.H{
			"error":  "document blocked by security policy",
			"issues": datatypes.NewIssueViews(issues),
		})

	case pipeline.IsUnavailable(err):
		slog.Error("Transform backend unavailable", "documentId", documentID, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "generation backend unavailable"})

	default:
		slog.Error("Transform failed", "documentId", documentID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "transform failed"})
	}
}
