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
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianScribe/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianScribe/services/gateway/middleware"
	"github.com/AleutianAI/AleutianScribe/services/pipeline/review"
)

var reviewTracer = otel.Tracer("scribe.gateway.handlers")

// HandleListReviews lists review queue items, filtered by status.
//
// The status query parameter defaults to PENDING. Listed items carry
// metadata and issues only; content stays withheld unless approved.
func HandleListReviews(q *review.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := reviewTracer.Start(c.Request.Context(), "HandleListReviews")
		defer span.End()

		status := review.Status(strings.ToUpper(c.DefaultQuery("status", string(review.StatusPending))))
		switch status {
		case review.StatusPending, review.StatusApproved, review.StatusRejected:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status filter"})
			return
		}

		items, err := q.List(ctx, status)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to list review items", "status", status, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list review items"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
	}
}

// HandleGetReview returns one review item including its quarantined
// content. The route must sit behind the reviewer role gate; this is the
// only read path that reveals undecided content.
func HandleGetReview(q *review.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := reviewTracer.Start(c.Request.Context(), "HandleGetReview")
		defer span.End()

		id := c.Param("itemId")
		item, err := q.GetForReview(ctx, id)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if errors.Is(err, review.ErrItemNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "review item not found"})
				return
			}
			slog.Error("Failed to load review item", "itemId", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load review item"})
			return
		}

		c.JSON(http.StatusOK, item)
	}
}

// HandleReviewDecision records an approve or reject decision.
//
// The reviewer identity comes from the authenticated request, never from
// the body. Deciding an already-decided item returns 409.
func HandleReviewDecision(q *review.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := reviewTracer.Start(c.Request.Context(), "HandleReviewDecision")
		defer span.End()

		authInfo := middleware.GetAuthInfo(c)
		if authInfo == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req datatypes.DecisionRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to parse the decision request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		id := c.Param("itemId")
		err := q.Decide(ctx, id, req.Approve(), authInfo.UserID, req.Reason)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			switch {
			case errors.Is(err, review.ErrItemNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "review item not found"})
			case errors.Is(err, review.ErrAlreadyDecided):
				c.JSON(http.StatusConflict, gin.H{"error": "review item already decided"})
			default:
				slog.Error("Failed to record review decision",
					"itemId", id, "reviewer", authInfo.UserID, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record decision"})
			}
			return
		}

		slog.Info("Review decision recorded",
			"itemId", id, "decision", req.Decision, "reviewer", authInfo.UserID)

		item, err := q.Get(ctx, id)
		if err != nil {
			// The decision committed; report it even if the re-read failed.
			c.JSON(http.StatusOK, gin.H{"id": id, "decision": req.Decision})
			return
		}
		c.JSON(http.StatusOK, item)
	}
}

// HandleApprovedContent releases the content of an approved item to the
// original requester. Pending items return 409 and rejected items 410,
// so polling clients can tell "not yet" from "never".
func HandleApprovedContent(q *review.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := reviewTracer.Start(c.Request.Context(), "HandleApprovedContent")
		defer span.End()

		id := c.Param("itemId")
		content, err := q.Approved(ctx, id)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			switch {
			case errors.Is(err, review.ErrItemNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "review item not found"})
			case errors.Is(err, review.ErrStillPending):
				c.JSON(http.StatusConflict, gin.H{"error": "review item is still pending"})
			case errors.Is(err, review.ErrRejected):
				c.JSON(http.StatusGone, gin.H{"error": "review item was rejected"})
			default:
				slog.Error("Failed to release approved content", "itemId", id, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to release content"})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{"id": id, "content": content})
	}
}
