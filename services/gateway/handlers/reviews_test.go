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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianScribe/pkg/extensions"
	"github.com/AleutianAI/AleutianScribe/services/gateway/middleware"
	"github.com/AleutianAI/AleutianScribe/services/pipeline/review"
)

// =============================================================================
// Test Setup
// =============================================================================

func newTestQueue(t *testing.T) *review.Queue {
	t.Helper()
	q, err := review.NewQueue(review.InMemoryStoreConfig(), nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

// reviewRouter mounts the review handlers. When info is non-nil every
// request carries that identity, standing in for the auth middleware.
func reviewRouter(q *review.Queue, info *extensions.AuthInfo) *gin.Engine {
	router := gin.New()
	if info != nil {
		router.Use(func(c *gin.Context) {
			middleware.SetAuthInfo(c, info)
		})
	}
	router.GET("/v1/reviews", HandleListReviews(q))
	router.GET("/v1/reviews/:itemId", HandleGetReview(q))
	router.POST("/v1/reviews/:itemId/decision", HandleReviewDecision(q))
	router.GET("/v1/reviews/:itemId/content", HandleApprovedContent(q))
	return router
}

func reviewerInfo() *extensions.AuthInfo {
	return &extensions.AuthInfo{
		UserID: "reviewer-1",
		Roles:  []string{extensions.RoleReviewer},
	}
}

func flagItem(t *testing.T, q *review.Queue, content string) string {
	t.Helper()
	id, err := q.FlagForReview(context.Background(), content, []review.ItemIssue{
		{Kind: "PII_LEAKAGE", Severity: "HIGH", Detail: "EMAIL_ADDRESS (high confidence): 1 match(es)"},
	})
	require.NoError(t, err)
	return id
}

func getPath(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", path, nil)
	router.ServeHTTP(w, req)
	return w
}

// =============================================================================
// HandleListReviews Tests
// =============================================================================

func TestHandleListReviews_DefaultsToPending(t *testing.T) {
	q := newTestQueue(t)
	flagItem(t, q, "first quarantined output")
	flagItem(t, q, "second quarantined output")
	router := reviewRouter(q, reviewerInfo())

	w := getPath(router, "/v1/reviews")

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Items []review.Item `json:"items"`
		Count int           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	for _, item := range resp.Items {
		assert.Equal(t, review.StatusPending, item.Status)
		assert.Empty(t, item.Content, "listing must not reveal quarantined content")
		assert.NotEmpty(t, item.ContentHash)
	}
}

func TestHandleListReviews_UnknownStatus(t *testing.T) {
	router := reviewRouter(newTestQueue(t), reviewerInfo())

	w := getPath(router, "/v1/reviews?status=bogus")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleListReviews_StatusFilterIsCaseInsensitive(t *testing.T) {
	q := newTestQueue(t)
	flagItem(t, q, "quarantined output")
	router := reviewRouter(q, reviewerInfo())

	w := getPath(router, "/v1/reviews?status=pending")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "\"count\":1")
}

// =============================================================================
// HandleGetReview Tests
// =============================================================================

func TestHandleGetReview_IncludesContentForReviewer(t *testing.T) {
	q := newTestQueue(t)
	id := flagItem(t, q, "the quarantined output body")
	router := reviewRouter(q, reviewerInfo())

	w := getPath(router, "/v1/reviews/"+id)

	require.Equal(t, http.StatusOK, w.Code)

	var item review.Item
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &item))
	assert.Equal(t, id, item.ID)
	assert.Equal(t, review.StatusPending, item.Status)
	assert.Equal(t, "the quarantined output body", item.Content)
	require.Len(t, item.Issues, 1)
	assert.Equal(t, "PII_LEAKAGE", item.Issues[0].Kind)
}

func TestHandleGetReview_NotFound(t *testing.T) {
	router := reviewRouter(newTestQueue(t), reviewerInfo())

	w := getPath(router, "/v1/reviews/no-such-item")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// =============================================================================
// HandleReviewDecision Tests
// =============================================================================

func TestHandleReviewDecision_Approve(t *testing.T) {
	q := newTestQueue(t)
	id := flagItem(t, q, "approved output body")
	router := reviewRouter(q, reviewerInfo())

	w := postJSON(router, "/v1/reviews/"+id+"/decision", gin.H{
		"decision": "approve",
		"reason":   "content is fine for the audience",
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var item review.Item
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &item))
	assert.Equal(t, review.StatusApproved, item.Status)
	assert.Equal(t, "reviewer-1", item.Reviewer)
	assert.NotNil(t, item.DecidedAt)
}

func TestHandleReviewDecision_Reject(t *testing.T) {
	q := newTestQueue(t)
	id := flagItem(t, q, "rejected output body")
	router := reviewRouter(q, reviewerInfo())

	w := postJSON(router, "/v1/reviews/"+id+"/decision", gin.H{
		"decision": "reject",
		"reason":   "leaks internal contact details",
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var item review.Item
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &item))
	assert.Equal(t, review.StatusRejected, item.Status)
	assert.Empty(t, item.Content, "rejected content stays withheld")
}

func TestHandleReviewDecision_SecondDecisionConflicts(t *testing.T) {
	q := newTestQueue(t)
	id := flagItem(t, q, "decided once")
	router := reviewRouter(q, reviewerInfo())

	first := postJSON(router, "/v1/reviews/"+id+"/decision", gin.H{"decision": "approve"})
	require.Equal(t, http.StatusOK, first.Code)

	second := postJSON(router, "/v1/reviews/"+id+"/decision", gin.H{"decision": "reject"})
	assert.Equal(t, http.StatusConflict, second.Code)
}

func TestHandleReviewDecision_InvalidDecision(t *testing.T) {
	q := newTestQueue(t)
	id := flagItem(t, q, "pending output")
	router := reviewRouter(q, reviewerInfo())

	w := postJSON(router, "/v1/reviews/"+id+"/decision", gin.H{"decision": "maybe"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleReviewDecision_NotFound(t *testing.T) {
	router := reviewRouter(newTestQueue(t), reviewerInfo())

	w := postJSON(router, "/v1/reviews/no-such-item/decision", gin.H{"decision": "approve"})

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleReviewDecision_RequiresIdentity(t *testing.T) {
	q := newTestQueue(t)
	id := flagItem(t, q, "pending output")
	router := reviewRouter(q, nil)

	w := postJSON(router, "/v1/reviews/"+id+"/decision", gin.H{"decision": "approve"})

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// The refused decision must not have touched the item.
	item, err := q.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, review.StatusPending, item.Status)
}

// =============================================================================
// HandleApprovedContent Tests
// =============================================================================

func TestHandleApprovedContent_Lifecycle(t *testing.T) {
	q := newTestQueue(t)
	id := flagItem(t, q, "released output body")
	router := reviewRouter(q, reviewerInfo())

	// Pending: the requester is told to come back.
	pending := getPath(router, "/v1/reviews/"+id+"/content")
	assert.Equal(t, http.StatusConflict, pending.Code)

	decided := postJSON(router, "/v1/reviews/"+id+"/decision", gin.H{"decision": "approve"})
	require.Equal(t, http.StatusOK, decided.Code)

	released := getPath(router, "/v1/reviews/"+id+"/content")
	require.Equal(t, http.StatusOK, released.Code)
	assert.Contains(t, released.Body.String(), "released output body")
}

func TestHandleApprovedContent_RejectedIsGone(t *testing.T) {
	q := newTestQueue(t)
	id := flagItem(t, q, "never released")
	router := reviewRouter(q, reviewerInfo())

	decided := postJSON(router, "/v1/reviews/"+id+"/decision", gin.H{"decision": "reject"})
	require.Equal(t, http.StatusOK, decided.Code)

	w := getPath(router, "/v1/reviews/"+id+"/content")
	assert.Equal(t, http.StatusGone, w.Code)
	assert.NotContains(t, w.Body.String(), "never released")
}

func TestHandleApprovedContent_NotFound(t *testing.T) {
	router := reviewRouter(newTestQueue(t), reviewerInfo())

	w := getPath(router, "/v1/reviews/no-such-item/content")

	assert.Equal(t, http.StatusNotFound, w.Code)
}
