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
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianScribe/cmd/scribe/config"
	"github.com/AleutianAI/AleutianScribe/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianScribe/services/pipeline/review"
)

// testClient wraps an httptest server in a gatewayClient.
func testClient(server *httptest.Server) *gatewayClient {
	return &gatewayClient{
		baseURL:    server.URL,
		token:      "test-token",
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// ===== Transform =====

func TestGatewayClient_Transform_Delivered(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/transform" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}

		var req datatypes.TransformRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.DocumentID != "guides/deploy" {
			t.Errorf("DocumentID = %q, want %q", req.DocumentID, "guides/deploy")
		}

		json.NewEncoder(w).Encode(datatypes.TransformResponse{
			RequestID: req.RequestID,
			Status:    "delivered",
			Output:    "Rewritten for new engineers.",
			Audience:  req.Audience,
		})
	}))
	defer server.Close()

	client := testClient(server)
	resp, err := client.Transform(context.Background(), &datatypes.TransformRequest{
		DocumentID: "guides/deploy",
		Audience:   "new on-call engineers",
	})
	if err != nil {
		t.Fatalf("Transform() failed: %v", err)
	}
	if resp.Status != "delivered" {
		t.Errorf("Status = %q, want %q", resp.Status, "delivered")
	}
	if resp.Output != "Rewritten for new engineers." {
		t.Errorf("Output = %q, want the rewritten text", resp.Output)
	}
}

func TestGatewayClient_Transform_Queued(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(datatypes.TransformResponse{
			Status:       "queued",
			ReviewItemID: "item-42",
		})
	}))
	defer server.Close()

	resp, err := testClient(server).Transform(context.Background(), &datatypes.TransformRequest{
		DocumentID: "guides/deploy",
		Audience:   "customers",
	})
	if err != nil {
		t.Fatalf("Transform() failed: %v", err)
	}
	if resp.Status != "queued" {
		t.Errorf("Status = %q, want %q", resp.Status, "queued")
	}
	if resp.ReviewItemID != "item-42" {
		t.Errorf("ReviewItemID = %q, want %q", resp.ReviewItemID, "item-42")
	}
	if resp.Output != "" {
		t.Error("Output should be empty while the item sits in review")
	}
}

func TestGatewayClient_Transform_Blocked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]any{
			"error": "document blocked by security policy",
			"issues": []datatypes.IssueView{
				{Kind: "SECRET_LEAKAGE", Severity: "CRITICAL", Detail: "aws access key detected"},
			},
		})
	}))
	defer server.Close()

	_, err := testClient(server).Transform(context.Background(), &datatypes.TransformRequest{
		DocumentID: "notes/incident",
		Audience:   "customers",
	})
	if err == nil {
		t.Fatal("Transform() should fail for a blocked document")
	}

	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error should be *apiError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, http.StatusForbidden)
	}
	if len(apiErr.Issues) != 1 || apiErr.Issues[0].Severity != "CRITICAL" {
		t.Errorf("Issues = %+v, want the critical finding", apiErr.Issues)
	}
}

func TestGatewayClient_Transform_GatewayDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	_, err := testClient(server).Transform(context.Background(), &datatypes.TransformRequest{
		DocumentID: "guides/deploy",
		Audience:   "customers",
	})
	if err == nil {
		t.Fatal("Transform() should fail when the gateway is unreachable")
	}
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		t.Error("a transport failure should not look like a gateway reply")
	}
}

// ===== Reviews =====

func TestGatewayClient_ListReviews(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/reviews" {
			t.Errorf("path = %q, want /v1/reviews", r.URL.Path)
		}
		if got := r.URL.Query().Get("status"); got != "pending" {
			t.Errorf("status query = %q, want %q", got, "pending")
		}
		json.NewEncoder(w).Encode(reviewListReply{
			Items: []review.Item{
				{ID: "item-1", Status: review.StatusPending},
				{ID: "item-2", Status: review.StatusPending},
			},
			Count: 2,
		})
	}))
	defer server.Close()

	items, err := testClient(server).ListReviews(context.Background(), "pending")
	if err != nil {
		t.Fatalf("ListReviews() failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].ID != "item-1" {
		t.Errorf("items[0].ID = %q, want %q", items[0].ID, "item-1")
	}
}

func TestGatewayClient_ListReviews_NoStatusOmitsQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "" {
			t.Errorf("query = %q, want none", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(reviewListReply{})
	}))
	defer server.Close()

	if _, err := testClient(server).ListReviews(context.Background(), ""); err != nil {
		t.Fatalf("ListReviews() failed: %v", err)
	}
}

func TestGatewayClient_GetReview(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/reviews/item-1" {
			t.Errorf("path = %q, want /v1/reviews/item-1", r.URL.Path)
		}
		json.NewEncoder(w).Encode(review.Item{
			ID:      "item-1",
			Status:  review.StatusPending,
			Content: "quarantined text",
			Issues: []review.ItemIssue{
				{Kind: "PII_LEAKAGE", Severity: "HIGH", Detail: "email address detected"},
			},
		})
	}))
	defer server.Close()

	item, err := testClient(server).GetReview(context.Background(), "item-1")
	if err != nil {
		t.Fatalf("GetReview() failed: %v", err)
	}
	if item.Content != "quarantined text" {
		t.Errorf("Content = %q, want the quarantined text", item.Content)
	}
	if len(item.Issues) != 1 {
		t.Errorf("got %d issues, want 1", len(item.Issues))
	}
}

func TestGatewayClient_GetReview_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "review item not found"})
	}))
	defer server.Close()

	_, err := testClient(server).GetReview(context.Background(), "no-such-item")
	if !errors.Is(err, review.ErrItemNotFound) {
		t.Errorf("error = %v, want review.ErrItemNotFound", err)
	}
}

func TestGatewayClient_Decide_Approve(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/reviews/item-1/decision" {
			t.Errorf("path = %q, want the decision endpoint", r.URL.Path)
		}
		var req datatypes.DecisionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Decision != "approve" {
			t.Errorf("Decision = %q, want %q", req.Decision, "approve")
		}
		json.NewEncoder(w).Encode(review.Item{
			ID:       "item-1",
			Status:   review.StatusApproved,
			Reviewer: "alex",
		})
	}))
	defer server.Close()

	item, err := testClient(server).Decide(context.Background(), "item-1", "approve", "")
	if err != nil {
		t.Fatalf("Decide() failed: %v", err)
	}
	if item.Status != review.StatusApproved {
		t.Errorf("Status = %q, want approved", item.Status)
	}
}

func TestGatewayClient_Decide_RejectCarriesReason(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req datatypes.DecisionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Reason != "quotes internal hostnames" {
			t.Errorf("Reason = %q, want the rejection reason", req.Reason)
		}
		json.NewEncoder(w).Encode(review.Item{ID: "item-1", Status: review.StatusRejected})
	}))
	defer server.Close()

	item, err := testClient(server).Decide(context.Background(), "item-1", "reject", "quotes internal hostnames")
	if err != nil {
		t.Fatalf("Decide() failed: %v", err)
	}
	if item.Status != review.StatusRejected {
		t.Errorf("Status = %q, want rejected", item.Status)
	}
}

func TestGatewayClient_Decide_AlreadyDecided(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "review item already decided"})
	}))
	defer server.Close()

	_, err := testClient(server).Decide(context.Background(), "item-1", "reject", "")
	if !errors.Is(err, review.ErrAlreadyDecided) {
		t.Errorf("error = %v, want review.ErrAlreadyDecided", err)
	}
}

func TestGatewayClient_ApprovedContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/reviews/item-1/content" {
			t.Errorf("path = %q, want the content endpoint", r.URL.Path)
		}
		json.NewEncoder(w).Encode(approvedContentReply{ID: "item-1", Content: "released text"})
	}))
	defer server.Close()

	content, err := testClient(server).ApprovedContent(context.Background(), "item-1")
	if err != nil {
		t.Fatalf("ApprovedContent() failed: %v", err)
	}
	if content != "released text" {
		t.Errorf("content = %q, want %q", content, "released text")
	}
}

func TestGatewayClient_ApprovedContent_StillPending(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "review item is still pending"})
	}))
	defer server.Close()

	_, err := testClient(server).ApprovedContent(context.Background(), "item-1")
	if !errors.Is(err, review.ErrStillPending) {
		t.Errorf("error = %v, want review.ErrStillPending", err)
	}
}

func TestGatewayClient_ApprovedContent_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
		json.NewEncoder(w).Encode(map[string]string{"error": "review item was rejected"})
	}))
	defer server.Close()

	_, err := testClient(server).ApprovedContent(context.Background(), "item-1")
	if !errors.Is(err, review.ErrRejected) {
		t.Errorf("error = %v, want review.ErrRejected", err)
	}
}

// ===== Health =====

func TestGatewayClient_Health(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %q, want /health", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"breakers": map[string]any{
				"generation": map[string]any{"state": "open", "consecutive_failures": 5},
			},
		})
	}))
	defer server.Close()

	health, err := testClient(server).Health(context.Background())
	if err != nil {
		t.Fatalf("Health() failed: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("Status = %q, want %q", health.Status, "ok")
	}
	if health.Breakers["generation"].State != "open" {
		t.Errorf("generation breaker state = %q, want %q", health.Breakers["generation"].State, "open")
	}
}

// ===== Connection Resolution =====

func TestGatewayBaseURL_FlagWins(t *testing.T) {
	origFlag := gatewayFlagURL
	origConfig := config.Global
	defer func() {
		gatewayFlagURL = origFlag
		config.Global = origConfig
	}()

	gatewayFlagURL = "http://flag:1"
	t.Setenv("SCRIBE_GATEWAY_URL", "http://env:2")
	config.Global.Gateway.URL = "http://config:3"

	if got := gatewayBaseURL(); got != "http://flag:1" {
		t.Errorf("gatewayBaseURL() = %q, want the flag value", got)
	}
}

func TestGatewayBaseURL_EnvBeatsConfig(t *testing.T) {
	origFlag := gatewayFlagURL
	origConfig := config.Global
	defer func() {
		gatewayFlagURL = origFlag
		config.Global = origConfig
	}()

	gatewayFlagURL = ""
	t.Setenv("SCRIBE_GATEWAY_URL", "http://env:2")
	config.Global.Gateway.URL = "http://config:3"

	if got := gatewayBaseURL(); got != "http://env:2" {
		t.Errorf("gatewayBaseURL() = %q, want the environment value", got)
	}
}

func TestGatewayBaseURL_Default(t *testing.T) {
	origFlag := gatewayFlagURL
	origConfig := config.Global
	defer func() {
		gatewayFlagURL = origFlag
		config.Global = origConfig
	}()

	gatewayFlagURL = ""
	t.Setenv("SCRIBE_GATEWAY_URL", "")
	config.Global.Gateway.URL = ""

	want := "http://localhost:12300"
	if got := gatewayBaseURL(); got != want {
		t.Errorf("gatewayBaseURL() = %q, want %q", got, want)
	}
}

// ===== Stream URL =====

func TestStreamURL(t *testing.T) {
	tests := []struct {
		base     string
		expected string
	}{
		{"http://localhost:12300", "ws://localhost:12300/v1/reviews/ws"},
		{"https://scribe.internal", "wss://scribe.internal/v1/reviews/ws"},
	}

	for _, tt := range tests {
		client := &gatewayClient{baseURL: tt.base}
		if got := client.streamURL(); got != tt.expected {
			t.Errorf("streamURL(%q) = %q, want %q", tt.base, got, tt.expected)
		}
	}
}
