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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/AleutianAI/AleutianScribe/cmd/scribe/config"
	"github.com/AleutianAI/AleutianScribe/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianScribe/services/pipeline/review"
)

// Constants for default connection settings
const (
	DefaultGatewayHost = "localhost"
	DefaultGatewayPort = 12300
)

// =============================================================================
// CONNECTION RESOLUTION
// =============================================================================

// gatewayBaseURL returns the gateway address.
func gatewayBaseURL() string {
	// 1. Priority: --gateway flag
	if gatewayFlagURL != "" {
		return gatewayFlagURL
	}
	// 2. Environment Variable (Used by Tests & Docker overrides)
	if url := os.Getenv("SCRIBE_GATEWAY_URL"); url != "" {
		return url
	}
	// 3. Config file
	if config.Global.Gateway.URL != "" {
		return config.Global.Gateway.URL
	}
	// 4. Default: Standard Host/Port
	return fmt.Sprintf("http://%s:%d", DefaultGatewayHost, DefaultGatewayPort)
}

// gatewayToken returns the bearer token, empty for open deployments.
func gatewayToken() string {
	if token := os.Getenv("SCRIBE_GATEWAY_TOKEN"); token != "" {
		return token
	}
	return config.Global.Gateway.Token
}

// =============================================================================
// ERROR TYPE
// =============================================================================

// apiError is a non-2xx gateway reply.
//
// Issues is populated when the gateway blocked a transform and attached
// the validation findings to the error body.
type apiError struct {
	StatusCode int
	Message    string
	Issues     []datatypes.IssueView
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway returned status %d", e.StatusCode)
	}
	return e.Message
}

// =============================================================================
// CLIENT
// =============================================================================

// gatewayClient is a typed HTTP client for the transform gateway.
//
// # Description
//
// Wraps the gateway's REST endpoints behind methods that return the
// module's own wire types, so command code never touches raw JSON.
// The zero value is not usable; create instances with newGatewayClient.
//
// # Thread Safety
//
// Safe for concurrent use. The underlying http.Client handles its own
// connection pooling.
type gatewayClient struct {
	// baseURL is the gateway address, e.g. "http://localhost:12300".
	baseURL string

	// token is sent as a bearer token when non-empty.
	token string

	// httpClient is used for API requests.
	httpClient *http.Client
}

// newGatewayClient creates a client from the resolved connection settings.
//
// # Outputs
//
//   - *gatewayClient: Configured client instance
//
// # Assumptions
//
//   - config.Load has already run (PersistentPreRun does this)
func newGatewayClient() *gatewayClient {
	return &gatewayClient{
		baseURL:    strings.TrimSuffix(gatewayBaseURL(), "/"),
		token:      gatewayToken(),
		httpClient: &http.Client{Timeout: config.Global.Gateway.Timeout()},
	}
}

// doJSON performs one request and decodes the reply into out.
//
// A nil body sends no payload; a nil out discards the reply body. Non-2xx
// statuses become an *apiError carrying the gateway's error message.
func (c *gatewayClient) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode the request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build the request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read the response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &apiError{StatusCode: resp.StatusCode}
		var errBody struct {
			Error  string                `json:"error"`
			Issues []datatypes.IssueView `json:"issues"`
		}
		if json.Unmarshal(raw, &errBody) == nil {
			apiErr.Message = errBody.Error
			apiErr.Issues = errBody.Issues
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode the response: %w", err)
	}
	return nil
}

// =============================================================================
// TRANSFORM
// =============================================================================

// Transform submits one document transform request.
//
// The returned response has status "delivered" with the redacted output,
// or "queued" with a review item ID. A transform the gateway blocked
// outright surfaces as an *apiError with StatusCode 403 and the findings
// in Issues.
func (c *gatewayClient) Transform(ctx context.Context, req *datatypes.TransformRequest) (*datatypes.TransformResponse, error) {
	var resp datatypes.TransformResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/transform", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// =============================================================================
// REVIEWS
// =============================================================================

// reviewListReply is the wire form of GET /v1/reviews.
type reviewListReply struct {
	Items []review.Item `json:"items"`
	Count int           `json:"count"`
}

// ListReviews returns the queue items with the given status.
// An empty status lists pending items, matching the gateway default.
func (c *gatewayClient) ListReviews(ctx context.Context, status string) ([]review.Item, error) {
	path := "/v1/reviews"
	if status != "" {
		path += "?status=" + status
	}
	var reply reviewListReply
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &reply); err != nil {
		return nil, err
	}
	return reply.Items, nil
}

// GetReview returns one queue item including its quarantined content.
func (c *gatewayClient) GetReview(ctx context.Context, id string) (*review.Item, error) {
	var item review.Item
	if err := c.doJSON(ctx, http.MethodGet, "/v1/reviews/"+id, nil, &item); err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, review.ErrItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

// Decide records an approve or reject decision on a queue item.
//
// The decision must be "approve" or "reject". Gateway conflicts map onto
// the review package sentinels so callers can use errors.Is.
func (c *gatewayClient) Decide(ctx context.Context, id, decision, reason string) (*review.Item, error) {
	body := datatypes.DecisionRequest{Decision: decision, Reason: reason}
	var item review.Item
	if err := c.doJSON(ctx, http.MethodPost, "/v1/reviews/"+id+"/decision", body, &item); err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) {
			switch apiErr.StatusCode {
			case http.StatusNotFound:
				return nil, review.ErrItemNotFound
			case http.StatusConflict:
				return nil, review.ErrAlreadyDecided
			}
		}
		return nil, err
	}
	return &item, nil
}

// approvedContentReply is the wire form of GET /v1/reviews/:id/content.
type approvedContentReply struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// ApprovedContent releases the content of an approved item.
//
// Returns review.ErrStillPending while the item awaits a decision and
// review.ErrRejected when a reviewer refused it, so pollers can tell
// "not yet" from "never".
func (c *gatewayClient) ApprovedContent(ctx context.Context, id string) (string, error) {
	var reply approvedContentReply
	if err := c.doJSON(ctx, http.MethodGet, "/v1/reviews/"+id+"/content", nil, &reply); err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) {
			switch apiErr.StatusCode {
			case http.StatusNotFound:
				return "", review.ErrItemNotFound
			case http.StatusConflict:
				return "", review.ErrStillPending
			case http.StatusGone:
				return "", review.ErrRejected
			}
		}
		return "", err
	}
	return reply.Content, nil
}

// =============================================================================
// HEALTH
// =============================================================================

// breakerHealth is one circuit breaker's state in the health reply.
type breakerHealth struct {
	State                string `json:"state"`
	ConsecutiveFailures  int    `json:"consecutive_failures"`
	ConsecutiveSuccesses int    `json:"consecutive_successes"`
}

// gatewayHealth is the wire form of GET /health.
type gatewayHealth struct {
	Status   string                   `json:"status"`
	Breakers map[string]breakerHealth `json:"breakers"`
}

// Health reports gateway liveness and circuit breaker states.
func (c *gatewayClient) Health(ctx context.Context) (*gatewayHealth, error) {
	var health gatewayHealth
	if err := c.doJSON(ctx, http.MethodGet, "/health", nil, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// =============================================================================
// STREAMING
// =============================================================================

// streamURL returns the WebSocket address of the review notification feed.
func (c *gatewayClient) streamURL() string {
	url := c.baseURL + "/v1/reviews/ws"
	if strings.HasPrefix(url, "https://") {
		return "wss://" + strings.TrimPrefix(url, "https://")
	}
	return "ws://" + strings.TrimPrefix(url, "http://")
}
