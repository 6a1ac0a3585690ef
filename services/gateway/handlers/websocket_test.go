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
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianScribe/services/pipeline/review"
)

// dialReviewStream serves the handler and returns a connected client.
func dialReviewStream(t *testing.T, hub *review.Hub) *websocket.Conn {
	t.Helper()

	router := gin.New()
	router.GET("/v1/reviews/ws", HandleReviewStream(hub))

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/reviews/ws"
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.Eventually(t, func() bool { return hub.Len() == 1 },
		2*time.Second, 10*time.Millisecond, "handler never registered the connection")
	return client
}

func TestHandleReviewStream_ReceivesQueueNotifications(t *testing.T) {
	hub := review.NewHub()
	defer hub.Close()

	q, err := review.NewQueue(review.InMemoryStoreConfig(), hub, nil)
	require.NoError(t, err)
	defer q.Close()

	client := dialReviewStream(t, hub)

	id, err := q.FlagForReview(context.Background(), "quarantined output", []review.ItemIssue{
		{Kind: "PII_LEAKAGE", Severity: "HIGH", Detail: "EMAIL_ADDRESS (high confidence): 1 match(es)"},
	})
	require.NoError(t, err)

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	var n review.Notification
	require.NoError(t, client.ReadJSON(&n))
	assert.Equal(t, id, n.ItemID)
	assert.Equal(t, review.StatusPending, n.Status)
	assert.Equal(t, 1, n.IssueCount)
}

func TestHandleReviewStream_DisconnectDeregisters(t *testing.T) {
	hub := review.NewHub()
	defer hub.Close()

	client := dialReviewStream(t, hub)
	require.NoError(t, client.Close())

	assert.Eventually(t, func() bool { return hub.Len() == 0 },
		2*time.Second, 10*time.Millisecond, "disconnect should deregister the session")
}
