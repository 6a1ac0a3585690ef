// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package review

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// dialHub starts a server that registers upgraded connections with the
// hub and returns a connected client.
func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()

	connected := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Add(conn)
		close(connected)
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("server never registered the connection")
	}
	return client
}

// TestHub_BroadcastsToConnectedClient verifies a reviewer session
// receives queue notifications.
func TestHub_BroadcastsToConnectedClient(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	client := dialHub(t, hub)
	require.Equal(t, 1, hub.Len())

	sent := Notification{
		ItemID:     "item-1",
		Status:     StatusPending,
		IssueCount: 2,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, hub.Notify(context.Background(), sent))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got Notification
	require.NoError(t, client.ReadJSON(&got))
	assert.Equal(t, sent.ItemID, got.ItemID)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, 2, got.IssueCount)
}

// TestHub_PrunesDeadConnections verifies failed writes drop the session.
func TestHub_PrunesDeadConnections(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	client := dialHub(t, hub)
	require.NoError(t, client.Close())

	// The first write after the close may still land in a buffer;
	// keep notifying until the failure is observed.
	assert.Eventually(t, func() bool {
		_ = hub.Notify(context.Background(), Notification{ItemID: "x"})
		return hub.Len() == 0
	}, 3*time.Second, 50*time.Millisecond)
}

// TestHub_Remove verifies explicit deregistration.
func TestHub_Remove(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	client := dialHub(t, hub)
	_ = client

	require.Equal(t, 1, hub.Len())
	hub.mu.Lock()
	var conn *websocket.Conn
	for c := range hub.conns {
		conn = c
	}
	hub.mu.Unlock()

	hub.Remove(conn)
	assert.Equal(t, 0, hub.Len())
}

// TestHub_NotifyEmptyHub verifies broadcasting with no sessions is a no-op.
func TestHub_NotifyEmptyHub(t *testing.T) {
	hub := NewHub()
	assert.NoError(t, hub.Notify(context.Background(), Notification{ItemID: "x"}))
}

// TestHub_CloseDisconnectsClients verifies Close tears sessions down.
func TestHub_CloseDisconnectsClients(t *testing.T) {
	hub := NewHub()
	client := dialHub(t, hub)

	require.NoError(t, hub.Close())
	assert.Equal(t, 0, hub.Len())

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := client.ReadMessage()
	assert.Error(t, err, "the client should observe the closed connection")
}
