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
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// hubWriteWait bounds each broadcast write. A stalled reviewer client
// must not block FlagForReview, which notifies synchronously.
const hubWriteWait = 5 * time.Second

// Hub broadcasts queue notifications to connected reviewer sessions
// over WebSocket.
//
// The gateway's review endpoint upgrades the connection and hands it to
// Add; the hub owns it from then on. Connections that fail a write are
// closed and dropped.
//
// # Thread Safety
//
// Safe for concurrent use. Writes to each connection are serialized
// through the hub mutex.
type Hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[*websocket.Conn]struct{})}
}

// Add registers a connection for broadcasts.
func (h *Hub) Add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = struct{}{}
}

// Remove unregisters a connection without closing it.
func (h *Hub) Remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn)
}

// Len returns the number of connected sessions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Notify broadcasts the notification to every connected session.
//
// Failed connections are closed and removed. Notify never returns an
// error: reviewer sessions are ephemeral and a dropped client is normal
// churn, not a delivery failure worth surfacing to the queue.
func (h *Hub) Notify(ctx context.Context, n Notification) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.conns {
		if err := conn.SetWriteDeadline(time.Now().Add(hubWriteWait)); err != nil {
			h.drop(conn)
			continue
		}
		if err := conn.WriteJSON(n); err != nil {
			slog.WarnContext(ctx, "Failed to write review notification",
				"remote", conn.RemoteAddr(), "error", err)
			h.drop(conn)
		}
	}
	return nil
}

// Close closes every connection and empties the hub.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.conns {
		conn.Close()
		delete(h.conns, conn)
	}
	return nil
}

// drop closes and removes a connection. Caller holds the mutex.
func (h *Hub) drop(conn *websocket.Conn) {
	conn.Close()
	delete(h.conns, conn)
}

var _ Notifier = (*Hub)(nil)
