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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianScribe/services/pipeline/review"
)

var reviewStreamUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	// Notifications are small JSON payloads.
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,
}

// HandleReviewStream upgrades the connection and registers it with the
// review notification hub.
//
// Traffic is one way: the hub pushes a notification whenever an item
// enters the queue. The read loop exists only to notice the client
// going away; inbound frames are discarded.
func HandleReviewStream(hub *review.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := reviewStreamUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("Failed to upgrade the review stream websocket", "error", err)
			return
		}
		hub.Add(ws)
		slog.Info("Review stream client connected", "clients", hub.Len())

		defer func() {
			hub.Remove(ws)
			ws.Close()
			slog.Info("Review stream client disconnected", "clients", hub.Len())
		}()

		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}
}
