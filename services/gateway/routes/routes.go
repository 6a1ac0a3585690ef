// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianScribe/pkg/extensions"
	"github.com/AleutianAI/AleutianScribe/services/gateway/handlers"
	"github.com/AleutianAI/AleutianScribe/services/gateway/middleware"
	"github.com/AleutianAI/AleutianScribe/services/gateway/telemetry"
	"github.com/AleutianAI/AleutianScribe/services/pipeline"
	"github.com/AleutianAI/AleutianScribe/services/pipeline/review"
)

func SetupRoutes(router *gin.Engine, p *pipeline.Pipeline, queue *review.Queue,
	hub *review.Hub, authProvider extensions.AuthProvider) {

	router.GET("/health", handlers.HandleHealth(p))
	router.GET("/metrics", func(c *gin.Context) {
		// Resolved per request: the handler only exists once telemetry
		// init selected the prometheus exporter.
		h := telemetry.MetricsHandler()
		if h == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "metrics exporter not enabled"})
			return
		}
		h.ServeHTTP(c.Writer, c.Request)
	})

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(authProvider))
	{
		v1.POST("/transform", handlers.HandleTransform(p))

		reviews := v1.Group("/reviews")
		{
			// Release of approved content needs authentication only; the
			// queue itself refuses anything not yet approved.
			reviews.GET("/:itemId/content", handlers.HandleApprovedContent(queue))

			// Every route that can reveal quarantined content sits behind
			// the reviewer role.
			gated := reviews.Group("")
			gated.Use(middleware.RequireRole(extensions.RoleReviewer))
			{
				gated.GET("", handlers.HandleListReviews(queue))
				gated.GET("/ws", handlers.HandleReviewStream(hub))
				gated.GET("/:itemId", handlers.HandleGetReview(queue))
				gated.POST("/:itemId/decision", handlers.HandleReviewDecision(queue))
			}
		}
	}
}
