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
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianScribe/services/pipeline"
)

// HandleHealth reports liveness plus the state of each circuit breaker.
//
// The endpoint always returns 200 while the process serves requests; a
// breaker sitting open shows up in the body, not the status code, so
// orchestrators do not restart a gateway that is only waiting out a
// flaky backend.
func HandleHealth(p *pipeline.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		breakers := gin.H{}
		for name, stats := range p.BreakerStats() {
			breakers[name] = gin.H{
				"state":                 stats.State.String(),
				"consecutive_failures":  stats.ConsecutiveFailures,
				"consecutive_successes": stats.ConsecutiveSuccesses,
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"breakers": breakers,
		})
	}
}
