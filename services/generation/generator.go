// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package generation provides clients for the text generation backends
// the pipeline can rewrite documents through. Errors carry retryability
// so the resilience layer can tell transient backend trouble from
// terminal misconfiguration.
package generation

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/AleutianAI/AleutianScribe/services/pipeline/resilience"
)

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// Generator defines the standard interface for any generation backend.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string, params GenerationParams) (string, error)
}

// statusError converts a non-200 backend response into an error.
//
// Rate limiting and server-side failures are transient and marked
// retryable. Client-side statuses (auth, malformed request, unknown
// model) are terminal: repeating the call cannot change the outcome.
func statusError(provider string, statusCode int, body []byte) error {
	err := fmt.Errorf("%s failed with status %d: %s", provider, statusCode, compactBody(body))
	if statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError {
		return resilience.MarkRetryable(err)
	}
	return err
}

// compactBody trims a backend error body for inclusion in an error message.
func compactBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
