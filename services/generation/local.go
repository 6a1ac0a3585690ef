// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// LlamaCppGenerator targets a llama.cpp server's /completion endpoint.
type LlamaCppGenerator struct {
	httpClient *http.Client
	baseURL    string
}

// NewLlamaCppGenerator builds a generator from the environment.
// LLM_SERVICE_URL_BASE must point at the llama.cpp server.
func NewLlamaCppGenerator() (*LlamaCppGenerator, error) {
	baseURL := os.Getenv("LLM_SERVICE_URL_BASE")
	if baseURL == "" {
		slog.Error("LLM_SERVICE_URL_BASE environment variable not set")
		return nil, fmt.Errorf("LLM_SERVICE_URL_BASE environment variable not set")
	}
	slog.Info("Initializing llama.cpp generator", "base_url", baseURL)
	return &LlamaCppGenerator{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}, nil
}

type llamaCppRequest struct {
	Prompt      string   `json:"prompt"`
	NPredict    int      `json:"n_predict"`
	Temperature *float32 `json:"temperature,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type llamaCppResponse struct {
	Content string `json:"content"`
}

// Generate implements the Generator interface.
func (g *LlamaCppGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string,
	params GenerationParams) (string, error) {

	// llama.cpp takes a single prompt, not a message list.
	prompt := userPrompt
	if systemPrompt != "" {
		prompt = systemPrompt + "\n\n" + userPrompt
	}

	reqPayload := llamaCppRequest{
		Prompt:      prompt,
		NPredict:    2048,
		Temperature: params.Temperature,
		TopK:        params.TopK,
		TopP:        params.TopP,
		Stop:        params.Stop,
	}
	if params.MaxTokens != nil {
		reqPayload.NPredict = *params.MaxTokens
	}

	payloadBytes, err := json.Marshal(reqPayload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal the llama.cpp request: %w", err)
	}

	url := g.baseURL + "/completion"
	slog.Debug("Sending request to llama.cpp", "url", url)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url,
		bytes.NewBuffer(payloadBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create the llama.cpp request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		slog.Error("llama.cpp request failed", "error", err)
		return "", fmt.Errorf("llama.cpp request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read the llama.cpp response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		slog.Error("llama.cpp returned an error status",
			"status", resp.StatusCode, "body", compactBody(bodyBytes))
		return "", statusError("llama.cpp", resp.StatusCode, bodyBytes)
	}

	var llamaResp llamaCppResponse
	if err := json.Unmarshal(bodyBytes, &llamaResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal the llama.cpp response: %w", err)
	}

	slog.Debug("Received response from llama.cpp", "bytes", len(llamaResp.Content))
	return llamaResp.Content, nil
}
