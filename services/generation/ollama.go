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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scribe.generation.ollama")

// OllamaGenerator targets an Ollama server's /api/chat endpoint.
type OllamaGenerator struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

// NewOllamaGenerator builds a generator from the environment.
// OLLAMA_BASE_URL must be set; OLLAMA_MODEL defaults to llama3.1:8b.
func NewOllamaGenerator() (*OllamaGenerator, error) {
	baseURL := os.Getenv("OLLAMA_BASE_URL")
	if baseURL == "" {
		slog.Error("OLLAMA_BASE_URL environment variable not set")
		return nil, fmt.Errorf("OLLAMA_BASE_URL environment variable not set")
	}

	model := os.Getenv("OLLAMA_MODEL")
	if model == "" {
		model = "llama3.1:8b"
		slog.Warn("OLLAMA_MODEL not set, defaulting to llama3.1:8b")
	}

	slog.Info("Initializing Ollama generator", "base_url", baseURL, "model", model)
	return &OllamaGenerator{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
	}, nil
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
}

// Generate implements the Generator interface.
func (g *OllamaGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string,
	params GenerationParams) (string, error) {

	ctx, span := tracer.Start(ctx, "OllamaGenerator.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", g.model))

	options := map[string]any{
		"temperature": float32(0.2),
		"top_k":       20,
		"top_p":       float32(0.9),
		"num_predict": 4096,
	}
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	}
	if params.TopK != nil {
		options["top_k"] = *params.TopK
	}
	if params.TopP != nil {
		options["top_p"] = *params.TopP
	}
	if params.MaxTokens != nil {
		options["num_predict"] = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		options["stop"] = params.Stop
	}

	reqPayload := ollamaChatRequest{
		Model: g.model,
		Messages: []ollamaChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Stream:  false,
		Options: options,
	}

	payloadBytes, err := json.Marshal(reqPayload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "marshal failed")
		return "", fmt.Errorf("failed to marshal the Ollama request: %w", err)
	}

	url := g.baseURL + "/api/chat"
	slog.Debug("Sending request to Ollama", "url", url, "model", g.model)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url,
		bytes.NewBuffer(payloadBytes))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request creation failed")
		return "", fmt.Errorf("failed to create the Ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		slog.Error("Ollama request failed", "error", err)
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "response read failed")
		return "", fmt.Errorf("failed to read the Ollama response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		span.SetStatus(codes.Error, fmt.Sprintf("status %d", resp.StatusCode))
		slog.Error("Ollama returned an error status",
			"status", resp.StatusCode, "body", compactBody(bodyBytes))

		// A missing model is operator error, not backend trouble.
		// Retrying cannot pull the model.
		if resp.StatusCode == http.StatusNotFound &&
			strings.Contains(string(bodyBytes), "not found") {
			return "", fmt.Errorf("model '%s' not found. Please run: 'ollama pull %s'",
				g.model, g.model)
		}
		return "", statusError("Ollama", resp.StatusCode, bodyBytes)
	}

	var chatResp ollamaChatResponse
	if err := json.Unmarshal(bodyBytes, &chatResp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unmarshal failed")
		return "", fmt.Errorf("failed to unmarshal the Ollama response: %w", err)
	}

	if chatResp.Message.Role != "assistant" {
		slog.Warn("Ollama returned a non-assistant message", "role", chatResp.Message.Role)
	}

	slog.Debug("Received response from Ollama", "bytes", len(chatResp.Message.Content))
	return chatResp.Message.Content, nil
}
