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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/AleutianScribe/services/pipeline/resilience"
)

// openAIKeySecretPath is where container secret mounts place the key.
var openAIKeySecretPath = "/run/secrets/openai_api_key"

// OpenAIGenerator rewrites documents through the OpenAI chat API.
//
// The API key lives in a memguard enclave: encrypted at rest, decrypted
// into locked memory only for the duration of a call. On systems whose
// mlock limit cannot hold the enclave, SCRIBE_INSECURE_MEMORY=true
// accepts plain-memory key storage instead.
type OpenAIGenerator struct {
	enclave     *memguard.Enclave
	insecureKey string
	model       string
	baseURL     string
}

// NewOpenAIGenerator builds a generator from the environment.
//
// The key comes from OPENAI_API_KEY, falling back to the container
// secret mount. OPENAI_MODEL defaults to gpt-4o-mini. OPENAI_BASE_URL
// overrides the API endpoint for proxies and tests.
func NewOpenAIGenerator() (*OpenAIGenerator, error) {
	key, err := loadOpenAIKey()
	if err != nil {
		return nil, err
	}

	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}

	g := &OpenAIGenerator{
		model:   model,
		baseURL: os.Getenv("OPENAI_BASE_URL"),
	}

	if ok, limitKB := MlockAvailable(); ok {
		// NewEnclave wipes the source slice.
		g.enclave = memguard.NewEnclave(key)
	} else if os.Getenv("SCRIBE_INSECURE_MEMORY") == "true" {
		slog.Warn("SECURITY: Storing the OpenAI key in plain memory - mlock limit insufficient",
			"current_limit_kb", limitKB,
			"required_kb", minMlockLimitKB,
		)
		g.insecureKey = string(key)
	} else {
		return nil, fmt.Errorf(
			"mlock limit insufficient for secure key storage: have %d KB, need %d KB. "+
				"Configure system limits or set SCRIBE_INSECURE_MEMORY=true",
			limitKB, minMlockLimitKB,
		)
	}

	slog.Info("Initializing OpenAI generator", "model", model)
	return g, nil
}

func loadOpenAIKey() ([]byte, error) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return []byte(key), nil
	}

	keyBytes, err := os.ReadFile(openAIKeySecretPath)
	if err == nil {
		slog.Info("Read the OpenAI API key from the secret mount")
		return []byte(strings.TrimSpace(string(keyBytes))), nil
	}

	slog.Error("OPENAI_API_KEY environment variable not set and secret not found",
		"path", openAIKeySecretPath)
	return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
}

// Generate implements the Generator interface.
func (g *OpenAIGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string,
	params GenerationParams) (string, error) {

	slog.Debug("Generating text via OpenAI", "model", g.model)
	return g.withKey(func(key string) (string, error) {
		config := openai.DefaultConfig(key)
		if g.baseURL != "" {
			config.BaseURL = g.baseURL
		}
		client := openai.NewClientWithConfig(config)

		req := openai.ChatCompletionRequest{
			Model: g.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userPrompt},
			},
		}
		if params.Temperature != nil {
			req.Temperature = *params.Temperature
		}
		if params.MaxTokens != nil {
			req.MaxCompletionTokens = *params.MaxTokens
		}
		if params.TopP != nil {
			req.TopP = *params.TopP
		}
		if len(params.Stop) > 0 {
			req.Stop = params.Stop
		}

		resp, err := client.CreateChatCompletion(ctx, req)
		if err != nil {
			slog.Error("OpenAI API call failed", "error", err)
			return "", classifyOpenAIError(err)
		}

		if len(resp.Choices) == 0 {
			slog.Warn("OpenAI returned no choices")
			return "", fmt.Errorf("OpenAI returned no choices")
		}
		slog.Debug("Received response from OpenAI",
			"finish_reason", resp.Choices[0].FinishReason)
		return resp.Choices[0].Message.Content, nil
	})
}

// withKey runs fn with the plaintext key. The enclave path keeps the
// decrypted key in locked memory only while fn executes.
func (g *OpenAIGenerator) withKey(fn func(key string) (string, error)) (string, error) {
	if g.enclave != nil {
		buf, err := g.enclave.Open()
		if err != nil {
			return "", fmt.Errorf("failed to open the API key enclave: %w", err)
		}
		defer buf.Destroy()
		return fn(buf.String())
	}
	return fn(g.insecureKey)
}

// classifyOpenAIError marks transient API failures as retryable.
// Transport timeouts satisfy net.Error and classify downstream.
func classifyOpenAIError(err error) error {
	wrapped := fmt.Errorf("OpenAI API call failed: %w", err)

	if transientStatus(openAIStatusCode(err)) {
		return resilience.MarkRetryable(wrapped)
	}
	return wrapped
}

// openAIStatusCode digs the HTTP status out of either error type the
// client library produces. RequestError covers non-standard error
// bodies that fail to parse as an APIError.
func openAIStatusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func transientStatus(status int) bool {
	return status == http.StatusTooManyRequests ||
		status >= http.StatusInternalServerError
}
