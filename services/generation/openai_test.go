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
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/AleutianScribe/services/pipeline/resilience"
)

// newTestOpenAIGenerator bypasses the environment and the key enclave
// so tests can point at a mock server directly.
func newTestOpenAIGenerator(key, model, baseURL string) *OpenAIGenerator {
	return &OpenAIGenerator{
		insecureKey: key,
		model:       model,
		baseURL:     baseURL,
	}
}

const chatCompletionOK = `{"choices":[{"message":{"role":"assistant","content":"rewritten text"},"finish_reason":"stop"}]}`

func TestOpenAIGenerator_Generate(t *testing.T) {
	var gotAuth string
	var gotReq openai.ChatCompletionRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chatCompletionOK))
	}))
	defer server.Close()

	g := newTestOpenAIGenerator("test-key", "gpt-4o-mini", server.URL+"/v1")

	got, err := g.Generate(context.Background(), "you rewrite documents", "rewrite this",
		GenerationParams{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got != "rewritten text" {
		t.Errorf("content = %q, want %q", got, "rewritten text")
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer test-key")
	}
	if gotReq.Model != "gpt-4o-mini" {
		t.Errorf("model = %q, want gpt-4o-mini", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 ||
		gotReq.Messages[0].Role != openai.ChatMessageRoleSystem ||
		gotReq.Messages[1].Role != openai.ChatMessageRoleUser {
		t.Errorf("unexpected messages: %+v", gotReq.Messages)
	}
}

func TestOpenAIGenerator_ForwardsParams(t *testing.T) {
	var gotReq openai.ChatCompletionRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chatCompletionOK))
	}))
	defer server.Close()

	g := newTestOpenAIGenerator("test-key", "gpt-4o-mini", server.URL+"/v1")

	params := GenerationParams{
		Temperature: float32Ptr(0.7),
		TopP:        float32Ptr(0.95),
		MaxTokens:   intPtr(512),
		Stop:        []string{"END"},
	}
	if _, err := g.Generate(context.Background(), "sys", "user", params); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if gotReq.Temperature != 0.7 {
		t.Errorf("temperature = %v, want 0.7", gotReq.Temperature)
	}
	if gotReq.TopP != 0.95 {
		t.Errorf("top_p = %v, want 0.95", gotReq.TopP)
	}
	if gotReq.MaxCompletionTokens != 512 {
		t.Errorf("max_completion_tokens = %d, want 512", gotReq.MaxCompletionTokens)
	}
	if len(gotReq.Stop) != 1 || gotReq.Stop[0] != "END" {
		t.Errorf("stop = %v, want [END]", gotReq.Stop)
	}
}

func TestOpenAIGenerator_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	g := newTestOpenAIGenerator("test-key", "gpt-4o-mini", server.URL+"/v1")

	_, err := g.Generate(context.Background(), "sys", "user", GenerationParams{})
	if err == nil || !strings.Contains(err.Error(), "no choices") {
		t.Errorf("expected a no-choices error, got %v", err)
	}
}

func TestOpenAIGenerator_RateLimitIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
	}))
	defer server.Close()

	g := newTestOpenAIGenerator("test-key", "gpt-4o-mini", server.URL+"/v1")

	_, err := g.Generate(context.Background(), "sys", "user", GenerationParams{})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !resilience.IsRetryable(err) {
		t.Errorf("a 429 must classify as retryable, got %v", err)
	}
}

func TestClassifyOpenAIError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{
			name:      "api error 429",
			err:       &openai.APIError{HTTPStatusCode: 429, Message: "rate limited"},
			retryable: true,
		},
		{
			name:      "api error 500",
			err:       &openai.APIError{HTTPStatusCode: 500, Message: "server error"},
			retryable: true,
		},
		{
			name:      "api error 401",
			err:       &openai.APIError{HTTPStatusCode: 401, Message: "bad key"},
			retryable: false,
		},
		{
			name:      "request error 503",
			err:       &openai.RequestError{HTTPStatusCode: 503, Err: errors.New("bad gateway")},
			retryable: true,
		},
		{
			name:      "plain error",
			err:       errors.New("something else"),
			retryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := classifyOpenAIError(tt.err)
			if !strings.Contains(classified.Error(), "OpenAI API call failed") {
				t.Errorf("missing wrap prefix: %v", classified)
			}
			if got := resilience.IsRetryable(classified); got != tt.retryable {
				t.Errorf("retryable = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestNewOpenAIGenerator_MissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	oldPath := openAIKeySecretPath
	openAIKeySecretPath = filepath.Join(t.TempDir(), "missing")
	defer func() { openAIKeySecretPath = oldPath }()

	if _, err := NewOpenAIGenerator(); err == nil {
		t.Error("expected an error when no key source exists")
	}
}

func TestNewOpenAIGenerator_SecretMountFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")
	t.Setenv("SCRIBE_INSECURE_MEMORY", "true")

	secretFile := filepath.Join(t.TempDir(), "openai_api_key")
	if err := os.WriteFile(secretFile, []byte("mounted-key\n"), 0600); err != nil {
		t.Fatalf("failed to write the secret file: %v", err)
	}

	oldPath := openAIKeySecretPath
	openAIKeySecretPath = secretFile
	defer func() { openAIKeySecretPath = oldPath }()

	g, err := NewOpenAIGenerator()
	if err != nil {
		t.Fatalf("NewOpenAIGenerator failed: %v", err)
	}

	// The enclave-backed string dies with the buffer, so the closure
	// must copy it out.
	got, err := g.withKey(func(key string) (string, error) {
		return strings.Clone(key), nil
	})
	if err != nil {
		t.Fatalf("withKey failed: %v", err)
	}
	if got != "mounted-key" {
		t.Errorf("key = %q, want %q (trimmed)", got, "mounted-key")
	}
}
