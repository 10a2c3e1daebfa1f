// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	anthropicEndpoint = "https://api.anthropic.com/v1/messages"
	anthropicVersion  = "2023-06-01"
	defaultModel      = "claude-sonnet-4-20250514"
)

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	apiKey   string
	model    string
	endpoint string
	http     *http.Client
	log      *zap.Logger
}

// AnthropicOption configures an AnthropicClient.
type AnthropicOption func(*AnthropicClient)

// WithModel overrides the default model.
func WithModel(model string) AnthropicOption {
	return func(c *AnthropicClient) { c.model = model }
}

// WithEndpoint overrides the API endpoint. Used by tests.
func WithEndpoint(url string) AnthropicOption {
	return func(c *AnthropicClient) { c.endpoint = url }
}

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(h *http.Client) AnthropicOption {
	return func(c *AnthropicClient) { c.http = h }
}

// NewAnthropicClient builds a client. The API key is required; callers
// enforce that at configuration load time.
func NewAnthropicClient(apiKey string, log *zap.Logger, opts ...AnthropicOption) *AnthropicClient {
	if log == nil {
		log = zap.NewNop()
	}
	c := &AnthropicClient{
		apiKey:   apiKey,
		model:    defaultModel,
		endpoint: anthropicEndpoint,
		http:     &http.Client{},
		log:      log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// Complete implements Client. The caller's context bounds the request;
// a deadline exceeded maps to ErrTimeout so the synthesizer can treat
// it uniformly.
func (c *AnthropicClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			c.log.Warn("anthropic completion timed out", zap.Duration("after", time.Since(start)))
			return "", ErrTimeout
		}
		return "", &ProviderError{Provider: "anthropic", Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &ProviderError{Provider: "anthropic", Status: resp.StatusCode, Message: string(payload)}
	}

	var parsed anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &ProviderError{Provider: "anthropic", Message: "malformed response: " + err.Error()}
	}
	if len(parsed.Content) == 0 {
		return "", &ProviderError{Provider: "anthropic", Message: "empty response"}
	}

	text := stripFences(parsed.Content[0].Text)
	c.log.Debug("anthropic completion",
		zap.Int("promptChars", len(prompt)),
		zap.Int("replyChars", len(text)),
		zap.Duration("elapsed", time.Since(start)))
	return text, nil
}

// stripFences removes a wrapping markdown code fence when the model
// ignores the plain-output instruction.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	if idx := strings.Index(text, "\n"); idx >= 0 {
		text = text[idx+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
