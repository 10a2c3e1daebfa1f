// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package oracle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAnthropicComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("x-api-key = %q, want %q", r.Header.Get("x-api-key"), "test-key")
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("anthropic-version header missing")
		}
		w.Write([]byte(`{"content":[{"type":"text","text":"class FleetService {}"}]}`))
	}))
	defer server.Close()

	client := NewAnthropicClient("test-key", nil, WithEndpoint(server.URL))
	got, err := client.Complete(context.Background(), "generate a service", 1024)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "class FleetService {}" {
		t.Errorf("Complete() = %q, want %q", got, "class FleetService {}")
	}
}

func TestAnthropicCompleteStripsFences(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[{"type":"text","text":"` + "```javascript\\nconst x = 1;\\n```" + `"}]}`))
	}))
	defer server.Close()

	client := NewAnthropicClient("test-key", nil, WithEndpoint(server.URL))
	got, err := client.Complete(context.Background(), "p", 64)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "const x = 1;" {
		t.Errorf("Complete() = %q, want fenced content unwrapped", got)
	}
}

func TestAnthropicCompleteNonOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer server.Close()

	client := NewAnthropicClient("test-key", nil, WithEndpoint(server.URL))
	_, err := client.Complete(context.Background(), "p", 64)
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("Complete() error = %v, want *ProviderError", err)
	}
	if perr.Status != http.StatusTooManyRequests {
		t.Errorf("Status = %d, want %d", perr.Status, http.StatusTooManyRequests)
	}
	if IsTimeout(err) {
		t.Error("IsTimeout() = true for provider error")
	}
}

func TestAnthropicCompleteEmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[]}`))
	}))
	defer server.Close()

	client := NewAnthropicClient("test-key", nil, WithEndpoint(server.URL))
	_, err := client.Complete(context.Background(), "p", 64)
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("Complete() error = %v, want *ProviderError", err)
	}
}

func TestAnthropicCompleteTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"content":[{"type":"text","text":"late"}]}`))
	}))
	defer server.Close()

	client := NewAnthropicClient("test-key", nil, WithEndpoint(server.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.Complete(ctx, "p", 64)
	if !IsTimeout(err) {
		t.Fatalf("Complete() error = %v, want timeout", err)
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "const x = 1;", "const x = 1;"},
		{"fenced with language", "```python\ndef f():\n    pass\n```", "def f():\n    pass"},
		{"fenced bare", "```\ntext\n```", "text"},
		{"leading whitespace", "\n\n```js\nx\n```\n", "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripFences(tt.in); got != tt.want {
				t.Errorf("stripFences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestStubClientRecordsPrompts(t *testing.T) {
	stub := &StubClient{Reply: "ok"}
	got, err := stub.Complete(context.Background(), "first", 10)
	if err != nil || got != "ok" {
		t.Fatalf("Complete() = %q, %v", got, err)
	}
	stub.Complete(context.Background(), "second", 10)
	prompts := stub.Prompts()
	if len(prompts) != 2 || prompts[0] != "first" || prompts[1] != "second" {
		t.Errorf("Prompts() = %v, want [first second]", prompts)
	}
}
