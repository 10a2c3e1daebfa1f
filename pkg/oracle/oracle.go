// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package oracle defines the narrow interface to the text-completion
// service used for generation tasks, plus its concrete clients. The
// oracle is untrusted and non-deterministic: callers must treat any
// failure as recoverable and fall back to deterministic rendering.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Client is the generation oracle. Complete returns the raw completion
// text for a prompt, bounded by maxTokens. Implementations must honor
// context cancellation and deadlines.
type Client interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// ErrTimeout marks a completion that exceeded its deadline.
var ErrTimeout = errors.New("oracle: completion timed out")

// ProviderError wraps any non-timeout failure from a provider:
// transport errors, non-2xx statuses, malformed responses.
type ProviderError struct {
	Provider string
	Status   int
	Message  string
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("oracle: %s returned status %d: %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("oracle: %s: %s", e.Provider, e.Message)
}

// IsTimeout reports whether err represents a completion deadline being
// exceeded, either via ErrTimeout or context.DeadlineExceeded.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// Disabled is a Client for running without any configured provider.
// Every completion reports a provider failure, so callers resolve all
// generation through their deterministic fallback.
type Disabled struct{}

// Complete implements Client.
func (Disabled) Complete(context.Context, string, int) (string, error) {
	return "", &ProviderError{Provider: "none", Message: "oracle disabled"}
}

// StubClient is a deterministic Client for tests: it returns Reply, or
// Err when set. Prompts are recorded for assertions. Safe for
// concurrent use, since synthesis fans out across artifact kinds.
type StubClient struct {
	Reply string
	Err   error

	mu      sync.Mutex
	prompts []string
}

// Complete implements Client.
func (s *StubClient) Complete(_ context.Context, prompt string, _ int) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	return s.Reply, nil
}

// Prompts returns a copy of the prompts seen so far.
func (s *StubClient) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}
