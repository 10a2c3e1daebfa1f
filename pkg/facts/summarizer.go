// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package facts

import (
	"context"
	"strings"
	"sync"
)

// Summarizer condenses a long fact phrase into a shorter one. The
// extractor only ever uses it for phrasing, never for deciding whether
// a fact exists.
type Summarizer interface {
	Summarize(text string) (string, error)
}

// Completer is the narrow slice of the generation oracle a summarizer
// needs. Declared here so this package does not depend on any concrete
// oracle implementation.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// CachedSummarizer wraps a Completer with a content-keyed cache so that
// repeated extraction runs over the same corpus produce identical
// facts. The cache can be pre-seeded for tests.
type CachedSummarizer struct {
	completer Completer
	maxTokens int

	mu    sync.Mutex
	cache map[string]string
}

// NewCachedSummarizer builds a summarizer over the given completer.
func NewCachedSummarizer(c Completer) *CachedSummarizer {
	return &CachedSummarizer{completer: c, maxTokens: 64, cache: make(map[string]string)}
}

// Seed pre-populates the cache, fixing the summary for a given input.
func (s *CachedSummarizer) Seed(text, summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[text] = summary
}

// Summarize returns the cached summary when present, otherwise asks the
// completer once and caches the result. A failed completion returns the
// error; the caller falls back to truncation.
func (s *CachedSummarizer) Summarize(text string) (string, error) {
	s.mu.Lock()
	if cached, ok := s.cache[text]; ok {
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	prompt := "Condense the following requirement phrase to at most ten words, preserving its meaning. " +
		"Reply with the condensed phrase only.\n\n" + text
	out, err := s.completer.Complete(context.Background(), prompt, s.maxTokens)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)

	s.mu.Lock()
	s.cache[text] = out
	s.mu.Unlock()
	return out, nil
}
