// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package synth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mesh-intelligence/storyforge/pkg/decompose"
	"github.com/mesh-intelligence/storyforge/pkg/language"
	"github.com/mesh-intelligence/storyforge/pkg/oracle"
	"github.com/mesh-intelligence/storyforge/pkg/render"
)

// clientFunc adapts a function to the oracle.Client interface so tests
// can vary behavior per call.
type clientFunc func(ctx context.Context, prompt string, maxTokens int) (string, error)

func (f clientFunc) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return f(ctx, prompt, maxTokens)
}

func testStory() decompose.Story {
	return decompose.Story{
		ID:     7,
		EpicID: 1,
		Title:  "As a driver, I want to report location, so that dispatchers see active vehicles",
		AcceptanceCriteria: []string{
			"Given a driver, performing 'report location' completes successfully",
			"'report location' is rejected with a clear error when its input is invalid",
		},
		Points: 5,
		Status: decompose.StatusBacklog,
	}
}

func newSynthesizer(t *testing.T, client oracle.Client, opts ...Option) *Synthesizer {
	t.Helper()
	return New(client, render.MustNew(), nil, opts...)
}

func TestSynthesizeAllTimeouts(t *testing.T) {
	stub := &oracle.StubClient{Err: oracle.ErrTimeout}
	s := newSynthesizer(t, stub)

	bundle, err := s.Synthesize(context.Background(), testStory(), language.Resolve("Python"))
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if len(bundle.Artifacts) != 4 {
		t.Fatalf("len(Artifacts) = %d, want 4", len(bundle.Artifacts))
	}
	if !bundle.Fallback() {
		t.Error("Fallback() = false, want true when every oracle call times out")
	}
	for _, a := range bundle.Artifacts {
		if a.GenerationMethod != MethodFallback {
			t.Errorf("%s: GenerationMethod = %q, want fallback", a.Kind, a.GenerationMethod)
		}
		if strings.TrimSpace(a.Content) == "" {
			t.Errorf("%s: empty content after fallback", a.Kind)
		}
	}
	for _, kind := range []render.Kind{render.KindService, render.KindRouter} {
		if name := bundle.Artifact(kind).Filename; !strings.HasSuffix(name, ".py") {
			t.Errorf("%s filename = %q, want .py suffix", kind, name)
		}
	}
	if name := bundle.Artifact(render.KindTests).Filename; !strings.HasSuffix(name, "_test.py") {
		t.Errorf("tests filename = %q, want _test.py suffix", name)
	}
}

func TestSynthesizeValidatedOracleOutput(t *testing.T) {
	reply := "class ReportLocationService:\n    def report_location(self):\n        return {\"ok\": True}\n"
	stub := &oracle.StubClient{Reply: reply}
	s := newSynthesizer(t, stub)

	bundle, err := s.Synthesize(context.Background(), testStory(), language.Resolve("Python"))
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	service := bundle.Artifact(render.KindService)
	if service.GenerationMethod != MethodOracle {
		t.Errorf("service GenerationMethod = %q, want oracle", service.GenerationMethod)
	}
	if service.Content != reply {
		t.Errorf("service content rewritten: %q", service.Content)
	}
	if got := len(stub.Prompts()); got != 4 {
		t.Errorf("oracle called %d times, want 4 (one per kind)", got)
	}
}

func TestSynthesizeRejectsForeignLanguage(t *testing.T) {
	stub := &oracle.StubClient{Reply: "function reportLocation() { return true; }"}
	s := newSynthesizer(t, stub)

	bundle, err := s.Synthesize(context.Background(), testStory(), language.Resolve("Python"))
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	service := bundle.Artifact(render.KindService)
	if service.GenerationMethod != MethodFallback {
		t.Errorf("service GenerationMethod = %q, want fallback for wrong-language output", service.GenerationMethod)
	}
}

// A failure on one kind must not invalidate another kind's validated
// output.
func TestSynthesizeKindsIndependent(t *testing.T) {
	client := clientFunc(func(_ context.Context, prompt string, _ int) (string, error) {
		if strings.Contains(prompt, "test module") {
			return "", oracle.ErrTimeout
		}
		return "class ReportLocationService:\n    def report_location(self):\n        return True\n", nil
	})
	s := newSynthesizer(t, client)

	bundle, err := s.Synthesize(context.Background(), testStory(), language.Resolve("Python"))
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if got := bundle.Artifact(render.KindService).GenerationMethod; got != MethodOracle {
		t.Errorf("service GenerationMethod = %q, want oracle", got)
	}
	if got := bundle.Artifact(render.KindTests).GenerationMethod; got != MethodFallback {
		t.Errorf("tests GenerationMethod = %q, want fallback", got)
	}
}

func TestSynthesizeCancelledContext(t *testing.T) {
	client := clientFunc(func(ctx context.Context, _ string, _ int) (string, error) {
		<-ctx.Done()
		return "", oracle.ErrTimeout
	})
	s := newSynthesizer(t, client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bundle, err := s.Synthesize(ctx, testStory(), language.Resolve("java"))
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if len(bundle.Artifacts) != 4 || !bundle.Fallback() {
		t.Error("cancelled synthesis must still yield a complete fallback bundle")
	}
}

func TestSynthesizeNamingConsistency(t *testing.T) {
	stub := &oracle.StubClient{Err: oracle.ErrTimeout}
	s := newSynthesizer(t, stub)

	for _, profile := range language.Profiles() {
		bundle, err := s.Synthesize(context.Background(), testStory(), profile)
		if err != nil {
			t.Fatalf("Synthesize(%s) error = %v", profile.Key, err)
		}
		want := render.StoryName(testStory(), profile)
		for _, a := range bundle.Artifacts {
			if !strings.HasPrefix(a.Filename, want+"_") {
				t.Errorf("%s/%s: filename %q does not share bundle name %q",
					profile.Key, a.Kind, a.Filename, want)
			}
		}
	}
}

func TestSynthesizeRouterEndpoints(t *testing.T) {
	stub := &oracle.StubClient{Err: oracle.ErrTimeout}
	s := newSynthesizer(t, stub)

	bundle, err := s.Synthesize(context.Background(), testStory(), language.DefaultProfile())
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	router := bundle.Artifact(render.KindRouter)
	want := []Endpoint{{
		Method:    "POST",
		Path:      "/api/location",
		Criterion: "Given a driver, performing 'report location' completes successfully",
	}}
	if diff := cmp.Diff(want, router.Endpoints); diff != "" {
		t.Errorf("router endpoints mismatch (-want +got):\n%s", diff)
	}
	if bundle.Artifact(render.KindService).Endpoints != nil {
		t.Error("service artifact carries endpoint metadata, want router only")
	}
}

func TestEndpoints(t *testing.T) {
	tests := []struct {
		name  string
		story decompose.Story
		want  []Endpoint
	}{
		{
			name: "verb mapping and dedup",
			story: decompose.Story{
				Title: "As a dispatcher, I want to view dashboard, so that fleet state is visible",
				AcceptanceCriteria: []string{
					"Given a dispatcher, performing 'view dashboard' completes successfully",
					"Given a dispatcher, performing 'view dashboard' completes successfully",
					"Given an admin, performing 'manage driver accounts' completes successfully",
				},
			},
			want: []Endpoint{
				{Method: "GET", Path: "/api/dashboard", Criterion: "Given a dispatcher, performing 'view dashboard' completes successfully"},
				{Method: "PUT", Path: "/api/driver-accounts", Criterion: "Given an admin, performing 'manage driver accounts' completes successfully"},
			},
		},
		{
			name: "title fallback when no criterion implies an action",
			story: decompose.Story{
				Title:              "As a user, I want to remove stale sessions, so that access stays controlled",
				AcceptanceCriteria: []string{"A session baseline exists"},
			},
			want: []Endpoint{
				{Method: "DELETE", Path: "/api/stale-sessions", Criterion: "As a user, I want to remove stale sessions, so that access stays controlled"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Endpoints(tt.story)); diff != "" {
				t.Errorf("Endpoints() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRevise(t *testing.T) {
	stub := &oracle.StubClient{Err: oracle.ErrTimeout}
	s := newSynthesizer(t, stub)
	bundle, err := s.Synthesize(context.Background(), testStory(), language.Resolve("Python"))
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	service := bundle.Artifact(render.KindService)
	original := service.Content

	// Oracle still failing: artifact unchanged, no error.
	ok, err := s.Revise(context.Background(), bundle, EditScope{Filename: service.Filename}, "add a docstring")
	if err != nil {
		t.Fatalf("Revise() error = %v", err)
	}
	if ok || service.Content != original {
		t.Error("failed revision must leave the artifact unchanged")
	}

	// Unknown filename is a caller defect.
	if _, err := s.Revise(context.Background(), bundle, EditScope{Filename: "nope.py"}, "x"); err == nil {
		t.Error("Revise() with unknown filename should fail")
	}

	// Working oracle: content replaced.
	revised := "class ReportLocationService:\n    \"\"\"Reports driver locations.\"\"\"\n\n    def report_location(self):\n        return True\n"
	s = newSynthesizer(t, &oracle.StubClient{Reply: revised})
	ok, err = s.Revise(context.Background(), bundle, EditScope{Filename: service.Filename, StartLine: 1, EndLine: 2}, "add a docstring")
	if err != nil {
		t.Fatalf("Revise() error = %v", err)
	}
	if !ok || service.Content != revised {
		t.Errorf("Revise() did not apply validated content")
	}
	if service.GenerationMethod != MethodOracle {
		t.Errorf("GenerationMethod = %q after revision, want oracle", service.GenerationMethod)
	}
}

func TestValidate(t *testing.T) {
	s := newSynthesizer(t, &oracle.StubClient{}, WithMaxArtifactBytes(100))
	python := language.Resolve("python")

	tests := []struct {
		name    string
		content string
		kind    render.Kind
		want    bool
	}{
		{"valid python", "def f():\n    return 1\n", render.KindService, true},
		{"empty", "   \n", render.KindService, false},
		{"oversized", strings.Repeat("x", 101), render.KindService, false},
		{"javascript idiom", "console.log('hi')", render.KindService, false},
		{"readme is prose", "Location reporting service.", render.KindReadme, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.validate(tt.content, python, tt.kind); got != tt.want {
				t.Errorf("validate(%q) = %v, want %v", tt.content, got, tt.want)
			}
		})
	}
}

func TestSynthesizeProviderErrorNeverPropagates(t *testing.T) {
	stub := &oracle.StubClient{Err: &oracle.ProviderError{Provider: "anthropic", Status: 500, Message: "boom"}}
	s := newSynthesizer(t, stub)

	bundle, err := s.Synthesize(context.Background(), testStory(), language.DefaultProfile())
	if err != nil {
		t.Fatalf("Synthesize() error = %v, provider failures must resolve via fallback", err)
	}
	if !bundle.Fallback() {
		t.Error("Fallback() = false, want true")
	}
	if errors.Is(err, oracle.ErrTimeout) {
		t.Error("unexpected timeout classification")
	}
}
