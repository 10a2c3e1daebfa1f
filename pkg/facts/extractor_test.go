// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package facts

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mesh-intelligence/storyforge/pkg/taxonomy"
)

func TestCorpusLen(t *testing.T) {
	corpus := NewCorpus("  ab  ", "cd\n")
	if got := corpus.Len(); got != 9 {
		t.Errorf("Len() = %d, want 9 (raw byte length, whitespace included)", got)
	}
}

const fleetCorpus = "Drivers use a mobile app to report location every 30 seconds. " +
	"Dispatchers view a dashboard of all active vehicles. " +
	"Admins manage driver accounts."

func newTestExtractor(t *testing.T, opts ...Option) *Extractor {
	t.Helper()
	return NewExtractor(taxonomy.Default(), nil, opts...)
}

func factTexts(list []Fact) []string {
	out := make([]string, len(list))
	for i, f := range list {
		out[i] = f.Text
	}
	return out
}

func TestExtract_FleetScenario(t *testing.T) {
	got, err := newTestExtractor(t).Extract(NewCorpus(fleetCorpus))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if diff := cmp.Diff([]string{"driver", "dispatcher", "admin"}, factTexts(got.Roles)); diff != "" {
		t.Errorf("roles mismatch (-want +got):\n%s", diff)
	}
	wantWorkflows := []string{"report location", "view dashboard", "manage driver accounts"}
	if diff := cmp.Diff(wantWorkflows, factTexts(got.Workflows)); diff != "" {
		t.Errorf("workflows mismatch (-want +got):\n%s", diff)
	}
	for _, want := range []string{"location", "dashboard", "account"} {
		found := false
		for _, e := range got.Entities {
			if e.Text == want {
				found = true
			}
		}
		if !found {
			t.Errorf("entities missing %q: %v", want, factTexts(got.Entities))
		}
	}
	if len(got.PerformanceConstraints) == 0 ||
		!strings.Contains(got.PerformanceConstraints[0].Text, "30 seconds") {
		t.Errorf("expected a 30-seconds performance constraint, got %v",
			factTexts(got.PerformanceConstraints))
	}
	if len(got.Integrations) != 0 {
		t.Errorf("no integrations in corpus, got %v", factTexts(got.Integrations))
	}
}

func TestExtract_EveryFactHasSourceSpan(t *testing.T) {
	got, err := newTestExtractor(t).Extract(NewCorpus(fleetCorpus))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for _, name := range listNames {
		for _, f := range got.List(name) {
			if f.Source.End <= f.Source.Start {
				t.Errorf("%s fact %q has empty span %+v", name, f.Text, f.Source)
				continue
			}
			span := fleetCorpus[f.Source.Start:f.Source.End]
			if !strings.Contains(strings.ToLower(span), strings.ToLower(strings.Fields(f.Text)[0])) &&
				!strings.Contains(strings.ToLower(fleetCorpus), strings.ToLower(f.Text)) {
				t.Errorf("%s fact %q not traceable to span %q", name, f.Text, span)
			}
		}
	}
}

func TestExtract_Deterministic(t *testing.T) {
	e := newTestExtractor(t)
	first, err := e.Extract(NewCorpus(fleetCorpus))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	second, err := e.Extract(NewCorpus(fleetCorpus))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated extraction differs (-first +second):\n%s", diff)
	}
}

func TestExtract_InsufficientInput(t *testing.T) {
	for _, corpus := range []Corpus{NewCorpus(), NewCorpus(""), NewCorpus("too short")} {
		got, err := newTestExtractor(t).Extract(corpus)
		var insufficient *InsufficientInputError
		if !errors.As(err, &insufficient) {
			t.Fatalf("expected InsufficientInputError for %q, got %v", corpus.Blocks, err)
		}
		if got.NonEmptyLists() != 0 {
			t.Errorf("facts should be empty on insufficient input, got %+v", got)
		}
	}
}

func TestExtract_NoBackfillOnSilentCorpus(t *testing.T) {
	corpus := NewCorpus("The quarterly budget narrative describes headcount expectations for the organisation.")
	got, err := newTestExtractor(t).Extract(corpus)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if n := len(got.Workflows); n != 0 {
		t.Errorf("no action verbs present, yet %d workflows extracted: %v", n, factTexts(got.Workflows))
	}
	if n := len(got.Integrations); n != 0 {
		t.Errorf("no integrations present, yet got %v", factTexts(got.Integrations))
	}
}

func TestExtract_IntegrationAndDeployment(t *testing.T) {
	corpus := NewCorpus("Orders sync to Stripe for payment. The service must deploy to Kubernetes in the cloud.")
	got, err := newTestExtractor(t).Extract(corpus)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got.Integrations) == 0 {
		t.Error("expected a Stripe integration fact")
	}
	if len(got.DeploymentConstraints) == 0 {
		t.Error("expected a Kubernetes deployment fact")
	}
}

// Constraint spans must index the original block text even when the
// corpus contains runes whose lowercase form has a different byte
// length.
func TestExtract_NonASCIISourceSpans(t *testing.T) {
	// U+023A lowercases to U+2C65, growing from two bytes to three.
	block := strings.Repeat("Ⱥ", 40) + " Latency must stay low."
	corpus := NewCorpus(block)

	got, err := newTestExtractor(t).Extract(corpus)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got.PerformanceConstraints) == 0 {
		t.Fatal("expected a latency performance fact")
	}
	for _, f := range got.PerformanceConstraints {
		if f.Source.Start < 0 || f.Source.End > len(block) || f.Source.Start >= f.Source.End {
			t.Fatalf("span %d:%d out of range for block of %d bytes", f.Source.Start, f.Source.End, len(block))
		}
		if span := block[f.Source.Start:f.Source.End]; !strings.EqualFold(span, f.Text) {
			t.Errorf("span %q does not materialize fact %q", span, f.Text)
		}
	}
}

func TestExtract_AsARolePattern(t *testing.T) {
	corpus := NewCorpus("As a librarian, I want to archive old catalogue entries so that shelves stay current.")
	got, err := newTestExtractor(t).Extract(corpus)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	found := false
	for _, r := range got.Roles {
		if r.Text == "librarian" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected librarian role from 'as a' pattern, got %v", factTexts(got.Roles))
	}
}

// fixedCompleter returns a canned completion, or an error when Fail is set.
type fixedCompleter struct {
	reply string
	fail  bool
	calls int
}

func (f *fixedCompleter) Complete(_ context.Context, _ string, _ int) (string, error) {
	f.calls++
	if f.fail {
		return "", errors.New("provider unavailable")
	}
	return f.reply, nil
}

func TestCachedSummarizer_CachesAndSeeds(t *testing.T) {
	c := &fixedCompleter{reply: "condensed phrase"}
	s := NewCachedSummarizer(c)

	got, err := s.Summarize("a very long phrase")
	if err != nil || got != "condensed phrase" {
		t.Fatalf("Summarize = %q, %v", got, err)
	}
	if _, err := s.Summarize("a very long phrase"); err != nil {
		t.Fatal(err)
	}
	if c.calls != 1 {
		t.Errorf("expected 1 completer call, got %d", c.calls)
	}

	s.Seed("seeded input", "seeded output")
	got, err = s.Summarize("seeded input")
	if err != nil || got != "seeded output" {
		t.Errorf("seeded Summarize = %q, %v", got, err)
	}
	if c.calls != 1 {
		t.Errorf("seeded entry should not call completer, calls=%d", c.calls)
	}
}

func TestExtract_LongFactTruncatedWithoutSummarizer(t *testing.T) {
	long := "Operators monitor " + strings.Repeat("extremely-detailed-telemetry ", 10) + "feeds."
	got, err := newTestExtractor(t).Extract(NewCorpus(long))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for _, f := range got.Workflows {
		if len(f.Text) > maxFactChars {
			t.Errorf("fact text exceeds cap: %d chars", len(f.Text))
		}
	}
}
