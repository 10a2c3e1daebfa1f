// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package facts extracts structured requirement facts from a free-form
// requirements corpus. Extraction is strictly evidence-based: every
// fact carries a reference to the source span it came from, and a
// category with no detectable instance stays empty rather than being
// backfilled with assumptions.
package facts

import "fmt"

// Corpus is the raw requirements input: an ordered collection of opaque
// text blocks. It is never mutated.
type Corpus struct {
	Blocks []string
}

// NewCorpus wraps one or more text blocks into a Corpus.
func NewCorpus(blocks ...string) Corpus {
	return Corpus{Blocks: blocks}
}

// Len returns the total byte length across all blocks.
func (c Corpus) Len() int {
	n := 0
	for _, b := range c.Blocks {
		n += len(b)
	}
	return n
}

// SourceRef points at the span of corpus text a fact was extracted
// from. Block indexes into Corpus.Blocks; Start and End are byte
// offsets within that block.
type SourceRef struct {
	Block int `json:"block"`
	Start int `json:"start"`
	End   int `json:"end"`
}

// Fact is a single extracted requirement fact. Text is a short
// normalized phrase; Source is the span it was derived from. A Fact
// without a Source must never be constructed.
type Fact struct {
	Text   string    `json:"text"`
	Source SourceRef `json:"source"`
}

// RequirementFacts is the structured extraction result: six ordered
// fact lists. Created once per decomposition run and immutable after
// creation.
type RequirementFacts struct {
	Entities               []Fact `json:"entities"`
	Workflows              []Fact `json:"workflows"`
	Roles                  []Fact `json:"roles"`
	Integrations           []Fact `json:"integrations"`
	PerformanceConstraints []Fact `json:"performanceConstraints"`
	DeploymentConstraints  []Fact `json:"deploymentConstraints"`

	// TaxonomyVersion records which taxonomy table the extraction ran
	// against, for reproducibility.
	TaxonomyVersion string `json:"taxonomyVersion"`
}

// listNames enumerates the fact lists in their canonical order, using
// the names match rules refer to.
var listNames = []string{
	"entities", "workflows", "roles", "integrations",
	"performanceConstraints", "deploymentConstraints",
}

// List returns the named fact list. Unknown names return nil; match
// rules are validated against listNames before evaluation.
func (f *RequirementFacts) List(name string) []Fact {
	switch name {
	case "entities":
		return f.Entities
	case "workflows":
		return f.Workflows
	case "roles":
		return f.Roles
	case "integrations":
		return f.Integrations
	case "performanceConstraints":
		return f.PerformanceConstraints
	case "deploymentConstraints":
		return f.DeploymentConstraints
	}
	return nil
}

// NonEmptyLists counts how many of the six fact lists hold at least one
// fact. The decomposer uses this to detect trivially small inputs.
func (f *RequirementFacts) NonEmptyLists() int {
	n := 0
	for _, name := range listNames {
		if len(f.List(name)) > 0 {
			n++
		}
	}
	return n
}

// InsufficientInputError signals that the corpus is empty or below the
// minimum length threshold and no extraction was attempted.
type InsufficientInputError struct {
	Length int
	Min    int
}

func (e *InsufficientInputError) Error() string {
	return fmt.Sprintf("corpus too small to extract requirements: %d chars, minimum %d", e.Length, e.Min)
}
