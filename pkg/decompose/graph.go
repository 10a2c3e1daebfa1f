// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package decompose turns extracted requirement facts into a
// dependency-aware graph of epics and stories. Category matching is
// deterministic rule evaluation over facts; no generation oracle is
// consulted for structural decisions.
package decompose

import (
	"fmt"
	"sort"

	"github.com/mesh-intelligence/storyforge/pkg/facts"
)

// Priority is the epic priority scale.
type Priority string

const (
	PriorityCritical Priority = "Critical"
	PriorityHigh     Priority = "High"
	PriorityMedium   Priority = "Medium"
	PriorityLow      Priority = "Low"
)

// Status is the story lifecycle state. Lifecycle transitions are owned
// by the surrounding application, not this package.
type Status string

const (
	StatusBacklog    Status = "backlog"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
)

// Mode selects how a decomposition run treats an existing graph. The
// two modes are mutually exclusive per invocation.
type Mode int

const (
	// FullReplace discards any prior graph and assigns ids from 1.
	FullReplace Mode = iota
	// IncrementalAppend keeps the existing graph unchanged and appends
	// epics for categories not yet represented, continuing ids from the
	// existing maximum.
	IncrementalAppend
)

func (m Mode) String() string {
	if m == IncrementalAppend {
		return "incremental-append"
	}
	return "full-replace"
}

// Epic is a coarse-grained unit of capability tied to one taxonomy
// category. Derived epics are directly evidenced by facts; suggested
// epics (Derived == false) carry a SuggestionReason citing the specific
// gap that motivated them.
type Epic struct {
	ID                        int          `json:"id"`
	Title                     string       `json:"title"`
	Description               string       `json:"description"`
	Category                  string       `json:"category"`
	FunctionalRequirements    []facts.Fact `json:"functionalRequirements"`
	NonFunctionalRequirements []facts.Fact `json:"nonFunctionalRequirements"`
	DependsOn                 []int        `json:"dependsOn"`
	Blockers                  string       `json:"blockers,omitempty"`
	Derived                   bool         `json:"derived"`
	SuggestionReason          string       `json:"suggestionReason,omitempty"`
	Priority                  Priority     `json:"priority"`
}

// Story is a single user-facing capability within an epic. Title always
// follows the "As a <role>, I want <capability>, so that <benefit>"
// form with every clause traceable to facts or to the parent epic.
type Story struct {
	ID                 int      `json:"id"`
	EpicID             int      `json:"epicId"`
	Title              string   `json:"title"`
	AcceptanceCriteria []string `json:"acceptanceCriteria"`
	DependsOn          []int    `json:"dependsOn"`
	Points             int      `json:"points"`
	Status             Status   `json:"status"`
}

// EpicGraph is the complete decomposition output for one run.
type EpicGraph struct {
	RunID           string  `json:"runId"`
	TaxonomyVersion string  `json:"taxonomyVersion"`
	Epics           []Epic  `json:"epics"`
	Stories         []Story `json:"stories"`
}

// MaxEpicID returns the highest epic id in the graph, 0 when empty.
func (g *EpicGraph) MaxEpicID() int {
	max := 0
	for _, e := range g.Epics {
		if e.ID > max {
			max = e.ID
		}
	}
	return max
}

// MaxStoryID returns the highest story id in the graph, 0 when empty.
func (g *EpicGraph) MaxStoryID() int {
	max := 0
	for _, s := range g.Stories {
		if s.ID > max {
			max = s.ID
		}
	}
	return max
}

// EpicByCategory returns the epic for the given category id, or nil.
func (g *EpicGraph) EpicByCategory(category string) *Epic {
	for i := range g.Epics {
		if g.Epics[i].Category == category {
			return &g.Epics[i]
		}
	}
	return nil
}

// StoriesForEpic returns the stories belonging to the given epic.
func (g *EpicGraph) StoriesForEpic(epicID int) []Story {
	var out []Story
	for _, s := range g.Stories {
		if s.EpicID == epicID {
			out = append(out, s)
		}
	}
	return out
}

// CycleDetectedError reports a dependency cycle found during
// validation. It is resolved internally by dropping the
// later-discovered edge and never surfaces to callers.
type CycleDetectedError struct {
	Kind string // "epic" or "story"
	From int
	To   int
}

func (e *CycleDetectedError) Error() string {
	return fmt.Sprintf("%s dependency cycle through edge %d -> %d", e.Kind, e.From, e.To)
}

// breakCycles enforces acyclicity over an id -> depends-on adjacency
// map. Edges are examined in deterministic order (ascending source id,
// then the recorded edge order); any edge that closes a cycle is
// dropped and reported. The returned map is acyclic.
func breakCycles(edges map[int][]int) (map[int][]int, []*CycleDetectedError, error) {
	kept := make(map[int][]int, len(edges))
	var dropped []*CycleDetectedError

	ids := make([]int, 0, len(edges))
	for id := range edges {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, from := range ids {
		for _, to := range edges[from] {
			kept[from] = append(kept[from], to)
			if reaches(kept, to, from) {
				// Keeping this edge closes a cycle: drop it.
				kept[from] = kept[from][:len(kept[from])-1]
				dropped = append(dropped, &CycleDetectedError{From: from, To: to})
			}
		}
	}
	return kept, dropped, nil
}

// reaches reports whether target is reachable from start in the
// adjacency map.
func reaches(edges map[int][]int, start, target int) bool {
	if start == target {
		return true
	}
	seen := map[int]bool{start: true}
	stack := []int{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range edges[cur] {
			if next == target {
				return true
			}
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}
