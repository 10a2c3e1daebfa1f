// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package decompose

import (
	"fmt"
	"strings"

	"github.com/mesh-intelligence/storyforge/pkg/facts"
)

// deriveStories produces the stories for freshly created epics: one
// story per distinct workflow fact for derived epics, one foundational
// story for suggested epics. Story ids continue from *nextID.
func (d *Decomposer) deriveStories(epics []Epic, f *facts.RequirementFacts, categoryEpic map[string]int, nextID *int) []Story {
	var stories []Story
	firstStory := map[int]int{} // epic id -> its first story id

	for _, epic := range epics {
		var epicStories []Story
		if epic.Derived {
			epicStories = d.derivedStories(epic, f, nextID)
		} else {
			epicStories = []Story{d.foundationalStory(epic, nextID)}
		}
		if len(epicStories) > 0 {
			firstStory[epic.ID] = epicStories[0].ID
		}
		stories = append(stories, epicStories...)
	}

	// Wire cross-epic story dependencies after all stories exist: a
	// story inherits a dependency on the first story of each epic its
	// parent epic depends on. Mirroring the (acyclic) epic edges keeps
	// the story relation acyclic too.
	epicDeps := map[int][]int{}
	for _, e := range epics {
		epicDeps[e.ID] = e.DependsOn
	}
	for i := range stories {
		for _, depEpic := range epicDeps[stories[i].EpicID] {
			if sid, ok := firstStory[depEpic]; ok && sid != stories[i].ID {
				stories[i].DependsOn = append(stories[i].DependsOn, sid)
			}
		}
	}
	for i := range stories {
		stories[i].Points = scorePoints(len(stories[i].AcceptanceCriteria), len(stories[i].DependsOn))
	}
	return stories
}

// derivedStories emits one story per workflow fact among the epic's
// functional requirements. Non-workflow functional requirements (e.g.
// entity or integration facts) contribute acceptance criteria rather
// than stories of their own.
func (d *Decomposer) derivedStories(epic Epic, f *facts.RequirementFacts, nextID *int) []Story {
	var out []Story
	for _, req := range epic.FunctionalRequirements {
		if !isWorkflowFact(req, f) {
			continue
		}
		role := roleForSpan(req.Source, f)
		story := Story{
			ID:     *nextID,
			EpicID: epic.ID,
			Title: fmt.Sprintf("As a %s, I want to %s, so that %s is supported end to end",
				role, req.Text, strings.ToLower(epic.Title)),
			AcceptanceCriteria: d.criteriaForWorkflow(epic, req, role, f),
			Status:             StatusBacklog,
		}
		*nextID++
		out = append(out, story)
	}
	if len(out) == 0 {
		// Derived epics matched on non-workflow evidence still get one
		// story so the epic is actionable.
		out = append(out, d.foundationalStory(epic, nextID))
	}
	return out
}

// foundationalStory is the single story attached to a suggested epic
// (or a derived epic without workflow evidence). Every clause traces to
// the parent epic.
func (d *Decomposer) foundationalStory(epic Epic, nextID *int) Story {
	title := strings.ToLower(epic.Title)
	s := Story{
		ID:     *nextID,
		EpicID: epic.ID,
		Title: fmt.Sprintf("As a user, I want a baseline %s capability, so that %s is supported end to end",
			title, title),
		AcceptanceCriteria: []string{
			fmt.Sprintf("A %s baseline exists and is exercised by at least one flow", title),
			fmt.Sprintf("The %s baseline rejects invalid input with a clear error", title),
		},
		Status: StatusBacklog,
	}
	*nextID++
	return s
}

// criteriaForWorkflow builds independently verifiable acceptance
// criteria for one workflow story. Every criterion embeds fact text
// attributable to the epic or its category.
func (d *Decomposer) criteriaForWorkflow(epic Epic, wf facts.Fact, role string, f *facts.RequirementFacts) []string {
	criteria := []string{
		fmt.Sprintf("Given a %s, performing '%s' completes successfully", role, wf.Text),
		fmt.Sprintf("'%s' is rejected with a clear error when its input is invalid", wf.Text),
	}
	for _, nfr := range epic.NonFunctionalRequirements {
		if sameSentence(nfr.Source, wf.Source) {
			criteria = append(criteria, fmt.Sprintf("'%s' meets the stated constraint: %s", wf.Text, nfr.Text))
		}
	}
	for _, ent := range f.Entities {
		if sameSentence(ent.Source, wf.Source) {
			criteria = append(criteria, fmt.Sprintf("Each '%s' record affected by '%s' is persisted and retrievable", ent.Text, wf.Text))
			break
		}
	}
	return criteria
}

// isWorkflowFact reports whether the fact is one of the extraction's
// workflow facts (matched by text and source).
func isWorkflowFact(fact facts.Fact, f *facts.RequirementFacts) bool {
	for _, wf := range f.Workflows {
		if wf.Text == fact.Text && wf.Source == fact.Source {
			return true
		}
	}
	return false
}

// roleForSpan picks the role whose source token sits inside the given
// sentence span, falling back to the first extracted role, then "user".
func roleForSpan(span facts.SourceRef, f *facts.RequirementFacts) string {
	for _, r := range f.Roles {
		if r.Source.Block == span.Block && r.Source.Start >= span.Start && r.Source.End <= span.End {
			return r.Text
		}
	}
	if len(f.Roles) > 0 {
		return f.Roles[0].Text
	}
	return "user"
}

// sameSentence reports whether two source refs overlap, i.e. came from
// the same stretch of corpus text.
func sameSentence(a, b facts.SourceRef) bool {
	return a.Block == b.Block && a.Start < b.End && b.Start < a.End
}

// scorePoints maps criteria count and dependency fan-in onto the
// Fibonacci story-point scale {3, 5, 8, 13}. The scale is contractual;
// the exact heuristic is an implementation choice.
func scorePoints(criteria, deps int) int {
	scale := []int{3, 5, 8, 13}
	idx := 0
	switch {
	case criteria <= 2:
		idx = 0
	case criteria == 3:
		idx = 1
	case criteria <= 5:
		idx = 2
	default:
		idx = 3
	}
	if deps > 0 && idx < len(scale)-1 {
		idx++
	}
	return scale[idx]
}
