// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package decompose

import (
	"context"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/storyforge/pkg/facts"
	"github.com/mesh-intelligence/storyforge/pkg/taxonomy"
)

// Decomposer evaluates the taxonomy against extracted facts and emits
// an epic/story graph. It is stateless between calls; per-project
// serialization of runs is the persistence collaborator's job.
type Decomposer struct {
	table *taxonomy.Table
	log   *zap.Logger
}

// NewDecomposer builds a Decomposer over the given taxonomy table. A
// nil logger is replaced with a no-op logger.
func NewDecomposer(table *taxonomy.Table, log *zap.Logger) *Decomposer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Decomposer{table: table, log: log}
}

// SparseInputWarning is the non-fatal signal that fewer than three
// epics were justified by the input.
const SparseInputWarning = "sparse input: fewer than 3 epics could be justified by the extracted facts"

// Result carries the graph plus non-fatal signals from the run.
type Result struct {
	Graph *EpicGraph
	// Warnings holds non-fatal conditions, e.g. SparseInputWarning.
	Warnings []string
	// DroppedEdges records dependency edges removed to restore
	// acyclicity. Informational; the returned graph is always acyclic.
	DroppedEdges []*CycleDetectedError
}

// Sparse reports whether the run signalled SparseInputWarning.
func (r *Result) Sparse() bool {
	for _, w := range r.Warnings {
		if w == SparseInputWarning {
			return true
		}
	}
	return false
}

// evaluation is the per-category match outcome from step one.
type evaluation struct {
	category      taxonomy.Category
	present       bool
	functional    []facts.Fact
	nonFunctional []facts.Fact
}

// Decompose runs one decomposition. In IncrementalAppend mode the
// existing graph is never rewritten: its epics and stories are copied
// unchanged and new ones appended with ids continuing from its maxima.
// In FullReplace mode existing is discarded and ids start at 1.
func (d *Decomposer) Decompose(ctx context.Context, f *facts.RequirementFacts, mode Mode, existing *EpicGraph) (*Result, error) {
	d.log.Info("decomposition starting",
		zap.String("mode", mode.String()),
		zap.String("taxonomyVersion", d.table.Version))

	// Step 1: evaluate every category. Evaluations are independent and
	// run in parallel; results land in a per-category slot so the merge
	// below is deterministic regardless of completion order.
	evals := make([]evaluation, len(d.table.Categories))
	g, _ := errgroup.WithContext(ctx)
	for i := range d.table.Categories {
		g.Go(func() error {
			evals[i] = evaluateCategory(d.table.Categories[i], f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	graph := &EpicGraph{
		RunID:           ulid.Make().String(),
		TaxonomyVersion: d.table.Version,
	}
	existingCategories := map[string]int{} // category id -> epic id
	nextEpicID := 1
	nextStoryID := 1
	if mode == IncrementalAppend && existing != nil {
		graph.Epics = append(graph.Epics, existing.Epics...)
		graph.Stories = append(graph.Stories, existing.Stories...)
		for _, e := range existing.Epics {
			existingCategories[e.Category] = e.ID
		}
		nextEpicID = existing.MaxEpicID() + 1
		nextStoryID = existing.MaxStoryID() + 1
	}

	// Step 2: merge in taxonomy order, applying the three-outcome rule.
	var newEpics []Epic
	for _, ev := range evals {
		if _, covered := existingCategories[ev.category.ID]; covered {
			continue
		}
		switch {
		case ev.present:
			newEpics = append(newEpics, Epic{
				ID:                        nextEpicID,
				Title:                     ev.category.Name,
				Description:               ev.category.Description,
				Category:                  ev.category.ID,
				FunctionalRequirements:    ev.functional,
				NonFunctionalRequirements: ev.nonFunctional,
				Derived:                   true,
				Priority:                  derivedPriority(ev),
			})
			nextEpicID++
		case ev.category.Critical:
			newEpics = append(newEpics, Epic{
				ID:               nextEpicID,
				Title:            ev.category.Name,
				Description:      ev.category.Description,
				Category:         ev.category.ID,
				Derived:          false,
				SuggestionReason: suggestionReason(ev.category, f),
				Priority:         PriorityHigh,
			})
			nextEpicID++
		default:
			// Absent and optional: no epic.
		}
	}

	// Step 3: dependency edges from taxonomy hints, then acyclicity.
	categoryEpic := map[string]int{}
	for cat, id := range existingCategories {
		categoryEpic[cat] = id
	}
	for _, e := range newEpics {
		categoryEpic[e.Category] = e.ID
	}
	edges := map[int][]int{}
	for _, e := range graph.Epics { // existing edges are kept verbatim
		edges[e.ID] = append([]int(nil), e.DependsOn...)
	}
	for _, e := range newEpics {
		cat := d.table.ByID(e.Category)
		for _, dep := range cat.DependsOn {
			if target, ok := categoryEpic[dep]; ok {
				edges[e.ID] = append(edges[e.ID], target)
			}
		}
	}
	kept, dropped, err := breakCycles(edges)
	if err != nil {
		return nil, err
	}
	for _, cycle := range dropped {
		cycle.Kind = "epic"
		d.log.Warn("dependency cycle resolved by dropping edge",
			zap.Int("from", cycle.From), zap.Int("to", cycle.To))
	}
	for i := range newEpics {
		newEpics[i].DependsOn = kept[newEpics[i].ID]
	}

	if err := validateEpics(newEpics, graph.Epics); err != nil {
		return nil, err
	}
	graph.Epics = append(graph.Epics, newEpics...)

	// Step 5: derive stories for the new epics only.
	newStories := d.deriveStories(newEpics, f, categoryEpic, &nextStoryID)
	graph.Stories = append(graph.Stories, newStories...)

	result := &Result{Graph: graph, DroppedEdges: dropped}
	if f.NonEmptyLists() < 2 || len(graph.Epics) < 3 {
		result.Warnings = append(result.Warnings, SparseInputWarning)
	}
	d.log.Info("decomposition complete",
		zap.String("runId", graph.RunID),
		zap.Int("epics", len(graph.Epics)),
		zap.Int("stories", len(graph.Stories)),
		zap.Int("droppedEdges", len(dropped)))
	return result, nil
}

// evaluateCategory applies one category's match rule to the facts.
// Pure function over immutable inputs, safe to run concurrently.
func evaluateCategory(cat taxonomy.Category, f *facts.RequirementFacts) evaluation {
	ev := evaluation{category: cat}

	constraintOnly := true
	for _, list := range cat.Match.Lists {
		if list != "performanceConstraints" && list != "deploymentConstraints" {
			constraintOnly = false
		}
	}

	for _, list := range cat.Match.Lists {
		isConstraint := list == "performanceConstraints" || list == "deploymentConstraints"
		for _, fact := range f.List(list) {
			if len(cat.Match.AnyKeywords) > 0 && !containsAny(fact.Text, cat.Match.AnyKeywords) {
				continue
			}
			// Constraint facts are non-functional for ordinary
			// categories; for constraint-driven categories they are
			// the epic's work items.
			if isConstraint && !constraintOnly {
				ev.nonFunctional = append(ev.nonFunctional, fact)
			} else {
				ev.functional = append(ev.functional, fact)
			}
		}
	}

	minFacts := cat.Match.MinFacts
	if minFacts == 0 {
		minFacts = 1
	}
	ev.present = len(ev.functional)+len(ev.nonFunctional) >= minFacts &&
		len(f.Roles) >= cat.Match.MinRoles
	// A derived epic must hold at least one traceable functional
	// requirement; a match supported only by non-functional facts does
	// not establish presence.
	if len(ev.functional) == 0 {
		ev.present = false
	}
	return ev
}

func containsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// derivedPriority ranks a derived epic: critical categories are
// Critical, well-evidenced ones High, thinly-evidenced ones Medium.
func derivedPriority(ev evaluation) Priority {
	switch {
	case ev.category.Critical:
		return PriorityCritical
	case len(ev.functional) >= 2:
		return PriorityHigh
	default:
		return PriorityMedium
	}
}

// suggestionReason cites the concrete gap that justifies suggesting an
// absent critical category. The text embeds the category's own gap
// dimension and name, so two categories can never share a reason.
func suggestionReason(cat taxonomy.Category, f *facts.RequirementFacts) string {
	return fmt.Sprintf(
		"facts list %d distinct role(s) and %d workflow(s), but no %s was extracted; %s is foundational and has no supporting epic",
		len(f.Roles), len(f.Workflows), cat.GapHint, cat.Name)
}

// validateEpics enforces the candidate-set invariants: unique
// categories across the whole graph, suggestion reasons present and
// pairwise distinct, and derived epics carrying traceable functional
// requirements.
func validateEpics(newEpics, existing []Epic) error {
	categories := map[string]bool{}
	for _, e := range existing {
		categories[e.Category] = true
	}
	reasons := map[string]string{}
	for _, e := range newEpics {
		if categories[e.Category] {
			return fmt.Errorf("duplicate epic category %q", e.Category)
		}
		categories[e.Category] = true

		if e.Derived {
			if len(e.FunctionalRequirements) == 0 {
				return fmt.Errorf("derived epic %d (%s) has no functional requirements", e.ID, e.Category)
			}
			continue
		}
		if e.SuggestionReason == "" {
			return fmt.Errorf("suggested epic %d (%s) has no suggestion reason", e.ID, e.Category)
		}
		if prior, dup := reasons[e.SuggestionReason]; dup {
			return fmt.Errorf("suggestion reason for %q is byte-equal to %q's: template leakage", e.Category, prior)
		}
		reasons[e.SuggestionReason] = e.Category
	}
	return nil
}
