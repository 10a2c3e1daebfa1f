// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package taxonomy defines the fixed table of service categories that
// drives epic decomposition. The table is pure data: match rules are
// declarative keyword predicates evaluated elsewhere, never code. It is
// loaded once at process start and treated as read-only afterwards.
package taxonomy

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultTableYAML string

// MatchRule is the declarative predicate a category uses to decide
// whether extracted requirement facts support it. A category is
// considered present when at least MinFacts facts in any of the named
// Lists contain one of AnyKeywords (case-insensitive substring), or,
// when AnyKeywords is empty, when any of the named Lists is non-empty.
// MinRoles additionally requires that many distinct roles in the facts.
type MatchRule struct {
	AnyKeywords []string `yaml:"any_keywords,omitempty"`
	Lists       []string `yaml:"lists"`
	MinFacts    int      `yaml:"min_facts,omitempty"`
	MinRoles    int      `yaml:"min_roles,omitempty"`
}

// Category is one service category entry. Critical categories are
// foundational enough to be suggested even when no fact supports them.
// DependsOn lists the ids of categories whose epics this category's
// epic should depend on when both exist in a run.
type Category struct {
	ID          string    `yaml:"id"`
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Match       MatchRule `yaml:"match"`
	Critical    bool      `yaml:"critical"`
	DependsOn   []string  `yaml:"depends_on,omitempty"`
	// GapHint names the dimension cited when the category is suggested
	// rather than derived (e.g. "authentication workflow").
	GapHint string `yaml:"gap_hint"`
}

// Table is the versioned, ordered category list. Order matters:
// decomposition evaluates and merges results in table order.
type Table struct {
	Version    string     `yaml:"version"`
	Categories []Category `yaml:"categories"`
}

// Default returns the embedded category table. The embedded document is
// part of the binary, so a parse failure is a build defect and panics.
func Default() *Table {
	t, err := parse([]byte(defaultTableYAML))
	if err != nil {
		panic(fmt.Sprintf("taxonomy: embedded table invalid: %v", err))
	}
	return t
}

// Load reads a category table from a YAML file. Used when a project
// overrides the embedded defaults.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading taxonomy file: %w", err)
	}
	t, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return t, nil
}

func parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// validate checks structural invariants: non-empty version, unique
// category ids, and depends_on references that resolve within the table.
func (t *Table) validate() error {
	if t.Version == "" {
		return fmt.Errorf("taxonomy version is required")
	}
	if len(t.Categories) == 0 {
		return fmt.Errorf("taxonomy has no categories")
	}
	seen := make(map[string]bool, len(t.Categories))
	for _, c := range t.Categories {
		if c.ID == "" {
			return fmt.Errorf("category with empty id")
		}
		if seen[c.ID] {
			return fmt.Errorf("duplicate category id %q", c.ID)
		}
		seen[c.ID] = true
	}
	for _, c := range t.Categories {
		for _, dep := range c.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("category %q depends on unknown category %q", c.ID, dep)
			}
		}
	}
	return nil
}

// ByID returns the category with the given id, or nil.
func (t *Table) ByID(id string) *Category {
	for i := range t.Categories {
		if t.Categories[i].ID == id {
			return &t.Categories[i]
		}
	}
	return nil
}
