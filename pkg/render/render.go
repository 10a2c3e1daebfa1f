// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package render is the deterministic artifact backstop. It produces
// syntactically valid boilerplate for every supported language profile
// and artifact kind from a static embedded template table, without
// touching any external service. Rendering a known profile never
// fails; a missing template set is a configuration defect and is
// reported loudly through TemplateRenderError.
package render

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/storyforge/pkg/decompose"
	"github.com/mesh-intelligence/storyforge/pkg/language"
)

// Kind names one of the four artifacts in a bundle.
type Kind string

const (
	KindService Kind = "service"
	KindRouter  Kind = "router"
	KindTests   Kind = "tests"
	KindReadme  Kind = "readme"
)

// Kinds returns the artifact kinds in bundle order.
func Kinds() []Kind {
	return []Kind{KindService, KindRouter, KindTests, KindReadme}
}

// TemplateRenderError indicates a missing or broken template for a
// profile/kind pair. This breaks the fallback guarantee, so callers
// treat it as fatal rather than degrading further.
type TemplateRenderError struct {
	ProfileKey string
	Kind       Kind
	Cause      error
}

func (e *TemplateRenderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("render: template %s/%s: %v", e.ProfileKey, e.Kind, e.Cause)
	}
	return fmt.Sprintf("render: no template for profile %q kind %q", e.ProfileKey, e.Kind)
}

func (e *TemplateRenderError) Unwrap() error { return e.Cause }

//go:embed templates.yaml
var templatesYAML []byte

// Renderer holds the parsed per-profile template sets.
type Renderer struct {
	sets map[string]map[Kind]*template.Template
}

// New parses the embedded template table. It fails only when the
// embedded asset is malformed, which is a build-time defect.
func New() (*Renderer, error) {
	var raw map[string]map[string]string
	if err := yaml.Unmarshal(templatesYAML, &raw); err != nil {
		return nil, fmt.Errorf("parsing embedded templates: %w", err)
	}
	r := &Renderer{sets: make(map[string]map[Kind]*template.Template, len(raw))}
	for key, kinds := range raw {
		set := make(map[Kind]*template.Template, len(kinds))
		for kindName, body := range kinds {
			tmpl, err := template.New(key + "/" + kindName).Parse(body)
			if err != nil {
				return nil, &TemplateRenderError{ProfileKey: key, Kind: Kind(kindName), Cause: err}
			}
			set[Kind(kindName)] = tmpl
		}
		r.sets[key] = set
	}
	return r, nil
}

// MustNew is New for process start, where a broken embedded table
// cannot be recovered from.
func MustNew() *Renderer {
	r, err := New()
	if err != nil {
		panic(err)
	}
	return r
}

// Render produces the deterministic artifact content for a story,
// profile and kind. Same inputs, same output. The only error is
// TemplateRenderError for a profile key the table does not cover.
func (r *Renderer) Render(story decompose.Story, profile language.Profile, kind Kind) (string, error) {
	set, ok := r.sets[profile.Key]
	if !ok {
		return "", &TemplateRenderError{ProfileKey: profile.Key, Kind: kind}
	}
	tmpl, ok := set[kind]
	if !ok {
		return "", &TemplateRenderError{ProfileKey: profile.Key, Kind: kind}
	}
	var out strings.Builder
	if err := tmpl.Execute(&out, buildData(story, profile)); err != nil {
		return "", &TemplateRenderError{ProfileKey: profile.Key, Kind: kind, Cause: err}
	}
	return out.String(), nil
}

// ProfileKeys returns the profile keys the renderer has templates for,
// sorted for stable listings.
func (r *Renderer) ProfileKeys() []string {
	keys := make([]string, 0, len(r.sets))
	for k := range r.sets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// templateData is the value every template executes against. Naming
// forms are precomputed so templates stay logic-free.
type templateData struct {
	Title      string
	Role       string
	Capability string
	Benefit    string

	Pascal string
	Camel  string
	Snake  string
	Kebab  string
	Name   string

	Criteria      []string
	DisplayName   string
	Framework     string
	TestFramework string
}

func buildData(story decompose.Story, profile language.Profile) templateData {
	role, capability, benefit := ParseTitle(story.Title)
	nameSource := strings.TrimPrefix(capability, "to ")
	return templateData{
		Title:         story.Title,
		Role:          role,
		Capability:    capability,
		Benefit:       benefit,
		Pascal:        language.PascalCase.Apply(nameSource),
		Camel:         language.CamelCase.Apply(nameSource),
		Snake:         language.SnakeCase.Apply(nameSource),
		Kebab:         kebab(nameSource),
		Name:          profile.Naming.Apply(nameSource),
		Criteria:      story.AcceptanceCriteria,
		DisplayName:   profile.DisplayName,
		Framework:     profile.FrameworkName,
		TestFramework: profile.TestFramework,
	}
}

// ParseTitle splits a story title of the form "As a <role>, I want
// <capability>, so that <benefit>" into its clauses. Titles that do
// not follow the form come back with the whole string as capability,
// so naming still works.
func ParseTitle(title string) (role, capability, benefit string) {
	rest := title
	if cut, ok := strings.CutPrefix(rest, "As a "); ok {
		rest = cut
	} else if cut, ok := strings.CutPrefix(rest, "As an "); ok {
		rest = cut
	} else {
		return "", strings.TrimSpace(title), ""
	}
	role, rest, ok := strings.Cut(rest, ", I want ")
	if !ok {
		return "", strings.TrimSpace(title), ""
	}
	capability, benefit, _ = strings.Cut(rest, ", so that ")
	return strings.TrimSpace(role), strings.TrimSpace(capability), strings.TrimSpace(benefit)
}

// StoryName returns the story's capability rendered in the profile's
// naming convention. Bundle filenames are built from it so all four
// artifacts of one bundle share one convention.
func StoryName(story decompose.Story, profile language.Profile) string {
	_, capability, _ := ParseTitle(story.Title)
	return profile.Naming.Apply(strings.TrimPrefix(capability, "to "))
}

func kebab(phrase string) string {
	return strings.ReplaceAll(language.SnakeCase.Apply(phrase), "_", "-")
}
