// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package synth

import (
	"regexp"
	"strings"

	"github.com/mesh-intelligence/storyforge/pkg/decompose"
	"github.com/mesh-intelligence/storyforge/pkg/language"
	"github.com/mesh-intelligence/storyforge/pkg/render"
)

// Endpoint is the structured route metadata attached to a router
// artifact, one entry per externally observable action in the story's
// acceptance criteria.
type Endpoint struct {
	Method    string `json:"method"`
	Path      string `json:"path"`
	Criterion string `json:"criterion"`
}

// verbMethods maps a leading action verb to an HTTP method. Unlisted
// verbs default to POST.
var verbMethods = map[string]string{
	"view":    "GET",
	"list":    "GET",
	"show":    "GET",
	"display": "GET",
	"get":     "GET",
	"search":  "GET",
	"find":    "GET",
	"track":   "GET",
	"update":  "PUT",
	"edit":    "PUT",
	"manage":  "PUT",
	"change":  "PUT",
	"assign":  "PUT",
	"delete":  "DELETE",
	"remove":  "DELETE",
	"cancel":  "DELETE",
}

var quotedAction = regexp.MustCompile(`performing '([^']+)'`)

var pathStopwords = map[string]bool{
	"a": true, "an": true, "the": true, "all": true, "of": true, "to": true,
}

// Endpoints derives router endpoint metadata from a story. A criterion
// implies an externally observable action when it exercises a workflow
// (the "performing '...'" form); one endpoint is emitted per distinct
// action. Stories without such criteria get a single endpoint derived
// from the title capability, so a router artifact is never routeless.
func Endpoints(story decompose.Story) []Endpoint {
	seen := make(map[string]bool)
	var out []Endpoint
	for _, crit := range story.AcceptanceCriteria {
		m := quotedAction.FindStringSubmatch(crit)
		if m == nil {
			continue
		}
		action := strings.ToLower(m[1])
		if seen[action] {
			continue
		}
		seen[action] = true
		method, path := routeFor(action)
		out = append(out, Endpoint{Method: method, Path: path, Criterion: crit})
	}
	if len(out) == 0 {
		_, capability, _ := render.ParseTitle(story.Title)
		action := strings.TrimPrefix(strings.ToLower(capability), "to ")
		method, path := routeFor(action)
		out = append(out, Endpoint{Method: method, Path: path, Criterion: story.Title})
	}
	return out
}

// routeFor maps an action phrase like "report location" to an HTTP
// method (from the leading verb) and an /api path (from the remaining
// object words).
func routeFor(action string) (method, path string) {
	words := strings.Fields(action)
	if len(words) == 0 {
		return "POST", "/api/root"
	}
	method = verbMethods[words[0]]
	if method == "" {
		method = "POST"
	}
	var object []string
	for _, w := range words[1:] {
		if pathStopwords[w] {
			continue
		}
		object = append(object, w)
	}
	if len(object) == 0 {
		object = words[:1]
	}
	return method, "/api/" + kebab(strings.Join(object, " "))
}

func kebab(phrase string) string {
	return strings.ReplaceAll(language.SnakeCase.Apply(phrase), "_", "-")
}
