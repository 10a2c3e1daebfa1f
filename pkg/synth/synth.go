// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package synth turns a story into a four-artifact bundle (service,
// router, tests, readme) for a resolved language profile. Each
// artifact is generated through the oracle first and validated with a
// syntactic sniff; any timeout, provider failure, or sniff failure
// falls back to the deterministic template renderer, so a synthesis
// call always yields a complete bundle. Oracle failures never
// propagate to the caller; only a broken template table does.
package synth

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/storyforge/pkg/decompose"
	"github.com/mesh-intelligence/storyforge/pkg/language"
	"github.com/mesh-intelligence/storyforge/pkg/oracle"
	"github.com/mesh-intelligence/storyforge/pkg/render"
)

//go:embed prompts/service.yaml
var servicePromptYAML string

//go:embed prompts/router.yaml
var routerPromptYAML string

//go:embed prompts/tests.yaml
var testsPromptYAML string

//go:embed prompts/readme.yaml
var readmePromptYAML string

//go:embed prompts/revise.yaml
var revisePromptYAML string

var promptDefs = map[render.Kind]promptDef{
	render.KindService: mustPromptDef(servicePromptYAML),
	render.KindRouter:  mustPromptDef(routerPromptYAML),
	render.KindTests:   mustPromptDef(testsPromptYAML),
	render.KindReadme:  mustPromptDef(readmePromptYAML),
}

var revisePromptDef = mustPromptDef(revisePromptYAML)

func mustPromptDef(content string) promptDef {
	def, err := parsePromptDef(content)
	if err != nil {
		panic(fmt.Sprintf("embedded prompt definition: %v", err))
	}
	return def
}

// GenerationMethod records how an artifact's content was produced.
type GenerationMethod string

const (
	MethodOracle   GenerationMethod = "oracle"
	MethodFallback GenerationMethod = "fallback"
)

// artifactState tracks the per-kind synthesis state machine. Terminal
// states are stateValidated and stateFallbackRendered.
type artifactState int

const (
	statePending artifactState = iota
	stateValidated
	stateFailed
	stateFallbackRendered
)

func (s artifactState) String() string {
	switch s {
	case stateValidated:
		return "validated"
	case stateFailed:
		return "failed"
	case stateFallbackRendered:
		return "fallback-rendered"
	default:
		return "pending"
	}
}

// Artifact is one generated file of a bundle. Endpoints is populated
// for the router kind only, so documentation consumers never have to
// parse source code.
type Artifact struct {
	Kind             render.Kind      `json:"kind"`
	Filename         string           `json:"filename"`
	Content          string           `json:"content"`
	GenerationMethod GenerationMethod `json:"generationMethod"`
	Endpoints        []Endpoint       `json:"endpoints,omitempty"`
}

// Bundle is the complete synthesis output for one story.
type Bundle struct {
	StoryID   int              `json:"storyId"`
	Profile   language.Profile `json:"languageProfile"`
	Artifacts []Artifact       `json:"artifacts"`
}

// Artifact returns the bundle's artifact of the given kind, or nil.
func (b *Bundle) Artifact(kind render.Kind) *Artifact {
	for i := range b.Artifacts {
		if b.Artifacts[i].Kind == kind {
			return &b.Artifacts[i]
		}
	}
	return nil
}

// Fallback reports whether every artifact in the bundle was produced
// by the template renderer.
func (b *Bundle) Fallback() bool {
	for _, a := range b.Artifacts {
		if a.GenerationMethod != MethodFallback {
			return false
		}
	}
	return true
}

// EditScope pins a revision to one file and an optional line span. It
// is always passed explicitly; there is no ambient current-file state.
type EditScope struct {
	Filename  string `json:"filename"`
	StartLine int    `json:"startLine,omitempty"`
	EndLine   int    `json:"endLine,omitempty"`
}

func (s EditScope) span() string {
	if s.StartLine == 0 && s.EndLine == 0 {
		return "entire file"
	}
	return fmt.Sprintf("%d-%d", s.StartLine, s.EndLine)
}

const (
	defaultTimeout   = 30 * time.Second
	defaultMaxTokens = 4096
	// defaultMaxBytes bounds a single artifact; anything larger than
	// this from the oracle is treated as a failed generation.
	defaultMaxBytes = 64 * 1024
)

// Synthesizer drives the per-kind generation state machine.
type Synthesizer struct {
	oracle    oracle.Client
	renderer  *render.Renderer
	timeout   time.Duration
	maxTokens int
	maxBytes  int
	log       *zap.Logger
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithTimeout bounds each oracle call. There is no retry within one
// synthesis call; a timeout goes straight to fallback.
func WithTimeout(d time.Duration) Option {
	return func(s *Synthesizer) { s.timeout = d }
}

// WithMaxTokens bounds the oracle completion length.
func WithMaxTokens(n int) Option {
	return func(s *Synthesizer) { s.maxTokens = n }
}

// WithMaxArtifactBytes bounds accepted oracle output size.
func WithMaxArtifactBytes(n int) Option {
	return func(s *Synthesizer) { s.maxBytes = n }
}

// New builds a Synthesizer. A nil logger is replaced with a no-op one.
func New(client oracle.Client, renderer *render.Renderer, log *zap.Logger, opts ...Option) *Synthesizer {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Synthesizer{
		oracle:    client,
		renderer:  renderer,
		timeout:   defaultTimeout,
		maxTokens: defaultMaxTokens,
		maxBytes:  defaultMaxBytes,
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize produces the four-artifact bundle for a story. The four
// kinds run concurrently, each with its own oracle call and its own
// fallback path; a timeout on one kind never invalidates another.
// Cancellation still yields a complete bundle, since the fallback
// renderer does not block. The only error is a template configuration
// defect, which breaks the fallback guarantee and is fatal.
func (s *Synthesizer) Synthesize(ctx context.Context, story decompose.Story, profile language.Profile) (*Bundle, error) {
	name := render.StoryName(story, profile)
	endpoints := Endpoints(story)
	kinds := render.Kinds()
	artifacts := make([]Artifact, len(kinds))

	g := new(errgroup.Group)
	for i, kind := range kinds {
		g.Go(func() error {
			artifact, err := s.synthesizeKind(ctx, story, profile, kind, name, endpoints)
			if err != nil {
				return err
			}
			artifacts[i] = artifact
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Bundle{StoryID: story.ID, Profile: profile, Artifacts: artifacts}, nil
}

func (s *Synthesizer) synthesizeKind(ctx context.Context, story decompose.Story, profile language.Profile, kind render.Kind, name string, endpoints []Endpoint) (Artifact, error) {
	state := statePending
	var content string
	method := MethodFallback

	prompt := buildPrompt(kind, story, profile, endpoints)
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	reply, err := s.oracle.Complete(cctx, prompt, s.maxTokens)
	cancel()

	switch {
	case err != nil:
		state = stateFailed
		if oracle.IsTimeout(err) {
			s.log.Warn("oracle timed out, falling back",
				zap.Int("storyId", story.ID), zap.String("kind", string(kind)))
		} else {
			s.log.Warn("oracle failed, falling back",
				zap.Int("storyId", story.ID), zap.String("kind", string(kind)), zap.Error(err))
		}
	case !s.validate(reply, profile, kind):
		state = stateFailed
		s.log.Warn("oracle output failed validation, falling back",
			zap.Int("storyId", story.ID), zap.String("kind", string(kind)),
			zap.Int("bytes", len(reply)))
	default:
		state = stateValidated
		content = reply
		method = MethodOracle
	}

	if state == stateFailed {
		rendered, rerr := s.renderer.Render(story, profile, kind)
		if rerr != nil {
			return Artifact{}, rerr
		}
		state = stateFallbackRendered
		content = rendered
	}

	s.log.Debug("artifact synthesized",
		zap.Int("storyId", story.ID),
		zap.String("kind", string(kind)),
		zap.Stringer("state", state),
		zap.String("method", string(method)))

	artifact := Artifact{
		Kind:             kind,
		Filename:         filenameFor(name, kind, profile),
		Content:          content,
		GenerationMethod: method,
	}
	if kind == render.KindRouter {
		artifact.Endpoints = endpoints
	}
	return artifact, nil
}

// Revise regenerates one artifact of a bundle under an explicit edit
// scope. On oracle failure or invalid output the artifact is left
// unchanged and false is returned; the bundle stays usable either way.
func (s *Synthesizer) Revise(ctx context.Context, bundle *Bundle, scope EditScope, instruction string) (bool, error) {
	var target *Artifact
	for i := range bundle.Artifacts {
		if bundle.Artifacts[i].Filename == scope.Filename {
			target = &bundle.Artifacts[i]
			break
		}
	}
	if target == nil {
		return false, fmt.Errorf("synth: no artifact %q in bundle for story %d", scope.Filename, bundle.StoryID)
	}

	data := map[string]string{
		"language":    bundle.Profile.DisplayName,
		"filename":    scope.Filename,
		"span":        scope.span(),
		"instruction": instruction,
		"content":     target.Content,
	}
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	reply, err := s.oracle.Complete(cctx, renderPrompt(revisePromptDef, data), s.maxTokens)
	cancel()
	if err != nil || !s.validate(reply, bundle.Profile, target.Kind) {
		s.log.Warn("revision rejected, artifact unchanged",
			zap.String("filename", scope.Filename), zap.Error(err))
		return false, nil
	}

	target.Content = reply
	target.GenerationMethod = MethodOracle
	return true, nil
}

func buildPrompt(kind render.Kind, story decompose.Story, profile language.Profile, endpoints []Endpoint) string {
	endpointLines := make([]string, len(endpoints))
	for i, ep := range endpoints {
		endpointLines[i] = ep.Method + " " + ep.Path
	}
	data := map[string]string{
		"story_title":    story.Title,
		"criteria":       strings.Join(story.AcceptanceCriteria, "\n"),
		"language":       profile.DisplayName,
		"framework":      profile.FrameworkName,
		"test_framework": profile.TestFramework,
		"endpoints":      strings.Join(endpointLines, "\n"),
	}
	return renderPrompt(promptDefs[kind], data)
}

var kindSuffixes = map[render.Kind]string{
	render.KindService: "service",
	render.KindRouter:  "router",
	render.KindTests:   "tests",
	render.KindReadme:  "readme",
}

// filenameFor builds "{name}_{kind-suffix}{extension}". The name part
// already carries the profile's naming convention, so the four
// filenames of one bundle never mix conventions.
func filenameFor(name string, kind render.Kind, profile language.Profile) string {
	return name + "_" + kindSuffixes[kind] + profile.ExtensionFor(string(kind))
}

// sniffExpect lists tokens at least one of which must appear in a code
// artifact for the profile; sniffReject lists markers of a different
// language's idiom that disqualify the output.
var sniffExpect = map[string][]string{
	"javascript": {"function", "=>", "class ", "const ", "module.exports"},
	"typescript": {"export ", "class ", "const ", "function", "=>"},
	"python":     {"def ", "class ", "import ", "from "},
	"java":       {"class ", "public ", "package "},
	"csharp":     {"class ", "public ", "namespace ", "using "},
	"ruby":       {"def ", "class ", "module ", "require"},
	"go":         {"func ", "package "},
}

var sniffReject = map[string][]string{
	"javascript": {"def ", "public class"},
	"typescript": {"def ", "public class"},
	"python":     {"function ", "public class", "console.log"},
	"java":       {"def ", "module.exports", "=> {"},
	"csharp":     {"def ", "module.exports"},
	"ruby":       {"function ", "public class", "module.exports"},
	"go":         {"def ", "public class", "module.exports"},
}

// validate applies the acceptance gate for oracle output: non-empty,
// under the size bound, and (for code kinds) passing the language
// sniff.
func (s *Synthesizer) validate(content string, profile language.Profile, kind render.Kind) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" || len(content) > s.maxBytes {
		return false
	}
	if kind == render.KindReadme {
		return true
	}
	expectHit := false
	for _, token := range sniffExpect[profile.Key] {
		if strings.Contains(content, token) {
			expectHit = true
			break
		}
	}
	if !expectHit {
		return false
	}
	for _, token := range sniffReject[profile.Key] {
		if strings.Contains(content, token) {
			return false
		}
	}
	return true
}
