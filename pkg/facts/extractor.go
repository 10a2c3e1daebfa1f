// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package facts

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/storyforge/pkg/taxonomy"
)

// minCorpusChars is the default minimum corpus length. Anything shorter
// fails with InsufficientInputError rather than guessing.
const minCorpusChars = 40

// maxFactChars caps the length of a single fact's text. Facts longer
// than this are condensed through the summarizer when one is installed,
// or hard-truncated otherwise.
const maxFactChars = 120

// Extractor turns a requirements corpus into RequirementFacts using
// deterministic lexicon and pattern rules. Identical corpus and
// taxonomy version always produce identical facts.
type Extractor struct {
	table      *taxonomy.Table
	summarizer Summarizer
	minChars   int
	log        *zap.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithSummarizer installs a summarizer used to condense over-long fact
// text. The summarizer must be cached or seeded to keep extraction
// reproducible (see CachedSummarizer).
func WithSummarizer(s Summarizer) Option {
	return func(e *Extractor) { e.summarizer = s }
}

// WithMinCorpusChars overrides the minimum corpus length threshold.
func WithMinCorpusChars(n int) Option {
	return func(e *Extractor) { e.minChars = n }
}

// NewExtractor builds an Extractor bound to a taxonomy table. A nil
// logger is replaced with a no-op logger.
func NewExtractor(table *taxonomy.Table, log *zap.Logger, opts ...Option) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Extractor{table: table, minChars: minCorpusChars, log: log}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract produces RequirementFacts from the corpus. Returns
// InsufficientInputError when the corpus is empty or below the minimum
// length; the returned facts are then empty.
func (e *Extractor) Extract(corpus Corpus) (*RequirementFacts, error) {
	out := &RequirementFacts{TaxonomyVersion: e.table.Version}
	if corpus.Len() < e.minChars {
		e.log.Warn("corpus below minimum length",
			zap.Int("chars", corpus.Len()), zap.Int("min", e.minChars))
		return out, &InsufficientInputError{Length: corpus.Len(), Min: e.minChars}
	}

	for bi, block := range corpus.Blocks {
		for _, sent := range splitSentences(block) {
			e.extractSentence(out, bi, sent)
		}
	}

	e.condense(out)
	e.log.Debug("extraction complete",
		zap.Int("entities", len(out.Entities)),
		zap.Int("workflows", len(out.Workflows)),
		zap.Int("roles", len(out.Roles)),
		zap.Int("integrations", len(out.Integrations)),
		zap.Int("performance", len(out.PerformanceConstraints)),
		zap.Int("deployment", len(out.DeploymentConstraints)))
	return out, nil
}

// extractSentence runs every rule family against one sentence and
// appends the resulting facts, deduplicating by normalized text.
func (e *Extractor) extractSentence(out *RequirementFacts, block int, s sentence) {
	toks := tokenize(s)

	for _, role := range findRoles(toks) {
		appendFact(&out.Roles, role.text, SourceRef{Block: block, Start: role.start, End: role.end})
	}
	for _, wf := range findWorkflows(toks) {
		ref := SourceRef{Block: block, Start: s.start, End: s.end}
		appendFact(&out.Workflows, wf.phrase, ref)
		for _, ent := range wf.entities {
			appendFact(&out.Entities, ent, ref)
		}
	}
	for _, m := range integrationPattern.FindAllStringIndex(s.text, -1) {
		ref := SourceRef{Block: block, Start: s.start + m[0], End: s.start + m[1]}
		appendFact(&out.Integrations, snippet(s.text), ref)
	}
	for _, m := range performancePattern.FindAllStringIndex(s.text, -1) {
		ref := SourceRef{Block: block, Start: s.start + m[0], End: s.start + m[1]}
		appendFact(&out.PerformanceConstraints, strings.TrimSpace(s.text[m[0]:m[1]]), ref)
	}
	for _, m := range deploymentPattern.FindAllStringIndex(s.text, -1) {
		ref := SourceRef{Block: block, Start: s.start + m[0], End: s.start + m[1]}
		appendFact(&out.DeploymentConstraints, snippet(s.text), ref)
	}
}

// condense shortens any fact text over maxFactChars, preferring the
// installed summarizer and falling back to hard truncation.
func (e *Extractor) condense(out *RequirementFacts) {
	for _, name := range listNames {
		list := out.List(name)
		for i := range list {
			if len(list[i].Text) <= maxFactChars {
				continue
			}
			if e.summarizer != nil {
				if sum, err := e.summarizer.Summarize(list[i].Text); err == nil && sum != "" {
					list[i].Text = sum
					continue
				}
			}
			list[i].Text = list[i].Text[:maxFactChars]
		}
	}
}

// appendFact appends a fact unless a fact with the same normalized text
// already exists in the list. First occurrence wins, preserving the
// corpus order of source references.
func appendFact(list *[]Fact, text string, ref SourceRef) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	norm := strings.ToLower(text)
	for _, f := range *list {
		if strings.ToLower(f.Text) == norm {
			return
		}
	}
	*list = append(*list, Fact{Text: text, Source: ref})
}

// snippet returns the sentence text capped for fact display.
func snippet(text string) string {
	text = strings.TrimSpace(text)
	if len(text) > maxFactChars {
		return text[:maxFactChars]
	}
	return text
}

// ---------------------------------------------------------------------------
// Sentence segmentation and tokenization
// ---------------------------------------------------------------------------

// sentence is a trimmed sentence with its byte span in the source block.
type sentence struct {
	text  string
	start int
	end   int
}

// splitSentences segments a block on terminal punctuation and newlines,
// keeping byte offsets so extracted facts stay traceable.
func splitSentences(block string) []sentence {
	var out []sentence
	start := 0
	for i := 0; i <= len(block); i++ {
		atEnd := i == len(block)
		if !atEnd && block[i] != '.' && block[i] != '!' && block[i] != '?' && block[i] != '\n' {
			continue
		}
		raw := block[start:i]
		trimmedLeft := strings.TrimLeft(raw, " \t\r\n")
		offset := len(raw) - len(trimmedLeft)
		text := strings.TrimRight(trimmedLeft, " \t\r\n")
		if text != "" {
			out = append(out, sentence{
				text:  text,
				start: start + offset,
				end:   start + offset + len(text),
			})
		}
		start = i + 1
	}
	return out
}

// token is a word with its byte span in the source block.
type token struct {
	text  string
	start int
	end   int
}

// tokenize splits a sentence into word tokens, preserving block-level
// byte offsets.
func tokenize(s sentence) []token {
	var toks []token
	i := 0
	for i < len(s.text) {
		if !isWordByte(s.text[i]) {
			i++
			continue
		}
		j := i
		for j < len(s.text) && isWordByte(s.text[j]) {
			j++
		}
		toks = append(toks, token{text: s.text[i:j], start: s.start + i, end: s.start + j})
		i = j
	}
	return toks
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '-' || b == '_' || b == '#'
}

// ---------------------------------------------------------------------------
// Rule lexicons
// ---------------------------------------------------------------------------

// roleLexicon lists actor nouns recognized as roles (singular form).
var roleLexicon = map[string]bool{
	"user": true, "admin": true, "administrator": true, "driver": true,
	"dispatcher": true, "customer": true, "manager": true, "operator": true,
	"agent": true, "guest": true, "member": true, "moderator": true,
	"analyst": true, "clerk": true, "nurse": true, "doctor": true,
	"patient": true, "teacher": true, "student": true, "vendor": true,
	"supplier": true, "employee": true, "staff": true, "owner": true,
	"client": true, "reviewer": true, "developer": true, "tester": true,
	"visitor": true, "subscriber": true, "courier": true, "technician": true,
}

// actionVerbs lists verbs that open a workflow/capability phrase.
// Deliberately excludes weak verbs like "use" or "have".
var actionVerbs = map[string]bool{
	"report": true, "view": true, "manage": true, "create": true,
	"update": true, "delete": true, "track": true, "submit": true,
	"approve": true, "reject": true, "send": true, "receive": true,
	"schedule": true, "assign": true, "search": true, "upload": true,
	"download": true, "generate": true, "review": true, "monitor": true,
	"register": true, "login": true, "book": true, "order": true,
	"pay": true, "export": true, "import": true, "configure": true,
	"sync": true, "notify": true, "cancel": true, "browse": true,
	"edit": true, "share": true, "publish": true, "archive": true,
	"filter": true, "reset": true, "invite": true, "subscribe": true,
}

// objectStopwords terminate or are skipped within an object phrase.
var objectStopwords = map[string]bool{
	"a": true, "an": true, "the": true, "their": true, "its": true,
	"his": true, "her": true, "my": true, "all": true, "any": true,
	"each": true, "this": true, "that": true, "these": true, "those": true,
}

// objectTerminators end an object phrase outright.
var objectTerminators = map[string]bool{
	"of": true, "to": true, "so": true, "when": true, "every": true,
	"within": true, "via": true, "using": true, "and": true, "or": true,
	"then": true, "for": true, "with": true, "in": true, "on": true,
	"by": true, "from": true, "at": true, "if": true, "as": true,
}

var (
	// The constraint patterns match case-insensitively against the
	// original sentence text, so reported byte offsets always index
	// into it.
	integrationPattern = regexp.MustCompile(`(?i)\b(api|webhook|oauth|stripe|paypal|twilio|slack|jira|github|gitlab|salesforce|sendgrid|zapier|sso|integrat\w*)\b`)

	performancePattern = regexp.MustCompile(`(?i)((every|within|under|at least|at most|up to|per)\s+)?\d+[\d,.]*\s*(ms|milliseconds?|seconds?|minutes?|hours?|days?|requests?|users?|rps|qps|tps|%|percent)\b|\b(latency|throughput|concurrent\w*|uptime|real-?time|response time|scalab\w*)\b`)

	deploymentPattern = regexp.MustCompile(`(?i)\b(deploy\w*|docker|container\w*|kubernetes|k8s|cloud|aws|gcp|azure|on-premise\w*|serverless|ci/cd|vercel|heroku|hosting|staging|production environment)\b`)
)

// findRoles returns role facts for tokens matching the role lexicon or
// the "as a <role>" pattern.
func findRoles(toks []token) []token {
	var out []token
	for i, t := range toks {
		word := singular(strings.ToLower(t.text))
		if roleLexicon[word] {
			out = append(out, token{text: word, start: t.start, end: t.end})
			continue
		}
		// "as a <role>" / "as an <role>" introduces a role even when
		// the noun is outside the lexicon.
		if i >= 2 && strings.EqualFold(toks[i-2].text, "as") &&
			(strings.EqualFold(toks[i-1].text, "a") || strings.EqualFold(toks[i-1].text, "an")) {
			out = append(out, token{text: word, start: t.start, end: t.end})
		}
	}
	return out
}

// workflow is a captured verb phrase plus the entity nouns it mentions.
type workflow struct {
	phrase   string
	entities []string
}

// findWorkflows captures one workflow phrase per action verb in the
// sentence: the verb followed by up to three content words.
func findWorkflows(toks []token) []workflow {
	var out []workflow
	for i, t := range toks {
		verb := strings.ToLower(t.text)
		if !actionVerbs[verb] {
			continue
		}
		words := []string{verb}
		var entities []string
		for j := i + 1; j < len(toks) && len(words) < 4; j++ {
			w := strings.ToLower(toks[j].text)
			if objectTerminators[w] {
				break
			}
			if objectStopwords[w] {
				continue
			}
			words = append(words, w)
			if noun := singular(w); !roleLexicon[noun] && !actionVerbs[w] {
				entities = append(entities, noun)
			}
		}
		if len(words) == 1 {
			// A verb with no object is not a capability statement.
			continue
		}
		// Only the head noun of the object phrase is an entity; the
		// qualifiers before it are modifiers.
		if len(entities) > 1 {
			entities = entities[len(entities)-1:]
		}
		out = append(out, workflow{phrase: strings.Join(words, " "), entities: entities})
	}
	return out
}

// singular strips a plural suffix from a lowercase noun. Naive on
// purpose: the lexicons store singular forms and requirements prose
// rarely uses irregular plurals.
func singular(w string) string {
	if strings.HasSuffix(w, "ies") && len(w) > 4 {
		return w[:len(w)-3] + "y"
	}
	if strings.HasSuffix(w, "ses") || strings.HasSuffix(w, "xes") || strings.HasSuffix(w, "hes") {
		return w[:len(w)-2]
	}
	if strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") && len(w) > 3 {
		return w[:len(w)-1]
	}
	return w
}
