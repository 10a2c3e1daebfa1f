// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package synth

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// promptSection is a named section of a rendered prompt. The Name field
// becomes a markdown heading ("task" becomes "# TASK"). A scalar YAML
// value becomes the Text directly; a mapping may carry text, append,
// format, and heading fields.
//
// Append names a key in the data map whose value is appended after
// Text. When Append is set and the corresponding data value is empty,
// the whole section is omitted. Format "list" renders the appended
// value's lines as markdown bullets; any other value appends verbatim
// with a leading newline. Heading overrides the heading derived from
// Name.
type promptSection struct {
	Name    string
	Text    string
	Append  string
	Format  string
	Heading string
}

type promptSectionDetail struct {
	Text    string `yaml:"text"`
	Append  string `yaml:"append"`
	Format  string `yaml:"format"`
	Heading string `yaml:"heading"`
}

// promptDef is an ordered list of named prompt sections. Each element
// in the YAML sequence is a single-key mapping: the key is the section
// name, the value either a scalar (the text) or a mapping with
// text/append/format/heading fields.
type promptDef []promptSection

// UnmarshalYAML expects a YAML sequence of single-key mappings.
func (pd *promptDef) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode {
		return fmt.Errorf("prompt definition must be a YAML sequence, got %v", value.Kind)
	}
	sections := make(promptDef, 0, len(value.Content))
	for i, item := range value.Content {
		if item.Kind != yaml.MappingNode {
			return fmt.Errorf("section %d: expected a mapping, got %v", i, item.Kind)
		}
		if len(item.Content) < 2 {
			return fmt.Errorf("section %d: mapping must have at least one key", i)
		}
		keyNode := item.Content[0]
		valNode := item.Content[1]

		sec := promptSection{Name: keyNode.Value}

		switch valNode.Kind {
		case yaml.ScalarNode:
			sec.Text = valNode.Value
		case yaml.MappingNode:
			var detail promptSectionDetail
			if err := valNode.Decode(&detail); err != nil {
				return fmt.Errorf("section %q: %w", sec.Name, err)
			}
			sec.Text = detail.Text
			sec.Append = detail.Append
			sec.Format = detail.Format
			sec.Heading = detail.Heading
		default:
			return fmt.Errorf("section %q: unexpected YAML node kind %v", sec.Name, valNode.Kind)
		}

		sections = append(sections, sec)
	}
	*pd = sections
	return nil
}

func parsePromptDef(yamlContent string) (promptDef, error) {
	var def promptDef
	if err := yaml.Unmarshal([]byte(yamlContent), &def); err != nil {
		return nil, err
	}
	return def, nil
}

func sectionHeading(sec promptSection) string {
	if sec.Heading != "" {
		return sec.Heading
	}
	return "# " + strings.ToUpper(strings.ReplaceAll(sec.Name, "_", " "))
}

// renderPrompt assembles a prompt from a definition and a data map.
// Placeholders in section text use {key} syntax. Substitution applies
// only to Text, not to appended values, so appended story content
// containing braces cannot trigger cross-substitution.
func renderPrompt(def promptDef, data map[string]string) string {
	var buf strings.Builder
	first := true
	for _, sec := range def {
		if sec.Append != "" && data[sec.Append] == "" {
			continue
		}

		if !first {
			buf.WriteString("\n")
		}
		first = false

		buf.WriteString(sectionHeading(sec))
		buf.WriteString("\n\n")

		if sec.Text != "" {
			text := sec.Text
			for k, v := range data {
				text = strings.ReplaceAll(text, "{"+k+"}", v)
			}
			buf.WriteString(text)
		}

		if sec.Append != "" {
			val := data[sec.Append]
			switch sec.Format {
			case "list":
				buf.WriteString("\n")
				for _, line := range strings.Split(strings.TrimSpace(val), "\n") {
					buf.WriteString("- ")
					buf.WriteString(line)
					buf.WriteString("\n")
				}
			default:
				buf.WriteString("\n")
				buf.WriteString(val)
			}
		}
	}
	return buf.String()
}
