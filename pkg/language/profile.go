// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package language maps a user's free-text language choice onto a
// canonical profile: file extensions, framework and test-framework
// names, and the naming convention bundle filenames follow. Resolution
// is a pure lookup over a static ordered table; it never fails, it
// degrades to a documented default.
package language

import "strings"

// NamingConvention is the primary identifier form a profile uses for
// generated filenames and symbols.
type NamingConvention string

const (
	PascalCase NamingConvention = "PascalCase"
	CamelCase  NamingConvention = "camelCase"
	SnakeCase  NamingConvention = "snake_case"
)

// Apply renders a free-text phrase in the convention.
func (c NamingConvention) Apply(phrase string) string {
	words := splitWords(phrase)
	if len(words) == 0 {
		return ""
	}
	switch c {
	case SnakeCase:
		return strings.Join(words, "_")
	case CamelCase:
		out := words[0]
		for _, w := range words[1:] {
			out += capitalize(w)
		}
		return out
	default: // PascalCase
		out := ""
		for _, w := range words {
			out += capitalize(w)
		}
		return out
	}
}

// splitWords lowercases a phrase and splits it on non-alphanumeric runs.
func splitWords(phrase string) []string {
	var words []string
	var cur strings.Builder
	for _, r := range strings.ToLower(phrase) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			cur.WriteRune(r)
			continue
		}
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	if cur.Len() > 0 {
		words = append(words, cur.String())
	}
	return words
}

func capitalize(w string) string {
	if w == "" {
		return w
	}
	return strings.ToUpper(w[:1]) + w[1:]
}

// Profile is the canonical language profile. Immutable; looked up once
// per synthesis request.
type Profile struct {
	// InputToken is the raw user string the profile was resolved from.
	InputToken string `json:"inputToken"`
	// Key identifies the profile's template set (e.g. "python").
	Key string `json:"key"`
	// Known is false when the token did not match any ecosystem and
	// the default profile was substituted.
	Known bool `json:"known"`

	DisplayName      string           `json:"displayName"`
	ServiceExtension string           `json:"serviceExtension"`
	RouterExtension  string           `json:"routerExtension"`
	TestExtension    string           `json:"testExtension"`
	FrameworkName    string           `json:"frameworkName"`
	TestFramework    string           `json:"testFrameworkName"`
	Naming           NamingConvention `json:"namingConvention"`
}

// UnknownLanguageWarning is the non-fatal signal that an unrecognized
// token resolved to the default profile.
const UnknownLanguageWarning = "unknown language token: default profile substituted"

// entry pairs a match predicate (ordered case-insensitive substrings)
// with its profile. The table is evaluated top to bottom; order
// resolves ambiguous tokens (e.g. "javascript" wins before "java").
type entry struct {
	keywords []string
	profile  Profile
}

// table is the static ordered ecosystem table. Node/JavaScript is
// intentionally first and also serves as the default profile for
// unrecognized tokens.
var table = []entry{
	{
		keywords: []string{"node", "javascript", "express"},
		profile: Profile{
			Key: "javascript", DisplayName: "JavaScript (Node.js)",
			ServiceExtension: ".js", RouterExtension: ".js", TestExtension: ".test.js",
			FrameworkName: "Express.js", TestFramework: "Jest", Naming: CamelCase,
		},
	},
	{
		keywords: []string{"typescript", "nest", "deno"},
		profile: Profile{
			Key: "typescript", DisplayName: "TypeScript",
			ServiceExtension: ".ts", RouterExtension: ".ts", TestExtension: ".test.ts",
			FrameworkName: "Express.js", TestFramework: "Jest", Naming: CamelCase,
		},
	},
	{
		keywords: []string{"python", "fastapi", "django", "flask"},
		profile: Profile{
			Key: "python", DisplayName: "Python",
			ServiceExtension: ".py", RouterExtension: ".py", TestExtension: "_test.py",
			FrameworkName: "FastAPI", TestFramework: "pytest", Naming: SnakeCase,
		},
	},
	{
		keywords: []string{"java", "spring", "kotlin"},
		profile: Profile{
			Key: "java", DisplayName: "Java",
			ServiceExtension: ".java", RouterExtension: ".java", TestExtension: "Test.java",
			FrameworkName: "Spring Boot", TestFramework: "JUnit 5", Naming: PascalCase,
		},
	},
	{
		keywords: []string{"c#", "csharp", "dotnet", ".net"},
		profile: Profile{
			Key: "csharp", DisplayName: "C#",
			ServiceExtension: ".cs", RouterExtension: ".cs", TestExtension: "Tests.cs",
			FrameworkName: "ASP.NET Core", TestFramework: "xUnit", Naming: PascalCase,
		},
	},
	{
		keywords: []string{"ruby", "rails"},
		profile: Profile{
			Key: "ruby", DisplayName: "Ruby",
			ServiceExtension: ".rb", RouterExtension: ".rb", TestExtension: "_spec.rb",
			FrameworkName: "Ruby on Rails", TestFramework: "RSpec", Naming: SnakeCase,
		},
	},
	{
		keywords: []string{"golang", "go"},
		profile: Profile{
			Key: "go", DisplayName: "Go",
			ServiceExtension: ".go", RouterExtension: ".go", TestExtension: "_test.go",
			FrameworkName: "net/http", TestFramework: "go test", Naming: SnakeCase,
		},
	},
}

// Resolve maps a free-text token to its Profile. Matching is
// case-insensitive substring search in table order. Unrecognized
// tokens resolve to the default (JavaScript) profile with Known=false;
// callers surface UnknownLanguageWarning in that case. Same token, same
// result: the function is pure.
func Resolve(token string) Profile {
	lower := strings.ToLower(strings.TrimSpace(token))
	for _, e := range table {
		for _, kw := range e.keywords {
			if strings.Contains(lower, kw) {
				p := e.profile
				p.InputToken = token
				p.Known = true
				return p
			}
		}
	}
	p := table[0].profile
	p.InputToken = token
	p.Known = false
	return p
}

// Profiles returns every known profile in table order, for listings.
func Profiles() []Profile {
	out := make([]Profile, len(table))
	for i, e := range table {
		out[i] = e.profile
		out[i].Known = true
	}
	return out
}

// DefaultProfile returns the documented default used for unknown
// tokens.
func DefaultProfile() Profile {
	p := table[0].profile
	p.Known = true
	return p
}

// ExtensionFor returns the filename extension the profile uses for the
// given artifact kind name ("service", "router", "tests", "readme").
func (p Profile) ExtensionFor(kind string) string {
	switch kind {
	case "service":
		return p.ServiceExtension
	case "router":
		return p.RouterExtension
	case "tests":
		return p.TestExtension
	default:
		return ".md"
	}
}
