// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package language

import "testing"

func TestResolve_KnownTokens(t *testing.T) {
	cases := []struct {
		token         string
		wantKey       string
		wantServExt   string
		wantFramework string
		wantTestFw    string
	}{
		{"Node.js (Express)", "javascript", ".js", "Express.js", "Jest"},
		{"javascript", "javascript", ".js", "Express.js", "Jest"},
		{"TypeScript", "typescript", ".ts", "Express.js", "Jest"},
		{"Python", "python", ".py", "FastAPI", "pytest"},
		{"python 3.12 with FastAPI", "python", ".py", "FastAPI", "pytest"},
		{"Java / Spring", "java", ".java", "Spring Boot", "JUnit 5"},
		{"C#", "csharp", ".cs", "ASP.NET Core", "xUnit"},
		{"ruby on rails", "ruby", ".rb", "Ruby on Rails", "RSpec"},
		{"Golang", "go", ".go", "net/http", "go test"},
	}
	for _, tc := range cases {
		t.Run(tc.token, func(t *testing.T) {
			p := Resolve(tc.token)
			if !p.Known {
				t.Fatalf("Resolve(%q) flagged unknown", tc.token)
			}
			if p.Key != tc.wantKey {
				t.Errorf("key = %s, want %s", p.Key, tc.wantKey)
			}
			if p.ServiceExtension != tc.wantServExt {
				t.Errorf("service ext = %s, want %s", p.ServiceExtension, tc.wantServExt)
			}
			if p.FrameworkName != tc.wantFramework {
				t.Errorf("framework = %s, want %s", p.FrameworkName, tc.wantFramework)
			}
			if p.TestFramework != tc.wantTestFw {
				t.Errorf("test framework = %s, want %s", p.TestFramework, tc.wantTestFw)
			}
			if p.InputToken != tc.token {
				t.Errorf("input token not preserved: %q", p.InputToken)
			}
		})
	}
}

func TestResolve_OrderingDisambiguates(t *testing.T) {
	// "javascript" contains "java"; table order must pick JavaScript.
	if p := Resolve("plain javascript please"); p.Key != "javascript" {
		t.Errorf("javascript token resolved to %s", p.Key)
	}
	// "django" contains "go"; Python is listed earlier.
	if p := Resolve("Django"); p.Key != "python" {
		t.Errorf("django token resolved to %s", p.Key)
	}
}

func TestResolve_UnknownFallsBackToDefault(t *testing.T) {
	p := Resolve("COBOL-85")
	if p.Known {
		t.Error("unknown token must be flagged Known=false")
	}
	def := DefaultProfile()
	if p.Key != def.Key {
		t.Errorf("unknown token resolved to %s, want default %s", p.Key, def.Key)
	}
	if p.InputToken != "COBOL-85" {
		t.Errorf("input token not preserved: %q", p.InputToken)
	}
}

func TestResolve_Pure(t *testing.T) {
	a := Resolve("Python")
	b := Resolve("Python")
	if a != b {
		t.Errorf("Resolve is not pure: %+v vs %+v", a, b)
	}
}

func TestNamingConvention_Apply(t *testing.T) {
	cases := []struct {
		conv   NamingConvention
		phrase string
		want   string
	}{
		{SnakeCase, "Report Location", "report_location"},
		{CamelCase, "Report Location", "reportLocation"},
		{PascalCase, "report location", "ReportLocation"},
		{SnakeCase, "As a driver, I want to report location", "as_a_driver_i_want_to_report_location"},
		{PascalCase, "", ""},
	}
	for _, tc := range cases {
		if got := tc.conv.Apply(tc.phrase); got != tc.want {
			t.Errorf("%s.Apply(%q) = %q, want %q", tc.conv, tc.phrase, got, tc.want)
		}
	}
}

func TestProfiles_CoverAllTemplateKeys(t *testing.T) {
	keys := map[string]bool{}
	for _, p := range Profiles() {
		if keys[p.Key] {
			t.Errorf("duplicate profile key %s", p.Key)
		}
		keys[p.Key] = true
		if p.ServiceExtension == "" || p.TestExtension == "" || p.FrameworkName == "" {
			t.Errorf("profile %s missing fields: %+v", p.Key, p)
		}
	}
	if len(keys) != 7 {
		t.Errorf("expected 7 known profiles, got %d", len(keys))
	}
}
