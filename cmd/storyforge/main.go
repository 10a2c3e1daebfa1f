// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Command storyforge decomposes free-text requirements into an epic
// and story graph and synthesizes per-story code artifact bundles.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/storyforge/pkg/config"
	"github.com/mesh-intelligence/storyforge/pkg/decompose"
	"github.com/mesh-intelligence/storyforge/pkg/facts"
	"github.com/mesh-intelligence/storyforge/pkg/language"
	"github.com/mesh-intelligence/storyforge/pkg/oracle"
	"github.com/mesh-intelligence/storyforge/pkg/render"
	"github.com/mesh-intelligence/storyforge/pkg/store"
	"github.com/mesh-intelligence/storyforge/pkg/synth"
	"github.com/mesh-intelligence/storyforge/pkg/taxonomy"
)

var (
	configFile string
	verbose    bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		printError("error: %v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "storyforge",
		Short: "Requirement decomposition and artifact synthesis",
		Long: `Storyforge extracts structured facts from free-text requirements,
decomposes them into a dependency-aware graph of epics and stories,
and synthesizes per-story code artifacts for a chosen language stack.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configFile, "config", "c", "storyforge.yaml", "configuration file path")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newInitCmd())
	root.AddCommand(newDecomposeCmd())
	root.AddCommand(newSynthesizeCmd())
	root.AddCommand(newLanguagesCmd())
	root.AddCommand(newTaxonomyCmd())
	root.AddCommand(newRunsCmd())
	return root
}

// loadConfig reads the configuration file, or falls back to defaults
// when it does not exist.
func loadConfig() (config.Config, error) {
	if _, err := os.Stat(configFile); errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return config.LoadConfig(configFile)
}

func buildLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func loadTaxonomy(cfg config.Config) (*taxonomy.Table, error) {
	if cfg.TaxonomyPath == "" {
		return taxonomy.Default(), nil
	}
	return taxonomy.Load(cfg.TaxonomyPath)
}

// buildOracleClient wires the configured provider. A missing API key
// degrades to the disabled client rather than failing: synthesis then
// serves everything from templates.
func buildOracleClient(cmd *cobra.Command, cfg config.Config, log *zap.Logger) (oracle.Client, error) {
	if cfg.Oracle.Provider == "none" {
		return oracle.Disabled{}, nil
	}
	key := cfg.Oracle.APIKey()
	if key == "" {
		printWarning("no API key in $%s; artifacts will use template fallback only", cfg.Oracle.APIKeyEnv)
		return oracle.Disabled{}, nil
	}
	if cfg.Oracle.Provider == "gemini" {
		return oracle.NewGeminiClient(cmd.Context(), key, cfg.Oracle.Model, log)
	}
	var opts []oracle.AnthropicOption
	if cfg.Oracle.Model != "" {
		opts = append(opts, oracle.WithModel(cfg.Oracle.Model))
	}
	return oracle.NewAnthropicClient(key, log, opts...), nil
}

const starterConfig = `# Storyforge configuration.
project: default
database_path: .storyforge/storyforge.db
output_dir: artifacts
language: javascript
oracle:
  provider: anthropic
  timeout_seconds: 30
  max_tokens: 4096
`

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(configFile); err == nil {
				return fmt.Errorf("%s already exists", configFile)
			}
			if err := os.WriteFile(configFile, []byte(starterConfig), 0o644); err != nil {
				return err
			}
			printSuccess("wrote %s", configFile)
			return nil
		},
	}
}

func newDecomposeCmd() *cobra.Command {
	var appendMode bool
	cmd := &cobra.Command{
		Use:   "decompose <requirements-file>...",
		Short: "Decompose requirement documents into an epic/story graph",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := buildLogger()
			defer log.Sync()

			table, err := loadTaxonomy(cfg)
			if err != nil {
				return err
			}

			blocks := make([]string, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("reading %s: %w", path, err)
				}
				blocks = append(blocks, string(data))
			}

			var extractOpts []facts.Option
			if client, cerr := buildOracleClient(cmd, cfg, log); cerr == nil {
				if _, disabled := client.(oracle.Disabled); !disabled {
					extractOpts = append(extractOpts, facts.WithSummarizer(facts.NewCachedSummarizer(client)))
				}
			}
			extracted, err := facts.NewExtractor(table, log, extractOpts...).Extract(facts.NewCorpus(blocks...))
			if err != nil {
				return err
			}

			st, err := store.New(cfg.DatabasePath, log)
			if err != nil {
				return err
			}
			defer st.Close()

			release := st.Lock(cfg.Project)
			defer release()

			mode := decompose.FullReplace
			var existing *decompose.EpicGraph
			if appendMode {
				mode = decompose.IncrementalAppend
				existing, err = st.LoadGraph(cmd.Context(), cfg.Project)
				if err != nil && !errors.Is(err, store.ErrNotFound) {
					return err
				}
			}

			result, err := decompose.NewDecomposer(table, log).Decompose(cmd.Context(), extracted, mode, existing)
			if err != nil {
				return err
			}
			if err := st.SaveGraph(cmd.Context(), cfg.Project, mode, result.Graph); err != nil {
				return err
			}

			for _, w := range result.Warnings {
				printWarning("%s", w)
			}
			printGraph(result.Graph)
			return nil
		},
	}
	cmd.Flags().BoolVar(&appendMode, "append", false, "append new epics to the existing graph instead of replacing it")
	return cmd
}

func printGraph(graph *decompose.EpicGraph) {
	printTitle("Decomposition %s", graph.RunID)
	printSeparator()
	for _, e := range graph.Epics {
		marker := "derived"
		if !e.Derived {
			marker = "suggested"
		}
		printInfo("[%d] %s (%s, %s, %s)", e.ID, e.Title, e.Category, marker, e.Priority)
		if e.SuggestionReason != "" {
			printInfo("    reason: %s", e.SuggestionReason)
		}
		for _, s := range graph.StoriesForEpic(e.ID) {
			fmt.Printf("    #%d (%dpt) %s\n", s.ID, s.Points, s.Title)
		}
	}
	printSeparator()
	printSuccess("%d epic(s), %d story(ies)", len(graph.Epics), len(graph.Stories))
}

func newSynthesizeCmd() *cobra.Command {
	var langToken string
	cmd := &cobra.Command{
		Use:   "synthesize <story-id>",
		Short: "Synthesize the four-artifact bundle for a story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			storyID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("story id must be a number, got %q", args[0])
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := buildLogger()
			defer log.Sync()

			st, err := store.New(cfg.DatabasePath, log)
			if err != nil {
				return err
			}
			defer st.Close()

			graph, err := st.LoadGraph(cmd.Context(), cfg.Project)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("project %q has no graph yet; run decompose first", cfg.Project)
				}
				return err
			}

			var story *decompose.Story
			for i := range graph.Stories {
				if graph.Stories[i].ID == storyID {
					story = &graph.Stories[i]
					break
				}
			}
			if story == nil {
				return fmt.Errorf("no story %d in project %q", storyID, cfg.Project)
			}

			token := langToken
			if token == "" {
				token = cfg.Language
			}
			profile := language.Resolve(token)
			if !profile.Known {
				printWarning("%s (%q); using %s", language.UnknownLanguageWarning, token, profile.DisplayName)
			}

			client, err := buildOracleClient(cmd, cfg, log)
			if err != nil {
				return err
			}
			synthesizer := synth.New(client, render.MustNew(), log,
				synth.WithTimeout(cfg.Oracle.Timeout()),
				synth.WithMaxTokens(cfg.Oracle.MaxTokens))

			bundle, err := synthesizer.Synthesize(cmd.Context(), *story, profile)
			if err != nil {
				return err
			}
			if _, err := st.SaveBundle(cmd.Context(), cfg.Project, bundle); err != nil {
				return err
			}

			if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
				return err
			}
			printTitle("Bundle for story #%d (%s)", story.ID, profile.DisplayName)
			for _, a := range bundle.Artifacts {
				path := filepath.Join(cfg.OutputDir, a.Filename)
				if err := os.WriteFile(path, []byte(a.Content), 0o644); err != nil {
					return err
				}
				printInfo("%-8s %-40s %s", a.Kind, a.Filename, a.GenerationMethod)
				for _, ep := range a.Endpoints {
					fmt.Printf("         %s %s\n", ep.Method, ep.Path)
				}
			}
			if bundle.Fallback() {
				printWarning("every artifact came from the template fallback")
			}
			printSuccess("wrote %d file(s) to %s", len(bundle.Artifacts), cfg.OutputDir)
			return nil
		},
	}
	cmd.Flags().StringVarP(&langToken, "language", "l", "", "target language token (e.g. \"Node.js (Express)\", \"python\")")
	return cmd
}

func newLanguagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List the supported language profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printTitle("Language profiles")
			for _, p := range language.Profiles() {
				printInfo("%-12s %-22s framework=%s tests=%s naming=%s",
					p.Key, p.DisplayName, p.FrameworkName, p.TestFramework, p.Naming)
			}
			d := language.DefaultProfile()
			printInfo("unknown tokens resolve to %s", d.DisplayName)
			return nil
		},
	}
}

func newTaxonomyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "taxonomy",
		Short: "List the service category taxonomy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			table, err := loadTaxonomy(cfg)
			if err != nil {
				return err
			}
			printTitle("Service taxonomy v%s", table.Version)
			for _, cat := range table.Categories {
				line := fmt.Sprintf("%-14s %s", cat.ID, cat.Name)
				if cat.Critical {
					line += " (critical)"
				}
				if len(cat.DependsOn) > 0 {
					line += " depends on " + strings.Join(cat.DependsOn, ", ")
				}
				printInfo("%s", line)
			}
			return nil
		},
	}
}

func newRunsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show the project's decomposition run log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := store.New(cfg.DatabasePath, buildLogger())
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.Runs(cmd.Context(), cfg.Project, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				printInfo("no runs recorded for project %q", cfg.Project)
				return nil
			}
			printTitle("Runs for project %q", cfg.Project)
			for _, r := range runs {
				printInfo("%s  %s  %-18s %d epic(s), %d story(ies)",
					r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Mode, r.EpicCount, r.StoryCount)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to show")
	return cmd
}
