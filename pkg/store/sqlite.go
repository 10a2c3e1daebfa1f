// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package store persists decomposition graphs and artifact bundles in
// SQLite, one graph per project plus an append-only run log. It also
// owns the per-project locks that keep decomposition runs single
// flight: the engine core is stateless between calls and relies on
// this package for mutual exclusion.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/storyforge/pkg/decompose"
	"github.com/mesh-intelligence/storyforge/pkg/synth"
)

// ErrNotFound is returned when a project has no stored graph.
var ErrNotFound = errors.New("store: not found")

// RunRecord is one entry in the append-only decomposition run log.
type RunRecord struct {
	ID         string    `json:"id"`
	Project    string    `json:"project"`
	Mode       string    `json:"mode"`
	EpicCount  int       `json:"epicCount"`
	StoryCount int       `json:"storyCount"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Store is the SQLite-backed persistence collaborator.
type Store struct {
	db      *sql.DB
	entropy *rand.Rand
	log     *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New opens or creates the database at dbPath. A nil logger is
// replaced with a no-op one.
func New(dbPath string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &Store{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
		log:     log,
		locks:   make(map[string]*sync.Mutex),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS graphs (
		project          TEXT PRIMARY KEY,
		run_id           TEXT NOT NULL,
		taxonomy_version TEXT NOT NULL,
		payload          TEXT NOT NULL,
		updated_at       TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		project     TEXT NOT NULL,
		mode        TEXT NOT NULL,
		epic_count  INTEGER NOT NULL,
		story_count INTEGER NOT NULL,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_project ON runs(project, created_at DESC);

	CREATE TABLE IF NOT EXISTS bundles (
		id          TEXT PRIMARY KEY,
		project     TEXT NOT NULL,
		story_id    INTEGER NOT NULL,
		profile_key TEXT NOT NULL,
		payload     TEXT NOT NULL,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_bundles_story ON bundles(project, story_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Lock acquires the single-flight lock for a project and returns its
// release function. Callers hold it around a decompose invocation, not
// around oracle calls.
func (s *Store) Lock(project string) func() {
	s.mu.Lock()
	l, ok := s.locks[project]
	if !ok {
		l = new(sync.Mutex)
		s.locks[project] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// SaveGraph stores a project's graph and appends a run record. The
// graph handed in is already complete for its mode: a full-replace
// graph simply overwrites, an incremental-append graph is the union
// the decomposer produced. The previous graph row is replaced either
// way.
func (s *Store) SaveGraph(ctx context.Context, project string, mode decompose.Mode, graph *decompose.EpicGraph) error {
	payload, err := json.Marshal(graph)
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO graphs (project, run_id, taxonomy_version, payload, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(project) DO UPDATE SET
			run_id = excluded.run_id,
			taxonomy_version = excluded.taxonomy_version,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		project, graph.RunID, graph.TaxonomyVersion, string(payload), now)
	if err != nil {
		return fmt.Errorf("save graph: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, project, mode, epic_count, story_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.newID(), project, mode.String(), len(graph.Epics), len(graph.Stories), now)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.log.Debug("graph saved",
		zap.String("project", project),
		zap.String("mode", mode.String()),
		zap.Int("epics", len(graph.Epics)),
		zap.Int("stories", len(graph.Stories)))
	return nil
}

// LoadGraph returns the stored graph for a project, or ErrNotFound.
func (s *Store) LoadGraph(ctx context.Context, project string) (*decompose.EpicGraph, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM graphs WHERE project = ?`, project).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load graph: %w", err)
	}
	var graph decompose.EpicGraph
	if err := json.Unmarshal([]byte(payload), &graph); err != nil {
		return nil, fmt.Errorf("unmarshal graph: %w", err)
	}
	return &graph, nil
}

// Runs lists a project's run log, newest first.
func (s *Store) Runs(ctx context.Context, project string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project, mode, epic_count, story_count, created_at
		FROM runs WHERE project = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		project, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var created string
		if err := rows.Scan(&r.ID, &r.Project, &r.Mode, &r.EpicCount, &r.StoryCount, &created); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveBundle stores a synthesized bundle and returns its id.
func (s *Store) SaveBundle(ctx context.Context, project string, bundle *synth.Bundle) (string, error) {
	payload, err := json.Marshal(bundle)
	if err != nil {
		return "", fmt.Errorf("marshal bundle: %w", err)
	}
	id := s.newID()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bundles (id, project, story_id, profile_key, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, project, bundle.StoryID, bundle.Profile.Key, string(payload),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("save bundle: %w", err)
	}
	return id, nil
}

// BundlesForStory returns a story's bundles, oldest first.
func (s *Store) BundlesForStory(ctx context.Context, project string, storyID int) ([]synth.Bundle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM bundles
		WHERE project = ? AND story_id = ? ORDER BY created_at, id`,
		project, storyID)
	if err != nil {
		return nil, fmt.Errorf("list bundles: %w", err)
	}
	defer rows.Close()

	var out []synth.Bundle
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan bundle: %w", err)
		}
		var b synth.Bundle
		if err := json.Unmarshal([]byte(payload), &b); err != nil {
			return nil, fmt.Errorf("unmarshal bundle: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
