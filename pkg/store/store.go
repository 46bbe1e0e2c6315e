// Package store is the durable embedded relational store for neurons,
// synapses, the indexed-file manifest, and the query log. It owns all
// persistent state; every other package reaches the database only
// through this package.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/denizumutdereli/neuralrag/pkg/apierr"
	"github.com/denizumutdereli/neuralrag/pkg/core"
)

// currentSchemaVersion is the schema version this binary knows how to
// read and write. Opening a store stamped with a newer version is fatal.
const currentSchemaVersion = 1

// Invalidator is notified after any Store mutation that changes the set
// of neurons a similarity search should consider. pkg/vector.FlatIndex
// satisfies this trivially via its own Invalidate method.
type Invalidator interface {
	Invalidate()
}

// Store wraps a single-file SQLite database holding the full neuron/
// synapse graph for one project root.
type Store struct {
	db   *sql.DB
	path string

	invMu        sync.Mutex
	invalidators []Invalidator
}

// RegisterInvalidator subscribes inv to be notified after every neuron
// mutation (create, batch create, delete-by-file, clear-all). A caller
// that composes a Store with a vector.Index registers the index here so
// the index never serves stale results after a write.
func (s *Store) RegisterInvalidator(inv Invalidator) {
	s.invMu.Lock()
	defer s.invMu.Unlock()
	s.invalidators = append(s.invalidators, inv)
}

func (s *Store) notifyInvalidators() {
	s.invMu.Lock()
	invs := s.invalidators
	s.invMu.Unlock()
	for _, inv := range invs {
		inv.Invalidate()
	}
}

// Open opens (creating if absent) the brain database rooted at
// projectRoot/.neuralrag/brain.db, enables WAL journaling and foreign
// keys per cfg, and runs forward migrations.
func Open(ctx context.Context, projectRoot string, cfg *core.StorageConfig) (*Store, error) {
	if cfg == nil {
		cfg = &core.StorageConfig{WALEnabled: true, FsyncPolicy: "interval", StartupRepair: true}
	}

	dir := filepath.Join(projectRoot, ".neuralrag")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apierr.Wrap(apierr.StoreFailure, "creating store directory %s: %v", dir, err)
	}
	dbPath := filepath.Join(dir, "brain.db")

	dsn := dbPath
	if cfg.WALEnabled {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	} else {
		dsn += "?_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apierr.Wrap(apierr.StoreFailure, "opening store at %s: %v", dbPath, err)
	}
	db.SetMaxOpenConns(1) // single-writer; modernc.org/sqlite serializes per-connection anyway

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apierr.Wrap(apierr.StoreFailure, "pinging store at %s: %v", dbPath, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, apierr.Wrap(apierr.StoreFailure, "enabling foreign keys: %v", err)
	}

	if err := applySynchronousPragma(ctx, db, cfg.FsyncPolicy); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, path: dbPath}

	if cfg.StartupRepair {
		if err := s.integrityCheck(ctx); err != nil {
			// Best-effort: log and continue, per spec's crash-safety note —
			// a corrupt store surfaces concretely on the first failing query.
			fmt.Fprintf(os.Stderr, "⚠ [store] integrity check warning: %v\n", err)
		}
	}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func applySynchronousPragma(ctx context.Context, db *sql.DB, policy string) error {
	var level string
	switch strings.ToLower(policy) {
	case "always":
		level = "FULL"
	case "off":
		level = "OFF"
	default: // "interval" and anything unset maps to the WAL-friendly default
		level = "NORMAL"
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA synchronous = %s", level)); err != nil {
		return apierr.Wrap(apierr.StoreFailure, "setting synchronous pragma: %v", err)
	}
	return nil
}

func (s *Store) integrityCheck(ctx context.Context) error {
	var result string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("running integrity_check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity_check reported: %s", result)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the backing database file.
func (s *Store) Path() string {
	return s.path
}

// migrate creates the schema tables (idempotently, via CREATE TABLE IF
// NOT EXISTS) and then applies forward, idempotent migration steps
// keyed off _meta.schema_version.
func (s *Store) migrate(ctx context.Context) error {
	const initialSchema = `
CREATE TABLE IF NOT EXISTS _meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS neurons (
	id                TEXT PRIMARY KEY,
	content           TEXT NOT NULL,
	summary           TEXT NOT NULL DEFAULT '',
	embedding         BLOB,
	file_path         TEXT NOT NULL,
	start_line        INTEGER NOT NULL,
	end_line          INTEGER NOT NULL,
	type              TEXT NOT NULL,
	name              TEXT NOT NULL DEFAULT '',
	language          TEXT NOT NULL DEFAULT '',
	activation_count  INTEGER NOT NULL DEFAULT 0,
	last_activated     TEXT,
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_neurons_file_path ON neurons(file_path);
CREATE INDEX IF NOT EXISTS idx_neurons_type      ON neurons(type);
CREATE INDEX IF NOT EXISTS idx_neurons_name      ON neurons(name);

CREATE TABLE IF NOT EXISTS synapses (
	id         TEXT PRIMARY KEY,
	source_id  TEXT NOT NULL REFERENCES neurons(id) ON DELETE CASCADE,
	target_id  TEXT NOT NULL REFERENCES neurons(id) ON DELETE CASCADE,
	weight     REAL NOT NULL,
	type       TEXT NOT NULL,
	metadata   TEXT,
	fire_count INTEGER NOT NULL DEFAULT 0,
	last_fired TEXT,
	created_at TEXT NOT NULL,
	UNIQUE(source_id, target_id, type)
);

CREATE INDEX IF NOT EXISTS idx_synapses_source ON synapses(source_id);
CREATE INDEX IF NOT EXISTS idx_synapses_target ON synapses(target_id);
CREATE INDEX IF NOT EXISTS idx_synapses_type   ON synapses(type);

CREATE TABLE IF NOT EXISTS indexed_files (
	path          TEXT PRIMARY KEY,
	language      TEXT NOT NULL DEFAULT '',
	neuron_count  INTEGER NOT NULL DEFAULT 0,
	content_hash  TEXT NOT NULL DEFAULT '',
	last_indexed  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS query_log (
	id                   TEXT PRIMARY KEY,
	query                TEXT NOT NULL,
	activated_neuron_ids TEXT NOT NULL,
	used_neuron_ids      TEXT,
	timestamp            TEXT NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, initialSchema); err != nil {
		return apierr.Wrap(apierr.StoreFailure, "applying initial schema: %v", err)
	}

	version, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}

	if version > currentSchemaVersion {
		return apierr.Wrap(apierr.StoreFailure, "store schema version %d is newer than this binary's %d", version, currentSchemaVersion)
	}

	// Forward, idempotent migration steps. None needed yet beyond the
	// initial schema (version 1), but the shape mirrors how later steps
	// would be appended: `if version < N { ...; version = N }`.
	if version < 1 {
		version = 1
	}

	return s.setSchemaVersion(ctx, version)
}

func (s *Store) schemaVersion(ctx context.Context) (int, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM _meta WHERE key = 'schema_version'").Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, apierr.Wrap(apierr.StoreFailure, "reading schema_version: %v", err)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apierr.Wrap(apierr.StoreFailure, "parsing schema_version %q: %v", raw, err)
	}
	return v, nil
}

func (s *Store) setSchemaVersion(ctx context.Context, version int) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO _meta(key, value) VALUES ('schema_version', ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		strconv.Itoa(version))
	if err != nil {
		return apierr.Wrap(apierr.StoreFailure, "writing schema_version: %v", err)
	}
	return nil
}

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"
