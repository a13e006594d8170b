package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/autodevd/daemon/internal/module"
)

// SQLiteStore is the single-node/dev Store backend: pure-Go sqlite via
// modernc.org/sqlite, matching the teacher's SQLiteDatabase adapter shape.
// Schema here is created in-code rather than through goose — sqlite's
// dialect (no JSONB/BIGSERIAL) diverges enough from the Postgres
// migration that the teacher's own sqlite adapter takes the same
// in-code-schema shortcut for its dev/test role.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (creating if needed) a sqlite database at path and
// ensures its schema exists. path may be ":memory:" for tests.
func NewSQLiteStore(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("state: create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("state: open sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		logger.Warn("state: failed to enable WAL mode", "error", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: ping sqlite: %w", err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS state_snapshots (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		module_id   TEXT NOT NULL,
		major       INTEGER NOT NULL,
		minor       INTEGER NOT NULL,
		patch       INTEGER NOT NULL,
		pre_release TEXT NOT NULL DEFAULT '',
		schema_ver  INTEGER NOT NULL,
		is_diff     INTEGER NOT NULL DEFAULT 0,
		prev_major  INTEGER,
		prev_schema INTEGER,
		data        TEXT NOT NULL,
		metadata    TEXT NOT NULL DEFAULT '{}',
		created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_state_snapshots_module_created
		ON state_snapshots(module_id, created_at DESC);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: create schema: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Append persists a snapshot row.
func (s *SQLiteStore) Append(ctx context.Context, snap Snapshot) error {
	// The data column stores a full snapshot's state map for full
	// snapshots and a diff snapshot's raw JSON merge patch for diff
	// snapshots — both are already JSON, so one column serves either.
	var dataJSON []byte
	var err error
	if snap.Diff {
		dataJSON = snap.Patch
	} else {
		dataJSON, err = json.Marshal(snap.Data)
		if err != nil {
			return fmt.Errorf("state: marshal snapshot data: %w", err)
		}
	}
	metaJSON, err := json.Marshal(snap.Metadata)
	if err != nil {
		return fmt.Errorf("state: marshal snapshot metadata: %w", err)
	}

	var prevMajor, prevSchema *uint64
	if snap.PrevVersion != nil {
		major, schema := snap.PrevVersion.Major, snap.PrevVersion.Schema
		prevMajor, prevSchema = &major, &schema
	}

	const q = `
		INSERT INTO state_snapshots (
			module_id, major, minor, patch, pre_release, schema_ver,
			is_diff, prev_major, prev_schema, data, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, q,
		snap.ModuleID,
		snap.Version.Major, snap.Version.Minor, snap.Version.Patch, snap.Version.PreRelease,
		snap.Version.Schema,
		snap.Diff, prevMajor, prevSchema,
		string(dataJSON), string(metaJSON),
	)
	if err != nil {
		return fmt.Errorf("state: insert snapshot: %w", err)
	}
	return nil
}

// Recent returns the limit most recent snapshots for moduleID, oldest first.
func (s *SQLiteStore) Recent(ctx context.Context, moduleID string, limit int) ([]Snapshot, error) {
	const q = `
		SELECT major, minor, patch, pre_release, schema_ver, is_diff,
		       prev_major, prev_schema, data, metadata, created_at
		FROM state_snapshots
		WHERE module_id = ?
		ORDER BY created_at DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, q, moduleID, limit)
	if err != nil {
		return nil, fmt.Errorf("state: query snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		var dataJSON, metaJSON string
		var prevMajor, prevSchema *uint64
		snap.ModuleID = moduleID

		if err := rows.Scan(
			&snap.Version.Major, &snap.Version.Minor, &snap.Version.Patch, &snap.Version.PreRelease,
			&snap.Version.Schema, &snap.Diff, &prevMajor, &prevSchema,
			&dataJSON, &metaJSON, &snap.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("state: scan snapshot row: %w", err)
		}

		if snap.Diff {
			snap.Patch = []byte(dataJSON)
		} else if err := json.Unmarshal([]byte(dataJSON), &snap.Data); err != nil {
			return nil, fmt.Errorf("state: unmarshal snapshot data: %w", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &snap.Metadata); err != nil {
			return nil, fmt.Errorf("state: unmarshal snapshot metadata: %w", err)
		}
		if prevMajor != nil && prevSchema != nil {
			snap.PrevVersion = &module.StateVersion{
				Version: module.Version{Major: *prevMajor},
				Schema:  *prevSchema,
			}
		}

		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("state: iterate snapshot rows: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
