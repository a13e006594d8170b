package state

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/autodevd/daemon/internal/module"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore is the production-grade Store backend: a connection pool
// over Postgres, schema-managed by goose, matching the teacher's
// PostgresDatabase adapter shape (pool + stdlib bridge + goose-migrated
// schema) but scoped to one snapshots table instead of the alert schema.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore connects to dsn, runs pending goose migrations, and
// returns a ready Store.
func NewPostgresStore(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("state: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("state: ping postgres: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("state: set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("state: run migrations: %w", err)
	}

	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Append persists a snapshot row.
func (s *PostgresStore) Append(ctx context.Context, snap Snapshot) error {
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
			module_id, major, minor, patch, pre_release, schema,
			is_diff, prev_major, prev_schema, data, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = s.pool.Exec(ctx, q,
		snap.ModuleID,
		snap.Version.Major, snap.Version.Minor, snap.Version.Patch, snap.Version.PreRelease,
		snap.Version.Schema,
		snap.Diff, prevMajor, prevSchema,
		dataJSON, metaJSON,
	)
	if err != nil {
		return fmt.Errorf("state: insert snapshot: %w", err)
	}
	return nil
}

// Recent returns the limit most recent snapshots for moduleID, oldest first.
func (s *PostgresStore) Recent(ctx context.Context, moduleID string, limit int) ([]Snapshot, error) {
	const q = `
		SELECT major, minor, patch, pre_release, schema, is_diff,
		       prev_major, prev_schema, data, metadata, created_at
		FROM state_snapshots
		WHERE module_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, q, moduleID, limit)
	if err != nil {
		return nil, fmt.Errorf("state: query snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		var dataJSON, metaJSON []byte
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
			snap.Patch = dataJSON
		} else if err := json.Unmarshal(dataJSON, &snap.Data); err != nil {
			return nil, fmt.Errorf("state: unmarshal snapshot data: %w", err)
		}
		if err := json.Unmarshal(metaJSON, &snap.Metadata); err != nil {
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

	// reverse to oldest-first, matching Ring's ordering convention
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
