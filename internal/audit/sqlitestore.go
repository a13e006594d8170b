package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the single-node/dev Store backend, matching
// internal/state.SQLiteStore's in-code-schema shortcut.
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
			return nil, fmt.Errorf("audit: create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		logger.Warn("audit: failed to enable WAL mode", "error", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: ping sqlite: %w", err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS audit_entries (
		sequence    INTEGER PRIMARY KEY,
		hash        TEXT NOT NULL,
		prev_hash   TEXT NOT NULL,
		action      TEXT NOT NULL,
		initiator   TEXT NOT NULL,
		result      TEXT NOT NULL,
		payload_ref TEXT NOT NULL DEFAULT '',
		timestamp   TIMESTAMP NOT NULL
	);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: create schema: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, e Entry) error {
	const q = `
		INSERT INTO audit_entries (
			sequence, hash, prev_hash, action, initiator, result, payload_ref, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q, e.Sequence, e.Hash, e.PrevHash, e.Action, e.Initiator, e.Result, e.PayloadRef, e.Timestamp)
	if err != nil {
		return fmt.Errorf("audit: insert entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Latest(ctx context.Context) (Entry, error) {
	const q = `
		SELECT sequence, hash, prev_hash, action, initiator, result, payload_ref, timestamp
		FROM audit_entries ORDER BY sequence DESC LIMIT 1`

	var e Entry
	err := s.db.QueryRowContext(ctx, q).Scan(&e.Sequence, &e.Hash, &e.PrevHash, &e.Action, &e.Initiator, &e.Result, &e.PayloadRef, &e.Timestamp)
	if err != nil {
		if err == sql.ErrNoRows {
			return Entry{}, ErrNoEntries
		}
		return Entry{}, fmt.Errorf("audit: query latest entry: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	const q = `
		SELECT sequence, hash, prev_hash, action, initiator, result, payload_ref, timestamp
		FROM audit_entries ORDER BY sequence DESC LIMIT ?`

	if limit <= 0 {
		limit = -1 // sqlite: a negative LIMIT means no limit
	}
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query recent entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Sequence, &e.Hash, &e.PrevHash, &e.Action, &e.Initiator, &e.Result, &e.PayloadRef, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("audit: scan entry row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate entry rows: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
