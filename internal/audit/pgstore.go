package audit

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore is the production Store backend, matching
// internal/state.PostgresStore's pool+stdlib-bridge+goose shape.
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
		return nil, fmt.Errorf("audit: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: ping postgres: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: run migrations: %w", err)
	}

	return &PostgresStore{pool: pool, logger: logger}, nil
}

func (s *PostgresStore) Append(ctx context.Context, e Entry) error {
	const q = `
		INSERT INTO audit_entries (
			sequence, hash, prev_hash, action, initiator, result, payload_ref, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, q, e.Sequence, e.Hash, e.PrevHash, e.Action, e.Initiator, e.Result, e.PayloadRef, e.Timestamp)
	if err != nil {
		return fmt.Errorf("audit: insert entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Latest(ctx context.Context) (Entry, error) {
	const q = `
		SELECT sequence, hash, prev_hash, action, initiator, result, payload_ref, timestamp
		FROM audit_entries ORDER BY sequence DESC LIMIT 1`

	var e Entry
	err := s.pool.QueryRow(ctx, q).Scan(&e.Sequence, &e.Hash, &e.PrevHash, &e.Action, &e.Initiator, &e.Result, &e.PayloadRef, &e.Timestamp)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return Entry{}, ErrNoEntries
		}
		return Entry{}, fmt.Errorf("audit: query latest entry: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	const q = `
		SELECT sequence, hash, prev_hash, action, initiator, result, payload_ref, timestamp
		FROM audit_entries ORDER BY sequence DESC LIMIT $1`

	var lim any = limit
	if limit <= 0 {
		lim = nil // postgres: LIMIT NULL means no limit
	}
	rows, err := s.pool.Query(ctx, q, lim)
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

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
