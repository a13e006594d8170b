package audit

import (
	"context"
	"errors"
)

// ErrNoEntries is returned by Store.Latest when the trail is empty.
var ErrNoEntries = errors.New("audit: no entries")

// Store is the pluggable backend behind the hash chain — Postgres in
// production, sqlite for a single-node/dev deployment, per spec.
type Store interface {
	// Append persists entry. Callers guarantee entries arrive in strictly
	// increasing Sequence order (Trail serializes writers for this).
	Append(ctx context.Context, entry Entry) error
	// Latest returns the most recently appended entry, or ErrNoEntries.
	Latest(ctx context.Context) (Entry, error)
	// Recent returns up to limit entries, oldest first; limit <= 0 returns
	// every entry.
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}
