package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// ErrTamperedChain is returned by Verify when an entry's stored hash
// doesn't match its recomputed hash, or its PrevHash doesn't match its
// predecessor's Hash.
var ErrTamperedChain = errors.New("audit: hash chain verification failed")

// rotatable is implemented by *lumberjack.Logger; kept narrow so this
// package doesn't need to import lumberjack just to type-assert it.
type rotatable interface {
	Rotate() error
}

// Trail is the single-writer lane over a Store: every Append is
// serialized behind one mutex so Sequence numbers and the hash chain
// never race, matching spec §4.8's append-only/hash-chained contract.
// A human-readable mirror line is also written per entry, rotated
// independently by lumberjack (per SPEC_FULL's ambient logging stack)
// when mirror is a *lumberjack.Logger.
type Trail struct {
	mu     sync.Mutex
	store  Store
	mirror io.Writer
	logger *slog.Logger

	seq      int64
	lastHash string
}

// NewTrail seeds a Trail from the store's latest entry (or the genesis
// hash if the store is empty) and returns it ready for Append.
func NewTrail(ctx context.Context, store Store, mirror io.Writer, logger *slog.Logger) (*Trail, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if mirror == nil {
		mirror = io.Discard
	}

	t := &Trail{store: store, mirror: mirror, logger: logger}

	latest, err := store.Latest(ctx)
	switch {
	case errors.Is(err, ErrNoEntries):
		t.seq = 0
		t.lastHash = GenesisHash
	case err != nil:
		return nil, fmt.Errorf("audit: load latest entry: %w", err)
	default:
		t.seq = latest.Sequence
		t.lastHash = latest.Hash
	}
	return t, nil
}

// Append records one audit entry and returns it. Action, initiator, and
// result are free-form; payloadRef is an opaque pointer to a larger
// artifact (a diff, a ProposedChange ID, …) stored elsewhere.
func (t *Trail) Append(ctx context.Context, action, initiator, result, payloadRef string) (Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := Entry{
		Sequence:   t.seq + 1,
		PrevHash:   t.lastHash,
		Action:     action,
		Initiator:  initiator,
		Result:     result,
		PayloadRef: payloadRef,
		Timestamp:  time.Now().UTC(),
	}
	e.Hash = computeHash(e)

	if err := t.store.Append(ctx, e); err != nil {
		return Entry{}, fmt.Errorf("audit: append entry: %w", err)
	}

	t.seq = e.Sequence
	t.lastHash = e.Hash

	fmt.Fprintf(t.mirror, "%s seq=%d action=%s initiator=%s result=%s hash=%s prev=%s\n",
		e.Timestamp.Format(time.RFC3339), e.Sequence, e.Action, e.Initiator, e.Result, e.Hash, e.PrevHash)

	return e, nil
}

// Rotate seals the current segment with a terminal "segment-sealed"
// entry and, if the mirror supports it (a *lumberjack.Logger does),
// forces the human-readable mirror to roll over to a fresh file. The
// hash chain itself needs no new table: the next entry's PrevHash is
// already this terminal entry's Hash, satisfying "the new segment's
// first entry records the prior segment's terminal hash" without any
// special-casing.
func (t *Trail) Rotate(ctx context.Context, initiator string) (Entry, error) {
	terminal, err := t.Append(ctx, "segment-sealed", initiator, "sealed", "")
	if err != nil {
		return Entry{}, err
	}
	if r, ok := t.mirror.(rotatable); ok {
		if err := r.Rotate(); err != nil {
			t.logger.Warn("audit: mirror rotation failed", "error", err)
		}
	}
	return terminal, nil
}

// Verify walks up to limit recent entries (0 for all available from the
// store) and recomputes the hash chain, returning ErrTamperedChain if any
// entry's hash or chain linkage doesn't match.
func (t *Trail) Verify(ctx context.Context, limit int) error {
	entries, err := t.store.Recent(ctx, limit)
	if err != nil {
		return fmt.Errorf("audit: load entries for verification: %w", err)
	}

	for i, e := range entries {
		if i > 0 && e.PrevHash != entries[i-1].Hash {
			return fmt.Errorf("%w: entry %d prev_hash does not match entry %d hash", ErrTamperedChain, e.Sequence, entries[i-1].Sequence)
		}
		if computeHash(e) != e.Hash {
			return fmt.Errorf("%w: entry %d hash mismatch", ErrTamperedChain, e.Sequence)
		}
	}
	return nil
}
