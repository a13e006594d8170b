// Package state implements the State Manager (spec component C7):
// versioned snapshots of a module's hot-reload state, full and
// differential, kept in a bounded per-module ring buffer, plus the diff
// and migration engines the Hot-Reload Coordinator (C6) drives during a
// Swap phase.
package state

import (
	"fmt"
	"time"

	"github.com/autodevd/daemon/internal/module"
)

// Snapshot is a point-in-time capture of a module's state, full or
// differential. A differential snapshot records only its JSON merge patch
// against PrevVersion's materialized data and must not be restored without
// first resolving that predecessor.
type Snapshot struct {
	ModuleID  string
	Version   module.StateVersion
	CreatedAt time.Time
	// Data holds the full state map for a full snapshot. Diff snapshots
	// leave this nil; their content lives in Patch.
	Data map[string]any
	// Patch holds a JSON merge patch (RFC 7396) from the predecessor
	// named by PrevVersion to this snapshot's state, for diff snapshots
	// only. A merge patch encodes a removed key as JSON null, so
	// reconstruction honors deletions as well as additions and
	// modifications (see Reconstruct).
	Patch       []byte
	Metadata    map[string]any
	Diff        bool
	PrevVersion *module.StateVersion
}

// Full returns a full snapshot over the given state.
func Full(moduleID string, s module.State, meta map[string]any) Snapshot {
	return Snapshot{
		ModuleID:  moduleID,
		Version:   s.Version,
		CreatedAt: time.Now(),
		Data:      cloneMap(s.Data),
		Metadata:  meta,
	}
}

// Differential returns a diff snapshot naming prevVersion as its restore
// predecessor, recording a JSON merge patch from prevData to s.Data via
// Patch (diff.go). Metadata still carries the changed-key list for
// observability, but restoration goes through the merge patch, not that
// list, so a key removed between captures is preserved as a deletion
// rather than silently dropped.
func Differential(moduleID string, s module.State, prevVersion module.StateVersion, prevData map[string]any) (Snapshot, error) {
	patch, err := Patch(prevData, s.Data)
	if err != nil {
		return Snapshot{}, fmt.Errorf("state: compute differential snapshot for module %q: %w", moduleID, err)
	}
	changed := ChangedKeys(prevData, s.Data)
	return Snapshot{
		ModuleID:    moduleID,
		Version:     s.Version,
		CreatedAt:   time.Now(),
		Patch:       patch,
		Metadata:    map[string]any{"changed_fields": changed},
		Diff:        true,
		PrevVersion: &prevVersion,
	}, nil
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Ring is a bounded, ordered per-module snapshot history. Oldest entries
// are evicted once the capacity is exceeded, per spec §3 ("ordered
// per-module ring buffer (bounded, default 10; oldest evicted)").
type Ring struct {
	capacity int
	entries  []Snapshot
}

// DefaultRingCapacity is the spec's default ring size.
const DefaultRingCapacity = 10

// NewRing returns a Ring with the given capacity, or DefaultRingCapacity
// if capacity <= 0.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &Ring{capacity: capacity}
}

// Push appends a snapshot, evicting the oldest entry if the ring is full.
func (r *Ring) Push(s Snapshot) {
	r.entries = append(r.entries, s)
	if len(r.entries) > r.capacity {
		r.entries = r.entries[len(r.entries)-r.capacity:]
	}
}

// Latest returns the most recently pushed snapshot.
func (r *Ring) Latest() (Snapshot, bool) {
	if len(r.entries) == 0 {
		return Snapshot{}, false
	}
	return r.entries[len(r.entries)-1], true
}

// All returns the ring's entries, oldest first.
func (r *Ring) All() []Snapshot {
	out := make([]Snapshot, len(r.entries))
	copy(out, r.entries)
	return out
}

// NearestFull walks backwards from the latest entry to the nearest full
// (non-diff) snapshot, returning the chain of diffs that must be replayed
// on top of it in forward order, per the Design Notes' "walk backwards to
// the nearest full snapshot" restore strategy.
func (r *Ring) NearestFull() (full Snapshot, diffs []Snapshot, ok bool) {
	for i := len(r.entries) - 1; i >= 0; i-- {
		if !r.entries[i].Diff {
			full = r.entries[i]
			diffs = make([]Snapshot, len(r.entries[i+1:]))
			copy(diffs, r.entries[i+1:])
			return full, diffs, true
		}
	}
	return Snapshot{}, nil, false
}

// Reconstruct replays a full snapshot and its forward diff chain into a
// single materialized state data map, applying each diff's merge patch in
// order so that a key removed between two captures (encoded in the patch
// as JSON null) is removed from the result rather than left stale.
func Reconstruct(full Snapshot, diffs []Snapshot) (map[string]any, error) {
	data := cloneMap(full.Data)
	for _, d := range diffs {
		merged, err := ApplyPatch(data, d.Patch)
		if err != nil {
			return nil, fmt.Errorf("state: reconstruct module %q: %w", d.ModuleID, err)
		}
		data = merged
	}
	return data, nil
}
