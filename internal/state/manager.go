package state

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/autodevd/daemon/internal/module"
)

// Store persists snapshots durably, independent of the in-memory Ring each
// Manager keeps for fast restore. Production wires a Postgres-backed store
// (internal/state/pgstore.go); single-node/dev deployments wire the
// pure-Go sqlite store (internal/state/sqlitestore.go).
type Store interface {
	Append(ctx context.Context, s Snapshot) error
	Recent(ctx context.Context, moduleID string, limit int) ([]Snapshot, error)
	Close() error
}

// Manager owns the per-module ring buffers and drives the diff/migration
// engines the Hot-Reload Coordinator's Snapshotting and Swapping phases
// call into. It is the concrete home of the spec's "State Manager"
// component (C7).
type Manager struct {
	mu        sync.RWMutex
	rings     map[string]*Ring
	ringCap   int
	store     Store
	migration *MigrationEngine
	logger    *slog.Logger

	// fullEvery snapshots a full copy every Nth call regardless of diffing,
	// bounding restore cost per the Design Notes' "prefer periodic full
	// snapshots (every Nth)" guidance. 0 disables periodic forcing (every
	// snapshot after the first is differential until evicted).
	fullEvery int
	counts    map[string]int

	// lastData is the last full state map captured per module, independent
	// of whatever the ring's most recent entry records (full snapshot data
	// or a diff's merge patch). Differential diffs against this, not the
	// previous Snapshot's own Data, so a chain of differential captures
	// diffs each step against the true prior state rather than compounding
	// against another diff's partial view of it.
	lastData map[string]map[string]any
}

// Config configures a Manager.
type Config struct {
	RingCapacity int
	Store        Store
	Migration    *MigrationEngine
	Logger       *slog.Logger
	FullEvery    int
}

// NewManager builds a Manager. Store may be nil for a purely in-memory
// manager (tests, or a deployment with no persistence configured).
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	migration := cfg.Migration
	if migration == nil {
		migration = NewMigrationEngine()
	}
	return &Manager{
		rings:     make(map[string]*Ring),
		ringCap:   cfg.RingCapacity,
		store:     cfg.Store,
		migration: migration,
		logger:    logger,
		fullEvery: cfg.FullEvery,
		counts:    make(map[string]int),
		lastData:  make(map[string]map[string]any),
	}
}

func (m *Manager) ringFor(moduleID string) *Ring {
	if r, ok := m.rings[moduleID]; ok {
		return r
	}
	r := NewRing(m.ringCap)
	m.rings[moduleID] = r
	return r
}

// Capture takes a snapshot of s, choosing full vs differential based on
// whether a previous snapshot exists and the periodic full-snapshot
// cadence, then pushes it onto the module's ring and (if a Store is
// configured) persists it durably.
func (m *Manager) Capture(ctx context.Context, moduleID string, s module.State) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ring := m.ringFor(moduleID)
	m.counts[moduleID]++

	prev, havePrev := ring.Latest()
	prevData, havePrevData := m.lastData[moduleID]
	forceFull := m.fullEvery > 0 && m.counts[moduleID]%m.fullEvery == 0

	var snap Snapshot
	var err error
	switch {
	case !havePrev || !havePrevData || forceFull || !prev.Version.CompatibleWith(s.Version):
		snap = Full(moduleID, s, nil)
	default:
		changed := ChangedKeys(prevData, s.Data)
		if len(changed) == 0 {
			snap = Full(moduleID, s, map[string]any{"unchanged": true})
		} else {
			snap, err = Differential(moduleID, s, prev.Version, prevData)
			if err != nil {
				return Snapshot{}, err
			}
		}
	}

	ring.Push(snap)
	m.lastData[moduleID] = cloneMap(s.Data)

	if m.store != nil {
		if err := m.store.Append(ctx, snap); err != nil {
			m.logger.Warn("state: persist snapshot failed", "module_id", moduleID, "error", err)
			return snap, fmt.Errorf("state: persist snapshot: %w", err)
		}
	}

	return snap, nil
}

// Restore reconstructs a module's most recent state, applying a
// registered MigrationRule chain when the snapshot's StateVersion is
// incompatible with target. Returns ErrNoMigrationPath, unwrapped via
// errors.Is, when no rule bridges the gap — never silently drops data.
func (m *Manager) Restore(moduleID string, target module.StateVersion) (module.State, error) {
	m.mu.RLock()
	ring, ok := m.rings[moduleID]
	m.mu.RUnlock()
	if !ok {
		return module.State{}, fmt.Errorf("state: no snapshot history for module %q", moduleID)
	}

	full, diffs, ok := ring.NearestFull()
	if !ok {
		return module.State{}, fmt.Errorf("state: no full snapshot to restore from for module %q", moduleID)
	}
	data, err := Reconstruct(full, diffs)
	if err != nil {
		return module.State{}, err
	}
	sourceVersion := full.Version
	if len(diffs) > 0 {
		sourceVersion = diffs[len(diffs)-1].Version
	}

	if !sourceVersion.CompatibleWith(target) {
		migrated, err := m.migration.Migrate(data, sourceVersion, target)
		if err != nil {
			return module.State{}, err
		}
		data = migrated
	}

	return module.State{Version: target, Data: data}, nil
}

// Snapshots returns the in-memory history for a module, oldest first.
func (m *Manager) Snapshots(moduleID string) []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ring, ok := m.rings[moduleID]
	if !ok {
		return nil
	}
	return ring.All()
}

// RegisterMigration adds a migration rule to the manager's engine.
func (m *Manager) RegisterMigration(r MigrationRule) {
	m.migration.Register(r)
}
