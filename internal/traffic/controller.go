package traffic

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// DefaultBufferCapacity is the spec's default bounded FIFO buffer size.
const DefaultBufferCapacity = 10_000

// AuditLogger is the narrow interface the Traffic Controller needs to
// record a force_drain override — the same decoupling pattern used by
// internal/sandbox's AuditLogger, so this package never imports the audit
// package directly.
type AuditLogger interface {
	Record(moduleID, action, reason string)
}

type moduleTraffic struct {
	snap   atomic.Value // snapshot
	ringMu sync.Mutex
	ring   *ring
}

func newModuleTraffic(bufferCapacity int) *moduleTraffic {
	m := &moduleTraffic{ring: newRing(bufferCapacity)}
	m.snap.Store(snapshot{state: Normal})
	return m
}

func (m *moduleTraffic) load() snapshot {
	return m.snap.Load().(snapshot)
}

// Controller owns one moduleTraffic per registered module id. It is the
// sole API surface the Hot-Reload Coordinator (C6) uses to gate request
// flow during a reload (spec §4.6).
type Controller struct {
	mu             sync.RWMutex
	modules        map[string]*moduleTraffic
	bufferCapacity int
	audit          AuditLogger
}

// Config configures a Controller.
type Config struct {
	BufferCapacity int
	Audit          AuditLogger
}

// NewController builds a Controller. BufferCapacity defaults to
// DefaultBufferCapacity when <= 0.
func NewController(cfg Config) *Controller {
	cap_ := cfg.BufferCapacity
	if cap_ <= 0 {
		cap_ = DefaultBufferCapacity
	}
	return &Controller{
		modules:        make(map[string]*moduleTraffic),
		bufferCapacity: cap_,
		audit:          cfg.Audit,
	}
}

func (c *Controller) moduleFor(id string) *moduleTraffic {
	c.mu.RLock()
	m, ok := c.modules[id]
	c.mu.RUnlock()
	if ok {
		return m
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.modules[id]; ok {
		return m
	}
	m = newModuleTraffic(c.bufferCapacity)
	c.modules[id] = m
	return m
}

// StartDraining transitions a module from Normal to Draining. Legal only
// from Normal, per spec §4.6's op table.
func (c *Controller) StartDraining(moduleID string) error {
	m := c.moduleFor(moduleID)
	cur := m.load()
	if cur.state != Normal {
		return fmt.Errorf("%w: start_draining requires Normal, got %s", ErrIllegalTransition, cur.state)
	}
	m.snap.Store(snapshot{state: Draining, active: cur.active})
	return nil
}

// IsDrained reports whether moduleID is Draining with zero active requests.
func (c *Controller) IsDrained(moduleID string) bool {
	m := c.moduleFor(moduleID)
	cur := m.load()
	return cur.state == Draining && cur.active == 0
}

// StartBuffering transitions a module to Buffering from any state.
func (c *Controller) StartBuffering(moduleID string) {
	m := c.moduleFor(moduleID)
	cur := m.load()
	m.snap.Store(snapshot{state: Buffering, active: cur.active})
}

// RouteMessage applies the per-state routing rule from spec §4.6: Normal
// passes through (returns true, nil), Draining/Paused reject, Buffering
// enqueues (ErrBufferFull on overflow, never a silent drop).
func (c *Controller) RouteMessage(moduleID string, msg any) (passThrough bool, err error) {
	m := c.moduleFor(moduleID)
	cur := m.load()
	switch cur.state {
	case Normal:
		return true, nil
	case Draining, Paused:
		return false, ErrRejected
	case Buffering:
		m.ringMu.Lock()
		defer m.ringMu.Unlock()
		if err := m.ring.push(msg); err != nil {
			return false, err
		}
		return false, nil
	default:
		return false, ErrRejected
	}
}

// GetBufferedMessages drains the module's FIFO buffer, returning every
// message in arrival order.
func (c *Controller) GetBufferedMessages(moduleID string) []any {
	m := c.moduleFor(moduleID)
	m.ringMu.Lock()
	defer m.ringMu.Unlock()
	return m.ring.drain()
}

// ResumeTraffic transitions a Buffering module back to Normal, emptying its
// buffer and returning how many messages were still in it. Those messages
// are discarded, not delivered; GetBufferedMessages is the call that
// returns buffered messages to a caller.
func (c *Controller) ResumeTraffic(moduleID string) (int, error) {
	m := c.moduleFor(moduleID)
	cur := m.load()
	if cur.state != Buffering {
		return 0, fmt.Errorf("%w: resume_traffic requires Buffering, got %s", ErrIllegalTransition, cur.state)
	}

	m.ringMu.Lock()
	drained := m.ring.drain()
	m.ringMu.Unlock()

	m.snap.Store(snapshot{state: Normal, active: cur.active})
	return len(drained), nil
}

// ForceDrain sets active-requests to zero and transitions to Normal from
// any state, recording an audit entry — the spec's escape hatch for a
// drain_timeout expiring with requests still in flight.
func (c *Controller) ForceDrain(moduleID, reason string) {
	m := c.moduleFor(moduleID)
	m.snap.Store(snapshot{state: Normal, active: 0})
	if c.audit != nil {
		c.audit.Record(moduleID, "force_drain", reason)
	}
}

// BeginRequest increments the active-request counter for moduleID. The
// caller must call EndRequest when the request completes.
func (c *Controller) BeginRequest(moduleID string) {
	m := c.moduleFor(moduleID)
	for {
		cur := m.load()
		next := snapshot{state: cur.state, active: cur.active + 1}
		if m.snap.CompareAndSwap(cur, next) {
			return
		}
	}
}

// EndRequest decrements the active-request counter for moduleID.
func (c *Controller) EndRequest(moduleID string) {
	m := c.moduleFor(moduleID)
	for {
		cur := m.load()
		next := snapshot{state: cur.state, active: cur.active - 1}
		if m.snap.CompareAndSwap(cur, next) {
			return
		}
	}
}

// State returns a module's current traffic state and active-request count.
func (c *Controller) State(moduleID string) (State, int64) {
	m := c.moduleFor(moduleID)
	cur := m.load()
	return cur.state, cur.active
}

// BufferLen reports how many messages are currently buffered for moduleID.
func (c *Controller) BufferLen(moduleID string) int {
	m := c.moduleFor(moduleID)
	m.ringMu.Lock()
	defer m.ringMu.Unlock()
	return m.ring.len()
}
