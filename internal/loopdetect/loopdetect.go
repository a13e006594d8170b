// Package loopdetect guards the Safety Gatekeeper against a module (or the
// daemon acting on its own source) rewriting the same file over and over —
// a self-modification loop — by bounding both how soon a path can be
// touched again and how many modifications per minute a single initiator
// may make.
package loopdetect

import (
	"errors"
	"strings"
	"time"
)

// ErrCooldownActive is returned when a path was modified too recently.
var ErrCooldownActive = errors.New("loopdetect: path modified within cooldown window")

// ErrRateExceeded is returned when an initiator exceeds its per-minute
// modification budget.
var ErrRateExceeded = errors.New("loopdetect: modification rate exceeded")

// ErrCriticalPath is returned for any modification to a critical file,
// regardless of cooldown/rate state or safety policy.
var ErrCriticalPath = errors.New("loopdetect: critical path modifications are always denied")

// DefaultCooldown and DefaultMaxPerMinute match spec §4.8's defaults.
const (
	DefaultCooldown     = time.Second
	DefaultMaxPerMinute = 10
)

// DefaultCriticalPaths lists the entrypoint and core init modules the loop
// detector must never let through no matter what policy says. It is kept
// apart from the security gate's critical-path list, and the two differ.
var DefaultCriticalPaths = []string{
	"cmd/daemon/main.go",
	"internal/safety/",
	"internal/orchestrator/",
}

// record is one accepted modification, kept in each per-path/per-initiator
// sliding window.
type record struct {
	at time.Time
}

// Detector maintains a sliding window of modification records and rejects
// a candidate modification that would constitute a loop, per spec §4.8.
//
// The per-minute budget is enforced on two independent dimensions: per
// initiator (spec §4.8's prose, "the same initiator") and per path
// (Testable Property 7, "no path receives more than max_modifications_per_minute
// ... in any 60-s window"). The two readings diverge when multiple
// initiators each touch the same path: per-initiator alone would let N
// initiators apply N*max modifications to one path in a minute. Both
// bounds are enforced so neither reading is violated.
type Detector struct {
	cooldown      time.Duration
	maxPerMinute  int
	criticalPaths []string

	lastByPath   map[string]time.Time
	windowByInit map[string][]record // keyed by initiator
	windowByPath map[string][]record // keyed by path
}

// Config configures a Detector; zero values select the spec defaults.
type Config struct {
	Cooldown      time.Duration
	MaxPerMinute  int
	CriticalPaths []string
}

// New returns a Detector ready to evaluate modifications.
func New(cfg Config) *Detector {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.MaxPerMinute <= 0 {
		cfg.MaxPerMinute = DefaultMaxPerMinute
	}
	if cfg.CriticalPaths == nil {
		cfg.CriticalPaths = DefaultCriticalPaths
	}
	return &Detector{
		cooldown:      cfg.Cooldown,
		maxPerMinute:  cfg.MaxPerMinute,
		criticalPaths: cfg.CriticalPaths,
		lastByPath:    make(map[string]time.Time),
		windowByInit:  make(map[string][]record),
		windowByPath:  make(map[string][]record),
	}
}

// Check evaluates whether a modification to path by initiator at now
// would be allowed, without recording it. Callers that accept the
// modification must call Record.
func (d *Detector) Check(path, initiator string, now time.Time) error {
	if d.isCritical(path) {
		return ErrCriticalPath
	}
	if last, ok := d.lastByPath[path]; ok && now.Sub(last) < d.cooldown {
		return ErrCooldownActive
	}
	if d.countWithinMinute(d.windowByInit, initiator, now) >= d.maxPerMinute {
		return ErrRateExceeded
	}
	if d.countWithinMinute(d.windowByPath, path, now) >= d.maxPerMinute {
		return ErrRateExceeded
	}
	return nil
}

// Record checks and, if allowed, records the modification in one atomic
// step. This is the method normal callers use.
func (d *Detector) Record(path, initiator string, now time.Time) error {
	if err := d.Check(path, initiator, now); err != nil {
		return err
	}
	d.lastByPath[path] = now
	d.windowByInit[initiator] = append(d.prune(d.windowByInit, initiator, now), record{at: now})
	d.windowByPath[path] = append(d.prune(d.windowByPath, path, now), record{at: now})
	return nil
}

func (d *Detector) countWithinMinute(window map[string][]record, key string, now time.Time) int {
	return len(d.prune(window, key, now))
}

// prune drops records older than one minute from window[key] and returns
// the retained slice, updating window so repeated calls don't re-scan
// stale entries.
func (d *Detector) prune(window map[string][]record, key string, now time.Time) []record {
	existing := window[key]
	cutoff := now.Add(-time.Minute)
	kept := existing[:0:0]
	for _, r := range existing {
		if r.at.After(cutoff) {
			kept = append(kept, r)
		}
	}
	window[key] = kept
	return kept
}

func (d *Detector) isCritical(path string) bool {
	for _, p := range d.criticalPaths {
		if path == p || strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
