package event

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Filter decides whether an Event should continue through the pipeline.
// Composable filters let each of §4.1's two filters be tested in isolation,
// mirroring the teacher's multi-phase validator/reload-coordinator split
// rather than one monolithic function.
type Filter interface {
	Accept(e Event, now time.Time) bool
}

// DedupFilter drops an event if an identical (kind, source-path) key was
// last seen less than window ago. This is a per-key leaky bucket, not a
// global one, per spec §4.1 and original_source's monitor/debouncer.rs.
type DedupFilter struct {
	window time.Duration

	mu   sync.Mutex
	seen map[DedupKey]time.Time
}

// NewDedupFilter returns a DedupFilter with the spec's default 500ms window.
func NewDedupFilter(window time.Duration) *DedupFilter {
	if window <= 0 {
		window = 500 * time.Millisecond
	}
	return &DedupFilter{window: window, seen: make(map[DedupKey]time.Time)}
}

func (f *DedupFilter) Accept(e Event, now time.Time) bool {
	key := e.DedupKey()

	f.mu.Lock()
	defer f.mu.Unlock()

	if last, ok := f.seen[key]; ok && now.Sub(last) < f.window {
		return false
	}
	f.seen[key] = now
	return true
}

// RateLimitFilter enforces a per-kind sliding window: at most maxPerWindow
// events in any window-length interval. Overflow is dropped, never queued,
// and recorded via the Dropped counter for metrics export.
//
// Built on golang.org/x/time/rate as the steady-state limiter, with an
// explicit timestamp ring per kind so a true sliding window is enforced at
// the boundary (a bare token bucket admits a burst straddling the refill
// edge that the spec's wording forbids).
type RateLimitFilter struct {
	window       time.Duration
	maxPerWindow int

	mu       sync.Mutex
	limiters map[Kind]*rate.Limiter
	history  map[Kind][]time.Time
	Dropped  func(kind Kind)
}

// NewRateLimitFilter returns the spec's default: 10 events per 60s per kind.
func NewRateLimitFilter(maxPerWindow int, window time.Duration) *RateLimitFilter {
	if maxPerWindow <= 0 {
		maxPerWindow = 10
	}
	if window <= 0 {
		window = 60 * time.Second
	}
	return &RateLimitFilter{
		window:       window,
		maxPerWindow: maxPerWindow,
		limiters:     make(map[Kind]*rate.Limiter),
		history:      make(map[Kind][]time.Time),
	}
}

func (f *RateLimitFilter) Accept(e Event, now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	lim, ok := f.limiters[e.Kind]
	if !ok {
		lim = rate.NewLimiter(rate.Every(f.window/time.Duration(f.maxPerWindow)), f.maxPerWindow)
		f.limiters[e.Kind] = lim
	}

	hist := f.history[e.Kind]
	cutoff := now.Add(-f.window)
	kept := hist[:0]
	for _, t := range hist {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= f.maxPerWindow || !lim.AllowN(now, 1) {
		f.history[e.Kind] = kept
		if f.Dropped != nil {
			f.Dropped(e.Kind)
		}
		return false
	}

	kept = append(kept, now)
	f.history[e.Kind] = kept
	return true
}
