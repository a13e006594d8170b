package decision

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/autodevd/daemon/internal/event"
)

type cacheEntry struct {
	decision Decision
	storedAt time.Time
}

// CacheTier is T3: an LRU keyed by semantic hash (here, the event
// fingerprint) with a TTL check on read. A hit whose entry has aged past
// TTL is treated as a miss and evicted.
type CacheTier struct {
	lru *lru.Cache[string, cacheEntry]
	ttl time.Duration
	now func() time.Time
}

// NewCacheTier returns a CacheTier with the given capacity and TTL.
func NewCacheTier(capacity int, ttl time.Duration) (*CacheTier, error) {
	if capacity <= 0 {
		capacity = 10_000
	}
	l, err := lru.New[string, cacheEntry](capacity)
	if err != nil {
		return nil, err
	}
	return &CacheTier{lru: l, ttl: ttl, now: time.Now}, nil
}

// Put stores a decision under e's fingerprint.
func (c *CacheTier) Put(e event.Event, d Decision) {
	c.lru.Add(e.Fingerprint, cacheEntry{decision: d, storedAt: c.now()})
}

// TryDecide implements DecisionTier for T3 Cached.
func (c *CacheTier) TryDecide(e event.Event) (Decision, bool) {
	entry, ok := c.lru.Get(e.Fingerprint)
	if !ok {
		return Decision{}, false
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		c.lru.Remove(e.Fingerprint)
		return Decision{}, false
	}
	return useCached(e), true
}
