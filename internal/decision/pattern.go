package decision

import (
	"sync"

	"github.com/autodevd/daemon/internal/event"
)

// Pattern is a learned fingerprint→outcome association. Threshold is the
// minimum match score (0..1) required for T1 to accept; exact fingerprint
// matches always score 1.0.
type Pattern struct {
	ID          string
	Fingerprint string
	Threshold   float64
}

// PatternIndex is T1's backing store: an exact-fingerprint lookup table.
// Grounded on the teacher's RouteTree/RegexCache split — a simple label-key
// map plays the role the routing tree's matcher level plays for alerts,
// generalized from route labels to event fingerprints.
type PatternIndex struct {
	mu       sync.RWMutex
	byFinger map[string]Pattern
}

// NewPatternIndex returns an empty index.
func NewPatternIndex() *PatternIndex {
	return &PatternIndex{byFinger: make(map[string]Pattern)}
}

// Learn registers or overwrites a pattern.
func (idx *PatternIndex) Learn(p Pattern) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.byFinger[p.Fingerprint] = p
}

// Forget removes a learned pattern by fingerprint.
func (idx *PatternIndex) Forget(fingerprint string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.byFinger, fingerprint)
}

// TryDecide implements DecisionTier for T1 Pattern.
func (idx *PatternIndex) TryDecide(e event.Event) (Decision, bool) {
	idx.mu.RLock()
	p, ok := idx.byFinger[e.Fingerprint]
	idx.mu.RUnlock()
	if !ok || p.Threshold > 1.0 {
		return Decision{}, false
	}
	return usePattern(e, p.ID), true
}

// SimilarityIndex is T4's backing store: a flat list of known fingerprints
// scored by Jaccard overlap of their metadata key/value pairs. It is
// deliberately simple — the spec leaves the similarity metric
// implementation-defined and only fixes the default acceptance threshold.
type SimilarityIndex struct {
	mu        sync.RWMutex
	known     []event.Event
	Threshold float64
}

// NewSimilarityIndex returns a SimilarityIndex with the spec's default
// threshold of 0.85.
func NewSimilarityIndex() *SimilarityIndex {
	return &SimilarityIndex{Threshold: 0.85}
}

// Observe records e as a known event for future similarity comparisons.
func (idx *SimilarityIndex) Observe(e event.Event) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.known = append(idx.known, e)
}

// TryDecide implements DecisionTier for T4 Similar.
func (idx *SimilarityIndex) TryDecide(e event.Event) (Decision, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	best := 0.0
	for _, k := range idx.known {
		if k.Kind != e.Kind {
			continue
		}
		if score := similarity(k, e); score > best {
			best = score
		}
	}
	if best >= idx.Threshold {
		return adaptSimilar(e, best), true
	}
	return Decision{}, false
}

// similarity scores the metadata-key Jaccard overlap between two events of
// the same kind, in [0, 1].
func similarity(a, b event.Event) float64 {
	if len(a.Metadata) == 0 && len(b.Metadata) == 0 {
		return 1.0
	}
	union := make(map[string]struct{}, len(a.Metadata)+len(b.Metadata))
	for k := range a.Metadata {
		union[k] = struct{}{}
	}
	shared := 0
	for k, v := range b.Metadata {
		if av, ok := a.Metadata[k]; ok && av == v {
			shared++
		}
		union[k] = struct{}{}
	}
	if len(union) == 0 {
		return 1.0
	}
	return float64(shared) / float64(len(union))
}
