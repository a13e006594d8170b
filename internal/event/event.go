// Package event implements the prioritized, debounced, rate-limited event
// pipeline (spec component C1): it turns raw filesystem/spec/test signals
// into enriched, priority-ordered Events ready for the decision engine.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies the origin of an Event.
type Kind string

const (
	KindSpecChanged       Kind = "spec-changed"
	KindTestAdded         Kind = "test-added"
	KindTestFailed        Kind = "test-failed"
	KindCodeModified      Kind = "code-modified"
	KindDependencyUpdated Kind = "dependency-updated"
	KindConfigChanged     Kind = "config-changed"
	KindHealthCheck       Kind = "health-check"
	KindUserCommand       Kind = "user-command"
)

// Priority orders events for dispatch. Higher values are serviced first.
type Priority int

const (
	PriorityBackground Priority = iota
	PriorityLow
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "background"
	}
}

// Event is the unit the pipeline ingests, filters, enriches and forwards.
// It is immutable after Enrich has run; every mutator returns a new value.
type Event struct {
	ID           string
	Timestamp    time.Time
	Kind         Kind
	SourcePath   string
	Priority     Priority
	LLMRequired  bool
	Metadata     map[string]string
	Fingerprint  string
	enrichedOnce bool
}

// New creates an Event with a fresh id and the given timestamp. Priority is
// left at its zero value until the priority assigner runs.
func New(kind Kind, sourcePath string, ts time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Timestamp:  ts,
		Kind:       kind,
		SourcePath: sourcePath,
		Metadata:   make(map[string]string),
	}
}

// WithMetadata returns a copy of e with key=value merged into its metadata.
// Safe to call before enrichment; metadata plays no part in deduplication,
// which keys on kind and source path (see DedupKey).
func (e Event) WithMetadata(key, value string) Event {
	clone := e.clone()
	clone.Metadata[key] = value
	return clone
}

// WithPriority returns a copy of e with Priority overridden.
func (e Event) WithPriority(p Priority) Event {
	clone := e.clone()
	clone.Priority = p
	return clone
}

// WithFingerprint returns a copy of e with Fingerprint set and marked enriched.
func (e Event) WithFingerprint(fp string) Event {
	clone := e.clone()
	clone.Fingerprint = fp
	clone.enrichedOnce = true
	return clone
}

// Enriched reports whether the metadata enricher has already processed e.
func (e Event) Enriched() bool { return e.enrichedOnce }

func (e Event) clone() Event {
	md := make(map[string]string, len(e.Metadata))
	for k, v := range e.Metadata {
		md[k] = v
	}
	e.Metadata = md
	return e
}

// DedupKey identifies events for the deduplication filter: (kind, source path).
type DedupKey struct {
	Kind       Kind
	SourcePath string
}

func (e Event) DedupKey() DedupKey {
	return DedupKey{Kind: e.Kind, SourcePath: e.SourcePath}
}

// Equal implements identity-by-id equality per the spec's data model.
func (e Event) Equal(other Event) bool { return e.ID == other.ID }
