// Package decision implements the tiered decision engine (spec component
// C2): for every accepted Event it selects exactly one handling tier —
// pattern, template, cache, similarity, or model — and emits a Decision
// without ever invoking an external model itself.
package decision

import "github.com/autodevd/daemon/internal/event"

// Kind tags the variant held by a Decision.
type Kind string

const (
	KindUsePattern    Kind = "use-pattern"
	KindUseTemplate   Kind = "use-template"
	KindUseCached     Kind = "use-cached"
	KindAdaptSimilar  Kind = "adapt-similar"
	KindRequiresModel Kind = "requires-model"
	KindSkip          Kind = "skip"
)

// Decision is the tagged-variant result of routing a single Event. It is
// produced once and never mutated afterward.
type Decision struct {
	Kind       Kind
	EventID    string
	PatternID  string
	TemplateID string
	Similarity float64
	Reason     string
}

func usePattern(e event.Event, id string) Decision {
	return Decision{Kind: KindUsePattern, EventID: e.ID, PatternID: id}
}

func useTemplate(e event.Event, id string) Decision {
	return Decision{Kind: KindUseTemplate, EventID: e.ID, TemplateID: id}
}

func useCached(e event.Event) Decision {
	return Decision{Kind: KindUseCached, EventID: e.ID}
}

func adaptSimilar(e event.Event, score float64) Decision {
	return Decision{Kind: KindAdaptSimilar, EventID: e.ID, Similarity: score}
}

func requiresModel(e event.Event) Decision {
	return Decision{Kind: KindRequiresModel, EventID: e.ID}
}

func skip(e event.Event, reason string) Decision {
	return Decision{Kind: KindSkip, EventID: e.ID, Reason: reason}
}
