package safety

import "context"

// Severity is a single gate finding's severity.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Finding is one concrete issue a gate surfaced.
type Finding struct {
	Message  string
	Severity Severity
	Field    string
}

// GateResult is a single gate's verdict, per spec §4.7.
type GateResult struct {
	Gate     string
	Passed   bool
	Severity Severity
	Findings []Finding
}

// Gate is one link in the Safety Gatekeeper's chain — grounded on the
// teacher's DefaultConfigValidator.Validate four-phase pipeline
// (structural -> business-rule -> cross-field -> security), generalized
// from "validate a config struct" to "validate a proposed code
// modification": each phase there becomes one Gate here.
type Gate interface {
	Name() string
	Evaluate(ctx context.Context, change *ProposedChange) GateResult
}
