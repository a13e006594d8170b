package safety

import "context"

// CheckpointChecker is the narrow interface the reversibility gate needs
// from the checkpoint subsystem — decoupled the same way
// internal/sandbox's AuditLogger decouples the sandbox from the audit
// package, so this package never imports internal/checkpoint directly.
type CheckpointChecker interface {
	CanCheckpoint(change *ProposedChange) bool
}

// ReversibilityGate requires that a checkpoint exists, or can be created,
// such that the change is undoable, per spec §4.7 gate 5.
type ReversibilityGate struct {
	checker CheckpointChecker
}

// NewReversibilityGate returns a ReversibilityGate. A nil checker passes
// every change (no checkpoint subsystem wired yet).
func NewReversibilityGate(checker CheckpointChecker) *ReversibilityGate {
	return &ReversibilityGate{checker: checker}
}

func (g *ReversibilityGate) Name() string { return "reversibility" }

func (g *ReversibilityGate) Evaluate(ctx context.Context, change *ProposedChange) GateResult {
	if g.checker == nil || g.checker.CanCheckpoint(change) {
		return result("reversibility", nil)
	}
	return result("reversibility", []Finding{{
		Message:  "no checkpoint can be created for this change; it would not be undoable",
		Severity: SeverityCritical,
	}})
}
