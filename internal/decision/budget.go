package decision

import "sync/atomic"

// Budget tracks the remaining model-call allowance and the counters the
// spec requires the engine to expose: tokens saved and invocations avoided
// by tiers T1–T4 accepting before T5 would have been reached.
type Budget struct {
	remaining          int64
	tokensSaved        int64
	invocationsAvoided int64
}

// NewBudget returns a Budget starting with the given allowance. A
// non-positive allowance means unlimited.
func NewBudget(allowance int64) *Budget {
	if allowance <= 0 {
		allowance = -1
	}
	return &Budget{remaining: allowance}
}

// Allow reports whether a model call may proceed, consuming one unit of
// budget if so. Unlimited budgets (allowance <= 0 at construction, tracked
// by remaining staying negative) always allow.
func (b *Budget) Allow() bool {
	if atomic.LoadInt64(&b.remaining) <= 0 {
		return atomic.LoadInt64(&b.remaining) < 0
	}
	return atomic.AddInt64(&b.remaining, -1) >= 0
}

// RecordSaved adds estimatedTokens to the tokens-saved counter and one to
// the invocations-avoided counter, called whenever a non-model tier accepts an event
// that would otherwise have reached T5.
func (b *Budget) RecordSaved(estimatedTokens int64) {
	atomic.AddInt64(&b.tokensSaved, estimatedTokens)
	atomic.AddInt64(&b.invocationsAvoided, 1)
}

// Stats is a point-in-time snapshot of the budget's counters.
type Stats struct {
	Remaining          int64
	TokensSaved        int64
	InvocationsAvoided int64
}

// Snapshot returns the current counter values.
func (b *Budget) Snapshot() Stats {
	return Stats{
		Remaining:          atomic.LoadInt64(&b.remaining),
		TokensSaved:        atomic.LoadInt64(&b.tokensSaved),
		InvocationsAvoided: atomic.LoadInt64(&b.invocationsAvoided),
	}
}
