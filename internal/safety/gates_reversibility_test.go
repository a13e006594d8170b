package safety

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeCheckpointChecker struct {
	can bool
}

func (f fakeCheckpointChecker) CanCheckpoint(change *ProposedChange) bool { return f.can }

func TestReversibilityGate_NilCheckerAlwaysPasses(t *testing.T) {
	g := NewReversibilityGate(nil)
	res := g.Evaluate(context.Background(), validChange())
	assert.True(t, res.Passed)
}

func TestReversibilityGate_PassesWhenCheckpointable(t *testing.T) {
	g := NewReversibilityGate(fakeCheckpointChecker{can: true})
	res := g.Evaluate(context.Background(), validChange())
	assert.True(t, res.Passed)
}

func TestReversibilityGate_CriticalWhenNotCheckpointable(t *testing.T) {
	g := NewReversibilityGate(fakeCheckpointChecker{can: false})
	res := g.Evaluate(context.Background(), validChange())
	assert.False(t, res.Passed)
	assert.Equal(t, SeverityCritical, res.Severity)
}
