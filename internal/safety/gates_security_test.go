package safety

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeAuditor struct {
	findings map[string][]string
	err      error
}

func (a *fakeAuditor) Audit(dep string) ([]string, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.findings[dep], nil
}

func TestSecurityGate_FlagsCriticalPath(t *testing.T) {
	g := NewSecurityGate(nil, nil)
	change := validChange()
	change.Files[0].Path = "internal/safety/chain.go"
	res := g.Evaluate(context.Background(), change)
	assert.False(t, res.Passed)
	assert.Equal(t, SeverityCritical, res.Severity)
}

func TestSecurityGate_FlagsHardcodedSecret(t *testing.T) {
	g := NewSecurityGate(nil, nil)
	change := validChange()
	change.Files[0].Diff = `+apiKey := "sk-abcd1234efgh"`
	res := g.Evaluate(context.Background(), change)
	assert.False(t, res.Passed)
}

func TestSecurityGate_PassesCleanChange(t *testing.T) {
	g := NewSecurityGate(nil, nil)
	res := g.Evaluate(context.Background(), validChange())
	assert.True(t, res.Passed)
}

func TestSecurityGate_FlagsAuditedDependency(t *testing.T) {
	auditor := &fakeAuditor{findings: map[string][]string{"bad/dep": {"known CVE-2024-0000"}}}
	g := NewSecurityGate(nil, auditor)
	change := validChange()
	change.NewDeps = []string{"bad/dep"}
	res := g.Evaluate(context.Background(), change)
	assert.False(t, res.Passed)
}

func TestSecurityGate_RecordsAuditFailureAsFinding(t *testing.T) {
	auditor := &fakeAuditor{err: errors.New("audit service unreachable")}
	g := NewSecurityGate(nil, auditor)
	change := validChange()
	change.NewDeps = []string{"some/dep"}
	res := g.Evaluate(context.Background(), change)
	assert.False(t, res.Passed)
}

func TestSecurityGate_CustomCriticalPaths(t *testing.T) {
	g := NewSecurityGate([]string{"vendor/"}, nil)
	change := validChange()
	change.Files[0].Path = "internal/safety/chain.go"
	res := g.Evaluate(context.Background(), change)
	assert.True(t, res.Passed)
}
