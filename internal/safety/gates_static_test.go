package safety

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func validChange() *ProposedChange {
	return &ProposedChange{
		ID:        "c1",
		Initiator: "decision-engine",
		Files: []FileChange{
			{Path: "internal/foo/foo.go", Op: OpModify, Diff: "+func Bar() {}", LineCount: 1},
		},
	}
}

func TestStaticGate_PassesValidChange(t *testing.T) {
	g := NewStaticGate(0, 0)
	res := g.Evaluate(context.Background(), validChange())
	assert.True(t, res.Passed)
}

func TestStaticGate_FlagsMissingRequiredFields(t *testing.T) {
	g := NewStaticGate(0, 0)
	change := &ProposedChange{}
	res := g.Evaluate(context.Background(), change)
	assert.False(t, res.Passed)
	assert.NotEmpty(t, res.Findings)
}

func TestStaticGate_FlagsExcessiveComplexity(t *testing.T) {
	g := NewStaticGate(3, 0)
	diff := "+if a {\n+if b {\n+if c {\n+if d {\n"
	change := validChange()
	change.Files[0].Diff = diff
	res := g.Evaluate(context.Background(), change)
	assert.False(t, res.Passed)
}

func TestStaticGate_FlagsDuplicateLineRun(t *testing.T) {
	g := NewStaticGate(0, 2)
	diff := strings.Repeat("fmt.Println(x)\n", 5)
	change := validChange()
	change.Files[0].Diff = diff
	res := g.Evaluate(context.Background(), change)
	assert.False(t, res.Passed)
}
