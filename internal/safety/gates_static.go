package safety

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
)

// StaticGate checks syntactic/structural validity of a ProposedChange —
// required fields, well-formed op enums (via go-playground/validator
// struct tags, the same library and tag-driven approach the teacher's
// Phase 1 structural validation uses) — plus cyclomatic-complexity and
// duplication thresholds. No third-party Go complexity analyzer exists in
// the example pack to ground the latter on; these are small pure
// functions, a deliberate stdlib exception (noted in DESIGN.md).
type StaticGate struct {
	v                 *validator.Validate
	maxComplexity     int
	maxDuplicateLines int
}

// NewStaticGate returns a StaticGate with the given thresholds; 0 selects
// the default (maxComplexity=20, maxDuplicateLines=6).
func NewStaticGate(maxComplexity, maxDuplicateLines int) *StaticGate {
	if maxComplexity <= 0 {
		maxComplexity = 20
	}
	if maxDuplicateLines <= 0 {
		maxDuplicateLines = 6
	}
	return &StaticGate{v: validator.New(), maxComplexity: maxComplexity, maxDuplicateLines: maxDuplicateLines}
}

func (g *StaticGate) Name() string { return "static" }

func (g *StaticGate) Evaluate(ctx context.Context, change *ProposedChange) GateResult {
	var findings []Finding

	if err := g.v.StructCtx(ctx, change); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, e := range verrs {
				findings = append(findings, Finding{
					Message:  "structural validation failed: " + e.Tag(),
					Severity: SeverityHigh,
					Field:    e.StructNamespace(),
				})
			}
		}
	}

	for _, f := range change.Files {
		if complexity := branchingComplexity(f.Diff); complexity > g.maxComplexity {
			findings = append(findings, Finding{
				Message:  "cyclomatic complexity exceeds threshold",
				Severity: SeverityMedium,
				Field:    f.Path,
			})
		}
		if dup := maxDuplicateRun(f.Diff); dup > g.maxDuplicateLines {
			findings = append(findings, Finding{
				Message:  "duplicated line run exceeds threshold",
				Severity: SeverityLow,
				Field:    f.Path,
			})
		}
	}

	return result("static", findings)
}

// branchingComplexity is a coarse cyclomatic-complexity proxy: one plus a
// count of branching keywords. It is not a real control-flow analysis —
// just enough to catch an obviously sprawling diff.
func branchingComplexity(diff string) int {
	keywords := []string{"if ", "for ", "switch ", "case ", "&&", "||"}
	count := 1
	for _, kw := range keywords {
		count += strings.Count(diff, kw)
	}
	return count
}

// maxDuplicateRun returns the longest run of identical consecutive
// non-blank lines in diff.
func maxDuplicateRun(diff string) int {
	lines := strings.Split(diff, "\n")
	best, run := 0, 0
	var prev string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			run = 0
			prev = ""
			continue
		}
		if trimmed == prev {
			run++
		} else {
			run = 1
			prev = trimmed
		}
		if run > best {
			best = run
		}
	}
	return best
}

func result(name string, findings []Finding) GateResult {
	severity := SeverityInfo
	for _, f := range findings {
		if severityRank(f.Severity) > severityRank(severity) {
			severity = f.Severity
		}
	}
	return GateResult{Gate: name, Passed: len(findings) == 0, Severity: severity, Findings: findings}
}

func severityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}
