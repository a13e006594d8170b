package safety

import (
	"context"
	"strings"
)

// PerformanceGate checks an estimated-cost budget and known regression
// patterns, per spec §4.7 gate 4.
type PerformanceGate struct {
	budgetMS       int64
	regressionRxps []string
}

// NewPerformanceGate returns a PerformanceGate with the given budget in
// milliseconds (0 disables the budget check) and a list of diff
// substrings known to indicate a prior regression pattern (e.g. an
// N+1 query idiom the team has been bitten by before).
func NewPerformanceGate(budgetMS int64, regressionPatterns []string) *PerformanceGate {
	return &PerformanceGate{budgetMS: budgetMS, regressionRxps: regressionPatterns}
}

func (g *PerformanceGate) Name() string { return "performance" }

func (g *PerformanceGate) Evaluate(ctx context.Context, change *ProposedChange) GateResult {
	var findings []Finding

	if g.budgetMS > 0 && change.EstimatedMS > g.budgetMS {
		findings = append(findings, Finding{
			Message:  "estimated cost exceeds performance budget",
			Severity: SeverityMedium,
		})
	}

	for _, f := range change.Files {
		for _, pattern := range g.regressionRxps {
			if pattern != "" && strings.Contains(f.Diff, pattern) {
				findings = append(findings, Finding{
					Message:  "diff matches a known regression pattern: " + pattern,
					Severity: SeverityHigh,
					Field:    f.Path,
				})
			}
		}
	}

	return result("performance", findings)
}
