package safety

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Risk is the overall risk level a ValidationReport assigns, per spec §4.7.
type Risk string

const (
	RiskLow      Risk = "low"
	RiskMedium   Risk = "medium"
	RiskHigh     Risk = "high"
	RiskCritical Risk = "critical"
)

// ValidationReport is the Safety Gatekeeper's overall verdict on a
// ProposedChange, aggregating every gate's GateResult.
type ValidationReport struct {
	Passed          bool
	GateResults     []GateResult
	Duration        time.Duration
	Risk            Risk
	Recommendations []string
}

// ErrGateFailed wraps a single gate's failure for fail-fast aggregation.
var ErrGateFailed = errors.New("safety: gate failed")

// GateChain runs a sequence of Gates against a ProposedChange under one
// of two policies — grounded directly on the teacher's
// DefaultConfigValidator.Validate "collect every error" behavior
// (require-all here) versus the signal-handler's "stop at first failure"
// posture (fail-fast here), both already present in the teacher's own
// codebase as two competing validation postures.
type GateChain struct {
	gates    []Gate
	failFast bool
}

// NewGateChain returns a GateChain running gates in order. failFast=true
// stops at the first failing gate; false runs every gate and aggregates
// all findings (require-all).
func NewGateChain(failFast bool, gates ...Gate) *GateChain {
	return &GateChain{gates: gates, failFast: failFast}
}

// Evaluate runs every enabled gate and produces a ValidationReport. A
// Critical-severity finding from any gate always blocks the change,
// regardless of policy, per spec §4.7.
func (c *GateChain) Evaluate(ctx context.Context, change *ProposedChange) (ValidationReport, error) {
	start := time.Now()
	var (
		results    []GateResult
		overallErr error
		blocked    bool
	)

	for _, gate := range c.gates {
		res := gate.Evaluate(ctx, change)
		results = append(results, res)

		if !res.Passed {
			overallErr = multierr.Append(overallErr, fmt.Errorf("%s: %w", res.Gate, ErrGateFailed))
			if res.Severity == SeverityCritical {
				blocked = true
			}
			if c.failFast {
				break
			}
		}
	}

	risk := aggregateRisk(results)
	passed := !blocked && allPassed(results)
	if c.failFast && len(results) < len(c.gates) {
		// a gate failed before every gate ran; the chain never reached a
		// verdict on the remaining gates, so the change cannot be
		// considered passed even if risk looks low in isolation.
		passed = false
	}

	report := ValidationReport{
		Passed:          passed,
		GateResults:     results,
		Duration:        time.Since(start),
		Risk:            risk,
		Recommendations: recommendationsFor(results),
	}
	return report, overallErr
}

func allPassed(results []GateResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

func aggregateRisk(results []GateResult) Risk {
	worst := SeverityInfo
	for _, r := range results {
		if severityRank(r.Severity) > severityRank(worst) {
			worst = r.Severity
		}
	}
	switch worst {
	case SeverityCritical:
		return RiskCritical
	case SeverityHigh:
		return RiskHigh
	case SeverityMedium:
		return RiskMedium
	default:
		return RiskLow
	}
}

func recommendationsFor(results []GateResult) []string {
	var recs []string
	for _, r := range results {
		for _, f := range r.Findings {
			if f.Severity == SeverityCritical || f.Severity == SeverityHigh {
				recs = append(recs, "address "+r.Gate+" finding: "+f.Message)
			}
		}
	}
	return recs
}
