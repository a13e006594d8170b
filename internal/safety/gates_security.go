package safety

import (
	"context"
	"regexp"
	"strings"
)

// DefaultCriticalPaths matches spec §4.7's default critical-path list:
// the core entrypoint, safety module itself, the dependency lock, the
// VCS directory, the build-output directory.
var DefaultCriticalPaths = []string{
	"cmd/daemon/main.go",
	"internal/safety/",
	"go.sum",
	".git/",
	"bin/",
}

// DependencyAuditor checks a dependency name/version against a known-bad
// list (CVE feed, internal denylist, …). A real implementation would call
// out to an audit service; tests supply a fake.
type DependencyAuditor interface {
	Audit(dep string) (findings []string, err error)
}

var secretPattern = regexp.MustCompile(`(?i)(api[_-]?key|secret|password|token)\s*[:=]\s*["'][^"']{4,}["']`)

// SecurityGate rejects changes that touch the critical-path list, add
// dependencies the auditor flags or fails to audit, or appear to introduce
// a hardcoded secret, per spec §4.7 gate 3. With a nil auditor, new
// dependencies are not audited and do not cause a rejection.
type SecurityGate struct {
	criticalPaths []string
	auditor       DependencyAuditor
}

// NewSecurityGate returns a SecurityGate. criticalPaths defaults to
// DefaultCriticalPaths when nil; auditor may be nil to skip dependency
// auditing.
func NewSecurityGate(criticalPaths []string, auditor DependencyAuditor) *SecurityGate {
	if criticalPaths == nil {
		criticalPaths = DefaultCriticalPaths
	}
	return &SecurityGate{criticalPaths: criticalPaths, auditor: auditor}
}

func (g *SecurityGate) Name() string { return "security" }

func (g *SecurityGate) Evaluate(ctx context.Context, change *ProposedChange) GateResult {
	var findings []Finding

	for _, f := range change.Files {
		if g.isCriticalPath(f.Path) {
			findings = append(findings, Finding{
				Message:  "change touches a critical-path file",
				Severity: SeverityCritical,
				Field:    f.Path,
			})
		}
		if secretPattern.MatchString(f.Diff) {
			findings = append(findings, Finding{
				Message:  "diff appears to introduce a hardcoded secret",
				Severity: SeverityCritical,
				Field:    f.Path,
			})
		}
	}

	if g.auditor != nil {
		for _, dep := range change.NewDeps {
			depFindings, err := g.auditor.Audit(dep)
			if err != nil {
				findings = append(findings, Finding{
					Message:  "dependency audit failed: " + err.Error(),
					Severity: SeverityMedium,
					Field:    dep,
				})
				continue
			}
			for _, df := range depFindings {
				findings = append(findings, Finding{
					Message:  "dependency audit finding: " + df,
					Severity: SeverityHigh,
					Field:    dep,
				})
			}
		}
	}

	return result("security", findings)
}

func (g *SecurityGate) isCriticalPath(path string) bool {
	for _, p := range g.criticalPaths {
		if strings.HasPrefix(path, p) || path == p {
			return true
		}
	}
	return false
}
