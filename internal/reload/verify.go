package reload

import (
	"context"
	"fmt"

	"github.com/autodevd/daemon/internal/module"
)

// VerificationKind is one of the four probe types spec §4.5 names.
type VerificationKind string

const (
	VerificationSmoke       VerificationKind = "smoke"
	VerificationContract    VerificationKind = "contract"
	VerificationPerformance VerificationKind = "performance"
	VerificationSecurity    VerificationKind = "security"
)

// DefaultVerificationKinds is the probe sequence run on every attempt.
var DefaultVerificationKinds = []VerificationKind{
	VerificationSmoke, VerificationContract, VerificationPerformance, VerificationSecurity,
}

// Verifier runs one verification probe against a freshly swapped-in
// module instance. A nil error means the probe passed.
type Verifier interface {
	Verify(ctx context.Context, kind VerificationKind, instance module.Interface) error
}

// ProbeFunc is one kind's probe implementation.
type ProbeFunc func(ctx context.Context, instance module.Interface) error

// DefaultVerifier runs module.Interface.HealthCheck for the smoke probe
// and delegates contract/performance/security to injected ProbeFuncs,
// since those three are domain-specific (what capability to probe, what
// baseline latency to compare against, what known-bad call to expect a
// denial for) and have no generic implementation. A kind with no
// registered ProbeFunc passes trivially — this lets a deployment wire up
// only the probes it has baselines for.
type DefaultVerifier struct {
	probes map[VerificationKind]ProbeFunc
}

// NewDefaultVerifier returns a DefaultVerifier. probes may be nil or
// partial; VerificationSmoke is always handled internally and any
// registered override for it is ignored.
func NewDefaultVerifier(probes map[VerificationKind]ProbeFunc) *DefaultVerifier {
	return &DefaultVerifier{probes: probes}
}

func (v *DefaultVerifier) Verify(ctx context.Context, kind VerificationKind, instance module.Interface) error {
	if kind == VerificationSmoke {
		ok, err := instance.HealthCheck(ctx)
		if err != nil {
			return fmt.Errorf("reload: smoke probe: %w", err)
		}
		if !ok {
			return fmt.Errorf("reload: smoke probe reported unhealthy")
		}
		return nil
	}
	if probe, ok := v.probes[kind]; ok {
		return probe(ctx, instance)
	}
	return nil
}
