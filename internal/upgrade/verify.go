package upgrade

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Verifier runs a staged binary through a battery of smoke probes before
// Swap is allowed to proceed, grounded on the original implementation's
// VersionVerifier.verify: the binary must run, must report its own version,
// and must accept a self-test subcommand.
type Verifier struct {
	timeout time.Duration
}

func NewVerifier(timeout time.Duration) *Verifier {
	return &Verifier{timeout: timeout}
}

// Verify runs all probes against binaryPath. Each probe is retried with
// exponential backoff for transient failures (the staged binary may still be
// finishing disk flush/page-in) capped by the verifier's overall timeout.
func (v *Verifier) Verify(ctx context.Context, binaryPath string) error {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	probes := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"runs", v.probeRuns(binaryPath)},
		{"version", v.probeVersion(binaryPath)},
		{"self-test", v.probeSelfTest(binaryPath)},
	}

	for _, p := range probes {
		bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
		if err := backoff.Retry(func() error { return p.fn(ctx) }, bo); err != nil {
			return fmt.Errorf("%w: probe %q: %v", ErrVerificationFailed, p.name, err)
		}
	}
	return nil
}

func (v *Verifier) probeRuns(binaryPath string) func(context.Context) error {
	return func(ctx context.Context) error {
		cmd := exec.CommandContext(ctx, binaryPath, "--help")
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("--help: %w", err)
		}
		return nil
	}
}

func (v *Verifier) probeVersion(binaryPath string) func(context.Context) error {
	return func(ctx context.Context) error {
		cmd := exec.CommandContext(ctx, binaryPath, "--version")
		out, err := cmd.Output()
		if err != nil {
			return fmt.Errorf("--version: %w", err)
		}
		if !strings.Contains(strings.ToLower(string(out)), "daemon") {
			return fmt.Errorf("--version output missing expected marker")
		}
		return nil
	}
}

func (v *Verifier) probeSelfTest(binaryPath string) func(context.Context) error {
	return func(ctx context.Context) error {
		cmd := exec.CommandContext(ctx, binaryPath, "selftest", "--help")
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("selftest --help: %w", err)
		}
		return nil
	}
}
