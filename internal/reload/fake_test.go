package reload

import (
	"context"

	"github.com/autodevd/daemon/internal/module"
)

// fakeInstance is a minimal module.Interface test double, mirroring the
// pattern internal/module's own fakeModule uses.
type fakeInstance struct {
	meta       module.Metadata
	state      module.State
	healthy    bool
	healthErr  error
	handleErr  error
	handled    []any
	shutdownFn func() error
}

func newFakeInstance(meta module.Metadata) *fakeInstance {
	v, _ := meta.ParsedVersion()
	return &fakeInstance{
		meta:    meta,
		state:   module.NewState(module.StateVersion{Version: v, Schema: 1}),
		healthy: true,
	}
}

func (f *fakeInstance) Metadata() module.Metadata { return f.meta }
func (f *fakeInstance) Initialize(context.Context) error { return nil }
func (f *fakeInstance) Execute(context.Context, any) (any, error) { return nil, nil }
func (f *fakeInstance) Capabilities() []module.Capability { return f.meta.Capabilities }
func (f *fakeInstance) HandleMessage(_ context.Context, msg any) (any, bool, error) {
	if f.handleErr != nil {
		return nil, false, f.handleErr
	}
	f.handled = append(f.handled, msg)
	return nil, true, nil
}
func (f *fakeInstance) Shutdown(context.Context) error {
	if f.shutdownFn != nil {
		return f.shutdownFn()
	}
	return nil
}
func (f *fakeInstance) GetState() (module.State, error) { return f.state, nil }
func (f *fakeInstance) RestoreState(s module.State) error {
	f.state = s
	return nil
}
func (f *fakeInstance) HealthCheck(context.Context) (bool, error) {
	return f.healthy, f.healthErr
}

// fakeAudit records every Append call.
type fakeAudit struct {
	entries []string
}

func (a *fakeAudit) Append(_ context.Context, action, initiator, result, _ string) error {
	a.entries = append(a.entries, action+":"+initiator+":"+result)
	return nil
}

// fakeVerifier always returns whatever err is currently set, letting tests
// flip behavior mid-run.
type fakeVerifier struct {
	err func(kind VerificationKind) error
}

func (v *fakeVerifier) Verify(_ context.Context, kind VerificationKind, _ module.Interface) error {
	if v.err == nil {
		return nil
	}
	return v.err(kind)
}

// panicVerifier panics on the given kind.
type panicVerifier struct {
	on VerificationKind
}

func (v *panicVerifier) Verify(_ context.Context, kind VerificationKind, _ module.Interface) error {
	if kind == v.on {
		panic("simulated verifier panic")
	}
	return nil
}
