package module

import "context"

// fakeModule is a minimal in-memory Interface used across this package's tests.
type fakeModule struct {
	meta       Metadata
	state      State
	shutdownFn func() error
	initErr    error
	restoreErr error
}

func newFakeModule(meta Metadata) *fakeModule {
	v, _ := meta.ParsedVersion()
	return &fakeModule{meta: meta, state: NewState(StateVersion{Version: v})}
}

func (f *fakeModule) Metadata() Metadata { return f.meta }
func (f *fakeModule) Initialize(context.Context) error { return f.initErr }
func (f *fakeModule) Execute(context.Context, any) (any, error) { return nil, nil }
func (f *fakeModule) Capabilities() []Capability { return f.meta.Capabilities }
func (f *fakeModule) HandleMessage(context.Context, any) (any, bool, error) { return nil, false, nil }
func (f *fakeModule) Shutdown(context.Context) error {
	if f.shutdownFn != nil {
		return f.shutdownFn()
	}
	return nil
}
func (f *fakeModule) GetState() (State, error) { return f.state, nil }
func (f *fakeModule) RestoreState(s State) error {
	if f.restoreErr != nil {
		return f.restoreErr
	}
	f.state = s
	return nil
}
func (f *fakeModule) HealthCheck(context.Context) (bool, error) { return true, nil }
