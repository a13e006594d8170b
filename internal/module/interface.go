package module

import (
	"context"
	"time"
)

// State is a module's hot-reload state: version, an ordered key→value
// payload, and a last-updated timestamp. Values are opaque JSON, matching
// the original Rust trait's serde_json::Value payload.
type State struct {
	Version     StateVersion
	Data        map[string]any
	LastUpdated time.Time
}

// NewState returns an empty State at the given version.
func NewState(v StateVersion) State {
	return State{Version: v, Data: make(map[string]any), LastUpdated: time.Now()}
}

// Set stores a value and bumps LastUpdated.
func (s *State) Set(key string, value any) {
	s.Data[key] = value
	s.LastUpdated = time.Now()
}

// Get retrieves a stored value.
func (s State) Get(key string) (any, bool) {
	v, ok := s.Data[key]
	return v, ok
}

// Interface is the operation set every loaded module exposes uniformly,
// regardless of whether it is backed by a Wasm instance or a native
// dynamic library — grounded directly on the original implementation's
// ModuleInterface trait (auto-dev-core/src/modules/interface.rs),
// translated from async trait methods to context-carrying Go methods.
type Interface interface {
	Metadata() Metadata
	Initialize(ctx context.Context) error
	Execute(ctx context.Context, input any) (any, error)
	Capabilities() []Capability
	HandleMessage(ctx context.Context, message any) (any, bool, error)
	Shutdown(ctx context.Context) error
	GetState() (State, error)
	RestoreState(State) error
	HealthCheck(ctx context.Context) (bool, error)
}

// ResourceLimits mirrors the original SandboxedModule trait's resource
// ceiling type; enforcement lives in internal/sandbox, this is the
// declared limit a module (or its metadata sidecar) requests.
type ResourceLimits struct {
	MaxMemoryBytes  uint64
	MaxCPUTimeMS    uint64
	MaxFileHandles  uint32
	AllowedPaths    []string
	NetworkAccess   bool
}

// DefaultResourceLimits matches the original implementation's Default impl.
func DefaultResourceLimits() ResourceLimits {
	return ResourceLimits{
		MaxMemoryBytes: 100 * 1024 * 1024,
		MaxCPUTimeMS:   5000,
		MaxFileHandles: 10,
	}
}
