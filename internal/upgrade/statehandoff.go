package upgrade

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// State is the handoff payload written before Swap and consumed by the
// freshly-exec'd process via --restore-state, grounded on the original
// implementation's UpgradeState (auto-dev-core/src/self_upgrade/state_preserver.rs).
type State struct {
	Timestamp   string            `json:"timestamp"`
	Version     string            `json:"version"`
	ActiveTasks []string          `json:"active_tasks"`
	Config      map[string]any    `json:"config"`
	Environment map[string]string `json:"environment"`
}

// StatePreserver saves and restores State across a self-upgrade restart.
type StatePreserver struct {
	stateDir string
}

func NewStatePreserver(stateDir string) *StatePreserver {
	return &StatePreserver{stateDir: stateDir}
}

func (p *StatePreserver) path() string {
	return filepath.Join(p.stateDir, "current_state.json")
}

// Save writes state to the handoff file, creating the state directory if
// needed.
func (p *StatePreserver) Save(state State) (string, error) {
	if err := os.MkdirAll(p.stateDir, 0o755); err != nil {
		return "", fmt.Errorf("upgrade: create state dir: %w", err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return "", fmt.Errorf("upgrade: marshal state: %w", err)
	}
	path := p.path()
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("upgrade: write state: %w", err)
	}
	return path, nil
}

// Load reads a handoff file written by Save.
func Load(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}, fmt.Errorf("upgrade: read state: %w", err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("upgrade: unmarshal state: %w", err)
	}
	return state, nil
}

// Restore applies state.Environment to the current process, skipping
// CARGO_/RUST_-prefixed variables. Those prefixes come from the original
// implementation verbatim; they are preserved here even though this binary
// is not a Cargo/Rust toolchain output, since the original explicitly
// excludes build-toolchain environment noise from the handoff regardless of
// target language.
func Restore(state State) error {
	for k, v := range state.Environment {
		if strings.HasPrefix(k, "CARGO_") || strings.HasPrefix(k, "RUST_") {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("upgrade: restore env %q: %w", k, err)
		}
	}
	return nil
}
