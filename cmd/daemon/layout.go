package main

import (
	"os"
	"path/filepath"
)

// layout is the daemon's on-disk footprint rooted at DataDir:
//
//	<data-dir>/modules/    loaded module sources and metadata
//	<data-dir>/snapshots/  state-manager ring-buffer overflow / full snapshots
//	<data-dir>/backups/    self-upgrade binary backups
//	<data-dir>/staging/    self-upgrade compile staging area
//	<data-dir>/loop/       control.port and other runtime discovery files
//	<data-dir>/sandbox/    per-module sandbox policy files
type layout struct {
	root      string
	modules   string
	snapshots string
	backups   string
	staging   string
	loop      string
	sandbox   string
}

func newLayout(dataDir string) layout {
	return layout{
		root:      dataDir,
		modules:   filepath.Join(dataDir, "modules"),
		snapshots: filepath.Join(dataDir, "snapshots"),
		backups:   filepath.Join(dataDir, "backups"),
		staging:   filepath.Join(dataDir, "staging"),
		loop:      filepath.Join(dataDir, "loop"),
		sandbox:   filepath.Join(dataDir, "sandbox"),
	}
}

func (l layout) ensure() error {
	for _, dir := range []string{l.root, l.modules, l.snapshots, l.backups, l.staging, l.loop, l.sandbox} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func (l layout) controlPortFile() string { return filepath.Join(l.loop, "control.port") }
func (l layout) stateHandoffFile() string { return filepath.Join(l.loop, "current_state.json") }
