// Package module implements the module registry and loader (spec
// components C3 and C4): module identity, metadata, the two load variants
// (Wasm and Native) behind one interface, and the concurrency-safe
// id-keyed registry that C6's hot-reload coordinator drives.
package module

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Version is a module's identity version: (major, minor, patch, optional
// pre-release). Two versions are compatible iff their major matches.
type Version struct {
	Major      uint64
	Minor      uint64
	Patch      uint64
	PreRelease string
}

// ParseVersion parses a semver string via Masterminds/semver, the library
// the rest of the pack already reaches for rather than hand-rolling dotted
// version parsing.
func ParseVersion(s string) (Version, error) {
	v, err := semver.NewVersion(s)
	if err != nil {
		return Version{}, fmt.Errorf("module: invalid version %q: %w", s, err)
	}
	return Version{Major: v.Major(), Minor: v.Minor(), Patch: v.Patch(), PreRelease: v.Prerelease()}, nil
}

// CompatibleWith reports whether v and other may be swapped in place
// without a state migration — major version equality, per spec §3.
func (v Version) CompatibleWith(other Version) bool {
	return v.Major == other.Major
}

// String renders the version in semver form.
func (v Version) String() string {
	if v.PreRelease != "" {
		return fmt.Sprintf("%d.%d.%d-%s", v.Major, v.Minor, v.Patch, v.PreRelease)
	}
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// StateVersion additionally carries a schema version. Restoring state
// across a StateVersion requires both major and schema to be equal, unless
// a migration rule bridges the gap (internal/state).
type StateVersion struct {
	Version
	Schema uint64
}

// CompatibleWith requires both major and schema equality.
func (v StateVersion) CompatibleWith(other StateVersion) bool {
	return v.Version.CompatibleWith(other.Version) && v.Schema == other.Schema
}
