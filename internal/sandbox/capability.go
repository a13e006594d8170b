// Package sandbox implements the per-module sandbox (spec component C5):
// capability-set enforcement, resource monitoring, violation handling, and
// the audit hook every side-effecting module call passes through.
package sandbox

import (
	"fmt"
	"strconv"
	"strings"
)

// CapabilityClass identifies the kind of side effect a Capability governs.
type CapabilityClass string

const (
	ClassFilesystem CapabilityClass = "filesystem"
	ClassNetwork    CapabilityClass = "network"
	ClassMemory     CapabilityClass = "memory"
	ClassCPU        CapabilityClass = "cpu"
	ClassModuleCall CapabilityClass = "module"
)

// FilesystemOp enumerates the filesystem operations a Capability can gate.
type FilesystemOp string

const (
	FSRead    FilesystemOp = "read"
	FSWrite   FilesystemOp = "write"
	FSExecute FilesystemOp = "execute"
)

// Capability is the tagged variant from spec §3: Filesystem, Network,
// Memory, Cpu, ModuleCall. Exactly one branch's fields are meaningful for a
// given Class.
type Capability struct {
	Class CapabilityClass

	// Filesystem
	FSOp       FilesystemOp
	PathPrefix string

	// Network
	Protocol string
	Host     string
	Port     int // 0 means "any port"

	// Memory / Cpu
	LimitBytes   uint64
	LimitPercent float64

	// ModuleCall
	TargetID string
}

// Dominates reports whether c grants permission for requested: path-prefix
// containment for filesystem, protocol+host(+port) match for network, and
// ceiling containment for memory/cpu/module-call, per spec §4.4.
func (c Capability) Dominates(requested Capability) bool {
	if c.Class != requested.Class {
		return false
	}
	switch c.Class {
	case ClassFilesystem:
		return c.FSOp == requested.FSOp && strings.HasPrefix(requested.PathPrefix, c.PathPrefix)
	case ClassNetwork:
		if c.Protocol != requested.Protocol || c.Host != requested.Host {
			return false
		}
		return c.Port == 0 || c.Port == requested.Port
	case ClassMemory:
		return c.LimitBytes >= requested.LimitBytes
	case ClassCPU:
		return c.LimitPercent >= requested.LimitPercent
	case ClassModuleCall:
		return c.TargetID == requested.TargetID
	default:
		return false
	}
}

// CapabilitySet is a collection of granted capabilities. Allow succeeds iff
// any member dominates the requested capability.
type CapabilitySet struct {
	grants []Capability
}

// NewCapabilitySet returns a set holding the given grants.
func NewCapabilitySet(grants ...Capability) *CapabilitySet {
	return &CapabilitySet{grants: grants}
}

// Allow reports whether requested is permitted by any grant in the set.
func (s *CapabilitySet) Allow(requested Capability) bool {
	for _, g := range s.grants {
		if g.Dominates(requested) {
			return true
		}
	}
	return false
}

// Grant adds a capability to the set.
func (s *CapabilitySet) Grant(c Capability) { s.grants = append(s.grants, c) }

// ParseCapability parses the textual grammar `<class>:<op>:<arg>`, e.g.
// "filesystem:read:/docs", "network:http:localhost", "memory:limit:100MB",
// "module:call:parser", exactly as spec §4.4 defines it.
func ParseCapability(text string) (Capability, error) {
	parts := strings.SplitN(text, ":", 3)
	if len(parts) != 3 {
		return Capability{}, fmt.Errorf("sandbox: malformed capability %q", text)
	}
	class, op, arg := parts[0], parts[1], parts[2]

	switch CapabilityClass(class) {
	case ClassFilesystem:
		return Capability{Class: ClassFilesystem, FSOp: FilesystemOp(op), PathPrefix: arg}, nil
	case ClassNetwork:
		host, port := arg, 0
		if i := strings.LastIndex(arg, "/"); i >= 0 {
			host = arg[:i]
			if p, err := strconv.Atoi(arg[i+1:]); err == nil {
				port = p
			}
		}
		return Capability{Class: ClassNetwork, Protocol: op, Host: host, Port: port}, nil
	case ClassMemory:
		bytes, err := parseByteSize(arg)
		if err != nil {
			return Capability{}, fmt.Errorf("sandbox: %w", err)
		}
		return Capability{Class: ClassMemory, LimitBytes: bytes}, nil
	case ClassCPU:
		pct, err := strconv.ParseFloat(strings.TrimSuffix(arg, "%"), 64)
		if err != nil {
			return Capability{}, fmt.Errorf("sandbox: invalid cpu limit %q: %w", arg, err)
		}
		return Capability{Class: ClassCPU, LimitPercent: pct}, nil
	case ClassModuleCall:
		return Capability{Class: ClassModuleCall, TargetID: arg}, nil
	default:
		return Capability{}, fmt.Errorf("sandbox: unknown capability class %q", class)
	}
}

func parseByteSize(s string) (uint64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	mult := uint64(1)
	switch {
	case strings.HasSuffix(s, "GB"):
		mult = 1 << 30
		s = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		mult = 1 << 20
		s = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		mult = 1 << 10
		s = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		s = strings.TrimSuffix(s, "B")
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q", s)
	}
	return n * mult, nil
}
