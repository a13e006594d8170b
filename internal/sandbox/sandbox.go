package sandbox

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCapabilityDenied is returned when a requested Capability is not
// dominated by any grant.
var ErrCapabilityDenied = errors.New("sandbox: capability denied")

// AuditLogger receives every SecurityEvent the sandbox produces. Kept as a
// narrow interface so internal/sandbox has no import-time dependency on
// internal/audit's storage backends.
type AuditLogger interface {
	Record(SecurityEvent)
}

// QuarantineHandler is notified when a module must stop accepting calls.
type QuarantineHandler interface {
	Quarantine(moduleID string)
	Kill(moduleID string)
}

// Sandbox is the per-module guard every side-effecting operation passes
// through: capability check, resource monitoring window, and violation
// handling, per spec §4.4.
type Sandbox struct {
	moduleID   string
	caps       *CapabilitySet
	monitor    *Monitor
	limits     Limits
	policy     Policy
	audit      AuditLogger
	quarantine QuarantineHandler
	logger     *slog.Logger

	mu          sync.Mutex
	quarantined bool
}

// Config configures a Sandbox for one module.
type Config struct {
	ModuleID   string
	Grants     *CapabilitySet
	Monitor    *Monitor
	Limits     Limits
	Policy     Policy
	Audit      AuditLogger
	Quarantine QuarantineHandler
	Logger     *slog.Logger
}

// New returns a Sandbox wired per cfg.
func New(cfg Config) *Sandbox {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Grants == nil {
		cfg.Grants = NewCapabilitySet()
	}
	return &Sandbox{
		moduleID:   cfg.ModuleID,
		caps:       cfg.Grants,
		monitor:    cfg.Monitor,
		limits:     cfg.Limits,
		policy:     cfg.Policy,
		audit:      cfg.Audit,
		quarantine: cfg.Quarantine,
		logger:     cfg.Logger.With("component", "sandbox", "module_id", cfg.ModuleID),
	}
}

// CheckCapability derives a Capability for a side-effecting operation and
// tests membership. On deny it records a violation and logs at Warning,
// returning ErrCapabilityDenied without the caller having invoked anything.
func (s *Sandbox) CheckCapability(requested Capability) error {
	s.mu.Lock()
	quarantined := s.quarantined
	s.mu.Unlock()
	if quarantined {
		return ErrCapabilityDenied
	}

	if s.caps.Allow(requested) {
		return nil
	}

	s.logger.Warn("capability denied", "class", requested.Class)
	s.emit(SecurityEvent{Type: EventViolationDetected, Severity: SeverityWarning, Details: "capability denied"})
	s.respond(ViolationCapabilityDenied)
	return ErrCapabilityDenied
}

// Call runs fn under resource monitoring: starts a Monitor.Track window,
// runs fn, and on return checks the sampled Usage against Limits, raising a
// resource violation and applying policy if exceeded.
func (s *Sandbox) Call(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	var stop func() (Usage, time.Duration)
	if s.monitor != nil {
		stop = s.monitor.Track()
	}

	result, err := fn(ctx)

	if stop != nil {
		usage, _ := stop()
		if usage.Exceeds(s.limits) {
			s.emit(SecurityEvent{Type: EventViolationDetected, Severity: SeverityError, Details: "resource limit exceeded"})
			s.respond(ViolationResourceExceeded)
		}
	}
	return result, err
}

// ReportEscape records a detected sandbox-escape attempt. Escapes always
// quarantine, regardless of configured policy.
func (s *Sandbox) ReportEscape(details string) {
	s.emit(SecurityEvent{Type: EventViolationDetected, Severity: SeverityError, Details: details})
	s.respond(ViolationSandboxEscape)
}

func (s *Sandbox) respond(kind ViolationKind) {
	switch s.policy.Decide(kind, s.moduleID) {
	case ResponseQuarantine:
		s.mu.Lock()
		s.quarantined = true
		s.mu.Unlock()
		if s.quarantine != nil {
			s.quarantine.Quarantine(s.moduleID)
		}
	case ResponseKill:
		if s.quarantine != nil {
			s.quarantine.Kill(s.moduleID)
		}
	}
}

func (s *Sandbox) emit(e SecurityEvent) {
	e.ModuleID = s.moduleID
	if e.Timestamp.IsZero() {
		e.Timestamp = nowFunc()
	}
	if s.audit != nil {
		s.audit.Record(e)
	}
}

// Quarantined reports whether this sandbox has blocked further calls.
func (s *Sandbox) Quarantined() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quarantined
}
