package sandbox

import "time"

// Severity levels for a SecurityEvent, spec §3.
type Severity string

const (
	SeverityDebug   Severity = "debug"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// SecurityEventType enumerates the kinds of events the sandbox records.
type SecurityEventType string

const (
	EventModuleStarted    SecurityEventType = "module-started"
	EventFileAccess       SecurityEventType = "file-access"
	EventViolationDetected SecurityEventType = "violation-detected"
)

// SecurityEvent is an append-only audit record, spec §3.
type SecurityEvent struct {
	Timestamp time.Time
	ModuleID  string
	Type      SecurityEventType
	Severity  Severity
	Details   string
}

// Response is the action taken in reply to a violation, spec §4.4.
type Response int

const (
	ResponseDeny Response = iota
	ResponseQuarantine
	ResponseKill
)

func (r Response) String() string {
	switch r {
	case ResponseQuarantine:
		return "quarantine"
	case ResponseKill:
		return "kill"
	default:
		return "deny"
	}
}

// ViolationKind distinguishes a plain capability denial from a resource
// ceiling breach from a detected sandbox-escape attempt — escapes always
// Quarantine per spec §4.4, regardless of policy.
type ViolationKind int

const (
	ViolationCapabilityDenied ViolationKind = iota
	ViolationResourceExceeded
	ViolationSandboxEscape
)

// Policy maps a ViolationKind to the Response it should provoke. The zero
// Policy denies capability violations and quarantines resource violations
// and escapes, the same responses as DefaultPolicy.
type Policy struct {
	OnCapabilityDenied ResponseFunc
	OnResourceExceeded ResponseFunc
}

// ResponseFunc lets policy be as simple as a constant or as elaborate as a
// violation-count-aware escalation.
type ResponseFunc func(moduleID string) Response

// DefaultPolicy denies capability violations and quarantines resource
// violations — fail closed, never silently continue.
func DefaultPolicy() Policy {
	return Policy{
		OnCapabilityDenied: func(string) Response { return ResponseDeny },
		OnResourceExceeded: func(string) Response { return ResponseQuarantine },
	}
}

// Decide resolves kind through the policy; escapes are hardcoded to
// Quarantine regardless of configuration.
func (p Policy) Decide(kind ViolationKind, moduleID string) Response {
	switch kind {
	case ViolationSandboxEscape:
		return ResponseQuarantine
	case ViolationResourceExceeded:
		if p.OnResourceExceeded != nil {
			return p.OnResourceExceeded(moduleID)
		}
		return ResponseQuarantine
	default:
		if p.OnCapabilityDenied != nil {
			return p.OnCapabilityDenied(moduleID)
		}
		return ResponseDeny
	}
}
