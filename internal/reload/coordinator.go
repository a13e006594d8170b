package reload

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/autodevd/daemon/internal/module"
	"github.com/autodevd/daemon/internal/state"
	"github.com/autodevd/daemon/internal/traffic"
)

// AuditRecorder is the narrow interface the coordinator needs from the
// audit trail — the same decoupling pattern internal/sandbox and
// internal/traffic use for their AuditLogger seams, so this package never
// imports internal/audit directly.
type AuditRecorder interface {
	Append(ctx context.Context, action, initiator, result, payloadRef string) error
}

// Policy configures the reload pipeline's tunables, per spec §4.5.
type Policy struct {
	AllowConcurrentReloads  bool
	DrainTimeout            time.Duration
	ForceDrainOnTimeout     bool
	MaxVerificationAttempts int
	VerificationDelay       time.Duration
}

// DefaultPolicy matches the spec's stated defaults.
func DefaultPolicy() Policy {
	return Policy{
		AllowConcurrentReloads:  false,
		DrainTimeout:            5 * time.Second,
		ForceDrainOnTimeout:     false,
		MaxVerificationAttempts: 3,
		VerificationDelay:       200 * time.Millisecond,
	}
}

// Result is the outcome of one Reload call.
type Result struct {
	ModuleID          string
	Success           bool
	RolledBack        bool
	FinalPhase        Phase
	Duration          time.Duration
	MessagesPreserved int
	MigrationApplied  bool
	Err               error
}

// Coordinator drives the eight-phase per-module reload state machine,
// grounded on the teacher's ReloadCoordinator.ReloadFromFile six-phase
// pipeline (load -> validate -> diff -> apply -> reload -> health-check),
// generalized here from "reload one config" to "reload one module through
// eight phases with a rollback branch".
type Coordinator struct {
	registry *module.Registry
	loader   *module.Loader
	traffic  *traffic.Controller
	state    *state.Manager
	verifier Verifier
	audit    AuditRecorder
	logger   *slog.Logger
	policy   Policy

	mu       sync.Mutex
	inFlight map[string]Phase
}

// Config bundles a Coordinator's dependencies.
type Config struct {
	Registry *module.Registry
	Loader   *module.Loader
	Traffic  *traffic.Controller
	State    *state.Manager
	Verifier Verifier
	Audit    AuditRecorder
	Logger   *slog.Logger
	Policy   Policy
}

// NewCoordinator returns a Coordinator ready to drive reloads.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Policy.DrainTimeout <= 0 {
		cfg.Policy = DefaultPolicy()
	}
	return &Coordinator{
		registry: cfg.Registry,
		loader:   cfg.Loader,
		traffic:  cfg.Traffic,
		state:    cfg.State,
		verifier: cfg.Verifier,
		audit:    cfg.Audit,
		logger:   cfg.Logger.With("component", "reload_coordinator"),
		policy:   cfg.Policy,
		inFlight: make(map[string]Phase),
	}
}

// Phase reports a module's current reload phase (PhaseIdle if no reload
// is in progress).
func (c *Coordinator) Phase(moduleID string) Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight[moduleID]
}

// Reload drives moduleID through the full phase pipeline to swap in the
// artifact at newPath, rolling back on any failure after Swapping.
func (c *Coordinator) Reload(ctx context.Context, moduleID, newPath string) *Result {
	start := time.Now()
	res := &Result{ModuleID: moduleID}

	if err := c.prepare(ctx, moduleID, newPath); err != nil {
		res.Err = err
		res.FinalPhase = PhaseIdle
		res.Duration = time.Since(start)
		return res
	}
	defer c.clearInFlight(moduleID)

	oldLoaded, _ := c.registry.Get(moduleID)
	oldPath := oldLoaded.Path

	if err := c.runPhase(func() error { return c.drain(ctx, moduleID) }); err != nil {
		res.Err = err
		res.FinalPhase = PhaseDraining
		res.Duration = time.Since(start)
		return res
	}

	var snap state.Snapshot
	if err := c.runPhase(func() (err error) { snap, err = c.snapshot(ctx, moduleID); return }); err != nil {
		res.Err = err
		res.FinalPhase = PhaseSnapshotting
		res.Duration = time.Since(start)
		return res
	}

	var newLoaded *module.Loaded
	var migrated bool
	swapErr := c.runPhase(func() (err error) { newLoaded, migrated, err = c.swap(ctx, moduleID, newPath, snap); return })
	if swapErr != nil {
		res.Err = swapErr
		res.RolledBack = true
		c.rollback(ctx, moduleID, oldPath, snap, "swap_failed: "+swapErr.Error())
		res.FinalPhase = PhaseRolledBack
		res.Duration = time.Since(start)
		return res
	}
	res.MigrationApplied = migrated

	c.setPhase(moduleID, PhaseVerifying)
	if err := c.runPhase(func() error { return c.verify(ctx, newLoaded.Instance) }); err != nil {
		res.Err = err
		res.RolledBack = true
		c.rollback(ctx, moduleID, oldPath, snap, "verification_failed: "+err.Error())
		res.FinalPhase = PhaseRolledBack
		res.Duration = time.Since(start)
		return res
	}

	var delivered int
	err := c.runPhase(func() (err error) { delivered, err = c.resume(ctx, moduleID, newLoaded.Instance); return })
	if err != nil {
		res.Err = err
		res.RolledBack = true
		c.rollback(ctx, moduleID, oldPath, snap, "resume_failed: "+err.Error())
		res.FinalPhase = PhaseRolledBack
		res.Duration = time.Since(start)
		return res
	}
	res.MessagesPreserved = delivered

	c.setPhase(moduleID, PhaseCompleted)
	res.Success = true
	res.FinalPhase = PhaseCompleted
	res.Duration = time.Since(start)
	c.recordAudit(ctx, "reload-completed", moduleID, "success")
	return res
}

// prepare is phase 1: validate the candidate artifact, enforce the
// concurrency policy, and reserve the module's in-flight slot.
func (c *Coordinator) prepare(ctx context.Context, moduleID, newPath string) error {
	format, err := module.DetectFormat(newPath)
	if err != nil {
		return fmt.Errorf("reload: detect format: %w", err)
	}
	if err := module.ValidatorFor(format).Validate(newPath); err != nil {
		return fmt.Errorf("reload: validate artifact: %w", err)
	}
	if _, err := module.LoadMetadata(module.MetadataPath(newPath)); err != nil {
		return fmt.Errorf("reload: load metadata: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.policy.AllowConcurrentReloads {
		for id, phase := range c.inFlight {
			if id != moduleID && phase != PhaseIdle {
				return ErrConcurrentReloadDenied
			}
		}
	}
	c.inFlight[moduleID] = PhasePreparing
	return nil
}

// drain is phase 2.
func (c *Coordinator) drain(ctx context.Context, moduleID string) error {
	c.setPhase(moduleID, PhaseDraining)
	if err := c.traffic.StartDraining(moduleID); err != nil {
		return fmt.Errorf("reload: start draining: %w", err)
	}

	deadline := time.Now().Add(c.policy.DrainTimeout)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		if c.traffic.IsDrained(moduleID) {
			return nil
		}
		if time.Now().After(deadline) {
			if c.policy.ForceDrainOnTimeout {
				c.traffic.ForceDrain(moduleID, "drain_timeout_exceeded")
				c.recordAudit(ctx, "force-drain", moduleID, "drain_timeout_exceeded")
				return nil
			}
			return ErrDrainTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// snapshot is phase 3.
func (c *Coordinator) snapshot(ctx context.Context, moduleID string) (state.Snapshot, error) {
	c.setPhase(moduleID, PhaseSnapshotting)
	loaded, ok := c.registry.Get(moduleID)
	if !ok {
		return state.Snapshot{}, module.ErrNotFound
	}
	current, err := loaded.Instance.GetState()
	if err != nil {
		return state.Snapshot{}, fmt.Errorf("reload: capture state: %w", err)
	}
	return c.state.Capture(ctx, moduleID, current)
}

// swap is phase 4 (Swapping) plus phase 4.5 (Migration, folded in since
// state.Manager.Restore already runs the migration engine internally when
// the target version is incompatible with what's recorded).
func (c *Coordinator) swap(ctx context.Context, moduleID, newPath string, snap state.Snapshot) (*module.Loaded, bool, error) {
	c.setPhase(moduleID, PhaseSwapping)
	c.traffic.StartBuffering(moduleID)

	if err := c.loader.Unload(ctx, moduleID); err != nil {
		return nil, false, fmt.Errorf("reload: unload old instance: %w", err)
	}
	newLoaded, err := c.loader.Load(ctx, moduleID, newPath)
	if err != nil {
		return nil, false, fmt.Errorf("reload: load new instance: %w", err)
	}

	freshState, err := newLoaded.Instance.GetState()
	if err != nil {
		return nil, false, fmt.Errorf("reload: read new instance's declared state version: %w", err)
	}
	migrated := !snap.Version.CompatibleWith(freshState.Version)

	restored, err := c.state.Restore(moduleID, freshState.Version)
	if err != nil {
		return nil, false, fmt.Errorf("reload: restore state: %w", err)
	}
	if err := newLoaded.Instance.RestoreState(restored); err != nil {
		return nil, false, fmt.Errorf("reload: apply restored state: %w", err)
	}
	return newLoaded, migrated, nil
}

// verify is phase 5.
func (c *Coordinator) verify(ctx context.Context, instance module.Interface) error {
	c.logger.Info("reload: verifying")
	attempts := c.policy.MaxVerificationAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = nil
		for _, kind := range DefaultVerificationKinds {
			if err := c.verifier.Verify(ctx, kind, instance); err != nil {
				lastErr = fmt.Errorf("%s probe: %w", kind, err)
				break
			}
		}
		if lastErr == nil {
			return nil
		}
		if attempt < attempts-1 {
			time.Sleep(c.policy.VerificationDelay)
		}
	}
	return fmt.Errorf("%w: %v", ErrVerificationFailed, lastErr)
}

// resume is phase 6: deliver every buffered message into the new
// instance in FIFO order, then transition the module back to Normal.
func (c *Coordinator) resume(ctx context.Context, moduleID string, instance module.Interface) (int, error) {
	c.setPhase(moduleID, PhaseResuming)
	buffered := c.traffic.GetBufferedMessages(moduleID)

	for i, msg := range buffered {
		if _, _, err := instance.HandleMessage(ctx, msg); err != nil {
			return i, fmt.Errorf("%w: message %d: %v", ErrMessageDeliveryFailed, i, err)
		}
	}

	if _, err := c.traffic.ResumeTraffic(moduleID); err != nil {
		return len(buffered), fmt.Errorf("reload: resume traffic: %w", err)
	}
	return len(buffered), nil
}

// rollback unloads the failed new instance, reloads the prior artifact,
// restores the pre-reload snapshot, drains the buffer into the restored
// module, and marks the failure, per spec §4.5's RollingBack phase.
func (c *Coordinator) rollback(ctx context.Context, moduleID, oldPath string, snap state.Snapshot, reason string) {
	c.setPhase(moduleID, PhaseRollingBack)
	c.logger.Warn("reload: rolling back", "module", moduleID, "reason", reason)

	_ = c.loader.Unload(ctx, moduleID)
	restoredLoaded, err := c.loader.Load(ctx, moduleID, oldPath)
	if err != nil {
		c.logger.Error("reload: rollback failed to reload prior artifact", "module", moduleID, "error", err)
		c.recordAudit(ctx, "reload-rollback-failed", moduleID, reason)
		return
	}

	restored, err := c.state.Restore(moduleID, snap.Version)
	if err == nil {
		_ = restoredLoaded.Instance.RestoreState(restored)
	}

	buffered := c.traffic.GetBufferedMessages(moduleID)
	for _, msg := range buffered {
		_, _, _ = restoredLoaded.Instance.HandleMessage(ctx, msg)
	}
	_, _ = c.traffic.ResumeTraffic(moduleID)

	c.setPhase(moduleID, PhaseRolledBack)
	c.recordAudit(ctx, "reload-rolled-back", moduleID, reason)
}

func (c *Coordinator) setPhase(moduleID string, phase Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight[moduleID] = phase
}

func (c *Coordinator) clearInFlight(moduleID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight[moduleID] = PhaseIdle
}

func (c *Coordinator) recordAudit(ctx context.Context, action, moduleID, result string) {
	if c.audit == nil {
		return
	}
	if err := c.audit.Append(ctx, action, moduleID, result, ""); err != nil {
		c.logger.Warn("reload: audit append failed", "error", err)
	}
}

// runPhase invokes fn, converting a panic inside it into a returned error
// instead of crashing the coordinator — the spec's "a Swap must either
// complete or hand control to RollingBack" invariant requires the
// coordinator to survive a misbehaving phase.
func (c *Coordinator) runPhase(fn func() error) (err error) {
	var catcher panics.Catcher
	catcher.Try(func() { err = fn() })
	if recovered := catcher.Recovered(); recovered != nil {
		return fmt.Errorf("reload: phase panicked: %v", recovered.Value)
	}
	return err
}
