// Package orchestrator implements the top-level state machine (spec
// component C12) that dispatches between every other component: it pulls
// events off the pipeline, asks the decision engine how to handle them,
// routes the result either to direct module execution or through the
// safety gatekeeper as a proposed change, and applies whatever the
// operator's mode and the daily change cap allow.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/autodevd/daemon/internal/decision"
	"github.com/autodevd/daemon/internal/event"
	"github.com/autodevd/daemon/internal/safety"
)

// AuditRecorder is the narrow interface the orchestrator needs from the
// audit trail, the same seam internal/reload and internal/upgrade use.
type AuditRecorder interface {
	Append(ctx context.Context, action, initiator, result, payloadRef string) error
}

// EventSource abstracts the pipeline the orchestrator pulls events from.
type EventSource interface {
	Next(ctx context.Context) (event.Event, bool)
}

// DecisionMaker abstracts the decision engine.
type DecisionMaker interface {
	Decide(e event.Event) decision.Decision
}

// GateEvaluator abstracts the safety gatekeeper.
type GateEvaluator interface {
	Evaluate(ctx context.Context, change *safety.ProposedChange) (safety.ValidationReport, error)
}

// ChangeProposer turns a Decision into a candidate modification, or
// reports false when the decision should be routed to direct module
// execution instead (e.g. use-cached/use-pattern replies that need no
// source change). Proposal synthesis itself (diffing, codegen) lives
// upstream of the orchestrator; this is only the seam.
type ChangeProposer interface {
	Propose(ctx context.Context, d decision.Decision) (*safety.ProposedChange, bool)
}

// ModuleExecutor handles decisions that require no source modification —
// running the existing module path (C3/C5) rather than the self-modification
// path (C9/C6/C11).
type ModuleExecutor interface {
	Execute(ctx context.Context, d decision.Decision) error
}

// Applier applies an approved, gate-passed change to disk and triggers
// whatever follow-on component owns it (hot-reload for a module change,
// self-upgrade for a daemon change).
type Applier interface {
	Apply(ctx context.Context, change *safety.ProposedChange) error
}

// CheckpointCreator snapshots orchestrator state before an apply so a
// failure can roll back, the narrow seam into internal/checkpoint.
type CheckpointCreator interface {
	Create(description string, v any, now time.Time) (string, error)
}

// LoopGuard is the narrow seam into internal/loopdetect: Check must pass
// before an apply proceeds; Record is called once it does.
type LoopGuard interface {
	Check(path, initiator string, now time.Time) error
	Record(path, initiator string, now time.Time) error
}

// PendingChange is a gate-passed proposal awaiting operator approval in
// Assisted mode, or a high-risk proposal SemiAutonomous mode queued
// instead of auto-approving.
type PendingChange struct {
	ID     string
	Change *safety.ProposedChange
	Report safety.ValidationReport
}

// Config bundles an Orchestrator's dependencies and tunables.
type Config struct {
	Events      EventSource
	Decisions   DecisionMaker
	Gates       GateEvaluator
	Proposer    ChangeProposer
	Executor    ModuleExecutor
	Applier     Applier
	Checkpoints CheckpointCreator
	LoopGuard   LoopGuard
	Audit       AuditRecorder
	Logger      *slog.Logger

	Mode             Mode
	MaxChangesPerDay int
	Now              func() time.Time
}

// Orchestrator drives the top-level state machine.
type Orchestrator struct {
	cfg Config
	now func() time.Time

	mu           sync.Mutex
	state        State
	mode         Mode
	safetyLevel  string
	appliedToday int
	dayAnchor    time.Time
	pending      map[string]PendingChange
	pendingSeq   int
	controlCh    chan ControlCommand
}

// New returns an Orchestrator in StateIdle with the configured mode.
func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxChangesPerDay <= 0 {
		cfg.MaxChangesPerDay = 10
	}
	return &Orchestrator{
		cfg:       cfg,
		now:       cfg.Now,
		state:     StateIdle,
		mode:      cfg.Mode,
		dayAnchor: cfg.Now(),
		pending:   make(map[string]PendingChange),
		controlCh: make(chan ControlCommand, 32),
	}
}

// State reports the orchestrator's current top-level state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Mode reports the orchestrator's current operator mode.
func (o *Orchestrator) Mode() Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Submit enqueues a control command and blocks for its Reply if one was
// provided, otherwise returns immediately.
func (o *Orchestrator) Submit(ctx context.Context, cmd ControlCommand) error {
	select {
	case o.controlCh <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	if cmd.Reply == nil {
		return nil
	}
	select {
	case err := <-cmd.Reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the dispatch loop until ctx is cancelled or a Stop/EmergencyStop
// command arrives. Event ingestion and control-command handling run as two
// errgroup-supervised goroutines feeding a single select loop so mode/cap
// mutation never races the dispatch path.
func (o *Orchestrator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eventsCh := make(chan event.Event)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(eventsCh)
		for {
			e, ok := o.cfg.Events.Next(gctx)
			if !ok {
				return nil
			}
			select {
			case eventsCh <- e:
			case <-gctx.Done():
				return nil
			}
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case e, ok := <-eventsCh:
				if !ok {
					return nil
				}
				o.handleEvent(gctx, e)
			case cmd, ok := <-o.controlCh:
				if !ok {
					return nil
				}
				if stop := o.handleCommand(gctx, cmd); stop {
					cancel()
					return nil
				}
			}
		}
	})

	err := g.Wait()
	o.setState(StateShutdown)
	return err
}

func (o *Orchestrator) handleEvent(ctx context.Context, e event.Event) {
	o.setState(StateProcessing)
	defer o.setState(StateIdle)

	d := o.cfg.Decisions.Decide(e)

	change, needsChange := (*safety.ProposedChange)(nil), false
	if o.cfg.Proposer != nil {
		change, needsChange = o.cfg.Proposer.Propose(ctx, d)
	}

	if !needsChange {
		if o.cfg.Executor != nil {
			if err := o.cfg.Executor.Execute(ctx, d); err != nil {
				o.recordAudit(ctx, "module-execute", "failure", d.EventID)
			}
		}
		return
	}

	o.evaluateAndRoute(ctx, change)
}

func (o *Orchestrator) evaluateAndRoute(ctx context.Context, change *safety.ProposedChange) {
	if o.cfg.LoopGuard != nil {
		if err := o.cfg.LoopGuard.Check(firstPath(change), change.Initiator, o.now()); err != nil {
			o.recordAudit(ctx, "change-rejected", "loop_detected", change.ID)
			return
		}
	}

	var report safety.ValidationReport
	if o.cfg.Gates != nil {
		var err error
		report, err = o.cfg.Gates.Evaluate(ctx, change)
		if err != nil || !report.Passed {
			o.recordAudit(ctx, "change-rejected", "gate_failed", change.ID)
			return
		}
	}

	if o.cfg.LoopGuard != nil {
		_ = o.cfg.LoopGuard.Record(firstPath(change), change.Initiator, o.now())
	}

	if o.shouldQueue(report) {
		o.queuePending(change, report)
		o.setState(StateWaitingForValidation)
		return
	}

	o.applyChange(ctx, change)
}

func (o *Orchestrator) shouldQueue(report safety.ValidationReport) bool {
	o.mu.Lock()
	mode := o.mode
	o.mu.Unlock()

	switch mode {
	case ModeObservation:
		return true // recorded but never auto-applied nor auto-approved away
	case ModeAssisted:
		return true
	case ModeSemiAutonomous:
		return report.Risk == safety.RiskHigh || report.Risk == safety.RiskCritical
	case ModeFullyAutonomous:
		return false
	default:
		return true
	}
}

func (o *Orchestrator) queuePending(change *safety.ProposedChange, report safety.ValidationReport) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pendingSeq++
	id := fmt.Sprintf("pending-%d", o.pendingSeq)
	o.pending[id] = PendingChange{ID: id, Change: change, Report: report}
	return id
}

// applyChange enforces the daily change cap, checkpoints, and applies.
func (o *Orchestrator) applyChange(ctx context.Context, change *safety.ProposedChange) {
	o.mu.Lock()
	mode := o.mode
	if mode == ModeObservation {
		o.mu.Unlock()
		o.recordAudit(ctx, "change-observed-only", "success", change.ID)
		return
	}
	o.rolloverDayLocked()
	if o.appliedToday >= o.cfg.MaxChangesPerDay {
		o.mu.Unlock()
		o.recordAudit(ctx, "change-blocked", "daily_cap_reached", change.ID)
		return
	}
	o.appliedToday++
	o.mu.Unlock()

	if o.cfg.Checkpoints != nil {
		if _, err := o.cfg.Checkpoints.Create("pre-apply:"+change.ID, change, o.now()); err != nil {
			o.cfg.Logger.Warn("orchestrator: checkpoint creation failed", "error", err)
		}
	}

	if o.cfg.Applier == nil {
		return
	}
	if err := o.cfg.Applier.Apply(ctx, change); err != nil {
		o.setState(StateRecoveringFromError)
		o.recordAudit(ctx, "change-apply-failed", "failure", change.ID)
		o.setState(StateIdle)
		return
	}
	o.recordAudit(ctx, "change-applied", "success", change.ID)
}

// rolloverDayLocked resets the daily counter when the clock has advanced
// past midnight UTC since the last reset. Caller must hold o.mu.
func (o *Orchestrator) rolloverDayLocked() {
	now := o.now()
	if now.YearDay() != o.dayAnchor.YearDay() || now.Year() != o.dayAnchor.Year() {
		o.appliedToday = 0
		o.dayAnchor = now
	}
}

func (o *Orchestrator) handleCommand(ctx context.Context, cmd ControlCommand) (stop bool) {
	switch cmd.Kind {
	case CmdStart:
		o.setState(StateIdle)
		cmd.reply(nil)
	case CmdPause:
		o.setState(StateWaitingForValidation)
		cmd.reply(nil)
	case CmdResume:
		o.setState(StateIdle)
		cmd.reply(nil)
	case CmdStop:
		cmd.reply(nil)
		return true
	case CmdEmergencyStop:
		o.recordAudit(ctx, "emergency-stop", "user", "")
		cmd.reply(nil)
		return true
	case CmdSetMode:
		o.mu.Lock()
		o.mode = cmd.Mode
		o.mu.Unlock()
		cmd.reply(nil)
	case CmdSetSafetyLevel:
		o.mu.Lock()
		o.safetyLevel = cmd.SafetyLevel
		o.mu.Unlock()
		cmd.reply(nil)
	case CmdApproveChange:
		cmd.reply(o.resolvePending(ctx, cmd.ChangeID, true))
	case CmdRejectChange:
		cmd.reply(o.resolvePending(ctx, cmd.ChangeID, false))
	default:
		cmd.reply(fmt.Errorf("orchestrator: unknown command kind %q", cmd.Kind))
	}
	return false
}

var errNoPendingChange = fmt.Errorf("orchestrator: no such pending change")

func (o *Orchestrator) resolvePending(ctx context.Context, id string, approve bool) error {
	o.mu.Lock()
	pc, ok := o.pending[id]
	if ok {
		delete(o.pending, id)
	}
	remaining := len(o.pending)
	o.mu.Unlock()

	if !ok {
		return errNoPendingChange
	}
	if remaining == 0 {
		o.setState(StateIdle)
	}
	if !approve {
		o.recordAudit(ctx, "change-rejected", "user", pc.Change.ID)
		return nil
	}
	o.applyChange(ctx, pc.Change)
	return nil
}

// Pending returns every change currently awaiting approval.
func (o *Orchestrator) Pending() []PendingChange {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]PendingChange, 0, len(o.pending))
	for _, pc := range o.pending {
		out = append(out, pc)
	}
	return out
}

func (o *Orchestrator) recordAudit(ctx context.Context, action, result, payloadRef string) {
	if o.cfg.Audit == nil {
		return
	}
	if err := o.cfg.Audit.Append(ctx, action, "orchestrator", result, payloadRef); err != nil {
		o.cfg.Logger.Warn("orchestrator: audit append failed", "error", err)
	}
}

func firstPath(change *safety.ProposedChange) string {
	if len(change.Files) == 0 {
		return ""
	}
	return change.Files[0].Path
}
