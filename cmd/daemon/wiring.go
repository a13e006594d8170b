package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/autodevd/daemon/internal/audit"
	"github.com/autodevd/daemon/internal/checkpoint"
	"github.com/autodevd/daemon/internal/decision"
	"github.com/autodevd/daemon/internal/event"
	"github.com/autodevd/daemon/internal/module"
	"github.com/autodevd/daemon/internal/orchestrator"
	"github.com/autodevd/daemon/internal/reload"
	"github.com/autodevd/daemon/internal/safety"
	"github.com/autodevd/daemon/internal/upgrade"
)

// auditAdapter narrows *audit.Trail (which returns (Entry, error) so
// callers can inspect the hash-chained entry it just wrote) down to the
// bare-error AuditRecorder seam internal/reload, internal/upgrade and
// internal/orchestrator each declare independently.
type auditAdapter struct {
	trail *audit.Trail
}

func (a auditAdapter) Append(ctx context.Context, action, initiator, result, payloadRef string) error {
	_, err := a.trail.Append(ctx, action, initiator, result, payloadRef)
	return err
}

// selfPrefix marks a proposed change as targeting the daemon's own binary
// rather than a loaded module: any file under cmd/daemon/ counts.
const selfPrefix = "cmd/daemon/"

// moduleApplier routes an approved ProposedChange to either the hot-reload
// coordinator (a module's source changed) or the self-upgrade state
// machine (the daemon's own binary changed), the two already-built
// apply paths the orchestrator's Applier seam delegates to.
type moduleApplier struct {
	reloadCoord *reload.Coordinator
	upgrader    *upgrade.Upgrader
	version     string
	logger      *slog.Logger
}

func (a *moduleApplier) Apply(ctx context.Context, change *safety.ProposedChange) error {
	if a.targetsSelf(change) {
		result := a.upgrader.Run(ctx, a.version, nil, nil)
		if result.Err != nil {
			return fmt.Errorf("self-upgrade: %w", result.Err)
		}
		return nil
	}

	moduleID, newPath, ok := a.moduleTarget(change)
	if !ok {
		return fmt.Errorf("moduleApplier: change %s touches no file path", change.ID)
	}
	result := a.reloadCoord.Reload(ctx, moduleID, newPath)
	if !result.Success {
		return fmt.Errorf("module reload %s: %w", moduleID, result.Err)
	}
	return nil
}

func (a *moduleApplier) targetsSelf(change *safety.ProposedChange) bool {
	for _, f := range change.Files {
		if strings.HasPrefix(f.Path, selfPrefix) {
			return true
		}
	}
	return false
}

// moduleTarget derives a module ID and staged path from the change's
// first file. Modules live under <data-dir>/modules/<id>/..., so the
// path segment immediately after "modules/" is the ID.
func (a *moduleApplier) moduleTarget(change *safety.ProposedChange) (id, path string, ok bool) {
	if len(change.Files) == 0 {
		return "", "", false
	}
	f := change.Files[0]
	parts := strings.Split(filepath.ToSlash(f.Path), "/")
	for i, p := range parts {
		if p == "modules" && i+1 < len(parts) {
			return parts[i+1], f.Path, true
		}
	}
	return change.Initiator, f.Path, true
}

// moduleExecutor handles decisions that need no source modification: the
// non-model tiers (pattern/template/cache/similar) already resolved the
// event without touching disk, so execution here is bookkeeping only.
type moduleExecutor struct {
	logger *slog.Logger
}

func (e *moduleExecutor) Execute(ctx context.Context, d decision.Decision) error {
	e.logger.Debug("decision executed without source change", "kind", d.Kind, "event_id", d.EventID)
	return nil
}

// noopProposer is the default ChangeProposer: it declines to synthesize a
// diff for any decision. Proposal synthesis (the model call that turns a
// requires-model Decision into an actual FileChange set) is the one piece
// of the pipeline that genuinely lives outside this repo — an operator
// wires a concrete Proposer backed by whatever model integration they run.
type noopProposer struct {
	logger *slog.Logger
}

func (p *noopProposer) Propose(ctx context.Context, d decision.Decision) (*safety.ProposedChange, bool) {
	if d.Kind == decision.KindRequiresModel {
		p.logger.Debug("requires-model decision has no wired proposer, routing to skip", "event_id", d.EventID)
	}
	return nil, false
}

// statusAdapter feeds both the control protocol's StatusProvider and the
// admin HTTP surface's HealthReporter from the same live counters.
type statusAdapter struct {
	orch      *orchestrator.Orchestrator
	startedAt time.Time
	processed atomic.Int64
}

func (s *statusAdapter) State() string          { return s.orch.State().String() }
func (s *statusAdapter) UptimeSeconds() float64 { return time.Since(s.startedAt).Seconds() }
func (s *statusAdapter) EventsProcessed() int64 { return s.processed.Load() }

func (s *statusAdapter) Healthy() (bool, string) {
	if s.orch.State() == orchestrator.StateShutdown {
		return false, "orchestrator shut down"
	}
	return true, s.orch.State().String()
}

// countingEvents wraps an event.Pipeline so every event the orchestrator
// pulls off it is also reflected in statusAdapter's EventsProcessed.
type countingEvents struct {
	pipeline *event.Pipeline
	status   *statusAdapter
}

func (c countingEvents) Next(ctx context.Context) (event.Event, bool) {
	e, ok := c.pipeline.Next(ctx)
	if ok {
		c.status.processed.Add(1)
	}
	return e, ok
}

// metricsAdapter feeds the control protocol's GetMetrics request from the
// decision engine's budget counters — the cheapest live signal worth
// exposing without duplicating the /metrics Prometheus surface.
type metricsAdapter struct {
	engine *decision.Engine
}

func (m metricsAdapter) Snapshot() map[string]any {
	stats := m.engine.Budget()
	return map[string]any{
		"tokens_remaining":    stats.Remaining,
		"tokens_saved":        stats.TokensSaved,
		"invocations_avoided": stats.InvocationsAvoided,
	}
}

// checkpointAdapter narrows *checkpoint.Store to orchestrator.CheckpointCreator.
type checkpointAdapter struct {
	store *checkpoint.Store
}

func (c checkpointAdapter) Create(description string, v any, now time.Time) (string, error) {
	return c.store.Create(description, v, now)
}

// nativeModuleFactory is the default module.NativeFactory: this daemon
// ships no native (.so/.dll/.dylib) module runtime, only the WASM path
// module.Loader already handles internally, so native modules fail closed
// with a descriptive error instead of panicking deep in reflection.
func nativeModuleFactory(path string, meta module.Metadata) (module.Interface, error) {
	return nil, fmt.Errorf("daemon: native module runtime not configured for %s", path)
}
