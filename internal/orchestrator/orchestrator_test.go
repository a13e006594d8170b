package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autodevd/daemon/internal/decision"
	"github.com/autodevd/daemon/internal/event"
	"github.com/autodevd/daemon/internal/safety"
)

type fakeSource struct {
	mu     sync.Mutex
	events []event.Event
}

func (f *fakeSource) Next(ctx context.Context) (event.Event, bool) {
	f.mu.Lock()
	if len(f.events) > 0 {
		e := f.events[0]
		f.events = f.events[1:]
		f.mu.Unlock()
		return e, true
	}
	f.mu.Unlock()

	<-ctx.Done()
	return event.Event{}, false
}

type fakeDecider struct{}

func (fakeDecider) Decide(e event.Event) decision.Decision {
	return decision.Decision{Kind: decision.KindRequiresModel, EventID: e.ID}
}

type fakeProposer struct {
	risk safety.Risk
}

func (p fakeProposer) Propose(_ context.Context, d decision.Decision) (*safety.ProposedChange, bool) {
	return &safety.ProposedChange{
		ID:        "change-" + d.EventID,
		Initiator: "orchestrator",
		Files:     []safety.FileChange{{Path: "mod/a.go", Op: safety.OpModify, LineCount: 1}},
	}, true
}

type fakeGates struct {
	risk   safety.Risk
	passed bool
}

func (g fakeGates) Evaluate(_ context.Context, _ *safety.ProposedChange) (safety.ValidationReport, error) {
	return safety.ValidationReport{Passed: g.passed, Risk: g.risk}, nil
}

type fakeApplier struct {
	mu      sync.Mutex
	applied []string
	err     error
}

func (a *fakeApplier) Apply(_ context.Context, change *safety.ProposedChange) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.applied = append(a.applied, change.ID)
	return nil
}

func (a *fakeApplier) list() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.applied))
	copy(out, a.applied)
	return out
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []string
}

func (a *fakeAudit) Append(_ context.Context, action, initiator, result, payloadRef string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, action+":"+initiator+":"+result+":"+payloadRef)
	return nil
}

func newTestEvent(id string) event.Event {
	return event.New(event.Kind("code-modified"), "mod/a.go", time.Now()).WithFingerprint(id)
}

func TestOrchestrator_FullyAutonomousAutoAppliesPassedChange(t *testing.T) {
	applier := &fakeApplier{}
	audit := &fakeAudit{}
	o := New(Config{
		Events:    &fakeSource{},
		Decisions: fakeDecider{},
		Proposer:  fakeProposer{},
		Gates:     fakeGates{passed: true, risk: safety.RiskLow},
		Applier:   applier,
		Audit:     audit,
		Mode:      ModeFullyAutonomous,
	})

	o.handleEvent(context.Background(), newTestEvent("e1"))

	assert.Len(t, applier.list(), 1)
	assert.Equal(t, 1, o.appliedToday)
	assert.Contains(t, audit.entries[len(audit.entries)-1], "change-applied:orchestrator:success")
}

func TestOrchestrator_ObservationModeNeverApplies(t *testing.T) {
	applier := &fakeApplier{}
	o := New(Config{
		Events:    &fakeSource{},
		Decisions: fakeDecider{},
		Proposer:  fakeProposer{},
		Gates:     fakeGates{passed: true, risk: safety.RiskLow},
		Applier:   applier,
		Mode:      ModeObservation,
	})

	o.handleEvent(context.Background(), newTestEvent("e1"))
	assert.Empty(t, applier.list())
}

func TestOrchestrator_AssistedModeQueuesForApproval(t *testing.T) {
	applier := &fakeApplier{}
	o := New(Config{
		Events:    &fakeSource{},
		Decisions: fakeDecider{},
		Proposer:  fakeProposer{},
		Gates:     fakeGates{passed: true, risk: safety.RiskLow},
		Applier:   applier,
		Mode:      ModeAssisted,
	})

	o.handleEvent(context.Background(), newTestEvent("e1"))
	assert.Empty(t, applier.list())

	pending := o.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, StateIdle, o.State())

	err := o.resolvePending(context.Background(), pending[0].ID, true)
	require.NoError(t, err)
	assert.Len(t, applier.list(), 1)
}

func TestOrchestrator_SemiAutonomousQueuesOnlyHighRisk(t *testing.T) {
	applier := &fakeApplier{}
	o := New(Config{
		Events:    &fakeSource{},
		Decisions: fakeDecider{},
		Proposer:  fakeProposer{},
		Gates:     fakeGates{passed: true, risk: safety.RiskHigh},
		Applier:   applier,
		Mode:      ModeSemiAutonomous,
	})

	o.handleEvent(context.Background(), newTestEvent("e1"))
	assert.Empty(t, applier.list())
	assert.Len(t, o.Pending(), 1)
}

func TestOrchestrator_SemiAutonomousAutoAppliesLowRisk(t *testing.T) {
	applier := &fakeApplier{}
	o := New(Config{
		Events:    &fakeSource{},
		Decisions: fakeDecider{},
		Proposer:  fakeProposer{},
		Gates:     fakeGates{passed: true, risk: safety.RiskLow},
		Applier:   applier,
		Mode:      ModeSemiAutonomous,
	})

	o.handleEvent(context.Background(), newTestEvent("e1"))
	assert.Len(t, applier.list(), 1)
	assert.Empty(t, o.Pending())
}

func TestOrchestrator_GateFailureBlocksApply(t *testing.T) {
	applier := &fakeApplier{}
	audit := &fakeAudit{}
	o := New(Config{
		Events:    &fakeSource{},
		Decisions: fakeDecider{},
		Proposer:  fakeProposer{},
		Gates:     fakeGates{passed: false, risk: safety.RiskCritical},
		Applier:   applier,
		Audit:     audit,
		Mode:      ModeFullyAutonomous,
	})

	o.handleEvent(context.Background(), newTestEvent("e1"))
	assert.Empty(t, applier.list())
	assert.Contains(t, audit.entries[0], "change-rejected:orchestrator:gate_failed")
}

func TestOrchestrator_DailyCapBlocksFurtherApplies(t *testing.T) {
	applier := &fakeApplier{}
	audit := &fakeAudit{}
	fixedNow := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	o := New(Config{
		Events:           &fakeSource{},
		Decisions:        fakeDecider{},
		Proposer:         fakeProposer{},
		Gates:            fakeGates{passed: true, risk: safety.RiskLow},
		Applier:          applier,
		Audit:            audit,
		Mode:             ModeFullyAutonomous,
		MaxChangesPerDay: 2,
		Now:              func() time.Time { return fixedNow },
	})

	for i := 0; i < 3; i++ {
		o.handleEvent(context.Background(), newTestEvent("e"+string(rune('1'+i))))
	}

	assert.Len(t, applier.list(), 2)
	assert.Contains(t, audit.entries[len(audit.entries)-1], "change-blocked:orchestrator:daily_cap_reached")
}

func TestOrchestrator_DailyCapResetsOnNewDay(t *testing.T) {
	applier := &fakeApplier{}
	day1 := time.Date(2026, 7, 30, 23, 59, 0, 0, time.UTC)
	day2 := time.Date(2026, 7, 31, 0, 1, 0, 0, time.UTC)
	current := day1
	o := New(Config{
		Events:           &fakeSource{},
		Decisions:        fakeDecider{},
		Proposer:         fakeProposer{},
		Gates:            fakeGates{passed: true, risk: safety.RiskLow},
		Applier:          applier,
		Mode:             ModeFullyAutonomous,
		MaxChangesPerDay: 1,
		Now:              func() time.Time { return current },
	})

	o.handleEvent(context.Background(), newTestEvent("e1"))
	assert.Len(t, applier.list(), 1)

	current = day2
	o.handleEvent(context.Background(), newTestEvent("e2"))
	assert.Len(t, applier.list(), 2, "daily cap must reset once the clock crosses into a new day")
}

func TestOrchestrator_ApplyFailureEntersRecoveringThenIdle(t *testing.T) {
	applier := &fakeApplier{err: assert.AnError}
	audit := &fakeAudit{}
	o := New(Config{
		Events:    &fakeSource{},
		Decisions: fakeDecider{},
		Proposer:  fakeProposer{},
		Gates:     fakeGates{passed: true, risk: safety.RiskLow},
		Applier:   applier,
		Audit:     audit,
		Mode:      ModeFullyAutonomous,
	})

	o.handleEvent(context.Background(), newTestEvent("e1"))
	assert.Equal(t, StateIdle, o.State())
	assert.Contains(t, audit.entries[len(audit.entries)-1], "change-apply-failed:orchestrator:failure")
}

func TestOrchestrator_RunProcessesEventsAndStopsOnCommand(t *testing.T) {
	src := &fakeSource{events: []event.Event{newTestEvent("e1")}}
	applier := &fakeApplier{}
	o := New(Config{
		Events:    src,
		Decisions: fakeDecider{},
		Proposer:  fakeProposer{},
		Gates:     fakeGates{passed: true, risk: safety.RiskLow},
		Applier:   applier,
		Mode:      ModeFullyAutonomous,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	require.Eventually(t, func() bool { return len(applier.list()) == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, o.Submit(context.Background(), ControlCommand{Kind: CmdStop, Reply: make(chan error, 1)}))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after CmdStop")
	}
	assert.Equal(t, StateShutdown, o.State())
}

func TestOrchestrator_RejectPendingDoesNotApply(t *testing.T) {
	applier := &fakeApplier{}
	audit := &fakeAudit{}
	o := New(Config{
		Events:    &fakeSource{},
		Decisions: fakeDecider{},
		Proposer:  fakeProposer{},
		Gates:     fakeGates{passed: true, risk: safety.RiskLow},
		Applier:   applier,
		Audit:     audit,
		Mode:      ModeAssisted,
	})

	o.handleEvent(context.Background(), newTestEvent("e1"))
	pending := o.Pending()
	require.Len(t, pending, 1)

	require.NoError(t, o.resolvePending(context.Background(), pending[0].ID, false))
	assert.Empty(t, applier.list())
	assert.Empty(t, o.Pending())
	assert.Contains(t, audit.entries[len(audit.entries)-1], "change-rejected:orchestrator:user")
}
