package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/autodevd/daemon/internal/controlproto"
	"github.com/autodevd/daemon/internal/event"
)

type fakeStatus struct{}

func (fakeStatus) State() string          { return "Idle" }
func (fakeStatus) UptimeSeconds() float64 { return 12.5 }
func (fakeStatus) EventsProcessed() int64 { return 7 }

type fakeMetrics struct{}

func (fakeMetrics) Snapshot() map[string]any {
	return map[string]any{"tokens_remaining": int64(42)}
}

type fakeQueue struct{ accepted bool }

func (q *fakeQueue) Ingest(e event.Event) bool { q.accepted = true; return true }

type fakeShutdowner struct{ called bool }

func (s *fakeShutdowner) RequestShutdown(reason string) { s.called = true }

func startTestServer(t *testing.T, dataDir string) (*controlproto.Server, *fakeQueue, *fakeShutdowner) {
	t.Helper()
	queue := &fakeQueue{}
	shutdown := &fakeShutdowner{}
	srv, err := controlproto.Listen(filepath.Join(dataDir, "loop", "control.port"), controlproto.Deps{
		Status:   fakeStatus{},
		Metrics:  fakeMetrics{},
		Queue:    queue,
		Shutdown: shutdown,
	})
	if err != nil {
		t.Fatalf("controlproto.Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	go srv.Serve(ctx)
	return srv, queue, shutdown
}

func TestClientRoundTripStatus(t *testing.T) {
	dir := t.TempDir()
	startTestServer(t, dir)

	resp, err := newClient(dir).roundTrip(controlproto.Request{Kind: controlproto.ReqStatus})
	if err != nil {
		t.Fatalf("roundTrip: %v", err)
	}
	if resp.Kind != controlproto.RespStatus || resp.State != "Idle" || resp.EventsProcessed != 7 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestClientRoundTripPing(t *testing.T) {
	dir := t.TempDir()
	startTestServer(t, dir)

	resp, err := newClient(dir).roundTrip(controlproto.Request{Kind: controlproto.ReqPing})
	if err != nil {
		t.Fatalf("roundTrip: %v", err)
	}
	if resp.Kind != controlproto.RespPong {
		t.Errorf("Kind = %v, want Pong", resp.Kind)
	}
}

func TestClientRoundTripQueueEvent(t *testing.T) {
	dir := t.TempDir()
	_, queue, _ := startTestServer(t, dir)

	resp, err := newClient(dir).roundTrip(controlproto.Request{
		Kind:  controlproto.ReqQueueEvent,
		Event: &controlproto.ClientEvent{Kind: "code-modified", SourcePath: "modules/widget/handler.go"},
	})
	if err != nil {
		t.Fatalf("roundTrip: %v", err)
	}
	if resp.Kind != controlproto.RespSuccess {
		t.Errorf("Kind = %v, Message = %q", resp.Kind, resp.Message)
	}
	if !queue.accepted {
		t.Error("expected the fake queue to have ingested the event")
	}
}

func TestClientRoundTripNoDaemonRunning(t *testing.T) {
	dir := t.TempDir()
	c := newClient(dir)
	c.timeout = 200 * time.Millisecond

	if _, err := c.roundTrip(controlproto.Request{Kind: controlproto.ReqPing}); err == nil {
		t.Error("expected an error when no control.port file exists")
	}
}
