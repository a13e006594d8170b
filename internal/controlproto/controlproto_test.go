package controlproto

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autodevd/daemon/internal/event"
)

type fakeStatus struct{}

func (fakeStatus) State() string           { return "idle" }
func (fakeStatus) UptimeSeconds() float64  { return 42.5 }
func (fakeStatus) EventsProcessed() int64  { return 7 }

type fakeMetrics struct{}

func (fakeMetrics) Snapshot() map[string]any { return map[string]any{"events_total": 7} }

type fakeQueue struct {
	accepted []event.Event
	reject   bool
}

func (q *fakeQueue) Ingest(e event.Event) bool {
	if q.reject {
		return false
	}
	q.accepted = append(q.accepted, e)
	return true
}

type fakeShutdowner struct{ reason string }

func (s *fakeShutdowner) RequestShutdown(reason string) { s.reason = reason }

func dialAndRoundTrip(t *testing.T, addr net.Addr, req Request) Response {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	data, err := json.Marshal(req)
	require.NoError(t, err)
	_, err = conn.Write(append(data, '\n'))
	require.NoError(t, err)

	scanner := bufio.NewScanner(conn)
	require.True(t, scanner.Scan())
	var resp Response
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
	return resp
}

func startTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	portFile := filepath.Join(t.TempDir(), "loop", "control.port")
	srv, err := Listen(portFile, deps)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Serve(ctx)

	data, err := os.ReadFile(portFile)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	return srv
}

func TestServer_PingReturnsPong(t *testing.T) {
	srv := startTestServer(t, Deps{})
	resp := dialAndRoundTrip(t, srv.Addr(), Request{Kind: ReqPing})
	assert.Equal(t, RespPong, resp.Kind)
}

func TestServer_StatusReturnsProvidedFields(t *testing.T) {
	srv := startTestServer(t, Deps{Status: fakeStatus{}})
	resp := dialAndRoundTrip(t, srv.Addr(), Request{Kind: ReqStatus})
	assert.Equal(t, RespStatus, resp.Kind)
	assert.Equal(t, "idle", resp.State)
	assert.Equal(t, int64(7), resp.EventsProcessed)
}

func TestServer_GetMetricsReturnsSnapshot(t *testing.T) {
	srv := startTestServer(t, Deps{Metrics: fakeMetrics{}})
	resp := dialAndRoundTrip(t, srv.Addr(), Request{Kind: ReqGetMetrics})
	assert.Equal(t, RespMetrics, resp.Kind)
	assert.Equal(t, float64(7), resp.Metrics["events_total"])
}

func TestServer_QueueEventIngestsAndRespondsSuccess(t *testing.T) {
	queue := &fakeQueue{}
	srv := startTestServer(t, Deps{Queue: queue})
	resp := dialAndRoundTrip(t, srv.Addr(), Request{
		Kind:  ReqQueueEvent,
		Event: &ClientEvent{Kind: "code-modified", SourcePath: "a.go"},
	})
	assert.Equal(t, RespSuccess, resp.Kind)
	require.Len(t, queue.accepted, 1)
	assert.Equal(t, "a.go", queue.accepted[0].SourcePath)
}

func TestServer_QueueEventRejectedByPipelineReturnsError(t *testing.T) {
	queue := &fakeQueue{reject: true}
	srv := startTestServer(t, Deps{Queue: queue})
	resp := dialAndRoundTrip(t, srv.Addr(), Request{
		Kind:  ReqQueueEvent,
		Event: &ClientEvent{Kind: "code-modified", SourcePath: "a.go"},
	})
	assert.Equal(t, RespError, resp.Kind)
}

func TestServer_ShutdownInvokesShutdownerAndClosesConnection(t *testing.T) {
	shutdowner := &fakeShutdowner{}
	srv := startTestServer(t, Deps{Shutdown: shutdowner})
	resp := dialAndRoundTrip(t, srv.Addr(), Request{Kind: ReqShutdown})
	assert.Equal(t, RespSuccess, resp.Kind)

	require.Eventually(t, func() bool { return shutdowner.reason != "" }, time.Second, 10*time.Millisecond)
}

func TestServer_UnknownRequestKindReturnsError(t *testing.T) {
	srv := startTestServer(t, Deps{})
	resp := dialAndRoundTrip(t, srv.Addr(), Request{Kind: "bogus"})
	assert.Equal(t, RespError, resp.Kind)
}

func TestReadPortFile_RoundTripsWrittenPort(t *testing.T) {
	portFile := filepath.Join(t.TempDir(), "loop", "control.port")
	srv, err := Listen(portFile, Deps{})
	require.NoError(t, err)
	defer srv.Close()

	port, err := ReadPortFile(portFile)
	require.NoError(t, err)
	assert.Equal(t, srv.Addr().(*net.TCPAddr).Port, port)
}
