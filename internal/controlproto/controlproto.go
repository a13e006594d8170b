// Package controlproto implements the daemon's control protocol (spec §6):
// line-delimited JSON over a localhost TCP socket, one request/response
// per connection line. The daemon picks an ephemeral port and publishes it
// via loop/control.port for clients to discover.
package controlproto

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/autodevd/daemon/internal/event"
)

// RequestKind tags the variant held by a Request.
type RequestKind string

const (
	ReqShutdown    RequestKind = "Shutdown"
	ReqStatus      RequestKind = "Status"
	ReqQueueEvent  RequestKind = "QueueEvent"
	ReqGetMetrics  RequestKind = "GetMetrics"
	ReqPing        RequestKind = "Ping"
)

// Request is one control-protocol line sent by a client.
type Request struct {
	Kind  RequestKind `json:"kind"`
	Event *ClientEvent `json:"event,omitempty"`
}

// ClientEvent is the wire shape of a QueueEvent payload — a minimal
// subset of event.Event a client can legally inject.
type ClientEvent struct {
	Kind       string            `json:"kind"`
	SourcePath string            `json:"source_path"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ResponseKind tags the variant held by a Response.
type ResponseKind string

const (
	RespSuccess ResponseKind = "Success"
	RespError   ResponseKind = "Error"
	RespStatus  ResponseKind = "Status"
	RespMetrics ResponseKind = "Metrics"
	RespPong    ResponseKind = "Pong"
)

// Response is one control-protocol reply line.
type Response struct {
	Kind           ResponseKind   `json:"kind"`
	Message        string         `json:"message,omitempty"`
	State          string         `json:"state,omitempty"`
	UptimeSeconds  float64        `json:"uptime_seconds,omitempty"`
	EventsProcessed int64         `json:"events_processed,omitempty"`
	Metrics        map[string]any `json:"metrics,omitempty"`
}

// StatusProvider supplies the daemon's live status for a Status request.
type StatusProvider interface {
	State() string
	UptimeSeconds() float64
	EventsProcessed() int64
}

// MetricsProvider supplies a metrics snapshot for a GetMetrics request.
type MetricsProvider interface {
	Snapshot() map[string]any
}

// EventQueuer accepts an externally injected event, the narrow seam into
// internal/event's Pipeline.
type EventQueuer interface {
	Ingest(e event.Event) bool
}

// Shutdowner is invoked for a Shutdown request.
type Shutdowner interface {
	RequestShutdown(reason string)
}

// Server is the control protocol's TCP listener.
type Server struct {
	ln       net.Listener
	status   StatusProvider
	metrics  MetricsProvider
	queue    EventQueuer
	shutdown Shutdowner
	logger   *slog.Logger
}

// Deps bundles a Server's collaborators; any may be nil, in which case the
// corresponding request kind replies with an Error.
type Deps struct {
	Status   StatusProvider
	Metrics  MetricsProvider
	Queue    EventQueuer
	Shutdown Shutdowner
	Logger   *slog.Logger
}

// Listen binds to an ephemeral localhost port and writes it to portFilePath,
// per spec's loop/control.port discovery file.
func Listen(portFilePath string, deps Deps) (*Server, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("controlproto: listen: %w", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	if err := os.MkdirAll(filepath.Dir(portFilePath), 0o755); err != nil {
		ln.Close()
		return nil, fmt.Errorf("controlproto: create control dir: %w", err)
	}
	if err := os.WriteFile(portFilePath, []byte(fmt.Sprintf("%d\n", port)), 0o600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("controlproto: write port file: %w", err)
	}

	return &Server{
		ln:       ln,
		status:   deps.Status,
		metrics:  deps.Metrics,
		queue:    deps.Queue,
		shutdown: deps.Shutdown,
		logger:   deps.Logger.With("component", "controlproto"),
	}, nil
}

// Addr returns the listener's bound address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Close stops accepting new connections.
func (s *Server) Close() error { return s.ln.Close() }

// Serve accepts connections until ctx is cancelled or the listener closes.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("controlproto: accept: %w", err)
			}
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		var req Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			_ = enc.Encode(Response{Kind: RespError, Message: "malformed request: " + err.Error()})
			continue
		}
		resp := s.dispatch(req)
		if err := enc.Encode(resp); err != nil {
			s.logger.Warn("controlproto: write response failed", "error", err)
			return
		}
		if req.Kind == ReqShutdown {
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	switch req.Kind {
	case ReqPing:
		return Response{Kind: RespPong}
	case ReqStatus:
		if s.status == nil {
			return Response{Kind: RespError, Message: "status unavailable"}
		}
		return Response{
			Kind:            RespStatus,
			State:           s.status.State(),
			UptimeSeconds:   s.status.UptimeSeconds(),
			EventsProcessed: s.status.EventsProcessed(),
		}
	case ReqGetMetrics:
		if s.metrics == nil {
			return Response{Kind: RespError, Message: "metrics unavailable"}
		}
		return Response{Kind: RespMetrics, Metrics: s.metrics.Snapshot()}
	case ReqQueueEvent:
		if s.queue == nil || req.Event == nil {
			return Response{Kind: RespError, Message: "event queue unavailable or event missing"}
		}
		e := event.New(event.Kind(req.Event.Kind), req.Event.SourcePath, time.Now())
		for k, v := range req.Event.Metadata {
			e = e.WithMetadata(k, v)
		}
		if !s.queue.Ingest(e) {
			return Response{Kind: RespError, Message: "event rejected by pipeline filters"}
		}
		return Response{Kind: RespSuccess, Message: "queued"}
	case ReqShutdown:
		if s.shutdown == nil {
			return Response{Kind: RespError, Message: "shutdown unavailable"}
		}
		s.shutdown.RequestShutdown("control protocol shutdown request")
		return Response{Kind: RespSuccess, Message: "shutting down"}
	default:
		return Response{Kind: RespError, Message: "unknown request kind: " + string(req.Kind)}
	}
}

// ReadPortFile reads the port written by Listen, for client discovery.
func ReadPortFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("controlproto: read port file: %w", err)
	}
	var port int
	if _, err := fmt.Sscanf(string(data), "%d", &port); err != nil {
		return 0, fmt.Errorf("controlproto: parse port file: %w", err)
	}
	return port, nil
}
