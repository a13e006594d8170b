package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/autodevd/daemon/internal/controlproto"
)

// client is a thin wrapper over one control-protocol round trip: dial,
// write one JSON line, read one JSON line, close.
type client struct {
	dataDir string
	timeout time.Duration
}

func newClient(dataDir string) *client {
	return &client{dataDir: dataDir, timeout: 5 * time.Second}
}

func (c *client) roundTrip(req controlproto.Request) (controlproto.Response, error) {
	portFile := fmt.Sprintf("%s/loop/control.port", c.dataDir)
	port, err := controlproto.ReadPortFile(portFile)
	if err != nil {
		return controlproto.Response{}, fmt.Errorf("daemonctl: daemon not running (or wrong --data-dir): %w", err)
	}

	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), c.timeout)
	if err != nil {
		return controlproto.Response{}, fmt.Errorf("daemonctl: connect: %w", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	data, err := json.Marshal(req)
	if err != nil {
		return controlproto.Response{}, err
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return controlproto.Response{}, fmt.Errorf("daemonctl: write: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return controlproto.Response{}, fmt.Errorf("daemonctl: no response from daemon: %w", scanner.Err())
	}
	var resp controlproto.Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return controlproto.Response{}, fmt.Errorf("daemonctl: decode response: %w", err)
	}
	return resp, nil
}
