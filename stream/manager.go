// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/firefly-qa/firefly/lib/clock"
)

// ErrClosed is returned when using a closed Handle, EventSource, or
// Manager.
var ErrClosed = errors.New("stream: closed")

// Default intervals.
const (
	DefaultReconnectInterval = time.Second
	DefaultSendRetryInterval = time.Second
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// BaseURL is prefixed to every endpoint, e.g. "ws://host/api".
	BaseURL string

	// Dialer opens sockets. Required.
	Dialer Dialer

	// Clock drives the reconnect and send retry waits. Nil means
	// clock.Real().
	Clock clock.Clock

	// Logger receives connection lifecycle logs. Nil means
	// slog.Default().
	Logger *slog.Logger

	// ReconnectInterval is the wait before redialing after a failed
	// dial or a dropped socket. Zero means DefaultReconnectInterval.
	ReconnectInterval time.Duration

	// SendRetryInterval is the wait before retrying a payload that
	// could not be written. Zero means DefaultSendRetryInterval.
	SendRetryInterval time.Duration
}

// Handler receives a handle's inbound traffic. Both callbacks run on
// the connection's reader goroutine, so a slow callback delays every
// handle on the endpoint. Either may be nil.
type Handler struct {
	// Message is called once per inbound frame, in arrival order.
	Message func(payload []byte)

	// Open is called each time a socket is established; reconnect is
	// false for the first socket of the connection.
	Open func(reconnect bool)
}

// Manager owns the connections to each endpoint. The zero value is not
// usable; construct with NewManager.
type Manager struct {
	config      ManagerConfig
	mutex       sync.Mutex
	connections map[string]*connection
	closed      bool
}

// NewManager validates config and returns an idle Manager. No socket
// is dialed until Open.
func NewManager(config ManagerConfig) (*Manager, error) {
	if config.Dialer == nil {
		return nil, errors.New("stream: ManagerConfig.Dialer is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.ReconnectInterval <= 0 {
		config.ReconnectInterval = DefaultReconnectInterval
	}
	if config.SendRetryInterval <= 0 {
		config.SendRetryInterval = DefaultSendRetryInterval
	}
	return &Manager{
		config:      config,
		connections: make(map[string]*connection),
	}, nil
}

// Open attaches a handle to endpoint, starting the connection if no
// other handle holds it.
func (m *Manager) Open(endpoint string, handler Handler) (*Handle, error) {
	if !strings.HasPrefix(endpoint, "/") {
		return nil, fmt.Errorf("stream: endpoint %q must start with /", endpoint)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	// A connection that ended on its own stays in the table until its
	// forget runs; it refuses the handle and is replaced here.
	if conn, ok := m.connections[endpoint]; ok {
		handle := newHandle(conn, handler)
		if conn.attach(handle) {
			return handle, nil
		}
	}
	url := strings.TrimRight(m.config.BaseURL, "/") + endpoint
	conn := newConnection(m, endpoint, url)
	m.connections[endpoint] = conn
	handle := newHandle(conn, handler)
	conn.attach(handle)
	conn.start()
	return handle, nil
}

// Connected reports whether endpoint currently has an open socket.
func (m *Manager) Connected(endpoint string) bool {
	m.mutex.Lock()
	conn, ok := m.connections[endpoint]
	m.mutex.Unlock()
	return ok && conn.connected()
}

// Close ends every connection and waits for their goroutines to exit.
// Later Opens fail with ErrClosed.
func (m *Manager) Close() {
	m.mutex.Lock()
	m.closed = true
	connections := make([]*connection, 0, len(m.connections))
	for endpoint, conn := range m.connections {
		connections = append(connections, conn)
		delete(m.connections, endpoint)
	}
	m.mutex.Unlock()

	for _, conn := range connections {
		conn.stop()
	}
	for _, conn := range connections {
		conn.wait()
	}
}

// detach removes handle from its connection and stops the connection
// when no handles remain.
func (m *Manager) detach(handle *Handle) {
	m.mutex.Lock()
	conn := handle.conn
	remaining := conn.detach(handle)
	if remaining == 0 && m.connections[conn.endpoint] == conn {
		delete(m.connections, conn.endpoint)
	}
	m.mutex.Unlock()

	if remaining == 0 {
		conn.stop()
	}
}

// forget drops conn from the table after it ended on its own.
func (m *Manager) forget(conn *connection) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.connections[conn.endpoint] == conn {
		delete(m.connections, conn.endpoint)
	}
}

// Handle is one subscriber's attachment to an endpoint.
type Handle struct {
	conn      *connection
	handler   Handler
	done      chan struct{}
	doneOnce  sync.Once
	closeOnce sync.Once
}

func newHandle(conn *connection, handler Handler) *Handle {
	return &Handle{conn: conn, handler: handler, done: make(chan struct{})}
}

// Send queues payload for the endpoint. It returns immediately; the
// payload is written once a socket is open, retried until written or
// the connection ends.
func (h *Handle) Send(payload []byte) error {
	select {
	case <-h.done:
		return ErrClosed
	default:
	}
	h.conn.queue.Push(payload)
	return nil
}

// Done is closed when the handle stops receiving: after Close, or when
// the connection ends (server end-of-stream or Manager.Close).
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Close detaches the handle. The socket is closed if this was the last
// handle on the endpoint. Safe to call more than once.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		h.finish()
		h.conn.manager.detach(h)
	})
	return nil
}

func (h *Handle) finish() {
	h.doneOnce.Do(func() { close(h.done) })
}

func (h *Handle) active() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}
