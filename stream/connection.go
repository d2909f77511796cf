// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/firefly-qa/firefly/lib/netutil"
)

// connection is the physical side of one endpoint: the dial/read loop,
// the writer, and the current socket.
type connection struct {
	manager  *Manager
	endpoint string
	url      string
	logger   *slog.Logger
	queue    *sendQueue

	ctx    context.Context
	cancel context.CancelFunc
	group  sync.WaitGroup

	mutex   sync.Mutex
	socket  Socket
	handles []*Handle
	stopped bool
}

func newConnection(manager *Manager, endpoint, url string) *connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &connection{
		manager:  manager,
		endpoint: endpoint,
		url:      url,
		logger:   manager.config.Logger.With("endpoint", endpoint),
		queue:    newSendQueue(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (c *connection) start() {
	c.group.Add(2)
	go c.run()
	go c.writeLoop()
}

// attach adds handle and reports whether it was added. A stopped
// connection takes no new handles.
func (c *connection) attach(handle *Handle) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.stopped {
		return false
	}
	c.handles = append(c.handles, handle)
	return true
}

// detach removes handle and returns how many handles remain.
func (c *connection) detach(handle *Handle) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for index, attached := range c.handles {
		if attached == handle {
			c.handles = append(c.handles[:index], c.handles[index+1:]...)
			break
		}
	}
	return len(c.handles)
}

// stop ends the connection deliberately: no further dials, and the
// current socket (if any) is closed before stop returns.
func (c *connection) stop() {
	c.mutex.Lock()
	c.stopped = true
	socket := c.socket
	c.socket = nil
	c.mutex.Unlock()

	c.cancel()
	if socket != nil {
		socket.Close()
	}
}

func (c *connection) wait() {
	c.group.Wait()
}

func (c *connection) connected() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.socket != nil
}

func (c *connection) currentSocket() Socket {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.socket
}

// install publishes socket as current. It reports false, having closed
// socket, if the connection was stopped while the dial was in flight.
func (c *connection) install(socket Socket) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.stopped {
		socket.Close()
		return false
	}
	c.socket = socket
	return true
}

func (c *connection) uninstall(socket Socket) {
	c.mutex.Lock()
	if c.socket == socket {
		c.socket = nil
	}
	c.mutex.Unlock()
	socket.Close()
}

func (c *connection) activeHandles() []*Handle {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	handles := make([]*Handle, 0, len(c.handles))
	for _, handle := range c.handles {
		if handle.active() {
			handles = append(handles, handle)
		}
	}
	return handles
}

// run dials, reads until the socket fails, and redials after the
// reconnect interval. It returns on stop or when the server ends the
// stream.
func (c *connection) run() {
	defer c.group.Done()
	defer c.end()

	interval := c.manager.config.ReconnectInterval
	reconnect := false
	for {
		socket, err := c.manager.config.Dialer.Dial(c.ctx, c.url)
		if c.ctx.Err() != nil {
			if err == nil {
				socket.Close()
			}
			return
		}
		if err != nil {
			c.logger.Warn("stream dial failed, will retry",
				"error", err,
				"backoff", interval,
			)
			if !c.sleep(interval) {
				return
			}
			continue
		}

		if !c.install(socket) {
			return
		}
		c.logger.Info("stream connected", "reconnect", reconnect)
		for _, handle := range c.activeHandles() {
			if handle.handler.Open != nil {
				handle.handler.Open(reconnect)
			}
		}

		err = c.read(socket)
		c.uninstall(socket)
		if c.ctx.Err() != nil {
			return
		}

		if netutil.ClassifyClose(err) == netutil.CloseEndOfStream {
			c.logger.Info("stream ended by server")
			return
		}
		c.logger.Warn("stream closed unexpectedly, will reconnect",
			"error", err,
			"backoff", interval,
		)
		if !c.sleep(interval) {
			return
		}
		reconnect = true
	}
}

// read delivers frames to every active handle until the socket fails.
func (c *connection) read(socket Socket) error {
	for {
		payload, err := socket.ReadMessage()
		if err != nil {
			return err
		}
		for _, handle := range c.activeHandles() {
			if handle.handler.Message != nil {
				handle.handler.Message(payload)
			}
		}
	}
}

// end runs when the read loop exits: it stops the writer, drops the
// connection from the manager, and closes every handle's Done.
func (c *connection) end() {
	c.mutex.Lock()
	c.stopped = true
	handles := c.handles
	c.handles = nil
	c.mutex.Unlock()

	c.cancel()
	c.manager.forget(c)
	for _, handle := range handles {
		handle.finish()
	}
}

// writeLoop drains the send queue. A payload is popped only after a
// successful write; while no socket is open, or after a failed write,
// it waits the send retry interval and tries the same payload again.
func (c *connection) writeLoop() {
	defer c.group.Done()

	interval := c.manager.config.SendRetryInterval
	for {
		payload, ok := c.queue.Peek()
		if !ok {
			select {
			case <-c.queue.Notify():
				continue
			case <-c.ctx.Done():
				return
			}
		}

		socket := c.currentSocket()
		if socket == nil {
			c.logger.Debug("stream not open, send will retry",
				"backoff", interval,
				"pending", c.queue.Len(),
			)
			if !c.sleep(interval) {
				return
			}
			continue
		}
		if err := socket.WriteMessage(payload); err != nil {
			if c.ctx.Err() != nil {
				return
			}
			// A socket torn down under the writer is the reader's to
			// report; it reconnects on its own.
			level := slog.LevelWarn
			if netutil.IsExpectedCloseError(err) {
				level = slog.LevelDebug
			}
			c.logger.Log(c.ctx, level, "stream send failed, will retry",
				"error", err,
				"backoff", interval,
				"pending", c.queue.Len(),
			)
			if !c.sleep(interval) {
				return
			}
			continue
		}
		c.queue.Pop()
	}
}

// sleep waits d on the manager's clock and reports false if the
// connection stopped first.
func (c *connection) sleep(d time.Duration) bool {
	select {
	case <-c.manager.config.Clock.After(d):
		return true
	case <-c.ctx.Done():
		return false
	}
}
