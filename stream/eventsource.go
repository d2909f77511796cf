// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// DefaultInboxCapacity is the inbox size used when none is given.
const DefaultInboxCapacity = 256

// EventSourceConfig configures OpenEventSource.
type EventSourceConfig struct {
	// Endpoint is the stream path, e.g. "/script/ws/history/".
	Endpoint string

	// InboxCapacity bounds the frames buffered between the socket and
	// Next. Values below 1 mean DefaultInboxCapacity.
	InboxCapacity int

	// Tap, if set, sees every frame before it is queued. It runs on
	// the connection's reader goroutine.
	Tap func(payload []byte)

	// OnReconnect, if set, is called after the socket is re-established
	// following a drop. It runs on the connection's reader goroutine.
	OnReconnect func()
}

// EventSource is a pull-based view of one endpoint's inbound frames.
// Next is meant for a single consumer goroutine; Send and Close may be
// called from any goroutine.
type EventSource struct {
	handle    *Handle
	inbox     chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

// OpenEventSource attaches a new handle to config.Endpoint on manager.
func OpenEventSource(manager *Manager, config EventSourceConfig) (*EventSource, error) {
	capacity := config.InboxCapacity
	if capacity < 1 {
		capacity = DefaultInboxCapacity
	}
	source := &EventSource{
		inbox:  make(chan []byte, capacity),
		closed: make(chan struct{}),
	}

	handle, err := manager.Open(config.Endpoint, Handler{
		Message: func(payload []byte) {
			if config.Tap != nil {
				config.Tap(payload)
			}
			source.enqueue(payload)
		},
		Open: func(reconnect bool) {
			if reconnect && config.OnReconnect != nil {
				config.OnReconnect()
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("stream: opening event source on %s: %w", config.Endpoint, err)
	}
	source.handle = handle
	return source, nil
}

// enqueue blocks while the inbox is full. Closing the source releases
// it.
func (s *EventSource) enqueue(payload []byte) {
	select {
	case s.inbox <- payload:
	case <-s.closed:
	}
}

// Next returns the next inbound frame in arrival order, blocking until
// one arrives. It returns io.EOF once the stream has ended and every
// buffered frame has been returned, ErrClosed after Close, and the
// context's error if ctx is done first.
func (s *EventSource) Next(ctx context.Context) ([]byte, error) {
	select {
	case <-s.closed:
		return nil, ErrClosed
	default:
	}

	select {
	case payload := <-s.inbox:
		return payload, nil
	default:
	}

	select {
	case payload := <-s.inbox:
		return payload, nil
	case <-s.closed:
		return nil, ErrClosed
	case <-s.handle.Done():
		// The reader has returned, so nothing more can arrive.
		select {
		case payload := <-s.inbox:
			return payload, nil
		default:
		}
		select {
		case <-s.closed:
			return nil, ErrClosed
		default:
			return nil, io.EOF
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Send queues payload on the underlying connection.
func (s *EventSource) Send(payload []byte) error {
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}
	return s.handle.Send(payload)
}

// Buffered returns the number of frames waiting in the inbox.
func (s *EventSource) Buffered() int {
	return len(s.inbox)
}

// Close releases the handle (closing the socket if it was the last
// one) and unblocks a pending Next. Safe to call more than once.
func (s *EventSource) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.handle.Close()
	})
	return nil
}
