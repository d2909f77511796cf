// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import "sync"

// sendQueue is the FIFO of payloads waiting to be written. Senders
// push from any goroutine; one writer peeks, writes, and pops.
//
// The notify channel (capacity 1) wakes the writer when a push lands
// on an empty queue or otherwise while it is idle.
type sendQueue struct {
	mu      sync.Mutex
	entries [][]byte
	notify  chan struct{}
}

func newSendQueue() *sendQueue {
	return &sendQueue{notify: make(chan struct{}, 1)}
}

// Push appends a copy of payload.
func (q *sendQueue) Push(payload []byte) {
	entry := append([]byte(nil), payload...)

	q.mu.Lock()
	q.entries = append(q.entries, entry)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Peek returns the oldest payload without removing it.
func (q *sendQueue) Peek() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return nil, false
	}
	return q.entries[0], true
}

// Pop removes the oldest payload. No-op when empty.
func (q *sendQueue) Pop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return
	}
	q.entries[0] = nil
	q.entries = q.entries[1:]
}

// Len returns the number of waiting payloads.
func (q *sendQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Notify returns the writer's wake-up channel.
func (q *sendQueue) Notify() <-chan struct{} {
	return q.notify
}
