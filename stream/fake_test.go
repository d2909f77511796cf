// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/firefly-qa/firefly/lib/clock"
	"github.com/firefly-qa/firefly/lib/testutil"
)

const testTimeout = 5 * time.Second

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type readResult struct {
	payload []byte
	err     error
}

// fakeSocket is an in-memory Socket. Tests feed reads through
// deliver/fail and observe writes on written.
type fakeSocket struct {
	reads      chan readResult
	written    chan []byte
	closed     chan struct{}
	closeOnce  sync.Once
	failWrites atomic.Bool
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		reads:   make(chan readResult, 64),
		written: make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
}

func (s *fakeSocket) deliver(payload string) { s.reads <- readResult{payload: []byte(payload)} }

func (s *fakeSocket) fail(err error) { s.reads <- readResult{err: err} }

func (s *fakeSocket) ReadMessage() ([]byte, error) {
	select {
	case result := <-s.reads:
		return result.payload, result.err
	case <-s.closed:
		return nil, net.ErrClosed
	}
}

func (s *fakeSocket) WriteMessage(payload []byte) error {
	select {
	case <-s.closed:
		return net.ErrClosed
	default:
	}
	if s.failWrites.Load() {
		return errors.New("write: broken pipe")
	}
	s.written <- append([]byte(nil), payload...)
	return nil
}

func (s *fakeSocket) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

type dialResult struct {
	socket Socket
	err    error
}

// fakeDialer hands each Dial call to the test: the attempted URL
// appears on attempts and the test answers on results.
type fakeDialer struct {
	attempts chan string
	results  chan dialResult
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		attempts: make(chan string, 64),
		results:  make(chan dialResult),
	}
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Socket, error) {
	d.attempts <- url
	select {
	case result := <-d.results:
		return result.socket, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// answer waits for the next dial attempt and completes it.
func (d *fakeDialer) answer(t *testing.T, socket Socket, err error) string {
	t.Helper()
	url := testutil.RequireReceive(t, d.attempts, testTimeout, "dial attempt")
	testutil.RequireSend(t, d.results, dialResult{socket: socket, err: err}, testTimeout, "dial result")
	return url
}

type harness struct {
	clock   *clock.FakeClock
	dialer  *fakeDialer
	manager *Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fake := clock.Fake(epoch)
	dialer := newFakeDialer()
	manager, err := NewManager(ManagerConfig{
		BaseURL: "ws://firefly.test/api/",
		Dialer:  dialer,
		Clock:   fake,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(manager.Close)
	return &harness{clock: fake, dialer: dialer, manager: manager}
}

// openRecorder opens a handle whose frames and open notifications are
// forwarded to channels.
func (h *harness) openRecorder(t *testing.T, endpoint string) (*Handle, <-chan string, <-chan bool) {
	t.Helper()
	frames := make(chan string, 64)
	opens := make(chan bool, 64)
	handle, err := h.manager.Open(endpoint, Handler{
		Message: func(payload []byte) { frames <- string(payload) },
		Open:    func(reconnect bool) { opens <- reconnect },
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return handle, frames, opens
}
