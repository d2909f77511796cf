// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package subscription

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/firefly-qa/firefly/aggregate"
	"github.com/firefly-qa/firefly/lib/clock"
	"github.com/firefly-qa/firefly/lib/testutil"
	"github.com/firefly-qa/firefly/protocol"
	"github.com/firefly-qa/firefly/stream"
)

const testTimeout = 5 * time.Second

type frame struct {
	payload []byte
	err     error
}

type fakeSocket struct {
	reads     chan frame
	written   chan string
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		reads:   make(chan frame, 64),
		written: make(chan string, 64),
		closed:  make(chan struct{}),
	}
}

func (s *fakeSocket) push(payload string) { s.reads <- frame{payload: []byte(payload)} }

func (s *fakeSocket) drop(err error) { s.reads <- frame{err: err} }

func (s *fakeSocket) ReadMessage() ([]byte, error) {
	select {
	case f := <-s.reads:
		return f.payload, f.err
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
	s.written <- string(payload)
	return nil
}

func (s *fakeSocket) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// queueDialer returns the sockets handed to it in order, blocking
// when none is queued.
type queueDialer struct {
	sockets chan *fakeSocket
}

func (d *queueDialer) Dial(ctx context.Context, _ string) (stream.Socket, error) {
	select {
	case socket := <-d.sockets:
		return socket, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type fetchCall struct {
	entityID string
	ctx      context.Context
	reply    chan fetchReply
}

type fetchReply struct {
	snapshot protocol.Snapshot
	err      error
}

// scriptedFetcher hands every Fetch to the test and waits for a reply
// or for ctx to end.
type scriptedFetcher struct {
	calls chan fetchCall
}

func (f *scriptedFetcher) Fetch(ctx context.Context, entityID string) (protocol.Snapshot, error) {
	call := fetchCall{entityID: entityID, ctx: ctx, reply: make(chan fetchReply, 1)}
	f.calls <- call
	select {
	case reply := <-call.reply:
		return reply.snapshot, reply.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type fixture struct {
	t          *testing.T
	clock      *clock.FakeClock
	dialer     *queueDialer
	manager    *stream.Manager
	store      *aggregate.Store
	fetcher    *scriptedFetcher
	controller *Controller
	socket     *fakeSocket
}

// newFixture mounts a controller of the given kind and waits until its
// first socket is installed.
func newFixture(t *testing.T, kind protocol.StreamKind) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		t:       t,
		clock:   clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		dialer:  &queueDialer{sockets: make(chan *fakeSocket, 8)},
		store:   aggregate.NewStore(),
		fetcher: &scriptedFetcher{calls: make(chan fetchCall, 8)},
		socket:  newFakeSocket(),
	}
	manager, err := stream.NewManager(stream.ManagerConfig{
		BaseURL: "ws://firefly.test/api",
		Dialer:  f.dialer,
		Clock:   f.clock,
		Logger:  logger,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	f.manager = manager
	t.Cleanup(manager.Close)

	controller, err := New(Config{
		Kind:    kind,
		Manager: manager,
		Store:   f.store,
		Fetcher: f.fetcher,
		Logger:  logger,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.controller = controller
	t.Cleanup(controller.Unmount)

	f.dialer.sockets <- f.socket
	if err := controller.Mount(context.Background()); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	f.waitConnected(kind)
	return f
}

func (f *fixture) waitConnected(kind protocol.StreamKind) {
	f.t.Helper()
	deadline := time.Now().Add(testTimeout)
	for !f.manager.Connected(kind.Endpoint()) {
		if time.Now().After(deadline) {
			f.t.Fatal("timed out waiting for the stream to connect")
		}
		time.Sleep(time.Millisecond)
	}
}

// expectFetch waits for the next snapshot fetch and returns it.
func (f *fixture) expectFetch(entityID string) fetchCall {
	f.t.Helper()
	call := testutil.RequireReceive(f.t, f.fetcher.calls, testTimeout, "snapshot fetch")
	if call.entityID != entityID {
		f.t.Fatalf("fetch for %q, want %q", call.entityID, entityID)
	}
	return call
}

// expectWrite waits for the next frame written to the current socket.
func (f *fixture) expectWrite(want string) {
	f.t.Helper()
	got := testutil.RequireReceive(f.t, f.socket.written, testTimeout, "subscribe write")
	if got != want {
		f.t.Fatalf("wrote %s, want %s", got, want)
	}
}

// waitFor polls the controller state until ok accepts it.
func (f *fixture) waitFor(description string, ok func(State) bool) State {
	f.t.Helper()
	deadline := time.Now().Add(testTimeout)
	for {
		state := f.controller.State()
		if ok(state) {
			return state
		}
		if time.Now().After(deadline) {
			f.t.Fatalf("timed out waiting for %s; state %+v", description, state)
		}
		time.Sleep(time.Millisecond)
	}
}

// waitUntil polls condition until it holds.
func (f *fixture) waitUntil(description string, condition func() bool) {
	f.t.Helper()
	deadline := time.Now().Add(testTimeout)
	for !condition() {
		if time.Now().After(deadline) {
			f.t.Fatalf("timed out waiting for %s", description)
		}
		time.Sleep(time.Millisecond)
	}
}

func snapshot(t *testing.T, fields map[string]any) protocol.Snapshot {
	t.Helper()
	result := make(protocol.Snapshot, len(fields))
	for name, value := range fields {
		raw, err := json.Marshal(value)
		if err != nil {
			t.Fatalf("marshal %s: %v", name, err)
		}
		result[name] = raw
	}
	return result
}
