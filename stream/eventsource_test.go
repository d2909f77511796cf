// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/firefly-qa/firefly/lib/testutil"
)

// nextResult runs Next in a goroutine so the test can bound it.
func nextResult(ctx context.Context, source *EventSource) <-chan readResult {
	result := make(chan readResult, 1)
	go func() {
		payload, err := source.Next(ctx)
		result <- readResult{payload: payload, err: err}
	}()
	return result
}

func openSource(t *testing.T, h *harness, config EventSourceConfig) (*EventSource, *fakeSocket) {
	t.Helper()
	config.Endpoint = endpoint
	source, err := OpenEventSource(h.manager, config)
	if err != nil {
		t.Fatalf("OpenEventSource: %v", err)
	}
	t.Cleanup(func() { source.Close() })
	socket := newFakeSocket()
	h.dialer.answer(t, socket, nil)
	return source, socket
}

func TestEventSourceOrderAndEndOfStream(t *testing.T) {
	h := newHarness(t)
	source, socket := openSource(t, h, EventSourceConfig{})

	for _, frame := range []string{"1", "2", "3"} {
		socket.deliver(frame)
	}
	socket.fail(&websocket.CloseError{Code: websocket.CloseNoStatusReceived})

	ctx := context.Background()
	for _, want := range []string{"1", "2", "3"} {
		result := testutil.RequireReceive(t, nextResult(ctx, source), testTimeout, "Next")
		if result.err != nil || string(result.payload) != want {
			t.Fatalf("Next = %q, %v; want %q", result.payload, result.err, want)
		}
	}
	result := testutil.RequireReceive(t, nextResult(ctx, source), testTimeout, "Next at end")
	if !errors.Is(result.err, io.EOF) {
		t.Fatalf("Next at end = %q, %v; want io.EOF", result.payload, result.err)
	}
}

func TestEventSourceBackpressure(t *testing.T) {
	h := newHarness(t)
	source, socket := openSource(t, h, EventSourceConfig{InboxCapacity: 1})

	for _, frame := range []string{"a", "b", "c", "d"} {
		socket.deliver(frame)
	}
	ctx := context.Background()
	for _, want := range []string{"a", "b", "c", "d"} {
		result := testutil.RequireReceive(t, nextResult(ctx, source), testTimeout, "Next")
		if string(result.payload) != want {
			t.Fatalf("Next = %q, want %q (frames dropped or reordered)", result.payload, want)
		}
	}
	if source.Buffered() != 0 {
		t.Errorf("Buffered = %d", source.Buffered())
	}
}

func TestEventSourceCloseUnblocksNext(t *testing.T) {
	h := newHarness(t)
	source, socket := openSource(t, h, EventSourceConfig{})

	pending := nextResult(context.Background(), source)
	testutil.RequireSilent(t, pending, 20*time.Millisecond, "Next with nothing buffered")

	source.Close()
	result := testutil.RequireReceive(t, pending, testTimeout, "Next after Close")
	if !errors.Is(result.err, ErrClosed) {
		t.Errorf("Next after Close = %v, want ErrClosed", result.err)
	}
	testutil.RequireClosed(t, socket.closed, testTimeout, "socket closed by source Close")

	if _, err := source.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("second Next = %v", err)
	}
	if err := source.Send([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v", err)
	}
	if err := source.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestEventSourceCloseReleasesBlockedReader(t *testing.T) {
	h := newHarness(t)
	source, socket := openSource(t, h, EventSourceConfig{InboxCapacity: 1})

	// The second frame fills the inbox; the third parks the reader.
	for _, frame := range []string{"a", "b", "c"} {
		socket.deliver(frame)
	}
	source.Close()
	testutil.RequireClosed(t, socket.closed, testTimeout, "socket closed while reader blocked")
	h.manager.Close()
}

func TestEventSourceContextCancel(t *testing.T) {
	h := newHarness(t)
	source, _ := openSource(t, h, EventSourceConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	pending := nextResult(ctx, source)
	cancel()
	result := testutil.RequireReceive(t, pending, testTimeout, "Next after cancel")
	if !errors.Is(result.err, context.Canceled) {
		t.Errorf("Next = %v, want context.Canceled", result.err)
	}
}

func TestEventSourceTapAndReconnect(t *testing.T) {
	h := newHarness(t)
	tapped := make(chan string, 8)
	reconnects := make(chan struct{}, 8)
	source, socket := openSource(t, h, EventSourceConfig{
		Tap:         func(payload []byte) { tapped <- string(payload) },
		OnReconnect: func() { reconnects <- struct{}{} },
	})

	socket.deliver("x")
	if got := testutil.RequireReceive(t, tapped, testTimeout, "tap"); got != "x" {
		t.Errorf("tap saw %q", got)
	}
	testutil.RequireSilent(t, reconnects, 20*time.Millisecond, "reconnect on first open")

	socket.fail(&websocket.CloseError{Code: websocket.CloseGoingAway})
	h.clock.WaitForTimers(1)
	h.clock.Advance(time.Second)
	h.dialer.answer(t, newFakeSocket(), nil)
	testutil.RequireReceive(t, reconnects, testTimeout, "reconnect callback")

	if result := testutil.RequireReceive(t, nextResult(context.Background(), source), testTimeout, "Next"); string(result.payload) != "x" {
		t.Errorf("Next = %q", result.payload)
	}
}

func TestEventSourceSend(t *testing.T) {
	h := newHarness(t)
	source, socket := openSource(t, h, EventSourceConfig{})
	// Wait for the socket to be installed before sending so the write
	// goes out without a retry.
	for !h.manager.Connected(endpoint) {
		time.Sleep(time.Millisecond)
	}
	if err := source.Send([]byte(`{"execution_id":"e1"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := testutil.RequireReceive(t, socket.written, testTimeout, "subscribe write"); string(got) != `{"execution_id":"e1"}` {
		t.Errorf("wrote %s", got)
	}
}
