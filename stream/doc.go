// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

// Package stream keeps persistent connections to the execution history
// endpoints and adapts them for pull-based consumers.
//
// A [Manager] owns at most one physical socket per endpoint. Callers
// attach with [Manager.Open] and receive a [Handle]; every handle on an
// endpoint shares the socket and sees every inbound frame. When the
// last handle closes, the socket is closed and no reconnect follows.
//
// While any handle is attached the connection is kept alive: a failed
// dial or a dropped socket is retried after a fixed interval (one
// second by default), one attempt per interval. A close frame without
// a status code (1005) is the server saying the stream is over; the
// connection then ends like a deliberate close and every handle's
// Done channel closes.
//
// [Handle.Send] never blocks on the network. Payloads go into a FIFO
// drained by one writer goroutine per connection; a payload that
// cannot be written because no socket is open, or whose write fails,
// is retried after the send retry interval until it is written or the
// connection ends. Delivery is at least once, so payloads must be safe
// to repeat.
//
// [EventSource] turns a handle's push callbacks into a bounded inbox
// read with Next. A full inbox blocks the connection's reader rather
// than dropping frames.
package stream
