// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/gorilla/websocket"
)

// CloseKind is the meaning of a socket read failure.
type CloseKind int

const (
	// CloseTransient is a dropped connection or a server close with a
	// status code. The caller should reconnect.
	CloseTransient CloseKind = iota

	// CloseEndOfStream is a server close frame without a status code
	// (1005). The server uses it to say the stream is finished; the
	// caller must not reconnect.
	CloseEndOfStream

	// CloseLocal is the result of the client closing its own socket.
	CloseLocal
)

func (k CloseKind) String() string {
	switch k {
	case CloseEndOfStream:
		return "end-of-stream"
	case CloseLocal:
		return "local"
	default:
		return "transient"
	}
}

// ClassifyClose maps a read error from a websocket connection to a
// CloseKind. A nil error is reported as CloseTransient.
func ClassifyClose(err error) CloseKind {
	var closeError *websocket.CloseError
	if errors.As(err, &closeError) {
		if closeError.Code == websocket.CloseNoStatusReceived {
			return CloseEndOfStream
		}
		return CloseTransient
	}
	if errors.Is(err, net.ErrClosed) {
		return CloseLocal
	}
	return CloseTransient
}

// IsExpectedCloseError reports whether err is an ordinary teardown
// error not worth logging above debug: EOF, a closed connection, a
// broken pipe, a reset, or a websocket close frame.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var closeError *websocket.CloseError
	if errors.As(err, &closeError) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
