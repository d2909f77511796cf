// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import "context"

// Socket is one established message-oriented connection.
//
// ReadMessage is called from a single goroutine. WriteMessage is
// called from a single (different) goroutine. Close may be called at
// any time from any goroutine and must unblock a pending ReadMessage.
type Socket interface {
	ReadMessage() ([]byte, error)
	WriteMessage(payload []byte) error
	Close() error
}

// Dialer opens sockets. Dial must return promptly when ctx is
// cancelled.
type Dialer interface {
	Dial(ctx context.Context, url string) (Socket, error)
}
