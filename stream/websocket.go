// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ClientHeader identifies this process to the server on every dial so
// server logs can correlate reconnects from one client.
const ClientHeader = "X-Firefly-Client"

// WebsocketDialer dials RFC 6455 websockets with gorilla/websocket.
type WebsocketDialer struct {
	dialer websocket.Dialer
	header http.Header
}

// NewWebsocketDialer returns a dialer whose handshakes time out after
// handshakeTimeout (zero means no limit) and carry a client id that is
// fixed for the dialer's lifetime.
func NewWebsocketDialer(handshakeTimeout time.Duration) *WebsocketDialer {
	header := http.Header{}
	header.Set(ClientHeader, uuid.NewString())
	return &WebsocketDialer{
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		header: header,
	}
}

// ClientID returns the value sent in ClientHeader.
func (d *WebsocketDialer) ClientID() string {
	return d.header.Get(ClientHeader)
}

// Dial implements Dialer.
func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Socket, error) {
	conn, response, err := d.dialer.DialContext(ctx, url, d.header)
	if err != nil {
		if response != nil {
			return nil, fmt.Errorf("dialing %s: %w (HTTP %d)", url, err, response.StatusCode)
		}
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	return &websocketSocket{conn: conn}, nil
}

type websocketSocket struct {
	conn      *websocket.Conn
	closeOnce sync.Once
}

func (s *websocketSocket) ReadMessage() ([]byte, error) {
	for {
		messageType, payload, err := s.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType == websocket.TextMessage || messageType == websocket.BinaryMessage {
			return payload, nil
		}
	}
}

func (s *websocketSocket) WriteMessage(payload []byte) error {
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// Close sends a normal-closure frame, best effort, then closes the
// network connection.
func (s *websocketSocket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}
