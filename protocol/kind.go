// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// StreamKind selects which history stream a subscription uses.
type StreamKind int

const (
	Script StreamKind = iota + 1
	LoadTest
)

func (k StreamKind) String() string {
	switch k {
	case Script:
		return "script"
	case LoadTest:
		return "load_test"
	default:
		return fmt.Sprintf("StreamKind(%d)", int(k))
	}
}

// ParseStreamKind accepts the names String produces.
func ParseStreamKind(name string) (StreamKind, error) {
	switch name {
	case "script":
		return Script, nil
	case "load_test", "load-test":
		return LoadTest, nil
	}
	return 0, fmt.Errorf("protocol: unknown stream kind %q (want script or load_test)", name)
}

// Endpoint is the path of the kind's stream, relative to the stream
// base URL.
func (k StreamKind) Endpoint() string {
	switch k {
	case Script:
		return "/script/ws/history/"
	case LoadTest:
		return "/load_test/ws/history/"
	default:
		return ""
	}
}

// Intent names the execution a subscription wants to follow and the
// entity (script or load test) that owns it.
type Intent struct {
	EntityID    string
	ExecutionID string
}

// IsZero reports whether no execution has been requested.
func (i Intent) IsZero() bool { return i == Intent{} }

// ErrNoExecution is returned when encoding a subscribe request without
// an execution id.
var ErrNoExecution = errors.New("protocol: subscribe intent has no execution id")

type scriptSubscribe struct {
	ExecutionID string `json:"execution_id"`
}

type loadTestSubscribe struct {
	ExecutionID string `json:"execution_id"`
	LoadTestID  string `json:"load_test_id"`
}

// EncodeSubscribe builds the subscribe request for intent. Script
// subscriptions carry only the execution id; load-test subscriptions
// also carry the load test id, which the server echoes back in its
// confirmation.
func (k StreamKind) EncodeSubscribe(intent Intent) ([]byte, error) {
	if intent.ExecutionID == "" {
		return nil, ErrNoExecution
	}
	switch k {
	case Script:
		return json.Marshal(scriptSubscribe{ExecutionID: intent.ExecutionID})
	case LoadTest:
		return json.Marshal(loadTestSubscribe{ExecutionID: intent.ExecutionID, LoadTestID: intent.EntityID})
	default:
		return nil, fmt.Errorf("protocol: cannot encode subscribe for %v", k)
	}
}
