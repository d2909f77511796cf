// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/firefly-qa/firefly/aggregate"
	"github.com/firefly-qa/firefly/history"
	"github.com/firefly-qa/firefly/lib/config"
	"github.com/firefly-qa/firefly/protocol"
	"github.com/firefly-qa/firefly/subscription"
)

func TestExplain(t *testing.T) {
	opts := options{kind: protocol.LoadTest, entityID: "lt1"}

	notFound := explain(opts, &history.APIError{StatusCode: 404, Detail: "no such load test"})
	if !strings.Contains(notFound.Error(), "load_test lt1 not found") || !history.IsNotFound(notFound) {
		t.Errorf("404: %v", notFound)
	}

	denied := explain(opts, &history.APIError{StatusCode: 401, Detail: "bad token"})
	if !strings.Contains(denied.Error(), config.TokenVariable) {
		t.Errorf("401: %v", denied)
	}

	other := errors.New("connection refused")
	if got := explain(opts, other); got != other {
		t.Errorf("unrelated error rewritten: %v", got)
	}
}

func TestLogEvent(t *testing.T) {
	store := aggregate.NewStore()
	message, err := protocol.Decode([]byte(`{"type":"status","script_id":"s1","message":"success"}`))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Apply(message); err != nil {
		t.Fatal(err)
	}

	var buffer bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buffer, nil))
	state := subscription.State{Phase: subscription.Active}
	status := logEvent(logger, store, state, aggregate.Event{Kind: protocol.Script, EntityID: "s1", Cause: "status"})

	if status != protocol.StatusSuccess {
		t.Errorf("status = %q", status)
	}
	for _, want := range []string{"msg=updated", "cause=status", "phase=active", "status=success"} {
		if !strings.Contains(buffer.String(), want) {
			t.Errorf("log line %q missing %q", buffer.String(), want)
		}
	}
}
