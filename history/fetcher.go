// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"context"

	"github.com/firefly-qa/firefly/protocol"
)

// ScriptFetcher loads script snapshots.
type ScriptFetcher struct{ Client *Client }

// Fetch returns the last execution of the script.
func (f ScriptFetcher) Fetch(ctx context.Context, scriptID string) (protocol.Snapshot, error) {
	return f.Client.LastScript(ctx, scriptID)
}

// LoadTestFetcher loads load-test snapshots.
type LoadTestFetcher struct{ Client *Client }

// Fetch returns the last execution of the load test.
func (f LoadTestFetcher) Fetch(ctx context.Context, loadTestID string) (protocol.Snapshot, error) {
	return f.Client.LastLoadTest(ctx, loadTestID)
}
