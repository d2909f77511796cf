// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var idCounter atomic.Uint64

// ExecutionID returns a fresh identifier of the form "prefix-N". Tests
// use it for execution ids so parallel cases never collide on a shared
// fake server.
func ExecutionID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, idCounter.Add(1))
}
