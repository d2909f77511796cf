// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds the channel helpers shared by the stream,
// subscription, and recording tests.
//
// Every blocking test step goes through one of these helpers so a
// broken goroutine fails the test with a message instead of hanging
// until the package timeout. The timeout is a hang guard only: tests
// that depend on elapsed time use lib/clock's fake instead.
package testutil
