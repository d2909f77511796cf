// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock lets the streaming code wait on time without calling
// the time package directly.
//
// The connection manager sleeps a fixed interval before each redial
// and before each retry of an unsent payload. Production code passes
// Real(); tests pass Fake() and move time forward explicitly:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	manager := stream.NewManager(stream.ManagerConfig{Clock: fake, ...})
//	fake.WaitForTimers(1)       // the redial loop is now parked on After
//	fake.Advance(time.Second)   // exactly one redial happens
//
// WaitForTimers closes the race between a goroutine registering its
// wait and the test advancing the clock.
package clock
