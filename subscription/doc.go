// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

// Package subscription follows one live execution per feature over a
// shared stream connection.
//
// A [Controller] owns an [stream.EventSource] for its stream kind and
// runs three kinds of goroutine against it: a write task that sends
// subscribe requests, a read task that decodes inbound frames and
// merges them into an [aggregate.Store], and short-lived fetch tasks
// that load the baseline snapshot over HTTP through a
// [SnapshotFetcher].
//
// The controller moves through three phases:
//
//	Idle --Subscribe--> Subscribing --confirmation--> Active
//	Active --Subscribe / reconnect--> Subscribing
//	any --Unmount--> Idle
//
// Only the most recently requested execution counts. A confirmation
// naming any other execution is dropped, and data frames are merged
// only while Active and only for the requested entity. After Unmount
// returns, the controller makes no further store mutations.
package subscription
