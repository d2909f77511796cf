// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the messages exchanged over the execution
// history streams.
//
// Two streams exist. The script stream (/script/ws/history/) carries
// script envelopes:
//
//	{"type": "log", "script_id": "s1", "message": {"index": 3, "line": "ok"}}
//
// The load-test stream (/load_test/ws/history/) nests every field in a
// data object:
//
//	{"type": "worker", "data": {"load_test_id": "lt1", "worker_id": "2", "status": "working"}}
//
// Both streams confirm subscriptions with a flat successful_subscribe
// message carrying execution_id (and load_test_id on the load-test
// stream).
//
// [Decode] turns a raw frame into one [Message] variant. The set of
// variants is closed: a type switch over Message with a case per
// variant handles every kind the server sends, and frames whose type is
// not recognised decode to [Unknown] rather than failing. Frames that
// are not JSON, lack a type, or whose payload does not match the
// documented shape produce a [*DecodeError].
//
// The client sends one outbound message, the subscribe request built
// by [StreamKind.EncodeSubscribe].
package protocol
