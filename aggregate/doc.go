// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

// Package aggregate folds stream messages and HTTP snapshots into the
// accumulated view of an execution.
//
// [ScriptExecution] and [LoadTestExecution] hold the per-entity state.
// Each inbound message kind has one merge with fixed semantics: log
// lines are keyed by index, workers by ordinal, task counts and chart
// points by timestamp; intermediate results merge into a composite
// object and intermediate errors append. Every merge validates its
// input before touching the aggregate, so a rejected message leaves
// the aggregate exactly as it was.
//
// [Store] owns the aggregates, keyed by script or load test id rather
// than execution id: a new execution of the same entity takes over the
// entity's slot. Reads return deep copies. Subscribers receive an
// [Event] for every change that altered state; re-delivering a message
// whose effect is already present changes nothing and emits nothing.
package aggregate
