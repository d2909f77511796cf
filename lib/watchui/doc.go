// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

// Package watchui is a terminal dashboard for one live execution. The
// [Model] is a bubbletea program that reads the execution's aggregate
// from an [aggregate.Store] and re-renders whenever the store reports
// a change to it.
//
// The screen has a one-line header (entity, execution id, status,
// subscription phase), a scrollable body and a help line. Script
// bodies show the log, result, errors and environment; load-test
// bodies show workers, the latest task counts and the last point of
// every chart. The body follows new output until the user scrolls up.
package watchui
