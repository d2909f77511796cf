// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

// Package history is the HTTP client for the execution history API:
// fetching the last execution of a script or load test, and starting
// or stopping runs.
//
// [ScriptFetcher] and [LoadTestFetcher] adapt a [Client] to the
// snapshot source a subscription controller needs.
package history
