// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil classifies connection errors and bounds HTTP
// response reads.
//
// The stream package asks [ClassifyClose] what a failed socket read
// means: the server ending the stream on purpose, a transport drop
// worth reconnecting after, or the client's own close. The history
// client reads JSON bodies through [DecodeResponse] so a misbehaving
// server cannot make it buffer without limit.
package netutil
