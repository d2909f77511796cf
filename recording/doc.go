// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

// Package recording journals inbound stream frames so a session can be
// replayed offline through the merge layer.
//
// A recording starts with a fixed header (the magic "FFREC", a format
// version and a compression tag) followed by a compressed CBOR
// sequence of frames. Every frame carries a keyed BLAKE3 digest of its
// payload; [Reader.Next] fails on a mismatch rather than replaying
// corrupted input.
package recording
