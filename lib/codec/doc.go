// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the single CBOR configuration used for recording
// files. Session recordings are a CBOR sequence of frames (see the
// recording package); encoding them deterministically means the same
// captured session always produces the same bytes, so frame digests
// stay stable across re-encodes.
package codec
