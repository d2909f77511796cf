// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package recording

import (
	"bytes"
	"time"

	"github.com/zeebo/blake3"

	"github.com/firefly-qa/firefly/lib/codec"
)

// Digest is a 32-byte keyed BLAKE3 hash of a frame payload.
type Digest [32]byte

// frameDomainKey separates recording digests from other uses of
// BLAKE3 over the same bytes.
var frameDomainKey = [32]byte{
	'f', 'i', 'r', 'e', 'f', 'l', 'y', '.', 'r', 'e', 'c', 'o', 'r', 'd', 'i', 'n',
	'g', '.', 'f', 'r', 'a', 'm', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// DigestPayload returns the digest stored with payload.
func DigestPayload(payload []byte) Digest {
	hasher, err := blake3.NewKeyed(frameDomainKey[:])
	if err != nil {
		panic("recording: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(payload)
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}

// Frame is one recorded inbound message.
type Frame struct {
	ReceivedAt time.Time
	Endpoint   string
	Payload    []byte
	Digest     Digest

	raw codec.RawMessage
}

// Verify reports whether the payload matches its digest.
func (f Frame) Verify() bool {
	computed := DigestPayload(f.Payload)
	return bytes.Equal(computed[:], f.Digest[:])
}

// Diagnose renders the frame's stored form in CBOR diagnostic
// notation.
func (f Frame) Diagnose() (string, error) {
	if f.raw == nil {
		encoded, err := codec.Marshal(toRecord(f))
		if err != nil {
			return "", err
		}
		return codec.Diagnose(encoded)
	}
	return codec.Diagnose(f.raw)
}

// record is the stored form of a Frame.
type record struct {
	ReceivedAt int64  `cbor:"1,keyasint"`
	Endpoint   string `cbor:"2,keyasint"`
	Payload    []byte `cbor:"3,keyasint"`
	Digest     []byte `cbor:"4,keyasint"`
}

func toRecord(f Frame) record {
	return record{
		ReceivedAt: f.ReceivedAt.UnixNano(),
		Endpoint:   f.Endpoint,
		Payload:    f.Payload,
		Digest:     f.Digest[:],
	}
}

func fromRecord(r record) Frame {
	frame := Frame{
		ReceivedAt: time.Unix(0, r.ReceivedAt).UTC(),
		Endpoint:   r.Endpoint,
		Payload:    r.Payload,
	}
	copy(frame.Digest[:], r.Digest)
	return frame
}
