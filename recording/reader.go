// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package recording

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/firefly-qa/firefly/lib/codec"
)

// ErrDigestMismatch is returned by Reader.Next for a frame whose
// payload does not match its stored digest.
var ErrDigestMismatch = errors.New("recording: frame digest mismatch")

// Reader reads frames from a recording.
type Reader struct {
	compression Compression
	decoder     *codec.Decoder
	release     func()
	frames      int
}

// NewReader reads and checks the header from r.
func NewReader(r io.Reader) (*Reader, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, errBadHeader
		}
		return nil, fmt.Errorf("recording: reading header: %w", err)
	}
	if !bytes.Equal(header[:len(magic)], []byte(magic)) {
		return nil, errBadHeader
	}
	if version := header[len(magic)]; version != formatVersion {
		return nil, fmt.Errorf("recording: unsupported format version %d", version)
	}
	compression := Compression(header[len(magic)+1])
	decompressed, release, err := decompressor(r, compression)
	if err != nil {
		return nil, err
	}
	return &Reader{
		compression: compression,
		decoder:     codec.NewDecoder(decompressed),
		release:     release,
	}, nil
}

// Compression reports the recording's compression.
func (r *Reader) Compression() Compression { return r.compression }

// Next returns the next frame, io.EOF after the last one, or
// ErrDigestMismatch (wrapped) for a corrupted frame. A truncated
// recording yields io.ErrUnexpectedEOF.
func (r *Reader) Next() (Frame, error) {
	var raw codec.RawMessage
	if err := r.decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("recording: frame %d: %w", r.frames, err)
	}
	var stored record
	if err := codec.Unmarshal(raw, &stored); err != nil {
		return Frame{}, fmt.Errorf("recording: frame %d: %w", r.frames, err)
	}
	index := r.frames
	r.frames++

	if len(stored.Digest) != len(Digest{}) {
		return Frame{}, fmt.Errorf("%w: frame %d has a %d-byte digest", ErrDigestMismatch, index, len(stored.Digest))
	}
	frame := fromRecord(stored)
	frame.raw = raw
	if !frame.Verify() {
		return frame, fmt.Errorf("%w: frame %d on %s", ErrDigestMismatch, index, frame.Endpoint)
	}
	return frame, nil
}

// Close releases decoder resources. The underlying reader is not
// closed.
func (r *Reader) Close() error {
	r.release()
	return nil
}
