// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package recording

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/firefly-qa/firefly/lib/clock"
	"github.com/firefly-qa/firefly/lib/codec"
)

const (
	magic         = "FFREC"
	formatVersion = 1
	headerSize    = len(magic) + 2
)

// ErrWriterClosed is returned by Write after Close.
var ErrWriterClosed = errors.New("recording: writer closed")

// Writer appends frames to a recording. Safe for concurrent use.
type Writer struct {
	mutex       sync.Mutex
	compression Compression
	compressed  io.WriteCloser
	encoder     *codec.Encoder
	frames      int
	closed      bool
}

// NewWriter writes the recording header to w and returns a Writer
// for the frames. Close the Writer to flush; w itself is not closed.
func NewWriter(w io.Writer, compression Compression) (*Writer, error) {
	header := append([]byte(magic), formatVersion, byte(compression))
	if _, err := w.Write(header); err != nil {
		return nil, fmt.Errorf("recording: writing header: %w", err)
	}
	compressed, err := compressor(w, compression)
	if err != nil {
		return nil, err
	}
	return &Writer{
		compression: compression,
		compressed:  compressed,
		encoder:     codec.NewEncoder(compressed),
	}, nil
}

// Write appends frame, computing its digest from the payload.
func (w *Writer) Write(frame Frame) error {
	frame.Digest = DigestPayload(frame.Payload)

	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	if err := w.encoder.Encode(toRecord(frame)); err != nil {
		return fmt.Errorf("recording: encoding frame %d: %w", w.frames, err)
	}
	w.frames++
	return nil
}

// Frames returns the number of frames written.
func (w *Writer) Frames() int {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.frames
}

// Close flushes the compressor. Safe to call more than once.
func (w *Writer) Close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.compressed.Close(); err != nil {
		return fmt.Errorf("recording: flushing %s stream: %w", w.compression, err)
	}
	return nil
}

// Tap returns a function suitable for stream.EventSourceConfig.Tap
// that records each payload received on endpoint. Write failures are
// logged; the stream is never held up by the recording.
func (w *Writer) Tap(endpoint string, clk clock.Clock, logger *slog.Logger) func(payload []byte) {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(payload []byte) {
		frame := Frame{
			ReceivedAt: clk.Now(),
			Endpoint:   endpoint,
			Payload:    append([]byte(nil), payload...),
		}
		if err := w.Write(frame); err != nil && !errors.Is(err, ErrWriterClosed) {
			logger.Warn("recording frame", "endpoint", endpoint, "error", err)
		}
	}
}
