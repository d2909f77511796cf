// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package recording

import (
	"errors"
	"io"
	"log/slog"

	"github.com/firefly-qa/firefly/aggregate"
	"github.com/firefly-qa/firefly/protocol"
)

// Stats counts what Replay did with each frame.
type Stats struct {
	// Applied frames were merged into the store. Redelivered frames
	// that changed nothing count here too.
	Applied int

	// Control frames were subscription confirmations.
	Control int

	// Unknown frames had a message type the client does not know.
	Unknown int

	// Rejected frames failed to decode or to merge.
	Rejected int
}

// Total returns the number of frames read.
func (s Stats) Total() int {
	return s.Applied + s.Control + s.Unknown + s.Rejected
}

// Replay applies every frame of reader to store, in recorded order.
// Frames that fail to decode or merge are counted and logged, and
// replay continues. Replay stops at the first read error other than
// io.EOF, including a digest mismatch, and returns it with the stats
// so far.
func Replay(reader *Reader, store *aggregate.Store, logger *slog.Logger) (Stats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var stats Stats
	for {
		frame, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, err
		}

		message, err := protocol.Decode(frame.Payload)
		if err != nil {
			stats.Rejected++
			logger.Debug("replay: undecodable frame", "endpoint", frame.Endpoint, "error", err)
			continue
		}
		switch message := message.(type) {
		case protocol.SuccessfulSubscribe:
			stats.Control++
		case protocol.Unknown:
			stats.Unknown++
			logger.Debug("replay: unknown message type", "type", message.Type)
		default:
			if err := store.Apply(message); err != nil {
				stats.Rejected++
				logger.Debug("replay: rejected frame",
					"endpoint", frame.Endpoint,
					"type", string(message.Kind()),
					"error", err,
				)
				continue
			}
			stats.Applied++
		}
	}
}
