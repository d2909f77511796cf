// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

// firefly-replay feeds a session recorded by firefly-watch --record
// into a fresh store and prints the resulting aggregates as JSON. With
// --diagnose it prints each stored frame instead.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/firefly-qa/firefly/aggregate"
	"github.com/firefly-qa/firefly/lib/cli"
	"github.com/firefly-qa/firefly/lib/config"
	"github.com/firefly-qa/firefly/lib/version"
	"github.com/firefly-qa/firefly/protocol"
	"github.com/firefly-qa/firefly/recording"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var kindName, logLevel string
	var diagnose bool

	flagSet := pflag.NewFlagSet("firefly-replay", pflag.ContinueOnError)
	flagSet.StringVar(&kindName, "kind", "", "only print aggregates of this kind: script or load_test")
	flagSet.BoolVar(&diagnose, "diagnose", false, "print every frame in CBOR diagnostic notation instead of replaying")
	flagSet.StringVar(&logLevel, "log-level", "warn", "debug, info, warn, or error")
	flagSet.BoolP("help", "h", false, "show help")

	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Println("firefly-replay", version.Full())
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	args := flagSet.Args()
	if len(args) != 1 {
		return errors.New("expected exactly one recording path")
	}

	var kind protocol.StreamKind
	if kindName != "" {
		parsed, err := protocol.ParseStreamKind(kindName)
		if err != nil {
			return err
		}
		kind = parsed
	}

	logger, err := cli.NewLogger(os.Stderr, config.LogConfig{Level: logLevel, Format: "auto"})
	if err != nil {
		return err
	}

	file, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer file.Close()

	if diagnose {
		return diagnoseFrames(file, os.Stdout)
	}
	return replay(file, kind, os.Stdout, logger)
}

// report is the document replay prints.
type report struct {
	Compression string                                  `json:"compression"`
	Stats       recording.Stats                         `json:"stats"`
	Scripts     map[string]*aggregate.ScriptExecution   `json:"scripts,omitempty"`
	LoadTests   map[string]*aggregate.LoadTestExecution `json:"load_tests,omitempty"`
}

// replay applies the recording in input to a new store and writes the
// aggregates of the given kind (every kind when zero) to output. A
// recording that fails part way still prints what was replayed before
// the error is returned.
func replay(input io.Reader, kind protocol.StreamKind, output io.Writer, logger *slog.Logger) error {
	reader, err := recording.NewReader(input)
	if err != nil {
		return err
	}
	defer reader.Close()

	store := aggregate.NewStore()
	stats, replayErr := recording.Replay(reader, store, logger)
	logger.Info("replayed",
		"frames", stats.Total(),
		"applied", stats.Applied,
		"control", stats.Control,
		"unknown", stats.Unknown,
		"rejected", stats.Rejected,
	)

	document := report{
		Compression: reader.Compression().String(),
		Stats:       stats,
	}
	if kind == 0 || kind == protocol.Script {
		for _, entityID := range store.Entities(protocol.Script) {
			if document.Scripts == nil {
				document.Scripts = make(map[string]*aggregate.ScriptExecution)
			}
			document.Scripts[entityID] = store.Script(entityID)
		}
	}
	if kind == 0 || kind == protocol.LoadTest {
		for _, entityID := range store.Entities(protocol.LoadTest) {
			if document.LoadTests == nil {
				document.LoadTests = make(map[string]*aggregate.LoadTestExecution)
			}
			document.LoadTests[entityID] = store.LoadTest(entityID)
		}
	}
	if err := cli.WriteJSON(output, document); err != nil {
		return err
	}
	if replayErr != nil {
		return fmt.Errorf("replay stopped after %d frames: %w", stats.Total(), replayErr)
	}
	return nil
}

// diagnoseFrames prints one line per frame: its index, receive time
// and stored form.
func diagnoseFrames(input io.Reader, output io.Writer) error {
	reader, err := recording.NewReader(input)
	if err != nil {
		return err
	}
	defer reader.Close()

	fmt.Fprintf(output, "# compression %s\n", reader.Compression())
	for index := 0; ; index++ {
		frame, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("frame %d: %w", index, err)
		}
		text, err := frame.Diagnose()
		if err != nil {
			return fmt.Errorf("frame %d: %w", index, err)
		}
		fmt.Fprintf(output, "%d %s %s\n", index, frame.ReceivedAt.UTC().Format("15:04:05.000"), text)
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `firefly-replay rebuilds execution state from a recorded session.

Usage:
  firefly-replay [flags] PATH

Examples:
  # Print every aggregate in a recording
  firefly-replay run.ffrec

  # Only load tests
  firefly-replay --kind load_test run.ffrec

  # Inspect the stored frames
  firefly-replay --diagnose run.ffrec

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
