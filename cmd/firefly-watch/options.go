// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/firefly-qa/firefly/lib/config"
	"github.com/firefly-qa/firefly/protocol"
	"github.com/firefly-qa/firefly/recording"
)

// errHelp reports that --help was given and usage has been printed.
var errHelp = errors.New("help requested")

type options struct {
	configPath  string
	kind        protocol.StreamKind
	entityID    string
	plain       bool
	recordPath  string
	compression string
	logOutput   string

	// run starts a new execution before watching.
	run        bool
	envName    string
	rootFolder string
	tasks      int
	stopOnExit bool
}

func newFlagSet(opts *options, scriptID, loadTestID *string) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("firefly-watch", pflag.ContinueOnError)
	flagSet.StringVar(&opts.configPath, "config", "", "path to firefly.yaml (default: $"+config.ConfigVariable+")")
	flagSet.StringVar(scriptID, "script", "", "script id to watch")
	flagSet.StringVar(loadTestID, "load-test", "", "load test id to watch")
	flagSet.BoolVar(&opts.plain, "plain", false, "log store events instead of starting the dashboard")
	flagSet.StringVar(&opts.recordPath, "record", "", "record every received frame to this file")
	flagSet.StringVar(&opts.compression, "compression", "", "recording compression: zstd, lz4, or none")
	flagSet.StringVar(&opts.logOutput, "log-output", "", "write JSON log records to this file while the dashboard runs")
	flagSet.BoolVar(&opts.run, "run", false, "start a new execution instead of following the last one")
	flagSet.StringVar(&opts.envName, "env", "", "environment name for --run")
	flagSet.StringVar(&opts.rootFolder, "root-folder", "", "project root folder for --run")
	flagSet.IntVar(&opts.tasks, "tasks", 1, "number of load test workers for --run")
	flagSet.BoolVar(&opts.stopOnExit, "stop-on-exit", false, "stop the load test started by --run when firefly-watch exits")
	flagSet.BoolP("help", "h", false, "show help")
	return flagSet
}

// parseOptions parses args (without the program name). Usage goes to
// usage on --help.
func parseOptions(args []string, usage io.Writer) (options, error) {
	var opts options
	var scriptID, loadTestID string
	flagSet := newFlagSet(&opts, &scriptID, &loadTestID)
	flagSet.SetOutput(io.Discard)

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(usage, flagSet)
			return opts, errHelp
		}
		return opts, err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(usage, flagSet)
		return opts, errHelp
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return opts, fmt.Errorf("unexpected argument: %s", rest[0])
	}

	switch {
	case scriptID != "" && loadTestID != "":
		return opts, errors.New("--script and --load-test are mutually exclusive")
	case scriptID != "":
		opts.kind, opts.entityID = protocol.Script, scriptID
	case loadTestID != "":
		opts.kind, opts.entityID = protocol.LoadTest, loadTestID
	default:
		return opts, errors.New("one of --script or --load-test is required")
	}

	if opts.run && opts.kind == protocol.LoadTest && opts.tasks < 1 {
		return opts, fmt.Errorf("--tasks must be at least 1, got %d", opts.tasks)
	}
	if opts.stopOnExit && !(opts.run && opts.kind == protocol.LoadTest) {
		return opts, errors.New("--stop-on-exit requires --run with --load-test")
	}

	if opts.compression != "" {
		if _, err := recording.ParseCompression(opts.compression); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

// apply folds flag overrides into the loaded configuration.
func (opts options) apply(cfg *config.Config) {
	if opts.recordPath != "" {
		cfg.Recording.Path = opts.recordPath
	}
	if opts.compression != "" {
		cfg.Recording.Compression = opts.compression
	}
}

func printHelp(output io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(output, `firefly-watch follows one script or load test and shows its live state.

The latest execution is fetched over HTTP, then the history stream
keeps it current. On a terminal the dashboard opens; with --plain or
when stdout is redirected, every change is logged instead.

Usage:
  firefly-watch [flags] (--script ID | --load-test ID)

Examples:
  # Watch a script with the configuration named by FIREFLY_CONFIG
  firefly-watch --script 6f1c2a

  # Log a load test's progress and record the session
  firefly-watch --config firefly.yaml --load-test 91ab --plain --record run.ffrec

  # Start a load test with 8 workers and stop it on exit
  firefly-watch --load-test 91ab --run --env staging --tasks 8 --stop-on-exit

Flags:
`)
	flagSet.SetOutput(output)
	flagSet.PrintDefaults()
}
