// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli holds the pieces shared by the firefly binaries.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/firefly-qa/firefly/lib/config"
)

// NewLogger builds the process logger from the log section of the
// configuration. Format "auto" picks slog.TextHandler when output is a
// terminal and slog.JSONHandler otherwise.
func NewLogger(output io.Writer, settings config.LogConfig) (*slog.Logger, error) {
	level, err := ParseLevel(settings.Level)
	if err != nil {
		return nil, err
	}
	options := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch settings.Format {
	case "text":
		handler = slog.NewTextHandler(output, options)
	case "json":
		handler = slog.NewJSONHandler(output, options)
	case "", "auto":
		if isTerminal(output) {
			handler = slog.NewTextHandler(output, options)
		} else {
			handler = slog.NewJSONHandler(output, options)
		}
	default:
		return nil, fmt.Errorf("cli: unknown log format %q", settings.Format)
	}
	return slog.New(handler), nil
}

// ParseLevel maps a configured level name to a slog level. The empty
// string means info.
func ParseLevel(name string) (slog.Level, error) {
	switch name {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("cli: unknown log level %q", name)
}

func isTerminal(output io.Writer) bool {
	file, ok := output.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}
