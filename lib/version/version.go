// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the Firefly binaries.
//
// Release builds inject values with -ldflags:
//
//	go build -ldflags "-X github.com/firefly-qa/firefly/lib/version.Version=v0.3.0"
//
// Development builds fall back to the VCS stamp the Go toolchain
// embeds in the binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via -ldflags.
var (
	Version   = "0.1.0-dev"
	GitCommit = ""
	BuildTime = ""
)

// Info returns the one-line string printed by --version.
func Info() string {
	commit, modified, built := stamp()
	dirty := ""
	if modified {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, commit, dirty, built)
}

// Full adds toolchain and platform to Info.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// stamp prefers ldflags values and fills gaps from debug.BuildInfo.
func stamp() (commit string, modified bool, built string) {
	commit, built = GitCommit, BuildTime
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if commit == "" {
					commit = setting.Value
					if len(commit) > 12 {
						commit = commit[:12]
					}
				}
			case "vcs.time":
				if built == "" {
					built = setting.Value
				}
			case "vcs.modified":
				modified = setting.Value == "true"
			}
		}
	}
	if commit == "" {
		commit = "unknown"
	}
	if built == "" {
		built = "unknown"
	}
	return commit, modified, built
}
