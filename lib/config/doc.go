// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the configuration shared by the firefly-watch
// and firefly-replay tools.
//
// Configuration comes from a single file named by the --config flag
// (via [LoadFile]) or the FIREFLY_CONFIG environment variable (via
// [Load]). Files ending in .yaml or .yml are parsed as YAML; files
// ending in .json or .jsonc may carry comments and trailing commas,
// which are stripped before parsing.
//
// The API token is the one value read from the environment: when
// FIREFLY_TOKEN is set (directly or through a .env file in the
// working directory) it replaces server.token. ${VAR} and
// ${VAR:-default} references in the server URLs and recording path
// are expanded after loading.
//
// The file may carry development and production sections that override
// base values when [Config].Environment matches.
package config
