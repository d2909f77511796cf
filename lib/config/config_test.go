// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Stream.ReconnectInterval.Std() != time.Second {
		t.Errorf("reconnect_interval = %v, want 1s", cfg.Stream.ReconnectInterval.Std())
	}
	if cfg.Stream.SendRetryInterval.Std() != time.Second {
		t.Errorf("send_retry_interval = %v, want 1s", cfg.Stream.SendRetryInterval.Std())
	}
	if cfg.Stream.InboxCapacity != 256 {
		t.Errorf("inbox_capacity = %d, want 256", cfg.Stream.InboxCapacity)
	}
}

func TestLoadRequiresConfigVariable(t *testing.T) {
	t.Setenv(ConfigVariable, "")
	_, err := Load()
	if err == nil || !strings.HasPrefix(err.Error(), "FIREFLY_CONFIG environment variable not set") {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestLoadFileYAML(t *testing.T) {
	t.Setenv(TokenVariable, "")
	t.Setenv("FIREFLY_HOST", "firefly.internal")
	path := writeConfig(t, "firefly.yaml", `
server:
  api_url: https://${FIREFLY_HOST}/api
  stream_url: wss://${FIREFLY_HOST}/api
  token: file-token
stream:
  reconnect_interval: 250ms
  inbox_capacity: 8
recording:
  path: ${FIREFLY_RECORDINGS:-/tmp/firefly}/session.ffr
  compression: lz4
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Server.APIURL != "https://firefly.internal/api" {
		t.Errorf("api_url = %q", cfg.Server.APIURL)
	}
	if cfg.Server.StreamURL != "wss://firefly.internal/api" {
		t.Errorf("stream_url = %q", cfg.Server.StreamURL)
	}
	if cfg.Server.Token != "file-token" {
		t.Errorf("token = %q", cfg.Server.Token)
	}
	if cfg.Stream.ReconnectInterval.Std() != 250*time.Millisecond {
		t.Errorf("reconnect_interval = %v", cfg.Stream.ReconnectInterval.Std())
	}
	if cfg.Stream.SendRetryInterval.Std() != time.Second {
		t.Errorf("send_retry_interval should keep its default, got %v", cfg.Stream.SendRetryInterval.Std())
	}
	if cfg.Stream.InboxCapacity != 8 {
		t.Errorf("inbox_capacity = %d", cfg.Stream.InboxCapacity)
	}
	if cfg.Recording.Path != "/tmp/firefly/session.ffr" {
		t.Errorf("recording.path = %q", cfg.Recording.Path)
	}
}

func TestLoadFileJSONC(t *testing.T) {
	t.Setenv(TokenVariable, "")
	path := writeConfig(t, "firefly.jsonc", `{
  // local stack
  "server": {"api_url": "http://127.0.0.1:9000/api", "stream_url": "ws://127.0.0.1:9000/api",},
  "log": {"level": "debug", "format": "json"},
}`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Server.APIURL != "http://127.0.0.1:9000/api" || cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestTokenVariableOverridesFile(t *testing.T) {
	t.Setenv(TokenVariable, "env-token")
	path := writeConfig(t, "firefly.yaml", "server:\n  token: file-token\n")
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Server.Token != "env-token" {
		t.Errorf("token = %q, want env-token", cfg.Server.Token)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv(TokenVariable, "")
	path := writeConfig(t, "firefly.yaml", `
environment: production
stream:
  reconnect_interval: 1s
production:
  server:
    api_url: https://firefly.example/api
    stream_url: wss://firefly.example/api
  stream:
    reconnect_interval: 5s
  log:
    format: json
development:
  log:
    level: debug
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Server.APIURL != "https://firefly.example/api" {
		t.Errorf("api_url = %q", cfg.Server.APIURL)
	}
	if cfg.Stream.ReconnectInterval.Std() != 5*time.Second {
		t.Errorf("reconnect_interval = %v, want 5s", cfg.Stream.ReconnectInterval.Std())
	}
	if cfg.Log.Format != "json" {
		t.Errorf("log.format = %q", cfg.Log.Format)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("development block leaked into production: log.level = %q", cfg.Log.Level)
	}
}

func TestLoadFileRejects(t *testing.T) {
	t.Setenv(TokenVariable, "")
	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{"bad duration", "a.yaml", "stream:\n  reconnect_interval: soon\n", "invalid duration"},
		{"zero capacity", "b.yaml", "stream:\n  inbox_capacity: -1\n", "inbox_capacity must be at least 1"},
		{"http stream url", "c.yaml", "server:\n  stream_url: http://x/api\n", "server.stream_url must use one of"},
		{"unknown compression", "d.yaml", "recording:\n  compression: gzip\n", "recording.compression"},
		{"unknown extension", "e.toml", "", "unsupported config extension"},
		{"bad environment", "f.yaml", "environment: staging\n", "invalid environment"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, test.file, test.content))
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Fatalf("LoadFile error = %v, want substring %q", err, test.want)
			}
		})
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.Stream.InboxCapacity = 0
	cfg.Log.Level = "loud"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate accepted invalid config")
	}
	for _, want := range []string{"inbox_capacity", "log.level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}
