// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Environment names the deployment whose override block applies.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// Environment variables consulted by Load and LoadFile.
const (
	ConfigVariable = "FIREFLY_CONFIG"
	TokenVariable  = "FIREFLY_TOKEN"
)

// Config is the complete client configuration.
type Config struct {
	Environment Environment     `yaml:"environment"`
	Server      ServerConfig    `yaml:"server"`
	Stream      StreamConfig    `yaml:"stream"`
	Log         LogConfig       `yaml:"log"`
	Recording   RecordingConfig `yaml:"recording"`

	Development *Overrides `yaml:"development,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides holds the fields an environment block may replace. Zero
// values leave the base setting alone.
type Overrides struct {
	Server    *ServerConfig    `yaml:"server,omitempty"`
	Stream    *StreamConfig    `yaml:"stream,omitempty"`
	Log       *LogConfig       `yaml:"log,omitempty"`
	Recording *RecordingConfig `yaml:"recording,omitempty"`
}

// ServerConfig locates the execution server.
type ServerConfig struct {
	// APIURL is the HTTP base for snapshot fetches and execution
	// control, e.g. http://localhost:8000/api.
	APIURL string `yaml:"api_url"`

	// StreamURL is the WebSocket base the stream endpoints are
	// appended to, e.g. ws://localhost:8000/api.
	StreamURL string `yaml:"stream_url"`

	// Token is sent as a bearer credential on HTTP requests.
	Token string `yaml:"token"`
}

// StreamConfig tunes the connection manager.
type StreamConfig struct {
	// ReconnectInterval is the wait between a dropped connection and
	// the next dial. Default 1s.
	ReconnectInterval Duration `yaml:"reconnect_interval"`

	// SendRetryInterval is the wait before retrying a payload that
	// could not be written. Default 1s.
	SendRetryInterval Duration `yaml:"send_retry_interval"`

	// InboxCapacity bounds the messages buffered between the socket
	// and the subscription's read task. Default 256.
	InboxCapacity int `yaml:"inbox_capacity"`

	// HandshakeTimeout bounds a single dial. Default 10s.
	HandshakeTimeout Duration `yaml:"handshake_timeout"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is auto, text, or json. Auto picks text on a terminal.
	Format string `yaml:"format"`
}

// RecordingConfig controls session capture. An empty Path disables it.
type RecordingConfig struct {
	Path string `yaml:"path"`

	// Compression is zstd, lz4, or none.
	Compression string `yaml:"compression"`
}

// Duration is a time.Duration written as a Go duration string ("1s",
// "250ms") in configuration files.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML accepts a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var text string
	if err := node.Decode(&text); err != nil {
		return fmt.Errorf("line %d: duration must be a string like \"1s\": %w", node.Line, err)
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes d in its string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Default returns the configuration used before the file is applied.
func Default() *Config {
	return &Config{
		Environment: Development,
		Server: ServerConfig{
			APIURL:    "http://localhost:8000/api",
			StreamURL: "ws://localhost:8000/api",
		},
		Stream: StreamConfig{
			ReconnectInterval: Duration(time.Second),
			SendRetryInterval: Duration(time.Second),
			InboxCapacity:     256,
			HandshakeTimeout:  Duration(10 * time.Second),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		Recording: RecordingConfig{
			Compression: "zstd",
		},
	}
}

// Load reads the file named by FIREFLY_CONFIG. There is no search
// path: an unset variable is an error.
func Load() (*Config, error) {
	loadDotEnv()
	path := os.Getenv(ConfigVariable)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your firefly.yaml, or use --config", ConfigVariable)
	}
	return LoadFile(path)
}

// LoadFile reads the configuration at path, applies the environment
// block, the token override, and variable expansion, then validates.
func LoadFile(path string) (*Config, error) {
	loadDotEnv()

	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("config: loading %s: %w", path, err)
	}
	cfg.applyEnvironmentOverrides()
	if token := os.Getenv(TokenVariable); token != "" {
		cfg.Server.Token = token
	}
	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// loadDotEnv loads ./.env if present. Variables already set in the
// process environment win.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "firefly: ignoring unreadable .env: %v\n", err)
	}
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is a YAML subset, so one set of struct tags serves both.
		data = jsonc.ToJSON(data)
	case ".yaml", ".yml", "":
	default:
		return fmt.Errorf("unsupported config extension %q (want .yaml, .yml, .json, or .jsonc)", filepath.Ext(path))
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if server := overrides.Server; server != nil {
		override(&c.Server.APIURL, server.APIURL)
		override(&c.Server.StreamURL, server.StreamURL)
		override(&c.Server.Token, server.Token)
	}
	if stream := overrides.Stream; stream != nil {
		override(&c.Stream.ReconnectInterval, stream.ReconnectInterval)
		override(&c.Stream.SendRetryInterval, stream.SendRetryInterval)
		override(&c.Stream.InboxCapacity, stream.InboxCapacity)
		override(&c.Stream.HandshakeTimeout, stream.HandshakeTimeout)
	}
	if log := overrides.Log; log != nil {
		override(&c.Log.Level, log.Level)
		override(&c.Log.Format, log.Format)
	}
	if recording := overrides.Recording; recording != nil {
		override(&c.Recording.Path, recording.Path)
		override(&c.Recording.Compression, recording.Compression)
	}
}

func override[V comparable](target *V, value V) {
	var zero V
	if value != zero {
		*target = value
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVariables resolves ${VAR} and ${VAR:-default} in the URL and
// path fields.
func (c *Config) expandVariables() {
	c.Server.APIURL = expandVars(c.Server.APIURL)
	c.Server.StreamURL = expandVars(c.Server.StreamURL)
	c.Recording.Path = expandVars(c.Recording.Path)
}

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment %q", c.Environment))
	}
	if err := checkURL("server.api_url", c.Server.APIURL, "http", "https"); err != nil {
		errs = append(errs, err)
	}
	if err := checkURL("server.stream_url", c.Server.StreamURL, "ws", "wss"); err != nil {
		errs = append(errs, err)
	}
	if c.Stream.ReconnectInterval <= 0 {
		errs = append(errs, errors.New("stream.reconnect_interval must be positive"))
	}
	if c.Stream.SendRetryInterval <= 0 {
		errs = append(errs, errors.New("stream.send_retry_interval must be positive"))
	}
	if c.Stream.InboxCapacity < 1 {
		errs = append(errs, fmt.Errorf("stream.inbox_capacity must be at least 1, got %d", c.Stream.InboxCapacity))
	}
	if c.Stream.HandshakeTimeout < 0 {
		errs = append(errs, errors.New("stream.handshake_timeout must not be negative"))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be one of auto, text, json; got %q", c.Log.Format))
	}
	switch c.Recording.Compression {
	case "zstd", "lz4", "none":
	default:
		errs = append(errs, fmt.Errorf("recording.compression must be one of zstd, lz4, none; got %q", c.Recording.Compression))
	}

	return errors.Join(errs...)
}

func checkURL(field, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, scheme := range schemes {
		if parsed.Scheme == scheme {
			return nil
		}
	}
	return fmt.Errorf("%s must use one of %v, got %q", field, schemes, parsed.Scheme)
}
