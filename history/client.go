// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/firefly-qa/firefly/lib/netutil"
	"github.com/firefly-qa/firefly/protocol"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// BaseURL is the API root, e.g. "http://localhost:8000/api".
	// Required; must be http or https.
	BaseURL string

	// Token, if set, is sent as a bearer token on every request.
	Token string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client calls the history API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient validates config and returns a Client.
func NewClient(config ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(config.BaseURL, "/")
	parsed, err := url.Parse(baseURL)
	if err != nil || baseURL == "" {
		return nil, fmt.Errorf("history: invalid base URL %q", config.BaseURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("history: base URL must be http or https (got %q)", config.BaseURL)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    baseURL,
		token:      config.Token,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// EnvOverwrite is one entry of a run request's setting_overwrite map.
type EnvOverwrite struct {
	Value  string `json:"value"`
	Secure bool   `json:"secure"`
}

// RunScriptRequest is the body of POST /script/run/.
type RunScriptRequest struct {
	RootFolder       string                  `json:"root_folder"`
	EnvName          string                  `json:"env_name"`
	SettingOverwrite map[string]EnvOverwrite `json:"setting_overwrite"`
	ScriptID         string                  `json:"script_id"`
	Params           map[string]any          `json:"params"`
}

// StartLoadTestRequest is the body of POST /load_test/start/.
type StartLoadTestRequest struct {
	RootFolder       string                  `json:"root_folder"`
	EnvName          string                  `json:"env_name"`
	SettingOverwrite map[string]EnvOverwrite `json:"setting_overwrite"`
	LoadTestID       string                  `json:"load_test_id"`
	Params           map[string]any          `json:"params"`
	ConfigValues     map[string]any          `json:"config_values"`
	NumberOfTasks    int                     `json:"number_of_tasks"`
	ChartConfig      map[string]string       `json:"chart_config,omitempty"`
}

type startResponse struct {
	ExecutionID string `json:"execution_id"`
}

// LastScript returns the snapshot of the script's most recent
// execution. A script that has never run yields an empty snapshot.
func (client *Client) LastScript(ctx context.Context, scriptID string) (protocol.Snapshot, error) {
	return client.last(ctx, "/script/"+url.PathEscape(scriptID)+"/last/")
}

// LastLoadTest returns the snapshot of the load test's most recent
// execution. A load test that has never run yields an empty snapshot.
func (client *Client) LastLoadTest(ctx context.Context, loadTestID string) (protocol.Snapshot, error) {
	return client.last(ctx, "/load_test/"+url.PathEscape(loadTestID)+"/last/")
}

func (client *Client) last(ctx context.Context, path string) (protocol.Snapshot, error) {
	var snapshot protocol.Snapshot
	if err := client.do(ctx, http.MethodGet, path, nil, &snapshot); err != nil {
		return nil, err
	}
	if snapshot == nil {
		snapshot = protocol.Snapshot{}
	}
	return snapshot, nil
}

// RunScript starts a script run and returns its execution id.
func (client *Client) RunScript(ctx context.Context, request RunScriptRequest) (string, error) {
	if request.ScriptID == "" {
		return "", errors.New("history: RunScript needs a script id")
	}
	return client.start(ctx, "/script/run/", request)
}

// StartLoadTest starts a load test and returns its execution id.
func (client *Client) StartLoadTest(ctx context.Context, request StartLoadTestRequest) (string, error) {
	if request.LoadTestID == "" {
		return "", errors.New("history: StartLoadTest needs a load test id")
	}
	if request.NumberOfTasks < 1 {
		return "", fmt.Errorf("history: StartLoadTest needs at least one task (got %d)", request.NumberOfTasks)
	}
	return client.start(ctx, "/load_test/start/", request)
}

func (client *Client) start(ctx context.Context, path string, request any) (string, error) {
	var response startResponse
	if err := client.do(ctx, http.MethodPost, path, request, &response); err != nil {
		return "", err
	}
	if response.ExecutionID == "" {
		return "", fmt.Errorf("history: POST %s: response has no execution_id", path)
	}
	return response.ExecutionID, nil
}

// StopLoadTest asks the server to stop the load test's current run.
func (client *Client) StopLoadTest(ctx context.Context, loadTestID string) error {
	body := struct {
		LoadTestID string `json:"load_test_id"`
	}{loadTestID}
	return client.do(ctx, http.MethodPost, "/load_test/stop/", body, nil)
}

// do sends a JSON request and decodes a 2xx JSON response into result
// (skipped when result is nil). Non-2xx responses become *APIError.
func (client *Client) do(ctx context.Context, method, path string, requestBody, result any) error {
	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("history: encoding %s %s: %w", method, path, err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, client.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("history: creating request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if client.token != "" {
		request.Header.Set("Authorization", "Bearer "+client.token)
	}

	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("history: %s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		body, _ := netutil.ReadResponse(response.Body)
		apiError := parseAPIError(response.StatusCode, body)
		client.logger.Debug("history request failed",
			"method", method,
			"path", path,
			"status", response.StatusCode,
		)
		return apiError
	}
	if result == nil {
		return nil
	}
	if err := netutil.DecodeResponse(response.Body, result); err != nil {
		return fmt.Errorf("history: decoding %s %s: %w", method, path, err)
	}
	return nil
}
