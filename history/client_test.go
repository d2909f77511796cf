// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/firefly-qa/firefly/protocol"
)

type recordedRequest struct {
	method        string
	path          string
	authorization string
	contentType   string
	body          map[string]any
}

// newTestServer serves handler under /api and records every request.
func newTestServer(t *testing.T, handler http.HandlerFunc) (*Client, <-chan recordedRequest) {
	t.Helper()
	requests := make(chan recordedRequest, 16)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorded := recordedRequest{
			method:        r.Method,
			path:          r.URL.Path,
			authorization: r.Header.Get("Authorization"),
			contentType:   r.Header.Get("Content-Type"),
		}
		if r.Body != nil {
			data, _ := io.ReadAll(r.Body)
			if len(data) > 0 {
				_ = json.Unmarshal(data, &recorded.body)
			}
		}
		requests <- recorded
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{
		BaseURL: server.URL + "/api/",
		Token:   "secret-token",
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client, requests
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestNewClientValidatesBaseURL(t *testing.T) {
	for _, base := range []string{"", "ftp://host/api", "://bad"} {
		if _, err := NewClient(ClientConfig{BaseURL: base}); err == nil {
			t.Errorf("NewClient(%q) succeeded", base)
		}
	}
}

func TestLastScript(t *testing.T) {
	client, requests := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"execution_id":"e1","status":"running","log":{"0":"boot"}}`)
	})

	snapshot, err := client.LastScript(context.Background(), "s 1")
	if err != nil {
		t.Fatalf("LastScript: %v", err)
	}
	if snapshot.ExecutionID() != "e1" {
		t.Errorf("execution id = %q", snapshot.ExecutionID())
	}
	var status protocol.Status
	if err := snapshot.Field("status", &status); err != nil || status != protocol.StatusRunning {
		t.Errorf("status = %q, %v", status, err)
	}

	request := <-requests
	if request.method != http.MethodGet || request.path != "/api/script/s 1/last/" {
		t.Errorf("request = %s %s", request.method, request.path)
	}
	if request.authorization != "Bearer secret-token" {
		t.Errorf("Authorization = %q", request.authorization)
	}
}

func TestLastLoadTestNeverRun(t *testing.T) {
	client, requests := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `null`)
	})

	snapshot, err := client.LastLoadTest(context.Background(), "lt1")
	if err != nil {
		t.Fatalf("LastLoadTest: %v", err)
	}
	if snapshot == nil || len(snapshot) != 0 {
		t.Errorf("snapshot = %v, want empty", snapshot)
	}
	if request := <-requests; request.path != "/api/load_test/lt1/last/" {
		t.Errorf("path = %s", request.path)
	}
}

func TestRunScript(t *testing.T) {
	client, requests := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"execution_id":"e9"}`)
	})

	executionID, err := client.RunScript(context.Background(), RunScriptRequest{
		RootFolder:       "scripts",
		EnvName:          "dev",
		SettingOverwrite: map[string]EnvOverwrite{"HOST": {Value: "example.test"}},
		ScriptID:         "s1",
		Params:           map[string]any{"count": 3},
	})
	if err != nil {
		t.Fatalf("RunScript: %v", err)
	}
	if executionID != "e9" {
		t.Errorf("execution id = %q", executionID)
	}

	request := <-requests
	if request.method != http.MethodPost || request.path != "/api/script/run/" {
		t.Errorf("request = %s %s", request.method, request.path)
	}
	if request.contentType != "application/json" {
		t.Errorf("Content-Type = %q", request.contentType)
	}
	if request.body["script_id"] != "s1" || request.body["env_name"] != "dev" {
		t.Errorf("body = %v", request.body)
	}
	overwrite, _ := request.body["setting_overwrite"].(map[string]any)
	host, _ := overwrite["HOST"].(map[string]any)
	if host["value"] != "example.test" || host["secure"] != false {
		t.Errorf("setting_overwrite = %v", request.body["setting_overwrite"])
	}
}

func TestStartAndStopLoadTest(t *testing.T) {
	client, requests := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/load_test/stop/" {
			writeJSON(w, http.StatusOK, `null`)
			return
		}
		writeJSON(w, http.StatusOK, `{"execution_id":"e2"}`)
	})

	executionID, err := client.StartLoadTest(context.Background(), StartLoadTestRequest{
		LoadTestID:    "lt1",
		NumberOfTasks: 4,
		ConfigValues:  map[string]any{"rps": 10},
	})
	if err != nil || executionID != "e2" {
		t.Fatalf("StartLoadTest = %q, %v", executionID, err)
	}
	request := <-requests
	if request.path != "/api/load_test/start/" || request.body["number_of_tasks"] != float64(4) {
		t.Errorf("start request = %s %v", request.path, request.body)
	}
	if _, ok := request.body["chart_config"]; ok {
		t.Error("empty chart_config was sent")
	}

	if err := client.StopLoadTest(context.Background(), "lt1"); err != nil {
		t.Fatalf("StopLoadTest: %v", err)
	}
	request = <-requests
	if request.path != "/api/load_test/stop/" || request.body["load_test_id"] != "lt1" {
		t.Errorf("stop request = %s %v", request.path, request.body)
	}
}

func TestStartValidatesRequest(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request reached the server")
	})
	if _, err := client.RunScript(context.Background(), RunScriptRequest{}); err == nil {
		t.Error("RunScript accepted a request without a script id")
	}
	if _, err := client.StartLoadTest(context.Background(), StartLoadTestRequest{LoadTestID: "lt1"}); err == nil {
		t.Error("StartLoadTest accepted zero tasks")
	}
}

func TestStartWithoutExecutionID(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{}`)
	})
	if _, err := client.RunScript(context.Background(), RunScriptRequest{ScriptID: "s1"}); err == nil {
		t.Error("RunScript accepted a response without an execution id")
	}
}

func TestAPIErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantDetail string
		notFound   bool
		unauth     bool
	}{
		{"string detail", http.StatusNotFound, `{"detail":"Script not found"}`, "Script not found", true, false},
		{"validation detail", http.StatusUnprocessableEntity, `{"detail":[{"loc":["body","script_id"]}]}`, `[{"loc":["body","script_id"]}]`, false, false},
		{"plain body", http.StatusBadGateway, `upstream down`, "upstream down", false, false},
		{"unauthorized", http.StatusUnauthorized, `{"detail":"Not authenticated"}`, "Not authenticated", false, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, test.status, test.body)
			})
			_, err := client.LastScript(context.Background(), "s1")
			var apiError *APIError
			if !errors.As(err, &apiError) {
				t.Fatalf("error %v is not an *APIError", err)
			}
			if apiError.StatusCode != test.status || apiError.Detail != test.wantDetail {
				t.Errorf("APIError = %d %q", apiError.StatusCode, apiError.Detail)
			}
			if IsNotFound(err) != test.notFound || IsUnauthorized(err) != test.unauth {
				t.Errorf("IsNotFound = %v, IsUnauthorized = %v", IsNotFound(err), IsUnauthorized(err))
			}
		})
	}
}

func TestFetchers(t *testing.T) {
	client, requests := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"execution_id":"e1"}`)
	})

	if _, err := (ScriptFetcher{Client: client}).Fetch(context.Background(), "s1"); err != nil {
		t.Fatal(err)
	}
	if request := <-requests; request.path != "/api/script/s1/last/" {
		t.Errorf("script fetcher path = %s", request.path)
	}
	if _, err := (LoadTestFetcher{Client: client}).Fetch(context.Background(), "lt1"); err != nil {
		t.Fatal(err)
	}
	if request := <-requests; request.path != "/api/load_test/lt1/last/" {
		t.Errorf("load-test fetcher path = %s", request.path)
	}
}
