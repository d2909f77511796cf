// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// DecodeError reports a frame that could not be turned into a Message.
// Type is the frame's type tag when one could be read.
type DecodeError struct {
	Type string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("protocol: decoding frame: %v", e.Err)
	}
	return fmt.Sprintf("protocol: decoding %s frame: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// envelope covers both stream layouts. Script frames use script_id and
// message; load-test frames use data; successful_subscribe is flat.
type envelope struct {
	Type        *string         `json:"type"`
	ScriptID    *string         `json:"script_id"`
	Message     json.RawMessage `json:"message"`
	Data        json.RawMessage `json:"data"`
	ExecutionID *string         `json:"execution_id"`
	LoadTestID  *string         `json:"load_test_id"`
}

// Decode parses one inbound frame.
func Decode(raw []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if env.Type == nil || *env.Type == "" {
		return nil, &DecodeError{Err: errors.New("missing type")}
	}
	kind := *env.Type

	message, err := decodeTyped(Type(kind), &env, raw)
	if err != nil {
		return nil, &DecodeError{Type: kind, Err: err}
	}
	return message, nil
}

func decodeTyped(kind Type, env *envelope, raw []byte) (Message, error) {
	switch kind {
	case TypeSuccessfulSubscribe:
		return SuccessfulSubscribe{
			ExecutionID: deref(env.ExecutionID),
			LoadTestID:  deref(env.LoadTestID),
		}, nil

	case TypeExecution, TypeWorker, TypeTask, TypeChart:
		return decodeLoadTest(kind, env.Data)

	case TypeLog, TypeStatus, TypeResult, TypeIntermediateResult,
		TypeErrors, TypeIntermediateErrors, TypeEnvUsed:
		if env.ScriptID == nil || *env.ScriptID == "" {
			return nil, errors.New("missing script_id")
		}
		if isAbsent(env.Message) {
			return nil, errors.New("missing message")
		}
		return decodeScript(kind, *env.ScriptID, env.Message)

	default:
		return Unknown{Type: string(kind), Raw: append(json.RawMessage(nil), raw...)}, nil
	}
}

func decodeScript(kind Type, scriptID string, body json.RawMessage) (Message, error) {
	switch kind {
	case TypeLog:
		var line struct {
			Index *int    `json:"index"`
			Line  *string `json:"line"`
		}
		if err := json.Unmarshal(body, &line); err != nil {
			return nil, err
		}
		if line.Index == nil {
			return nil, errors.New("log message has no index")
		}
		if *line.Index < 0 {
			return nil, fmt.Errorf("negative log index %d", *line.Index)
		}
		if line.Line == nil {
			return nil, errors.New("log message has no line")
		}
		return LogLine{ScriptID: scriptID, Index: *line.Index, Line: *line.Line}, nil

	case TypeStatus:
		var status Status
		if err := json.Unmarshal(body, &status); err != nil {
			return nil, err
		}
		if !status.Valid() {
			return nil, fmt.Errorf("unknown status %q", status)
		}
		return StatusUpdate{ScriptID: scriptID, Status: status}, nil

	case TypeResult:
		var result Result
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, err
		}
		if err := result.validate(); err != nil {
			return nil, err
		}
		return ResultUpdate{ScriptID: scriptID, Result: result}, nil

	case TypeIntermediateResult:
		var partial map[string]json.RawMessage
		if err := json.Unmarshal(body, &partial); err != nil {
			return nil, fmt.Errorf("intermediate result must be an object: %w", err)
		}
		return IntermediateResult{ScriptID: scriptID, Partial: partial}, nil

	case TypeErrors, TypeIntermediateErrors:
		var list []ScriptError
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, err
		}
		if list == nil {
			return nil, errors.New("error list is null")
		}
		if kind == TypeErrors {
			return ErrorsUpdate{ScriptID: scriptID, Errors: list}, nil
		}
		return IntermediateErrors{ScriptID: scriptID, Errors: list}, nil

	case TypeEnvUsed:
		var env map[string]string
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, err
		}
		if env == nil {
			return nil, errors.New("env_used is null")
		}
		return EnvUsedUpdate{ScriptID: scriptID, Env: env}, nil
	}
	return nil, fmt.Errorf("not a script frame")
}

func decodeLoadTest(kind Type, data json.RawMessage) (Message, error) {
	if isAbsent(data) {
		return nil, errors.New("missing data")
	}
	var common struct {
		LoadTestID *string `json:"load_test_id"`
	}
	if err := json.Unmarshal(data, &common); err != nil {
		return nil, err
	}
	if common.LoadTestID == nil || *common.LoadTestID == "" {
		return nil, errors.New("missing load_test_id")
	}
	loadTestID := *common.LoadTestID

	switch kind {
	case TypeExecution:
		var body struct {
			Update map[string]json.RawMessage `json:"update"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, err
		}
		if body.Update == nil {
			return nil, errors.New("execution frame has no update object")
		}
		return ExecutionPatch{LoadTestID: loadTestID, Update: body.Update}, nil

	case TypeWorker:
		var body struct {
			WorkerID json.RawMessage `json:"worker_id"`
			Status   WorkerStatus    `json:"status"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, err
		}
		ordinal, err := ParseOrdinal(body.WorkerID)
		if err != nil {
			return nil, err
		}
		if !body.Status.Valid() {
			return nil, fmt.Errorf("unknown worker status %q", body.Status)
		}
		return WorkerUpdate{LoadTestID: loadTestID, Worker: ordinal, Status: body.Status}, nil

	case TypeTask:
		var body struct {
			NowString *string         `json:"now_string"`
			Data      json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, err
		}
		if body.NowString == nil || *body.NowString == "" {
			return nil, errors.New("task frame has no now_string")
		}
		if isAbsent(body.Data) {
			return nil, errors.New("task frame has no counts")
		}
		var counts TaskCounts
		if err := json.Unmarshal(body.Data, &counts); err != nil {
			return nil, err
		}
		return TaskSnapshot{LoadTestID: loadTestID, At: *body.NowString, Counts: counts}, nil

	case TypeChart:
		var body struct {
			ChartName *string         `json:"chart_name"`
			Data      json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, err
		}
		if body.ChartName == nil || *body.ChartName == "" {
			return nil, errors.New("chart frame has no chart_name")
		}
		at, values, err := decodeChartPoint(body.Data)
		if err != nil {
			return nil, err
		}
		return ChartSample{LoadTestID: loadTestID, Chart: *body.ChartName, At: at, Values: values}, nil
	}
	return nil, fmt.Errorf("not a load-test frame")
}

// decodeChartPoint splits [timestamp, v1, v2, ...] into its key and
// values. Numbers are kept as json.Number.
func decodeChartPoint(raw json.RawMessage) (string, []any, error) {
	if isAbsent(raw) {
		return "", nil, errors.New("chart frame has no data")
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var point []any
	if err := decoder.Decode(&point); err != nil {
		return "", nil, fmt.Errorf("chart data must be an array: %w", err)
	}
	if len(point) == 0 {
		return "", nil, errors.New("chart data has no timestamp")
	}
	var at string
	switch timestamp := point[0].(type) {
	case string:
		at = timestamp
	case json.Number:
		at = timestamp.String()
	default:
		return "", nil, fmt.Errorf("chart timestamp must be a string or number, got %T", point[0])
	}
	if at == "" {
		return "", nil, errors.New("chart timestamp is empty")
	}
	return at, point[1:], nil
}

// ParseOrdinal reads a worker ordinal sent either as a decimal string
// ("3") or a JSON number.
func ParseOrdinal(raw json.RawMessage) (int, error) {
	if isAbsent(raw) {
		return 0, errors.New("missing worker_id")
	}
	var text string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, err
		}
	} else {
		text = string(raw)
	}
	ordinal, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("worker_id %s is not an integer", raw)
	}
	if ordinal < 0 {
		return 0, fmt.Errorf("negative worker_id %d", ordinal)
	}
	return ordinal, nil
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
