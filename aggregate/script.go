// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package aggregate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"

	"github.com/firefly-qa/firefly/protocol"
)

// ErrWrongStream is returned when a message from one stream is applied
// to an aggregate of the other.
var ErrWrongStream = errors.New("aggregate: message belongs to the other stream")

// ScriptExecution is the accumulated view of one script execution.
type ScriptExecution struct {
	FetchStatus FetchStatus            `json:"fetch_status"`
	ExecutionID string                 `json:"execution_id,omitempty"`
	Status      protocol.Status        `json:"status"`
	Log         map[int]string         `json:"log"`
	Result      *protocol.Result       `json:"result,omitempty"`
	Errors      []protocol.ScriptError `json:"errors,omitempty"`
	EnvUsed     map[string]string      `json:"env_used,omitempty"`

	// Extra holds snapshot fields the client does not interpret
	// (params, start_time, user_id, ...).
	Extra map[string]json.RawMessage `json:"extra,omitempty"`
}

// NewScriptExecution returns the state of a script nothing is known
// about yet.
func NewScriptExecution() *ScriptExecution {
	return &ScriptExecution{
		FetchStatus: FetchIdle,
		Status:      protocol.StatusIdle,
		Log:         map[int]string{},
	}
}

// Clone returns a deep copy of e.
func (e *ScriptExecution) Clone() *ScriptExecution {
	copied := *e
	copied.Log = maps.Clone(e.Log)
	copied.Result = e.Result.Clone()
	copied.Errors = slices.Clone(e.Errors)
	copied.EnvUsed = cloneStrings(e.EnvUsed)
	copied.Extra = cloneRawMap(e.Extra)
	return &copied
}

// LogEntry is one line of a script's output.
type LogEntry struct {
	Index int
	Line  string
}

// OrderedLog returns the log sorted by index. Gaps from lines not yet
// received are left out.
func (e *ScriptExecution) OrderedLog() []LogEntry {
	entries := make([]LogEntry, 0, len(e.Log))
	for index, line := range e.Log {
		entries = append(entries, LogEntry{Index: index, Line: line})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Index < entries[j].Index })
	return entries
}

// Apply merges one script-stream message and reports whether the
// aggregate changed.
func (e *ScriptExecution) Apply(message protocol.Message) (bool, error) {
	switch m := message.(type) {
	case protocol.LogLine:
		if line, ok := e.Log[m.Index]; ok && line == m.Line {
			return false, nil
		}
		if e.Log == nil {
			e.Log = map[int]string{}
		}
		e.Log[m.Index] = m.Line
		return true, nil

	case protocol.StatusUpdate:
		if !m.Status.Valid() {
			return false, fmt.Errorf("aggregate: unknown status %q", m.Status)
		}
		changed := e.Status != m.Status
		e.Status = m.Status
		return changed, nil

	case protocol.ResultUpdate:
		result := m.Result.Clone()
		changed := e.Result == nil || e.Result.Type != result.Type || !bytes.Equal(e.Result.Object, result.Object)
		e.Result = result
		return changed, nil

	case protocol.IntermediateResult:
		return e.mergeIntermediateResult(m.Partial)

	case protocol.ErrorsUpdate:
		changed := !slices.Equal(e.Errors, m.Errors) || e.Errors == nil
		e.Errors = slices.Clone(m.Errors)
		if e.Errors == nil {
			e.Errors = []protocol.ScriptError{}
		}
		return changed, nil

	case protocol.IntermediateErrors:
		if e.Errors == nil {
			e.Errors = []protocol.ScriptError{}
		}
		e.Errors = append(e.Errors, m.Errors...)
		return len(m.Errors) > 0, nil

	case protocol.EnvUsedUpdate:
		changed := !maps.Equal(e.EnvUsed, m.Env) || e.EnvUsed == nil
		e.EnvUsed = cloneStrings(m.Env)
		return changed, nil

	default:
		return false, fmt.Errorf("%w: %s on a script", ErrWrongStream, message.Kind())
	}
}

// mergeIntermediateResult seeds a multi result when none exists, then
// sets each partial entry in the result's object. Existing entries
// not named by partial are kept.
func (e *ScriptExecution) mergeIntermediateResult(partial map[string]json.RawMessage) (bool, error) {
	resultType := protocol.ResultMulti
	object := map[string]json.RawMessage{}
	if e.Result != nil {
		resultType = e.Result.Type
		trimmed := bytes.TrimSpace(e.Result.Object)
		if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
			if err := json.Unmarshal(trimmed, &object); err != nil || object == nil {
				return false, fmt.Errorf("aggregate: cannot merge intermediate result into %s result", e.Result.Type)
			}
		}
	}

	changed := e.Result == nil
	for key, value := range partial {
		if existing, ok := object[key]; !ok || !jsonEqual(existing, value) {
			changed = true
		}
		object[key] = value
	}
	if !changed {
		return false, nil
	}

	encoded, err := json.Marshal(object)
	if err != nil {
		return false, fmt.Errorf("aggregate: encoding merged result: %w", err)
	}
	e.Result = &protocol.Result{Type: resultType, Object: encoded}
	return true, nil
}

// mergeSnapshot overlays the fields present in snapshot. A field
// present with a null value resets it, except the log, which only
// grows within an execution. Every field is decoded before
// any is assigned.
//
// A snapshot of the execution already held is combined with what has
// streamed in: log lines the snapshot lacks are kept, and a terminal
// status is not rolled back to a live one. A snapshot of another
// execution replaces the status and log.
func (e *ScriptExecution) mergeSnapshot(snapshot protocol.Snapshot) error {
	var (
		executionID string
		status      protocol.Status
		log         map[int]string
		result      *protocol.Result
		errorList   []protocol.ScriptError
		envUsed     map[string]string
	)
	fields := []struct {
		name   string
		target any
	}{
		{"execution_id", &executionID},
		{"status", &status},
		{"log", &log},
		{"result", &result},
		{"errors", &errorList},
		{"env_used", &envUsed},
	}
	present := map[string]bool{}
	for _, field := range fields {
		raw, ok := snapshot[field.name]
		if !ok {
			continue
		}
		present[field.name] = true
		if err := decodeField(field.name, raw, field.target); err != nil {
			return err
		}
	}
	if present["status"] && status != "" && !status.Valid() {
		return fmt.Errorf("aggregate: snapshot has unknown status %q", status)
	}
	if result != nil && !result.Type.Valid() {
		return fmt.Errorf("aggregate: snapshot result has unknown type %q", result.Type)
	}

	if !sameExecution(e.ExecutionID, executionID) {
		e.Status = protocol.StatusIdle
		e.Log = map[int]string{}
	}
	if present["execution_id"] {
		e.ExecutionID = executionID
	}
	if present["status"] && status != "" {
		e.Status = snapshotStatus(e.Status, status)
	}
	if present["log"] {
		if e.Log == nil {
			e.Log = map[int]string{}
		}
		maps.Copy(e.Log, log)
	}
	if present["result"] {
		e.Result = result
	}
	if present["errors"] {
		e.Errors = errorList
	}
	if present["env_used"] {
		e.EnvUsed = envUsed
	}
	e.Extra = mergeExtra(e.Extra, snapshot)
	return nil
}

func decodeField(name string, raw json.RawMessage, target any) error {
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("aggregate: snapshot field %s: %w", name, err)
	}
	return nil
}

// mergeExtra copies every field the aggregates do not model into
// extra.
func mergeExtra(extra map[string]json.RawMessage, snapshot protocol.Snapshot) map[string]json.RawMessage {
	for name, raw := range snapshot {
		if isKnownField(name) {
			continue
		}
		if extra == nil {
			extra = map[string]json.RawMessage{}
		}
		extra[name] = append(json.RawMessage(nil), raw...)
	}
	return extra
}

// sameExecution reports whether a snapshot for executionID describes
// the execution an aggregate currently holds. An aggregate without an
// id holds only what streamed for the requested execution.
func sameExecution(current, executionID string) bool {
	return current == "" || executionID == "" || current == executionID
}

// snapshotStatus is the status after a snapshot reports next. A
// snapshot may lag the stream, so it never moves a finished execution
// back to a live status.
func snapshotStatus(current, next protocol.Status) protocol.Status {
	if current.Terminal() && next.Live() {
		return current
	}
	return next
}

func isKnownField(name string) bool {
	switch name {
	case "execution_id", "status", "log", "result", "errors", "env_used",
		"workers", "task_status_history", "charts":
		return true
	}
	return false
}

// jsonEqual compares two encoded values ignoring insignificant
// whitespace.
func jsonEqual(a, b json.RawMessage) bool {
	var compactA, compactB bytes.Buffer
	if json.Compact(&compactA, a) != nil || json.Compact(&compactB, b) != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(compactA.Bytes(), compactB.Bytes())
}
