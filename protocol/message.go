// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import "encoding/json"

// Type is the value of a frame's "type" field.
type Type string

const (
	TypeSuccessfulSubscribe Type = "successful_subscribe"

	// Load-test stream.
	TypeExecution Type = "execution"
	TypeWorker    Type = "worker"
	TypeTask      Type = "task"
	TypeChart     Type = "chart"

	// Script stream.
	TypeLog                Type = "log"
	TypeStatus             Type = "status"
	TypeResult             Type = "result"
	TypeIntermediateResult Type = "intermediate_result"
	TypeErrors             Type = "errors"
	TypeIntermediateErrors Type = "intermediate_errors"
	TypeEnvUsed            Type = "env_used"
)

// Message is one decoded inbound frame. The implementations in this
// package are the complete set.
type Message interface {
	// Kind is the frame's type tag.
	Kind() Type

	// EntityID is the script or load test the frame belongs to, or ""
	// when the frame names none.
	EntityID() string

	message()
}

// SuccessfulSubscribe confirms that the server now streams updates for
// ExecutionID. LoadTestID is empty on the script stream.
type SuccessfulSubscribe struct {
	ExecutionID string
	LoadTestID  string
}

// ExecutionPatch replaces top-level fields of a load-test execution.
type ExecutionPatch struct {
	LoadTestID string
	Update     map[string]json.RawMessage
}

// WorkerUpdate sets the status of one load-test worker.
type WorkerUpdate struct {
	LoadTestID string
	Worker     int
	Status     WorkerStatus
}

// TaskSnapshot records task phase counts at one timestamp.
type TaskSnapshot struct {
	LoadTestID string
	At         string
	Counts     TaskCounts
}

// ChartSample is one point of a named chart series. Values are
// json.Number or whatever JSON value the server sent.
type ChartSample struct {
	LoadTestID string
	Chart      string
	At         string
	Values     []any
}

// LogLine is one line of script output at a fixed index.
type LogLine struct {
	ScriptID string
	Index    int
	Line     string
}

// StatusUpdate replaces a script execution's status.
type StatusUpdate struct {
	ScriptID string
	Status   Status
}

// ResultUpdate replaces a script execution's result.
type ResultUpdate struct {
	ScriptID string
	Result   Result
}

// IntermediateResult carries entries to merge into a script's
// composite result object.
type IntermediateResult struct {
	ScriptID string
	Partial  map[string]json.RawMessage
}

// ErrorsUpdate replaces a script execution's error list.
type ErrorsUpdate struct {
	ScriptID string
	Errors   []ScriptError
}

// IntermediateErrors carries errors to append to a script execution's
// error list.
type IntermediateErrors struct {
	ScriptID string
	Errors   []ScriptError
}

// EnvUsedUpdate replaces the environment a script execution ran with.
type EnvUsedUpdate struct {
	ScriptID string
	Env      map[string]string
}

// Unknown is a well-formed frame whose type is not recognised.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (SuccessfulSubscribe) Kind() Type { return TypeSuccessfulSubscribe }
func (ExecutionPatch) Kind() Type      { return TypeExecution }
func (WorkerUpdate) Kind() Type        { return TypeWorker }
func (TaskSnapshot) Kind() Type        { return TypeTask }
func (ChartSample) Kind() Type         { return TypeChart }
func (LogLine) Kind() Type             { return TypeLog }
func (StatusUpdate) Kind() Type        { return TypeStatus }
func (ResultUpdate) Kind() Type        { return TypeResult }
func (IntermediateResult) Kind() Type  { return TypeIntermediateResult }
func (ErrorsUpdate) Kind() Type        { return TypeErrors }
func (IntermediateErrors) Kind() Type  { return TypeIntermediateErrors }
func (EnvUsedUpdate) Kind() Type       { return TypeEnvUsed }
func (m Unknown) Kind() Type           { return Type(m.Type) }

func (m SuccessfulSubscribe) EntityID() string { return m.LoadTestID }
func (m ExecutionPatch) EntityID() string      { return m.LoadTestID }
func (m WorkerUpdate) EntityID() string        { return m.LoadTestID }
func (m TaskSnapshot) EntityID() string        { return m.LoadTestID }
func (m ChartSample) EntityID() string         { return m.LoadTestID }
func (m LogLine) EntityID() string             { return m.ScriptID }
func (m StatusUpdate) EntityID() string        { return m.ScriptID }
func (m ResultUpdate) EntityID() string        { return m.ScriptID }
func (m IntermediateResult) EntityID() string  { return m.ScriptID }
func (m ErrorsUpdate) EntityID() string        { return m.ScriptID }
func (m IntermediateErrors) EntityID() string  { return m.ScriptID }
func (m EnvUsedUpdate) EntityID() string       { return m.ScriptID }
func (Unknown) EntityID() string               { return "" }

func (SuccessfulSubscribe) message() {}
func (ExecutionPatch) message()      {}
func (WorkerUpdate) message()        {}
func (TaskSnapshot) message()        {}
func (ChartSample) message()         {}
func (LogLine) message()             {}
func (StatusUpdate) message()        {}
func (ResultUpdate) message()        {}
func (IntermediateResult) message()  {}
func (ErrorsUpdate) message()        {}
func (IntermediateErrors) message()  {}
func (EnvUsedUpdate) message()       {}
func (Unknown) message()             {}
