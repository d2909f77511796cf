// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/json"
	"fmt"
)

// Status is the lifecycle state of an execution.
type Status string

const (
	StatusIdle           Status = "idle"
	StatusPending        Status = "pending"
	StatusPrimed         Status = "primed"
	StatusRunning        Status = "running"
	StatusSuccess        Status = "success"
	StatusFail           Status = "fail"
	StatusPartialSuccess Status = "partial_success"
	// StatusFinished is the terminal status load tests report.
	StatusFinished Status = "finished"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusIdle, StatusPending, StatusPrimed, StatusRunning,
		StatusSuccess, StatusFail, StatusPartialSuccess, StatusFinished:
		return true
	}
	return false
}

// Live reports whether the execution is still producing updates.
func (s Status) Live() bool {
	return s == StatusPending || s == StatusPrimed || s == StatusRunning
}

// Terminal reports whether the execution has finished. Terminal
// statuses do not end the subscription on their own.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFail || s == StatusPartialSuccess || s == StatusFinished
}

// WorkerStatus is the state of one load-test worker.
type WorkerStatus string

const (
	WorkerPending       WorkerStatus = "pending"
	WorkerSetup         WorkerStatus = "setup"
	WorkerWorking       WorkerStatus = "working"
	WorkerProceedFinish WorkerStatus = "proceed_finish"
	WorkerTeardown      WorkerStatus = "teardown"
	WorkerFinished      WorkerStatus = "finished"
	WorkerError         WorkerStatus = "error"
)

// Valid reports whether s is a known worker status.
func (s WorkerStatus) Valid() bool {
	switch s {
	case WorkerPending, WorkerSetup, WorkerWorking, WorkerProceedFinish,
		WorkerTeardown, WorkerFinished, WorkerError:
		return true
	}
	return false
}

// TaskCounts is the number of load-test tasks in each phase at one
// instant.
type TaskCounts struct {
	Pending  int `json:"pending"`
	Setup    int `json:"setup"`
	Working  int `json:"working"`
	Teardown int `json:"teardown"`
	Finished int `json:"finished"`
}

// Total is the sum of all phases.
func (c TaskCounts) Total() int {
	return c.Pending + c.Setup + c.Working + c.Teardown + c.Finished
}

// ResultType tags the shape of a script result's object.
type ResultType string

const (
	ResultString ResultType = "string"
	ResultObject ResultType = "object"
	ResultTable  ResultType = "table"
	ResultMulti  ResultType = "multi"
	ResultFile   ResultType = "file"
	ResultFiles  ResultType = "files"
)

// Valid reports whether t is a known result type.
func (t ResultType) Valid() bool {
	switch t {
	case ResultString, ResultObject, ResultTable, ResultMulti, ResultFile, ResultFiles:
		return true
	}
	return false
}

// Result is a script's output. Object keeps the server's encoding;
// its shape depends on Type (a string, a JSON object, a list of rows,
// or for multi a JSON object of nested results keyed by position).
type Result struct {
	Type   ResultType      `json:"type"`
	Object json.RawMessage `json:"object"`
}

// Clone returns a deep copy of r. A nil receiver returns nil.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	return &Result{Type: r.Type, Object: cloneRaw(r.Object)}
}

func (r *Result) validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("unknown result type %q", r.Type)
	}
	if len(r.Object) == 0 {
		return fmt.Errorf("result of type %q has no object", r.Type)
	}
	return nil
}

// ScriptError is one error raised by a script.
type ScriptError struct {
	Name      string `json:"name"`
	Message   string `json:"message"`
	Traceback string `json:"traceback"`
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
