// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package aggregate

import (
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sort"

	"github.com/firefly-qa/firefly/protocol"
)

// LoadTestExecution is the accumulated view of one load-test execution.
type LoadTestExecution struct {
	FetchStatus FetchStatus     `json:"fetch_status"`
	ExecutionID string          `json:"execution_id,omitempty"`
	Status      protocol.Status `json:"status"`

	// Workers maps ordinal to status. Ordinals absent from the map are
	// pending; read through Worker.
	Workers map[int]protocol.WorkerStatus `json:"workers"`

	// TaskStatusHistory maps a timestamp to the task counts at that
	// instant.
	TaskStatusHistory map[string]protocol.TaskCounts `json:"task_status_history"`

	// Charts maps chart name to a series keyed by timestamp.
	Charts map[string]map[string][]any `json:"charts"`

	EnvUsed map[string]string          `json:"env_used,omitempty"`
	Extra   map[string]json.RawMessage `json:"extra,omitempty"`
}

// NewLoadTestExecution returns the state of a load test nothing is
// known about yet.
func NewLoadTestExecution() *LoadTestExecution {
	return &LoadTestExecution{
		FetchStatus:       FetchIdle,
		Status:            protocol.StatusIdle,
		Workers:           map[int]protocol.WorkerStatus{},
		TaskStatusHistory: map[string]protocol.TaskCounts{},
		Charts:            map[string]map[string][]any{},
	}
}

// Clone returns a deep copy of e.
func (e *LoadTestExecution) Clone() *LoadTestExecution {
	copied := *e
	copied.Workers = maps.Clone(e.Workers)
	copied.TaskStatusHistory = maps.Clone(e.TaskStatusHistory)
	copied.Charts = make(map[string]map[string][]any, len(e.Charts))
	for name := range e.Charts {
		copied.Charts[name] = e.ChartSeries(name)
	}
	copied.EnvUsed = cloneStrings(e.EnvUsed)
	copied.Extra = cloneRawMap(e.Extra)
	return &copied
}

// Worker returns the status of the worker with the given ordinal.
// Workers that have not reported are pending.
func (e *LoadTestExecution) Worker(ordinal int) protocol.WorkerStatus {
	if status, ok := e.Workers[ordinal]; ok {
		return status
	}
	return protocol.WorkerPending
}

// WorkerOrdinals returns the ordinals with a recorded status, ascending.
func (e *LoadTestExecution) WorkerOrdinals() []int {
	return slices.Sorted(maps.Keys(e.Workers))
}

// ChartSeries returns a copy of the named chart's points, or nil if the
// chart has no points.
func (e *LoadTestExecution) ChartSeries(name string) map[string][]any {
	series, ok := e.Charts[name]
	if !ok {
		return nil
	}
	copied := make(map[string][]any, len(series))
	for at, values := range series {
		copied[at] = cloneValues(values)
	}
	return copied
}

// ChartNames returns the chart names, sorted.
func (e *LoadTestExecution) ChartNames() []string {
	return slices.Sorted(maps.Keys(e.Charts))
}

// LatestTasks returns the task counts with the greatest timestamp key.
func (e *LoadTestExecution) LatestTasks() (string, protocol.TaskCounts, bool) {
	if len(e.TaskStatusHistory) == 0 {
		return "", protocol.TaskCounts{}, false
	}
	times := slices.Collect(maps.Keys(e.TaskStatusHistory))
	sort.Strings(times)
	latest := times[len(times)-1]
	return latest, e.TaskStatusHistory[latest], true
}

// Apply merges one load-test-stream message and reports whether the
// aggregate changed.
func (e *LoadTestExecution) Apply(message protocol.Message) (bool, error) {
	switch m := message.(type) {
	case protocol.ExecutionPatch:
		before := e.Clone()
		if err := e.mergeFields(protocol.Snapshot(m.Update), true); err != nil {
			return false, err
		}
		return !reflect.DeepEqual(before, e.Clone()), nil

	case protocol.WorkerUpdate:
		if !m.Status.Valid() {
			return false, fmt.Errorf("aggregate: unknown worker status %q", m.Status)
		}
		if m.Worker < 0 {
			return false, fmt.Errorf("aggregate: negative worker ordinal %d", m.Worker)
		}
		if current, ok := e.Workers[m.Worker]; ok && current == m.Status {
			return false, nil
		}
		if e.Workers == nil {
			e.Workers = map[int]protocol.WorkerStatus{}
		}
		e.Workers[m.Worker] = m.Status
		return true, nil

	case protocol.TaskSnapshot:
		if m.At == "" {
			return false, fmt.Errorf("aggregate: task counts without a timestamp")
		}
		// A timestamp is recorded once; later counts for the same
		// instant are ignored.
		if _, ok := e.TaskStatusHistory[m.At]; ok {
			return false, nil
		}
		if e.TaskStatusHistory == nil {
			e.TaskStatusHistory = map[string]protocol.TaskCounts{}
		}
		e.TaskStatusHistory[m.At] = m.Counts
		return true, nil

	case protocol.ChartSample:
		if m.Chart == "" || m.At == "" {
			return false, fmt.Errorf("aggregate: chart sample without name or timestamp")
		}
		series, ok := e.Charts[m.Chart]
		if ok {
			if existing, present := series[m.At]; present && sameValues(existing, m.Values) {
				return false, nil
			}
		} else {
			if e.Charts == nil {
				e.Charts = map[string]map[string][]any{}
			}
			series = map[string][]any{}
			e.Charts[m.Chart] = series
		}
		values := cloneValues(m.Values)
		if values == nil {
			values = []any{}
		}
		series[m.At] = values
		return true, nil

	default:
		return false, fmt.Errorf("%w: %s on a load test", ErrWrongStream, message.Kind())
	}
}

// mergeFields overlays the fields present in fields. An execution
// patch sets workers by ordinal and replaces the other fields it
// names. A snapshot of the execution already held is combined with
// what has streamed in: workers that reported keep their status, task
// counts already recorded and chart points already plotted are kept,
// and a terminal status is not rolled back. A snapshot of another
// execution replaces the streamed fields.
func (e *LoadTestExecution) mergeFields(fields protocol.Snapshot, patch bool) error {
	var (
		executionID string
		status      protocol.Status
		rawWorkers  map[string]protocol.WorkerStatus
		tasks       map[string]protocol.TaskCounts
		charts      map[string]map[string][]any
		envUsed     map[string]string
	)
	present := func(name string) bool {
		_, ok := fields[name]
		return ok
	}

	if present("execution_id") {
		if err := decodeField("execution_id", fields["execution_id"], &executionID); err != nil {
			return err
		}
	}
	if present("status") {
		if err := decodeField("status", fields["status"], &status); err != nil {
			return err
		}
		if status != "" && !status.Valid() {
			return fmt.Errorf("aggregate: unknown status %q", status)
		}
	}
	var workers map[int]protocol.WorkerStatus
	if present("workers") {
		if err := decodeField("workers", fields["workers"], &rawWorkers); err != nil {
			return err
		}
		workers = make(map[int]protocol.WorkerStatus, len(rawWorkers))
		for key, workerStatus := range rawWorkers {
			ordinal, err := protocol.ParseOrdinal(json.RawMessage(key))
			if err != nil {
				return fmt.Errorf("aggregate: workers: %w", err)
			}
			if !workerStatus.Valid() {
				return fmt.Errorf("aggregate: worker %d has unknown status %q", ordinal, workerStatus)
			}
			workers[ordinal] = workerStatus
		}
	}
	if present("task_status_history") {
		if err := decodeField("task_status_history", fields["task_status_history"], &tasks); err != nil {
			return err
		}
	}
	if present("charts") {
		if err := decodeNumbers(fields["charts"], &charts); err != nil {
			return fmt.Errorf("aggregate: snapshot field charts: %w", err)
		}
	}
	if present("env_used") {
		if err := decodeField("env_used", fields["env_used"], &envUsed); err != nil {
			return err
		}
	}

	if !patch && !sameExecution(e.ExecutionID, executionID) {
		e.Status = protocol.StatusIdle
		e.Workers = map[int]protocol.WorkerStatus{}
		e.TaskStatusHistory = map[string]protocol.TaskCounts{}
		e.Charts = map[string]map[string][]any{}
	}
	if present("execution_id") {
		e.ExecutionID = executionID
	}
	switch {
	case status == "":
	case patch:
		e.Status = status
	default:
		e.Status = snapshotStatus(e.Status, status)
	}

	if patch {
		if workers != nil {
			if e.Workers == nil {
				e.Workers = map[int]protocol.WorkerStatus{}
			}
			maps.Copy(e.Workers, workers)
		}
		if present("task_status_history") {
			if tasks == nil {
				tasks = map[string]protocol.TaskCounts{}
			}
			e.TaskStatusHistory = tasks
		}
		if present("charts") {
			if charts == nil {
				charts = map[string]map[string][]any{}
			}
			e.Charts = charts
		}
	} else {
		e.combineWorkers(workers)
		e.combineTasks(tasks)
		e.combineCharts(charts)
	}
	if present("env_used") {
		e.EnvUsed = envUsed
	}
	e.Extra = mergeExtra(e.Extra, fields)
	return nil
}

// combineWorkers fills in snapshot statuses for workers that are
// unknown or still pending.
func (e *LoadTestExecution) combineWorkers(workers map[int]protocol.WorkerStatus) {
	if e.Workers == nil {
		e.Workers = map[int]protocol.WorkerStatus{}
	}
	for ordinal, status := range workers {
		if current, ok := e.Workers[ordinal]; ok && current != protocol.WorkerPending {
			continue
		}
		e.Workers[ordinal] = status
	}
}

// combineTasks adds the snapshot's task counts for timestamps not yet
// recorded.
func (e *LoadTestExecution) combineTasks(tasks map[string]protocol.TaskCounts) {
	if e.TaskStatusHistory == nil {
		e.TaskStatusHistory = map[string]protocol.TaskCounts{}
	}
	for at, counts := range tasks {
		if _, ok := e.TaskStatusHistory[at]; !ok {
			e.TaskStatusHistory[at] = counts
		}
	}
}

// combineCharts adds the snapshot's chart points at timestamps not yet
// plotted.
func (e *LoadTestExecution) combineCharts(charts map[string]map[string][]any) {
	if e.Charts == nil {
		e.Charts = map[string]map[string][]any{}
	}
	for name, points := range charts {
		series, ok := e.Charts[name]
		if !ok {
			series = map[string][]any{}
			e.Charts[name] = series
		}
		for at, values := range points {
			if _, ok := series[at]; ok {
				continue
			}
			if values == nil {
				values = []any{}
			}
			series[at] = values
		}
	}
}
