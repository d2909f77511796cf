// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package aggregate

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"reflect"
	"testing"

	"github.com/firefly-qa/firefly/protocol"
)

func mustApply(t *testing.T, execution interface {
	Apply(protocol.Message) (bool, error)
}, message protocol.Message) bool {
	t.Helper()
	changed, err := execution.Apply(message)
	if err != nil {
		t.Fatalf("Apply(%#v): %v", message, err)
	}
	return changed
}

func TestLogAnyOrderLastWriteWins(t *testing.T) {
	lines := []protocol.LogLine{
		{ScriptID: "s", Index: 0, Line: "start"},
		{ScriptID: "s", Index: 1, Line: "step one"},
		{ScriptID: "s", Index: 2, Line: "step two"},
		{ScriptID: "s", Index: 3, Line: "done"},
		{ScriptID: "s", Index: 1, Line: "step one (retried)"},
	}
	random := rand.New(rand.NewPCG(1, 2))
	for trial := range 20 {
		order := random.Perm(len(lines))
		execution := NewScriptExecution()
		want := map[int]string{}
		for _, position := range order {
			mustApply(t, execution, lines[position])
			want[lines[position].Index] = lines[position].Line
		}
		if !reflect.DeepEqual(execution.Log, want) {
			t.Fatalf("trial %d order %v: log = %v, want %v", trial, order, execution.Log, want)
		}
	}
}

func TestLogRedeliveryIsNoop(t *testing.T) {
	execution := NewScriptExecution()
	line := protocol.LogLine{ScriptID: "s", Index: 7, Line: "hello"}
	if !mustApply(t, execution, line) {
		t.Fatal("first delivery reported no change")
	}
	if mustApply(t, execution, line) {
		t.Fatal("identical redelivery reported a change")
	}
	if len(execution.Log) != 1 {
		t.Fatalf("log = %v", execution.Log)
	}
	entries := execution.OrderedLog()
	if len(entries) != 1 || entries[0] != (LogEntry{Index: 7, Line: "hello"}) {
		t.Fatalf("OrderedLog = %v", entries)
	}
}

func resultObject(t *testing.T, result *protocol.Result) map[string]any {
	t.Helper()
	var object map[string]any
	if err := json.Unmarshal(result.Object, &object); err != nil {
		t.Fatalf("result object %s: %v", result.Object, err)
	}
	return object
}

func TestIntermediateResultMerges(t *testing.T) {
	execution := NewScriptExecution()
	for _, partial := range []string{`{"a":1}`, `{"b":2}`, `{"a":3}`} {
		var decoded map[string]json.RawMessage
		if err := json.Unmarshal([]byte(partial), &decoded); err != nil {
			t.Fatal(err)
		}
		mustApply(t, execution, protocol.IntermediateResult{ScriptID: "s", Partial: decoded})
	}
	if execution.Result.Type != protocol.ResultMulti {
		t.Errorf("result type = %q, want multi", execution.Result.Type)
	}
	want := map[string]any{"a": float64(3), "b": float64(2)}
	if got := resultObject(t, execution.Result); !reflect.DeepEqual(got, want) {
		t.Errorf("result object = %v, want %v", got, want)
	}
}

func TestIntermediateResultIntoExistingObject(t *testing.T) {
	execution := NewScriptExecution()
	mustApply(t, execution, protocol.ResultUpdate{ScriptID: "s", Result: protocol.Result{
		Type: protocol.ResultObject, Object: json.RawMessage(`{"x":"1"}`),
	}})
	mustApply(t, execution, protocol.IntermediateResult{ScriptID: "s", Partial: map[string]json.RawMessage{
		"y": json.RawMessage(`"2"`),
	}})
	if execution.Result.Type != protocol.ResultObject {
		t.Errorf("type = %q, want the existing object type", execution.Result.Type)
	}
	if got := resultObject(t, execution.Result); !reflect.DeepEqual(got, map[string]any{"x": "1", "y": "2"}) {
		t.Errorf("object = %v", got)
	}
}

func TestIntermediateResultRejectedLeavesResult(t *testing.T) {
	execution := NewScriptExecution()
	mustApply(t, execution, protocol.ResultUpdate{ScriptID: "s", Result: protocol.Result{
		Type: protocol.ResultString, Object: json.RawMessage(`"plain text"`),
	}})
	before := execution.Clone()

	_, err := execution.Apply(protocol.IntermediateResult{ScriptID: "s", Partial: map[string]json.RawMessage{
		"0": json.RawMessage(`1`),
	}})
	if err == nil {
		t.Fatal("merge into a string result succeeded")
	}
	if !reflect.DeepEqual(execution, before) {
		t.Errorf("aggregate changed after rejected merge: %+v", execution)
	}
}

func TestIntermediateErrorsAppendInOrder(t *testing.T) {
	e1 := protocol.ScriptError{Name: "E1"}
	e2 := protocol.ScriptError{Name: "E2"}
	e3 := protocol.ScriptError{Name: "E3"}
	execution := NewScriptExecution()
	mustApply(t, execution, protocol.IntermediateErrors{ScriptID: "s", Errors: []protocol.ScriptError{e1}})
	mustApply(t, execution, protocol.IntermediateErrors{ScriptID: "s", Errors: []protocol.ScriptError{e2, e3}})
	if want := []protocol.ScriptError{e1, e2, e3}; !reflect.DeepEqual(execution.Errors, want) {
		t.Errorf("errors = %v, want %v", execution.Errors, want)
	}

	mustApply(t, execution, protocol.ErrorsUpdate{ScriptID: "s", Errors: []protocol.ScriptError{e2}})
	if want := []protocol.ScriptError{e2}; !reflect.DeepEqual(execution.Errors, want) {
		t.Errorf("terminal errors = %v, want %v", execution.Errors, want)
	}
}

func TestScriptTerminalReplacements(t *testing.T) {
	execution := NewScriptExecution()
	mustApply(t, execution, protocol.StatusUpdate{ScriptID: "s", Status: protocol.StatusRunning})
	mustApply(t, execution, protocol.EnvUsedUpdate{ScriptID: "s", Env: map[string]string{"A": "1", "B": "2"}})
	mustApply(t, execution, protocol.EnvUsedUpdate{ScriptID: "s", Env: map[string]string{"C": "3"}})
	mustApply(t, execution, protocol.StatusUpdate{ScriptID: "s", Status: protocol.StatusFail})

	if execution.Status != protocol.StatusFail {
		t.Errorf("status = %q", execution.Status)
	}
	if !reflect.DeepEqual(execution.EnvUsed, map[string]string{"C": "3"}) {
		t.Errorf("env_used = %v, want wholesale replacement", execution.EnvUsed)
	}
}

func TestScriptRejectsLoadTestMessages(t *testing.T) {
	_, err := NewScriptExecution().Apply(protocol.WorkerUpdate{LoadTestID: "lt", Worker: 1, Status: protocol.WorkerWorking})
	if !errors.Is(err, ErrWrongStream) {
		t.Errorf("error = %v, want ErrWrongStream", err)
	}
}

func TestScriptSnapshot(t *testing.T) {
	execution := NewScriptExecution()
	mustApply(t, execution, protocol.LogLine{ScriptID: "s", Index: 0, Line: "stale"})

	snapshot := protocol.Snapshot{}
	raw := `{"execution_id":"e1","status":"running","log":{"0":"a","1":"b"},
		"result":null,"env_used":{"K":"V"},"params":{"n":1},"user_name":"qa"}`
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		t.Fatal(err)
	}
	if err := execution.mergeSnapshot(snapshot); err != nil {
		t.Fatalf("mergeSnapshot: %v", err)
	}
	if execution.ExecutionID != "e1" || execution.Status != protocol.StatusRunning {
		t.Errorf("execution_id=%q status=%q", execution.ExecutionID, execution.Status)
	}
	if !reflect.DeepEqual(execution.Log, map[int]string{0: "a", 1: "b"}) {
		t.Errorf("log = %v", execution.Log)
	}
	if execution.Result != nil {
		t.Errorf("result = %+v, want nil", execution.Result)
	}
	if string(execution.Extra["params"]) != `{"n":1}` || string(execution.Extra["user_name"]) != `"qa"` {
		t.Errorf("extra = %v", execution.Extra)
	}

	bad := protocol.Snapshot{"status": json.RawMessage(`"running"`), "log": json.RawMessage(`[1,2]`)}
	before := execution.Clone()
	if err := execution.mergeSnapshot(bad); err == nil {
		t.Fatal("snapshot with a list log accepted")
	}
	if !reflect.DeepEqual(execution, before) {
		t.Error("rejected snapshot changed the aggregate")
	}
}

func TestScriptSnapshotKeepsStreamedLines(t *testing.T) {
	execution := NewScriptExecution()
	execution.ExecutionID = "e1"
	mustApply(t, execution, protocol.LogLine{ScriptID: "s", Index: 5, Line: "streamed"})
	mustApply(t, execution, protocol.StatusUpdate{ScriptID: "s", Status: protocol.StatusSuccess})

	snapshot := protocol.Snapshot{}
	raw := `{"execution_id":"e1","status":"running","log":{"0":"a","1":"b","2":"c","3":"d","4":"e"}}`
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		t.Fatal(err)
	}
	if err := execution.mergeSnapshot(snapshot); err != nil {
		t.Fatalf("mergeSnapshot: %v", err)
	}
	want := map[int]string{0: "a", 1: "b", 2: "c", 3: "d", 4: "e", 5: "streamed"}
	if !reflect.DeepEqual(execution.Log, want) {
		t.Errorf("log = %v, want %v", execution.Log, want)
	}
	if execution.Status != protocol.StatusSuccess {
		t.Errorf("status = %q, snapshot rolled back a finished execution", execution.Status)
	}

	other := protocol.Snapshot{
		"execution_id": json.RawMessage(`"e2"`),
		"status":       json.RawMessage(`"pending"`),
	}
	if err := execution.mergeSnapshot(other); err != nil {
		t.Fatalf("mergeSnapshot: %v", err)
	}
	if len(execution.Log) != 0 || execution.Status != protocol.StatusPending || execution.ExecutionID != "e2" {
		t.Errorf("after another execution's snapshot: %+v", execution)
	}
}

func TestScriptCloneIsDeep(t *testing.T) {
	execution := NewScriptExecution()
	mustApply(t, execution, protocol.LogLine{ScriptID: "s", Index: 0, Line: "a"})
	mustApply(t, execution, protocol.IntermediateErrors{ScriptID: "s", Errors: []protocol.ScriptError{{Name: "x"}}})
	mustApply(t, execution, protocol.ResultUpdate{ScriptID: "s", Result: protocol.Result{Type: protocol.ResultString, Object: json.RawMessage(`"r"`)}})

	copied := execution.Clone()
	copied.Log[0] = "changed"
	copied.Errors[0].Name = "changed"
	copied.Result.Object[1] = 'X'
	if execution.Log[0] != "a" || execution.Errors[0].Name != "x" || string(execution.Result.Object) != `"r"` {
		t.Errorf("clone shares state with original: %+v", execution)
	}
}
