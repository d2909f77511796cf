// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package aggregate

import (
	"errors"
	"fmt"
	"sync"

	"github.com/firefly-qa/firefly/protocol"
)

// ErrNotData is returned by Store.Apply for messages that carry no
// execution data (subscription confirmations and unknown frames).
var ErrNotData = errors.New("aggregate: message carries no execution data")

// Event reports a change to one entity's aggregate. Cause is the
// message kind that produced it, or one of the Cause constants.
type Event struct {
	Kind     protocol.StreamKind
	EntityID string
	Cause    string
}

// Event causes not tied to a stream message.
const (
	CauseFetchStarted   = "fetch_started"
	CauseFetchSucceeded = "fetch_succeeded"
	CauseFetchFailed    = "fetch_failed"
	CauseStarted        = "started"
)

// Store holds every aggregate known to the client, keyed by entity id.
// Safe for concurrent use; each operation is applied atomically.
type Store struct {
	mutex       sync.Mutex
	scripts     map[string]*ScriptExecution
	loadTests   map[string]*LoadTestExecution
	subscribers []chan Event
	mutations   uint64
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		scripts:   make(map[string]*ScriptExecution),
		loadTests: make(map[string]*LoadTestExecution),
	}
}

// StreamOf reports which stream a message kind belongs to, or 0 for
// kinds that belong to neither.
func StreamOf(message protocol.Message) protocol.StreamKind {
	switch message.(type) {
	case protocol.LogLine, protocol.StatusUpdate, protocol.ResultUpdate,
		protocol.IntermediateResult, protocol.ErrorsUpdate,
		protocol.IntermediateErrors, protocol.EnvUsedUpdate:
		return protocol.Script
	case protocol.ExecutionPatch, protocol.WorkerUpdate,
		protocol.TaskSnapshot, protocol.ChartSample:
		return protocol.LoadTest
	}
	return 0
}

// Apply merges a data message into the aggregate of the entity it
// names, creating the initial aggregate if the entity is new. A
// rejected message leaves the store unchanged.
func (s *Store) Apply(message protocol.Message) error {
	kind := StreamOf(message)
	if kind == 0 {
		return fmt.Errorf("%w: %s", ErrNotData, message.Kind())
	}
	entityID := message.EntityID()
	if entityID == "" {
		return fmt.Errorf("aggregate: %s message names no entity", message.Kind())
	}

	s.mutex.Lock()
	var (
		changed bool
		err     error
	)
	switch kind {
	case protocol.Script:
		execution, ok := s.scripts[entityID]
		if !ok {
			execution = NewScriptExecution()
		}
		changed, err = execution.Apply(message)
		if err == nil && !ok {
			s.scripts[entityID] = execution
		}
	case protocol.LoadTest:
		execution, ok := s.loadTests[entityID]
		if !ok {
			execution = NewLoadTestExecution()
		}
		changed, err = execution.Apply(message)
		if err == nil && !ok {
			s.loadTests[entityID] = execution
		}
	}
	subscribers := s.commit(err == nil && changed)
	s.mutex.Unlock()

	if err != nil {
		return err
	}
	if changed {
		dispatch(subscribers, Event{Kind: kind, EntityID: entityID, Cause: string(message.Kind())})
	}
	return nil
}

// FetchStarted marks a snapshot fetch in flight. The aggregate keeps
// what has streamed in; FetchSucceeded decides whether the snapshot
// is combined with it or replaces it.
func (s *Store) FetchStarted(kind protocol.StreamKind, entityID string) {
	s.update(kind, entityID, CauseFetchStarted,
		func(execution *ScriptExecution) error {
			execution.FetchStatus = FetchPending
			return nil
		},
		func(execution *LoadTestExecution) error {
			execution.FetchStatus = FetchPending
			return nil
		})
}

// FetchSucceeded overlays a snapshot onto the entity's aggregate. A
// snapshot of the execution already held is combined with the streamed
// state; one of another execution replaces it. A snapshot that fails
// to decode marks the fetch as failed and returns the decode error.
func (s *Store) FetchSucceeded(kind protocol.StreamKind, entityID string, snapshot protocol.Snapshot) error {
	err := s.update(kind, entityID, CauseFetchSucceeded,
		func(execution *ScriptExecution) error {
			if err := execution.mergeSnapshot(snapshot); err != nil {
				return err
			}
			execution.FetchStatus = FetchSuccess
			return nil
		},
		func(execution *LoadTestExecution) error {
			if err := execution.mergeFields(snapshot, false); err != nil {
				return err
			}
			execution.FetchStatus = FetchSuccess
			return nil
		})
	if err != nil {
		s.FetchFailed(kind, entityID, err)
	}
	return err
}

// FetchFailed records that the snapshot fetch failed. The cause is
// the caller's to log.
func (s *Store) FetchFailed(kind protocol.StreamKind, entityID string, _ error) {
	s.update(kind, entityID, CauseFetchFailed,
		func(execution *ScriptExecution) error {
			execution.FetchStatus = FetchError
			return nil
		},
		func(execution *LoadTestExecution) error {
			execution.FetchStatus = FetchError
			return nil
		})
}

// StartScript replaces the entity's aggregate with a fresh pending
// execution.
func (s *Store) StartScript(entityID, executionID string) {
	execution := NewScriptExecution()
	execution.FetchStatus = FetchSuccess
	execution.Status = protocol.StatusPending
	execution.ExecutionID = executionID
	s.replace(protocol.Script, entityID, func() {
		s.scripts[entityID] = execution
	})
}

// StartLoadTest replaces the entity's aggregate with a fresh pending
// execution whose workers 0..workers-1 are all pending.
func (s *Store) StartLoadTest(entityID, executionID string, workers int) {
	execution := NewLoadTestExecution()
	execution.FetchStatus = FetchSuccess
	execution.Status = protocol.StatusPending
	execution.ExecutionID = executionID
	for ordinal := range max(workers, 0) {
		execution.Workers[ordinal] = protocol.WorkerPending
	}
	s.replace(protocol.LoadTest, entityID, func() {
		s.loadTests[entityID] = execution
	})
}

// Script returns a copy of the script's aggregate, or the initial
// aggregate if nothing is known about it.
func (s *Store) Script(entityID string) *ScriptExecution {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if execution, ok := s.scripts[entityID]; ok {
		return execution.Clone()
	}
	return NewScriptExecution()
}

// LoadTest returns a copy of the load test's aggregate, or the initial
// aggregate if nothing is known about it.
func (s *Store) LoadTest(entityID string) *LoadTestExecution {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if execution, ok := s.loadTests[entityID]; ok {
		return execution.Clone()
	}
	return NewLoadTestExecution()
}

// Entities returns the ids with an aggregate of the given kind.
func (s *Store) Entities(kind protocol.StreamKind) []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var ids []string
	switch kind {
	case protocol.Script:
		for id := range s.scripts {
			ids = append(ids, id)
		}
	case protocol.LoadTest:
		for id := range s.loadTests {
			ids = append(ids, id)
		}
	}
	return ids
}

// Mutations counts the operations that changed the store.
func (s *Store) Mutations() uint64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.mutations
}

// Subscribe returns a channel receiving an Event per change. The
// channel is buffered; events are dropped when it is full, and a
// subscriber that falls behind should re-read the aggregate.
func (s *Store) Subscribe() <-chan Event {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	channel := make(chan Event, 64)
	s.subscribers = append(s.subscribers, channel)
	return channel
}

// update runs the merge for kind on a copy of the entity's aggregate
// and installs the copy only if the merge succeeds.
func (s *Store) update(kind protocol.StreamKind, entityID, cause string,
	script func(*ScriptExecution) error, loadTest func(*LoadTestExecution) error) error {
	s.mutex.Lock()
	var err error
	switch kind {
	case protocol.Script:
		execution := NewScriptExecution()
		if existing, ok := s.scripts[entityID]; ok {
			execution = existing.Clone()
		}
		if err = script(execution); err == nil {
			s.scripts[entityID] = execution
		}
	case protocol.LoadTest:
		execution := NewLoadTestExecution()
		if existing, ok := s.loadTests[entityID]; ok {
			execution = existing.Clone()
		}
		if err = loadTest(execution); err == nil {
			s.loadTests[entityID] = execution
		}
	default:
		err = fmt.Errorf("aggregate: unknown stream kind %v", kind)
	}
	subscribers := s.commit(err == nil)
	s.mutex.Unlock()

	if err == nil {
		dispatch(subscribers, Event{Kind: kind, EntityID: entityID, Cause: cause})
	}
	return err
}

func (s *Store) replace(kind protocol.StreamKind, entityID string, install func()) {
	s.mutex.Lock()
	install()
	subscribers := s.commit(true)
	s.mutex.Unlock()
	dispatch(subscribers, Event{Kind: kind, EntityID: entityID, Cause: CauseStarted})
}

// commit counts a mutation and returns the subscribers to notify.
// Callers hold the mutex. The subscriber list is append-only, so the
// returned slice stays valid after unlock.
func (s *Store) commit(changed bool) []chan Event {
	if !changed {
		return nil
	}
	s.mutations++
	return s.subscribers
}

func dispatch(subscribers []chan Event, event Event) {
	for _, subscriber := range subscribers {
		select {
		case subscriber <- event:
		default:
		}
	}
}
