// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/json"
	"fmt"
)

// Snapshot is the body of GET /script/{id}/last/ or
// GET /load_test/{id}/last/: the latest execution of an entity with
// the same field names the stream uses. Fields are left encoded until
// the merge layer asks for them.
type Snapshot map[string]json.RawMessage

// ExecutionID returns the snapshot's execution_id, or "" if absent.
func (s Snapshot) ExecutionID() string {
	var id string
	if err := s.Field("execution_id", &id); err != nil {
		return ""
	}
	return id
}

// Has reports whether name is present and not null.
func (s Snapshot) Has(name string) bool {
	raw, ok := s[name]
	return ok && !isAbsent(raw)
}

// Field decodes the named field into v. A missing or null field leaves
// v untouched and returns nil.
func (s Snapshot) Field(name string, v any) error {
	raw, ok := s[name]
	if !ok || isAbsent(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("snapshot field %s: %w", name, err)
	}
	return nil
}
