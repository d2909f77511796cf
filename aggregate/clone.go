// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package aggregate

import (
	"bytes"
	"encoding/json"
	"maps"
	"reflect"
)

// FetchStatus tracks the HTTP snapshot fetch for an entity.
type FetchStatus string

const (
	FetchIdle    FetchStatus = "idle"
	FetchPending FetchStatus = "pending"
	FetchSuccess FetchStatus = "success"
	FetchError   FetchStatus = "error"
)

// cloneValue deep-copies a decoded JSON value.
func cloneValue(value any) any {
	switch typed := value.(type) {
	case []any:
		return cloneValues(typed)
	case map[string]any:
		copied := make(map[string]any, len(typed))
		for key, item := range typed {
			copied[key] = cloneValue(item)
		}
		return copied
	default:
		return value
	}
}

func cloneValues(values []any) []any {
	if values == nil {
		return nil
	}
	copied := make([]any, len(values))
	for index, item := range values {
		copied[index] = cloneValue(item)
	}
	return copied
}

func cloneRawMap(source map[string]json.RawMessage) map[string]json.RawMessage {
	if source == nil {
		return nil
	}
	copied := make(map[string]json.RawMessage, len(source))
	for key, raw := range source {
		copied[key] = append(json.RawMessage(nil), raw...)
	}
	return copied
}

func cloneStrings(source map[string]string) map[string]string {
	if source == nil {
		return nil
	}
	return maps.Clone(source)
}

// decodeNumbers unmarshals raw keeping numbers as json.Number so chart
// values survive a round trip unchanged.
func decodeNumbers(raw json.RawMessage, v any) error {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	return decoder.Decode(v)
}

func sameValues(a, b []any) bool {
	return reflect.DeepEqual(a, b)
}
