// Copyright 2026 The Firefly Authors
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the history API. The server
// reports failures as {"detail": ...}, where detail is a message string
// or, for request validation failures, a list of objects.
type APIError struct {
	StatusCode int

	// Detail is the decoded message when the server sent a string,
	// otherwise the raw detail JSON or the response body.
	Detail string
}

func (err *APIError) Error() string {
	if err.Detail == "" {
		return fmt.Sprintf("history: HTTP %d", err.StatusCode)
	}
	return fmt.Sprintf("history: HTTP %d: %s", err.StatusCode, err.Detail)
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var apiError *APIError
	return errors.As(err, &apiError) && apiError.StatusCode == http.StatusNotFound
}

// IsUnauthorized reports whether err is a 401 or 403 response.
func IsUnauthorized(err error) bool {
	var apiError *APIError
	return errors.As(err, &apiError) &&
		(apiError.StatusCode == http.StatusUnauthorized || apiError.StatusCode == http.StatusForbidden)
}

func parseAPIError(statusCode int, body []byte) *APIError {
	apiError := &APIError{StatusCode: statusCode}
	var parsed struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Detail) == 0 {
		apiError.Detail = string(body)
		return apiError
	}
	var message string
	if err := json.Unmarshal(parsed.Detail, &message); err == nil {
		apiError.Detail = message
	} else {
		apiError.Detail = string(parsed.Detail)
	}
	return apiError
}
