// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// StatusOK and StatusError are the two values of a response's status
// field.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Response is an outbound response document. It is a plain map so
// success payloads can merge arbitrary fields next to status.
type Response map[string]any

// OK builds a success response. The extra fields, if any, are merged
// into the envelope next to status. A "status" key in extra is
// overridden.
func OK(extra map[string]any) Response {
	response := Response{"status": StatusOK}
	for key, value := range extra {
		response[key] = value
	}
	response["status"] = StatusOK
	return response
}

// Error builds an error response. The traceback field is included only
// when non-empty (only recovered panics carry one).
func Error(reason string, traceback string, code ErrorCode) Response {
	response := Response{
		"status": StatusError,
		"reason": reason,
		"errno":  int(code),
	}
	if traceback != "" {
		response["traceback"] = traceback
	}
	return response
}

// FromResult shapes a command's success result into a Response:
//
//   - nil becomes the minimal ok envelope
//   - a string-keyed map merges into the ok envelope
//   - a slice or array is wrapped as {"results": [...]}
//   - anything else is not a valid success payload and returns an error
//
// Commands return plain Go values; only structured values have a wire
// representation.
func FromResult(result any) (Response, error) {
	if result == nil {
		return OK(nil), nil
	}

	if mapped, ok := result.(map[string]any); ok {
		return OK(mapped), nil
	}

	value := reflect.ValueOf(result)
	switch value.Kind() {
	case reflect.Map:
		if value.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("non-string map keys in result %T", result)
		}
		extra := make(map[string]any, value.Len())
		iter := value.MapRange()
		for iter.Next() {
			extra[iter.Key().String()] = iter.Value().Interface()
		}
		return OK(extra), nil
	case reflect.Slice, reflect.Array:
		return OK(map[string]any{"results": result}), nil
	}

	return nil, fmt.Errorf("non-structured success payload %T", result)
}

// Marshal serializes a response to the wire text format. The wire
// carries raw bytes; JSON is already UTF-8 so no further encoding is
// needed.
func (r Response) Marshal() ([]byte, error) {
	return json.Marshal(map[string]any(r))
}
