package testutil

import (
	"encoding/json"
	"testing"

	appErr "codegrader/pkg/errors"
)

// AssertEqual checks if two comparable values are equal.
func AssertEqual(t *testing.T, got, want interface{}) {
	t.Helper()
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

// AssertTrue checks if a condition is true.
func AssertTrue(t *testing.T, condition bool, message string) {
	t.Helper()
	if !condition {
		t.Errorf("assertion failed: %s", message)
	}
}

// AssertCode fails unless err carries code.
func AssertCode(t *testing.T, err error, code appErr.ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %d, got nil", code)
	}
	if got := appErr.GetCode(err); got != code {
		t.Fatalf("expected code %d, got %d (%v)", code, got, err)
	}
}

// MustMarshalJSON marshals an object to JSON or fails the test.
func MustMarshalJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data or fails the test.
func MustUnmarshalJSON(t *testing.T, data []byte, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}

// Envelope mirrors the JSON envelope written by pkg/utils/response.
type Envelope struct {
	Code    appErr.ErrorCode       `json:"code"`
	Message string                 `json:"message"`
	Data    json.RawMessage        `json:"data"`
	Details map[string]interface{} `json:"details"`
	TraceID string                 `json:"trace_id"`
}

// DecodeEnvelope decodes a response body and, when out is non-nil, its data field.
func DecodeEnvelope(t *testing.T, body []byte, out interface{}) Envelope {
	t.Helper()
	var env Envelope
	MustUnmarshalJSON(t, body, &env)
	if out != nil && len(env.Data) > 0 {
		MustUnmarshalJSON(t, env.Data, out)
	}
	return env
}
